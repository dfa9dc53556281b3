package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dshills/chunkembed/pkg/types"
)

const predictSuffix = ":predict"

// PredictRequest is the body of POST /v1/models/{name}:predict
type PredictRequest struct {
	Instances []Instance `json:"instances"`
}

// Instance is one document in a predict request. Fields are pointers so a
// missing field can be told apart from an empty one.
type Instance struct {
	FilePath *string `json:"file_path"`
	Code     *string `json:"code"`
	FileHash *string `json:"file_hash"`
}

// Documents validates every instance and converts it for the core
func (p *PredictRequest) Documents() ([]types.Document, error) {
	if p.Instances == nil {
		return nil, fmt.Errorf("%w: instances is required", types.ErrInvalidArgument)
	}

	docs := make([]types.Document, len(p.Instances))
	for i, inst := range p.Instances {
		switch {
		case inst.FilePath == nil || *inst.FilePath == "":
			return nil, fmt.Errorf("%w: instances[%d].file_path is required", types.ErrInvalidArgument, i)
		case inst.Code == nil:
			return nil, fmt.Errorf("%w: instances[%d].code is required", types.ErrInvalidArgument, i)
		case inst.FileHash == nil:
			return nil, fmt.Errorf("%w: instances[%d].file_hash is required", types.ErrInvalidArgument, i)
		}
		docs[i] = types.Document{Path: *inst.FilePath, Hash: *inst.FileHash, Text: *inst.Code}
	}
	return docs, nil
}

// ModelStatus is returned by GET /v1/models/{name}
type ModelStatus struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("GET /v1/models/{name}", s.handleModelStatus)
	// {target} is "<name>:predict"; ServeMux wildcards span whole segments
	mux.HandleFunc("POST /v1/models/{target}", s.handlePredict)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": {s.opts.ModelName}})
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name != s.opts.ModelName {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %s not found", name))
		return
	}
	writeJSON(w, http.StatusOK, ModelStatus{Name: name, Ready: true})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("target"), predictSuffix)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown verb, expected :predict")
		return
	}
	if name != s.opts.ModelName {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %s not found", name))
		return
	}

	if s.opts.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	docs, err := req.Documents()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	result, err := s.proc.Process(ctx, docs, s.opts.MaxTokens)
	if err != nil {
		status := statusFor(ctx, err)
		s.logger.Warn("predict failed",
			"request_id", RequestID(r.Context()),
			"documents", len(docs),
			"status", status,
			"error", err)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// statusFor maps a core error onto an HTTP status code
func statusFor(ctx context.Context, err error) int {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrEmbeddingPortFailure):
		return http.StatusBadGateway
	default:
		// includes types.ErrTokenizerInconsistency
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
