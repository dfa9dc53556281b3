package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
	ProviderLocal  = "local"

	// Default endpoints for the hosted presets
	JinaBaseURL   = "https://api.jina.ai/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize   = 50
	MaxBatchSize       = 100
	DefaultConcurrency = 4

	DefaultTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// HTTPProvider implements Embedder against an OpenAI-compatible
// POST {baseURL}/embeddings endpoint (OpenAI, Jina, Ollama, TEI, vLLM).
//
// A GenerateBatch call larger than the provider's batch size is split into
// sub-batches that run concurrently; the results are reassembled in input
// order.
type HTTPProvider struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	dimension   int
	batchSize   int
	concurrency int
	retry       RetryConfig
	httpClient  *http.Client
	logger      *slog.Logger
}

// HTTPOptions configures an HTTPProvider
type HTTPOptions struct {
	Name        string // provider name reported by Provider()
	BaseURL     string
	APIKey      string
	Model       string
	Dimension   int // expected vector length; 0 accepts whatever the API returns
	BatchSize   int // texts per API call, at most MaxBatchSize
	Concurrency int // concurrent API calls per GenerateBatch
	Timeout     time.Duration
	Retry       *RetryConfig
	Logger      *slog.Logger
}

// NewHTTPProvider creates an embedder for an OpenAI-compatible endpoint
func NewHTTPProvider(opts HTTPOptions) (*HTTPProvider, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrNoProviderEnabled)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrUnsupportedModel)
	}
	if opts.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d, max %d", ErrBatchTooLarge, opts.BatchSize, MaxBatchSize)
	}
	if opts.Dimension < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidInput, opts.Dimension)
	}

	if opts.Name == "" {
		opts.Name = ProviderHTTP
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	retry := DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPProvider{
		name:        opts.Name,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		dimension:   opts.Dimension,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		retry:       retry,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}, nil
}

// NewJinaProvider creates an embedder for the Jina AI API
func NewJinaProvider(apiKey string) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: jina API key not set", ErrNoProviderEnabled)
	}
	return NewHTTPProvider(HTTPOptions{
		Name:      ProviderJina,
		BaseURL:   JinaBaseURL,
		APIKey:    apiKey,
		Model:     DefaultJinaModel,
		Dimension: JinaDimension,
	})
}

// NewOpenAIProvider creates an embedder for the OpenAI API
func NewOpenAIProvider(apiKey string) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai API key not set", ErrNoProviderEnabled)
	}
	return NewHTTPProvider(HTTPOptions{
		Name:      ProviderOpenAI,
		BaseURL:   OpenAIBaseURL,
		APIKey:    apiKey,
		Model:     DefaultOpenAIModel,
		Dimension: OpenAIDimension,
	})
}

func (h *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := h.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	return resp.Embeddings[0], nil
}

func (h *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = h.model
	}

	embeddings := make([]*Embedding, len(req.Texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for start := 0; start < len(req.Texts); start += h.batchSize {
		end := min(start+h.batchSize, len(req.Texts))
		g.Go(func() error {
			batch, err := retryWithBackoff(gctx, h.retry, func() ([]*Embedding, error) {
				return h.callAPI(gctx, req.Texts[start:end], model)
			})
			if err != nil {
				return fmt.Errorf("texts %d-%d: %w", start, end, err)
			}
			copy(embeddings[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.logger.Warn("embedding batch failed",
			"provider", h.name,
			"texts", len(req.Texts),
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if err := checkBatch(embeddings, len(req.Texts), h.dimension); err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   h.name,
		Model:      model,
	}, nil
}

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// callAPI embeds one sub-batch. Vectors are placed by the response's index
// field, not by position in the data array.
func (h *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	body, err := json.Marshal(embeddingsRequest{Input: texts, Model: model})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		// Rate limiting is the only client error worth retrying
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(err)
		}
		return nil, err
	}

	var apiResp embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, permanent(fmt.Errorf("decode response: %w", err))
	}

	if len(apiResp.Data) != len(texts) {
		return nil, permanent(fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Data), len(texts)))
	}

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	embeddings := make([]*Embedding, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) || embeddings[data.Index] != nil {
			return nil, permanent(fmt.Errorf("invalid or duplicate index %d in response", data.Index))
		}
		embeddings[data.Index] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  h.name,
			Model:     respModel,
		}
	}

	return embeddings, nil
}

func (h *HTTPProvider) Dimension() int {
	return h.dimension
}

func (h *HTTPProvider) Provider() string {
	return h.name
}

func (h *HTTPProvider) Model() string {
	return h.model
}

func (h *HTTPProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}
