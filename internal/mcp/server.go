package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/chunkembed/internal/batch"
	"github.com/dshills/chunkembed/internal/indexer"
	"github.com/dshills/chunkembed/internal/searcher"
	"github.com/dshills/chunkembed/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "chunkembed"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Options configures the tools exposed by a Server
type Options struct {
	// MaxTokens is the chunk budget used by index_codebase and the default
	// for chunk_code
	MaxTokens int
	// Index supplies worker, batch and size limits for index_codebase.
	// ForceReindex and IncludeVendor are taken from each tool call.
	Index  indexer.Config
	Logger *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	storage     storage.Storage
	indexer     *indexer.Indexer
	searcher    *searcher.Searcher
	coordinator *batch.Coordinator
	opts        Options
	logger      *slog.Logger
}

// NewServer creates a new MCP server instance. The indexer and searcher must
// share one embedding model so query vectors are comparable to stored ones.
func NewServer(store storage.Storage, idx *indexer.Indexer, srch *searcher.Searcher, coord *batch.Coordinator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:         server.NewMCPServer(ServerName, ServerVersion),
		storage:     store,
		indexer:     idx,
		searcher:    srch,
		coordinator: coord,
		opts:        opts,
		logger:      logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until stdin closes or ctx
// is cancelled. The caller owns storage and closes it afterwards.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s.mcp) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(chunkCodeTool(), s.handleChunkCode)
}
