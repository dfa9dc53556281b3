package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/chunkembed/internal/indexer"
	"github.com/dshills/chunkembed/internal/mcp"
	"github.com/dshills/chunkembed/internal/searcher"
	"github.com/dshills/chunkembed/internal/server"
	"github.com/dshills/chunkembed/internal/storage"
	"github.com/dshills/chunkembed/pkg/types"
)

// serveCmd runs the HTTP inference server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP inference server",
	Long: `Start the HTTP server. POST /v1/models/{model}:predict chunks and embeds a
batch of documents; /healthz, /metrics and /v1/models report status.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		srv := server.New(a.coordinator, server.Options{
			Addr:            a.cfg.Server.Addr,
			ModelName:       a.cfg.Model.Name,
			MaxTokens:       a.cfg.Chunking.MaxTokens,
			RequestTimeout:  a.cfg.Server.RequestTimeout,
			ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			MaxBodyBytes:    a.cfg.Server.MaxBodyBytes,
			Logger:          a.logger,
			Metrics:         a.metrics,
		})
		return srv.Run(cmd.Context())
	},
}

// mcpCmd runs the MCP server on stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		srv := mcp.NewServer(store, a.newIndexer(store), searcher.NewSearcher(store, a.embedder), a.coordinator, mcp.Options{
			MaxTokens: a.cfg.Chunking.MaxTokens,
			Index:     a.indexConfig(),
			Logger:    a.logger,
		})

		if err := srv.Serve(cmd.Context()); err != nil && cmd.Context().Err() == nil {
			return err
		}
		a.logger.Info("mcp server stopped")
		return nil
	},
}

var (
	indexForce         bool
	indexIncludeVendor bool
	indexJSON          bool
)

// indexCmd embeds a directory tree into the local index
var indexCmd = &cobra.Command{
	Use:   "index PATH",
	Short: "Chunk and embed a directory into the local index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		config := a.indexConfig()
		config.ForceReindex = indexForce
		config.IncludeVendor = indexIncludeVendor

		stats, err := a.newIndexer(store).IndexProject(cmd.Context(), args[0], &config)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		if indexJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("Files indexed: %d\n", stats.FilesIndexed)
		fmt.Printf("Files skipped: %d\n", stats.FilesSkipped)
		fmt.Printf("Files removed: %d\n", stats.FilesRemoved)
		fmt.Printf("Files failed:  %d\n", stats.FilesFailed)
		fmt.Printf("Chunks:        %d\n", stats.ChunksCreated)
		fmt.Printf("Duration:      %v\n", stats.Duration.Round(time.Millisecond))
		for _, msg := range stats.ErrorMessages {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
		return nil
	},
}

var (
	searchLimit       int
	searchFilePattern string
	searchMinScore    float64
)

// searchCmd queries the local index
var searchCmd = &cobra.Command{
	Use:   "search PATH QUERY",
	Short: "Rank indexed chunks of PATH against QUERY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		project, err := store.GetProject(cmd.Context(), root)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s is not indexed; run `chunkembed index %s` first", root, args[0])
		}
		if err != nil {
			return err
		}

		resp, err := searcher.NewSearcher(store, a.embedder).Search(cmd.Context(), searcher.SearchRequest{
			Query:     args[1],
			Limit:     searchLimit,
			ProjectID: project.ID,
			Filters:   &storage.SearchFilters{FilePattern: searchFilePattern, MinRelevance: searchMinScore},
		})
		if err != nil {
			return err
		}

		for _, r := range resp.Results {
			fmt.Printf("%2d. %.4f  %s  %s\n", r.Rank, r.RelevanceScore, r.FilePath, location(r.Chunk))
		}
		return nil
	},
}

var (
	chunkMaxTokens int
	chunkEmbed     bool
)

// chunkCmd prints the chunks of one file as JSON
var chunkCmd = &cobra.Command{
	Use:   "chunk FILE",
	Short: "Print the chunks of FILE as JSON",
	Long: `Plan FILE into token-bounded chunks and print them as JSON. With --embed the
chunks are also sent to the embedding model and carry their vectors.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		maxTokens := a.cfg.Chunking.MaxTokens
		if chunkMaxTokens > 0 {
			maxTokens = chunkMaxTokens
		}
		docs := []types.Document{{
			Path: args[0],
			Hash: indexer.ComputeHash(content),
			Text: string(content),
		}}

		var out any
		if chunkEmbed {
			result, err := a.coordinator.Process(cmd.Context(), docs, maxTokens)
			if err != nil {
				return err
			}
			out = result
		} else {
			flat, err := a.coordinator.Plan(docs, maxTokens)
			if err != nil {
				return err
			}
			out = flat.Chunks(args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-embed files even when unchanged")
	indexCmd.Flags().BoolVar(&indexIncludeVendor, "include-vendor", false, "index vendor/ and node_modules/")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "print statistics as JSON")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	searchCmd.Flags().StringVar(&searchFilePattern, "files", "", "glob over project-relative paths")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum cosine similarity")

	chunkCmd.Flags().IntVarP(&chunkMaxTokens, "max-tokens", "m", 0, "token budget per chunk (default from config)")
	chunkCmd.Flags().BoolVar(&chunkEmbed, "embed", false, "embed the chunks and include vectors")
}

// location formats a chunk's position for terminal output
func location(c *types.Chunk) string {
	switch {
	case c == nil:
		return ""
	case c.LineRange != nil:
		return fmt.Sprintf("L%d-L%d", c.StartLine, c.EndLine)
	case c.IndexRange != nil:
		return fmt.Sprintf("[%d,%d)", c.StartIndex, c.EndIndex)
	}
	return ""
}
