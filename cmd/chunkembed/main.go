package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/chunkembed/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chunkembed",
	Short: "Token-window chunking and batched embedding for source code",
	Long: `chunkembed splits source files into token-bounded chunks, embeds every
chunk of a request with a single model call and returns the vectors grouped
by file.

It runs as an HTTP inference server, as an MCP server on stdio, or as a
one-shot CLI that indexes a directory tree into a local SQLite index.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(versionText())
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (env CHUNKEMBED_* overrides it)")

	rootCmd.AddCommand(serveCmd, mcpCmd, indexCmd, searchCmd, chunkCmd)
}

func versionText() string {
	return fmt.Sprintf("chunkembed\nVersion: %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\nVector Extension: %v\n",
		version, buildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
}

func main() {
	// stdout is reserved for MCP and command output
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
