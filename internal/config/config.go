package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/chunkembed/internal/chunker"
	"github.com/dshills/chunkembed/internal/tokenizer"
	"github.com/dshills/chunkembed/pkg/types"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "CHUNKEMBED_"

// DefaultDBPath is where the index database lives unless configured
const DefaultDBPath = "~/.chunkembed/chunkembed.db"

// Config is the full service configuration.
//
// Values are layered: defaults, then the YAML file, then environment
// variables (CHUNKEMBED_*), each overriding the previous.
type Config struct {
	Model     ModelConfig     `yaml:"model" envPrefix:"MODEL_"`
	Chunking  ChunkingConfig  `yaml:"chunking" envPrefix:"CHUNK_"`
	Tokenizer TokenizerConfig `yaml:"tokenizer" envPrefix:"TOKENIZER_"`
	Embedding EmbeddingConfig `yaml:"embedding" envPrefix:"EMBEDDING_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Indexer   IndexerConfig   `yaml:"indexer" envPrefix:"INDEXER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// ModelConfig identifies the served model
type ModelConfig struct {
	Name              string `yaml:"name" env:"NAME"`
	Org               string `yaml:"org" env:"ORG"`
	Repo              string `yaml:"repo" env:"REPO"`
	MaxSequenceLength int    `yaml:"max_sequence_length" env:"MAX_SEQUENCE_LENGTH"`
}

// ID returns the org/repo identifier, or "" when neither is set
func (m ModelConfig) ID() string {
	if m.Org == "" && m.Repo == "" {
		return ""
	}
	return m.Org + "/" + m.Repo
}

// ChunkingConfig controls the window planner
type ChunkingConfig struct {
	MaxTokens     int    `yaml:"max_tokens" env:"MAX_TOKENS"`
	Strategy      string `yaml:"strategy" env:"STRATEGY"`
	SnapLookahead int    `yaml:"snap_lookahead" env:"SNAP_LOOKAHEAD"`
}

// TokenizerConfig selects the tokenizer
type TokenizerConfig struct {
	Kind     string `yaml:"kind" env:"KIND"`
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	Dimension   int           `yaml:"dimension" env:"DIMENSION"`
	BatchSize   int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
	Device      string        `yaml:"device" env:"DEVICE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ServerConfig configures the HTTP serving boundary
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// StorageConfig locates the index database
type StorageConfig struct {
	DBPath string `yaml:"db_path" env:"DB_PATH"`
}

// IndexerConfig tunes repository indexing
type IndexerConfig struct {
	BatchSize    int   `yaml:"batch_size" env:"BATCH_SIZE"`
	MaxFileBytes int64 `yaml:"max_file_bytes" env:"MAX_FILE_BYTES"`
	Workers      int   `yaml:"workers" env:"WORKERS"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Model: ModelConfig{
			Name:              "custom-model",
			MaxSequenceLength: 512,
		},
		Chunking: ChunkingConfig{
			MaxTokens:     500,
			Strategy:      "window",
			SnapLookahead: 12,
		},
		Tokenizer: TokenizerConfig{
			Kind:     "bpe",
			Encoding: "cl100k_base",
		},
		Embedding: EmbeddingConfig{
			Provider:    "local",
			BatchSize:   50,
			Concurrency: 4,
			Device:      "cpu",
			Timeout:     30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		Storage: StorageConfig{
			DBPath: DefaultDBPath,
		},
		Indexer: IndexerConfig{
			BatchSize:    10,
			MaxFileBytes: 1 << 20,
			Workers:      8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment. A .env file in the working directory is loaded first if
// present; variables already set in the process environment win.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	positive := map[string]int64{
		"chunking.max_tokens":       int64(c.Chunking.MaxTokens),
		"model.max_sequence_length": int64(c.Model.MaxSequenceLength),
		"embedding.batch_size":      int64(c.Embedding.BatchSize),
		"embedding.concurrency":     int64(c.Embedding.Concurrency),
		"indexer.batch_size":        int64(c.Indexer.BatchSize),
		"indexer.max_file_bytes":    c.Indexer.MaxFileBytes,
		"indexer.workers":           int64(c.Indexer.Workers),
		"server.max_body_bytes":     c.Server.MaxBodyBytes,
	}
	for _, name := range slices.Sorted(maps.Keys(positive)) {
		if positive[name] < 1 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", types.ErrInvalidArgument, name, positive[name]))
		}
	}

	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("%w: embedding.dimension must not be negative", types.ErrInvalidArgument))
	}
	if _, err := chunker.ParseStrategy(c.Chunking.Strategy); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Tokenizer.Kind) {
	case tokenizer.KindBPE, "tiktoken", tokenizer.KindLexical, "":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown tokenizer kind %q", types.ErrInvalidArgument, c.Tokenizer.Kind))
	}
	if c.Model.Name == "" {
		errs = append(errs, fmt.Errorf("%w: model.name is required", types.ErrInvalidArgument))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format must be text or json, got %q", types.ErrInvalidArgument, c.Log.Format))
	}

	return errors.Join(errs...)
}

// Warnings reports settings that are legal but probably unintended
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Chunking.MaxTokens > c.Model.MaxSequenceLength {
		warnings = append(warnings, fmt.Sprintf(
			"chunking.max_tokens (%d) exceeds model.max_sequence_length (%d); the model will truncate chunks",
			c.Chunking.MaxTokens, c.Model.MaxSequenceLength))
	} else if snapped := c.Chunking.MaxTokens + max(c.Chunking.SnapLookahead, 0); snapped > c.Model.MaxSequenceLength {
		warnings = append(warnings, fmt.Sprintf(
			"chunking.max_tokens plus chunking.snap_lookahead (%d) exceeds model.max_sequence_length (%d); snapped chunks may be truncated",
			snapped, c.Model.MaxSequenceLength))
	}
	if c.Chunking.SnapLookahead < 0 {
		warnings = append(warnings, "chunking.snap_lookahead is negative; window boundaries may move without bound")
	}
	return warnings
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ParseLevel converts a level name into a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("%w: unknown log level %q", types.ErrInvalidArgument, name)
	}
	return level, nil
}
