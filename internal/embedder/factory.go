package embedder

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider    string // jina, openai, http, local
	Model       string // model name; for hosted presets empty means the preset default
	BaseURL     string // overrides the preset endpoint
	APIKey      string
	Dimension   int
	BatchSize   int
	Concurrency int
	Device      string // local provider only: cpu or cuda
	Timeout     time.Duration
	Logger      *slog.Logger
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocalProvider(LocalOptions{
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Device:    cfg.Device,
			Logger:    cfg.Logger,
		})
	case ProviderJina:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: jina API key not set", ErrNoProviderEnabled)
		}
		return NewHTTPProvider(preset(cfg, ProviderJina, JinaBaseURL, DefaultJinaModel, JinaDimension))
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai API key not set", ErrNoProviderEnabled)
		}
		return NewHTTPProvider(preset(cfg, ProviderOpenAI, OpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension))
	case ProviderHTTP:
		return NewHTTPProvider(preset(cfg, ProviderHTTP, "", "", 0))
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// preset fills unset fields of cfg with a hosted provider's defaults
func preset(cfg Config, name, baseURL, model string, dimension int) HTTPOptions {
	opts := HTTPOptions{
		Name:        name,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Dimension:   cfg.Dimension,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
		Logger:      cfg.Logger,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	if opts.Model == "" {
		opts.Model = model
	}
	if opts.Dimension == 0 && cfg.Model == "" {
		opts.Dimension = dimension
	}
	return opts
}
