package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"unicode"
)

// Devices accepted by LocalProvider
const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"

	DefaultLocalModel = "local/feature-hash"
)

// LocalProvider is an offline embedder that hashes identifier unigrams and
// bigrams into a fixed number of signed buckets and L2-normalises the result.
// Output depends only on the text, so it is deterministic and insensitive to
// batch composition.
type LocalProvider struct {
	model     string
	dimension int
	device    string
}

// LocalOptions configures a LocalProvider
type LocalOptions struct {
	Model     string
	Dimension int
	Device    string
	Logger    *slog.Logger
}

// NewLocalProvider creates a local embedder. A cuda device request falls back
// to cpu: this build has no GPU backend.
func NewLocalProvider(opts LocalOptions) (*LocalProvider, error) {
	if opts.Dimension < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidInput, opts.Dimension)
	}
	if opts.Dimension == 0 {
		opts.Dimension = LocalDimension
	}
	if opts.Model == "" {
		opts.Model = DefaultLocalModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	device := strings.ToLower(opts.Device)
	switch device {
	case "", DeviceCPU:
		device = DeviceCPU
	case DeviceCUDA:
		logger.Warn("cuda not available, using cpu", "model", opts.Model)
		device = DeviceCPU
	default:
		return nil, fmt.Errorf("%w: unknown device %q", ErrInvalidInput, opts.Device)
	}

	logger.Info("local embedder ready", "model", opts.Model, "dimension", opts.Dimension, "device", device)

	return &LocalProvider{
		model:     opts.Model,
		dimension: opts.Dimension,
		device:    device,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return l.embed(req.Text), nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = l.embed(text)
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) embed(text string) *Embedding {
	vector := make([]float32, l.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, w := range words {
		l.addFeature(vector, w)
		if i > 0 {
			l.addFeature(vector, words[i-1]+" "+w)
		}
	}

	return &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}
}

func (l *LocalProvider) addFeature(vector []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(len(vector)))
	if sum>>63 == 1 {
		vector[bucket]--
	} else {
		vector[bucket]++
	}
}

// Device returns the device embeddings are computed on
func (l *LocalProvider) Device() string {
	return l.device
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
