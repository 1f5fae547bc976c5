package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/telemetry"
)

// Embedder produces fixed-dimension vectors for chunk and query text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingClient wraps the Gemini embedding model with a circuit breaker
// and request rate limiting. All chunks and queries in the system go through
// the same model so dimensionality stays fixed.
type EmbeddingClient struct {
	client      *genai.Client
	model       string
	dim         int
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

type rateLimits struct {
	rpm int
}

func limitsForTier(tier string) rateLimits {
	switch tier {
	case "tier1":
		return rateLimits{rpm: 1000}
	case "tier2":
		return rateLimits{rpm: 2000}
	default: // free
		return rateLimits{rpm: 100}
	}
}

func NewEmbeddingClient(ctx context.Context, cfg *config.Config) (*EmbeddingClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	limits := limitsForTier(cfg.EmbeddingTier)
	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(limits.rpm)*0.9/60.0), limits.rpm/10)

	return &EmbeddingClient{
		client:      client,
		model:       cfg.EmbeddingModel,
		dim:         cfg.EmbeddingDim,
		breaker:     breaker,
		rateLimiter: limiter,
	}, nil
}

func (ec *EmbeddingClient) Close() error {
	return ec.client.Close()
}

// Dimension returns the fixed embedding dimensionality.
func (ec *EmbeddingClient) Dimension() int {
	return ec.dim
}

// Embed returns the embedding vector for a single text.
func (ec *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embed.content")
	defer span.End()
	span.SetAttributes(
		attribute.String("embed.model", ec.model),
		attribute.Int("embed.text_length", len(text)),
	)

	if err := ec.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	result, err := ec.breaker.Execute(func() (interface{}, error) {
		model := ec.client.EmbeddingModel(ec.model)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordEmbedding(ctx, 1, time.Since(start))

	vec := result.([]float32)
	if len(vec) != ec.dim {
		return nil, fmt.Errorf("embedding dimension %d does not match configured %d", len(vec), ec.dim)
	}
	return vec, nil
}

// EmbedBatch embeds several chunk texts in one API round trip where the
// model supports it, falling back to per-text calls on partial batches.
func (ec *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embed.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("embed.model", ec.model),
		attribute.Int("embed.batch_size", len(texts)),
	)

	if err := ec.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	result, err := ec.breaker.Execute(func() (interface{}, error) {
		model := ec.client.EmbeddingModel(ec.model)
		batch := model.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		resp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
		}
		vectors := make([][]float32, len(resp.Embeddings))
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding at index %d", i)
			}
			vectors[i] = emb.Values
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordEmbedding(ctx, len(texts), time.Since(start))

	vectors := result.([][]float32)
	for i, vec := range vectors {
		if len(vec) != ec.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vec), ec.dim)
		}
	}
	return vectors, nil
}
