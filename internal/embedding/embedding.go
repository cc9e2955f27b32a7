// Package embedding is the thin, retrying, rate-limited caller to the
// external text-embedding provider. Every vector the
// rest of the system stores or searches against originates here, so the
// client is also where the EmbeddingShape invariant ("len(v)=D for every
// vector the provider returns") is enforced.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"materialscat/internal/apierrors"
	"materialscat/internal/config"
	"materialscat/internal/observability"
)

// Client embeds one or many texts into fixed-dimension vectors.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the fixed vector width this client is configured
	// for; any response of a different length is rejected.
	Dimension() int
}

type openAIClient struct {
	sdk        openai.Client
	model      string
	dimension  int
	limiter    *rate.Limiter
	maxRetries int
	baseBackoff time.Duration
	log        zerolog.Logger
}

// New constructs a Client backed by the OpenAI (or an OpenAI-compatible)
// embeddings endpoint, rate-limited and retried per cfg.
func New(cfg config.EmbeddingConfig, log zerolog.Logger) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(observability.NewHTTPClient(nil)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIClient{
		sdk:         openai.NewClient(opts...),
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: 250 * time.Millisecond,
		log:         log.With().Str("component", "embedding.Client").Logger(),
	}
}

func (c *openAIClient) Dimension() int { return c.dimension }

func (c *openAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding: rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vectors, err := c.doRequest(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !isRetryable(err) {
			if _, ok := apierrors.As(err); ok {
				return nil, err
			}
			return nil, apierrors.Wrap(apierrors.CodeEmbeddingUnavailable, "embedding provider call failed", err)
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("embedding call failed, retrying")
	}
	return nil, apierrors.Wrap(apierrors.CodeEmbeddingUnavailable, "embedding provider exhausted retries", lastErr)
}

func (c *openAIClient) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		if c.dimension > 0 && len(v) != c.dimension {
			return nil, &apierrors.Error{
				Code:    apierrors.CodeEmbeddingShape,
				Message: fmt.Sprintf("embedding provider returned dimension %d, want %d", len(v), c.dimension),
			}
		}
		out[i] = v
	}
	return out, nil
}

// isRetryable treats network errors, timeouts, and 5xx/429 responses as
// transient; it never retries a shape mismatch, since a different count of
// floats back will not fix itself.
func isRetryable(err error) bool {
	if e, ok := apierrors.As(err); ok && e.Code == apierrors.CodeEmbeddingShape {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}
