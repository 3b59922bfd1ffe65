package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ImageGenerator renders one image for a prompt. An empty result is an error.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error)
}

// ---------------------------------------------------------------------------
// Gemini image generation (genai SDK)
// ---------------------------------------------------------------------------

const defaultImageModel = "gemini-2.5-flash-image"

type GeminiImageService struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

var _ ImageGenerator = (*GeminiImageService)(nil)

func NewGeminiImageService(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiImageService, error) {
	if model == "" {
		model = defaultImageModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiImageService{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "gemini_image").Logger(),
	}, nil
}

// GenerateImage returns the first inline image of the model's answer.
func (s *GeminiImageService) GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	content := &genai.Content{
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: aspectRatio},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image request failed: %w", err)
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}

	return nil, fmt.Errorf("model returned an empty image")
}

// ---------------------------------------------------------------------------
// ImageBatch: sequential per-scene generation with bounded retry
// ---------------------------------------------------------------------------

const (
	imageMaxAttempts = 3
	imageBaseDelay   = 15 * time.Second
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

type ImageBatch struct {
	gen         ImageGenerator
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	logger      zerolog.Logger
}

func NewImageBatch(gen ImageGenerator, logger zerolog.Logger) *ImageBatch {
	return &ImageBatch{
		gen:         gen,
		maxAttempts: imageMaxAttempts,
		baseDelay:   imageBaseDelay,
		sleep:       sleepCtx,
		logger:      logger.With().Str("component", "images").Logger(),
	}
}

// WithSleep replaces the backoff sleep, e.g. to record delays in tests.
func (b *ImageBatch) WithSleep(sleep SleepFunc) *ImageBatch {
	b.sleep = sleep
	return b
}

// Generate tries a prompt up to maxAttempts times, doubling the delay after
// each failure. The last failure is returned wrapped in ErrImageGeneration.
func (b *ImageBatch) Generate(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	if b.gen == nil {
		return nil, fmt.Errorf("%w: no image generator configured", models.ErrImageGeneration)
	}

	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		data, err := b.gen.GenerateImage(ctx, prompt, aspectRatio)
		if err == nil && len(data) == 0 {
			err = errors.New("empty image payload")
		}
		if err == nil {
			metrics.IncImageAttempt("ok")
			return data, nil
		}
		lastErr = err

		if attempt == b.maxAttempts {
			break
		}

		delay := b.baseDelay * time.Duration(1<<(attempt-1))
		metrics.IncImageAttempt("retry")
		b.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", b.maxAttempts).
			Dur("delay", delay).
			Msg("image attempt failed, retrying")

		if err := b.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: retry wait interrupted: %w", models.ErrImageGeneration, err)
		}
	}

	metrics.IncImageAttempt("exhausted")
	b.logger.Error().Err(lastErr).Int("attempts", b.maxAttempts).Msg("all image attempts failed")
	return nil, fmt.Errorf("%w: after %d attempts: %w", models.ErrImageGeneration, b.maxAttempts, lastErr)
}

// GenerateAll renders prompts in order into dir as image_<i>.png and returns
// the index-aligned paths.
func (b *ImageBatch) GenerateAll(ctx context.Context, prompts []string, aspectRatio, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}

	paths := make([]string, 0, len(prompts))
	for i, prompt := range prompts {
		b.logger.Info().Int("image", i+1).Int("total", len(prompts)).Str("prompt", truncate(prompt, 70)).Msg("generating image")

		data, err := b.Generate(ctx, prompt, aspectRatio)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("image_%d.png", i))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("%w: failed to save image %d: %w", models.ErrImageGeneration, i, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}
