package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
)

// Uploader publishes a finished video and returns a link viewers can open.
// destination is backend specific: a folder id for Drive, an object prefix
// for Supabase.
type Uploader interface {
	Upload(ctx context.Context, localPath, destination string) (string, error)
}

const (
	// Upload timeout per attempt
	uploadTimeout = 300 * time.Second

	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// SupabaseUploader stores videos in a public Supabase Storage bucket.
type SupabaseUploader struct {
	url        string
	serviceKey string
	bucket     string
	maxRetries int
	client     *http.Client
	logger     zerolog.Logger
}

var _ Uploader = (*SupabaseUploader)(nil)

// NewSupabaseUploader builds an uploader that makes a single attempt per
// upload; use WithRetries to retry transient HTTP failures.
func NewSupabaseUploader(url, serviceKey, bucket string, logger zerolog.Logger) *SupabaseUploader {
	return &SupabaseUploader{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "supabase").Logger(),
	}
}

// WithRetries sets how many extra attempts follow a retryable failure.
func (s *SupabaseUploader) WithRetries(n int) *SupabaseUploader {
	if n < 0 {
		n = 0
	}
	s.maxRetries = n
	return s
}

// WithHTTPClient swaps the HTTP client, e.g. for tests.
func (s *SupabaseUploader) WithHTTPClient(c *http.Client) *SupabaseUploader {
	s.client = c
	return s
}

// Upload PUTs the file under destination/<basename> and returns its public URL.
func (s *SupabaseUploader) Upload(ctx context.Context, localPath, destination string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", models.ErrUpload, localPath, err)
	}

	objectPath := ObjectPath(destination, filepath.Base(localPath))
	if err := s.put(ctx, objectPath, data, contentTypeFor(localPath)); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrUpload, err)
	}

	link := s.PublicURL(objectPath)
	s.logger.Info().Str("object", objectPath).Int("bytes", len(data)).Msg("video uploaded")
	return link, nil
}

func (s *SupabaseUploader) put(ctx context.Context, objectPath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, objectPath)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			s.logger.Warn().Int("attempt", attempt+1).Dur("delay", delay).Str("object", objectPath).Msg("retrying upload")

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if !isRetryableStatus(resp.StatusCode) {
			return lastErr
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

// PublicURL is the unauthenticated link for an object in the bucket.
func (s *SupabaseUploader) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.bucket, objectPath)
}

// ObjectPath joins a destination prefix and a file name with forward slashes.
func ObjectPath(destination, name string) string {
	destination = strings.Trim(strings.ReplaceAll(destination, "\\", "/"), "/")
	if destination == "" {
		return name
	}
	return path.Join(destination, name)
}

var mediaTypes = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".mp3": "audio/mpeg",
	".aac": "audio/aac",
}

func contentTypeFor(localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// retryDelay is exponential backoff with up to 25% jitter.
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
