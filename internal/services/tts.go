package services

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// NarrationSynthesizer turns speech markup into encoded audio (MP3).
// Implementations return an error rather than empty audio on failure.
type NarrationSynthesizer interface {
	Synthesize(ctx context.Context, markup, voiceID string) ([]byte, error)
}

// GoogleTTSService synthesizes SSML with Google Cloud Text-to-Speech.
type GoogleTTSService struct {
	svc    *texttospeech.Service
	logger zerolog.Logger
}

// Compile-time check
var _ NarrationSynthesizer = (*GoogleTTSService)(nil)

// NewGoogleTTSService authenticates with an API key when given, otherwise with
// a service-account file, otherwise with application default credentials.
func NewGoogleTTSService(ctx context.Context, apiKey, credentialsFile string, logger zerolog.Logger) (*GoogleTTSService, error) {
	var opts []option.ClientOption
	switch {
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	return &GoogleTTSService{
		svc:    svc,
		logger: logger.With().Str("component", "tts").Logger(),
	}, nil
}

// Synthesize renders markup with the named voice as MP3.
func (s *GoogleTTSService) Synthesize(ctx context.Context, markup, voiceID string) ([]byte, error) {
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Ssml: markup},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: VoiceLanguageCode(voiceID),
			Name:         voiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}

	s.logger.Info().Str("voice", voiceID).Int("markup_len", len(markup)).Msg("synthesizing narration")

	resp, err := s.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("text-to-speech request failed: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("text-to-speech returned no audio")
	}

	return audio, nil
}
