package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIPlanner generates story plans with a chat completion in JSON mode.
type OpenAIPlanner struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

var _ StoryPlanner = (*OpenAIPlanner)(nil)

func NewOpenAIPlanner(apiKey, model string, logger zerolog.Logger) *OpenAIPlanner {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIPlanner{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger.With().Str("component", "openai_planner").Logger(),
	}
}

func (s *OpenAIPlanner) GeneratePlan(ctx context.Context, persona *Persona, userIdea, imageStyle string) (*models.StoryPlan, error) {
	if persona == nil {
		return nil, fmt.Errorf("%w: no persona", models.ErrPlanGeneration)
	}

	started := time.Now()
	s.logger.Info().Str("persona", persona.Name).Str("model", s.model).Msg("requesting story plan")

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: persona.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPlanUserPrompt(userIdea, imageStyle),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: planTemperature,
		MaxTokens:   planMaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai request failed: %w", models.ErrPlanGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from openai", models.ErrPlanGeneration)
	}

	raw := resp.Choices[0].Message.Content
	plan, err := parsePlan(raw, persona.SceneCount)
	if err != nil {
		s.logger.Error().Err(err).Str("raw", truncate(raw, maxRawPlanLog)).Msg("story plan rejected")
		return nil, err
	}

	s.logger.Info().
		Int("scenes", len(plan.Scenes)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("elapsed", time.Since(started)).
		Msg("story plan generated")
	return plan, nil
}
