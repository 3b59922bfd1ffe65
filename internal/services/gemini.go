package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultGeminiTextModel = "gemini-2.5-pro"

// GeminiPlanner generates story plans with Gemini in JSON mode.
type GeminiPlanner struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

var _ StoryPlanner = (*GeminiPlanner)(nil)

func NewGeminiPlanner(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiPlanner, error) {
	if model == "" {
		model = defaultGeminiTextModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiPlanner{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "gemini_planner").Logger(),
	}, nil
}

// GeneratePlan sends the persona as system instruction and the idea as the
// user turn, then validates the JSON answer.
func (g *GeminiPlanner) GeneratePlan(ctx context.Context, persona *Persona, userIdea, imageStyle string) (*models.StoryPlan, error) {
	if persona == nil {
		return nil, fmt.Errorf("%w: no persona", models.ErrPlanGeneration)
	}

	started := time.Now()
	g.logger.Info().Str("persona", persona.Name).Str("idea", truncate(userIdea, 120)).Msg("requesting story plan")

	contents := []*genai.Content{
		genai.NewContentFromText(buildPlanUserPrompt(userIdea, imageStyle), genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona.SystemPrompt, genai.RoleUser),
		Temperature:       floatPtr(planTemperature),
		TopP:              floatPtr(1.0),
		MaxOutputTokens:   planMaxOutputTokens,
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini request failed: %w", models.ErrPlanGeneration, err)
	}

	raw := responseText(result)
	plan, err := parsePlan(raw, persona.SceneCount)
	if err != nil {
		g.logger.Error().Err(err).Str("raw", truncate(raw, maxRawPlanLog)).Msg("story plan rejected")
		return nil, err
	}

	g.logger.Info().
		Int("scenes", len(plan.Scenes)).
		Dur("elapsed", time.Since(started)).
		Msg("story plan generated")
	return plan, nil
}

// responseText joins the text parts of the first candidate.
func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func floatPtr(f float64) *float32 {
	f32 := float32(f)
	return &f32
}
