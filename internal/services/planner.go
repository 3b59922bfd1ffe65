package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

// StoryPlanner asks a text model for a scene-by-scene plan.
type StoryPlanner interface {
	GeneratePlan(ctx context.Context, persona *Persona, userIdea, imageStyle string) (*models.StoryPlan, error)
}

// Generation settings shared by every plan provider
const (
	planTemperature     = 0.8
	planMaxOutputTokens = 4096
	maxRawPlanLog       = 2000
)

func buildPlanUserPrompt(userIdea, imageStyle string) string {
	if imageStyle == "" {
		imageStyle = models.DefaultImageStyle
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here is the user's story idea: %q\n", userIdea)
	fmt.Fprintf(&sb, "The visual style for the images should be: %q\n\n", imageStyle)
	sb.WriteString("Now, generate the complete JSON story plan according to the principles I provided.")
	return sb.String()
}

// parsePlan decodes a model answer into a StoryPlan. Both top-level keys must
// be present, counts must line up, and when sceneCount > 0 the plan must have
// exactly that many scenes.
func parsePlan(raw string, sceneCount int) (*models.StoryPlan, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", models.ErrPlanGeneration)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object: %w", models.ErrPlanGeneration, err)
	}
	var missing []string
	for _, k := range []string{"story_script", "image_prompts"} {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: response is missing required keys: %s", models.ErrPlanGeneration, strings.Join(missing, ", "))
	}

	var plan models.StoryPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: malformed plan: %w", models.ErrPlanGeneration, err)
	}

	for i := range plan.Scenes {
		plan.Scenes[i].Text = strings.TrimSpace(plan.Scenes[i].Text)
		if plan.Scenes[i].Text == "" {
			return nil, fmt.Errorf("%w: scene %d has no text", models.ErrPlanGeneration, i+1)
		}
		if plan.Scenes[i].Index == 0 {
			plan.Scenes[i].Index = i + 1
		}
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrPlanGeneration, err)
	}
	if sceneCount > 0 && len(plan.Scenes) != sceneCount {
		return nil, fmt.Errorf("%w: expected %d scenes, got %d", models.ErrPlanGeneration, sceneCount, len(plan.Scenes))
	}

	return &plan, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
