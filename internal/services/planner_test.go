package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
)

const twoScenePlan = `{
  "story_script": [
    {"scene": 1, "text": "Pip the fox finds a red ball.", "emotion": "happy"},
    {"scene": 2, "text": "Can you count the balls?", "emotion": "excited"}
  ],
  "image_prompts": ["a small orange fox with a red ball", "a small orange fox with three balls"]
}`

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan(twoScenePlan, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Scenes) != 2 || plan.Scenes[1].Index != 2 || plan.Scenes[1].Emotion != "excited" {
		t.Errorf("unexpected scenes %+v", plan.Scenes)
	}
	if plan.ImagePrompts[0] != "a small orange fox with a red ball" {
		t.Errorf("unexpected prompts %v", plan.ImagePrompts)
	}
}

func TestParsePlanStripsCodeFence(t *testing.T) {
	if _, err := parsePlan("```json\n"+twoScenePlan+"\n```", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParsePlanFillsMissingIndexes(t *testing.T) {
	plan, err := parsePlan(`{"story_script":[{"text":"a"},{"text":"b"}],"image_prompts":["x","y"]}`, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Scenes[0].Index != 1 || plan.Scenes[1].Index != 2 {
		t.Errorf("expected 1-based indexes, got %+v", plan.Scenes)
	}
}

func TestParsePlanFailures(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		sceneCount int
		want       string
	}{
		{"empty", "  ", 0, "empty response"},
		{"not json", "Once upon a time", 0, "not a JSON object"},
		{"missing prompts", `{"story_script":[{"scene":1,"text":"a"}]}`, 0, "image_prompts"},
		{"missing both", `{"scenes":[]}`, 0, "story_script, image_prompts"},
		{"count mismatch", `{"story_script":[{"text":"a"}],"image_prompts":["x","y"]}`, 0, "1 scenes but 2 image prompts"},
		{"blank scene", `{"story_script":[{"text":" "}],"image_prompts":["x"]}`, 0, "scene 1 has no text"},
		{"wrong persona count", twoScenePlan, 6, "expected 6 scenes, got 2"},
		{"wrong types", `{"story_script":"a","image_prompts":["x"]}`, 0, "malformed plan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePlan(tt.raw, tt.sceneCount)
			if !errors.Is(err, models.ErrPlanGeneration) {
				t.Fatalf("expected ErrPlanGeneration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestBuildPlanUserPrompt(t *testing.T) {
	p := buildPlanUserPrompt("a brave turtle", "")
	if !strings.Contains(p, `"a brave turtle"`) || !strings.Contains(p, models.DefaultImageStyle) {
		t.Errorf("unexpected prompt %q", p)
	}
}
