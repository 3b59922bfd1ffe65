package services

import (
	"strings"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
)

func TestSceneSSMLEmotions(t *testing.T) {
	tests := []struct {
		emotion string
		want    string
	}{
		{"whisper", `<prosody rate="slow" pitch="-2st" volume="soft">hi</prosody><break time="700ms"/>`},
		{"Whispering", `<prosody rate="slow" pitch="-2st" volume="soft">hi</prosody><break time="700ms"/>`},
		{"excited", `<emphasis level="strong"><prosody rate="fast" pitch="+2st" volume="loud">hi</prosody></emphasis><break time="700ms"/>`},
		{"angry", `<prosody rate="medium" pitch="-1st" volume="x-loud">hi</prosody><break time="700ms"/>`},
		{"sleepy", `<prosody rate="x-slow" pitch="-2st" volume="soft">hi</prosody><break time="1000ms"/>`},
		{"HAPPY", `<prosody rate="medium" pitch="+1st">hi</prosody><break time="700ms"/>`},
		{"sad", `<prosody rate="slow" pitch="-1st">hi</prosody><break time="700ms"/>`},
		{"mysterious", `<prosody rate="slow" volume="medium">hi</prosody><break time="700ms"/>`},
		{"", `<p>hi</p><break time="700ms"/>`},
		{"bewildered", `<p>hi</p><break time="700ms"/>`},
	}

	for _, tt := range tests {
		got := SceneSSML(models.Scene{Text: "hi", Emotion: tt.emotion})
		if got != tt.want {
			t.Errorf("emotion %q:\n got %s\nwant %s", tt.emotion, got, tt.want)
		}
	}
}

func TestBuildSSMLEscapesAndOrders(t *testing.T) {
	script := []models.Scene{
		{Index: 1, Text: "Tom & Jerry <run>", Emotion: "happy"},
		{Index: 2, Text: "The end.", Emotion: "sad"},
	}

	doc := BuildSSML(script)

	if !strings.HasPrefix(doc, "<speak>") || !strings.HasSuffix(doc, "</speak>") {
		t.Fatalf("expected speak envelope, got %s", doc)
	}
	if strings.Contains(doc, "<run>") {
		t.Errorf("expected user markup to be escaped: %s", doc)
	}
	if !strings.Contains(doc, "Tom &amp; Jerry &lt;run&gt;") {
		t.Errorf("expected escaped text in %s", doc)
	}

	first := strings.Index(doc, "Tom")
	second := strings.Index(doc, "The end.")
	if first < 0 || second < 0 || first > second {
		t.Errorf("expected scene order to be preserved: %s", doc)
	}
	if strings.Count(doc, "<speak>") != 1 {
		t.Errorf("expected a single envelope: %s", doc)
	}
}

func TestVoiceLanguageCode(t *testing.T) {
	tests := map[string]string{
		"en-US-Wavenet-C":  "en-US",
		"th-TH-Standard-A": "th-TH",
		"en":               "en",
	}

	for voice, want := range tests {
		if got := VoiceLanguageCode(voice); got != want {
			t.Errorf("VoiceLanguageCode(%q) = %q, want %q", voice, got, want)
		}
	}
}
