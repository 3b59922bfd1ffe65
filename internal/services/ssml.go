package services

import (
	"fmt"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

// ---------------------------------------------------------------------------
// Narration markup (SSML)
//
// Each scene becomes one prosody-tagged fragment chosen by its emotion; the
// fragments are joined in scene order inside a single <speak> envelope.
// ---------------------------------------------------------------------------

const (
	ssmlBreak     = `<break time="700ms"/>`
	ssmlLongBreak = `<break time="1000ms"/>`
)

// Emotion names recognized by the markup builder
const (
	EmotionWhisper    = "whisper"
	EmotionExcited    = "excited"
	EmotionAngry      = "angry"
	EmotionSleepy     = "sleepy"
	EmotionHappy      = "happy"
	EmotionSad        = "sad"
	EmotionMysterious = "mysterious"
	EmotionDefault    = "default"
)

// Each template has exactly one %s for the escaped scene text
var emotionTemplates = map[string]string{
	EmotionWhisper:    `<prosody rate="slow" pitch="-2st" volume="soft">%s</prosody>` + ssmlBreak,
	EmotionExcited:    `<emphasis level="strong"><prosody rate="fast" pitch="+2st" volume="loud">%s</prosody></emphasis>` + ssmlBreak,
	EmotionAngry:      `<prosody rate="medium" pitch="-1st" volume="x-loud">%s</prosody>` + ssmlBreak,
	EmotionSleepy:     `<prosody rate="x-slow" pitch="-2st" volume="soft">%s</prosody>` + ssmlLongBreak,
	EmotionHappy:      `<prosody rate="medium" pitch="+1st">%s</prosody>` + ssmlBreak,
	EmotionSad:        `<prosody rate="slow" pitch="-1st">%s</prosody>` + ssmlBreak,
	EmotionMysterious: `<prosody rate="slow" volume="medium">%s</prosody>` + ssmlBreak,
	EmotionDefault:    `<p>%s</p>` + ssmlBreak,
}

// Planners sometimes use adjective forms
var emotionAliases = map[string]string{
	"whispering": EmotionWhisper,
	"whispered":  EmotionWhisper,
}

var ssmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeSSML escapes text for safe insertion into markup.
func EscapeSSML(text string) string {
	return ssmlEscaper.Replace(text)
}

// NormalizeEmotion maps a free-form emotion to a known template key.
func NormalizeEmotion(emotion string) string {
	e := strings.ToLower(strings.TrimSpace(emotion))
	if alias, ok := emotionAliases[e]; ok {
		e = alias
	}
	if _, ok := emotionTemplates[e]; !ok {
		return EmotionDefault
	}
	return e
}

// SceneSSML returns the markup fragment for one scene.
func SceneSSML(scene models.Scene) string {
	tmpl := emotionTemplates[NormalizeEmotion(scene.Emotion)]
	return fmt.Sprintf(tmpl, EscapeSSML(scene.Text))
}

// BuildSSML wraps every scene fragment, in order, in a <speak> document.
func BuildSSML(script []models.Scene) string {
	var sb strings.Builder
	sb.WriteString("<speak>")
	for _, scene := range script {
		sb.WriteString(SceneSSML(scene))
		sb.WriteString("\n")
	}
	sb.WriteString("</speak>")
	return sb.String()
}

// VoiceLanguageCode derives the BCP-47 language from a voice name,
// e.g. "en-US-Wavenet-C" -> "en-US".
func VoiceLanguageCode(voiceName string) string {
	parts := strings.Split(voiceName, "-")
	if len(parts) < 2 {
		return voiceName
	}
	return parts[0] + "-" + parts[1]
}
