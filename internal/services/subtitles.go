package services

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

// ---------------------------------------------------------------------------
// SRT caption chunker
//
// Captions ignore scene boundaries: the whole narration is flattened into
// fixed-size word groups and the narration duration is split evenly across
// them. Scene display time is split evenly across scenes.
// ---------------------------------------------------------------------------

const (
	// Words shown per caption line
	wordsPerChunk = 6

	// Gap left between consecutive captions so they never overlap
	captionGap = 0.1

	// Shortest caption we ever emit
	minCaptionDuration = 0.1
)

// CaptionSegment is one numbered SRT entry. Start and End are seconds.
type CaptionSegment struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// SceneDuration returns how long each scene stays on screen.
func SceneDuration(narrationSec float64, sceneCount int) float64 {
	if sceneCount <= 0 {
		return 0
	}
	return narrationSec / float64(sceneCount)
}

// StoryText flattens the script into a single space-joined transcript.
func StoryText(script []models.Scene) string {
	parts := make([]string, 0, len(script))
	for _, scene := range script {
		parts = append(parts, scene.Text)
	}
	return strings.Join(parts, " ")
}

// BuildCaptionSegments splits the narration into evenly timed word groups.
// Returns nil when there is nothing to caption.
func BuildCaptionSegments(script []models.Scene, narrationSec float64, chunkSize int) []CaptionSegment {
	if len(script) == 0 || narrationSec <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = wordsPerChunk
	}

	words := strings.Fields(StoryText(script))
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	for i := 0; i < len(words); i += chunkSize {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}

	perChunk := narrationSec / float64(len(chunks))
	segments := make([]CaptionSegment, 0, len(chunks))

	for i, text := range chunks {
		start := float64(i) * perChunk
		next := float64(i+1) * perChunk
		end := next

		last := i == len(chunks)-1
		if last {
			end = narrationSec
		} else {
			end -= captionGap
		}

		if end <= start {
			// Very short chunks: floor the duration, but never run into the next caption
			end = start + minCaptionDuration
			if !last && end > next {
				end = next
			}
		}

		segments = append(segments, CaptionSegment{
			Index: i + 1,
			Start: start,
			End:   end,
			Text:  text,
		})
	}

	return segments
}

// FormatSRTTime renders seconds as HH:MM:SS,mmm.
func FormatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	totalMs := int64(math.Round(seconds * 1000))
	hours := totalMs / 3_600_000
	minutes := (totalMs % 3_600_000) / 60_000
	secs := (totalMs % 60_000) / 1000
	millis := totalMs % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// RenderSRT serializes segments into SRT text.
func RenderSRT(segments []CaptionSegment) string {
	var sb strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&sb, "%d\n", seg.Index)
		fmt.Fprintf(&sb, "%s --> %s\n", FormatSRTTime(seg.Start), FormatSRTTime(seg.End))
		fmt.Fprintf(&sb, "%s\n\n", seg.Text)
	}
	return sb.String()
}

// WriteSRTFile writes captions for the script to outputPath. It reports false,
// and writes nothing, when the script has no words.
func WriteSRTFile(script []models.Scene, narrationSec float64, outputPath string) (bool, error) {
	segments := BuildCaptionSegments(script, narrationSec, wordsPerChunk)
	if len(segments) == 0 {
		return false, nil
	}

	if err := os.WriteFile(outputPath, []byte(RenderSRT(segments)), 0644); err != nil {
		return false, fmt.Errorf("failed to write SRT subtitle file: %w", err)
	}

	return true, nil
}
