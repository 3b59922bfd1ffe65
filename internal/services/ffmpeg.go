package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// CommandRunner
// ---------------------------------------------------------------------------

// CommandRunner executes an external media tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, truncate(stderr.String(), 2000))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
	logger      zerolog.Logger
}

func NewFFmpegService(ffmpegPath, ffprobePath string, logger zerolog.Logger) *FFmpegService {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      execRunner{},
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
	}
}

// WithRunner swaps the command runner, e.g. for tests.
func (s *FFmpegService) WithRunner(r CommandRunner) *FFmpegService {
	s.runner = r
	return s
}

// ProbeDuration returns a media file's duration in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := s.runner.Run(ctx, s.ffprobePath, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(output)), err)
	}

	return durationSec, nil
}

// RenderSilentVideo encodes the animated, cross-faded, captioned visual track.
func (s *FFmpegService) RenderSilentVideo(ctx context.Context, plan VisualPlan, outputPath string) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	effects := make([]string, len(plan.Effects))
	for i, e := range plan.Effects {
		effects[i] = e.Name
	}

	s.logger.Info().
		Int("scenes", len(plan.ImagePaths)).
		Float64("scene_sec", plan.SceneSec).
		Str("transition", plan.Transition).
		Str("resolution", plan.Resolution.String()).
		Strs("effects", effects).
		Bool("subtitles", plan.SubtitlePath != "").
		Msg("rendering silent video")

	if _, err := s.runner.Run(ctx, s.ffmpegPath, BuildVisualArgs(plan, outputPath)...); err != nil {
		return fmt.Errorf("ffmpeg render silent video failed: %w", err)
	}

	return nil
}

// BuildAudioArgs returns the ffmpeg arguments for the final audio track. An
// empty musicPath re-encodes the narration alone.
func BuildAudioArgs(narrationPath, musicPath string, musicVolume, narrationSec float64, outputPath string) []string {
	if musicPath == "" {
		return []string{
			"-y",
			"-i", narrationPath,
			"-vn",
			"-c:a", "aac",
			outputPath,
		}
	}

	// [0:a] narration at weight 1, [1:a] music trimmed to the narration and
	// rebased to t=0; duration=first keeps the narration length
	filterComplex := fmt.Sprintf(
		"[1:a]atrim=duration=%s,asetpts=PTS-STARTPTS[bg];[0:a][bg]amix=inputs=2:duration=first:weights='1 %s'[aout]",
		formatSeconds(narrationSec),
		strconv.FormatFloat(musicVolume, 'f', -1, 64),
	)

	return []string{
		"-y",
		"-i", narrationPath,
		"-i", musicPath,
		"-filter_complex", filterComplex,
		"-map", "[aout]",
		"-c:a", "aac",
		outputPath,
	}
}

// RenderAudio produces the final audio track, mixing in music when given.
func (s *FFmpegService) RenderAudio(ctx context.Context, narrationPath, musicPath string, musicVolume, narrationSec float64, outputPath string) error {
	if musicPath == "" {
		s.logger.Info().Msg("no background music, re-encoding narration")
	} else {
		s.logger.Info().Str("music", musicPath).Float64("volume", musicVolume).Msg("mixing background music")
	}

	args := BuildAudioArgs(narrationPath, musicPath, musicVolume, narrationSec, outputPath)
	if _, err := s.runner.Run(ctx, s.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg render audio failed: %w", err)
	}

	return nil
}

// BuildMuxArgs combines video-only and audio-only inputs without re-encoding.
func BuildMuxArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "copy",
		"-shortest", // audio ends first; the visual track is padded past it
		outputPath,
	}
}

// Mux writes the final container.
func (s *FFmpegService) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if _, err := s.runner.Run(ctx, s.ffmpegPath, BuildMuxArgs(videoPath, audioPath, outputPath)...); err != nil {
		return fmt.Errorf("ffmpeg mux failed: %w", err)
	}
	return nil
}

// ResolveMusicPath finds the background track in musicDir. It returns "" when
// music is disabled or the file does not exist.
func ResolveMusicPath(musicDir, musicFilename string) string {
	name := strings.TrimSpace(musicFilename)
	if name == "" || strings.EqualFold(name, "none") {
		return ""
	}

	name = filepath.Base(name)
	if filepath.Ext(name) == "" {
		name += ".mp3"
	}

	path := filepath.Join(musicDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
