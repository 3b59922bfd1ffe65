package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
)

// AssemblyStep names a state of the render pipeline.
type AssemblyStep string

const (
	StepSynthesizingVoice   AssemblyStep = "synthesizing_voice"
	StepBuildingVisualTrack AssemblyStep = "building_visual_track"
	StepMixingAudio         AssemblyStep = "mixing_audio"
	StepMuxing              AssemblyStep = "muxing"
	StepDone                AssemblyStep = "done"
	StepFailed              AssemblyStep = "failed"
)

// Artifact names inside a render workspace
const (
	voiceFile      = "voice.mp3"
	subtitleFile   = "subtitles.srt"
	silentFile     = "silent_video.mp4"
	finalAudioFile = "final_audio.aac"
)

// VideoAssembler turns a script and its images into a narrated, captioned,
// music-mixed video. Every render gets its own workspace under tempRoot that
// is removed before Assemble returns.
type VideoAssembler struct {
	ffmpeg     *FFmpegService
	tts        NarrationSynthesizer
	musicDir   string
	outputDir  string
	tempRoot   string
	pickEffect func() ZoomEffect
	logger     zerolog.Logger
}

type AssemblerConfig struct {
	MusicDir  string
	OutputDir string
	TempRoot  string
}

func NewVideoAssembler(ffmpegSvc *FFmpegService, tts NarrationSynthesizer, cfg AssemblerConfig, logger zerolog.Logger) *VideoAssembler {
	return &VideoAssembler{
		ffmpeg:     ffmpegSvc,
		tts:        tts,
		musicDir:   cfg.MusicDir,
		outputDir:  cfg.OutputDir,
		tempRoot:   cfg.TempRoot,
		pickEffect: func() ZoomEffect { return RandomZoomEffect(nil) },
		logger:     logger.With().Str("component", "assembler").Logger(),
	}
}

// WithEffectPicker overrides the per-scene pan/zoom choice.
func (a *VideoAssembler) WithEffectPicker(pick func() ZoomEffect) *VideoAssembler {
	a.pickEffect = pick
	return a
}

// OutputPath is where the finished video for name is written.
func (a *VideoAssembler) OutputPath(name string) string {
	return filepath.Join(a.outputDir, name+".mp4")
}

// Assemble runs voice -> visual track -> audio mix -> mux and returns the
// final video path.
func (a *VideoAssembler) Assemble(ctx context.Context, req models.RenderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if a.tts == nil {
		return "", fmt.Errorf("%w: no narration client configured", models.ErrNarrationSynthesis)
	}

	logger := a.logger.With().Str("output", req.OutputName).Logger()

	if err := os.MkdirAll(a.tempRoot, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create temp root: %w", models.ErrVideoRender, err)
	}
	workspace, err := os.MkdirTemp(a.tempRoot, "render_"+req.OutputName+"_")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create workspace: %w", models.ErrVideoRender, err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn().Err(err).Str("workspace", workspace).Msg("failed to remove workspace")
			return
		}
		logger.Debug().Str("workspace", workspace).Msg("workspace removed")
	}()

	step := StepSynthesizingVoice
	defer func() {
		if step != StepDone {
			logger.Error().Str("step", string(step)).Msg("render failed")
		}
	}()

	// 1. Narration
	started := time.Now()
	voicePath := filepath.Join(workspace, voiceFile)
	narrationSec, err := a.synthesizeVoice(ctx, req, voicePath)
	metrics.ObserveRenderStep(string(step), started, err == nil)
	if err != nil {
		return "", err
	}
	logger.Info().Float64("narration_sec", narrationSec).Msg("narration ready")

	// 2. Silent visual track
	step = StepBuildingVisualTrack
	started = time.Now()
	silentPath := filepath.Join(workspace, silentFile)
	err = a.buildVisualTrack(ctx, req, narrationSec, workspace, silentPath)
	metrics.ObserveRenderStep(string(step), started, err == nil)
	if err != nil {
		return "", err
	}

	// 3. Final audio
	step = StepMixingAudio
	started = time.Now()
	audioPath := filepath.Join(workspace, finalAudioFile)
	musicPath := ResolveMusicPath(a.musicDir, req.MusicFilename)
	err = a.ffmpeg.RenderAudio(ctx, voicePath, musicPath, req.MusicVolume, narrationSec, audioPath)
	if err == nil {
		err = requireArtifact(audioPath)
	}
	metrics.ObserveRenderStep(string(step), started, err == nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}

	// 4. Mux
	step = StepMuxing
	started = time.Now()
	if err := os.MkdirAll(a.outputDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create output dir: %w", models.ErrVideoRender, err)
	}
	outputPath := a.OutputPath(req.OutputName)
	err = a.ffmpeg.Mux(ctx, silentPath, audioPath, outputPath)
	if err == nil {
		err = requireArtifact(outputPath)
	}
	metrics.ObserveRenderStep(string(step), started, err == nil)
	if err != nil {
		if rerr := os.Remove(outputPath); rerr != nil && !os.IsNotExist(rerr) {
			logger.Warn().Err(rerr).Str("path", outputPath).Msg("failed to remove partial video")
		}
		return "", fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}

	step = StepDone
	logger.Info().Str("path", outputPath).Msg("video assembled")
	return outputPath, nil
}

func (a *VideoAssembler) synthesizeVoice(ctx context.Context, req models.RenderRequest, voicePath string) (float64, error) {
	audio, err := a.tts.Synthesize(ctx, BuildSSML(req.Script), req.VoiceID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrNarrationSynthesis, err)
	}
	if len(audio) == 0 {
		return 0, fmt.Errorf("%w: no audio returned", models.ErrNarrationSynthesis)
	}
	if err := os.WriteFile(voicePath, audio, 0644); err != nil {
		return 0, fmt.Errorf("%w: failed to write narration: %w", models.ErrNarrationSynthesis, err)
	}

	duration, err := a.ffmpeg.ProbeDuration(ctx, voicePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrNarrationSynthesis, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%w: invalid narration duration %.3fs", models.ErrNarrationSynthesis, duration)
	}
	return duration, nil
}

func (a *VideoAssembler) buildVisualTrack(ctx context.Context, req models.RenderRequest, narrationSec float64, workspace, silentPath string) error {
	effects := make([]ZoomEffect, len(req.ImagePaths))
	for i := range effects {
		effects[i] = a.pickEffect()
	}

	plan := VisualPlan{
		ImagePaths:    req.ImagePaths,
		Effects:       effects,
		SceneSec:      SceneDuration(narrationSec, len(req.Script)),
		Transition:    req.TransitionStyle,
		TransitionSec: transitionDuration,
		Resolution:    ResolutionFor(req.AspectRatio),
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	srtPath := filepath.Join(workspace, subtitleFile)
	wrote, err := WriteSRTFile(req.Script, narrationSec, srtPath)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}
	if wrote {
		plan.SubtitlePath = srtPath
	}

	if err := a.ffmpeg.RenderSilentVideo(ctx, plan, silentPath); err != nil {
		return fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}
	if err := requireArtifact(silentPath); err != nil {
		return fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}
	return nil
}

// requireArtifact fails unless path is a non-empty regular file.
func requireArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing artifact %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("empty artifact %s", filepath.Base(path))
	}
	return nil
}
