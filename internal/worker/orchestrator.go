package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/bobarin/storyreel/internal/logging"
	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/status"
	"github.com/bobarin/storyreel/internal/storage"
	"github.com/rs/zerolog"
)

// ImageBatcher renders one image per prompt into dir, in prompt order.
type ImageBatcher interface {
	GenerateAll(ctx context.Context, prompts []string, aspectRatio, dir string) ([]string, error)
}

// Renderer assembles the final video for a render request.
type Renderer interface {
	Assemble(ctx context.Context, req models.RenderRequest) (string, error)
}

// Deps are the collaborators a workflow needs. All are injected once at
// startup.
type Deps struct {
	Planner  services.StoryPlanner
	Personas *services.PersonaRegistry
	Images   ImageBatcher
	Renderer Renderer
	Uploader storage.Uploader
	Status   status.Store
}

type Options struct {
	UploadsDir        string
	ContentDir        string
	AssetsDir         string
	UploadDestination string
	BypassRender      bool
}

const (
	placeholderVideo = "placeholder.mp4"

	manualErrorPrefix = "Manual compilation error: "

	statusUpdateAttempts = 3
)

// Orchestrator runs the automated and manual video workflows and reports
// progress to the status store.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

func NewOrchestrator(deps Deps, opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logging.Component(logger, "orchestrator"),
	}
}

// Process runs the workflow a task names. The returned error has already been
// recorded on the job.
func (o *Orchestrator) Process(ctx context.Context, task *models.Task) (err error) {
	logger := logging.ForJob(o.logger, task.JobID, string(task.Workflow))
	done := metrics.JobStarted()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("workflow panicked")
			err = fmt.Errorf("unexpected failure: %v", r)
			o.markFailed(ctx, task, err, logger)
		}

		outcome := models.JobStatusCompleted
		if err != nil {
			outcome = models.JobStatusFailed
		}
		metrics.IncJobFinished(string(task.Workflow), string(outcome))
		done()
		logger.Info().Str("outcome", string(outcome)).Dur("elapsed", time.Since(started)).Msg("workflow finished")
	}()

	switch {
	case task.Workflow == models.WorkflowAutomated && task.Auto != nil:
		return o.RunAutomated(ctx, task.JobID, *task.Auto)
	case task.Workflow == models.WorkflowManual && task.Manual != nil:
		return o.RunManual(ctx, task.JobID, *task.Manual)
	}

	err = fmt.Errorf("%w: %q task has no parameters", models.ErrInvalidInput, task.Workflow)
	o.markFailed(ctx, task, err, logger)
	return err
}

// GenerateScript produces a plan without rendering anything.
func (o *Orchestrator) GenerateScript(ctx context.Context, ageGroup, userIdea, imageStyle string) (*models.StoryPlan, error) {
	if o.deps.Planner == nil {
		return nil, fmt.Errorf("%w: no plan generator configured", models.ErrPlanGeneration)
	}
	persona := o.deps.Personas.ForBracket(ageGroup)

	plan, err := o.deps.Planner.GeneratePlan(ctx, persona, userIdea, imageStyle)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrPlanGeneration, err)
	}
	return plan, nil
}

// RunAutomated is plan -> images -> video -> upload.
func (o *Orchestrator) RunAutomated(ctx context.Context, jobID string, p models.AutoParams) (err error) {
	logger := logging.ForJob(o.logger, jobID, string(models.WorkflowAutomated))
	defer logging.TraceDuration(logger, "automated workflow")()
	imageDir := o.jobUploadDir(jobID)

	defer o.cleanupDir(imageDir, logger)
	defer func() {
		if err != nil {
			logger.Error().Err(err).Msg("automated workflow failed")
			o.setStatus(ctx, jobID, models.JobUpdate{Status: models.JobStatusFailed, Error: err.Error()}, logger)
		}
	}()

	if err := o.setStatus(ctx, jobID, processing(models.StageAutoPlanning), logger); err != nil {
		return err
	}
	plan, err := o.GenerateScript(ctx, p.AgeGroup, p.UserIdea, p.ImageStyle)
	if err != nil {
		return err
	}
	logger.Info().Int("scenes", len(plan.Scenes)).Msg("story plan generated")

	if err := o.setStatus(ctx, jobID, processing(models.StageAutoImages), logger); err != nil {
		return err
	}
	imagePaths, err := o.deps.Images.GenerateAll(ctx, plan.ImagePrompts, p.AspectRatio, imageDir)
	if err != nil {
		return err
	}
	logger.Info().Int("images", len(imagePaths)).Msg("all images generated")

	if err := o.setStatus(ctx, jobID, processing(models.StageAutoCompiling), logger); err != nil {
		return err
	}
	videoPath, err := o.render(ctx, models.RenderRequest{
		Script:          plan.Scenes,
		ImagePaths:      imagePaths,
		VoiceID:         p.VoiceName,
		MusicFilename:   p.MusicFilename,
		AspectRatio:     p.AspectRatio,
		MusicVolume:     p.MusicVolume,
		TransitionStyle: p.TransitionStyle,
		OutputName:      jobID,
	}, logger)
	if err != nil {
		return err
	}

	if err := o.setStatus(ctx, jobID, processing(models.StageAutoUploading), logger); err != nil {
		return err
	}
	if o.deps.Uploader == nil {
		return fmt.Errorf("%w: no uploader configured", models.ErrUpload)
	}
	link, err := o.deps.Uploader.Upload(ctx, videoPath, o.opts.UploadDestination)
	if err != nil {
		return err
	}

	if err := o.setStatus(ctx, jobID, models.JobUpdate{
		Status:    models.JobStatusCompleted,
		Stage:     models.StageAutoDone,
		VideoURL:  link,
		StoryText: services.StoryText(plan.Scenes),
	}, logger); err != nil {
		return err
	}
	logger.Info().Str("video_url", link).Msg("workflow completed")
	return nil
}

// RunManual renders a caller-supplied script and images and serves the
// result from the local content route.
func (o *Orchestrator) RunManual(ctx context.Context, jobID string, p models.ManualParams) (err error) {
	logger := logging.ForJob(o.logger, jobID, string(models.WorkflowManual))
	defer logging.TraceDuration(logger, "manual workflow")()

	defer o.cleanupDir(o.jobUploadDir(jobID), logger)
	defer func() {
		if err != nil {
			logger.Error().Err(err).Msg("manual workflow failed")
			o.setStatus(ctx, jobID, models.JobUpdate{Status: models.JobStatusFailed, Error: manualErrorPrefix + err.Error()}, logger)
		}
	}()

	p.ApplyDefaults()

	if err := o.setStatus(ctx, jobID, processing(models.StageManualCompiling), logger); err != nil {
		return err
	}
	if _, err := o.render(ctx, models.RenderRequest{
		Script:          p.Script,
		ImagePaths:      p.ImagePaths,
		VoiceID:         p.VoiceName,
		MusicFilename:   p.MusicFilename,
		AspectRatio:     p.AspectRatio,
		MusicVolume:     p.MusicVolume,
		TransitionStyle: p.TransitionStyle,
		OutputName:      jobID,
	}, logger); err != nil {
		return err
	}

	videoURL := ContentURL(jobID)
	if err := o.setStatus(ctx, jobID, models.JobUpdate{
		Status:    models.JobStatusCompleted,
		Stage:     models.StageManualDone,
		VideoURL:  videoURL,
		StoryText: services.StoryText(p.Script),
	}, logger); err != nil {
		return err
	}
	logger.Info().Str("video_url", videoURL).Msg("workflow completed")
	return nil
}

// ContentURL is the local route a finished video is served from.
func ContentURL(jobID string) string {
	return "/content/" + jobID + ".mp4"
}

func processing(stage string) models.JobUpdate {
	return models.JobUpdate{Status: models.JobStatusProcessing, Stage: stage}
}

// render runs the assembler, or copies the placeholder in bypass mode, and
// checks that a video file came out.
func (o *Orchestrator) render(ctx context.Context, req models.RenderRequest, logger zerolog.Logger) (string, error) {
	var (
		path string
		err  error
	)
	if o.opts.BypassRender {
		logger.Warn().Msg("bypassing video creation")
		path, err = o.copyPlaceholder(req.OutputName)
	} else {
		if err := req.Validate(); err != nil {
			return "", err
		}
		path, err = o.deps.Renderer.Assemble(ctx, req)
	}
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: video step produced no file", models.ErrVideoRender)
	}
	logger.Info().Str("path", path).Msg("video step complete")
	return path, nil
}

func (o *Orchestrator) copyPlaceholder(outputName string) (string, error) {
	src := filepath.Join(o.opts.AssetsDir, placeholderVideo)
	dst := filepath.Join(o.opts.ContentDir, outputName+".mp4")

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%w: bypass failed, %s not found: %w", models.ErrVideoRender, placeholderVideo, err)
	}
	defer in.Close()

	if err := os.MkdirAll(o.opts.ContentDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("%w: failed to copy placeholder: %w", models.ErrVideoRender, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrVideoRender, err)
	}
	return dst, nil
}

// setStatus retries lock timeouts a few times before giving up.
func (o *Orchestrator) setStatus(ctx context.Context, jobID string, update models.JobUpdate, logger zerolog.Logger) error {
	var err error
	for attempt := 1; attempt <= statusUpdateAttempts; attempt++ {
		err = o.deps.Status.Update(ctx, jobID, update)
		if err == nil || !errors.Is(err, status.ErrLockTimeout) {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("status lock busy")
	}
	if err != nil {
		logger.Error().Err(err).Str("stage", update.Stage).Msg("failed to update job status")
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, task *models.Task, cause error, logger zerolog.Logger) {
	msg := cause.Error()
	if task.Workflow == models.WorkflowManual {
		msg = manualErrorPrefix + msg
	}
	o.setStatus(ctx, task.JobID, models.JobUpdate{Status: models.JobStatusFailed, Error: msg}, logger)
}

func (o *Orchestrator) jobUploadDir(jobID string) string {
	return filepath.Join(o.opts.UploadsDir, jobID)
}

func (o *Orchestrator) cleanupDir(dir string, logger zerolog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove job upload dir")
		return
	}
	logger.Debug().Str("dir", dir).Msg("cleanup complete")
}
