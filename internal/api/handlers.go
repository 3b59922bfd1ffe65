package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/storyreel/internal/logging"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/status"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScriptGenerator produces a story plan synchronously.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, ageGroup, userIdea, imageStyle string) (*models.StoryPlan, error)
}

const (
	maxMultipartMemory = 32 << 20
	lockRetryAfter     = "1"
	defaultImageExt    = ".png"
)

type Handler struct {
	status     status.Store
	queue      queue.Queue
	scripts    ScriptGenerator
	uploadsDir string
	logger     zerolog.Logger
}

func NewHandler(store status.Store, q queue.Queue, scripts ScriptGenerator, uploadsDir string, logger zerolog.Logger) *Handler {
	return &Handler{
		status:     store,
		queue:      q,
		scripts:    scripts,
		uploadsDir: uploadsDir,
		logger:     logging.Component(logger, "api"),
	}
}

// CreateVideo handles POST /api/agent/create-video
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.CreateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserIdea) == "" {
		respondError(w, http.StatusBadRequest, "user_idea is required")
		return
	}
	req.ApplyDefaults()
	if err := models.ValidateTransition(req.TransitionStyle); err != nil {
		h.respondErr(w, err)
		return
	}

	jobID := uuid.NewString()
	task := &models.Task{
		JobID:    jobID,
		Workflow: models.WorkflowAutomated,
		Auto: &models.AutoParams{
			UserIdea:        req.UserIdea,
			AgeGroup:        req.AgeGroup,
			ImageStyle:      req.ImageStyle,
			VoiceName:       req.VoiceName,
			MusicFilename:   req.MusicFilename,
			AspectRatio:     req.AspectRatio,
			MusicVolume:     *req.MusicVolume,
			TransitionStyle: req.TransitionStyle,
		},
	}

	if err := h.startJob(r.Context(), task, models.StageAutoQueued); err != nil {
		h.respondErr(w, fmt.Errorf("failed to start agent job: %w", err))
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateVideoResponse{
		Message: "Video creation process started.",
		JobID:   jobID,
	})
}

// GetJobStatus handles GET /api/jobs/{job_id}/status
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := h.status.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Job ID not found.")
			return
		}
		h.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// GenerateScript handles POST /api/manual/generate-script
func (h *Handler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserIdea) == "" {
		respondError(w, http.StatusBadRequest, "user_idea is required")
		return
	}
	if req.AgeGroup == "" {
		req.AgeGroup = models.DefaultAgeGroup
	}
	if req.ImageStyle == "" {
		req.ImageStyle = models.DefaultImageStyle
	}

	plan, err := h.scripts.GenerateScript(r.Context(), req.AgeGroup, req.UserIdea, req.ImageStyle)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// CompileVideo handles POST /api/manual/compile-video (multipart form).
// The script and image count are checked before anything is queued.
func (h *Handler) CompileVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	script, err := parseScript(r.FormValue("story_script_json"))
	if err != nil {
		h.respondErr(w, err)
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) != len(script) {
		h.respondErr(w, fmt.Errorf("%w: got %d images for %d scenes", models.ErrInvalidInput, len(files), len(script)))
		return
	}

	musicVolume := models.DefaultMusicVolume
	if v := r.FormValue("music_volume"); v != "" {
		musicVolume, err = strconv.ParseFloat(v, 64)
		if err != nil || musicVolume < 0 {
			respondError(w, http.StatusBadRequest, "music_volume must be a non-negative number")
			return
		}
	}

	transition := r.FormValue("transition_style")
	if transition == "" {
		transition = models.DefaultTransitionStyle
	}
	if err := models.ValidateTransition(transition); err != nil {
		h.respondErr(w, err)
		return
	}

	jobID := uuid.NewString()
	imagePaths, err := h.saveImages(jobID, files)
	if err != nil {
		os.RemoveAll(filepath.Join(h.uploadsDir, jobID))
		h.respondErr(w, err)
		return
	}

	task := &models.Task{
		JobID:    jobID,
		Workflow: models.WorkflowManual,
		Manual: &models.ManualParams{
			Script:          script,
			ImagePaths:      imagePaths,
			VoiceName:       r.FormValue("voice_name"),
			MusicFilename:   r.FormValue("music_filename"),
			AspectRatio:     r.FormValue("aspect_ratio"),
			MusicVolume:     musicVolume,
			TransitionStyle: transition,
		},
	}
	task.Manual.ApplyDefaults()

	if err := h.startJob(r.Context(), task, models.StageManualQueued); err != nil {
		os.RemoveAll(filepath.Join(h.uploadsDir, jobID))
		h.respondErr(w, fmt.Errorf("failed to start manual job: %w", err))
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateVideoResponse{
		Message: "Manual video compilation started.",
		JobID:   jobID,
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startJob records the job as pending and hands it to the queue. A job that
// could not be queued is marked failed so pollers do not wait on it forever.
func (h *Handler) startJob(ctx context.Context, task *models.Task, stage string) error {
	if err := h.status.Update(ctx, task.JobID, models.JobUpdate{
		Status: models.JobStatusPending,
		Stage:  stage,
	}); err != nil {
		return err
	}

	if err := h.queue.Enqueue(ctx, task); err != nil {
		h.logger.Error().Err(err).Str("job_id", task.JobID).Msg("failed to enqueue job")
		if uerr := h.status.Update(ctx, task.JobID, models.JobUpdate{
			Status: models.JobStatusFailed,
			Error:  "failed to enqueue job: " + err.Error(),
		}); uerr != nil {
			h.logger.Error().Err(uerr).Str("job_id", task.JobID).Msg("failed to record enqueue failure")
		}
		return err
	}

	h.logger.Info().Str("job_id", task.JobID).Str("workflow", string(task.Workflow)).Msg("job queued")
	return nil
}

// parseScript decodes the caller's script and numbers scenes that came
// without an index.
func parseScript(raw string) ([]models.Scene, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: story_script_json is required", models.ErrInvalidInput)
	}

	var script []models.Scene
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON format for story script: %w", models.ErrInvalidInput, err)
	}
	if len(script) == 0 {
		return nil, fmt.Errorf("%w: story script is empty", models.ErrInvalidInput)
	}

	for i := range script {
		script[i].Text = strings.TrimSpace(script[i].Text)
		if script[i].Text == "" {
			return nil, fmt.Errorf("%w: scene %d has no text", models.ErrInvalidInput, i+1)
		}
		if script[i].Index == 0 {
			script[i].Index = i + 1
		}
	}
	return script, nil
}

// saveImages writes uploads to UPLOADS_DIR/<job>/image_<i><ext> in upload order.
func (h *Handler) saveImages(jobID string, files []*multipart.FileHeader) ([]string, error) {
	dir := filepath.Join(h.uploadsDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	paths := make([]string, 0, len(files))
	for i, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext == "" {
			ext = defaultImageExt
		}
		dst := filepath.Join(dir, fmt.Sprintf("image_%d%s", i, ext))
		if err := saveUpload(fh, dst); err != nil {
			return nil, fmt.Errorf("failed to save image %d: %w", i, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// respondErr maps an error kind to a status code.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, status.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, status.ErrLockTimeout):
		w.Header().Set("Retry-After", lockRetryAfter)
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}
