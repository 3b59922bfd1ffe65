package models

import (
	"fmt"
	"time"
)

// Enums
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type Workflow string

const (
	WorkflowAutomated Workflow = "automated"
	WorkflowManual    Workflow = "manual"
)

// Stage labels reported while a job moves through its workflow.
const (
	StageAutoQueued    = "0/5: Job queued..."
	StageAutoPlanning  = "1/5: Generating story plan..."
	StageAutoImages    = "2/5: Generating images..."
	StageAutoCompiling = "3/5: Compiling video..."
	StageAutoUploading = "4/5: Uploading video..."
	StageAutoDone      = "5/5: Done!"

	StageManualQueued    = "0/2: Job queued..."
	StageManualCompiling = "1/2: Compiling video..."
	StageManualDone      = "2/2: Done!"
)

// Request defaults applied when the client omits a field.
const (
	DefaultAgeGroup        = "5-7"
	DefaultVoiceName       = "en-US-Wavenet-C"
	DefaultMusicFilename   = "calm.mp3"
	DefaultAspectRatio     = "9:16"
	DefaultMusicVolume     = 0.3
	DefaultTransitionStyle = "fade"
	DefaultImageStyle      = "3D animated movie style"

	// MusicNone disables the background track.
	MusicNone = "none"
)

// transitionStyles are the xfade transitions a request may name. The value
// is placed into an ffmpeg filter graph, so nothing outside this set is
// accepted.
var transitionStyles = map[string]bool{
	"fade":        true,
	"fadeblack":   true,
	"fadewhite":   true,
	"dissolve":    true,
	"wipeleft":    true,
	"wiperight":   true,
	"wipeup":      true,
	"wipedown":    true,
	"slideleft":   true,
	"slideright":  true,
	"slideup":     true,
	"slidedown":   true,
	"circleopen":  true,
	"circleclose": true,
	"radial":      true,
	"pixelize":    true,
}

// ValidateTransition rejects transition names ffmpeg's xfade does not know.
func ValidateTransition(name string) error {
	if !transitionStyles[name] {
		return fmt.Errorf("%w: unknown transition_style %q", ErrInvalidInput, name)
	}
	return nil
}

// Models

// Scene is one narrated unit of a story. Index is 1-based when supplied by a planner.
type Scene struct {
	Index   int    `json:"scene"`
	Text    string `json:"text"`
	Emotion string `json:"emotion"`
}

// StoryPlan pairs the narration script with one image prompt per scene.
type StoryPlan struct {
	Scenes       []Scene  `json:"story_script"`
	ImagePrompts []string `json:"image_prompts"`
}

// Validate checks that the plan is non-empty and index-aligned.
func (p *StoryPlan) Validate() error {
	if len(p.Scenes) == 0 {
		return fmt.Errorf("%w: plan has no scenes", ErrInvalidInput)
	}
	if len(p.ImagePrompts) == 0 {
		return fmt.Errorf("%w: plan has no image prompts", ErrInvalidInput)
	}
	if len(p.Scenes) != len(p.ImagePrompts) {
		return fmt.Errorf("%w: plan has %d scenes but %d image prompts", ErrInvalidInput, len(p.Scenes), len(p.ImagePrompts))
	}
	return nil
}

// Job is the pollable progress record of one video request.
type Job struct {
	ID        string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	StoryText string    `json:"story_text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobUpdate describes a status transition. Empty string fields leave the
// stored value untouched.
type JobUpdate struct {
	Status    JobStatus
	Stage     string
	Error     string
	VideoURL  string
	StoryText string
}

// Apply merges u into j and stamps UpdatedAt.
func (u JobUpdate) Apply(j *Job, now time.Time) {
	if u.Status != "" {
		j.Status = u.Status
	}
	if u.Stage != "" {
		j.Stage = u.Stage
	}
	if u.Error != "" {
		j.Error = u.Error
	}
	if u.VideoURL != "" {
		j.VideoURL = u.VideoURL
	}
	if u.StoryText != "" {
		j.StoryText = u.StoryText
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
}

// RenderRequest is everything the video assembler needs for one render.
// ImagePaths[i] illustrates Script[i].
type RenderRequest struct {
	Script          []Scene
	ImagePaths      []string
	VoiceID         string
	MusicFilename   string
	AspectRatio     string
	MusicVolume     float64
	TransitionStyle string
	OutputName      string
}

// Validate checks index alignment before any media work starts.
func (r *RenderRequest) Validate() error {
	if len(r.Script) == 0 {
		return fmt.Errorf("%w: script is empty", ErrInvalidInput)
	}
	if len(r.ImagePaths) != len(r.Script) {
		return fmt.Errorf("%w: got %d images for %d scenes", ErrInvalidInput, len(r.ImagePaths), len(r.Script))
	}
	if r.OutputName == "" {
		return fmt.Errorf("%w: output name is required", ErrInvalidInput)
	}
	return nil
}

// API request types

type CreateVideoRequest struct {
	UserIdea        string   `json:"user_idea"`
	AgeGroup        string   `json:"age_group"`
	VoiceName       string   `json:"voice_name"`
	MusicFilename   string   `json:"music_filename"`
	AspectRatio     string   `json:"aspect_ratio"`
	MusicVolume     *float64 `json:"music_volume,omitempty"`
	TransitionStyle string   `json:"transition_style"`
	ImageStyle      string   `json:"image_style"`
}

// ApplyDefaults fills omitted fields.
func (r *CreateVideoRequest) ApplyDefaults() {
	if r.AgeGroup == "" {
		r.AgeGroup = DefaultAgeGroup
	}
	if r.ImageStyle == "" {
		r.ImageStyle = DefaultImageStyle
	}
	r.VoiceName, r.MusicFilename, r.AspectRatio, r.TransitionStyle = renderDefaults(
		r.VoiceName, r.MusicFilename, r.AspectRatio, r.TransitionStyle)
	if r.MusicVolume == nil {
		v := DefaultMusicVolume
		r.MusicVolume = &v
	}
}

type GenerateScriptRequest struct {
	UserIdea   string `json:"user_idea"`
	AgeGroup   string `json:"age_group"`
	ImageStyle string `json:"image_style"`
}

type CreateVideoResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// Queue payloads

// Task is the unit of background work handed from the API to the worker pool.
type Task struct {
	JobID    string        `json:"job_id"`
	Workflow Workflow      `json:"workflow"`
	Auto     *AutoParams   `json:"auto,omitempty"`
	Manual   *ManualParams `json:"manual,omitempty"`
}

type AutoParams struct {
	UserIdea        string  `json:"user_idea"`
	AgeGroup        string  `json:"age_group"`
	ImageStyle      string  `json:"image_style"`
	VoiceName       string  `json:"voice_name"`
	MusicFilename   string  `json:"music_filename"`
	AspectRatio     string  `json:"aspect_ratio"`
	MusicVolume     float64 `json:"music_volume"`
	TransitionStyle string  `json:"transition_style"`
}

type ManualParams struct {
	Script          []Scene  `json:"script"`
	ImagePaths      []string `json:"image_paths"`
	VoiceName       string   `json:"voice_name"`
	MusicFilename   string   `json:"music_filename"`
	AspectRatio     string   `json:"aspect_ratio"`
	MusicVolume     float64  `json:"music_volume"`
	TransitionStyle string   `json:"transition_style"`
}

// ApplyDefaults fills omitted render options.
func (p *ManualParams) ApplyDefaults() {
	p.VoiceName, p.MusicFilename, p.AspectRatio, p.TransitionStyle = renderDefaults(
		p.VoiceName, p.MusicFilename, p.AspectRatio, p.TransitionStyle)
}

func renderDefaults(voice, music, aspect, transition string) (string, string, string, string) {
	if voice == "" {
		voice = DefaultVoiceName
	}
	if music == "" {
		music = DefaultMusicFilename
	}
	if aspect == "" {
		aspect = DefaultAspectRatio
	}
	if transition == "" {
		transition = DefaultTransitionStyle
	}
	return voice, music, aspect, transition
}
