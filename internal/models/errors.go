package models

import "errors"

// Failure kinds. Components wrap the underlying cause with one of these so the
// orchestrator and HTTP layer can classify failures with errors.Is.
var (
	ErrPlanGeneration     = errors.New("plan generation failed")
	ErrImageGeneration    = errors.New("image generation failed")
	ErrNarrationSynthesis = errors.New("narration synthesis failed")
	ErrVideoRender        = errors.New("video render failed")
	ErrUpload             = errors.New("upload failed")
	ErrInvalidInput       = errors.New("invalid input")
)
