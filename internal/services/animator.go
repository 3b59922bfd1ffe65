package services

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

// ---------------------------------------------------------------------------
// Scene animator: pan/zoom programs, resolution presets, xfade chaining
// ---------------------------------------------------------------------------

// Output / rendering constants
const (
	videoFPS = 24

	// Fixed cross-fade length between consecutive scenes
	transitionDuration = 1.0

	// Images are scaled to a canvas this much larger than the output so
	// pan/zoom never exposes an edge
	canvasScale = 1.2

	subtitleForceStyle = "FontName=Arial,FontSize=24,PrimaryColour=&HFFFFFF,BorderStyle=1,OutlineColour=&H000000,Outline=1,Shadow=0.5,Alignment=2"
)

// ZoomEffect is one zoompan program. Zoom stays within [1.0, 1.2].
type ZoomEffect struct {
	Name string
	Z    string
	X    string
	Y    string
}

const (
	centerX = "iw/2-(iw/zoom/2)"
	centerY = "ih/2-(ih/zoom/2)"
)

// ZoomEffects is the pool a random program is drawn from per scene
var ZoomEffects = []ZoomEffect{
	{Name: "zoom_in", Z: "min(zoom+0.0015,1.2)", X: centerX, Y: centerY},
	{Name: "zoom_out", Z: "max(1.2-0.0015*on,1.0)", X: centerX, Y: centerY},
	{Name: "top_left", Z: "1.2", X: "0", Y: "0"},
	{Name: "bottom_right", Z: "1.2", X: "iw-iw/zoom", Y: "ih-ih/zoom"},
}

// RandomZoomEffect picks a program uniformly. A nil rng uses the global source.
func RandomZoomEffect(rng *rand.Rand) ZoomEffect {
	if rng == nil {
		return ZoomEffects[rand.Intn(len(ZoomEffects))]
	}
	return ZoomEffects[rng.Intn(len(ZoomEffects))]
}

// Resolution is an output frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ResolutionFor maps an aspect ratio to its preset; anything unknown is 16:9.
func ResolutionFor(aspectRatio string) Resolution {
	switch strings.TrimSpace(aspectRatio) {
	case "9:16":
		return Resolution{Width: 720, Height: 1280}
	case "1:1":
		return Resolution{Width: 1080, Height: 1080}
	default:
		return Resolution{Width: 1280, Height: 720}
	}
}

// VisualPlan describes the silent visual track: one animated clip per image,
// joined by cross-fades, with optional burned-in captions.
type VisualPlan struct {
	ImagePaths    []string
	Effects       []ZoomEffect
	SceneSec      float64
	Transition    string
	TransitionSec float64
	Resolution    Resolution
	SubtitlePath  string
}

// Validate rejects plans whose offsets would go negative, whose effects
// do not line up with the images, or whose transition is not a known xfade.
func (p VisualPlan) Validate() error {
	if len(p.ImagePaths) == 0 {
		return fmt.Errorf("%w: no images to animate", models.ErrInvalidInput)
	}
	if len(p.Effects) != len(p.ImagePaths) {
		return fmt.Errorf("%w: %d effects for %d images", models.ErrInvalidInput, len(p.Effects), len(p.ImagePaths))
	}
	if p.SceneSec <= 0 {
		return fmt.Errorf("%w: scene duration must be positive, got %.3fs", models.ErrInvalidInput, p.SceneSec)
	}
	if err := models.ValidateTransition(p.Transition); err != nil {
		return err
	}
	if len(p.ImagePaths) > 1 && p.TransitionSec >= p.SceneSec {
		return fmt.Errorf("%w: scene duration %.3fs is not longer than transition %.3fs",
			models.ErrInvalidInput, p.SceneSec, p.TransitionSec)
	}
	return nil
}

// ClipFrames is the zoompan frame count per clip, rounded up so a clip is
// never shorter than its scene.
func (p VisualPlan) ClipFrames() int {
	frames := int(math.Ceil(p.SceneSec*videoFPS - 1e-9))
	if frames < 1 {
		frames = 1
	}
	return frames
}

// TailPad is how long the last clip holds its final frame to make up for the
// time swallowed by cross-fades.
func (p VisualPlan) TailPad() float64 {
	n := len(p.ImagePaths)
	if n <= 1 {
		return 0
	}
	return float64(n-1) * p.TransitionSec
}

// Duration is the length of the chained visual track in seconds.
func (p VisualPlan) Duration() float64 {
	n := len(p.ImagePaths)
	if n == 0 {
		return 0
	}
	clip := float64(p.ClipFrames()) / videoFPS
	return float64(n-1)*(p.SceneSec-p.TransitionSec) + clip + p.TailPad()
}

// XfadeOffset is where the i-th junction (1-based) starts.
func XfadeOffset(sceneSec, transitionSec float64, i int) float64 {
	return (sceneSec - transitionSec) * float64(i)
}

// clipFilter scales to the working canvas, crops, and runs the zoompan program.
func (p VisualPlan) clipFilter(i int) string {
	tw := int(math.Round(float64(p.Resolution.Width) * canvasScale))
	th := int(math.Round(float64(p.Resolution.Height) * canvasScale))
	effect := p.Effects[i]

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d:v]", i)
	fmt.Fprintf(&sb, "scale=w='if(gte(iw/ih,%d/%d),-1,%d)':h='if(gte(iw/ih,%d/%d),%d,-1)'", tw, th, tw, tw, th, th)
	fmt.Fprintf(&sb, ",crop=%d:%d", tw, th)
	fmt.Fprintf(&sb, ",zoompan=z='%s':x='%s':y='%s':d=%d:s=%s:fps=%d",
		effect.Z, effect.X, effect.Y, p.ClipFrames(), p.Resolution, videoFPS)
	sb.WriteString(",setsar=1,format=yuv420p")

	if i == len(p.ImagePaths)-1 && p.TailPad() > 0 {
		fmt.Fprintf(&sb, ",tpad=stop_mode=clone:stop_duration=%s", formatSeconds(p.TailPad()))
	}

	fmt.Fprintf(&sb, "[v%d]", i)
	return sb.String()
}

// BuildFilterGraph returns the -filter_complex value and the label of the
// final video stream.
func (p VisualPlan) BuildFilterGraph() (string, string) {
	filters := make([]string, 0, len(p.ImagePaths)*2+1)
	for i := range p.ImagePaths {
		filters = append(filters, p.clipFilter(i))
	}

	current := "[v0]"
	for i := 1; i < len(p.ImagePaths); i++ {
		out := fmt.Sprintf("[x%d]", i)
		filters = append(filters, fmt.Sprintf(
			"%s[v%d]xfade=transition=%s:duration=%s:offset=%s%s",
			current, i, p.Transition,
			formatSeconds(p.TransitionSec),
			formatSeconds(XfadeOffset(p.SceneSec, p.TransitionSec, i)),
			out,
		))
		current = out
	}

	if p.SubtitlePath != "" {
		filters = append(filters, fmt.Sprintf(
			"%ssubtitles=filename='%s':force_style='%s'[vout]",
			current, escapeFFmpegFilterPath(p.SubtitlePath), subtitleForceStyle,
		))
		current = "[vout]"
	}

	return strings.Join(filters, ";"), current
}

// BuildVisualArgs returns the ffmpeg arguments that encode the silent track.
func BuildVisualArgs(p VisualPlan, outputPath string) []string {
	graph, out := p.BuildFilterGraph()

	args := []string{"-y"}
	for _, img := range p.ImagePaths {
		args = append(args, "-i", img) // single frame; zoompan produces the clip
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", out,
		"-r", strconv.Itoa(videoFPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "ultrafast",
		"-crf", "23",
		"-an",
		outputPath,
	)
	return args
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
