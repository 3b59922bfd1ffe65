package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
)

// fakeRunner stands in for ffmpeg/ffprobe: ffmpeg calls write a small file at
// the output path (last argument), ffprobe calls return probeOutput.
type fakeRunner struct {
	mu          sync.Mutex
	calls       [][]string
	probeOutput string
	failOnArg   string
	// partialOnFail writes the output file before failing, like an ffmpeg
	// run that dies mid-encode.
	partialOnFail bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if strings.HasSuffix(name, "ffprobe") {
		return []byte(f.probeOutput), nil
	}

	for _, a := range args {
		if f.failOnArg != "" && a == f.failOnArg {
			if f.partialOnFail {
				os.WriteFile(args[len(args)-1], []byte("partial"), 0644)
			}
			return nil, errors.New("exit status 1")
		}
	}

	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("media"), 0644); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeRunner) ffmpegCalls() [][]string {
	var out [][]string
	for _, c := range f.calls {
		if c[0] == "ffmpeg" {
			out = append(out, c[1:])
		}
	}
	return out
}

type fakeTTS struct {
	audio  []byte
	err    error
	calls  int
	markup string
}

func (f *fakeTTS) Synthesize(ctx context.Context, markup, voiceID string) ([]byte, error) {
	f.calls++
	f.markup = markup
	return f.audio, f.err
}

type assemblerFixture struct {
	assembler *VideoAssembler
	runner    *fakeRunner
	tts       *fakeTTS
	tempRoot  string
	outputDir string
	images    []string
}

func newAssemblerFixture(t *testing.T, scenes int, probe string) *assemblerFixture {
	t.Helper()

	root := t.TempDir()
	musicDir := filepath.Join(root, "music")
	imageDir := filepath.Join(root, "uploads")
	for _, dir := range []string{musicDir, imageDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(musicDir, "calm.mp3"), []byte("music"), 0644); err != nil {
		t.Fatal(err)
	}

	var images []string
	for i := 0; i < scenes; i++ {
		p := filepath.Join(imageDir, "image_"+string(rune('0'+i))+".png")
		if err := os.WriteFile(p, []byte("png"), 0644); err != nil {
			t.Fatal(err)
		}
		images = append(images, p)
	}

	runner := &fakeRunner{probeOutput: probe}
	tts := &fakeTTS{audio: []byte("mp3")}
	ffmpegSvc := NewFFmpegService("", "", zerolog.Nop()).WithRunner(runner)

	fx := &assemblerFixture{
		runner:    runner,
		tts:       tts,
		tempRoot:  filepath.Join(root, "tmp"),
		outputDir: filepath.Join(root, "content"),
		images:    images,
	}
	fx.assembler = NewVideoAssembler(ffmpegSvc, tts, AssemblerConfig{
		MusicDir:  musicDir,
		OutputDir: fx.outputDir,
		TempRoot:  fx.tempRoot,
	}, zerolog.Nop())
	return fx
}

func (fx *assemblerFixture) request(music string) models.RenderRequest {
	return models.RenderRequest{
		Script:          fiveWordScript(len(fx.images)),
		ImagePaths:      fx.images,
		VoiceID:         "en-US-Wavenet-C",
		MusicFilename:   music,
		AspectRatio:     "9:16",
		MusicVolume:     0.3,
		TransitionStyle: "wipeleft",
		OutputName:      "job-123",
	}
}

func assertWorkspaceRemoved(t *testing.T, tempRoot string) {
	t.Helper()
	entries, err := os.ReadDir(tempRoot)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("failed to read temp root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected workspace to be removed, found %d entries", len(entries))
	}
}

func TestAssembleSixScenes(t *testing.T) {
	fx := newAssemblerFixture(t, 6, "30.000000\n")

	out, err := fx.assembler.Assemble(context.Background(), fx.request("calm.mp3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out != filepath.Join(fx.outputDir, "job-123.mp4") {
		t.Errorf("unexpected output path %s", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected final video to exist: %v", err)
	}
	assertWorkspaceRemoved(t, fx.tempRoot)

	if !strings.HasPrefix(fx.tts.markup, "<speak>") {
		t.Errorf("expected SSML markup to be synthesized, got %q", fx.tts.markup)
	}

	calls := fx.runner.ffmpegCalls()
	if len(calls) != 3 {
		t.Fatalf("expected visual, audio and mux ffmpeg calls, got %d", len(calls))
	}

	visual := strings.Join(calls[0], " ")
	if n := strings.Count(visual, "xfade=transition=wipeleft"); n != 5 {
		t.Errorf("expected 5 wipeleft junctions, got %d", n)
	}
	if !strings.Contains(visual, "subtitles=filename=") {
		t.Errorf("expected captions to be burned in: %s", visual)
	}

	audio := strings.Join(calls[1], " ")
	if !strings.Contains(audio, "weights='1 0.3'") || !strings.Contains(audio, "atrim=duration=30.000") {
		t.Errorf("expected music mix trimmed to narration: %s", audio)
	}

	mux := strings.Join(calls[2], " ")
	if !strings.Contains(mux, "-c:v copy -c:a copy -shortest") {
		t.Errorf("expected stream-copy mux: %s", mux)
	}
}

func TestAssembleWithoutMusic(t *testing.T) {
	fx := newAssemblerFixture(t, 2, "8.5")

	if _, err := fx.assembler.Assemble(context.Background(), fx.request(models.MusicNone)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audio := strings.Join(fx.runner.ffmpegCalls()[1], " ")
	if strings.Contains(audio, "amix") || strings.Contains(audio, "-filter_complex") {
		t.Errorf("expected narration-only re-encode: %s", audio)
	}
}

func TestAssembleMissingMusicFileFallsBackToNarration(t *testing.T) {
	fx := newAssemblerFixture(t, 2, "8.5")

	if _, err := fx.assembler.Assemble(context.Background(), fx.request("epic.mp3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audio := strings.Join(fx.runner.ffmpegCalls()[1], " ")
	if strings.Contains(audio, "amix") {
		t.Errorf("expected no mix for a missing track: %s", audio)
	}
}

func TestAssembleRejectsMismatchedImagesBeforeEncoding(t *testing.T) {
	fx := newAssemblerFixture(t, 3, "30")
	req := fx.request("calm.mp3")
	req.ImagePaths = req.ImagePaths[:2]

	_, err := fx.assembler.Assemble(context.Background(), req)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(fx.runner.calls) != 0 || fx.tts.calls != 0 {
		t.Errorf("expected no media work, got %d commands and %d tts calls", len(fx.runner.calls), fx.tts.calls)
	}
}

func TestAssembleNarrationFailure(t *testing.T) {
	fx := newAssemblerFixture(t, 2, "10")
	fx.tts.err = errors.New("quota")

	_, err := fx.assembler.Assemble(context.Background(), fx.request("calm.mp3"))
	if !errors.Is(err, models.ErrNarrationSynthesis) {
		t.Fatalf("expected ErrNarrationSynthesis, got %v", err)
	}
	assertWorkspaceRemoved(t, fx.tempRoot)
}

func TestAssembleEmptyNarration(t *testing.T) {
	fx := newAssemblerFixture(t, 2, "10")
	fx.tts.audio = nil

	if _, err := fx.assembler.Assemble(context.Background(), fx.request("calm.mp3")); !errors.Is(err, models.ErrNarrationSynthesis) {
		t.Fatalf("expected ErrNarrationSynthesis, got %v", err)
	}
}

func TestAssembleZeroDurationNarration(t *testing.T) {
	fx := newAssemblerFixture(t, 2, "0.000000")

	if _, err := fx.assembler.Assemble(context.Background(), fx.request("calm.mp3")); !errors.Is(err, models.ErrNarrationSynthesis) {
		t.Fatalf("expected ErrNarrationSynthesis, got %v", err)
	}
	if len(fx.runner.ffmpegCalls()) != 0 {
		t.Error("expected no encoding after an invalid narration")
	}
	assertWorkspaceRemoved(t, fx.tempRoot)
}

func TestAssembleScenesShorterThanTransition(t *testing.T) {
	fx := newAssemblerFixture(t, 6, "3.0")

	_, err := fx.assembler.Assemble(context.Background(), fx.request("calm.mp3"))
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(fx.runner.ffmpegCalls()) != 0 {
		t.Error("expected no encoding for scenes shorter than the transition")
	}
	assertWorkspaceRemoved(t, fx.tempRoot)
}

func TestAssembleMuxFailureCleansUp(t *testing.T) {
	fx := newAssemblerFixture(t, 2, "10")
	fx.runner.failOnArg = "-shortest"
	fx.runner.partialOnFail = true

	_, err := fx.assembler.Assemble(context.Background(), fx.request("calm.mp3"))
	if !errors.Is(err, models.ErrVideoRender) {
		t.Fatalf("expected ErrVideoRender, got %v", err)
	}
	assertWorkspaceRemoved(t, fx.tempRoot)
	if _, err := os.Stat(filepath.Join(fx.outputDir, "job-123.mp4")); !os.IsNotExist(err) {
		t.Errorf("partial video should be removed from the content dir, stat err = %v", err)
	}
}

func TestAssembleWithoutNarrationClient(t *testing.T) {
	fx := newAssemblerFixture(t, 1, "10")
	fx.assembler.tts = nil

	if _, err := fx.assembler.Assemble(context.Background(), fx.request("none")); !errors.Is(err, models.ErrNarrationSynthesis) {
		t.Fatalf("expected ErrNarrationSynthesis, got %v", err)
	}
}

func TestAssembleSingleSceneSkipsTransitions(t *testing.T) {
	fx := newAssemblerFixture(t, 1, "4.2")

	if _, err := fx.assembler.Assemble(context.Background(), fx.request("none")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	visual := strings.Join(fx.runner.ffmpegCalls()[0], " ")
	if strings.Contains(visual, "xfade") {
		t.Errorf("expected no transitions for a single scene: %s", visual)
	}
}
