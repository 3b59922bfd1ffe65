package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog"
	drive "google.golang.org/api/drive/v3"
)

func writeVideo(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "job-1.mp4")
	if err := os.WriteFile(p, []byte("mp4-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSupabaseUpload(t *testing.T) {
	var gotPath, gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up := NewSupabaseUploader(srv.URL+"/", "secret", "videos", zerolog.Nop())
	link, err := up.Upload(context.Background(), writeVideo(t), "stories/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/storage/v1/object/videos/stories/job-1.mp4" {
		t.Errorf("unexpected object path %s", gotPath)
	}
	if gotAuth != "Bearer secret" || gotType != "video/mp4" || gotBody != "mp4-bytes" {
		t.Errorf("unexpected request: auth=%q type=%q body=%q", gotAuth, gotType, gotBody)
	}
	if want := srv.URL + "/storage/v1/object/public/videos/stories/job-1.mp4"; link != want {
		t.Errorf("got link %s, want %s", link, want)
	}
}

func TestSupabaseUploadSingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	up := NewSupabaseUploader(srv.URL, "k", "videos", zerolog.Nop())
	_, err := up.Upload(context.Background(), writeVideo(t), "")
	if !errors.Is(err, models.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one attempt, got %d", calls)
	}
}

func TestSupabaseUploadRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	up := NewSupabaseUploader(srv.URL, "k", "videos", zerolog.Nop()).WithRetries(1)
	if _, err := up.Upload(context.Background(), writeVideo(t), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected two attempts, got %d", calls)
	}
}

func TestSupabaseUploadDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	up := NewSupabaseUploader(srv.URL, "k", "videos", zerolog.Nop()).WithRetries(3)
	if _, err := up.Upload(context.Background(), writeVideo(t), ""); !errors.Is(err, models.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry on 403, got %d attempts", calls)
	}
}

func TestSupabaseUploadMissingFile(t *testing.T) {
	up := NewSupabaseUploader("http://unused", "k", "videos", zerolog.Nop())
	if _, err := up.Upload(context.Background(), "/does/not/exist.mp4", ""); !errors.Is(err, models.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
}

func TestObjectPath(t *testing.T) {
	tests := map[string]string{
		"":            "a.mp4",
		"/":           "a.mp4",
		"videos":      "videos/a.mp4",
		"/videos/x/":  "videos/x/a.mp4",
		`videos\2026`: "videos/2026/a.mp4",
	}
	for dest, want := range tests {
		if got := ObjectPath(dest, "a.mp4"); got != want {
			t.Errorf("ObjectPath(%q) = %q, want %q", dest, got, want)
		}
	}
}

func TestDriveUploadRequiresFolder(t *testing.T) {
	up := NewDriveUploaderWithService(nil, "", zerolog.Nop())
	if _, err := up.Upload(context.Background(), writeVideo(t), ""); !errors.Is(err, models.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
}

func TestShareableLink(t *testing.T) {
	if got := shareableLink(&drive.File{Id: "abc", WebViewLink: "https://view"}); got != "https://view" {
		t.Errorf("expected view link, got %s", got)
	}
	if got := shareableLink(&drive.File{Id: "abc", WebContentLink: "https://dl"}); got != "https://dl" {
		t.Errorf("expected content link, got %s", got)
	}
	if got := shareableLink(&drive.File{Id: "abc"}); got != "https://drive.google.com/file/d/abc/view?usp=sharing" {
		t.Errorf("unexpected fallback link %s", got)
	}
}
