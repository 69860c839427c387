package downloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocateArtifact(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"exact name", []string{"job.f137.mp4", "job.mp4", "job.mp4.part"}, "job.mp4"},
		{"same extension", []string{"job.webm", "job.f22.mp4"}, "job.f22.mp4"},
		{"other finished file", []string{"job.webm"}, "job.webm"},
		{"only partial files", []string{"job.mp4.part", "job.mp4.ytdl"}, ""},
		{"other job", []string{"job2.mp4", "otherjob.mp4"}, ""},
		{"empty dir", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, &fakeRunner{})
			for _, f := range tt.files {
				touch(t, o.OutputDir(), f)
			}

			got, ok := o.LocateArtifact(context.Background(), "job", "mp4")
			if tt.want == "" {
				if ok {
					t.Errorf("expected no artifact, got %q", got)
				}
				return
			}
			if !ok || got != filepath.Join(o.OutputDir(), tt.want) {
				t.Errorf("LocateArtifact = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}
}

func TestLocateArtifact_WaitsForLateRename(t *testing.T) {
	o := newTestOrchestrator(t, &fakeRunner{})
	o.config.LocateAttempts = 5
	o.config.LocateInterval = 50 * time.Millisecond

	touch(t, o.OutputDir(), "late.mp3.part")
	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = os.Rename(filepath.Join(o.OutputDir(), "late.mp3.part"), filepath.Join(o.OutputDir(), "late.mp3"))
	}()

	got, ok := o.LocateArtifact(context.Background(), "late", "mp3")
	if !ok || filepath.Base(got) != "late.mp3" {
		t.Errorf("expected late.mp3 to be found, got %q, %v", got, ok)
	}
}

func TestLocateArtifact_ContextCancelled(t *testing.T) {
	o := newTestOrchestrator(t, &fakeRunner{})
	o.config.LocateAttempts = 5
	o.config.LocateInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := o.LocateArtifact(ctx, "job", "mp4"); ok {
			t.Error("expected no artifact")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LocateArtifact did not honour cancellation")
	}
}

func TestDeleteArtifact(t *testing.T) {
	o := newTestOrchestrator(t, &fakeRunner{})
	path := touch(t, o.OutputDir(), "job.mp3")

	if err := o.DeleteArtifact(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}
	if err := o.DeleteArtifact(path); err != nil {
		t.Errorf("expected second delete to be a no-op, got %v", err)
	}
	if err := o.DeleteArtifact(""); err != nil {
		t.Errorf("expected empty path to be a no-op, got %v", err)
	}

	outside := touch(t, t.TempDir(), "keep.mp3")
	if err := o.DeleteArtifact(outside); err == nil {
		t.Error("expected path outside output dir to be refused")
	}
	if err := o.DeleteArtifact(filepath.Join(o.OutputDir(), "..", "escape.mp3")); err == nil {
		t.Error("expected traversal to be refused")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("file outside output dir must survive")
	}
}

func TestDisplayFilename(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}

	tests := []struct {
		name   string
		title  string
		format domain.Format
		want   string
	}{
		{"plain", "Never Gonna Give You Up", domain.FormatAudio, "Never_Gonna_Give_You_Up.mp3"},
		{"punctuation stripped", "AC/DC - T.N.T. (Live!) [HD]", domain.FormatVideo, "ACDC_-_T.N.T._Live_HD.mp4"},
		{"whitespace runs", "a \t  b\n c", domain.FormatAudio, "a_b_c.mp3"},
		{"non ascii only", "日本語タイトル", domain.FormatAudio, "dQw4w9WgXcQ.mp3"},
		{"empty", "", domain.FormatVideo, "dQw4w9WgXcQ.mp4"},
		{"truncated", long, domain.FormatAudio, long[:100] + ".mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayFilename(tt.title, "dQw4w9WgXcQ", tt.format); got != tt.want {
				t.Errorf("DisplayFilename(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}
