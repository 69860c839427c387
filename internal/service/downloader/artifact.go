package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

// Suffixes of files the tool is still writing.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// LocateArtifact finds the file produced for jobID. The tool may rename its
// output after exit, so the directory is listed up to LocateAttempts times.
// A file named exactly <jobID>.<ext> wins, then any file with that extension,
// then any other finished file carrying the job prefix.
func (o *Orchestrator) LocateArtifact(ctx context.Context, jobID, ext string) (string, bool) {
	if jobID == "" {
		return "", false
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")

	for attempt := 0; attempt < o.config.LocateAttempts; attempt++ {
		if path := o.findArtifact(jobID, ext); path != "" {
			return path, true
		}
		if attempt == o.config.LocateAttempts-1 {
			break
		}

		timer := time.NewTimer(o.config.LocateInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", false
		}
	}
	return "", false
}

func (o *Orchestrator) findArtifact(jobID, ext string) string {
	entries, err := os.ReadDir(o.config.OutputDir)
	if err != nil {
		return ""
	}

	prefix := jobID + "."
	exact := prefix + ext
	var sameExt, other string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || isPartial(name) {
			continue
		}
		if name == exact {
			return filepath.Join(o.config.OutputDir, name)
		}
		if sameExt == "" && strings.EqualFold(filepath.Ext(name), "."+ext) {
			sameExt = name
		} else if other == "" {
			other = name
		}
	}

	switch {
	case sameExt != "":
		return filepath.Join(o.config.OutputDir, sameExt)
	case other != "":
		return filepath.Join(o.config.OutputDir, other)
	}
	return ""
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// DeleteArtifact removes path. Missing files are not an error; paths outside
// the output directory are refused.
func (o *Orchestrator) DeleteArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := o.checkContained(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (o *Orchestrator) checkContained(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	absOutputDir, err := filepath.Abs(o.config.OutputDir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absOutputDir, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("cannot delete %q: outside output directory", path)
	}
	return nil
}

// removeJobFiles deletes every file carrying the job prefix, partial or not.
func (o *Orchestrator) removeJobFiles(jobID string) {
	if jobID == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(o.config.OutputDir, jobID+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("Failed to remove partial file", "job_id", jobID, "path", m, "error", err)
		}
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\w\s.-]`)
	whitespaceRuns      = regexp.MustCompile(`\s+`)
)

const maxFilenameStem = 100

// DisplayFilename builds the download name from title, falling back to videoID.
func DisplayFilename(title, videoID string, format domain.Format) string {
	stem := unsafeFilenameChars.ReplaceAllString(title, "")
	stem = whitespaceRuns.ReplaceAllString(strings.TrimSpace(stem), "_")
	if len(stem) > maxFilenameStem {
		stem = stem[:maxFilenameStem]
	}
	if strings.Trim(stem, "._-") == "" {
		stem = videoID
	}
	return stem + "." + format.Extension()
}
