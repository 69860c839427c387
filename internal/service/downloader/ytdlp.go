// Package downloader drives yt-dlp and turns its results into artifacts.
package downloader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Downloader configuration options.
type Config struct {
	MaxFileSize    int64         // Maximum file size in bytes
	MaxDuration    int           // Maximum duration in seconds, 0 disables the check
	OutputDir      string        // Directory for downloaded files
	Timeout        time.Duration // Maximum time for a download
	InfoTimeout    time.Duration // Maximum time for a metadata fetch
	YtDlpPath      string        // Path to yt-dlp binary
	FFmpegPath     string        // Path to ffmpeg binary (optional)
	LocateAttempts int           // Directory listings before giving up on an artifact
	LocateInterval time.Duration // Pause between listings
}

// DefaultConfig returns the default downloader configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:    500 * 1024 * 1024, // 500MB
		MaxDuration:    1800,              // 30 minutes
		OutputDir:      "./tmp",
		Timeout:        10 * time.Minute,
		InfoTimeout:    30 * time.Second,
		YtDlpPath:      "yt-dlp",
		LocateAttempts: 5,
		LocateInterval: 200 * time.Millisecond,
	}
}

// ProgressFunc receives download percentages parsed from tool output.
type ProgressFunc func(percent int)

// Runner executes the external tool. stdout is returned even on failure.
type Runner interface {
	Run(ctx context.Context, args []string, progress ProgressFunc) ([]byte, error)
}

// ToolError is a non-zero exit (or kill) of the external tool.
// Output holds its stderr and must never be shown to users.
type ToolError struct {
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("yt-dlp: %v", e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

var progressRegex = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// Info JSON for a single video is one line that can run to several megabytes.
const maxLineSize = 32 * 1024 * 1024

// YtDlp runs the yt-dlp binary with exec.CommandContext. Arguments are passed
// as a vector, never through a shell.
type YtDlp struct {
	path string
}

// NewYtDlp creates a runner for the binary at path.
func NewYtDlp(path string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{path: path}
}

// Run starts the tool and blocks until it exits or ctx is done.
func (y *YtDlp) Run(ctx context.Context, args []string, progress ProgressFunc) ([]byte, error) {
	cmd := exec.CommandContext(ctx, y.path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Err: fmt.Errorf("failed to start yt-dlp: %w", err)}
	}

	var (
		wg           sync.WaitGroup
		stdoutBuf    bytes.Buffer
		stderrOutput strings.Builder
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Text()
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')

			if progress == nil {
				continue
			}
			if matches := progressRegex.FindStringSubmatch(line); len(matches) > 1 {
				if p, err := strconv.ParseFloat(matches[1], 64); err == nil {
					progress(int(p))
				}
			}
		}
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, stdout)
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrOutput.WriteString(scanner.Text())
			stderrOutput.WriteString("\n")
		}
		_, _ = io.Copy(io.Discard, stderr)
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return stdoutBuf.Bytes(), &ToolError{Output: stderrOutput.String(), Err: err}
	}
	return stdoutBuf.Bytes(), nil
}

// Version returns the installed yt-dlp version, verifying the binary is usable.
func (y *YtDlp) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, y.path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp not found or not executable: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
