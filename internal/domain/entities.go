// Package domain contains the core business entities and types.
package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Format is the kind of artifact a job produces.
type Format string

const (
	FormatAudio Format = "audio"
	FormatVideo Format = "video"
)

// ParseFormat accepts both the API tokens (mp3, mp4) and the format names.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mp3", "audio":
		return FormatAudio, true
	case "mp4", "video":
		return FormatVideo, true
	}
	return "", false
}

// Extension returns the container extension requested from the tool.
func (f Format) Extension() string {
	if f == FormatAudio {
		return "mp3"
	}
	return "mp4"
}

// Token returns the format as exposed by the API.
func (f Format) Token() string {
	return f.Extension()
}

// JobStage represents where a job is in its lifecycle.
type JobStage string

const (
	StageRequested       JobStage = "requested"
	StageInfoFetched     JobStage = "info_fetched"
	StageToolInvoked     JobStage = "tool_invoked"
	StageArtifactLocated JobStage = "artifact_located"
	StageReady           JobStage = "ready"
	StageFailed          JobStage = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStage) IsTerminal() bool {
	return s == StageReady || s == StageFailed
}

// Job represents one download/conversion request from submission to completion.
// A job is mutated by a single worker; Done is closed once it reaches a terminal stage.
type Job struct {
	ID      string
	URL     string
	Format  Format
	Quality string

	CreatedAt time.Time

	mu          sync.Mutex
	stage       JobStage
	claimed     bool
	completedAt *time.Time
	progress int
	info     *VideoInfo
	artifact *Artifact
	err      error
	done     chan struct{}
}

// NewJob creates a new Job in the requested stage.
func NewJob(id, url string, format Format, quality string) *Job {
	return &Job{
		ID:        id,
		URL:       url,
		Format:    format,
		Quality:   quality,
		CreatedAt: time.Now().UTC(),
		stage:     StageRequested,
		done:      make(chan struct{}),
	}
}

// Stage returns the current lifecycle stage.
func (j *Job) Stage() JobStage {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stage
}

// Progress returns the last reported download percentage.
func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// MarkInfoFetched records the metadata returned by the pre-flight fetch.
func (j *Job) MarkInfoFetched(info *VideoInfo) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.info = info
	j.stage = StageInfoFetched
}

// MarkToolInvoked records that the external tool has been started.
func (j *Job) MarkToolInvoked() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = StageToolInvoked
}

// MarkArtifactLocated records that discovery resolved the output file.
func (j *Job) MarkArtifactLocated() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = StageArtifactLocated
}

// MarkReady completes the job with its artifact.
func (j *Job) MarkReady(a *Artifact) {
	j.finish(func() {
		j.stage = StageReady
		j.artifact = a
		j.progress = 100
	})
}

// MarkFailed completes the job with an error.
func (j *Job) MarkFailed(err error) {
	j.finish(func() {
		j.stage = StageFailed
		j.err = err
	})
}

func (j *Job) finish(apply func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishLocked(apply)
}

func (j *Job) finishLocked(apply func()) {
	if j.stage.IsTerminal() {
		return
	}
	apply()
	now := time.Now().UTC()
	j.completedAt = &now
	close(j.done)
}

// CompletedAt returns when the job reached a terminal stage, or nil.
func (j *Job) CompletedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completedAt
}

// Claim marks the job as taken by a worker. It returns false when the job
// was already settled, in which case it must not be processed.
func (j *Job) Claim() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stage.IsTerminal() {
		return false
	}
	j.claimed = true
	return true
}

// Withdraw fails a job that no worker has claimed yet and reports whether
// it did. A claimed job is left to finish.
func (j *Job) Withdraw(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.claimed || j.stage.IsTerminal() {
		return false
	}
	j.finishLocked(func() {
		j.stage = StageFailed
		j.err = err
	})
	return true
}

// UpdateProgress updates the job progress percentage.
func (j *Job) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.mu.Lock()
	j.progress = progress
	j.mu.Unlock()
}

// Done is closed when the job reaches StageReady or StageFailed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the artifact or the failure. Only meaningful after Done is closed.
func (j *Job) Result() (*Artifact, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifact, j.err
}

// Info returns the metadata fetched for the job, if any.
func (j *Job) Info() *VideoInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info
}

// VideoInfo contains metadata about a video.
type VideoInfo struct {
	VideoID         string `json:"id"`
	Title           string `json:"title"`
	Thumbnail       string `json:"thumbnail"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Artifact is the file produced by the external tool for one job.
type Artifact struct {
	JobID           string
	VideoID         string
	Format          Format
	Quality         string
	Path            string
	DisplayFilename string
	Title           string
	Thumbnail       string
	DurationSeconds int
	Size            int64
}

// Retrieval is what the file endpoint needs to serve an artifact.
type Retrieval struct {
	Path            string
	DisplayFilename string
	Format          Format
	RemoteURL       string
}

// DownloadRequest represents a request to convert a video.
type DownloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality,omitempty"`
}

// VideoInfoRequest represents a metadata lookup.
type VideoInfoRequest struct {
	URL string `json:"url"`
}

// VideoInfoResponse is returned by the metadata endpoint.
type VideoInfoResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  string `json:"duration"`
}

// DownloadResponse is returned once an artifact is ready.
type DownloadResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Thumbnail       string `json:"thumbnail"`
	Duration        string `json:"duration"`
	DurationSeconds int    `json:"durationSeconds"`
	DownloadURL     string `json:"downloadUrl"`
	Filename        string `json:"filename"`
	Format          string `json:"format"`
	Quality         string `json:"quality,omitempty"`
}

// HealthResponse represents the response for a health check.
type HealthResponse struct {
	Status          string `json:"status"`
	QueueSize       int    `json:"queue_size"`
	Workers         int    `json:"workers"`
	ActiveArtifacts int    `json:"active_artifacts"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ToVideoInfoResponse converts metadata to the API shape.
func (v *VideoInfo) ToVideoInfoResponse() *VideoInfoResponse {
	return &VideoInfoResponse{
		ID:        v.VideoID,
		Title:     v.Title,
		Thumbnail: v.Thumbnail,
		Duration:  FormatDuration(v.DurationSeconds),
	}
}

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
