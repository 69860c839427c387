package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/emanuelef/yt-convert-go/internal/domain"
	"github.com/emanuelef/yt-convert-go/internal/service/quality"
	"github.com/emanuelef/yt-convert-go/internal/service/videourl"
)

// InfoCache stores fetched metadata by video id.
type InfoCache interface {
	Get(videoID string) (*domain.VideoInfo, bool)
	Set(videoID string, info *domain.VideoInfo)
}

// Orchestrator runs a job from a raw URL to a located artifact.
type Orchestrator struct {
	config *Config
	runner Runner
	cache  InfoCache
	newID  func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInfoCache enables metadata caching.
func WithInfoCache(c InfoCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithIDGenerator overrides how job ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an Orchestrator from a copy of config. A nil config uses
// DefaultConfig.
func New(config *Config, runner Runner, opts ...Option) *Orchestrator {
	cfg := DefaultConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	if cfg.LocateAttempts <= 0 {
		cfg.LocateAttempts = 5
	}
	o := &Orchestrator{
		config: cfg,
		runner: runner,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OutputDir returns the directory artifacts are written to.
func (o *Orchestrator) OutputDir() string {
	return o.config.OutputDir
}

// ytInfo is the subset of the tool's info JSON we read.
type ytInfo struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	FullTitle  string   `json:"fulltitle"`
	Duration   *float64 `json:"duration"`
	Thumbnail  string   `json:"thumbnail"`
	Thumbnails []struct {
		URL   string `json:"url"`
		Width int    `json:"width"`
	} `json:"thumbnails"`
}

func (i *ytInfo) toVideoInfo(fallbackID string) *domain.VideoInfo {
	info := &domain.VideoInfo{
		VideoID:   i.ID,
		Title:     i.Title,
		Thumbnail: i.Thumbnail,
	}
	if info.VideoID == "" {
		info.VideoID = fallbackID
	}
	if info.Title == "" {
		info.Title = i.FullTitle
	}
	if info.Thumbnail == "" {
		widest := -1
		for _, t := range i.Thumbnails {
			if t.URL != "" && t.Width > widest {
				widest = t.Width
				info.Thumbnail = t.URL
			}
		}
	}
	if i.Duration != nil && *i.Duration > 0 {
		info.DurationSeconds = int(*i.Duration)
	}
	return info
}

// FetchInfo validates raw and returns the video's metadata.
func (o *Orchestrator) FetchInfo(ctx context.Context, raw string) (*domain.VideoInfo, error) {
	ref, _, err := videourl.RequireCanonical(raw)
	if err != nil {
		return nil, err
	}
	return o.fetchInfo(ctx, ref)
}

func (o *Orchestrator) fetchInfo(ctx context.Context, ref videourl.VideoRef) (*domain.VideoInfo, error) {
	if o.cache != nil {
		if info, ok := o.cache.Get(ref.ID()); ok {
			slog.Debug("Video info cache hit", "video_id", ref.ID())
			return info, o.checkDuration(info)
		}
	}

	if o.config.InfoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.InfoTimeout)
		defer cancel()
	}

	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--no-cache-dir",
		"--socket-timeout", "30",
		ref.CanonicalURL(),
	}

	out, err := o.runner.Run(ctx, args, nil)
	if err != nil {
		derr := translate(err)
		slog.Error("yt-dlp info fetch failed",
			"video_id", ref.ID(),
			"kind", derr.Kind,
			"reason", derr.Reason,
			"output", toolOutput(err),
			"error", err,
		)
		return nil, derr
	}

	var raw ytInfo
	if err := json.Unmarshal(out, &raw); err != nil {
		slog.Error("Failed to parse video info", "video_id", ref.ID(), "error", err)
		return nil, domain.NewError(domain.KindToolInvocation, domain.ReasonNone, genericToolMessage,
			fmt.Errorf("failed to parse video info: %w", err))
	}

	info := raw.toVideoInfo(ref.ID())
	if o.cache != nil {
		o.cache.Set(ref.ID(), info)
	}
	return info, o.checkDuration(info)
}

func (o *Orchestrator) checkDuration(info *domain.VideoInfo) error {
	if o.config.MaxDuration <= 0 || info.DurationSeconds <= o.config.MaxDuration {
		return nil
	}
	return domain.NewError(domain.KindToolInvocation, domain.ReasonDurationExceeded,
		fmt.Sprintf("Videos longer than %s are not supported.", domain.FormatDuration(o.config.MaxDuration)),
		fmt.Errorf("duration %ds exceeds limit %ds", info.DurationSeconds, o.config.MaxDuration))
}

// DownloadAudio converts raw into an mp3 at tier.
func (o *Orchestrator) DownloadAudio(ctx context.Context, raw, tier string) (*domain.Artifact, error) {
	return o.Download(ctx, domain.NewJob(o.newID(), raw, domain.FormatAudio, tier))
}

// DownloadVideo downloads raw as an mp4 at tier.
func (o *Orchestrator) DownloadVideo(ctx context.Context, raw, tier string) (*domain.Artifact, error) {
	return o.Download(ctx, domain.NewJob(o.newID(), raw, domain.FormatVideo, tier))
}

// Download runs job through its lifecycle. The job always ends in a terminal
// stage and its result matches the return values.
func (o *Orchestrator) Download(ctx context.Context, job *domain.Job) (*domain.Artifact, error) {
	artifact, err := o.download(ctx, job)
	if err != nil {
		job.MarkFailed(err)
		slog.Info("Job failed", "job_id", job.ID, "kind", domain.KindOf(err), "reason", domain.ReasonOf(err))
		return nil, err
	}
	job.MarkReady(artifact)
	slog.Info("Job ready", "job_id", job.ID, "path", artifact.Path, "size", artifact.Size)
	return artifact, nil
}

func (o *Orchestrator) download(ctx context.Context, job *domain.Job) (*domain.Artifact, error) {
	ref, _, err := videourl.RequireCanonical(job.URL)
	if err != nil {
		return nil, err
	}

	info, err := o.fetchInfo(ctx, ref)
	if err != nil {
		return nil, err
	}
	job.MarkInfoFetched(info)
	slog.Debug("Job stage", "job_id", job.ID, "stage", domain.StageInfoFetched, "video_id", ref.ID())

	if err := os.MkdirAll(o.config.OutputDir, 0755); err != nil {
		return nil, domain.NewError(domain.KindToolInvocation, domain.ReasonNone, genericToolMessage,
			fmt.Errorf("failed to create output directory: %w", err))
	}

	tier := o.tierFor(job)
	downgraded := false

	for {
		out, err := o.invoke(ctx, job, ref, tier)
		if err != nil {
			derr := translate(err)
			slog.Error("yt-dlp download failed",
				"job_id", job.ID,
				"video_id", ref.ID(),
				"format", job.Format,
				"quality", tier,
				"kind", derr.Kind,
				"reason", derr.Reason,
				"output", toolOutput(err),
				"error", err,
			)
			o.removeJobFiles(job.ID)

			if !downgraded && job.Format == domain.FormatVideo &&
				derr.Reason == domain.ReasonFormatUnavailable && tier != quality.LowestVideoTier {
				slog.Warn("Requested quality unavailable, retrying at lowest tier",
					"job_id", job.ID, "from", tier, "to", quality.LowestVideoTier)
				tier = quality.LowestVideoTier
				downgraded = true
				continue
			}
			return nil, derr
		}

		path, ok := o.LocateArtifact(ctx, job.ID, job.Format.Extension())
		if !ok {
			o.removeJobFiles(job.ID)
			if strings.Contains(strings.ToLower(string(out)), "max-filesize") {
				return nil, TranslateToolError(string(out), nil)
			}
			slog.Error("Artifact missing after tool success",
				"job_id", job.ID, "video_id", ref.ID(), "dir", o.config.OutputDir)
			return nil, domain.NewError(domain.KindArtifactNotFound, domain.ReasonNone, genericToolMessage,
				fmt.Errorf("no artifact for job %s in %s", job.ID, o.config.OutputDir))
		}
		job.MarkArtifactLocated()
		slog.Debug("Job stage", "job_id", job.ID, "stage", domain.StageArtifactLocated, "path", path)

		var size int64
		if st, err := os.Stat(path); err == nil {
			size = st.Size()
		}

		return &domain.Artifact{
			JobID:           job.ID,
			VideoID:         info.VideoID,
			Format:          job.Format,
			Quality:         tier,
			Path:            path,
			DisplayFilename: DisplayFilename(info.Title, info.VideoID, job.Format),
			Title:           info.Title,
			Thumbnail:       info.Thumbnail,
			DurationSeconds: info.DurationSeconds,
			Size:            size,
		}, nil
	}
}

func (o *Orchestrator) invoke(ctx context.Context, job *domain.Job, ref videourl.VideoRef, tier string) ([]byte, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	args := o.downloadArgs(job.ID, job.Format, tier, ref)
	job.MarkToolInvoked()
	slog.Debug("Job stage", "job_id", job.ID, "stage", domain.StageToolInvoked, "quality", tier)

	return o.runner.Run(ctx, args, job.UpdateProgress)
}

// tierFor resolves the effective tier, applying the defaults for each format.
func (o *Orchestrator) tierFor(job *domain.Job) string {
	if job.Format == domain.FormatAudio {
		return quality.NormalizeAudioTier(job.Quality)
	}
	return quality.NormalizeVideoTier(job.Quality)
}

func (o *Orchestrator) downloadArgs(jobID string, format domain.Format, tier string, ref videourl.VideoRef) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"--no-cache-dir",
		"--socket-timeout", "30",
		"--retries", "3",
	}
	if o.config.MaxFileSize > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(o.config.MaxFileSize, 10))
	}
	args = append(args, "-o", filepath.Join(o.config.OutputDir, jobID+".%(ext)s"))
	if o.config.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", o.config.FFmpegPath)
	}

	switch format {
	case domain.FormatAudio:
		args = append(args,
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", quality.AudioBitrateSelector(tier),
		)
	default:
		args = append(args,
			"--format", quality.VideoFormatSelector(tier),
			"--merge-output-format", "mp4",
		)
	}

	// The canonical URL is rebuilt from the validated id.
	return append(args, ref.CanonicalURL())
}

func toolOutput(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Output
	}
	return ""
}
