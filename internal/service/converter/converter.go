// Package converter is the surface the transport layer talks to: metadata
// lookup, conversion, and retrieval of finished artifacts.
package converter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emanuelef/yt-convert-go/internal/domain"
	"github.com/emanuelef/yt-convert-go/internal/service/queue"
	"github.com/emanuelef/yt-convert-go/internal/service/registry"
	"github.com/emanuelef/yt-convert-go/internal/service/videourl"
)

var (
	// ErrNotFound is returned by Retrieve for unknown, expired or vanished artifacts.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidFormat is returned when a request names no supported format.
	ErrInvalidFormat = errors.New("format must be mp3 or mp4")
)

// DownloadPathPrefix is where artifacts are served from.
const DownloadPathPrefix = "/api/download/"

// Downloader runs jobs and manages their files.
type Downloader interface {
	FetchInfo(ctx context.Context, raw string) (*domain.VideoInfo, error)
	Download(ctx context.Context, job *domain.Job) (*domain.Artifact, error)
	LocateArtifact(ctx context.Context, jobID, ext string) (string, bool)
	DeleteArtifact(path string) error
}

// Mirror is remote object storage holding a copy of each artifact.
type Mirror interface {
	Upload(ctx context.Context, filePath, key, displayName string) error
	GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Config holds the service settings.
type Config struct {
	MaxWorkers         int
	MaxQueueSize       int
	ArtifactTTL        time.Duration
	PresignedURLExpiry time.Duration
}

// Service converts videos with bounded concurrency and serves the results
// for ArtifactTTL.
type Service struct {
	cfg        Config
	downloader Downloader
	mirror     Mirror
	dispatcher *queue.Dispatcher
	registry   *registry.Registry
	newID      func() string
}

// Option configures a Service.
type Option func(*Service)

// WithMirror uploads every artifact to m and serves it from there.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// New creates a Service. Call Start before Download.
func New(cfg Config, dl Downloader, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		downloader: dl,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.PresignedURLExpiry <= 0 {
		s.cfg.PresignedURLExpiry = 15 * time.Minute
	}

	s.registry = registry.New(dl, cfg.ArtifactTTL, registry.WithOnEvict(s.evictRemote))
	s.dispatcher = queue.NewDispatcher(cfg.MaxWorkers, cfg.MaxQueueSize, s.process)
	return s
}

// Start starts the worker pool. Workers stop when ctx is cancelled or on Close.
func (s *Service) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
}

// Close stops the workers and all pending expiries.
func (s *Service) Close() {
	s.dispatcher.Stop()
	s.registry.Close()
}

func (s *Service) process(ctx context.Context, job *domain.Job) {
	artifact, err := s.downloader.Download(ctx, job)
	// Download finishes the job; repeating it here is a no-op unless a
	// downloader forgot to.
	if err != nil {
		job.MarkFailed(err)
		return
	}
	job.MarkReady(artifact)
}

// GetInfo returns metadata for the video raw points at.
func (s *Service) GetInfo(ctx context.Context, raw string) (*domain.VideoInfo, error) {
	return s.downloader.FetchInfo(ctx, raw)
}

// Download converts the requested video and returns once the artifact is
// ready to be retrieved.
func (s *Service) Download(ctx context.Context, req domain.DownloadRequest) (*domain.DownloadResponse, error) {
	format, ok := domain.ParseFormat(req.Format)
	if !ok {
		return nil, ErrInvalidFormat
	}
	_, cleanURL, err := videourl.RequireCanonical(req.URL)
	if err != nil {
		return nil, err
	}

	job := domain.NewJob(s.newID(), cleanURL, format, req.Quality)
	if err := s.dispatcher.Enqueue(job); err != nil {
		return nil, err
	}

	select {
	case <-job.Done():
	case <-ctx.Done():
		if job.Withdraw(ctx.Err()) {
			slog.Info("Queued job withdrawn", "job_id", job.ID)
		} else {
			go s.abandon(job)
		}
		return nil, ctx.Err()
	}

	artifact, err := job.Result()
	if err != nil {
		return nil, err
	}

	entry := registry.Entry{
		JobID:           job.ID,
		Format:          artifact.Format,
		DisplayFilename: artifact.DisplayFilename,
	}
	if s.mirror != nil {
		key := objectKey(job.ID, artifact.DisplayFilename)
		if err := s.mirror.Upload(ctx, artifact.Path, key, artifact.DisplayFilename); err != nil {
			slog.Warn("Mirror upload failed, serving locally", "job_id", job.ID, "error", err)
		} else {
			entry.RemoteKey = key
		}
	}

	if err := s.registry.RegisterEntry(entry); err != nil {
		_ = s.downloader.DeleteArtifact(artifact.Path)
		return nil, err
	}

	return &domain.DownloadResponse{
		ID:              job.ID,
		Title:           artifact.Title,
		Thumbnail:       artifact.Thumbnail,
		Duration:        domain.FormatDuration(artifact.DurationSeconds),
		DurationSeconds: artifact.DurationSeconds,
		DownloadURL:     DownloadPathPrefix + job.ID,
		Filename:        artifact.DisplayFilename,
		Format:          artifact.Format.Token(),
		Quality:         artifact.Quality,
	}, nil
}

// abandon removes the artifact of a job whose caller went away.
func (s *Service) abandon(job *domain.Job) {
	<-job.Done()
	if artifact, err := job.Result(); err == nil && artifact != nil {
		if err := s.downloader.DeleteArtifact(artifact.Path); err != nil {
			slog.Debug("Failed to delete abandoned artifact", "job_id", job.ID, "error", err)
		}
		slog.Info("Abandoned job cleaned up", "job_id", job.ID)
	}
}

// Retrieve resolves a download token to something servable.
func (s *Service) Retrieve(ctx context.Context, token string) (*domain.Retrieval, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}

	entry, ok := s.registry.Resolve(token)
	if !ok {
		return nil, ErrNotFound
	}

	if entry.RemoteKey != "" && s.mirror != nil {
		url, err := s.mirror.GeneratePresignedURL(ctx, entry.RemoteKey, s.cfg.PresignedURLExpiry)
		if err == nil {
			return &domain.Retrieval{
				DisplayFilename: entry.DisplayFilename,
				Format:          entry.Format,
				RemoteURL:       url,
			}, nil
		}
		slog.Warn("Presigning failed, falling back to local file", "job_id", token, "error", err)
	}

	path, ok := s.downloader.LocateArtifact(ctx, token, entry.Format.Extension())
	if !ok {
		return nil, ErrNotFound
	}
	return &domain.Retrieval{
		Path:            path,
		DisplayFilename: entry.DisplayFilename,
		Format:          entry.Format,
	}, nil
}

// Health reports queue and registry state.
func (s *Service) Health() *domain.HealthResponse {
	return &domain.HealthResponse{
		Status:          "ok",
		QueueSize:       s.dispatcher.QueueSize(),
		Workers:         s.dispatcher.WorkerCount(),
		ActiveArtifacts: s.registry.Len(),
	}
}

func (s *Service) evictRemote(e registry.Entry) {
	if e.RemoteKey == "" || s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.mirror.Delete(ctx, e.RemoteKey); err != nil {
		slog.Debug("Failed to delete mirrored artifact", "job_id", e.JobID, "key", e.RemoteKey, "error", err)
	}
}

func objectKey(jobID, filename string) string {
	return jobID + "/" + filename
}
