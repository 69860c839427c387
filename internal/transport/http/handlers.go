// Package http provides HTTP handlers and router configuration.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emanuelef/yt-convert-go/internal/domain"
	"github.com/emanuelef/yt-convert-go/internal/service/converter"
	"github.com/emanuelef/yt-convert-go/internal/service/queue"
	"github.com/emanuelef/yt-convert-go/internal/transport/http/middleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 * 1024

// Converter is what the handlers need from the service layer.
type Converter interface {
	GetInfo(ctx context.Context, raw string) (*domain.VideoInfo, error)
	Download(ctx context.Context, req domain.DownloadRequest) (*domain.DownloadResponse, error)
	Retrieve(ctx context.Context, token string) (*domain.Retrieval, error)
	Health() *domain.HealthResponse
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	converter Converter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(c Converter) *Handlers {
	return &Handlers{converter: c}
}

// HealthHandler handles GET /api/health requests.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.converter.Health())
}

// VideoInfoHandler handles POST /api/video-info requests.
func (h *Handlers) VideoInfoHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.VideoInfoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := middleware.ValidateVideoInfoRequest(&req); err != nil {
		slog.Warn("Video info validation failed",
			"url", req.URL,
			"error", err,
			"ip", middleware.GetClientIP(r),
		)
		writeError(w, http.StatusBadRequest, string(domain.KindURLParse), err.Error())
		return
	}

	info, err := h.converter.GetInfo(r.Context(), req.URL)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &domain.VideoInfoResponse{
		ID:        info.VideoID,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  domain.FormatDuration(info.DurationSeconds),
	})
}

// DownloadHandler handles POST /api/download requests. It responds once the
// artifact is ready to be fetched from the returned downloadUrl.
func (h *Handlers) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.DownloadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := middleware.ValidateDownloadRequest(&req); err != nil {
		slog.Warn("Download validation failed",
			"url", req.URL,
			"format", req.Format,
			"error", err,
			"ip", middleware.GetClientIP(r),
		)
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.converter.Download(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	slog.Info("Download ready",
		"id", resp.ID,
		"format", resp.Format,
		"quality", resp.Quality,
		"ip", middleware.GetClientIP(r),
	)

	writeJSON(w, http.StatusOK, resp)
}

// FileHandler handles GET /api/download/{id}. Mirrored artifacts redirect to
// a presigned URL; local ones are streamed as an attachment.
func (h *Handlers) FileHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ret, err := h.converter.Retrieve(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if ret.RemoteURL != "" {
		http.Redirect(w, r, ret.RemoteURL, http.StatusFound)
		return
	}

	f, err := os.Open(ret.Path)
	if err != nil {
		// Expired between Retrieve and Open.
		slog.Debug("Artifact vanished before serving", "id", id, "error", err)
		writeError(w, http.StatusNotFound, "not_found", "File not found or expired.")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name, ctype := servedAs(ret)
	w.Header().Set("Content-Disposition", attachment(name, filepath.Base(ret.Path)))
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", stat.ModTime(), f)
}

// fail maps a service error onto a status code and the {error, message} body.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	} else {
		slog.Info("Request rejected",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrDispatcherStopped):
		return http.StatusServiceUnavailable, "busy", "Server is busy, please try again later."
	case errors.Is(err, converter.ErrNotFound):
		return http.StatusNotFound, "not_found", "File not found or expired."
	case errors.Is(err, converter.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_request", err.Error()
	}

	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindURLParse:
			return http.StatusBadRequest, string(de.Kind), de.Message
		case domain.KindVideoUnavailable:
			return http.StatusNotFound, string(de.Kind), de.Message
		case domain.KindToolInvocation:
			if de.IsUserCorrectable() {
				return http.StatusUnprocessableEntity, string(de.Kind), de.Message
			}
			return http.StatusInternalServerError, string(de.Kind), de.Message
		case domain.KindNetwork:
			return http.StatusGatewayTimeout, string(de.Kind), de.Message
		default:
			return http.StatusInternalServerError, string(de.Kind), de.Message
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, string(domain.KindNetwork), "The request took too long. Please try again."
	}
	return http.StatusInternalServerError, "internal_error", domain.UserMessage(err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body.")
		return false
	}
	return true
}

func attachment(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	v := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if v == "" {
		return `attachment; filename="` + fallback + `"`
	}
	return v
}

var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".opus": "audio/ogg",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// servedAs names and types a local artifact after the file actually found,
// which may not be in the requested container.
func servedAs(ret *domain.Retrieval) (string, string) {
	ext := strings.ToLower(filepath.Ext(ret.Path))
	ctype, ok := mediaTypes[ext]
	if !ok {
		if ret.Format == domain.FormatAudio {
			return ret.DisplayFilename, "audio/mpeg"
		}
		return ret.DisplayFilename, "video/mp4"
	}

	name := ret.DisplayFilename
	if name != "" && !strings.EqualFold(filepath.Ext(name), ext) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ext
	}
	return name, ctype
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &domain.ErrorResponse{
		Error:   code,
		Message: message,
	})
}
