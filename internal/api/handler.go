// Package api exposes the media pipeline over HTTP: resolution, download,
// repair, and diagnostic endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"mediagrab/internal/diag"
	"mediagrab/internal/media"
	"mediagrab/internal/platform/metrics"
	"mediagrab/internal/provider"
	"mediagrab/internal/pyenv"
)

// URLResolver resolves a URL into media descriptors. Both chains satisfy it.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) (*media.ResolvedMedia, error)
}

// Downloader executes a download job against the response writer.
type Downloader interface {
	Execute(ctx context.Context, w http.ResponseWriter, job media.DownloadJob) error
}

// RuntimeRepairer drives the environment self-healing flows.
type RuntimeRepairer interface {
	Bootstrap(ctx context.Context) pyenv.Report
	RepairExtractor(ctx context.Context) pyenv.Report
}

// Handler exposes the media pipeline HTTP endpoints using go-chi.
type Handler struct {
	shortForm URLResolver
	generic   URLResolver
	exec      Downloader
	repairer  RuntimeRepairer
	ring      *diag.Ring
	log       *slog.Logger
	metrics   *metrics.Metrics

	debug debugProbe
}

// NewHandler wires the pipeline components into a Handler. Metrics may be nil
// to disable metric recording (e.g. in tests).
func NewHandler(shortForm, generic URLResolver, exec Downloader, repairer RuntimeRepairer, py *pyenv.Resolver, downloadDir string, ring *diag.Ring, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		shortForm: shortForm,
		generic:   generic,
		exec:      exec,
		repairer:  repairer,
		ring:      ring,
		log:       log,
		metrics:   m,
		debug:     debugProbe{py: py, run: pyenv.ExecRunner, downloadDir: downloadDir},
	}
}

// Mount registers all pipeline routes on the given router.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/video-info", h.VideoInfo)
	r.Post("/api/download", h.Download)
	r.Get("/fix-ytdlp", h.FixExtractor)
	r.Get("/fix-python", h.FixRuntime)
	r.Get("/debug-info", h.DebugInfo)
	r.Get("/view-error", h.ViewError)
	r.Get("/health", h.Health)
}

// VideoInfo handles POST /api/video-info. Body: { "url": "..." }.
func (h *Handler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	var req media.MediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "URL is required"})
		return
	}
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "URL is not valid"})
		return
	}

	resolver := h.generic
	if provider.IsShortForm(req.URL) {
		resolver = h.shortForm
	}

	res, err := resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		h.writeResolveError(w, req.URL, err)
		return
	}

	h.log.Info("resolved media",
		slog.String("url", req.URL),
		slog.String("platform", res.Platform),
		slog.Int("formats", len(res.Formats)),
	)
	if h.metrics != nil {
		h.metrics.IncResolutions()
	}
	writeJSON(w, http.StatusOK, res)
}

// Download handles POST /api/download. On success the response is the media
// stream itself; errors before the first byte produce a JSON body.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var job media.DownloadJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if job.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "URL is required"})
		return
	}

	if h.metrics != nil {
		h.metrics.DownloadStarted()
		defer h.metrics.DownloadFinished()
	}

	if err := h.exec.Execute(r.Context(), w, job); err != nil {
		h.writeDownloadError(w, job, err)
	}
}

// FixExtractor handles GET /fix-ytdlp: reinstall the extraction module on the
// existing interpreter.
func (h *Handler) FixExtractor(w http.ResponseWriter, r *http.Request) {
	report := h.repairer.RepairExtractor(r.Context())
	h.log.Info("extractor repair finished", slog.Bool("success", report.Success))
	writeJSON(w, http.StatusOK, report)
}

// FixRuntime handles GET /fix-python: bootstrap a portable runtime plus the
// extraction module.
func (h *Handler) FixRuntime(w http.ResponseWriter, r *http.Request) {
	report := h.repairer.Bootstrap(r.Context())
	h.log.Info("runtime bootstrap finished", slog.Bool("success", report.Success))
	writeJSON(w, http.StatusOK, report)
}

// ViewError handles GET /view-error: the newest captured failure plus the
// ring snapshot.
func (h *Handler) ViewError(w http.ResponseWriter, r *http.Request) {
	last, ok := h.ring.Last()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No errors captured yet."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"last":    last,
		"history": h.ring.Snapshot(),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the JSON error shape: a machine-readable code plus optional
// operator detail. Raw stack traces never appear here.
type errorBody struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (h *Handler) writeResolveError(w http.ResponseWriter, rawURL string, err error) {
	h.log.Error("resolution failed", slog.String("url", rawURL), slog.String("error", err.Error()))

	var subErr *media.SubprocessError
	var resErr *media.ResolutionError
	switch {
	case errors.As(err, &subErr):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Failed to fetch video info",
			Details: subErr.Err.Error(),
			Stderr:  subErr.Stderr,
		})
	case errors.As(err, &resErr):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:      "Could not resolve this URL",
			Details:    resErr.Error(),
			Suggestion: "Check that the link is public and try again in a minute.",
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Failed to fetch video info",
			Details: err.Error(),
		})
	}
}

func (h *Handler) writeDownloadError(w http.ResponseWriter, job media.DownloadJob, err error) {
	h.log.Error("download failed", slog.String("url", job.URL), slog.String("error", err.Error()))

	var subErr *media.SubprocessError
	switch {
	case errors.Is(err, media.ErrMissingPayload):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "provider payload missing"})
	case errors.Is(err, media.ErrNoPlayURL):
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Video URL not found"})
	case errors.Is(err, media.ErrOutputMissing):
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "File not found"})
	case errors.As(err, &subErr):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Download failed",
			Details: subErr.Err.Error(),
			Stderr:  subErr.Stderr,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Download failed", Details: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
