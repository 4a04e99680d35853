package download

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediagrab/internal/diag"
	"mediagrab/internal/media"
)

// defaultGraceDelay is how long a served file lingers after its stream ends
// before deletion, so slow clients can drain the connection buffer.
const defaultGraceDelay = time.Second

// ToolRunner invokes the extraction tool in module form. Satisfied by
// provider.YtDlp so resolve and download share one interpreter/env path.
type ToolRunner interface {
	RunTool(ctx context.Context, args []string) (stdout []byte, stderr string, cmdline string, err error)
}

// Executor turns a download job into bytes on the wire: a re-streamed play
// URL, a streamed ZIP of carousel images, or a locally materialized yt-dlp
// output file.
type Executor struct {
	dir    string
	prefix string
	tool   ToolRunner
	client *http.Client
	ring   *diag.Ring
	log    *slog.Logger

	// GraceDelay overrides the post-stream deletion delay; tests shorten it.
	GraceDelay time.Duration

	// OnDownload is invoked once per successfully started download. Optional.
	OnDownload func()

	newJobID func() string
}

// NewExecutor returns an executor materializing files under dir with the
// given filename prefix.
func NewExecutor(dir, prefix string, tool ToolRunner, client *http.Client, ring *diag.Ring, log *slog.Logger) *Executor {
	return &Executor{
		dir:        dir,
		prefix:     prefix,
		tool:       tool,
		client:     client,
		ring:       ring,
		log:        log,
		GraceDelay: defaultGraceDelay,
		newJobID:   func() string { return uuid.NewString()[:8] },
	}
}

// Execute routes and runs one job, writing the media stream to w. An error
// return means no response bytes were written yet and the caller should send
// a JSON error instead.
func (e *Executor) Execute(ctx context.Context, w http.ResponseWriter, job media.DownloadJob) error {
	if job.IsTikTok {
		if len(job.ProviderPayload) == 0 {
			return media.ErrMissingPayload
		}
		var payload media.TikTokPayload
		if err := json.Unmarshal(job.ProviderPayload, &payload); err != nil {
			return fmt.Errorf("decode provider payload: %w", err)
		}
		if len(payload.Images) > 0 {
			return e.streamCarousel(ctx, w, payload)
		}
		return e.streamPlayURL(ctx, w, payload)
	}
	return e.runExtraction(ctx, w, job)
}

// streamCarousel builds a ZIP archive directly against the response, one
// entry per image named by original index. A failed image is logged and
// skipped; partial archives are delivered rather than failing the request.
func (e *Executor) streamCarousel(ctx context.Context, w http.ResponseWriter, payload media.TikTokPayload) error {
	filename := fmt.Sprintf("%s_%s_carousel.zip", e.prefix, payloadID(payload))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	if e.OnDownload != nil {
		e.OnDownload()
	}

	zw := zip.NewWriter(w)
	for i, imageURL := range payload.Images {
		if err := e.appendImage(ctx, zw, imageURL, i+1); err != nil {
			e.log.Warn("carousel image skipped",
				slog.Int("index", i+1),
				slog.String("url", imageURL),
				slog.String("error", err.Error()),
			)
			e.ring.Append(diag.Event{Stage: "archive", Message: fmt.Sprintf("image %d skipped: %v", i+1, err)})
		}
	}
	// Finalize only after every entry has been attempted.
	return zw.Close()
}

func (e *Executor) appendImage(ctx context.Context, zw *zip.Writer, imageURL string, index int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	entry, err := zw.Create(fmt.Sprintf("image_%d.jpg", index))
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, resp.Body)
	return err
}

// streamPlayURL re-streams a single short-form video, preferring the
// watermark-free variant.
func (e *Executor) streamPlayURL(ctx context.Context, w http.ResponseWriter, payload media.TikTokPayload) error {
	playURL := payload.HDPlay
	if playURL == "" {
		playURL = payload.Play
	}
	if playURL == "" {
		return media.ErrNoPlayURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch play url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("play url status %d", resp.StatusCode)
	}

	filename := fmt.Sprintf("%s_%s.mp4", e.prefix, payloadID(payload))
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	if e.OnDownload != nil {
		e.OnDownload()
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are gone; nothing to do but log the broken pipe.
		e.log.Debug("play url stream interrupted", slog.String("error", err.Error()))
	}
	return nil
}

// runExtraction invokes the tool, locates the materialized output, streams it,
// and schedules deletion after the grace delay.
func (e *Executor) runExtraction(ctx context.Context, w http.ResponseWriter, job media.DownloadJob) error {
	sel := BuildSelector(job.FormatID)

	// Each job gets its own prefix so the newest-file scan below can only
	// ever see this job's output.
	jobPrefix := fmt.Sprintf("%s_%s", e.prefix, e.newJobID())
	template := filepath.Join(e.dir, jobPrefix+"_%(id)s.%(ext)s")

	args := []string{"-m", "yt_dlp", "--no-check-certificate", "--no-part", "-f", sel.Selector}
	args = append(args, sel.Args...)
	args = append(args, "-o", template, job.URL)

	_, stderr, cmdline, err := e.tool.RunTool(ctx, args)
	if err != nil {
		e.ring.Append(diag.Event{Stage: "download", Message: err.Error(), Command: cmdline, Stderr: stderr})
		return &media.SubprocessError{Command: cmdline, Stderr: stderr, Err: err}
	}

	// Merging may change the extension, so the tool's exact output name is
	// not known up front; the newest file under the job prefix is the result.
	path, name, err := newestFile(e.dir, jobPrefix)
	if err != nil {
		e.ring.Append(diag.Event{Stage: "download", Message: "output missing after successful run", Command: cmdline})
		return media.ErrOutputMissing
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentTypeForExt(filepath.Ext(name)))
	w.Header().Set("Content-Disposition", contentDisposition(name))
	if e.OnDownload != nil {
		e.OnDownload()
	}
	if _, err := io.Copy(w, f); err != nil {
		e.log.Debug("file stream interrupted", slog.String("file", name), slog.String("error", err.Error()))
	}

	time.AfterFunc(e.GraceDelay, func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			e.log.Warn("post-stream cleanup failed", slog.String("file", name), slog.String("error", rmErr.Error()))
		}
	})
	return nil
}

// newestFile returns the most recently modified file in dir whose name starts
// with prefix.
func newestFile(dir, prefix string) (path, name string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", err
	}

	var best os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if best == nil || info.ModTime().After(best.ModTime()) {
			best = info
		}
	}
	if best == nil {
		return "", "", media.ErrOutputMissing
	}
	return filepath.Join(dir, best.Name()), best.Name(), nil
}

func payloadID(payload media.TikTokPayload) string {
	if payload.ID != "" {
		return payload.ID
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// contentTypeForExt maps known output extensions; anything else is generic
// binary.
func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// contentDisposition builds an attachment header with the RFC 5987 UTF-8
// filename parameter alongside the plain quoted fallback.
func contentDisposition(filename string) string {
	return fmt.Sprintf(`attachment; filename=%q; filename*=UTF-8''%s`, filename, url.PathEscape(filename))
}
