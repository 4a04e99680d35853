package download

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediagrab/internal/diag"
	"mediagrab/internal/media"
)

// stubTool fakes yt-dlp: it records the command and optionally materializes
// output files the way the real tool would.
type stubTool struct {
	args   [][]string
	err    error
	stderr string
	onRun  func(args []string)
}

func (s *stubTool) RunTool(ctx context.Context, args []string) ([]byte, string, string, error) {
	s.args = append(s.args, args)
	if s.onRun != nil {
		s.onRun(args)
	}
	return nil, s.stderr, "python3 -m yt_dlp " + strings.Join(args, " "), s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestExecutor(t *testing.T, tool ToolRunner) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	e := NewExecutor(dir, "grab", tool, &http.Client{Timeout: 2 * time.Second}, diag.NewRing(8), testLogger())
	e.GraceDelay = 10 * time.Millisecond
	e.newJobID = func() string { return "job1" }
	return e, dir
}

func mustPayload(t *testing.T, p media.TikTokPayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestExecute_carousel_zip_entries_named_by_sequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpegdata" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	e, _ := newTestExecutor(t, &stubTool{})
	job := media.DownloadJob{
		URL:      "https://tiktok.com/x",
		IsTikTok: true,
		ProviderPayload: mustPayload(t, media.TikTokPayload{
			ID:     "42",
			Images: []string{srv.URL + "/a.jpg", srv.URL + "/b.jpg"},
		}),
	}

	rec := httptest.NewRecorder()
	if err := e.Execute(context.Background(), rec, job); err != nil {
		t.Fatal(err)
	}

	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("expected zip content type, got %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "grab_42_carousel.zip") {
		t.Errorf("unexpected disposition %q", got)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "image_1.jpg" || zr.File[1].Name != "image_2.jpg" {
		t.Errorf("entries not named by sequence: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
}

func TestExecute_carousel_partial_failure_still_delivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("jpegdata"))
	}))
	t.Cleanup(srv.Close)

	e, _ := newTestExecutor(t, &stubTool{})
	job := media.DownloadJob{
		IsTikTok: true,
		ProviderPayload: mustPayload(t, media.TikTokPayload{
			ID:     "7",
			Images: []string{srv.URL + "/1.jpg", srv.URL + "/broken.jpg", srv.URL + "/3.jpg"},
		}),
	}

	rec := httptest.NewRecorder()
	if err := e.Execute(context.Background(), rec, job); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("archive must stay valid with a failed entry: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 of 3 entries, got %d", len(zr.File))
	}
	// Naming stays stable by original index.
	if zr.File[0].Name != "image_1.jpg" || zr.File[1].Name != "image_3.jpg" {
		t.Errorf("unexpected entry names: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
}

func TestExecute_single_video_prefers_no_watermark(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		w.Write([]byte("videobytes"))
	}))
	t.Cleanup(srv.Close)

	e, _ := newTestExecutor(t, &stubTool{})
	job := media.DownloadJob{
		IsTikTok: true,
		ProviderPayload: mustPayload(t, media.TikTokPayload{
			ID: "9", HDPlay: srv.URL + "/hd.mp4", Play: srv.URL + "/sd.mp4",
		}),
	}

	rec := httptest.NewRecorder()
	if err := e.Execute(context.Background(), rec, job); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0] != "/hd.mp4" {
		t.Errorf("expected only the no-watermark url fetched, got %v", hits)
	}
	if rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("expected video/mp4, got %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "videobytes" {
		t.Error("body not streamed through")
	}
}

func TestExecute_no_play_url_fails_fast(t *testing.T) {
	e, _ := newTestExecutor(t, &stubTool{})
	job := media.DownloadJob{
		IsTikTok:        true,
		ProviderPayload: mustPayload(t, media.TikTokPayload{ID: "9"}),
	}

	err := e.Execute(context.Background(), httptest.NewRecorder(), job)
	if !errors.Is(err, media.ErrNoPlayURL) {
		t.Fatalf("expected ErrNoPlayURL, got %v", err)
	}
}

func TestExecute_tiktok_without_payload_is_client_error(t *testing.T) {
	e, _ := newTestExecutor(t, &stubTool{})
	err := e.Execute(context.Background(), httptest.NewRecorder(), media.DownloadJob{IsTikTok: true})
	if !errors.Is(err, media.ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
}

func TestExecute_generic_invokes_tool_and_streams_output(t *testing.T) {
	var dir string
	tool := &stubTool{}
	tool.onRun = func(args []string) {
		// Simulate yt-dlp writing its merged output under the template prefix.
		if err := os.WriteFile(filepath.Join(dir, "grab_job1_abc.mp4"), []byte("merged"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e, d := newTestExecutor(t, tool)
	dir = d

	rec := httptest.NewRecorder()
	err := e.Execute(context.Background(), rec, media.DownloadJob{URL: "https://youtube.com/watch?v=abc", FormatID: "137"})
	if err != nil {
		t.Fatal(err)
	}

	args := strings.Join(tool.args[0], " ")
	for _, want := range []string{
		"-m yt_dlp", "--no-check-certificate", "--no-part",
		"-f 137+bestaudio/best", "--merge-output-format mp4",
		"grab_job1_%(id)s.%(ext)s", "https://youtube.com/watch?v=abc",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("expected %q in command args: %s", want, args)
		}
	}
	if rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("expected video/mp4, got %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "filename*=UTF-8''") {
		t.Errorf("expected RFC 5987 filename, got %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != "merged" {
		t.Error("output file not streamed")
	}

	// File is deleted after the grace delay, not immediately.
	path := filepath.Join(dir, "grab_job1_abc.mp4")
	if _, err := os.Stat(path); err != nil {
		t.Fatal("file must survive until the grace delay elapses")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("file not deleted after grace delay")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExecute_subprocess_failure_captured(t *testing.T) {
	tool := &stubTool{err: errors.New("exit status 1"), stderr: "ERROR: no formats"}
	ring := diag.NewRing(4)
	dir := t.TempDir()
	e := NewExecutor(dir, "grab", tool, http.DefaultClient, ring, testLogger())
	e.newJobID = func() string { return "job1" }

	err := e.Execute(context.Background(), httptest.NewRecorder(), media.DownloadJob{URL: "https://example.com/x"})
	var subErr *media.SubprocessError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubprocessError, got %v", err)
	}
	if subErr.Stderr != "ERROR: no formats" {
		t.Errorf("stderr not retained: %q", subErr.Stderr)
	}

	last, ok := ring.Last()
	if !ok {
		t.Fatal("expected diagnostic event")
	}
	if last.Stderr != "ERROR: no formats" || !strings.Contains(last.Command, "yt_dlp") {
		t.Errorf("diagnostic context incomplete: %+v", last)
	}
}

func TestExecute_missing_output_reported_distinctly(t *testing.T) {
	// Tool exits cleanly but writes nothing.
	e, _ := newTestExecutor(t, &stubTool{})
	err := e.Execute(context.Background(), httptest.NewRecorder(), media.DownloadJob{URL: "https://example.com/x"})
	if !errors.Is(err, media.ErrOutputMissing) {
		t.Fatalf("expected ErrOutputMissing, got %v", err)
	}
}

func TestNewestFile_picks_most_recent_with_prefix(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "grab_job1_a.webm")
	fresh := filepath.Join(dir, "grab_job1_b.mp4")
	other := filepath.Join(dir, "grab_job2_c.mp4")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	_, name, err := newestFile(dir, "grab_job1")
	if err != nil {
		t.Fatal(err)
	}
	if name != "grab_job1_b.mp4" {
		t.Errorf("expected newest prefixed file, got %s", name)
	}
}

func TestContentTypeForExt(t *testing.T) {
	cases := map[string]string{
		".mp4":  "video/mp4",
		".MP3":  "audio/mpeg",
		".webm": "video/webm",
		".mkv":  "application/octet-stream",
		"":      "application/octet-stream",
	}
	for ext, want := range cases {
		if got := contentTypeForExt(ext); got != want {
			t.Errorf("contentTypeForExt(%q) = %q, want %q", ext, got, want)
		}
	}
}
