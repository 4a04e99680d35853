package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"mediagrab/internal/diag"
	"mediagrab/internal/media"
	"mediagrab/internal/pyenv"
)

// maxToolOutput caps captured subprocess output so a runaway extraction tool
// cannot grow memory without bound.
const maxToolOutput = 10 << 20

// YtDlp is the generic resolver: it shells out to yt-dlp in module form for
// every platform the short-form providers do not cover. Module invocation is
// preferred over the standalone binary, which noexec-mounted hosts refuse to
// run; certificate validation is disabled because portable runtimes often
// lack a usable CA bundle.
type YtDlp struct {
	py     *pyenv.Resolver
	tmpDir string
	ring   *diag.Ring
	log    *slog.Logger
}

// NewYtDlp returns a resolver invoking the interpreter chosen by py, with
// subprocess temp files redirected into tmpDir.
func NewYtDlp(py *pyenv.Resolver, tmpDir string, ring *diag.Ring, log *slog.Logger) *YtDlp {
	return &YtDlp{py: py, tmpDir: tmpDir, ring: ring, log: log}
}

func (y *YtDlp) Name() string { return "yt-dlp" }

// infoJSON is the subset of yt-dlp's -j output the resolver consumes.
type infoJSON struct {
	Title        string            `json:"title"`
	Thumbnail    string            `json:"thumbnail"`
	Duration     float64           `json:"duration"`
	Uploader     string            `json:"uploader"`
	ExtractorKey string            `json:"extractor_key"`
	Formats      []media.RawFormat `json:"formats"`
}

// Resolve probes the URL with `-j` and ranks the returned formats. A non-zero
// exit retains the exact command line and stderr in the diagnostic ring and
// surfaces both in the returned error.
func (y *YtDlp) Resolve(ctx context.Context, rawURL string) (*media.ResolvedMedia, error) {
	interp := y.py.Resolve()
	args := []string{"-m", "yt_dlp", "--no-check-certificate", "-j", rawURL}

	stdout, stderr, err := y.runTool(ctx, interp, args)
	if err != nil {
		cmdline := interp + " " + strings.Join(args, " ")
		y.log.Error("extraction tool failed",
			slog.String("url", rawURL),
			slog.String("command", cmdline),
			slog.String("error", err.Error()),
		)
		y.ring.Append(diag.Event{
			Stage:   "resolve",
			Message: err.Error(),
			Command: cmdline,
			Stderr:  stderr,
		})
		return nil, &media.SubprocessError{Command: cmdline, Stderr: stderr, Err: err}
	}

	var info infoJSON
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("failed to parse video data: %w", err)
	}

	return &media.ResolvedMedia{
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		Uploader:  info.Uploader,
		Platform:  info.ExtractorKey,
		Formats:   media.Rank(info.Formats),
	}, nil
}

// RunTool invokes the extraction tool in module form with output capped at
// maxToolOutput. Shared with the download executor. No deadline is applied
// beyond ctx; large downloads legitimately run for a long time.
func (y *YtDlp) RunTool(ctx context.Context, args []string) (stdout []byte, stderr string, cmdline string, err error) {
	interp := y.py.Resolve()
	out, errOut, runErr := y.runTool(ctx, interp, args)
	return out, errOut, interp + " " + strings.Join(args, " "), runErr
}

// Ring exposes the diagnostic sink so callers sharing this tool can record
// their own failures alongside resolver ones.
func (y *YtDlp) Ring() *diag.Ring { return y.ring }

func (y *YtDlp) runTool(ctx context.Context, interp string, args []string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, interp, args...)
	cmd.Env = append(os.Environ(),
		"TMPDIR="+y.tmpDir,
		"TEMP="+y.tmpDir,
		"TMP="+y.tmpDir,
	)

	var stdout, stderr cappedBuffer
	stdout.max = maxToolOutput
	stderr.max = maxToolOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// cappedBuffer keeps the first max bytes written and silently drops the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }
