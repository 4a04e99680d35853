package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strings"

	"mediagrab/internal/pyenv"
)

// debugProbe gathers host and interpreter state for the /debug-info endpoint.
// The runner is injectable so the probe is testable without a Python install.
type debugProbe struct {
	py          *pyenv.Resolver
	run         pyenv.Runner
	downloadDir string
}

// debugInfo is the diagnostic snapshot returned by /debug-info.
type debugInfo struct {
	CWD            string   `json:"cwd"`
	GoVersion      string   `json:"go_version"`
	Platform       string   `json:"platform"`
	Interpreter    string   `json:"interpreter_selected"`
	PythonSystem   string   `json:"python_system"`
	ExtractorCheck string   `json:"yt_dlp_module"`
	DownloadDir    []string `json:"download_dir_contents"`
}

// DebugInfo handles GET /debug-info.
func (h *Handler) DebugInfo(w http.ResponseWriter, r *http.Request) {
	p := h.debug
	info := debugInfo{
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS,
	}
	if cwd, err := os.Getwd(); err == nil {
		info.CWD = cwd
	}

	info.Interpreter = p.py.Resolve()
	info.PythonSystem = p.probe(r.Context(), p.py.Fallback(), "--version")
	info.ExtractorCheck = p.probe(r.Context(), info.Interpreter, "-m", "yt_dlp", "--version")

	if entries, err := os.ReadDir(p.downloadDir); err == nil {
		for _, e := range entries {
			info.DownloadDir = append(info.DownloadDir, e.Name())
		}
	} else {
		info.DownloadDir = []string{"Error: " + err.Error()}
	}

	writeJSON(w, http.StatusOK, info)
}

// probe runs a version-check command and flattens the outcome into one line.
// Version banners come out on stdout or stderr depending on the tool.
func (p debugProbe) probe(ctx context.Context, name string, args ...string) string {
	stdout, stderr, err := p.run(ctx, name, args...)
	if err != nil {
		return "Error: " + err.Error()
	}
	out := strings.TrimSpace(stdout)
	if out == "" {
		out = strings.TrimSpace(stderr)
	}
	return out
}
