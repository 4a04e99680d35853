package pyenv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// runtimeArchiveURL is a pinned python-build-standalone release known to run
// on old glibc hosts. Later releases have been pulled before; do not float.
const runtimeArchiveURL = "https://github.com/indygreg/python-build-standalone/releases/download/20240107/cpython-3.9.18+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz"

// legacyExtractorPin is the last yt-dlp release that still supports the old
// system Python found on constrained hosts.
const legacyExtractorPin = "yt-dlp<=2023.03.04"

// spoofedUserAgent avoids download blocks on hosts that reject default
// curl/wget agents.
const spoofedUserAgent = "Mozilla/5.0"

// Report is the outcome of a repair flow. The log carries one human-readable
// line per step so partial progress is presentable even on failure.
type Report struct {
	Success bool     `json:"success"`
	Log     []string `json:"log"`
}

// Runner executes one external command and returns its stdout and stderr.
// Injectable so repair flows are testable without a host toolchain.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// ExecRunner runs commands via os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.String(), errBuf.String(), err
}

// Repairer drives the two self-healing flows: a full portable-runtime
// bootstrap and an extractor-module-only repair.
type Repairer struct {
	installDir string // portable runtime install target
	binDir     string // where a stale standalone yt-dlp binary may live
	run        Runner
}

// NewRepairer returns a Repairer installing into installDir and checking
// binDir for a conflicting standalone binary. runner may be nil to use
// ExecRunner.
func NewRepairer(installDir, binDir string, runner Runner) *Repairer {
	if runner == nil {
		runner = ExecRunner
	}
	return &Repairer{installDir: installDir, binDir: binDir, run: runner}
}

// Bootstrap downloads and installs a pinned portable runtime plus the
// extraction module, verifying each step and aborting on the first failure.
// It always returns a Report rather than an error.
func (r *Repairer) Bootstrap(ctx context.Context) Report {
	var log []string
	add := func(format string, args ...any) { log = append(log, fmt.Sprintf(format, args...)) }
	fail := func() Report { return Report{Success: false, Log: log} }

	add("Starting environment upgrade: portable Python 3.9 for latest yt-dlp.")

	if _, _, err := r.run(ctx, "curl", "--version"); err != nil {
		add("Error: curl missing: %v", err)
		return fail()
	}

	tarFile := filepath.Join(filepath.Dir(r.installDir), "python.tar.gz")
	add("Downloading runtime from %s", runtimeArchiveURL)
	if _, stderr, err := r.run(ctx, "curl", "-L", runtimeArchiveURL, "-o", tarFile, "-H", "User-Agent: "+spoofedUserAgent); err != nil {
		add("Download failed: %v", err)
		add("Stderr: %s", strings.TrimSpace(stderr))
		return fail()
	}
	add("Download completed.")

	if err := os.MkdirAll(r.installDir, 0o755); err != nil {
		add("Could not create install dir %s: %v", r.installDir, err)
		return fail()
	}
	add("Extracting to %s", r.installDir)
	if _, stderr, err := r.run(ctx, "tar", "-xzf", tarFile, "-C", r.installDir); err != nil {
		add("Extraction failed: %v", err)
		add("Stderr: %s", strings.TrimSpace(stderr))
		return fail()
	}
	add("Extraction completed.")
	_ = os.Remove(tarFile)

	// Archive layout is not guaranteed: probe nested then direct.
	pyPath := filepath.Join(r.installDir, "python", "bin", "python3")
	if !isExecutable(pyPath) {
		pyPath = filepath.Join(r.installDir, "bin", "python3")
	}
	if !isExecutable(pyPath) {
		add("Could not locate python3 binary in %s", r.installDir)
		if entries, err := os.ReadDir(r.installDir); err == nil {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			add("Dir listing: %s", strings.Join(names, ", "))
		}
		return fail()
	}
	add("Found binary: %s", pyPath)

	add("Installing latest yt-dlp via pip...")
	if stdout, stderr, err := r.run(ctx, pyPath, "-m", "pip", "install", "yt-dlp"); err != nil {
		add("Pip install failed: %v", err)
		add("Stderr: %s", strings.TrimSpace(stderr))
		return fail()
	} else if s := strings.TrimSpace(stdout); s != "" {
		add("Pip output: %s", s)
	}

	stdout, stderr, err := r.run(ctx, pyPath, "-m", "yt_dlp", "--version")
	if err != nil {
		add("Verification failed: %v", err)
		add("Stderr: %s", strings.TrimSpace(stderr))
		return fail()
	}
	add("Verified yt-dlp version: %s", strings.TrimSpace(firstNonEmpty(stdout, stderr)))
	return Report{Success: true, Log: log}
}

// RepairExtractor reinstalls the extraction module alone, pinned to the last
// release compatible with the old system interpreter. A stale standalone
// binary is removed so module invocation wins from then on.
func (r *Repairer) RepairExtractor(ctx context.Context) Report {
	var log []string
	add := func(format string, args ...any) { log = append(log, fmt.Sprintf(format, args...)) }

	add("Starting extractor repair via legacy pip (old system Python support).")

	if stdout, stderr, err := r.run(ctx, "python3", "-m", "pip", "install", "--user", legacyExtractorPin); err != nil {
		// Verification below still decides the outcome: the module may
		// already be installed even when pip itself errors.
		add("Pip install failed: %v", err)
		add("Stderr: %s", strings.TrimSpace(stderr))
	} else {
		if s := strings.TrimSpace(stdout); s != "" {
			add("Pip install output: %s", s)
		}
		add("Pip install completed.")
	}

	stdout, stderr, err := r.run(ctx, "python3", "-m", "yt_dlp", "--version")
	if err != nil {
		add("Verification failed: %v", err)
		return Report{Success: false, Log: log}
	}
	add("Installed legacy yt-dlp version: %s", strings.TrimSpace(firstNonEmpty(stdout, stderr)))

	staleBin := filepath.Join(r.binDir, "yt-dlp")
	if _, statErr := os.Stat(staleBin); statErr == nil {
		if rmErr := os.Remove(staleBin); rmErr == nil {
			add("Removed stale standalone binary %s", staleBin)
		} else {
			add("Could not remove stale binary %s: %v", staleBin, rmErr)
		}
	}

	return Report{Success: true, Log: log}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
