// Package pyenv selects the Python interpreter used to invoke yt-dlp in
// module form, and repairs the runtime when no viable interpreter exists.
// Restricted hosts often ship a Python too old for current yt-dlp and mount
// app storage noexec for standalone binaries, so a portable interpreter
// installed next to the app takes priority over the system one.
package pyenv

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// Candidate is one possible interpreter installation. Higher priority wins.
type Candidate struct {
	Path     string
	Priority int
}

// Resolver picks an interpreter from a prioritized candidate list. Selection
// is re-evaluated on every call so a repair that lands mid-process takes
// effect without a restart.
type Resolver struct {
	candidates []Candidate
	fallback   string
}

// NewResolver builds the standard candidate list for this host: the portable
// interpreter under distDir outranks the system default, except on Windows
// where only the system interpreter is viable.
func NewResolver(distDir string) *Resolver {
	fallback := "/usr/bin/python3"
	var candidates []Candidate
	if runtime.GOOS == "windows" {
		fallback = "python"
	} else if distDir != "" {
		candidates = append(candidates, Candidate{
			Path:     filepath.Join(distDir, "python", "bin", "python3"),
			Priority: 10,
		})
	}
	candidates = append(candidates, Candidate{Path: fallback, Priority: 0})
	return NewResolverWithCandidates(candidates, fallback)
}

// NewResolverWithCandidates builds a resolver over an explicit candidate list.
// fallback is returned when no candidate is executable.
func NewResolverWithCandidates(candidates []Candidate, fallback string) *Resolver {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return &Resolver{candidates: sorted, fallback: fallback}
}

// Resolve returns the highest-priority candidate that exists and is
// executable, or the fallback. A missing interpreter is not an error here;
// the subprocess call fails on its own if the fallback is unusable too.
func (r *Resolver) Resolve() string {
	for _, c := range r.candidates {
		if isExecutable(c.Path) {
			return c.Path
		}
	}
	return r.fallback
}

// Fallback returns the platform default interpreter.
func (r *Resolver) Fallback() string { return r.fallback }

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
