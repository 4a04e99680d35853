package pyenv

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}
}

func TestResolver_prefers_highest_priority_executable(t *testing.T) {
	dir := t.TempDir()
	portable := filepath.Join(dir, "python_dist", "python", "bin", "python3")
	system := filepath.Join(dir, "usr", "bin", "python3")
	writeFile(t, portable, 0o755)
	writeFile(t, system, 0o755)

	r := NewResolverWithCandidates([]Candidate{
		{Path: system, Priority: 0},
		{Path: portable, Priority: 10},
	}, system)

	if got := r.Resolve(); got != portable {
		t.Errorf("expected portable interpreter %s, got %s", portable, got)
	}
}

func TestResolver_skips_non_executable_candidate(t *testing.T) {
	dir := t.TempDir()
	portable := filepath.Join(dir, "portable", "python3")
	system := filepath.Join(dir, "system", "python3")
	writeFile(t, portable, 0o644) // present but not executable
	writeFile(t, system, 0o755)

	r := NewResolverWithCandidates([]Candidate{
		{Path: portable, Priority: 10},
		{Path: system, Priority: 0},
	}, system)

	if got := r.Resolve(); got != system {
		t.Errorf("expected system interpreter, got %s", got)
	}
}

func TestResolver_falls_back_when_nothing_viable(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope", "python3")

	r := NewResolverWithCandidates([]Candidate{{Path: missing, Priority: 10}}, "/usr/bin/python3")

	// No error: callers invoke the default and let the subprocess fail.
	if got := r.Resolve(); got != "/usr/bin/python3" {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestResolver_reevaluates_per_call(t *testing.T) {
	dir := t.TempDir()
	portable := filepath.Join(dir, "python3")

	r := NewResolverWithCandidates([]Candidate{{Path: portable, Priority: 10}}, "/usr/bin/python3")
	if got := r.Resolve(); got != "/usr/bin/python3" {
		t.Fatalf("expected fallback before install, got %s", got)
	}

	// A repair landing mid-process must take effect without restart.
	writeFile(t, portable, 0o755)
	if got := r.Resolve(); got != portable {
		t.Errorf("expected portable after install, got %s", got)
	}
}
