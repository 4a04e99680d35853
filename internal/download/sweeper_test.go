package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if age > 0 {
		past := time.Now().Add(-age)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSweepOnce_deletes_only_expired_files(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "grab_old.mp4")
	fresh := filepath.Join(dir, "grab_fresh.mp4")
	touch(t, old, 2*time.Hour)
	touch(t, fresh, 0)

	s := NewSweeper(dir, "grab", time.Hour, time.Minute, testLogger())
	if got := s.SweepOnce(); got != 1 {
		t.Errorf("expected 1 deletion, got %d", got)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired file should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file must survive")
	}
}

func TestSweepOnce_ignores_foreign_files(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "unrelated.mp4")
	touch(t, foreign, 2*time.Hour)

	s := NewSweeper(dir, "grab", time.Hour, time.Minute, testLogger())
	if got := s.SweepOnce(); got != 0 {
		t.Errorf("expected no deletions, got %d", got)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign file must not be touched")
	}
}

func TestSweepOnce_reports_count_via_hook(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "grab_a.mp4"), 2*time.Hour)
	touch(t, filepath.Join(dir, "grab_b.mp3"), 3*time.Hour)

	s := NewSweeper(dir, "grab", time.Hour, time.Minute, testLogger())
	var reported int
	s.OnDeleted = func(n int) { reported = n }

	if got := s.SweepOnce(); got != 2 {
		t.Fatalf("expected 2 deletions, got %d", got)
	}
	if reported != 2 {
		t.Errorf("expected hook to report 2, got %d", reported)
	}
}

func TestRun_stops_on_cancel(t *testing.T) {
	dir := t.TempDir()
	s := NewSweeper(dir, "grab", time.Hour, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
