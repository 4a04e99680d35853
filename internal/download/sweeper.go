package download

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTTL is the retention window for materialized files. Kept an
	// order of magnitude above any realistic single-request duration so the
	// sweeper cannot plausibly race an active stream.
	DefaultTTL = time.Hour

	// DefaultSweepInterval is how often the sweep runs.
	DefaultSweepInterval = 30 * time.Minute
)

// Sweeper deletes prefix-owned files in the download directory once they
// outlive the TTL. It is a safety net against files orphaned by crashed or
// abandoned downloads, independent of the executor's own post-stream cleanup.
type Sweeper struct {
	dir      string
	prefix   string
	ttl      time.Duration
	interval time.Duration
	log      *slog.Logger

	// OnDeleted is invoked with the number of files removed per sweep. Optional.
	OnDeleted func(n int)
}

// NewSweeper returns a sweeper over dir for files starting with prefix.
// Non-positive ttl or interval fall back to the defaults.
func NewSweeper(dir, prefix string, ttl, interval time.Duration, log *slog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{dir: dir, prefix: prefix, ttl: ttl, interval: interval, log: log}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce scans the directory and removes expired files, returning how many
// were deleted.
func (s *Sweeper) SweepOnce() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("sweep scan failed", slog.String("dir", s.dir), slog.String("error", err.Error()))
		return 0
	}

	cutoff := time.Now().Add(-s.ttl)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.log.Warn("sweep delete failed", slog.String("file", entry.Name()), slog.String("error", err.Error()))
			continue
		}
		deleted++
		s.log.Info("swept expired file", slog.String("file", entry.Name()))
	}

	if deleted > 0 && s.OnDeleted != nil {
		s.OnDeleted(deleted)
	}
	return deleted
}
