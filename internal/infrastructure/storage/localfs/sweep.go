package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

type SweepReport struct {
	Scanned int
	Deleted int
	Failed  int
}

// Sweep removes every top-level entry in the scratch directories whose
// modification time is strictly older than now minus the TTL.
func (s *Storage) Sweep(ctx context.Context) (SweepReport, error) {
	cutoff := s.now().Add(-s.ttl)
	var report SweepReport

	for _, dir := range []string{s.uploadDir, s.outputDir, s.workDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				report.Failed++
				slog.Warn("sweep_read_dir_failed", "dir", dir, "error", err)
			}
			continue
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Scanned++
			info, err := entry.Info()
			if err != nil {
				// Removed concurrently.
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				report.Failed++
				slog.Warn("sweep_delete_failed", "path", path, "error", err)
				continue
			}
			report.Deleted++
		}
	}

	if s.observer != nil {
		s.observer.ObserveSweep(report.Deleted, report.Failed)
	}
	if report.Deleted > 0 || report.Failed > 0 {
		slog.Info("scratch_swept", "deleted", report.Deleted, "failed", report.Failed, "scanned", report.Scanned, "ttl", s.ttl.String())
	}
	return report, nil
}

// StartPeriodicSweep runs a sweep right away and then every interval until
// ctx is cancelled or stop is called. stop waits for a running sweep.
func (s *Storage) StartPeriodicSweep(ctx context.Context, interval time.Duration) (stop func(), err error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	run := func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("sweep_failed", "error", err)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+interval.String(), run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}

	initial := make(chan struct{})
	go func() {
		defer close(initial)
		run()
	}()
	c.Start()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		<-initial
		close(done)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}
