package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

type observerFake struct {
	mu              sync.Mutex
	sweeps          int
	deleted         int
	cleanupFailures int
}

func (o *observerFake) ObserveSweep(deleted, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps++
	o.deleted += deleted
}

func (o *observerFake) ObserveCleanupFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanupFailures++
}

func (o *observerFake) snapshot() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sweeps, o.deleted
}

func newTestStorage(t *testing.T, opts Options) *Storage {
	t.Helper()
	root := t.TempDir()
	opts.UploadDir = filepath.Join(root, "uploads")
	opts.OutputDir = filepath.Join(root, "outputs")
	opts.WorkDir = filepath.Join(root, "work")
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func writeFile(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if age > 0 {
		ts := time.Now().Add(-age)
		if err := os.Chtimes(path, ts, ts); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}

func TestUniqueNameKeepsExtensionAndNeverRepeats(t *testing.T) {
	s := newTestStorage(t, Options{})

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := s.UniqueName("report.PDF")
			mu.Lock()
			defer mu.Unlock()
			if _, dup := seen[name]; dup {
				t.Errorf("duplicate name %q", name)
			}
			seen[name] = struct{}{}
		}()
	}
	wg.Wait()

	for name := range seen {
		if !strings.HasSuffix(name, ".PDF") {
			t.Fatalf("expected extension to be preserved, got %q", name)
		}
		if strings.Contains(name, "report") {
			t.Fatalf("expected opaque stem, got %q", name)
		}
	}
	if got := s.UniqueName("evil.p$(id)"); filepath.Ext(got) != "" {
		t.Fatalf("expected unsafe extension to be dropped, got %q", got)
	}
}

func TestResolvePathStaysInsideScratchDir(t *testing.T) {
	s := newTestStorage(t, Options{})

	got := s.ResolvePath("../../escape.pdf", domain.ScratchOutput)
	if filepath.Dir(got) != s.outputDir {
		t.Fatalf("expected path inside %s, got %s", s.outputDir, got)
	}
	if filepath.Dir(s.ResolvePath("a.pdf", domain.ScratchUpload)) != s.uploadDir {
		t.Fatalf("expected upload path in upload dir")
	}
}

func TestReceiveStoresUploadUnderUniqueName(t *testing.T) {
	s := newTestStorage(t, Options{MaxFileBytes: 1024})

	file, err := s.Receive(context.Background(), "Quarterly Report.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if file.OriginalName != "Quarterly Report.pdf" || file.DeclaredExtension != ".pdf" || file.SizeBytes != 8 {
		t.Fatalf("unexpected upload: %+v", file)
	}
	if filepath.Dir(file.Path) != s.uploadDir {
		t.Fatalf("expected upload in %s, got %s", s.uploadDir, file.Path)
	}
	if strings.Contains(file.Path, "Quarterly") {
		t.Fatalf("expected original name not to leak into path: %s", file.Path)
	}
	if _, err := os.Stat(file.Path); err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
}

func TestReceiveRejectsOversizedUploadAndRemovesPartialFile(t *testing.T) {
	s := newTestStorage(t, Options{MaxFileBytes: 4})

	_, err := s.Receive(context.Background(), "big.pdf", strings.NewReader("0123456789"))
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected partial upload to be removed, found %d entries", len(entries))
	}
}

func TestDeleteManyIsIdempotent(t *testing.T) {
	obs := &observerFake{}
	s := newTestStorage(t, Options{Observer: obs})

	a := s.ResolvePath("a.pdf", domain.ScratchOutput)
	b := s.ResolvePath("b.pdf", domain.ScratchOutput)
	writeFile(t, a, 0)
	writeFile(t, b, 0)
	missing := s.ResolvePath("missing.pdf", domain.ScratchOutput)

	s.DeleteMany(context.Background(), []string{a, missing, b})
	s.DeleteMany(context.Background(), []string{a, b})

	for _, p := range []string{a, b} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be deleted, stat err = %v", p, err)
		}
	}
	if obs.cleanupFailures != 0 {
		t.Fatalf("expected missing files not to count as failures, got %d", obs.cleanupFailures)
	}
}

func TestDeleteOneRemovesDirectories(t *testing.T) {
	s := newTestStorage(t, Options{})
	dir := s.ResolvePath("lo_profile", domain.ScratchWork)
	if err := os.MkdirAll(filepath.Join(dir, "user"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "user", "registrymodifications.xcu"), 0)

	s.DeleteOne(context.Background(), dir)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected profile dir to be removed, stat err = %v", err)
	}
}

func TestSweepDeletesOnlyEntriesOlderThanTTL(t *testing.T) {
	obs := &observerFake{}
	s := newTestStorage(t, Options{TTL: time.Hour, Observer: obs})

	oldUpload := s.ResolvePath("old.pdf", domain.ScratchUpload)
	oldOutput := s.ResolvePath("old.jpg", domain.ScratchOutput)
	fresh := s.ResolvePath("fresh.pdf", domain.ScratchUpload)
	almost := s.ResolvePath("almost.pdf", domain.ScratchOutput)
	writeFile(t, oldUpload, 2*time.Hour)
	writeFile(t, oldOutput, 61*time.Minute)
	writeFile(t, fresh, 0)
	writeFile(t, almost, 59*time.Minute)

	report, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Deleted != 2 || report.Scanned != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, p := range []string{oldUpload, oldOutput} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be swept", p)
		}
	}
	for _, p := range []string{fresh, almost} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to survive: %v", p, err)
		}
	}
	if sweeps, deleted := obs.snapshot(); sweeps != 1 || deleted != 2 {
		t.Fatalf("unexpected observer state: sweeps=%d deleted=%d", sweeps, deleted)
	}
}

func TestSweepBoundaryIsStrict(t *testing.T) {
	s := newTestStorage(t, Options{TTL: time.Hour})
	now := time.Now().Truncate(time.Second)
	s.now = func() time.Time { return now }

	exact := s.ResolvePath("exact.pdf", domain.ScratchUpload)
	writeFile(t, exact, 0)
	boundary := now.Add(-time.Hour)
	if err := os.Chtimes(exact, boundary, boundary); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	report, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Deleted != 0 {
		t.Fatalf("expected file exactly at the boundary to survive, report %+v", report)
	}
}

func TestSweepContinuesPastUnreadableDirectory(t *testing.T) {
	s := newTestStorage(t, Options{TTL: time.Hour})

	old := s.ResolvePath("old.jpg", domain.ScratchOutput)
	writeFile(t, old, 2*time.Hour)

	// A regular file where a directory is expected cannot be listed.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	writeFile(t, blocker, 0)
	s.uploadDir = blocker

	report, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Deleted != 1 || report.Failed != 1 {
		t.Fatalf("expected outputs to be swept despite the broken uploads dir, report %+v", report)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be swept", old)
	}
}

func TestStartPeriodicSweepRunsImmediatelyAndStops(t *testing.T) {
	obs := &observerFake{}
	s := newTestStorage(t, Options{TTL: time.Minute, Observer: obs})
	stale := s.ResolvePath("stale.pdf", domain.ScratchUpload)
	writeFile(t, stale, time.Hour)

	stop, err := s.StartPeriodicSweep(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("StartPeriodicSweep() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected immediate sweep to remove stale file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return")
	}
	if sweeps, _ := obs.snapshot(); sweeps < 1 {
		t.Fatalf("expected at least one sweep, got %d", sweeps)
	}
}

func TestStartPeriodicSweepRejectsNonPositiveInterval(t *testing.T) {
	s := newTestStorage(t, Options{})
	if _, err := s.StartPeriodicSweep(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
