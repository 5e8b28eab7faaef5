package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// maxParallelDeletes bounds DeleteMany fan-out.
const maxParallelDeletes = 16

// Observer is told about sweeps and failed deletions.
type Observer interface {
	ObserveSweep(deleted, failed int)
	ObserveCleanupFailure()
}

type Options struct {
	UploadDir    string
	OutputDir    string
	WorkDir      string
	TTL          time.Duration
	MaxFileBytes int64
	Observer     Observer
}

// Storage is the scratch file manager: flat uploads/outputs directories with
// opaque unique names, best-effort deletion and a TTL sweep.
type Storage struct {
	uploadDir string
	outputDir string
	workDir   string
	ttl       time.Duration
	maxBytes  int64
	observer  Observer
	now       func() time.Time
}

func New(opts Options) (*Storage, error) {
	if opts.UploadDir == "" {
		opts.UploadDir = "./temp/uploads"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "./temp/outputs"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "pdf-converter")
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}

	s := &Storage{ttl: opts.TTL, maxBytes: opts.MaxFileBytes, observer: opts.Observer, now: time.Now}
	for _, d := range []struct {
		dst *string
		dir string
	}{
		{&s.uploadDir, opts.UploadDir},
		{&s.outputDir, opts.OutputDir},
		{&s.workDir, opts.WorkDir},
	} {
		abs, err := filepath.Abs(d.dir)
		if err != nil {
			return nil, fmt.Errorf("resolve scratch dir %s: %w", d.dir, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		*d.dst = abs
	}
	return s, nil
}

// UniqueName keeps the original extension and replaces the stem with a UUID.
func (s *Storage) UniqueName(originalName string) string {
	return uuid.NewString() + safeExtension(originalName)
}

func (s *Storage) ResolvePath(name string, kind domain.ScratchKind) string {
	return filepath.Join(s.Dir(kind), filepath.Base(name))
}

func (s *Storage) Dir(kind domain.ScratchKind) string {
	switch kind {
	case domain.ScratchOutput:
		return s.outputDir
	case domain.ScratchWork:
		return s.workDir
	default:
		return s.uploadDir
	}
}

// Receive stores an upload under a unique name. Oversized bodies are removed
// and reported as ErrFileTooLarge.
func (s *Storage) Receive(ctx context.Context, originalName string, body io.Reader) (domain.UploadedFile, error) {
	name := s.UniqueName(originalName)
	path := s.ResolvePath(name, domain.ScratchUpload)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("create upload file: %w", err)
	}

	src := body
	if s.maxBytes > 0 {
		src = io.LimitReader(body, s.maxBytes+1)
	}
	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		s.DeleteOne(ctx, path)
		return domain.UploadedFile{}, fmt.Errorf("write upload file: %w", copyErr)
	case closeErr != nil:
		s.DeleteOne(ctx, path)
		return domain.UploadedFile{}, fmt.Errorf("close upload file: %w", closeErr)
	case s.maxBytes > 0 && written > s.maxBytes:
		s.DeleteOne(ctx, path)
		return domain.UploadedFile{}, domain.WrapError(domain.ErrFileTooLarge, "receive upload",
			fmt.Errorf("%s exceeds the %d byte limit", filepath.Base(originalName), s.maxBytes))
	}

	return domain.UploadedFile{
		Path:              path,
		OriginalName:      filepath.Base(originalName),
		SizeBytes:         written,
		DeclaredExtension: strings.ToLower(filepath.Ext(originalName)),
	}, nil
}

func (s *Storage) Discard(ctx context.Context, files []domain.UploadedFile) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	s.DeleteMany(ctx, paths)
}

// DeleteOne removes path and logs instead of failing. A missing file is fine.
func (s *Storage) DeleteOne(_ context.Context, path string) {
	if path == "" {
		return
	}
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("cleanup_skipped", "path", path, "reason", "already gone")
		return
	}
	if err == nil && info.IsDir() {
		err = os.RemoveAll(path)
	} else if err == nil {
		err = os.Remove(path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("cleanup_failed", "path", path, "error", domain.WrapError(domain.ErrCleanupFailed, "delete", err))
		if s.observer != nil {
			s.observer.ObserveCleanupFailure()
		}
		return
	}
	slog.Debug("cleanup_deleted", "path", path)
}

// DeleteMany attempts every path concurrently and waits for all of them.
func (s *Storage) DeleteMany(ctx context.Context, paths []string) {
	var g errgroup.Group
	g.SetLimit(maxParallelDeletes)
	for _, p := range paths {
		g.Go(func() error {
			s.DeleteOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func safeExtension(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return ""
		}
	}
	return ext
}
