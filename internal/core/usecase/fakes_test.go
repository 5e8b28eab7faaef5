package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

type filesFake struct {
	mu   sync.Mutex
	seq  int
	dirs map[domain.ScratchKind]string
}

func newFilesFake(t *testing.T) *filesFake {
	t.Helper()
	root := t.TempDir()
	f := &filesFake{dirs: map[domain.ScratchKind]string{
		domain.ScratchUpload: filepath.Join(root, "uploads"),
		domain.ScratchOutput: filepath.Join(root, "outputs"),
		domain.ScratchWork:   filepath.Join(root, "work"),
	}}
	for _, d := range f.dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return f
}

func (f *filesFake) UniqueName(originalName string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("u%04d%s", f.seq, filepath.Ext(originalName))
}

func (f *filesFake) Dir(kind domain.ScratchKind) string {
	return f.dirs[kind]
}

func (f *filesFake) ResolvePath(name string, kind domain.ScratchKind) string {
	return filepath.Join(f.dirs[kind], filepath.Base(name))
}

func (f *filesFake) DeleteOne(_ context.Context, path string) {
	_ = os.RemoveAll(path)
}

func (f *filesFake) DeleteMany(ctx context.Context, paths []string) {
	for _, p := range paths {
		f.DeleteOne(ctx, p)
	}
}

// entries lists every file left in any scratch directory.
func (f *filesFake) entries(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, d := range f.dirs {
		items, err := os.ReadDir(d)
		if err != nil {
			t.Fatalf("read %s: %v", d, err)
		}
		for _, it := range items {
			out = append(out, filepath.Join(d, it.Name()))
		}
	}
	sort.Strings(out)
	return out
}

type inspectorFake struct {
	overrides map[string]domain.FileKind
}

func (f *inspectorFake) Detect(path string) (domain.FileKind, string, error) {
	if kind, ok := f.overrides[path]; ok {
		return kind, "application/x-" + string(kind), nil
	}
	kind := domain.KindForExtension(filepath.Ext(path))
	if kind == "" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "detect", fmt.Errorf("unknown content"))
	}
	return kind, "application/x-" + string(kind), nil
}

type registryFake struct {
	missing map[string]bool
}

func (f *registryFake) Lookup(name string) (domain.ToolPath, error) {
	if f.missing[name] {
		return domain.ToolPath{}, domain.WrapError(domain.ErrToolUnavailable, "lookup "+name, fmt.Errorf("not configured"))
	}
	return domain.ToolPath{Name: name, Path: "/usr/bin/" + name, Available: true}, nil
}

func (f *registryFake) Statuses() map[string]bool { return nil }

type escaperFake struct{}

func (escaperFake) Quote(v string) (string, error) {
	if strings.IndexByte(v, 0) >= 0 {
		return "", fmt.Errorf("NUL byte")
	}
	return "'" + v + "'", nil
}

type toolHandler func(argv []string) domain.ExecutionResult

type runnerFake struct {
	mu       sync.Mutex
	handlers map[string]toolHandler
	calls    []domain.CommandSpec
	opts     []domain.ExecOptions
}

func (f *runnerFake) handle(tool string, h toolHandler) {
	if f.handlers == nil {
		f.handlers = make(map[string]toolHandler)
	}
	f.handlers[tool] = h
}

func (f *runnerFake) Execute(_ context.Context, cmd domain.CommandSpec, opts domain.ExecOptions) domain.ExecutionResult {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.opts = append(f.opts, opts)
	h := f.handlers[cmd.Tool]
	f.mu.Unlock()
	if h == nil {
		return domain.ExecutionResult{Success: true}
	}
	return h(cmd.Argv())
}

type pagesFake struct {
	n   int
	err error
}

func (f *pagesFake) CountPages(string) (int, error) { return f.n, f.err }

type propsFake struct {
	path  string
	props map[string]string
}

func (f *propsFake) WriteProperties(path string, props map[string]string) error {
	f.path = path
	f.props = props
	return nil
}

type recorderFake struct {
	mu   sync.Mutex
	jobs []domain.ConversionJob
	err  error
}

func (f *recorderFake) RecordJob(_ context.Context, job domain.ConversionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.err
}

type observerFake struct {
	observed []string
}

func (f *observerFake) ObserveConversion(operation, status string, _ time.Duration) {
	f.observed = append(f.observed, operation+":"+status)
}

type fixture struct {
	uc        *ConversionUseCase
	files     *filesFake
	runner    *runnerFake
	inspector *inspectorFake
	registry  *registryFake
	pages     *pagesFake
	props     *propsFake
	recorder  *recorderFake
	observer  *observerFake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		files:     newFilesFake(t),
		runner:    &runnerFake{},
		inspector: &inspectorFake{overrides: map[string]domain.FileKind{}},
		registry:  &registryFake{missing: map[string]bool{}},
		pages:     &pagesFake{},
		props:     &propsFake{},
		recorder:  &recorderFake{},
		observer:  &observerFake{},
	}
	f.uc = NewConversionUseCase(ConversionDeps{
		Runner:    f.runner,
		Escaper:   escaperFake{},
		Tools:     f.registry,
		Files:     f.files,
		Inspector: f.inspector,
		Pages:     f.pages,
		Props:     f.props,
		Recorder:  f.recorder,
		Observer:  f.observer,
	}, DefaultTimeouts(), 1<<20, 1<<16)
	return f
}

func (f *fixture) upload(t *testing.T, originalName, content string) domain.UploadedFile {
	t.Helper()
	path := f.files.ResolvePath(f.files.UniqueName(originalName), domain.ScratchUpload)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return domain.UploadedFile{
		Path:              path,
		OriginalName:      originalName,
		SizeBytes:         int64(len(content)),
		DeclaredExtension: strings.ToLower(filepath.Ext(originalName)),
	}
}

func (f *fixture) lastJob(t *testing.T) domain.ConversionJob {
	t.Helper()
	if len(f.recorder.jobs) == 0 {
		t.Fatalf("expected a recorded job")
	}
	return f.recorder.jobs[len(f.recorder.jobs)-1]
}

func ok() domain.ExecutionResult {
	return domain.ExecutionResult{Success: true}
}

func writeOutput(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write output %s: %v", path, err)
	}
}

// argAfter returns the token following flag.
func argAfter(argv []string, flag string) string {
	for i := 0; i+1 < len(argv); i++ {
		if argv[i] == flag {
			return argv[i+1]
		}
	}
	return ""
}

func argWithPrefix(argv []string, prefix string) string {
	for _, a := range argv {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assertNoScratchFiles(t *testing.T, f *fixture) {
	t.Helper()
	if left := f.files.entries(t); len(left) != 0 {
		t.Fatalf("expected scratch dirs to be empty, found %v", left)
	}
}
