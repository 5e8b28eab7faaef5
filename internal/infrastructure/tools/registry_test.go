package tools

import (
	"context"
	"sync"
	"testing"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

type checkRunnerFake struct {
	mu      sync.Mutex
	byPath  map[string]domain.ExecutionResult
	calls   map[string]int
	argsFor map[string][]string
}

func newCheckRunnerFake(byPath map[string]domain.ExecutionResult) *checkRunnerFake {
	return &checkRunnerFake{byPath: byPath, calls: map[string]int{}, argsFor: map[string][]string{}}
}

func (f *checkRunnerFake) Execute(_ context.Context, cmd domain.CommandSpec, opts domain.ExecOptions) domain.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cmd.Program]++
	f.argsFor[cmd.Program] = cmd.Argv()
	if opts.Timeout != CheckTimeout {
		return domain.ExecutionResult{Error: "unexpected timeout"}
	}
	return f.byPath[cmd.Program]
}

func TestValidateAllReportsEachTool(t *testing.T) {
	runner := newCheckRunnerFake(map[string]domain.ExecutionResult{
		"/usr/bin/qpdf":     {Success: true, Stdout: "qpdf version 11.9.0"},
		"/usr/bin/gs":       {Exit: domain.ExitInfo{Code: 1}, Error: "exited with code 1", Stderr: "noise"},
		"/usr/bin/pdftoppm": {Exit: domain.ExitInfo{Code: 127, NotFound: true}, Error: "executable not found"},
		"/usr/bin/magick":   {Exit: domain.ExitInfo{TimedOut: true}, Error: "timed out"},
	})
	reg := NewRegistry(map[string]string{
		domain.ToolQPDF:        "/usr/bin/qpdf",
		domain.ToolGhostscript: "/usr/bin/gs",
		domain.ToolPoppler:     "/usr/bin/pdftoppm",
		domain.ToolImageMagick: "/usr/bin/magick",
		domain.ToolTesseract:   "",
	}, runner)

	status := reg.ValidateAll(context.Background())

	want := map[string]bool{
		domain.ToolQPDF:        true,
		domain.ToolGhostscript: true,
		domain.ToolPoppler:     false,
		domain.ToolImageMagick: false,
		domain.ToolTesseract:   false,
	}
	for name, expected := range want {
		if status[name] != expected {
			t.Fatalf("tool %s: expected available=%v, got %v", name, expected, status[name])
		}
	}
	if runner.calls["/usr/bin/magick"] != 2 {
		t.Fatalf("expected timed out check to be retried once, got %d calls", runner.calls["/usr/bin/magick"])
	}
	if runner.calls["/usr/bin/pdftoppm"] != 1 {
		t.Fatalf("expected missing binary to be checked once, got %d calls", runner.calls["/usr/bin/pdftoppm"])
	}
	if args := runner.argsFor["/usr/bin/pdftoppm"]; len(args) != 1 || args[0] != "-v" {
		t.Fatalf("expected poppler version flag -v, got %v", args)
	}
}

func TestLookupFailsLazilyForUnavailableTools(t *testing.T) {
	runner := newCheckRunnerFake(map[string]domain.ExecutionResult{
		"/usr/bin/qpdf": {Success: true},
		"/opt/soffice":  {Exit: domain.ExitInfo{NotFound: true}},
	})
	reg := NewRegistry(map[string]string{
		domain.ToolQPDF:        "/usr/bin/qpdf",
		domain.ToolLibreOffice: "/opt/soffice",
	}, runner)

	if _, err := reg.Lookup(domain.ToolLibreOffice); err != nil {
		t.Fatalf("before probing lookup must not fail, got %v", err)
	}

	reg.ValidateAll(context.Background())

	if _, err := reg.Lookup(domain.ToolLibreOffice); !domain.IsKind(err, domain.ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
	tool, err := reg.Lookup(domain.ToolQPDF)
	if err != nil {
		t.Fatalf("Lookup(qpdf) error = %v", err)
	}
	if !tool.Available || tool.Path != "/usr/bin/qpdf" {
		t.Fatalf("unexpected tool %+v", tool)
	}
	if _, err := reg.Lookup("pandoc"); !domain.IsKind(err, domain.ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable for unknown tool, got %v", err)
	}
}
