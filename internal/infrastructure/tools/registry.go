package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/resilience"
)

const CheckTimeout = 5 * time.Second

var errCheckFailed = errors.New("check failed")

// installHints are printed next to tools that failed their startup check.
var installHints = map[string]string{
	domain.ToolQPDF:        "apt-get install qpdf | brew install qpdf",
	domain.ToolGhostscript: "apt-get install ghostscript | brew install ghostscript",
	domain.ToolLibreOffice: "apt-get install libreoffice-core | brew install --cask libreoffice",
	domain.ToolPoppler:     "apt-get install poppler-utils | brew install poppler",
	domain.ToolImageMagick: "apt-get install imagemagick | brew install imagemagick",
	domain.ToolTesseract:   "apt-get install tesseract-ocr | brew install tesseract",
	domain.ToolOpenSSL:     "apt-get install openssl | brew install openssl",
}

// DefaultVersionFlags lists the argument each tool accepts to print its version.
var DefaultVersionFlags = map[string]string{
	domain.ToolQPDF:        "--version",
	domain.ToolGhostscript: "--version",
	domain.ToolLibreOffice: "--version",
	domain.ToolPoppler:     "-v",
	domain.ToolImageMagick: "-version",
	domain.ToolTesseract:   "--version",
	domain.ToolOpenSSL:     "version",
}

// Registry is built once at startup. After ValidateAll it is read-only.
type Registry struct {
	runner   ports.CommandRunner
	executor *resilience.Executor

	mu     sync.RWMutex
	tools  map[string]domain.ToolPath
	checked bool
}

func NewRegistry(paths map[string]string, runner ports.CommandRunner) *Registry {
	tools := make(map[string]domain.ToolPath, len(paths))
	for name, path := range paths {
		tools[name] = domain.ToolPath{
			Name:        name,
			Path:        strings.TrimSpace(path),
			VersionFlag: DefaultVersionFlags[name],
		}
	}
	return &Registry{
		runner:   runner,
		executor: resilience.NewExecutor(resilience.CheckConfig()),
		tools:    tools,
	}
}

// Lookup returns the configured tool. Tools that failed the startup check
// surface here, at first use, as ErrToolUnavailable.
func (r *Registry) Lookup(name string) (domain.ToolPath, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok || tool.Path == "" {
		return domain.ToolPath{}, domain.WrapError(domain.ErrToolUnavailable, "lookup tool", fmt.Errorf("%s is not configured", name))
	}
	if r.checked && !tool.Available {
		return tool, domain.WrapError(domain.ErrToolUnavailable, "lookup tool", fmt.Errorf("%s at %s failed its startup check", name, tool.Path))
	}
	return tool, nil
}

// CheckAvailable runs the tool with its version flag. Any run that starts and
// exits on its own counts, whatever the exit code or stderr.
func (r *Registry) CheckAvailable(ctx context.Context, tool domain.ToolPath) bool {
	var args []domain.CommandArg
	if tool.VersionFlag != "" {
		args = append(args, domain.CommandArg{Raw: tool.VersionFlag, Quoted: tool.VersionFlag})
	}
	cmd := domain.NewCommandSpec(tool.Name, tool.Path, tool.Path, args)

	err := r.executor.Execute(ctx, "check."+tool.Name, func(checkCtx context.Context) error {
		res := r.runner.Execute(checkCtx, cmd, domain.ExecOptions{Timeout: CheckTimeout, MaxOutputBytes: 64 * 1024})
		if res.Success || (!res.Exit.TimedOut && !res.Exit.NotFound && !res.Exit.Rejected && res.Exit.Signal == "") {
			return nil
		}
		return domain.WrapError(errCheckFailed, tool.Name, domain.NewToolFailure(tool.Name, res))
	}, classifyCheckError)
	return err == nil
}

// ValidateAll checks every configured tool concurrently and records the
// outcome. Missing tools are logged, never fatal.
func (r *Registry) ValidateAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	snapshot := make([]domain.ToolPath, 0, len(r.tools))
	for _, t := range r.tools {
		snapshot = append(snapshot, t)
	}
	r.mu.RUnlock()

	results := make([]bool, len(snapshot))
	var g errgroup.Group
	for i, tool := range snapshot {
		g.Go(func() error {
			if tool.Path == "" {
				return nil
			}
			results[i] = r.CheckAvailable(ctx, tool)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	status := make(map[string]bool, len(snapshot))
	for i, tool := range snapshot {
		tool.Available = results[i]
		r.tools[tool.Name] = tool
		status[tool.Name] = tool.Available
	}
	r.checked = true
	r.mu.Unlock()

	logReport(status, snapshot)
	return status
}

// Statuses returns the last check result per tool.
func (r *Registry) Statuses() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.tools))
	for name, tool := range r.tools {
		out[name] = tool.Available
	}
	return out
}

func logReport(status map[string]bool, tools []domain.ToolPath) {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	missing := 0
	for _, tool := range tools {
		if status[tool.Name] {
			slog.Info("tool_check", "tool", tool.Name, "path", tool.Path, "available", true)
			continue
		}
		missing++
		slog.Warn("tool_check",
			"tool", tool.Name,
			"path", tool.Path,
			"available", false,
			"install_hint", installHints[tool.Name],
		)
	}
	if missing > 0 {
		slog.Warn("tools_missing", "count", missing, "total", len(tools))
	}
}

func classifyCheckError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{
		Retryable:     errors.Is(err, context.DeadlineExceeded),
		RecordFailure: true,
	}
}
