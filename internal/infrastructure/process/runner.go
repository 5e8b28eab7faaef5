package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 10 * 1024 * 1024

	// waitDelay bounds how long Wait blocks on pipes held open by orphans after a kill.
	waitDelay = 2 * time.Second
)

// Observer receives one call per finished process.
type Observer interface {
	ObserveToolExecution(tool, outcome string, duration time.Duration)
}

type Runner struct {
	defaultTimeout   time.Duration
	defaultMaxOutput int
	observer         Observer
}

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

func WithDefaults(timeout time.Duration, maxOutputBytes int) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.defaultTimeout = timeout
		}
		if maxOutputBytes > 0 {
			r.defaultMaxOutput = maxOutputBytes
		}
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		defaultTimeout:   DefaultTimeout,
		defaultMaxOutput: DefaultMaxOutputBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs cmd as argv (no shell) in its own process group. The whole group
// is killed when the timeout fires or ctx is cancelled.
func (r *Runner) Execute(ctx context.Context, cmd domain.CommandSpec, opts domain.ExecOptions) domain.ExecutionResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	maxOutput := opts.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = r.defaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newLimitedBuffer(maxOutput)
	stderr := newLimitedBuffer(maxOutput)

	proc := exec.CommandContext(runCtx, cmd.Program, cmd.Argv()...)
	proc.Stdout = stdout
	proc.Stderr = stderr
	setProcessGroup(proc)
	proc.Cancel = func() error {
		return killProcessGroup(proc)
	}
	proc.WaitDelay = waitDelay

	slog.Debug("tool_exec_start", "tool", cmd.Tool, "command", cmd.String(), "timeout_ms", timeout.Milliseconds())

	start := time.Now()
	err := proc.Run()
	res := domain.ExecutionResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}

	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		res.Success = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Exit = domain.ExitInfo{TimedOut: true, Code: -1, Signal: "killed"}
		res.Error = fmt.Sprintf("timed out after %s", timeout)
	case ctx.Err() != nil:
		res.Exit = domain.ExitInfo{Code: -1, Signal: "killed"}
		res.Error = fmt.Sprintf("cancelled: %v", ctx.Err())
	default:
		res.Exit, res.Error = describeExit(err)
	}

	outcome := outcomeOf(res)
	if r.observer != nil {
		r.observer.ObserveToolExecution(cmd.Tool, outcome, res.Duration)
	}
	logAttrs := []any{
		"tool", cmd.Tool,
		"outcome", outcome,
		"duration_ms", float64(res.Duration.Microseconds()) / 1000.0,
		"truncated", res.Truncated,
	}
	if res.Success {
		slog.Debug("tool_exec", logAttrs...)
	} else {
		slog.Warn("tool_exec", append(logAttrs, "command", cmd.String(), "error", res.Error, "stderr", tail(res.Stderr, 512))...)
	}
	return res
}

func describeExit(err error) (domain.ExitInfo, string) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return domain.ExitInfo{Code: -1, Signal: status.Signal().String()}, "terminated by " + status.Signal().String()
		}
		return domain.ExitInfo{Code: exitErr.ExitCode()}, fmt.Sprintf("exited with code %d", exitErr.ExitCode())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return domain.ExitInfo{Code: 127, NotFound: true}, "executable not found: " + err.Error()
	}
	return domain.ExitInfo{Code: -1}, err.Error()
}

func outcomeOf(res domain.ExecutionResult) string {
	switch {
	case res.Success:
		return "success"
	case res.Exit.TimedOut:
		return "timeout"
	case res.Exit.NotFound:
		return "not_found"
	case res.Exit.Signal != "":
		return "signal"
	default:
		return "exit_error"
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
