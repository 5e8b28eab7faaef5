package process

import (
	"context"
	"errors"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/resilience"
)

// GuardedRunner puts a circuit breaker per tool in front of another runner.
// Only crashes, timeouts and missing binaries count against a tool; a non-zero
// exit usually means a bad input file.
type GuardedRunner struct {
	inner    ports.CommandRunner
	executor *resilience.Executor
}

func NewGuardedRunner(inner ports.CommandRunner, executor *resilience.Executor) *GuardedRunner {
	return &GuardedRunner{inner: inner, executor: executor}
}

func (g *GuardedRunner) Execute(ctx context.Context, cmd domain.CommandSpec, opts domain.ExecOptions) domain.ExecutionResult {
	var res domain.ExecutionResult
	ran := false
	err := g.executor.Execute(ctx, "tool."+cmd.Tool, func(runCtx context.Context) error {
		ran = true
		res = g.inner.Execute(runCtx, cmd, opts)
		if res.Success {
			return nil
		}
		return domain.NewToolFailure(cmd.Tool, res)
	}, classifyToolFailure)

	if ran {
		return res
	}
	if resilience.IsCircuitOpen(err) {
		return domain.ExecutionResult{
			Exit:  domain.ExitInfo{Code: -1, Rejected: true},
			Error: "circuit open for " + cmd.Tool + ": " + err.Error(),
		}
	}
	msg := "not started"
	if err != nil {
		msg = "not started: " + err.Error()
	}
	return domain.ExecutionResult{Exit: domain.ExitInfo{Code: -1, Rejected: true}, Error: msg}
}

func classifyToolFailure(err error) resilience.ErrorClassification {
	var failure *domain.ToolFailure
	if !errors.As(err, &failure) {
		return resilience.ErrorClassification{RecordFailure: true}
	}
	switch {
	case failure.TimedOut, failure.Exit.NotFound, failure.Exit.Signal != "":
		return resilience.ErrorClassification{RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: false}
	}
}
