package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrFileTooLarge        = errors.New("file too large")
	ErrToolUnavailable     = errors.New("tool unavailable")
	ErrToolExecutionFailed = errors.New("tool execution failed")
	ErrOutputNotFound      = errors.New("output not found")
	ErrOutputInaccessible  = errors.New("output inaccessible")
	ErrCleanupFailed       = errors.New("cleanup failed")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf names the first matching error kind, for logs and the job journal.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrFileTooLarge):
		return "file_too_large"
	case IsKind(err, ErrToolUnavailable):
		return "tool_unavailable"
	case IsKind(err, ErrToolExecutionFailed):
		return "tool_execution_failed"
	case IsKind(err, ErrOutputNotFound):
		return "output_not_found"
	case IsKind(err, ErrOutputInaccessible):
		return "output_inaccessible"
	case IsKind(err, ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}

// ToolFailure describes a process that ran but did not succeed.
type ToolFailure struct {
	Tool     string
	Exit     ExitInfo
	Stderr   string
	Message  string
	TimedOut bool
}

func (f *ToolFailure) Error() string {
	var b strings.Builder
	b.WriteString(f.Tool)
	b.WriteString(": ")
	b.WriteString(f.Exit.String())
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if stderr := strings.TrimSpace(f.Stderr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (f *ToolFailure) Unwrap() []error {
	if f.TimedOut {
		return []error{ErrToolExecutionFailed, context.DeadlineExceeded}
	}
	return []error{ErrToolExecutionFailed}
}

// NewToolFailure converts an unsuccessful result into a typed failure.
func NewToolFailure(tool string, res ExecutionResult) *ToolFailure {
	return &ToolFailure{
		Tool:     tool,
		Exit:     res.Exit,
		Stderr:   res.Stderr,
		Message:  res.Error,
		TimedOut: res.Exit.TimedOut,
	}
}
