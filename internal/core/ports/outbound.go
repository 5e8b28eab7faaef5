package ports

import (
	"context"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// CommandRunner executes one external process. It never returns an error;
// every failure is described by the result.
type CommandRunner interface {
	Execute(ctx context.Context, cmd domain.CommandSpec, opts domain.ExecOptions) domain.ExecutionResult
}

// ArgumentEscaper turns a value into a single shell-literal token or rejects it.
type ArgumentEscaper interface {
	Quote(value string) (string, error)
}

// ToolRegistry resolves logical tool names to configured executables.
type ToolRegistry interface {
	Lookup(name string) (domain.ToolPath, error)
	Statuses() map[string]bool
}

// FileManager owns naming and deletion in the scratch directories.
type FileManager interface {
	UniqueName(originalName string) string
	Dir(kind domain.ScratchKind) string
	ResolvePath(name string, kind domain.ScratchKind) string
	DeleteOne(ctx context.Context, path string)
	DeleteMany(ctx context.Context, paths []string)
}

// ContentInspector detects the real content type of a stored file.
type ContentInspector interface {
	Detect(path string) (domain.FileKind, string, error)
}

// OutputVerifier checks a produced file beyond existence, by target format.
type OutputVerifier interface {
	Verify(path string) error
}

// PageCounter counts pages of a PDF without spawning a tool.
type PageCounter interface {
	CountPages(path string) (int, error)
}

// PropertyWriter stores document information entries inside a PDF in place.
type PropertyWriter interface {
	WriteProperties(path string, props map[string]string) error
}

// JobRecorder stores or forwards finished conversion jobs.
type JobRecorder interface {
	RecordJob(ctx context.Context, job domain.ConversionJob) error
}
