package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

const maxListedEntries = 20

// pipeline is the per-request state of one operation: the stage it reached and
// every path it must clean up.
type pipeline struct {
	uc            *ConversionUseCase
	op            domain.Operation
	jobID         string
	stage         domain.Stage
	inputs        []domain.UploadedFile
	intermediates []string
	outputs       []string
	keepOutputs   bool
	metadata      map[string]string
}

func newPipeline(uc *ConversionUseCase, op domain.Operation, inputs []domain.UploadedFile) *pipeline {
	return &pipeline{
		uc:     uc,
		op:     op,
		jobID:  newJobID(),
		stage:  domain.StageValidating,
		inputs: inputs,
	}
}

func (p *pipeline) enter(stage domain.Stage) {
	p.stage = stage
}

func (p *pipeline) setMeta(key, value string) {
	if p.metadata == nil {
		p.metadata = make(map[string]string)
	}
	p.metadata[key] = value
}

// intermediate registers a scratch path that never outlives the operation.
func (p *pipeline) intermediate(path string) string {
	p.intermediates = append(p.intermediates, path)
	return path
}

// output registers a path that is deleted only if the operation fails.
func (p *pipeline) output(path string) string {
	p.outputs = append(p.outputs, path)
	return path
}

func (p *pipeline) outputPath(suggested string) string {
	return p.output(p.uc.files.ResolvePath(p.uc.files.UniqueName(suggested), domain.ScratchOutput))
}

func (p *pipeline) workPath(name string) string {
	return p.intermediate(p.uc.files.ResolvePath(p.uc.files.UniqueName(name), domain.ScratchWork))
}

func (p *pipeline) done(ctx context.Context) {
	p.enter(domain.StageDone)
	p.uc.files.DeleteMany(ctx, p.intermediates)
}

func (p *pipeline) fail(ctx context.Context, err error) {
	paths := make([]string, 0, len(p.inputs)+len(p.intermediates)+len(p.outputs))
	for _, in := range p.inputs {
		paths = append(paths, in.Path)
	}
	paths = append(paths, p.intermediates...)
	// A killed tool may have left a partial file; the sweep reclaims it.
	if !p.keepOutputs {
		paths = append(paths, p.outputs...)
	} else if len(p.outputs) > 0 {
		slog.Debug("partial_output_left_for_sweep", "job_id", p.jobID, "paths", len(p.outputs))
	}
	p.enter(domain.StageFailed)
	p.uc.files.DeleteMany(ctx, paths)
}

func (p *pipeline) invalid(format string, args ...any) error {
	return domain.WrapError(domain.ErrInvalidInput, string(p.op), fmt.Errorf(format, args...))
}

// requireKind checks size and real content of every input against the
// accepted kinds and the kind its declared extension promises.
func (p *pipeline) requireKind(inputs []domain.UploadedFile, accepted ...domain.FileKind) ([]domain.FileKind, error) {
	p.enter(domain.StageValidating)
	kinds := make([]domain.FileKind, 0, len(inputs))
	for _, in := range inputs {
		info, err := os.Stat(in.Path)
		if err != nil {
			return nil, p.invalid("input %s is not readable: %v", in.OriginalName, err)
		}
		if p.uc.maxFileBytes > 0 && info.Size() > p.uc.maxFileBytes {
			return nil, domain.WrapError(domain.ErrFileTooLarge, string(p.op),
				fmt.Errorf("%s is %d bytes, limit is %d", in.OriginalName, info.Size(), p.uc.maxFileBytes))
		}

		kind, mime, err := p.uc.inspector.Detect(in.Path)
		if err != nil {
			if domain.IsKind(err, domain.ErrInvalidInput) {
				return nil, fmt.Errorf("%s: %s: %w", p.op, in.OriginalName, err)
			}
			return nil, fmt.Errorf("%s: inspect %s: %w", p.op, in.OriginalName, err)
		}
		if declared := domain.KindForExtension(in.DeclaredExtension); declared != "" && declared != kind {
			return nil, p.invalid("%s is declared as %s but contains %s", in.OriginalName, declared, mime)
		}
		if !containsKind(accepted, kind) {
			return nil, p.invalid("%s is %s, expected %s", in.OriginalName, kind, joinKinds(accepted))
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// exec runs one command and maps an unsuccessful result to an error kind.
func (p *pipeline) exec(ctx context.Context, cmd domain.CommandSpec, timeout time.Duration) (domain.ExecutionResult, error) {
	p.enter(domain.StageExecuting)
	slog.Debug("tool_command", "job_id", p.jobID, "operation", string(p.op), "command", cmd.String())

	res := p.uc.runner.Execute(ctx, cmd, domain.ExecOptions{
		Timeout:        timeout,
		MaxOutputBytes: p.uc.maxOutputBytes,
	})
	if res.Success {
		return res, nil
	}

	failure := domain.NewToolFailure(cmd.Tool, res)
	switch {
	case res.Exit.Rejected:
		return res, fmt.Errorf("%s: %w: %w: %w", p.op, domain.ErrToolUnavailable, domain.ErrTemporary, failure)
	case res.Exit.NotFound:
		return res, fmt.Errorf("%s: %w: %w", p.op, domain.ErrToolUnavailable, failure)
	case res.Exit.TimedOut:
		p.keepOutputs = true
	}
	return res, fmt.Errorf("%s: %w", p.op, failure)
}

// adopt renames a file the tool named itself to the caller-chosen path.
func (p *pipeline) adopt(expected, final string) error {
	p.enter(domain.StageLocatingOutput)
	if err := os.Rename(expected, final); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p.outputNotFound(expected)
		}
		return domain.WrapError(domain.ErrOutputInaccessible, string(p.op), fmt.Errorf("move %s: %w", filepath.Base(expected), err))
	}
	return nil
}

// locate confirms that a tool wrote where it was told to.
func (p *pipeline) locate(path string) error {
	p.enter(domain.StageLocatingOutput)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p.outputNotFound(path)
		}
		return domain.WrapError(domain.ErrOutputInaccessible, string(p.op), err)
	}
	return nil
}

func (p *pipeline) outputNotFound(expected string) error {
	dir := filepath.Dir(expected)
	var names []string
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if len(names) == maxListedEntries {
				names = append(names, "...")
				break
			}
			names = append(names, e.Name())
		}
	}
	slog.Warn("output_not_found",
		"job_id", p.jobID,
		"operation", string(p.op),
		"expected", filepath.Base(expected),
		"dir", dir,
		"entries", strings.Join(names, ","),
	)
	return domain.WrapError(domain.ErrOutputNotFound, string(p.op), fmt.Errorf("expected %s in %s", filepath.Base(expected), dir))
}

// verify is the last step before an artifact is handed out.
func (p *pipeline) verify(path, suggested string, page int) (domain.OutputArtifact, error) {
	p.enter(domain.StageVerifying)
	info, err := os.Stat(path)
	if err != nil {
		return domain.OutputArtifact{}, domain.WrapError(domain.ErrOutputInaccessible, string(p.op), err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return domain.OutputArtifact{}, domain.WrapError(domain.ErrOutputInaccessible, string(p.op),
			fmt.Errorf("%s is empty or not a regular file", filepath.Base(path)))
	}
	if p.uc.verifier != nil {
		if err := p.uc.verifier.Verify(path); err != nil {
			return domain.OutputArtifact{}, fmt.Errorf("%s: %w", p.op, err)
		}
	}
	return domain.OutputArtifact{
		Path:              path,
		SuggestedFilename: suggested,
		MimeType:          domain.MimeForExtension(filepath.Ext(suggested)),
		SizeBytes:         info.Size(),
		Page:              page,
	}, nil
}

// finalize locates and verifies a single output the caller named.
func (p *pipeline) finalize(path, suggested string) ([]domain.OutputArtifact, error) {
	if err := p.locate(path); err != nil {
		return nil, err
	}
	artifact, err := p.verify(path, suggested, 0)
	if err != nil {
		return nil, err
	}
	return []domain.OutputArtifact{artifact}, nil
}

func containsKind(kinds []domain.FileKind, kind domain.FileKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func joinKinds(kinds []domain.FileKind) string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return strings.Join(names, " or ")
}
