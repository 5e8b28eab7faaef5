package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{WrapError(ErrInvalidInput, "split", errors.New("bad mode")), "invalid_input"},
		{WrapError(ErrFileTooLarge, "upload", errors.New("11MB")), "file_too_large"},
		{fmt.Errorf("merge: %w: %w", ErrToolUnavailable, ErrTemporary), "tool_unavailable"},
		{fmt.Errorf("merge: %w", &ToolFailure{Tool: "qpdf"}), "tool_execution_failed"},
		{WrapError(ErrOutputNotFound, "office-convert", errors.New("missing")), "output_not_found"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestToolFailureDistinguishesTimeout(t *testing.T) {
	timedOut := NewToolFailure("gs", ExecutionResult{Exit: ExitInfo{TimedOut: true}, Error: "timed out after 2m0s"})
	if !errors.Is(timedOut, context.DeadlineExceeded) || !errors.Is(timedOut, ErrToolExecutionFailed) {
		t.Fatalf("expected timeout failure to match both kinds")
	}
	if !strings.Contains(timedOut.Error(), "gs: timeout") {
		t.Fatalf("unexpected message %q", timedOut.Error())
	}

	exited := NewToolFailure("qpdf", ExecutionResult{Exit: ExitInfo{Code: 2}, Stderr: "  damaged file \n"})
	if errors.Is(exited, context.DeadlineExceeded) {
		t.Fatalf("exit failure must not match DeadlineExceeded")
	}
	if got := exited.Error(); got != "qpdf: exit 2: damaged file" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestCommandSpecRendering(t *testing.T) {
	cmd := NewCommandSpec("qpdf", "/usr/bin/qpdf", "/usr/bin/qpdf", []CommandArg{
		{Raw: "--password=pw", Quoted: "'--password=pw'", User: true, Secret: true},
		{Raw: "in file.pdf", Quoted: "'in file.pdf'"},
	})
	if got := cmd.String(); got != "/usr/bin/qpdf '[redacted]' 'in file.pdf'" {
		t.Fatalf("unexpected rendering %q", got)
	}
	argv := cmd.Argv()
	argv[0] = "mutated"
	if cmd.Argv()[0] != "--password=pw" {
		t.Fatalf("argv must be a copy")
	}
}

func TestUploadedFileStem(t *testing.T) {
	cases := map[string]string{
		"Report.final.pdf": "Report.final",
		"../x/notes.txt":   "notes",
		".pdf":             "document",
		`..\..\x.jpg`:      "x",
		`C:\docs\a\b.pdf`:  "b",
		"bad\nname.pdf":    "bad_name",
		"..":               "document",
	}
	for name, want := range cases {
		if got := (UploadedFile{OriginalName: name}).Stem(); got != want {
			t.Fatalf("Stem(%q) = %q, want %q", name, got, want)
		}
	}
}
