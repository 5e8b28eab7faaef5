package domain

import (
	"strconv"
	"strings"
	"time"
)

// CommandArg is one argv token. Quoted is the shell-safe rendering of Raw.
type CommandArg struct {
	Raw    string
	Quoted string
	User   bool
	// Secret arguments are redacted from String.
	Secret bool
}

// CommandSpec is a single external invocation. Build it with a command builder,
// never by hand, so that user-influenced values go through the escaper.
type CommandSpec struct {
	Tool    string
	Program string
	Quoted  string
	args    []CommandArg
}

func NewCommandSpec(tool, program, quotedProgram string, args []CommandArg) CommandSpec {
	cp := make([]CommandArg, len(args))
	copy(cp, args)
	return CommandSpec{
		Tool:    tool,
		Program: program,
		Quoted:  quotedProgram,
		args:    cp,
	}
}

// Argv returns the raw argument vector without the program.
func (c CommandSpec) Argv() []string {
	out := make([]string, 0, len(c.args))
	for _, a := range c.args {
		out = append(out, a.Raw)
	}
	return out
}

func (c CommandSpec) Args() []CommandArg {
	out := make([]CommandArg, len(c.args))
	copy(out, c.args)
	return out
}

// String renders the command line as a shell would need to see it.
func (c CommandSpec) String() string {
	parts := make([]string, 0, len(c.args)+1)
	program := c.Quoted
	if program == "" {
		program = c.Program
	}
	parts = append(parts, program)
	for _, a := range c.args {
		if a.Secret {
			parts = append(parts, "'[redacted]'")
			continue
		}
		parts = append(parts, a.Quoted)
	}
	return strings.Join(parts, " ")
}

type ExecOptions struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// ExitInfo tells a timeout apart from a non-zero exit or a signal.
type ExitInfo struct {
	Code     int
	Signal   string
	TimedOut bool
	NotFound bool
	// Rejected means the process was never started, e.g. an open circuit.
	Rejected bool
}

func (e ExitInfo) String() string {
	switch {
	case e.TimedOut:
		return "timeout"
	case e.NotFound:
		return "not found"
	case e.Rejected:
		return "rejected"
	case e.Signal != "":
		return "signal " + e.Signal
	default:
		return "exit " + strconv.Itoa(e.Code)
	}
}

// ExecutionResult is always returned by value. Success=false carries Error.
// Success=true says nothing about whether the expected output was written.
type ExecutionResult struct {
	Success   bool
	Stdout    string
	Stderr    string
	Exit      ExitInfo
	Error     string
	Truncated bool
	Duration  time.Duration
}
