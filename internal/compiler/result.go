// Package compiler invokes the external LIGO compiler and reports the outcome
// as a tagged Result. It keeps no state and never retries.
package compiler

import (
	"context"
	"strings"
)

// Kind tags a compilation outcome.
type Kind int

const (
	// Success means the compiler exited cleanly.
	Success Kind = iota

	// Failure means the compiler ran and rejected the source, or the
	// invocation itself failed.
	Failure

	// ToolMissing means the compiler binary could not be found.
	ToolMissing
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case ToolMissing:
		return "tool_missing"
	default:
		return "unknown"
	}
}

// Options control one compiler invocation.
type Options struct {
	// Entrypoint is the contract entrypoint symbol.
	Entrypoint string

	// OutputPath, when set, makes the compiler write the artifact there.
	// When empty the artifact is returned as text only (preview mode).
	OutputPath string

	// Flags are passed through in order after the standard arguments.
	Flags []string
}

// Preview reports whether these options run in preview mode.
func (o Options) Preview() bool {
	return o.OutputPath == ""
}

// Result is the outcome of a compilation. Exactly one of Text or
// Diagnostic is meaningful, depending on Kind.
type Result struct {
	Kind       Kind
	Text       string
	Diagnostic string
}

// OK reports whether the compilation succeeded.
func (r Result) OK() bool {
	return r.Kind == Success
}

// Display returns text suitable for an artifact preview. Failures are
// rendered as Michelson comments so the preview stays parseable.
func (r Result) Display() string {
	switch r.Kind {
	case Success:
		return r.Text
	case ToolMissing:
		return CommentDiagnostic("compiler not available: " + r.Diagnostic)
	default:
		return CommentDiagnostic(r.Diagnostic)
	}
}

// Compiler turns a Source file into a Michelson artifact.
type Compiler interface {
	Compile(ctx context.Context, sourcePath string, opts Options) Result
}

// CommentPrefix starts a Michelson line comment.
const CommentPrefix = "# "

// CommentDiagnostic prefixes every line of text with CommentPrefix.
// Trailing newlines are dropped; an empty diagnostic becomes one comment.
func CommentDiagnostic(text string) string {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return strings.TrimSpace(CommentPrefix) + "\n"
	}

	lines := strings.Split(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			b.WriteString(strings.TrimSpace(CommentPrefix))
		} else {
			b.WriteString(CommentPrefix)
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
