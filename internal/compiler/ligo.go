package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultBinary is the compiler executable looked up on PATH.
const DefaultBinary = "ligo"

// Runner executes a command and returns its standard streams.
// A non-nil error means the command could not run or exited non-zero.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Ligo is the Compiler backed by the ligo CLI.
type Ligo struct {
	binary string
	flags  []string
	runner Runner
	logger *slog.Logger
}

// LigoOption configures a Ligo compiler.
type LigoOption func(*Ligo)

// WithBinary overrides the executable name or path.
func WithBinary(binary string) LigoOption {
	return func(l *Ligo) {
		if binary != "" {
			l.binary = binary
		}
	}
}

// WithDefaultFlags adds flags passed before each entry's own flags.
func WithDefaultFlags(flags ...string) LigoOption {
	return func(l *Ligo) {
		l.flags = append(l.flags, flags...)
	}
}

// WithRunner replaces the process runner. Used by tests.
func WithRunner(r Runner) LigoOption {
	return func(l *Ligo) {
		l.runner = r
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) LigoOption {
	return func(l *Ligo) {
		l.logger = logger
	}
}

// NewLigo creates a ligo-backed Compiler.
func NewLigo(opts ...LigoOption) *Ligo {
	l := &Ligo{
		binary: DefaultBinary,
		runner: ExecRunner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Args builds the argument vector for one invocation:
//
//	compile contract <source> -e <entrypoint> [-o <output>] <default flags> <flags>
func (l *Ligo) Args(sourcePath string, opts Options) []string {
	args := []string{"compile", "contract", sourcePath}
	if opts.Entrypoint != "" {
		args = append(args, "-e", opts.Entrypoint)
	}
	if opts.OutputPath != "" {
		args = append(args, "-o", opts.OutputPath)
	}
	args = append(args, l.flags...)
	args = append(args, opts.Flags...)
	return args
}

// Compile runs the compiler once.
func (l *Ligo) Compile(ctx context.Context, sourcePath string, opts Options) Result {
	args := l.Args(sourcePath, opts)
	l.logger.Debug("invoking compiler",
		"binary", l.binary,
		"args", strings.Join(args, " "),
		"preview", opts.Preview(),
	)

	stdout, stderr, err := l.runner(ctx, l.binary, args...)
	if err != nil {
		return classifyFailure(l.binary, stdout, stderr, err)
	}

	return Result{Kind: Success, Text: string(stdout)}
}

// classifyFailure converts a runner error into a Result.
func classifyFailure(binary string, stdout, stderr []byte, err error) Result {
	if errors.Is(err, exec.ErrNotFound) {
		return Result{Kind: ToolMissing, Diagnostic: fmt.Sprintf("%s: %v", binary, err)}
	}

	diag := strings.TrimSpace(string(stderr))
	if diag == "" {
		diag = strings.TrimSpace(string(stdout))
	}
	if diag == "" {
		diag = err.Error()
	}
	return Result{Kind: Failure, Diagnostic: diag}
}
