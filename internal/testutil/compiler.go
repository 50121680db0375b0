package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/whylson/internal/compiler"
)

// CompileCall is one recorded FakeCompiler invocation.
type CompileCall struct {
	Source     string
	Options    compiler.Options
	SourceText string // file content at the time of the call
}

// FakeCompiler is a deterministic compiler.Compiler for tests.
//
// On success the output is "# <stem>\n" followed by the source text; in
// artifact mode it is also written to OutputPath. Failures are configured
// per Source with Fail.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FakeCompiler struct {
	mu       sync.Mutex
	calls    []CompileCall
	failures map[string]compiler.Result
	held     *hold
}

type hold struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewFakeCompiler creates a FakeCompiler where every compile succeeds.
func NewFakeCompiler() *FakeCompiler {
	return &FakeCompiler{failures: make(map[string]compiler.Result)}
}

// Fail makes every later compile of source return a Failure with diagnostic.
func (f *FakeCompiler) Fail(source, diagnostic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[source] = compiler.Result{Kind: compiler.Failure, Diagnostic: diagnostic}
}

// Missing makes every later compile of source report ToolMissing.
func (f *FakeCompiler) Missing(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[source] = compiler.Result{Kind: compiler.ToolMissing, Diagnostic: "ligo: executable file not found in $PATH"}
}

// Succeed clears any configured failure for source.
func (f *FakeCompiler) Succeed(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, source)
}

// Hold parks the next Compile call until release is called. entered is
// closed once that call is parked.
func (f *FakeCompiler) Hold() (entered <-chan struct{}, release func()) {
	h := &hold{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	f.mu.Lock()
	f.held = h
	f.mu.Unlock()

	return h.entered, func() {
		h.once.Do(func() { close(h.release) })
	}
}

// Compile implements compiler.Compiler.
func (f *FakeCompiler) Compile(ctx context.Context, sourcePath string, opts compiler.Options) compiler.Result {
	f.mu.Lock()
	h := f.held
	f.held = nil
	f.mu.Unlock()

	if h != nil {
		close(h.entered)
		select {
		case <-h.release:
		case <-ctx.Done():
			return compiler.Result{Kind: compiler.Failure, Diagnostic: ctx.Err().Error()}
		}
	}

	data, readErr := os.ReadFile(sourcePath)

	f.mu.Lock()
	f.calls = append(f.calls, CompileCall{
		Source:     sourcePath,
		Options:    opts,
		SourceText: string(data),
	})
	failure, failing := f.failures[sourcePath]
	f.mu.Unlock()

	if failing {
		return failure
	}
	if readErr != nil {
		return compiler.Result{Kind: compiler.Failure, Diagnostic: readErr.Error()}
	}

	text := ExpectedArtifact(sourcePath, string(data))
	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, []byte(text), 0o644); err != nil {
			return compiler.Result{Kind: compiler.Failure, Diagnostic: err.Error()}
		}
	}
	return compiler.Result{Kind: compiler.Success, Text: text}
}

// Calls returns a copy of the recorded invocations.
func (f *FakeCompiler) Calls() []CompileCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompileCall(nil), f.calls...)
}

// CallsFor returns the invocations for source.
func (f *FakeCompiler) CallsFor(source string) []CompileCall {
	var out []CompileCall
	for _, c := range f.Calls() {
		if c.Source == source {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded invocations.
func (f *FakeCompiler) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// ExpectedArtifact is the text FakeCompiler produces for a successful
// compile of sourcePath with content.
func ExpectedArtifact(sourcePath, content string) string {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return fmt.Sprintf("# %s\n%s", stem, content)
}
