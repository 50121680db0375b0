// Package host drives the engine from a terminal: entrypoint prompts on
// stdin, notifications on stderr and artifact previews printed to stdout.
package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/roach88/whylson/internal/contract"
	"github.com/roach88/whylson/internal/view"
)

// ContentProvider returns the current content of a preview.
type ContentProvider func(uri string) string

// Terminal implements view.Host, engine.Prompter and engine.Notifier.
//
// Previews are printed when opened and again on every change notification
// until Close is called for them.
//
// Thread-safety: safe for concurrent use. Output is serialized by an
// internal mutex.
type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool
	static      *contract.Registration
	logger      *slog.Logger

	mu       sync.Mutex
	previews map[string]*preview
	provider ContentProvider
}

type preview struct {
	uri    string
	source string
	mu     sync.Mutex
	closed bool
}

func (p *preview) URI() string { return p.uri }

func (p *preview) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithInput reads prompts from r. Prompting is enabled only when r is a
// terminal, unless forced with WithInteractive.
func WithInput(r io.Reader) Option {
	return func(t *Terminal) {
		t.in = bufio.NewReader(r)
		t.interactive = isTerminal(r)
	}
}

// WithInteractive forces prompting on or off.
func WithInteractive(on bool) Option {
	return func(t *Terminal) { t.interactive = on }
}

// WithOutput sets where previews and notifications go.
func WithOutput(out, errOut io.Writer) Option {
	return func(t *Terminal) {
		t.out = out
		t.errOut = errOut
	}
}

// WithRegistration answers every entrypoint prompt with reg without asking.
func WithRegistration(reg contract.Registration) Option {
	return func(t *Terminal) {
		reg.Flags = append([]string(nil), reg.Flags...)
		t.static = &reg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Terminal) { t.logger = logger }
}

// NewTerminal creates a Terminal on stdin, stdout and stderr.
func NewTerminal(opts ...Option) *Terminal {
	t := &Terminal{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		errOut:      os.Stderr,
		interactive: isTerminal(os.Stdin),
		logger:      slog.Default(),
		previews:    make(map[string]*preview),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Attach sets the preview content source, usually view.Manager.ProvideContent.
func (t *Terminal) Attach(p ContentProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.provider = p
}

// PromptEntrypoint asks for an entrypoint and optional compiler flags. A
// blank entrypoint, EOF or a non-interactive input declines.
func (t *Terminal) PromptEntrypoint(ctx context.Context, source string) (contract.Registration, bool, error) {
	if t.static != nil {
		reg := *t.static
		reg.Flags = append([]string(nil), reg.Flags...)
		return reg, true, nil
	}
	if !t.interactive {
		t.logger.Debug("no terminal for entrypoint prompt", "source", source)
		t.Error(fmt.Sprintf("%s is not registered; pass --entrypoint to register it", source))
		return contract.Registration{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return contract.Registration{}, false, err
	}

	entrypoint, ok, err := t.ask(fmt.Sprintf("Entrypoint for %s (blank to cancel): ", contract.TitleFor(source)))
	if err != nil || !ok || entrypoint == "" {
		return contract.Registration{}, false, err
	}

	flags, _, err := t.ask("Extra compiler flags (optional): ")
	if err != nil {
		return contract.Registration{}, false, err
	}

	return contract.Registration{Entrypoint: entrypoint, Flags: strings.Fields(flags)}, true, nil
}

// ask prints prompt and reads one trimmed line. ok is false at EOF with no
// input.
func (t *Terminal) ask(prompt string) (string, bool, error) {
	t.mu.Lock()
	fmt.Fprint(t.errOut, prompt)
	t.mu.Unlock()

	line, err := t.in.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", false, nil
		}
		err = nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading prompt answer: %w", err)
	}
	return strings.TrimSpace(line), true, nil
}

// Info implements engine.Notifier.
func (t *Terminal) Info(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.errOut, msg)
}

// Error implements engine.Notifier.
func (t *Terminal) Error(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.errOut, "error: %s\n", msg)
}

// OpenPreview implements view.Host.
func (t *Terminal) OpenPreview(ctx context.Context, uri, besideSource string) (view.Document, error) {
	p := &preview{uri: uri, source: besideSource}

	t.mu.Lock()
	t.previews[uri] = p
	provider := t.provider
	t.mu.Unlock()

	t.print(p, provider)
	return p, nil
}

// IsVisible implements view.Host.
func (t *Terminal) IsVisible(uri string) bool {
	t.mu.Lock()
	p, ok := t.previews[uri]
	t.mu.Unlock()
	return ok && !p.Closed()
}

// NotifyChanged implements view.Host.
func (t *Terminal) NotifyChanged(uri string) {
	t.mu.Lock()
	p, ok := t.previews[uri]
	provider := t.provider
	t.mu.Unlock()

	if ok && !p.Closed() {
		t.print(p, provider)
	}
}

// Close stops printing the preview for uri.
func (t *Terminal) Close(uri string) {
	t.mu.Lock()
	p, ok := t.previews[uri]
	delete(t.previews, uri)
	t.mu.Unlock()

	if ok {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}
}

func (t *Terminal) print(p *preview, provider ContentProvider) {
	if provider == nil {
		return
	}
	content := provider(p.uri)

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "==> %s <==\n", p.uri)
	fmt.Fprint(t.out, content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(t.out)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
