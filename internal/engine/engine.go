package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/whylson/internal/clock"
	"github.com/roach88/whylson/internal/compiler"
	"github.com/roach88/whylson/internal/config"
	"github.com/roach88/whylson/internal/paths"
	"github.com/roach88/whylson/internal/registry"
	"github.com/roach88/whylson/internal/view"
)

// State is where a Source document stands.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateCompiling
	StateDisplayed
	StateCompileFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateCompiling:
		return "compiling"
	case StateDisplayed:
		return "displayed"
	case StateCompileFailed:
		return "compile_failed"
	default:
		return "unknown"
	}
}

// Engine is the orchestrator. It exclusively owns the registry store.
type Engine struct {
	layout   paths.Layout
	registry *registry.Store
	compiler compiler.Compiler
	views    *view.Manager

	matcher   *paths.Matcher
	prompter  Prompter
	notifier  Notifier
	workspace Workspace
	journal   Journal
	runIDs    RunIDGenerator
	scheduler clock.Scheduler
	settings  config.Settings
	logger    *slog.Logger

	// cycles is held shared by every per-Source cycle and exclusively by
	// ResetFolder.
	cycles sync.RWMutex

	mu       sync.Mutex
	baseCtx  context.Context
	pending  map[string]*pendingCycle // debounce table, one per Source
	docLocks map[string]*sync.Mutex
	phases   map[string]State // transient Compiling / CompileFailed
}

type pendingCycle struct {
	timer clock.Timer
	gen   uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrompter sets the entrypoint prompter. Default declines every prompt.
func WithPrompter(p Prompter) Option {
	return func(e *Engine) { e.prompter = p }
}

// WithNotifier sets the user notification sink. Default logs.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithWorkspace sets how editor buffers are saved. Default assumes
// documents are already on disk.
func WithWorkspace(w Workspace) Option {
	return func(e *Engine) { e.workspace = w }
}

// WithJournal records every compile attempt.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithRunIDs overrides the run id generator. Default UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithScheduler overrides the debounce scheduler. Default clock.Real.
func WithScheduler(s clock.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithSettings sets the behavior toggles. Default config.Default().
func WithSettings(s config.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithMatcher sets which paths are Source documents.
func WithMatcher(m *paths.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine. The registry store must not be mutated by anyone
// else afterwards.
func New(
	layout paths.Layout,
	reg *registry.Store,
	comp compiler.Compiler,
	views *view.Manager,
	opts ...Option,
) *Engine {
	e := &Engine{
		layout:    layout,
		registry:  reg,
		compiler:  comp,
		views:     views,
		matcher:   paths.DefaultMatcher(),
		prompter:  declineAll{},
		workspace: diskWorkspace{},
		runIDs:    UUIDv7Generator{},
		scheduler: clock.Real{},
		settings:  config.Default(),
		logger:    slog.Default(),
		baseCtx:   context.Background(),
		pending:   make(map[string]*pendingCycle),
		docLocks:  make(map[string]*sync.Mutex),
		phases:    make(map[string]State),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = logNotifier{logger: e.logger}
	}
	return e
}

// Settings returns the active settings.
func (e *Engine) Settings() config.Settings {
	return e.settings
}

// Layout returns the project layout.
func (e *Engine) Layout() paths.Layout {
	return e.layout
}

// State reports where source currently stands.
func (e *Engine) State(source string) State {
	source = e.layout.Resolve(source)

	entry, ok := e.registry.Find(source)
	if !ok {
		return StateUnregistered
	}

	e.mu.Lock()
	phase, hasPhase := e.phases[source]
	e.mu.Unlock()
	if hasPhase {
		return phase
	}

	if e.views.IsDisplayed(view.URIFor(entry.OnPath)) {
		return StateDisplayed
	}
	return StateRegistered
}

// lockDoc serializes cycles for one Source and excludes a concurrent
// folder reset.
func (e *Engine) lockDoc(source string) func() {
	e.cycles.RLock()

	e.mu.Lock()
	l, ok := e.docLocks[source]
	if !ok {
		l = &sync.Mutex{}
		e.docLocks[source] = l
	}
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.cycles.RUnlock()
	}
}

func (e *Engine) setPhase(source string, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phases[source] = s
}

func (e *Engine) clearPhase(source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.phases, source)
}

// Close cancels every pending debounced cycle. Cycles already running
// complete.
func (e *Engine) Close() {
	e.cancelAllPending()
}
