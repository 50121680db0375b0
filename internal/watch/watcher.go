// Package watch wraps fsnotify with per-path debouncing and glob-based
// exclusion. It backs both the registry reload and the source watch used by
// long-running sessions.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultDebounce is the quiet period before an event for a path is emitted.
const DefaultDebounce = 100 * time.Millisecond

var (
	// ErrNoPaths indicates no watch paths were configured.
	ErrNoPaths = errors.New("no paths configured for watching")

	// ErrNotDirectory indicates a watch path is not a directory.
	ErrNotDirectory = errors.New("watch path is not a directory")

	// ErrInvalidPattern indicates an exclude pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid exclude pattern")
)

// Op is the kind of filesystem change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

// String returns a lowercase name for the op.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a debounced filesystem change.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Config configures a Watcher.
type Config struct {
	// Paths are directories to watch.
	Paths []string

	// Recursive adds every subdirectory, including ones created later.
	Recursive bool

	// Exclude are glob patterns matched against full paths and base names.
	Exclude []string

	// Debounce is the per-path quiet period. Defaults to DefaultDebounce.
	Debounce time.Duration
}

type pending struct {
	event Event
	timer *time.Timer
}

// Watcher emits debounced change events for a set of directories.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	excludes []glob.Glob

	mu       sync.Mutex
	pending  map[string]*pending
	events   chan Event
	stopped  bool
	stopOnce sync.Once

	done     chan struct{} // closed on shutdown; unblocks senders
	doneOnce sync.Once
	sends    sync.WaitGroup
}

// New validates cfg and creates a Watcher. Call Start to begin.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, ErrNoPaths
	}
	for _, p := range cfg.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, ErrNotDirectory
		}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	excludes := make([]glob.Glob, 0, len(cfg.Exclude))
	for _, pattern := range cfg.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		excludes = append(excludes, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		excludes: excludes,
		pending:  make(map[string]*pending),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the watch paths and returns the event channel. The channel
// closes when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	w.events = make(chan Event, 64)

	for _, p := range w.cfg.Paths {
		if err := w.add(p); err != nil {
			close(w.events)
			return nil, err
		}
	}

	go w.loop(ctx)
	return w.events, nil
}

func (w *Watcher) add(root string) error {
	if !w.cfg.Recursive {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.cleanup()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.excluded(ev.Name) {
		return
	}

	if w.cfg.Recursive && ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.add(ev.Name)
			return
		}
	}

	w.schedule(Event{Path: ev.Name, Op: mapOp(ev.Op), Time: time.Now()})
}

// mapOp converts fsnotify ops; first match wins.
func mapOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) schedule(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	if p, ok := w.pending[ev.Path]; ok {
		p.timer.Stop()
		p.event = ev
		p.timer = w.timerFor(ev)
		return
	}
	w.pending[ev.Path] = &pending{event: ev, timer: w.timerFor(ev)}
}

func (w *Watcher) timerFor(ev Event) *time.Timer {
	return time.AfterFunc(w.cfg.Debounce, func() {
		w.emit(ev)
	})
}

// emit waits for the consumer rather than dropping ev, so a slow reader
// never misses a change. Shutdown releases waiting senders.
func (w *Watcher) emit(ev Event) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if p, ok := w.pending[ev.Path]; ok && p.event.Time.Equal(ev.Time) {
		delete(w.pending, ev.Path)
	}
	w.sends.Add(1)
	w.mu.Unlock()

	defer w.sends.Done()
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Watcher) excluded(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludes {
		if g.Match(path) || g.Match(base) {
			return true
		}
	}
	return false
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = make(map[string]*pending)
		w.mu.Unlock()

		w.halt()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) halt() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *Watcher) cleanup() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = make(map[string]*pending)
	}
	w.mu.Unlock()

	w.halt()
	w.sends.Wait()
	close(w.events)
}
