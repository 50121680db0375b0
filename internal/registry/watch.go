package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/roach88/whylson/internal/watch"
)

// ReloadFunc observes watcher-driven reloads.
type ReloadFunc func(changed bool, err error)

// Watch follows external edits to the registry file. Each change event
// triggers Reload; onReload, when non-nil, sees every outcome.
// The registry directory must exist. Stop the returned watcher to end.
func (s *Store) Watch(ctx context.Context, onReload ReloadFunc) (*watch.Watcher, error) {
	w, err := watch.New(watch.Config{
		Paths:    []string{filepath.Dir(s.path)},
		Debounce: 50 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	events, err := w.Start(ctx)
	if err != nil {
		_ = w.Stop()
		return nil, err
	}

	name := filepath.Base(s.path)
	go func() {
		for ev := range events {
			if filepath.Base(ev.Path) != name {
				continue
			}

			changed, err := s.Reload()
			switch {
			case err != nil:
				s.logger.Warn("registry reload failed", "path", s.path, "error", err)
			case changed:
				s.logger.Info("registry reloaded after external change",
					"path", s.path,
					"entries", len(s.Entries()),
				)
			}
			if onReload != nil {
				onReload(changed, err)
			}
		}
	}()

	return w, nil
}
