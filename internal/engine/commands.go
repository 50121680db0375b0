package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/whylson/internal/registry"
	"github.com/roach88/whylson/internal/view"
)

// Activate prepares the project: it checks the workspace, creates the
// .whylson layout and loads the registry. A corrupt registry is reported
// and treated as empty.
//
// ctx also becomes the parent context of debounced cycles.
func (e *Engine) Activate(ctx context.Context) error {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	info, err := os.Stat(e.layout.Root)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return newError(ErrCodeWorkspaceUnavailable, "", "project root "+e.layout.Root+" is unavailable", err)
	}

	if err := os.MkdirAll(e.layout.ArtifactDir(), 0o755); err != nil {
		e.notifier.Error(fmt.Sprintf("Could not create %s: %v", e.layout.ArtifactDir(), err))
		return newError(ErrCodeArtifactIO, "", "creating artifact directory", err)
	}

	created, err := e.registry.Ensure()
	switch {
	case registry.IsCorrupt(err):
		e.reportRegistryLoad(err)
	case registry.IsWriteFailed(err):
		e.notifier.Error(fmt.Sprintf("Could not create the contract registry: %v", err))
		return err
	case err != nil:
		e.reportRegistryLoad(err)
	case created:
		e.logger.Info("registry created", "path", e.layout.RegistryPath())
	default:
		e.logger.Debug("registry loaded", "path", e.layout.RegistryPath(), "entries", len(e.registry.Entries()))
	}
	return nil
}

// OpenArtifactView shows the compiled artifact of source, registering and
// compiling it first when needed.
func (e *Engine) OpenArtifactView(ctx context.Context, source string) error {
	source, err := e.checkSource(source)
	if err != nil {
		return err
	}

	unlock := e.lockDoc(source)
	defer unlock()

	entry, err := e.ensureArtifact(ctx, source)
	if err != nil {
		return err
	}
	return e.showArtifact(ctx, entry)
}

// SaveContract compiles source to its on-disk artifact, registering it
// first when needed.
func (e *Engine) SaveContract(ctx context.Context, source string) error {
	source, err := e.checkSource(source)
	if err != nil {
		return err
	}

	unlock := e.lockDoc(source)
	defer unlock()

	entry, registered := e.registry.Find(source)
	if !registered || !fileExists(entry.OnPath) {
		entry, err = e.ensureArtifact(ctx, source)
		if err != nil {
			return err
		}
	} else if err := e.compileArtifact(ctx, entry, false); err != nil {
		return err
	}

	if e.isDisplayed(entry) {
		if err := e.showArtifact(ctx, entry); err != nil {
			return err
		}
	}

	e.notifier.Info(fmt.Sprintf("Saved compiled contract %s to %s", entry.Title, entry.OnPath))
	return nil
}

// StartSession is reserved for verification sessions.
func (e *Engine) StartSession(ctx context.Context, source string) error {
	e.notifier.Info("Verification sessions are not available in this version.")
	return newError(ErrCodeSessionUnsupported, source, "verification sessions are not implemented", nil)
}

// EraseContract removes the entry for source and deletes its artifact.
// Both steps are attempted even if the other fails.
func (e *Engine) EraseContract(ctx context.Context, source string) error {
	source = e.layout.Resolve(source)

	unlock := e.lockDoc(source)
	defer unlock()

	e.cancelPending(source)

	artifact := e.layout.ArtifactPath(source)
	entry, registered := e.registry.Find(source)
	if registered {
		artifact = entry.OnPath
	}

	var errs []error
	removed, err := e.registry.Remove(source)
	if err != nil {
		errs = append(errs, fmt.Errorf("removing registry entry: %w", err))
	}

	deleted := true
	if err := os.Remove(artifact); err != nil {
		deleted = false
		if !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, newError(ErrCodeArtifactIO, source, "deleting artifact", err))
		}
	}

	e.views.Forget(view.URIFor(artifact))
	e.clearPhase(source)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		e.notifier.Error(fmt.Sprintf("Erasing contract data for %s was incomplete: %v", source, err))
		return err
	}

	e.logger.Info("contract erased", "source", source, "entry_removed", removed, "artifact_deleted", deleted)
	if !removed && !deleted {
		e.notifier.Info(fmt.Sprintf("No contract data recorded for %s", source))
		return nil
	}
	e.notifier.Info(fmt.Sprintf("Erased contract data for %s", source))
	return nil
}

// ResetFolder wipes and recreates the registry file and the artifact
// directory. It waits for running cycles to finish.
func (e *Engine) ResetFolder(ctx context.Context) error {
	e.cancelAllPending()

	e.cycles.Lock()
	defer e.cycles.Unlock()

	var errs []error
	if err := os.RemoveAll(e.layout.ArtifactDir()); err != nil {
		errs = append(errs, newError(ErrCodeArtifactIO, "", "removing artifact directory", err))
	}
	if err := os.MkdirAll(e.layout.ArtifactDir(), 0o755); err != nil {
		errs = append(errs, newError(ErrCodeArtifactIO, "", "creating artifact directory", err))
	}
	if err := e.registry.Reset(); err != nil {
		errs = append(errs, fmt.Errorf("resetting registry: %w", err))
	}

	e.mu.Lock()
	e.phases = make(map[string]State)
	e.mu.Unlock()

	if len(errs) > 0 {
		err := errors.Join(errs...)
		e.notifier.Error(fmt.Sprintf("Resetting %s failed: %v", e.layout.Dir(), err))
		return err
	}

	e.logger.Info("registry folder reset", "dir", e.layout.Dir())
	e.notifier.Info(fmt.Sprintf("Reset %s", e.layout.Dir()))
	return nil
}

// checkSource resolves source and rejects non-Source documents.
func (e *Engine) checkSource(source string) (string, error) {
	source = e.layout.Resolve(source)
	if !e.matcher.IsSource(source) {
		e.notifier.Error(fmt.Sprintf("%s is not a contract source (expected %v)", source, e.matcher.Patterns()))
		return "", newError(ErrCodeNotSource, source, "not a contract source", nil)
	}
	return source, nil
}
