package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/whylson/internal/contract"
	"github.com/roach88/whylson/internal/history"
)

// DocumentSaved reacts to a Source being written to disk.
//
// An unregistered Source is registered only with OnSaveCreateEntry. A
// registered Source with no artifact gets its first compilation. Otherwise,
// with BackgroundCompile, the preview is refreshed and the artifact rebuilt.
func (e *Engine) DocumentSaved(ctx context.Context, source string) error {
	source = e.layout.Resolve(source)
	if !e.matcher.IsSource(source) {
		return nil
	}

	unlock := e.lockDoc(source)
	defer unlock()

	entry, registered := e.registry.Find(source)
	switch {
	case !registered:
		if !e.settings.OnSaveCreateEntry {
			return nil
		}
		entry, err := e.ensureArtifact(ctx, source)
		if err != nil {
			if IsDeclined(err) {
				return nil
			}
			return err
		}
		if e.settings.OnSaveOpenView {
			return e.showArtifact(ctx, entry)
		}
		return nil

	case !fileExists(entry.OnPath):
		_, err := e.ensureArtifact(ctx, source)
		return err

	case e.settings.BackgroundCompile:
		return e.backgroundCompile(ctx, entry)
	}
	return nil
}

// backgroundCompile refreshes a visible preview, then rebuilds the artifact
// when the preview compiled. These are two separate compiler invocations.
func (e *Engine) backgroundCompile(ctx context.Context, entry contract.Entry) error {
	res, runID := e.compile(ctx, entry, "")
	e.record(ctx, runID, entry.Source, history.ModePreview, res, false)

	if e.isDisplayed(entry) {
		if err := e.display(ctx, entry, res.Display()); err != nil {
			return err
		}
	}

	if !res.OK() {
		e.logger.Warn("background compilation failed", "source", entry.Source, "run_id", runID)
		return newError(ErrCodeBackgroundCompilationFailed, entry.Source, res.Diagnostic, nil)
	}

	if err := e.compileArtifact(ctx, entry, false); err != nil {
		e.logger.Warn("background artifact build failed", "source", entry.Source, "error", err)
		return newError(ErrCodeBackgroundCompilationFailed, entry.Source, "artifact build failed", err)
	}
	return nil
}

// DocumentChanged (re)arms the debounced autosave cycle for source. It only
// acts when AutoSave is on and the Source's preview is visible, and reports
// whether a cycle was armed.
func (e *Engine) DocumentChanged(source string) bool {
	source = e.layout.Resolve(source)
	if !e.settings.AutoSave || !e.matcher.IsSource(source) {
		return false
	}

	entry, ok := e.registry.Find(source)
	if !ok || !e.isDisplayed(entry) {
		return false
	}

	e.schedule(source)
	return true
}

// DocumentClosed cancels any pending autosave for source. A cycle already
// running completes.
func (e *Engine) DocumentClosed(source string) {
	source = e.layout.Resolve(source)
	if e.cancelPending(source) {
		e.logger.Debug("pending autosave cancelled", "source", source)
	}
}

// schedule restarts the quiet period for source. Only the newest timer's
// generation may fire.
func (e *Engine) schedule(source string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[source]
	if !ok {
		p = &pendingCycle{}
		e.pending[source] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}

	p.gen++
	gen := p.gen
	p.timer = e.scheduler.AfterFunc(e.settings.Debounce(), func() {
		e.fire(source, gen)
	})
}

func (e *Engine) fire(source string, gen uint64) {
	e.mu.Lock()
	p, ok := e.pending[source]
	if !ok || p.gen != gen {
		e.mu.Unlock()
		return
	}
	delete(e.pending, source)
	ctx := e.baseCtx
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return
	}
	if err := e.autoSaveCycle(ctx, source); err != nil {
		e.logger.Warn("autosave cycle failed", "source", source, "error", err)
	}
}

// autoSaveCycle saves the document, compiles a preview of the saved content
// and shows it if the preview is still visible.
func (e *Engine) autoSaveCycle(ctx context.Context, source string) error {
	unlock := e.lockDoc(source)
	defer unlock()

	entry, ok := e.registry.Find(source)
	if !ok {
		return nil
	}

	if err := e.workspace.SaveDocument(ctx, source); err != nil {
		e.notifier.Error(fmt.Sprintf("Could not save %s: %v", entry.Title, err))
		return fmt.Errorf("saving document: %w", err)
	}

	res, runID := e.compile(ctx, entry, "")
	e.record(ctx, runID, entry.Source, history.ModePreview, res, false)

	if !e.isDisplayed(entry) {
		return nil
	}
	if err := e.display(ctx, entry, res.Display()); err != nil {
		return err
	}
	if !res.OK() {
		return errors.New(res.Diagnostic)
	}
	return nil
}

// cancelPending stops the pending cycle for source, if any.
func (e *Engine) cancelPending(source string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[source]
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(e.pending, source)
	return true
}

func (e *Engine) cancelAllPending() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for source, p := range e.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(e.pending, source)
	}
}

// PendingAutoSaves reports how many Sources have an armed autosave timer.
func (e *Engine) PendingAutoSaves() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
