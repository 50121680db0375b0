package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/whylson/internal/compiler"
	"github.com/roach88/whylson/internal/contract"
	"github.com/roach88/whylson/internal/history"
	"github.com/roach88/whylson/internal/registry"
	"github.com/roach88/whylson/internal/view"
)

// register prompts for an entrypoint and persists a new entry.
func (e *Engine) register(ctx context.Context, source string) (contract.Entry, error) {
	reg, ok, err := e.prompter.PromptEntrypoint(ctx, source)
	if err != nil {
		return contract.Entry{}, fmt.Errorf("prompting for entrypoint: %w", err)
	}
	if !ok {
		e.logger.Debug("entrypoint prompt declined", "source", source)
		return contract.Entry{}, newError(ErrCodeEntrypointDeclined, source, "entrypoint input declined", nil)
	}

	entry, err := contract.NewEntry(source, e.layout.ArtifactPath(source), reg.Entrypoint, reg.Flags)
	if err != nil {
		e.notifier.Error(err.Error())
		return contract.Entry{}, newError(ErrCodeInvalidEntrypoint, source, "invalid entrypoint", err)
	}

	if err := e.registry.Upsert(entry); err != nil {
		e.notifier.Error(fmt.Sprintf("Could not save the contract registry: %v", err))
		return contract.Entry{}, err
	}
	if backup := e.registry.TakeQuarantined(); backup != "" {
		e.notifier.Error(fmt.Sprintf("The corrupt contract registry was moved to %s", backup))
	}

	e.logger.Info("contract registered",
		"source", entry.Source,
		"entrypoint", entry.Entrypoint,
		"artifact", entry.OnPath,
	)
	return entry, nil
}

// compile runs one compiler invocation for entry. Callers journal the
// result. An empty outputPath runs in preview mode.
func (e *Engine) compile(ctx context.Context, entry contract.Entry, outputPath string) (compiler.Result, string) {
	runID := e.runIDs.Generate()
	mode := history.ModePreview
	if outputPath != "" {
		mode = history.ModeArtifact
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return compiler.Result{Kind: compiler.Failure, Diagnostic: err.Error()}, runID
		}
	}

	e.setPhase(entry.Source, StateCompiling)
	e.logger.Debug("compiling", "run_id", runID, "source", entry.Source, "mode", mode)

	res := e.compiler.Compile(ctx, entry.Source, compiler.Options{
		Entrypoint: entry.Entrypoint,
		OutputPath: outputPath,
		Flags:      entry.Flags,
	})

	if res.OK() {
		e.clearPhase(entry.Source)
		e.logger.Info("compiled", "run_id", runID, "source", entry.Source, "mode", mode)
	} else {
		e.setPhase(entry.Source, StateCompileFailed)
		e.logger.Warn("compilation failed",
			"run_id", runID,
			"source", entry.Source,
			"mode", mode,
			"kind", res.Kind.String(),
		)
	}

	return res, runID
}

func (e *Engine) record(ctx context.Context, runID, source, mode string, res compiler.Result, rolledBack bool) {
	if e.journal == nil {
		return
	}
	_, err := e.journal.Record(ctx, history.Attempt{
		RunID:      runID,
		Source:     source,
		Mode:       mode,
		Outcome:    res.Kind.String(),
		Diagnostic: res.Diagnostic,
		RolledBack: rolledBack,
	})
	if err != nil {
		e.logger.Warn("failed to journal compile attempt", "run_id", runID, "error", err)
	}
}

// compileArtifact compiles entry to its on-disk artifact. With rollback set
// (a first compilation right after registration) a failure removes the
// entry and any artifact the attempt left behind.
func (e *Engine) compileArtifact(ctx context.Context, entry contract.Entry, rollback bool) error {
	existed := fileExists(entry.OnPath)

	res, runID := e.compile(ctx, entry, entry.OnPath)
	if res.OK() {
		e.record(ctx, runID, entry.Source, history.ModeArtifact, res, false)
		// Compilers that print instead of writing still leave an artifact.
		if !fileExists(entry.OnPath) && res.Text != "" {
			if err := os.WriteFile(entry.OnPath, []byte(res.Text), 0o644); err != nil {
				return newError(ErrCodeArtifactIO, entry.Source, "writing artifact", err)
			}
		}
		return nil
	}

	if !rollback {
		e.record(ctx, runID, entry.Source, history.ModeArtifact, res, false)
		e.notifier.Error(fmt.Sprintf("Compilation of %s failed:\n%s", entry.Title, res.Diagnostic))
		return newError(ErrCodeCompilationFailed, entry.Source, res.Diagnostic, nil)
	}

	if _, err := e.registry.Remove(entry.Source); err != nil {
		e.logger.Error("rollback of registry entry failed", "source", entry.Source, "error", err)
		e.notifier.Error(fmt.Sprintf("Could not roll back the registry entry for %s: %v", entry.Title, err))
	}
	if !existed {
		if err := os.Remove(entry.OnPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("failed to remove partial artifact", "path", entry.OnPath, "error", err)
		}
	}
	e.clearPhase(entry.Source)
	e.record(ctx, runID, entry.Source, history.ModeArtifact, res, true)

	e.notifier.Error(fmt.Sprintf("First compilation of %s failed; the contract was not registered:\n%s",
		entry.Title, res.Diagnostic))
	return newError(ErrCodeFirstCompilationFailed, entry.Source, "first compilation failed", errors.New(res.Diagnostic))
}

// ensureArtifact returns the entry for source, registering and compiling it
// first when needed. A missing artifact on an existing entry is compiled
// without rollback.
func (e *Engine) ensureArtifact(ctx context.Context, source string) (contract.Entry, error) {
	entry, ok := e.registry.Find(source)
	if !ok {
		var err error
		entry, err = e.register(ctx, source)
		if err != nil {
			return contract.Entry{}, err
		}
		if err := e.compileArtifact(ctx, entry, true); err != nil {
			return contract.Entry{}, err
		}
		return entry, nil
	}

	if !fileExists(entry.OnPath) {
		e.logger.Info("artifact missing, compiling", "source", source, "artifact", entry.OnPath)
		if err := e.compileArtifact(ctx, entry, false); err != nil {
			return contract.Entry{}, err
		}
	}
	return entry, nil
}

// showArtifact reads the on-disk artifact and displays it.
func (e *Engine) showArtifact(ctx context.Context, entry contract.Entry) error {
	data, err := os.ReadFile(entry.OnPath)
	if err != nil {
		e.notifier.Error(fmt.Sprintf("Could not read artifact %s: %v", entry.OnPath, err))
		return newError(ErrCodeArtifactIO, entry.Source, "reading artifact", err)
	}
	return e.display(ctx, entry, string(data))
}

func (e *Engine) display(ctx context.Context, entry contract.Entry, content string) error {
	if err := e.views.Display(ctx, entry.Source, view.URIFor(entry.OnPath), content); err != nil {
		e.notifier.Error(fmt.Sprintf("Could not open the preview for %s: %v", entry.Title, err))
		return err
	}
	return nil
}

func (e *Engine) isDisplayed(entry contract.Entry) bool {
	return e.views.IsDisplayed(view.URIFor(entry.OnPath))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// reportRegistryLoad surfaces a non-fatal registry read problem.
func (e *Engine) reportRegistryLoad(err error) {
	switch {
	case registry.IsCorrupt(err):
		e.notifier.Error(fmt.Sprintf("The contract registry %s is corrupt and was treated as empty. "+
			"Fix the file or reset the folder.", e.layout.RegistryPath()))
	default:
		e.notifier.Error(fmt.Sprintf("Could not read the contract registry: %v", err))
	}
	e.logger.Warn("registry load problem", "path", e.layout.RegistryPath(), "error", err)
}
