package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/whylson/internal/compiler"
	"github.com/roach88/whylson/internal/config"
	"github.com/roach88/whylson/internal/engine"
	"github.com/roach88/whylson/internal/history"
	"github.com/roach88/whylson/internal/host"
	"github.com/roach88/whylson/internal/paths"
	"github.com/roach88/whylson/internal/registry"
	"github.com/roach88/whylson/internal/view"
)

var errInvalidSettings = errors.New("invalid settings")

// app is one wired project: settings, registry, compiler, terminal host,
// view manager, compile journal and the engine that owns them.
type app struct {
	layout   paths.Layout
	settings config.Settings
	registry *registry.Store
	journal  *history.Journal
	terminal *host.Terminal
	views    *view.Manager
	engine   *engine.Engine
	logger   *slog.Logger
}

// newLogger configures slog the CLI way: text on stderr, debug with
// --verbose. Routine progress is reported through the terminal host, so
// the default level only shows warnings.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadLayout resolves the project root and settings.
func loadLayout(opts *RootOptions) (paths.Layout, config.Settings, error) {
	layout := paths.NewLayout(opts.Project)

	info, err := os.Stat(layout.Root)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return layout, config.Settings{}, WrapExitError(ExitCommandError,
			fmt.Sprintf("project root %s is unavailable", layout.Root), err)
	}

	settingsPath := opts.Config
	if settingsPath == "" {
		settingsPath = layout.SettingsPath()
	}
	settings, err := config.Load(settingsPath)
	if err != nil {
		return layout, settings, WrapExitError(ExitCommandError, "cannot load "+settingsPath,
			fmt.Errorf("%w: %w", errInvalidSettings, err))
	}
	return layout, settings, nil
}

// openApp wires the engine for one command and activates the project.
// Callers must Close the returned app.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command, hostOpts ...host.Option) (*app, error) {
	layout, settings, err := loadLayout(opts)
	if err != nil {
		return nil, err
	}

	matcher, err := paths.NewMatcher(settings.SourcePatterns...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot compile source patterns",
			fmt.Errorf("%w: %w", errInvalidSettings, err))
	}

	logger := newLogger(opts, cmd.ErrOrStderr())

	comp := opts.Compiler
	if comp == nil {
		comp = compiler.NewLigo(
			compiler.WithBinary(settings.Compiler.Binary),
			compiler.WithDefaultFlags(settings.Compiler.Flags...),
			compiler.WithLogger(logger),
		)
	}

	in := opts.Input
	if in == nil {
		in = cmd.InOrStdin()
	}
	termOpts := []host.Option{
		host.WithInput(in),
		host.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		host.WithLogger(logger),
	}
	terminal := host.NewTerminal(append(termOpts, hostOpts...)...)

	views := view.NewManager(terminal, view.WithLogger(logger))
	terminal.Attach(views.ProvideContent)

	a := &app{
		layout:   layout,
		settings: settings,
		registry: registry.New(layout.RegistryPath(), registry.WithLogger(logger)),
		terminal: terminal,
		views:    views,
		logger:   logger,
	}

	engineOpts := []engine.Option{
		engine.WithPrompter(terminal),
		engine.WithNotifier(terminal),
		engine.WithSettings(settings),
		engine.WithMatcher(matcher),
		engine.WithLogger(logger),
	}

	// The journal is a record, not a requirement: run without it if it
	// cannot be opened.
	if err := os.MkdirAll(layout.Dir(), 0o755); err == nil {
		if j, err := history.Open(layout.HistoryPath()); err == nil {
			a.journal = j
			engineOpts = append(engineOpts, engine.WithJournal(j))
		} else {
			logger.Warn("compile journal unavailable", "path", layout.HistoryPath(), "error", err)
		}
	}

	a.engine = engine.New(layout, a.registry, comp, views, engineOpts...)

	if err := a.engine.Activate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close stops pending cycles and closes the journal.
func (a *app) Close() {
	a.engine.Close()
	if err := a.journal.Close(); err != nil {
		a.logger.Error("error closing compile journal", "error", err)
	}
}

// rel renders path relative to the project root when possible.
func (a *app) rel(path string) string {
	return relTo(a.layout, path)
}

func relTo(layout paths.Layout, path string) string {
	r, err := filepath.Rel(layout.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// commandContext returns the command's context or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// reportError prints err in the configured format and returns the
// matching ExitError.
func reportError(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code := ErrCodeGeneric
		if exitErr.Code == ExitCommandError {
			code = ErrCodeWorkspace
			if errors.Is(exitErr, errInvalidSettings) {
				code = ErrCodeSettings
			}
		}
		_ = f.Error(code, exitErr.Error(), nil)
		return exitErr
	}

	code, exit := classify(err)
	details := map[string]string{}
	var ee *engine.Error
	if errors.As(err, &ee) && ee.Source != "" {
		details["source"] = ee.Source
	}
	if len(details) == 0 {
		_ = f.Error(code, err.Error(), nil)
	} else {
		_ = f.Error(code, err.Error(), details)
	}
	return WrapExitError(exit, "command failed", err)
}

// classify maps an engine or registry error to a CLI error code and exit
// code.
func classify(err error) (string, int) {
	switch engine.CodeOf(err) {
	case engine.ErrCodeWorkspaceUnavailable:
		return ErrCodeWorkspace, ExitCommandError
	case engine.ErrCodeNotSource:
		return ErrCodeNotSource, ExitCommandError
	case engine.ErrCodeEntrypointDeclined:
		return ErrCodeDeclined, ExitFailure
	case engine.ErrCodeInvalidEntrypoint:
		return ErrCodeInvalidEntry, ExitCommandError
	case engine.ErrCodeFirstCompilationFailed,
		engine.ErrCodeCompilationFailed,
		engine.ErrCodeBackgroundCompilationFailed:
		return ErrCodeCompileFailed, ExitFailure
	case engine.ErrCodeArtifactIO:
		return ErrCodeArtifact, ExitFailure
	case engine.ErrCodeSessionUnsupported:
		return ErrCodeUnsupported, ExitFailure
	}
	var regErr *registry.Error
	if errors.As(err, &regErr) {
		return ErrCodeRegistry, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
}
