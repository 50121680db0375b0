package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/whylson/internal/watch"
)

// WatchExcludes are directories never watched for source changes.
var WatchExcludes = []string{".whylson", ".git", "node_modules", "_build"}

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Open []string
	Live bool

	// Ready is called once both watchers run (for testing).
	Ready func()
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompile contracts as their sources are saved",
		Long: `Watch the project and react to saved LIGO sources the way an editor
session would: registered sources are recompiled in the background and
their open previews refreshed. External edits to .whylson/contracts.json
are picked up without restarting.

With --live, writes to a source whose preview is open only refresh the
preview, once the source has been quiet for autoSaveThreshold ms. The
artifact is rebuilt by "whylson save".

Example:
  whylson watch
  whylson watch --open src/counter.mligo
  whylson watch --live --open src/counter.mligo`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Open, "open", nil, "source whose preview is printed on every change (repeatable)")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "debounce preview refreshes for open sources instead of rebuilding artifacts")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return reportError(formatter, err)
	}
	defer a.Close()

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, source := range opts.Open {
		if err := a.engine.OpenArtifactView(ctx, a.layout.Resolve(source)); err != nil {
			_ = reportError(formatter, err)
		}
	}

	regWatcher, err := a.registry.Watch(ctx, func(changed bool, err error) {
		if changed {
			a.terminal.Info(fmt.Sprintf("Reloaded %s (%d contract(s))",
				a.rel(a.layout.RegistryPath()), len(a.registry.Entries())))
		}
	})
	if err != nil {
		return reportError(formatter, WrapExitError(ExitFailure, "watching registry", err))
	}
	defer regWatcher.Stop()

	srcWatcher, err := watch.New(watch.Config{
		Paths:     []string{a.layout.Root},
		Recursive: true,
		Exclude:   WatchExcludes,
	})
	if err != nil {
		return reportError(formatter, WrapExitError(ExitFailure, "watching sources", err))
	}
	defer srcWatcher.Stop()

	events, err := srcWatcher.Start(ctx)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitFailure, "watching sources", err))
	}

	a.logger.Info("watching", "root", a.layout.Root)
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s. Press Ctrl-C to stop.\n", a.layout.Root)
	if opts.Ready != nil {
		opts.Ready()
	}

	for ev := range events {
		switch ev.Op {
		case watch.OpCreate, watch.OpWrite:
			if opts.Live && a.engine.DocumentChanged(ev.Path) {
				continue
			}
			if err := a.engine.DocumentSaved(ctx, ev.Path); err != nil {
				a.logger.Warn("on-save handling failed", "source", a.rel(ev.Path), "error", err)
			}
		case watch.OpRemove, watch.OpRename:
			a.engine.DocumentClosed(ev.Path)
		}
	}

	a.logger.Info("watch stopped")
	return nil
}
