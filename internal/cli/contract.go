package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/whylson/internal/contract"
	"github.com/roach88/whylson/internal/host"
	"github.com/roach88/whylson/internal/view"
)

// ContractOptions holds flags for commands acting on one Source.
type ContractOptions struct {
	*RootOptions
	Entrypoint string
	Flags      []string
}

// ContractResult is the JSON payload of view and save.
type ContractResult struct {
	Source     string   `json:"source"`
	Artifact   string   `json:"artifact"`
	Entrypoint string   `json:"entrypoint"`
	Flags      []string `json:"flags"`
	Content    string   `json:"content,omitempty"`
}

func addRegistrationFlags(cmd *cobra.Command, opts *ContractOptions) {
	cmd.Flags().StringVarP(&opts.Entrypoint, "entrypoint", "e", "", "entrypoint used when the source is not registered yet")
	cmd.Flags().StringArrayVar(&opts.Flags, "flag", nil, "extra compiler flag for a new registration (repeatable)")
}

// hostOptions answers the entrypoint prompt from flags when given and keeps
// previews out of JSON output.
func (o *ContractOptions) hostOptions(cmd *cobra.Command) ([]host.Option, error) {
	var opts []host.Option
	if o.Entrypoint != "" {
		if !contract.ValidEntrypoint(o.Entrypoint) {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("invalid entrypoint %q: must be an identifier", o.Entrypoint))
		}
		opts = append(opts, host.WithRegistration(contract.Registration{
			Entrypoint: o.Entrypoint,
			Flags:      o.Flags,
		}))
	} else if len(o.Flags) > 0 {
		return nil, NewExitError(ExitCommandError, "--flag requires --entrypoint")
	}
	if o.Format == "json" {
		opts = append(opts, host.WithOutput(io.Discard, cmd.ErrOrStderr()))
	}
	return opts, nil
}

// NewViewCommand creates the view command.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "view <source>",
		Short: "Show the compiled Michelson artifact of a contract",
		Long: `Show the compiled artifact of a LIGO source.

An unregistered source is registered first: the entrypoint is asked for on
the terminal or taken from --entrypoint, the source is compiled to
.whylson/bin-contracts and the entry is kept only if that succeeds.

Example:
  whylson view src/counter.mligo
  whylson view --entrypoint main --flag --protocol --flag oxford src/counter.mligo`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(opts, args[0], cmd)
		},
	}
	addRegistrationFlags(cmd, opts)

	return cmd
}

func runView(opts *ContractOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	hostOpts, err := opts.hostOptions(cmd)
	if err != nil {
		return reportError(formatter, err)
	}

	a, err := openApp(ctx, opts.RootOptions, cmd, hostOpts...)
	if err != nil {
		return reportError(formatter, err)
	}
	defer a.Close()

	source = a.layout.Resolve(source)
	formatter.VerboseLog("Opening artifact view for %s", a.rel(source))

	if err := a.engine.OpenArtifactView(ctx, source); err != nil {
		return reportError(formatter, err)
	}

	if !formatter.JSON() {
		return nil
	}
	entry, _ := a.registry.Find(source)
	return formatter.Success(ContractResult{
		Source:     a.rel(entry.Source),
		Artifact:   a.rel(entry.OnPath),
		Entrypoint: entry.Entrypoint,
		Flags:      append([]string{}, entry.Flags...),
		Content:    a.views.ProvideContent(view.URIFor(entry.OnPath)),
	})
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <source>",
		Short: "Compile a contract to its .tz artifact",
		Long: `Compile a LIGO source to .whylson/bin-contracts/<name>.tz.

Unregistered sources are registered first, as with view.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], cmd)
		},
	}
	addRegistrationFlags(cmd, opts)

	return cmd
}

func runSave(opts *ContractOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	hostOpts, err := opts.hostOptions(cmd)
	if err != nil {
		return reportError(formatter, err)
	}

	a, err := openApp(ctx, opts.RootOptions, cmd, hostOpts...)
	if err != nil {
		return reportError(formatter, err)
	}
	defer a.Close()

	source = a.layout.Resolve(source)
	if err := a.engine.SaveContract(ctx, source); err != nil {
		return reportError(formatter, err)
	}

	entry, _ := a.registry.Find(source)
	if formatter.JSON() {
		return formatter.Success(ContractResult{
			Source:     a.rel(entry.Source),
			Artifact:   a.rel(entry.OnPath),
			Entrypoint: entry.Entrypoint,
			Flags:      append([]string{}, entry.Flags...),
		})
	}
	return formatter.Success(a.rel(entry.OnPath))
}

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "session <source>",
		Short:         "Start a verification session (reserved)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, rootOpts, cmd)
			if err != nil {
				return reportError(formatter, err)
			}
			defer a.Close()

			if err := a.engine.StartSession(ctx, a.layout.Resolve(args[0])); err != nil {
				return reportError(formatter, err)
			}
			return nil
		},
	}

	return cmd
}

// NewEraseCommand creates the erase command.
func NewEraseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erase <source>",
		Short: "Remove a contract's registry entry and artifact",
		Long: `Remove the registry entry of a LIGO source and delete its .tz artifact.

Both steps are attempted even if one fails. The next view registers the
source again.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, rootOpts, cmd)
			if err != nil {
				return reportError(formatter, err)
			}
			defer a.Close()

			source := a.layout.Resolve(args[0])
			if err := a.engine.EraseContract(ctx, source); err != nil {
				return reportError(formatter, err)
			}
			if formatter.JSON() {
				return formatter.Success(map[string]string{"erased": a.rel(source)})
			}
			return nil
		},
	}

	return cmd
}
