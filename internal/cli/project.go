package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/whylson/internal/registry"
)

// ProjectInfo is the JSON payload of init and reset.
type ProjectInfo struct {
	Root      string `json:"root"`
	Registry  string `json:"registry"`
	Artifacts string `json:"artifacts"`
	Entries   int    `json:"entries"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .whylson layout in the project",
		Long: `Create .whylson/contracts.json and .whylson/bin-contracts if missing.
An existing registry is loaded and left unchanged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := openApp(commandContext(cmd), rootOpts, cmd)
			if err != nil {
				return reportError(formatter, err)
			}
			defer a.Close()

			info := ProjectInfo{
				Root:      a.layout.Root,
				Registry:  a.rel(a.layout.RegistryPath()),
				Artifacts: a.rel(a.layout.ArtifactDir()),
				Entries:   len(a.registry.Entries()),
			}
			if formatter.JSON() {
				return formatter.Success(info)
			}
			return formatter.Success(fmt.Sprintf("Initialized %s (%d contract(s))", a.rel(a.layout.Dir()), info.Entries))
		},
	}

	return cmd
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the registry and every compiled artifact",
		Long: `Overwrite .whylson/contracts.json with an empty list and recreate
.whylson/bin-contracts empty. Sources are not touched.`,
		Args:          cobra.NoArgs,
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

			if err := a.engine.ResetFolder(ctx); err != nil {
				return reportError(formatter, err)
			}
			if formatter.JSON() {
				return formatter.Success(ProjectInfo{
					Root:      a.layout.Root,
					Registry:  a.rel(a.layout.RegistryPath()),
					Artifacts: a.rel(a.layout.ArtifactDir()),
				})
			}
			return nil
		},
	}

	return cmd
}

// ListItem is one registry entry with project-relative paths.
type ListItem struct {
	Title      string   `json:"title"`
	Source     string   `json:"source"`
	OnPath     string   `json:"onPath"`
	Entrypoint string   `json:"entrypoint"`
	Flags      []string `json:"flags"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered contracts",
		Long: `List the entries of .whylson/contracts.json in registration order.
Nothing is created or compiled.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}

	return cmd
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	layout, _, err := loadLayout(opts)
	if err != nil {
		return reportError(formatter, err)
	}

	store := registry.New(layout.RegistryPath(), registry.WithLogger(newLogger(opts, cmd.ErrOrStderr())))
	entries, err := store.Load()
	if err != nil {
		return reportError(formatter, err)
	}

	items := make([]ListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, ListItem{
			Title:      e.Title,
			Source:     relTo(layout, e.Source),
			OnPath:     relTo(layout, e.OnPath),
			Entrypoint: e.Entrypoint,
			Flags:      append([]string{}, e.Flags...),
		})
	}

	if formatter.JSON() {
		return formatter.Success(items)
	}

	if len(items) == 0 {
		return formatter.Success("No contracts registered.")
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tSOURCE\tENTRYPOINT\tARTIFACT\tFLAGS")
	for _, item := range items {
		flags := "-"
		if len(item.Flags) > 0 {
			flags = strings.Join(item.Flags, " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.Title, item.Source, item.Entrypoint, item.OnPath, flags)
	}
	return tw.Flush()
}
