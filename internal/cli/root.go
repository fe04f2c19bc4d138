package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"frintab/internal/notify"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string

	factory AppFactory
}

// AppFactory builds the App for one command run. release is called when
// the command finishes.
type AppFactory func(cmd *cobra.Command, opts *RootOptions) (app *App, release func(), err error)

// NewRootCommand creates the frintab command tree wired from the
// environment.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultAppFactory)
}

func newRootCommand(factory AppFactory) *cobra.Command {
	opts := &RootOptions{factory: factory}

	cmd := &cobra.Command{
		Use:   "frintab",
		Short: "frintab - shared savings ledger",
		Long: `frintab keeps a shared savings ledger for couples and small groups.

Create or join a group, record income and expenses, page through the
history and export it to a spreadsheet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json|yaml)")

	cmd.AddCommand(newRegisterCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newWhoamiCommand(opts))
	cmd.AddCommand(newGroupsCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	cmd.AddCommand(newRecordCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func (o *RootOptions) open(cmd *cobra.Command) (*App, func(), error) {
	return o.factory(cmd, o)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func defaultAppFactory(cmd *cobra.Command, opts *RootOptions) (*App, func(), error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitUsage, "invalid configuration", err)
	}
	logger := SetupLogger(cfg, cmd.ErrOrStderr(), opts.Verbose)

	app, err := NewApp(cmd.Context(), AppOptions{
		Config:   cfg,
		Logger:   logger,
		Notifier: notify.NewWriter(cmd.ErrOrStderr()),
	})
	if err != nil {
		return nil, nil, err
	}
	return app, app.Close, nil
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return WrapExitError(ExitUsage, cmd.UseLine(), err)
		}
		return nil
	}
}
