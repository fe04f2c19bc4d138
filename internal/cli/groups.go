package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"frintab/internal/core"
)

func newGroupsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List your groups",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			view := app.Collection()
			defer view.Close()
			if _, err := view.ListMyGroups(cmd.Context()); err != nil {
				return err
			}
			groups := view.Snapshot().Groups

			out := make([]groupOutput, 0, len(groups))
			for _, g := range groups {
				out = append(out, toGroupOutput(g))
			}
			return rootOpts.formatter(cmd).Print(out, func(w io.Writer) {
				if len(groups) == 0 {
					fmt.Fprintln(w, "No groups yet. Create one with `frintab groups create NAME`.")
					return
				}
				for _, g := range groups {
					writeGroupText(w, g)
				}
			})
		},
	}

	cmd.AddCommand(newGroupCreateCommand(rootOpts))
	cmd.AddCommand(newGroupJoinCommand(rootOpts))
	return cmd
}

func newGroupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create a group with you as its only member",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			view := app.Collection()
			defer view.Close()
			g, err := view.CreateGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printGroup(rootOpts, cmd, g)
		},
	}
}

func newGroupJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join CODE",
		Short: "Join a group by its code",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			view := app.Collection()
			defer view.Close()
			g, err := view.JoinGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printGroup(rootOpts, cmd, g)
		},
	}
}

func printGroup(rootOpts *RootOptions, cmd *cobra.Command, g core.Group) error {
	return rootOpts.formatter(cmd).Print(toGroupOutput(g), func(w io.Writer) {
		writeGroupText(w, g)
	})
}
