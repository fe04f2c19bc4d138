package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	applog "frintab/internal/log"
	"frintab/internal/views/ledger"
)

type exportOutput struct {
	GroupID      string `json:"groupId" yaml:"groupId"`
	Sheet        string `json:"sheet" yaml:"sheet"`
	Rows         int    `json:"rows" yaml:"rows"`
	UpdatedRange string `json:"updatedRange" yaml:"updatedRange"`
}

func newExportCommand(rootOpts *RootOptions) *cobra.Command {
	var sheet string
	cmd := &cobra.Command{
		Use:   "export GROUP_ID",
		Short: "Append a group's full history to the configured spreadsheet",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			if !app.Config.ExportEnabled() {
				return NewExitError(ExitUsage, "export needs GOOGLE_SPREADSHEET_ID")
			}
			if _, err := app.Session.RequireUser(applog.OpExport); err != nil {
				return err
			}

			exporter, err := app.Exporter(cmd.Context(), sheet)
			if err != nil {
				return WrapExitError(ExitUsage, "configure export", err)
			}
			group, txs, err := ledger.CollectAll(cmd.Context(), app.Reader, args[0], app.Config.PageSize)
			if err != nil {
				return err
			}
			updated, err := exporter.Export(cmd.Context(), group, txs)
			if err != nil {
				return err
			}

			out := exportOutput{
				GroupID:      group.ID,
				Sheet:        exporter.SheetFor(group),
				Rows:         len(txs),
				UpdatedRange: updated,
			}
			return rootOpts.formatter(cmd).Print(out, func(w io.Writer) {
				fmt.Fprintf(w, "Exported %d transactions of %s to %s\n", len(txs), group.Name, updated)
			})
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet tab (default $GOOGLE_SHEET_NAME or the group name)")
	return cmd
}
