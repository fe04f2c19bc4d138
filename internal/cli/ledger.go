package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"frintab/internal/core"
	"frintab/internal/format"
	"frintab/internal/views/ledger"
)

func newLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "ledger GROUP_ID",
		Short: "Show a group's balance and one page of its history",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid page %d: must be at least 1", page))
			}
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			view := app.LedgerView(args[0])
			defer view.Close()
			if err := view.Open(cmd.Context()); err != nil {
				return err
			}
			if page > 1 {
				if err := view.GoToPage(cmd.Context(), page); err != nil {
					return err
				}
			}
			return printLedger(rootOpts, cmd, view.Snapshot())
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	return cmd
}

func printLedger(rootOpts *RootOptions, cmd *cobra.Command, st ledger.State) error {
	group := st.Group
	group.TotalBalance = st.TotalBalance

	out := ledgerOutput{
		Group:             toGroupOutput(group),
		Page:              st.Window.Page,
		TotalPages:        st.Window.TotalPages,
		TotalTransactions: st.Window.TotalTransactions,
		Transactions:      make([]transactionOutput, 0, len(st.Transactions)),
	}
	for _, tx := range st.Transactions {
		out.Transactions = append(out.Transactions, toTransactionOutput(tx))
	}

	return rootOpts.formatter(cmd).Print(out, func(w io.Writer) {
		writeGroupText(w, group)
		if len(st.Transactions) == 0 {
			fmt.Fprintln(w, "  no transactions")
			return
		}
		for _, tx := range st.Transactions {
			writeTransactionText(w, tx)
		}
		fmt.Fprintf(w, "  page %d of %d (%d transactions)\n",
			st.Window.Page, st.Window.TotalPages, st.Window.TotalTransactions)
	})
}

func newRecordCommand(rootOpts *RootOptions) *cobra.Command {
	var form struct {
		Amount string
		Type   string
		Note   string
	}
	cmd := &cobra.Command{
		Use:   "record GROUP_ID",
		Short: "Record an income or expense",
		Example: `  frintab record 3f9c... --amount 150000 --type income --note Gaji
  frintab record 3f9c... --amount 20000 --type expense`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			view := app.LedgerView(args[0])
			defer view.Close()

			// An unknown type is passed through so the view rejects it
			// with its own validation error.
			txType, perr := core.ParseTransactionType(form.Type)
			if perr != nil {
				txType = core.TransactionType(form.Type)
			}
			view.OpenDialog()
			tx, err := view.RecordTransaction(cmd.Context(), ledger.Form{
				Amount: form.Amount,
				Type:   txType,
				Note:   form.Note,
			})
			if err != nil {
				return err
			}

			st := view.Snapshot()
			return rootOpts.formatter(cmd).Print(toTransactionOutput(tx), func(w io.Writer) {
				fmt.Fprintf(w, "Recorded %s %s\n", format.Signed(tx), tx.Note)
				fmt.Fprintf(w, "Balance: %s\n", format.Money(st.TotalBalance))
			})
		},
	}
	cmd.Flags().StringVar(&form.Amount, "amount", "", "amount, e.g. 150000 or 1500.50")
	cmd.Flags().StringVar(&form.Type, "type", string(core.Expense), "INCOME or EXPENSE")
	cmd.Flags().StringVar(&form.Note, "note", "", "optional note")
	return cmd
}
