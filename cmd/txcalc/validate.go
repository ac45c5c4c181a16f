package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"txcalc/internal/domain/transaction"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that a document recalculates and can be submitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := readDocument(cmd.InOrStdin(), opts.file)
			if err != nil {
				return err
			}
			calc, dt, err := engine(doc)
			if err != nil {
				return err
			}
			out, err := calc.Recalculate(doc, dt.Policy())
			if err != nil {
				return err
			}
			if dt.PaymentSchedule {
				if err := transaction.ValidatePaymentSchedule(out); err != nil {
					return err
				}
			}
			if !out.GrandTotal.Equal(doc.GrandTotal) && !doc.GrandTotal.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: grand_total is %s, file says %s\n",
					out.GrandTotal.String(), doc.GrandTotal.String())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok (grand total %s %s)\n",
				out.DocType, out.Name, out.GrandTotal.StringFixed(calc.Precision().Amount), out.Currency)
			return nil
		},
	}
}
