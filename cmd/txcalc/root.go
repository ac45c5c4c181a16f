package main

import (
	"github.com/spf13/cobra"

	"txcalc/internal/app"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/transaction"
)

// options are the flags shared by every subcommand.
type options struct {
	file   string
	output string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "txcalc",
		Short: "Recalculate and validate ERP transaction documents",
		Long: `txcalc runs the transaction engine on a document file: line values,
charges, totals, discounts, rounding and the payment schedule.

Documents use the ERP field names (items, taxes, payment_schedule) and may
be YAML or JSON. Rounding precision is read from the same environment
variables as the server (AMOUNT_PRECISION, ROUNDING_FRACTION, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "-", "document file, - for stdin")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")

	root.AddCommand(newCalcCmd(opts), newValidateCmd(opts), newDocTypesCmd())
	return root
}

// engine builds the calculator from the environment and resolves the
// document type of doc.
func engine(doc *transaction.Document) (*transaction.Calculator, doctype.DocType, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, doctype.DocType{}, err
	}
	dt, err := doctype.Standard().Get(doc.DocType)
	if err != nil {
		return nil, doctype.DocType{}, err
	}
	return transaction.NewCalculator(cfg.Precision()), dt, nil
}
