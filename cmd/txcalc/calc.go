package main

import (
	"github.com/spf13/cobra"
)

func newCalcCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "calc",
		Short: "Recalculate a document and print it",
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
			doc.Renumber()
			out, err := calc.Recalculate(doc, dt.Policy())
			if err != nil {
				return err
			}
			return writeDocument(cmd.OutOrStdout(), opts.output, out)
		},
	}
}
