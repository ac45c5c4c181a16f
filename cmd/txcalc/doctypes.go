package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"txcalc/internal/domain/doctype"
)

func newDocTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctypes",
		Short: "List the supported document types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIDE\tPREFIX\tCAPABILITIES")
			for _, dt := range doctype.Standard().List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", dt.Name, dt.Side, dt.Prefix, capabilities(dt.Capabilities))
			}
			return w.Flush()
		},
	}
}

func capabilities(c doctype.Capabilities) string {
	var caps []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{c.LineItems, "items"},
		{c.Pricing, "pricing"},
		{c.Taxes, "taxes"},
		{c.PaymentSchedule, "payment_schedule"},
		{c.Returns, "returns"},
	} {
		if f.on {
			caps = append(caps, f.name)
		}
	}
	return strings.Join(caps, ",")
}
