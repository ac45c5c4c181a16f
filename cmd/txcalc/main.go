// Command txcalc recalculates and validates transaction documents stored
// as YAML or JSON files.
//
// Usage:
//
//	txcalc calc -f invoice.yaml -o json
//	txcalc validate -f invoice.yaml
//	txcalc doctypes
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
