package transaction

// Policy carries the document type capabilities the calculator needs.
// It is derived from the doctype registry so this package stays free of
// per-doctype knowledge.
type Policy struct {
	// Pricing enables price list, discount and margin rules on lines.
	Pricing bool
	// Taxable enables the charges table.
	Taxable bool
	// PaymentSchedule enables payment schedule amounts.
	PaymentSchedule bool
	// AllowReturns permits negative quantities on return documents.
	AllowReturns bool
	// Buying marks purchase-side documents.
	Buying bool
}

// FullPolicy enables every capability. Useful for documents with an
// unknown type and in tests.
func FullPolicy() Policy {
	return Policy{Pricing: true, Taxable: true, PaymentSchedule: true, AllowReturns: true}
}
