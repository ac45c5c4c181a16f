// Package doctype declares transaction document types as compositions of
// capabilities rather than a controller hierarchy.
package doctype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain/transaction"
)

// Side is the business side a document type belongs to.
type Side string

const (
	Selling Side = "selling"
	Buying  Side = "buying"
	Stock   Side = "stock"
)

// Capabilities lists the behaviour modules a document type is composed of.
type Capabilities struct {
	// LineItems: the document has an items table.
	LineItems bool `json:"line_items"`
	// Pricing: price lists, discounts and margins apply to lines.
	Pricing bool `json:"pricing"`
	// Taxes: the document carries a charges table.
	Taxes bool `json:"taxes"`
	// PaymentSchedule: payable amounts are split into payment terms.
	PaymentSchedule bool `json:"payment_schedule"`
	// Returns: return documents with negative quantities are allowed.
	Returns bool `json:"returns"`
}

// DocType describes one transaction document type.
type DocType struct {
	Name string `json:"name" validate:"required"`
	Side Side   `json:"side" validate:"required,oneof=selling buying stock"`
	// Prefix is the naming series prefix (SINV-2026-00001).
	Prefix string `json:"prefix" validate:"required,uppercase,max=10"`
	// TaxTemplate is the master doctype of charge templates.
	TaxTemplate string `json:"tax_template,omitempty"`

	Capabilities `json:"capabilities"`

	// Mappings maps a target document type to the server method that
	// builds a draft of it from a submitted document of this type.
	Mappings map[string]string `json:"mappings,omitempty"`
}

// Policy derives the calculator policy from the capabilities.
func (d DocType) Policy() transaction.Policy {
	return transaction.Policy{
		Pricing:         d.Pricing,
		Taxable:         d.Taxes,
		PaymentSchedule: d.PaymentSchedule,
		AllowReturns:    d.Returns,
		Buying:          d.Side == Buying,
	}
}

// IsBuying reports whether the type is on the purchase side.
func (d DocType) IsBuying() bool {
	return d.Side == Buying
}

// PriceListField returns the header field holding the price list.
func (d DocType) PriceListField() transaction.Field {
	if d.IsBuying() {
		return transaction.FieldBuyingPriceList
	}
	return transaction.FieldSellingPriceList
}

// PartyField returns the header field holding the counterparty.
func (d DocType) PartyField() transaction.Field {
	if d.IsBuying() {
		return transaction.FieldSupplier
	}
	return transaction.FieldCustomer
}

// Registry holds the known document types.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]DocType
	validate *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]DocType),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register adds a document type after validating its definition.
func (r *Registry) Register(d DocType) error {
	if err := r.validate.Struct(d); err != nil {
		return apperror.NewValidation(fmt.Sprintf("invalid doctype %q: %v", d.Name, err)).WithCause(err)
	}
	if d.Pricing && !d.LineItems {
		return apperror.NewValidation(fmt.Sprintf("doctype %q: pricing needs line items", d.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[d.Name]; exists {
		return apperror.NewConflict(fmt.Sprintf("doctype %q already registered", d.Name))
	}
	r.types[d.Name] = d
	return nil
}

// MustRegister registers d and panics on an invalid definition.
func (r *Registry) MustRegister(d DocType) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the document type by name.
func (r *Registry) Get(name string) (DocType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	if !ok {
		return DocType{}, apperror.NewNotFound("DocType", name)
	}
	return d, nil
}

// Has reports whether the document type is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns all document types sorted by name.
func (r *Registry) List() []DocType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DocType, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Mapping returns the server method mapping source into target.
func (r *Registry) Mapping(source, target string) (string, error) {
	d, err := r.Get(source)
	if err != nil {
		return "", err
	}
	method, ok := d.Mappings[target]
	if !ok {
		return "", apperror.NewBusinessRule(apperror.CodeBusinessRule,
			fmt.Sprintf("%s cannot be mapped to %s", source, target)).
			WithDetail("source", source).
			WithDetail("target", target)
	}
	return method, nil
}
