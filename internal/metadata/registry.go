// Package metadata describes document types and their fields for clients
// that render transaction forms.
package metadata

import (
	"sort"

	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/transaction"
)

// FieldType is the data type of a field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeReference FieldType = "reference"
	TypeJSON      FieldType = "json"
)

// EntityDef describes one document type.
type EntityDef struct {
	Name         string               `json:"name"`
	Side         doctype.Side         `json:"side"`
	Prefix       string               `json:"prefix"`
	Capabilities doctype.Capabilities `json:"capabilities"`
	// Mappings lists the document types a submitted document maps into.
	Mappings   []string       `json:"mappings,omitempty"`
	Fields     []FieldDef     `json:"fields"`
	TableParts []TablePartDef `json:"tableParts,omitempty"`
}

// TablePartDef describes a child table.
type TablePartDef struct {
	Name    string     `json:"name"`
	Label   string     `json:"label,omitempty"`
	Columns []FieldDef `json:"columns"`
}

// FieldDef describes a field.
type FieldDef struct {
	Name  string    `json:"name"`
	Label string    `json:"label,omitempty"`
	Type  FieldType `json:"type"`
	// ReadOnly fields are computed and cannot be edited.
	ReadOnly      bool `json:"readOnly,omitempty"`
	AllowOnSubmit bool `json:"allowOnSubmit,omitempty"`
}

// Registry stores entity definitions.
type Registry struct {
	entities map[string]EntityDef
}

// NewRegistry builds definitions for every registered document type.
// Tables a type has no capability for are left out.
func NewRegistry(types *doctype.Registry) *Registry {
	fields, parts := inspect(transaction.Document{})

	r := &Registry{entities: make(map[string]EntityDef)}
	for _, dt := range types.List() {
		def := EntityDef{
			Name:         dt.Name,
			Side:         dt.Side,
			Prefix:       dt.Prefix,
			Capabilities: dt.Capabilities,
			Fields:       fields,
		}
		for target := range dt.Mappings {
			def.Mappings = append(def.Mappings, target)
		}
		sort.Strings(def.Mappings)

		for _, p := range parts {
			if hasTable(dt, transaction.Table(p.Name)) {
				def.TableParts = append(def.TableParts, p)
			}
		}
		r.entities[def.Name] = def
	}
	return r
}

func hasTable(dt doctype.DocType, table transaction.Table) bool {
	switch table {
	case transaction.TableItems:
		return dt.LineItems
	case transaction.TableTaxes:
		return dt.Taxes
	case transaction.TablePaymentSchedule:
		return dt.PaymentSchedule
	}
	return false
}

// Get returns the definition of a document type.
func (r *Registry) Get(name string) (EntityDef, bool) {
	d, ok := r.entities[name]
	return d, ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []EntityDef {
	list := make([]EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		list = append(list, def)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
