// Package entity provides base types shared by transaction documents.
package entity

import (
	"strings"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/id"
)

// DocStatus is the framework lifecycle state of a document.
type DocStatus int

const (
	// Draft documents are mutable.
	Draft DocStatus = 0
	// Submitted documents are frozen except for whitelisted fields.
	Submitted DocStatus = 1
	// Cancelled documents are frozen.
	Cancelled DocStatus = 2
)

// String returns the framework label of the status.
func (s DocStatus) String() string {
	switch s {
	case Submitted:
		return "Submitted"
	case Cancelled:
		return "Cancelled"
	default:
		return "Draft"
	}
}

// newPrefix marks names given to unsaved documents.
const newPrefix = "new-"

// Document is the base type for transaction documents.
// Name is assigned on first save; until then the document carries a
// temporary "new-" name.
type Document struct {
	// Name is the document number (e.g. SINV-2026-00001)
	Name string `json:"name,omitempty"`

	// DocType is the document type name (e.g. "Sales Invoice")
	DocType string `json:"doctype"`

	// DocStatus is 0 (draft), 1 (submitted) or 2 (cancelled)
	DocStatus DocStatus `json:"docstatus"`

	// Company owning the document
	Company string `json:"company,omitempty"`
}

// NewDocument creates a draft document with a temporary name.
func NewDocument(docType, company string) Document {
	return Document{
		Name:    TemporaryName(docType),
		DocType: docType,
		Company: company,
	}
}

// TemporaryName builds the framework-style name of an unsaved document.
func TemporaryName(docType string) string {
	slug := strings.ToLower(strings.ReplaceAll(docType, " ", "-"))
	return newPrefix + slug + "-" + id.New().String()[:8]
}

// IsNew reports whether the document has not been saved yet.
func (d *Document) IsNew() bool {
	return d.Name == "" || strings.HasPrefix(d.Name, newPrefix)
}

// IsSubmitted reports whether the document left the draft state.
func (d *Document) IsSubmitted() bool {
	return d.DocStatus != Draft
}

// CanModify checks if the document can still be recalculated.
func (d *Document) CanModify() error {
	if d.IsSubmitted() {
		return apperror.NewDocumentSubmitted(d.Name).
			WithDetail("docstatus", d.DocStatus.String())
	}
	return nil
}

// MarkSubmitted moves a draft to the submitted state.
func (d *Document) MarkSubmitted() error {
	if err := d.CanModify(); err != nil {
		return err
	}
	d.DocStatus = Submitted
	return nil
}

// MarkCancelled moves a submitted document to the cancelled state.
func (d *Document) MarkCancelled() error {
	if d.DocStatus != Submitted {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"Only submitted documents can be cancelled.").
			WithDetail("document", d.Name)
	}
	d.DocStatus = Cancelled
	return nil
}
