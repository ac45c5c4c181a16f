// Package domain provides the storage contracts and lifecycle hooks shared
// by the session layer and the storage adapters.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/entity"
	"txcalc/internal/domain/transaction"
)

// --- Filter & Pagination ---

// ListFilter contains filtering options for document lists.
type ListFilter struct {
	// DocType limits the list to one document type
	DocType string

	// Company limits the list to one company
	Company string

	// DocStatus filters by lifecycle state when set
	DocStatus *entity.DocStatus

	// Search matches document name or party
	Search string

	// OrderBy specifies sorting (e.g., "name", "-modified")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-modified",
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// DocumentSummary is the list view of a stored document.
type DocumentSummary struct {
	Name       string           `json:"name"`
	DocType    string           `json:"doctype"`
	DocStatus  entity.DocStatus `json:"docstatus"`
	Company    string           `json:"company,omitempty"`
	Party      string           `json:"party,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	GrandTotal decimal.Decimal  `json:"grand_total"`
	Modified   time.Time        `json:"modified"`
}

// Summarize builds the list view of a document.
func Summarize(doc *transaction.Document, modified time.Time) DocumentSummary {
	party := doc.Customer
	if party == "" {
		party = doc.Supplier
	}
	return DocumentSummary{
		Name:       doc.Name,
		DocType:    doc.DocType,
		DocStatus:  doc.DocStatus,
		Company:    doc.Company,
		Party:      party,
		Currency:   doc.Currency,
		GrandTotal: doc.GrandTotal,
		Modified:   modified,
	}
}

// --- Repository Interfaces ---

// DocumentRepository persists transaction documents.
type DocumentRepository interface {
	// Insert stores a new document under its (already assigned) name
	Insert(ctx context.Context, doc *transaction.Document) error

	// Update replaces a stored document
	Update(ctx context.Context, doc *transaction.Document) error

	// Get retrieves a document by type and name
	Get(ctx context.Context, docType, name string) (*transaction.Document, error)

	// List retrieves document summaries with filtering and pagination
	List(ctx context.Context, filter ListFilter) (ListResult[DocumentSummary], error)
}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeSave   HookEvent = "before_save"
	AfterSave    HookEvent = "after_save"
	BeforeSubmit HookEvent = "before_submit"
	AfterSubmit  HookEvent = "after_submit"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
// A nil registry runs nothing.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	if r == nil {
		return nil
	}
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// OnBeforeSave registers a hook to run before a document is stored.
func (r *HookRegistry[T]) OnBeforeSave(hook Hook[T]) {
	r.On(BeforeSave, hook)
}

// OnAfterSave registers a hook to run after a document is stored.
func (r *HookRegistry[T]) OnAfterSave(hook Hook[T]) {
	r.On(AfterSave, hook)
}

// OnBeforeSubmit registers a hook to run before a document is submitted.
func (r *HookRegistry[T]) OnBeforeSubmit(hook Hook[T]) {
	r.On(BeforeSubmit, hook)
}

// OnAfterSubmit registers a hook to run after a document is submitted.
func (r *HookRegistry[T]) OnAfterSubmit(hook Hook[T]) {
	r.On(AfterSubmit, hook)
}

// DocumentHooks is the hook registry used for transaction documents.
type DocumentHooks = HookRegistry[*transaction.Document]

// NewDocumentHooks creates an empty document hook registry.
func NewDocumentHooks() *DocumentHooks {
	return NewHookRegistry[*transaction.Document]()
}
