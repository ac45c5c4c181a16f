// Package memory provides a process-local document store for the CLI,
// development servers and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
)

type record struct {
	doc      *transaction.Document
	modified time.Time
}

// Store keeps documents in a map keyed by doctype and name.
type Store struct {
	mu   sync.RWMutex
	docs map[string]record
	now  func() time.Time
}

// Compile-time check that Store implements domain.DocumentRepository.
var _ domain.DocumentRepository = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		docs: make(map[string]record),
		now:  time.Now,
	}
}

func key(docType, name string) string {
	return docType + "/" + name
}

// Insert implements domain.DocumentRepository.
func (s *Store) Insert(_ context.Context, doc *transaction.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(doc.DocType, doc.Name)
	if _, ok := s.docs[k]; ok {
		return apperror.NewConflict(fmt.Sprintf("%s %s already exists", doc.DocType, doc.Name)).
			WithDetail("name", doc.Name)
	}
	s.docs[k] = record{doc: doc.Clone(), modified: s.now()}
	return nil
}

// Update implements domain.DocumentRepository.
func (s *Store) Update(_ context.Context, doc *transaction.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(doc.DocType, doc.Name)
	if _, ok := s.docs[k]; !ok {
		return apperror.NewNotFound(doc.DocType, doc.Name)
	}
	s.docs[k] = record{doc: doc.Clone(), modified: s.now()}
	return nil
}

// Get implements domain.DocumentRepository.
func (s *Store) Get(_ context.Context, docType, name string) (*transaction.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.docs[key(docType, name)]
	if !ok {
		return nil, apperror.NewNotFound(docType, name)
	}
	return r.doc.Clone(), nil
}

// List implements domain.DocumentRepository.
func (s *Store) List(_ context.Context, f domain.ListFilter) (domain.ListResult[domain.DocumentSummary], error) {
	s.mu.RLock()
	items := make([]domain.DocumentSummary, 0, len(s.docs))
	for _, r := range s.docs {
		if matches(r.doc, f) {
			items = append(items, domain.Summarize(r.doc, r.modified))
		}
	}
	s.mu.RUnlock()

	sortSummaries(items, f.OrderBy)

	total := len(items)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return domain.ListResult[domain.DocumentSummary]{
		Items:      items[start:end],
		TotalCount: int64(total),
		Limit:      f.Limit,
		Offset:     f.Offset,
	}, nil
}

func matches(doc *transaction.Document, f domain.ListFilter) bool {
	if f.DocType != "" && doc.DocType != f.DocType {
		return false
	}
	if f.Company != "" && doc.Company != f.Company {
		return false
	}
	if f.DocStatus != nil && doc.DocStatus != *f.DocStatus {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(doc.Name), q) ||
			strings.Contains(strings.ToLower(doc.Customer), q) ||
			strings.Contains(strings.ToLower(doc.Supplier), q)
	}
	return true
}

func sortSummaries(items []domain.DocumentSummary, orderBy string) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")

	less := func(a, b domain.DocumentSummary) bool {
		switch field {
		case "grand_total":
			return a.GrandTotal.LessThan(b.GrandTotal)
		case "modified":
			return a.Modified.Before(b.Modified)
		default:
			return a.Name < b.Name
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}
