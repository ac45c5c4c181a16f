// Package dispatch routes field changes on a transaction document to the
// handlers registered for (document type, field).
//
// Handlers run synchronously on the controller's single writer, in
// registration order. Each handler works on its own copy of the document;
// a handler that fails leaves no trace, while the effects of earlier
// handlers in the same dispatch are kept.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/transaction"
)

// maxDepth bounds nested Trigger calls.
const maxDepth = 8

// Event is a single field change.
type Event struct {
	DocType string
	Field   transaction.Field
	// Row is the 0-based row index for child-table fields.
	Row   int
	Value any
}

// Handler reacts to a field change. It mutates s.Doc in place and may
// schedule remote fetches through s.Fetch.
type Handler func(ctx context.Context, s *Scope) error

type registration struct {
	name    string
	handler Handler
}

// Registry maps (document type, field) to an ordered list of handlers.
// It is built once at startup and read-only afterwards.
type Registry struct {
	handlers map[string]map[transaction.Field][]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]map[transaction.Field][]registration),
	}
}

// On registers a handler for the field on the given document type.
func (r *Registry) On(docType string, field transaction.Field, name string, h Handler) {
	byField, ok := r.handlers[docType]
	if !ok {
		byField = make(map[transaction.Field][]registration)
		r.handlers[docType] = byField
	}
	byField[field] = append(byField[field], registration{name: name, handler: h})
}

// Handlers returns the names of the handlers registered for the field.
func (r *Registry) Handlers(docType string, field transaction.Field) []string {
	regs := r.handlers[docType][field]
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.name
	}
	return names
}

// Fields returns the fields with at least one handler on the document type.
func (r *Registry) Fields(docType string) []transaction.Field {
	fields := make([]transaction.Field, 0, len(r.handlers[docType]))
	for f := range r.handlers[docType] {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Verify checks every registration against the field table and the
// document type capabilities.
func (r *Registry) Verify(types *doctype.Registry) error {
	var errs []error
	for docType, byField := range r.handlers {
		dt, err := types.Get(docType)
		if err != nil {
			errs = append(errs, fmt.Errorf("handlers registered for unknown doctype %q", docType))
			continue
		}
		for field, regs := range byField {
			for _, reg := range regs {
				if err := verifyField(dt, field); err != nil {
					errs = append(errs, fmt.Errorf("%s: handler %s: %w", docType, reg.name, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func verifyField(dt doctype.DocType, field transaction.Field) error {
	if !field.Known() {
		return fmt.Errorf("unknown field %q", field)
	}
	switch field.Table() {
	case transaction.TableItems:
		if !dt.LineItems {
			return fmt.Errorf("field %q needs line items", field)
		}
	case transaction.TableTaxes:
		if !dt.Taxes {
			return fmt.Errorf("field %q needs a taxes table", field)
		}
	case transaction.TablePaymentSchedule:
		if !dt.PaymentSchedule {
			return fmt.Errorf("field %q needs a payment schedule", field)
		}
	}
	return nil
}

// Dispatch runs the handlers registered for s.Event in order.
// Errors of all failing handlers are joined.
func (r *Registry) Dispatch(ctx context.Context, s *Scope) error {
	if s.registry == nil {
		s.registry = r
	}

	var errs []error
	for _, reg := range r.handlers[s.Event.DocType][s.Event.Field] {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		fork := s.fork()
		err := reg.handler(ctx, fork)

		var kept *partialError
		switch {
		case err == nil:
			s.absorb(fork, true)
		case errors.As(err, &kept):
			s.absorb(fork, true)
			errs = append(errs, fmt.Errorf("%s: %w", reg.name, kept.err))
		default:
			s.absorb(fork, false)
			errs = append(errs, fmt.Errorf("%s: %w", reg.name, err))
		}
	}
	return errors.Join(errs...)
}

// Continue applies a fetch continuation to s. Handlers of this registry
// are reachable through Trigger; a failing continuation leaves s.Doc as it was.
func (r *Registry) Continue(ctx context.Context, s *Scope, cont Continuation) error {
	s.registry = r
	fork := s.fork()
	err := cont(ctx, fork)
	var kept *partialError
	switch {
	case err == nil:
		s.absorb(fork, true)
	case errors.As(err, &kept):
		s.absorb(fork, true)
		return kept.err
	default:
		s.absorb(fork, false)
	}
	return err
}

type partialError struct {
	err error
}

func (e *partialError) Error() string { return e.err.Error() }
func (e *partialError) Unwrap() error { return e.err }

// Partial wraps err so that the failing handler's effects are still
// kept. Used when a handler reverts an invalid value and reports it.
func Partial(err error) error {
	if err == nil {
		return nil
	}
	return &partialError{err: err}
}

// tooDeep is returned when Trigger recursion exceeds maxDepth.
func tooDeep(field transaction.Field) error {
	return apperror.NewInternal(fmt.Errorf("trigger depth exceeded at %s", field))
}
