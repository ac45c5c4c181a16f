package dispatch

import (
	"context"

	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/transaction"
)

// Fetch is a remote call scheduled by a handler. The controller runs Call
// outside the document lock and applies the returned continuation later,
// on a fresh scope, unless a newer fetch with the same Key superseded it.
type Fetch struct {
	// Key identifies the in-flight slot, see Key.
	Key string
	// Method is the remote procedure, for logs and messages.
	Method string
	// Field and RowName locate the row the result belongs to. RowName is
	// empty for header fetches.
	Field   transaction.Field
	RowName string
	// Optional fetches fail open: errors are logged, not shown to the user.
	Optional bool
	// Call performs the remote request.
	Call func(ctx context.Context) (Continuation, error)
}

// Continuation merges a fetch result into the document.
type Continuation func(ctx context.Context, s *Scope) error

// Key builds the in-flight key of a fetch for the field on the row.
func Key(field transaction.Field, rowName string) string {
	if rowName == "" {
		return string(field)
	}
	return string(field) + "#" + rowName
}

// Scope is what a handler sees: the working copy of the document, the
// triggering event and the document type it belongs to.
type Scope struct {
	Doc   *transaction.Document
	Event Event
	Type  doctype.DocType
	Calc  *transaction.Calculator

	registry *Registry
	depth    int
	fetches  []Fetch
	messages []string
}

// NewScope creates the scope of one dispatch.
func NewScope(doc *transaction.Document, ev Event, dt doctype.DocType, calc *transaction.Calculator) *Scope {
	return &Scope{
		Doc:   doc,
		Event: ev,
		Type:  dt,
		Calc:  calc,
	}
}

// Policy returns the calculator policy of the document type.
func (s *Scope) Policy() transaction.Policy {
	return s.Type.Policy()
}

// Line returns the items row of the event.
func (s *Scope) Line() (*transaction.Line, error) {
	return s.Doc.LineAt(s.Event.Row)
}

// Charge returns the taxes row of the event.
func (s *Scope) Charge() (*transaction.Charge, error) {
	return s.Doc.ChargeAt(s.Event.Row)
}

// Fetch schedules a remote call.
func (s *Scope) Fetch(f Fetch) {
	if f.Key == "" {
		f.Key = Key(f.Field, f.RowName)
	}
	s.fetches = append(s.fetches, f)
}

// Message records a user-facing message.
func (s *Scope) Message(msg string) {
	s.messages = append(s.messages, msg)
}

// Fetches returns the fetches scheduled so far.
func (s *Scope) Fetches() []Fetch {
	return s.fetches
}

// Messages returns the messages recorded so far.
func (s *Scope) Messages() []string {
	return s.messages
}

// Trigger runs the handlers of another field on the same row, as if that
// field had been changed.
func (s *Scope) Trigger(ctx context.Context, field transaction.Field) error {
	if s.registry == nil {
		return nil
	}
	if s.depth >= maxDepth {
		return tooDeep(field)
	}

	prev := s.Event.Field
	s.Event.Field = field
	s.depth++
	err := s.registry.Dispatch(ctx, s)
	s.depth--
	s.Event.Field = prev
	return err
}

func (s *Scope) fork() *Scope {
	return &Scope{
		Doc:      s.Doc.Clone(),
		Event:    s.Event,
		Type:     s.Type,
		Calc:     s.Calc,
		registry: s.registry,
		depth:    s.depth,
	}
}

// absorb takes over the fork's messages and, when commit is set, its
// document and fetches.
func (s *Scope) absorb(f *Scope, commit bool) {
	s.messages = append(s.messages, f.messages...)
	if !commit {
		return
	}
	s.Doc = f.Doc
	s.fetches = append(s.fetches, f.fetches...)
}
