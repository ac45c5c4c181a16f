// Package session owns open transaction documents. Each document has one
// Controller, the single writer of its state: edits, fetch results and
// saves are applied under the controller lock as snapshot-in, state-out
// steps.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"txcalc/internal/core/apperror"
	appctx "txcalc/internal/core/context"
	"txcalc/internal/core/numerator"
	"txcalc/internal/domain"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/transaction"
	"txcalc/pkg/logger"
)

// Edit is a single field change requested by the user.
type Edit struct {
	Field transaction.Field
	// Row is the 0-based row for child-table fields. Ignored for row add
	// events, which always append.
	Row   int
	Value any
}

type inflight struct {
	token  uint64
	cancel context.CancelFunc
}

// Controller serializes every change to one document.
type Controller struct {
	id   string
	dt   doctype.DocType
	deps *deps

	mu        sync.Mutex
	doc       *transaction.Document
	version   int64
	inflight  map[string]inflight
	nextToken uint64
	pending   int
	idle      chan struct{}
	messages  []string
	closed    bool
}

func newController(sessionID string, dt doctype.DocType, doc *transaction.Document, d *deps) *Controller {
	return &Controller{
		id:       sessionID,
		dt:       dt,
		deps:     d,
		doc:      doc,
		inflight: make(map[string]inflight),
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// DocType returns the document type of the session.
func (c *Controller) DocType() doctype.DocType { return c.dt }

// Snapshot returns a copy of the current document and its version.
func (c *Controller) Snapshot() (*transaction.Document, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone(), c.version
}

// Messages returns the user messages collected so far.
func (c *Controller) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

// Pending returns the number of remote fetches still running.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// ApplyEdit writes the edit, runs the handlers registered for the field and
// recalculates. The edit itself is kept even when a handler or the
// recalculation fails; the error is returned alongside the new snapshot.
func (c *Controller) ApplyEdit(ctx context.Context, e Edit) (*transaction.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed(c.id)
	}
	if !e.Field.Known() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown field %q", e.Field)).
			WithDetail("field", string(e.Field))
	}

	if c.doc.IsSubmitted() {
		return c.editSubmitted(e)
	}
	ctx = c.scope(ctx)

	work := c.doc.Clone()
	if err := transaction.SetField(work, e.Field, e.Row, e.Value); err != nil {
		return nil, err
	}
	ev := dispatch.Event{DocType: c.dt.Name, Field: e.Field, Row: e.Row, Value: e.Value}
	if e.Field.Kind() == transaction.KindRowAdd {
		ev.Row = rowCount(work, e.Field.Table()) - 1
	}

	s := dispatch.NewScope(work, ev, c.dt, c.deps.calc)
	dispatchErr := c.deps.registry.Dispatch(ctx, s)
	c.messages = append(c.messages, s.Messages()...)

	calcErr := c.commitRecalculated(s.Doc)
	c.startFetches(ctx, s.Fetches())

	if err := errors.Join(dispatchErr, calcErr); err != nil {
		logger.Debug(ctx, "edit applied with errors", "session", c.id, "field", e.Field, "error", err)
		return c.doc.Clone(), err
	}
	return c.doc.Clone(), nil
}

// editSubmitted applies a whitelisted edit to a submitted document without
// dispatch or recalculation.
func (c *Controller) editSubmitted(e Edit) (*transaction.Document, error) {
	if !e.Field.AllowOnSubmit() {
		return nil, apperror.NewDocumentSubmitted(c.doc.Name).
			WithDetail("field", string(e.Field))
	}
	work := c.doc.Clone()
	if err := transaction.SetField(work, e.Field, e.Row, e.Value); err != nil {
		return nil, err
	}
	c.commit(work)
	return c.doc.Clone(), nil
}

// Calculate runs a full recalculation of the current state.
func (c *Controller) Calculate(_ context.Context) (*transaction.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed(c.id)
	}
	out, err := c.deps.calc.Recalculate(c.doc, c.dt.Policy())
	if err != nil {
		return nil, err
	}
	c.commit(out)
	return c.doc.Clone(), nil
}

// Settle waits until no remote fetch is in flight.
func (c *Controller) Settle(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.pending == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Save settles pending fetches, recalculates and stores the document. New
// documents are named on their first save. Submitted documents are stored
// as they are, carrying only their whitelisted edits.
func (c *Controller) Save(ctx context.Context) (*transaction.Document, error) {
	if err := c.Settle(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed(c.id)
	}
	out := c.doc.Clone()
	if !out.IsSubmitted() {
		var err error
		if out, err = c.deps.calc.Recalculate(c.doc, c.dt.Policy()); err != nil {
			return nil, err
		}
	}
	if err := c.persist(ctx, out, domain.BeforeSave, domain.AfterSave); err != nil {
		return nil, err
	}
	c.commit(out)
	logger.Info(ctx, "document saved", "session", c.id, "name", out.Name)
	return c.doc.Clone(), nil
}

// Submit settles, recalculates, validates the payment schedule and stores
// the document as submitted.
func (c *Controller) Submit(ctx context.Context) (*transaction.Document, error) {
	if err := c.Settle(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed(c.id)
	}
	out, err := c.deps.calc.Recalculate(c.doc, c.dt.Policy())
	if err != nil {
		return nil, err
	}
	if c.dt.PaymentSchedule {
		if err := transaction.ValidatePaymentSchedule(out); err != nil {
			return nil, err
		}
	}
	if err := out.MarkSubmitted(); err != nil {
		return nil, err
	}
	if err := c.persist(ctx, out, domain.BeforeSubmit, domain.AfterSubmit); err != nil {
		return nil, err
	}
	c.commit(out)
	logger.Info(ctx, "document submitted", "session", c.id, "name", out.Name)
	return c.doc.Clone(), nil
}

// scope tags ctx with the session document for logging.
func (c *Controller) scope(ctx context.Context) context.Context {
	return appctx.WithDocument(ctx, &appctx.DocumentContext{
		SessionID: c.id,
		DocType:   c.dt.Name,
		Name:      c.doc.Name,
	})
}

// persist names a new document and writes it in one transaction with the
// after hooks. Numbering runs outside the transaction.
func (c *Controller) persist(ctx context.Context, doc *transaction.Document, before, after domain.HookEvent) error {
	d := c.deps
	ctx = c.scope(ctx)
	if d.store == nil {
		return apperror.NewInternal(errors.New("no document store configured"))
	}
	if err := d.hooks.Run(ctx, before, doc); err != nil {
		return err
	}

	isNew := doc.IsNew()
	if isNew {
		name, err := d.numerator.GetNextNumber(ctx, numerator.DefaultConfig(c.dt.Prefix), nil, period(doc))
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("name document: %w", err))
		}
		doc.Name = name
	}

	return d.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if isNew {
			err = d.store.Insert(ctx, doc)
		} else {
			err = d.store.Update(ctx, doc)
		}
		if err != nil {
			return err
		}
		return d.hooks.Run(ctx, after, doc)
	})
}

// Close cancels in-flight fetches and rejects further work.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for key, f := range c.inflight {
		f.cancel()
		delete(c.inflight, key)
	}
}

// --- commit & fetch plumbing (callers hold c.mu) ---

func (c *Controller) commit(doc *transaction.Document) {
	c.doc = doc
	c.version++
}

// commitRecalculated commits the recalculated document, or doc itself
// when the recalculation fails.
func (c *Controller) commitRecalculated(doc *transaction.Document) error {
	out, err := c.deps.calc.Recalculate(doc, c.dt.Policy())
	if err != nil {
		c.commit(doc)
		return err
	}
	c.commit(out)
	return nil
}

func (c *Controller) startFetches(ctx context.Context, fetches []dispatch.Fetch) {
	for _, f := range fetches {
		c.startFetch(ctx, f)
	}
}

// startFetch runs f in the background. A newer fetch for the same key
// cancels the older one; the older result is dropped when it arrives.
func (c *Controller) startFetch(parent context.Context, f dispatch.Fetch) {
	if f.Call == nil {
		return
	}
	if old, ok := c.inflight[f.Key]; ok {
		old.cancel()
	}

	c.nextToken++
	token := c.nextToken
	base := appctx.Detach(parent)
	ctx, cancel := context.WithTimeout(base, c.deps.fetchTimeout)
	c.inflight[f.Key] = inflight{token: token, cancel: cancel}

	c.pending++
	if c.pending == 1 {
		c.idle = make(chan struct{})
	}

	go func() {
		defer cancel()
		cont, err := f.Call(ctx)
		c.complete(base, f, token, cont, err)
	}()
}

// complete applies the result of a fetch as a new step.
func (c *Controller) complete(ctx context.Context, f dispatch.Fetch, token uint64, cont dispatch.Continuation, callErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.done()

	if c.closed {
		return
	}
	cur, ok := c.inflight[f.Key]
	if !ok || cur.token != token {
		logger.Debug(ctx, "stale fetch result dropped", "session", c.id, "key", f.Key, "method", f.Method)
		return
	}
	delete(c.inflight, f.Key)

	if callErr != nil {
		c.fetchFailed(ctx, f, callErr)
		return
	}

	row := 0
	if f.RowName != "" {
		row = rowIndex(c.doc, f.Field.Table(), f.RowName)
		if row < 0 {
			logger.Debug(ctx, "fetch result for removed row dropped", "session", c.id, "key", f.Key)
			return
		}
	}

	s := dispatch.NewScope(c.doc.Clone(), dispatch.Event{DocType: c.dt.Name, Field: f.Field, Row: row}, c.dt, c.deps.calc)
	contErr := c.deps.registry.Continue(ctx, s, cont)
	c.messages = append(c.messages, s.Messages()...)
	if contErr != nil {
		c.fetchFailed(ctx, f, contErr)
	}

	if err := c.commitRecalculated(s.Doc); err != nil {
		c.messages = append(c.messages, userMessage(err))
	}
	c.startFetches(ctx, s.Fetches())
}

func (c *Controller) fetchFailed(ctx context.Context, f dispatch.Fetch, err error) {
	if f.Optional {
		logger.Debug(ctx, "optional fetch failed", "session", c.id, "method", f.Method, "error", err)
		return
	}
	logger.Warn(ctx, "fetch failed", "session", c.id, "method", f.Method, "key", f.Key, "error", err)
	if errors.Is(err, context.Canceled) {
		return
	}
	c.messages = append(c.messages, userMessage(err))
}

func (c *Controller) done() {
	c.pending--
	if c.pending == 0 && c.idle != nil {
		close(c.idle)
		c.idle = nil
	}
}

func rowCount(doc *transaction.Document, table transaction.Table) int {
	switch table {
	case transaction.TableItems:
		return len(doc.Items)
	case transaction.TableTaxes:
		return len(doc.Taxes)
	case transaction.TablePaymentSchedule:
		return len(doc.PaymentSchedule)
	}
	return 0
}

func rowIndex(doc *transaction.Document, table transaction.Table, name string) int {
	switch table {
	case transaction.TableItems:
		for i := range doc.Items {
			if doc.Items[i].Name == name {
				return i
			}
		}
	case transaction.TableTaxes:
		for i := range doc.Taxes {
			if doc.Taxes[i].Name == name {
				return i
			}
		}
	case transaction.TablePaymentSchedule:
		for i := range doc.PaymentSchedule {
			if doc.PaymentSchedule[i].Name == name {
				return i
			}
		}
	}
	return -1
}

// period is the numbering period of a document: its date, or today.
func period(doc *transaction.Document) time.Time {
	if t, err := time.Parse(time.DateOnly, doc.Date()); err == nil {
		return t
	}
	return time.Now()
}

// userMessage is the text shown to the user for err.
func userMessage(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Code == apperror.CodeRemoteCall && appErr.Err != nil {
			return appErr.Err.Error()
		}
		return appErr.Message
	}
	return err.Error()
}

func errClosed(id string) error {
	return apperror.NewNotFound("session", id)
}
