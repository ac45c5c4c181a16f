package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/core/id"
	"txcalc/internal/core/numerator"
	"txcalc/internal/core/tx"
	"txcalc/internal/domain"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/transaction"
	"txcalc/pkg/logger"
)

// Config tunes the session manager.
type Config struct {
	// FetchTimeout bounds every remote fetch (default 10s)
	FetchTimeout time.Duration
	// MaxSessions caps open sessions; zero means unlimited
	MaxSessions int
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Types    *doctype.Registry
	Registry *dispatch.Registry
	Calc     *transaction.Calculator
	Fetcher  *fetcher.Client

	// Store and Numerator are required for Save, Submit and Load
	Store     domain.DocumentRepository
	Numerator numerator.Generator
	// Tx is optional; without it writes run directly
	Tx    tx.Manager
	Hooks *domain.DocumentHooks
}

type deps struct {
	registry     *dispatch.Registry
	calc         *transaction.Calculator
	store        domain.DocumentRepository
	numerator    numerator.Generator
	tx           tx.Manager
	hooks        *domain.DocumentHooks
	fetchTimeout time.Duration
}

// Manager keeps the open sessions keyed by session id.
type Manager struct {
	types       *doctype.Registry
	fetcher     *fetcher.Client
	deps        *deps
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewManager creates a session manager.
func NewManager(d Deps, cfg Config) *Manager {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	txm := d.Tx
	if txm == nil {
		txm = tx.Direct{}
	}
	hooks := d.Hooks
	if hooks == nil {
		hooks = domain.NewDocumentHooks()
	}
	calc := d.Calc
	if calc == nil {
		calc = transaction.NewCalculator(transaction.DefaultPrecision())
	}

	return &Manager{
		types:   d.Types,
		fetcher: d.Fetcher,
		deps: &deps{
			registry:     d.Registry,
			calc:         calc,
			store:        d.Store,
			numerator:    d.Numerator,
			tx:           txm,
			hooks:        hooks,
			fetchTimeout: cfg.FetchTimeout,
		},
		maxSessions: cfg.MaxSessions,
		sessions:    make(map[string]*Controller),
	}
}

// Hooks returns the hook registry for external registration.
func (m *Manager) Hooks() *domain.DocumentHooks {
	return m.deps.hooks
}

// Types returns the document type registry.
func (m *Manager) Types() *doctype.Registry {
	return m.types
}

// New opens a session on an empty draft of docType.
func (m *Manager) New(ctx context.Context, docType, company string) (*Controller, error) {
	doc := &transaction.Document{Document: entity.NewDocument(docType, company)}
	return m.Open(ctx, doc)
}

// Open starts a session on a draft document. Rows without a name get one
// and the document is recalculated before the session is registered.
func (m *Manager) Open(ctx context.Context, doc *transaction.Document) (*Controller, error) {
	if doc == nil {
		return nil, apperror.NewValidation("document is required")
	}
	dt, err := m.types.Get(doc.DocType)
	if err != nil {
		return nil, err
	}
	if err := doc.CanModify(); err != nil {
		return nil, err
	}

	work := doc.Clone()
	prepare(work)
	out, err := m.deps.calc.Recalculate(work, dt.Policy())
	if err != nil {
		return nil, err
	}
	return m.register(ctx, dt, out)
}

// Load opens a session on a stored document. Submitted documents open
// read-only except for whitelisted fields.
func (m *Manager) Load(ctx context.Context, docType, name string) (*Controller, error) {
	if m.deps.store == nil {
		return nil, apperror.NewInternal(fmt.Errorf("no document store configured"))
	}
	dt, err := m.types.Get(docType)
	if err != nil {
		return nil, err
	}
	doc, err := m.deps.store.Get(ctx, docType, name)
	if err != nil {
		return nil, err
	}
	prepare(doc)
	return m.register(ctx, dt, doc)
}

// OpenMapped creates a draft of target from a submitted source document
// through the remote mapper and opens a session on it.
func (m *Manager) OpenMapped(ctx context.Context, sourceType, sourceName, target string) (*Controller, error) {
	method, err := m.types.Mapping(sourceType, target)
	if err != nil {
		return nil, err
	}

	if m.deps.store != nil {
		src, err := m.deps.store.Get(ctx, sourceType, sourceName)
		switch {
		case err == nil && !src.IsSubmitted():
			return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule,
				fmt.Sprintf("%s %s must be submitted before it can be mapped.", sourceType, sourceName)).
				WithDetail("source", sourceName)
		case err != nil && !apperror.IsNotFound(err):
			return nil, err
		}
	}
	if m.fetcher == nil {
		return nil, apperror.NewInternal(fmt.Errorf("no remote fetcher configured"))
	}

	doc, err := m.fetcher.MapDocument(ctx, method, sourceName)
	if err != nil {
		return nil, err
	}
	doc.DocType = target
	doc.DocStatus = entity.Draft
	doc.Name = entity.TemporaryName(target)
	return m.Open(ctx, doc)
}

// Get returns an open session.
func (m *Manager) Get(sessionID string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound("session", sessionID)
	}
	return c, nil
}

// Close ends a session and cancels its in-flight fetches.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	c, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return apperror.NewNotFound("session", sessionID)
	}
	c.Close()
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session and waits for their fetches to unwind.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
	for _, c := range sessions {
		if err := c.Settle(ctx); err != nil {
			return err
		}
	}
	logger.Info(ctx, "sessions closed", "count", len(sessions))
	return nil
}

func (m *Manager) register(ctx context.Context, dt doctype.DocType, doc *transaction.Document) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, apperror.NewConflict("too many open sessions").
			WithDetail("max_sessions", m.maxSessions)
	}
	c := newController(id.New().String(), dt, doc, m.deps)
	m.sessions[c.id] = c
	logger.Debug(ctx, "session opened", "session", c.id, "doctype", dt.Name, "name", doc.Name)
	return c, nil
}

// prepare gives unnamed rows a name and renumbers them.
func prepare(doc *transaction.Document) {
	if doc.Name == "" {
		doc.Name = entity.TemporaryName(doc.DocType)
	}
	for i := range doc.Items {
		if doc.Items[i].Name == "" {
			doc.Items[i].Name = id.RowName()
		}
	}
	for i := range doc.Taxes {
		if doc.Taxes[i].Name == "" {
			doc.Taxes[i].Name = id.RowName()
		}
	}
	for i := range doc.PaymentSchedule {
		if doc.PaymentSchedule[i].Name == "" {
			doc.PaymentSchedule[i].Name = id.RowName()
		}
	}
	doc.Renumber()
}
