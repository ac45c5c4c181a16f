package dto

import (
	"bytes"
	"encoding/json"

	"txcalc/internal/domain/session"
	"txcalc/internal/domain/transaction"
)

// --- Session requests ---

// CreateSessionRequest opens a session on a new draft or on a draft the
// client already holds. Document wins when both are given.
type CreateSessionRequest struct {
	DocType  string                `json:"doctype" binding:"required_without=Document"`
	Company  string                `json:"company"`
	Document *transaction.Document `json:"document"`
}

// LoadSessionRequest opens a session on a stored document.
type LoadSessionRequest struct {
	DocType string `json:"doctype" binding:"required"`
	Name    string `json:"name" binding:"required"`
}

// MappedSessionRequest opens a session on a draft mapped from a submitted
// source document.
type MappedSessionRequest struct {
	SourceDocType string `json:"source_doctype" binding:"required"`
	SourceName    string `json:"source_name" binding:"required"`
	TargetDocType string `json:"target_doctype" binding:"required"`
}

// EditRequest is a single field change, e.g. {"field": "items.qty", "row": 0, "value": 3}.
type EditRequest struct {
	Field string          `json:"field" binding:"required"`
	Row   int             `json:"row" binding:"min=0"`
	Value json.RawMessage `json:"value"`
}

// ToEdit resolves the field and decodes the value keeping numbers exact.
func (r EditRequest) ToEdit() (session.Edit, error) {
	f, err := transaction.ParseField(r.Field)
	if err != nil {
		return session.Edit{}, err
	}
	var v any
	if len(r.Value) > 0 {
		dec := json.NewDecoder(bytes.NewReader(r.Value))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return session.Edit{}, err
		}
	}
	return session.Edit{Field: f, Row: r.Row, Value: v}, nil
}

// CalculateRequest recalculates a document without opening a session.
type CalculateRequest struct {
	Document *transaction.Document `json:"document" binding:"required"`
}

// --- Session responses ---

// SessionResponse is the state of an open session.
type SessionResponse struct {
	ID       string                `json:"id"`
	DocType  string                `json:"doctype"`
	Version  int64                 `json:"version"`
	Pending  int                   `json:"pending"`
	Messages []string              `json:"messages,omitempty"`
	Document *transaction.Document `json:"document"`
	// Error is set when an edit was kept but its recalculation failed
	Error *ErrorResponse `json:"error,omitempty"`
}

// FromSession snapshots a session.
func FromSession(c *session.Controller) SessionResponse {
	doc, version := c.Snapshot()
	return SessionResponse{
		ID:       c.ID(),
		DocType:  c.DocType().Name,
		Version:  version,
		Pending:  c.Pending(),
		Messages: c.Messages(),
		Document: doc,
	}
}
