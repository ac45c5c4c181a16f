package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain/session"
	"txcalc/internal/domain/transaction"
	"txcalc/internal/infrastructure/http/v1/dto"
)

// defaultSettleTimeout bounds how long settle waits for remote fetches.
const defaultSettleTimeout = 30 * time.Second

// SessionHandler serves editing sessions.
type SessionHandler struct {
	*BaseHandler
	sessions *session.Manager
	calc     *transaction.Calculator
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *BaseHandler, sessions *session.Manager, calc *transaction.Calculator) *SessionHandler {
	return &SessionHandler{BaseHandler: base, sessions: sessions, calc: calc}
}

// Create opens a session on a new or client-held draft.
// POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var (
		ctrl *session.Controller
		err  error
	)
	if req.Document != nil {
		ctrl, err = h.sessions.Open(ctx, req.Document)
	} else {
		ctrl, err = h.sessions.New(ctx, req.DocType, req.Company)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSession(ctrl))
}

// Load opens a session on a stored document.
// POST /api/v1/sessions/load
func (h *SessionHandler) Load(c *gin.Context) {
	var req dto.LoadSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctrl, err := h.sessions.Load(c.Request.Context(), req.DocType, req.Name)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSession(ctrl))
}

// Mapped opens a session on a draft mapped from a submitted document.
// POST /api/v1/sessions/mapped
func (h *SessionHandler) Mapped(c *gin.Context) {
	var req dto.MappedSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctrl, err := h.sessions.OpenMapped(c.Request.Context(), req.SourceDocType, req.SourceName, req.TargetDocType)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSession(ctrl))
}

// Get returns the current state of a session.
// GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	ctrl, ok := h.session(c)
	if !ok {
		return
	}
	h.OK(c, dto.FromSession(ctrl))
}

// Edit applies a field change. An edit that was kept but failed to
// recalculate answers 200 with the error attached to the session state.
// POST /api/v1/sessions/:id/edits
func (h *SessionHandler) Edit(c *gin.Context) {
	ctrl, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.EditRequest
	if !h.BindJSON(c, &req) {
		return
	}
	edit, err := req.ToEdit()
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid edit").WithDetail("error", err.Error()))
		return
	}

	doc, err := ctrl.ApplyEdit(c.Request.Context(), edit)
	if err != nil && doc == nil {
		h.Error(c, err)
		return
	}
	resp := dto.FromSession(ctrl)
	if err != nil {
		resp.Error = errorResponse(err)
	}
	h.OK(c, resp)
}

// Calculate recalculates the session document.
// POST /api/v1/sessions/:id/calculate
func (h *SessionHandler) Calculate(c *gin.Context) {
	ctrl, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := ctrl.Calculate(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSession(ctrl))
}

// Settle waits for in-flight fetches, up to ?timeout=.
// POST /api/v1/sessions/:id/settle
func (h *SessionHandler) Settle(c *gin.Context) {
	ctrl, ok := h.session(c)
	if !ok {
		return
	}
	timeout, err := h.ParseDurationQuery(c, "timeout", defaultSettleTimeout)
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	if err := ctrl.Settle(ctx); err != nil {
		h.Error(c, settleError(err))
		return
	}
	h.OK(c, dto.FromSession(ctrl))
}

// Save stores the session document.
// POST /api/v1/sessions/:id/save
func (h *SessionHandler) Save(c *gin.Context) {
	h.persist(c, (*session.Controller).Save)
}

// Submit validates and submits the session document.
// POST /api/v1/sessions/:id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	h.persist(c, (*session.Controller).Submit)
}

func (h *SessionHandler) persist(c *gin.Context, op func(*session.Controller, context.Context) (*transaction.Document, error)) {
	ctrl, ok := h.session(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultSettleTimeout)
	defer cancel()

	if _, err := op(ctrl, ctx); err != nil {
		h.Error(c, settleError(err))
		return
	}
	h.OK(c, dto.FromSession(ctrl))
}

// Close ends a session.
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// CalculateDocument recalculates a posted document without a session.
// POST /api/v1/calculate
func (h *SessionHandler) CalculateDocument(c *gin.Context) {
	var req dto.CalculateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	dt, err := h.sessions.Types().Get(req.Document.DocType)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.Document.Renumber()
	out, err := h.calc.Recalculate(req.Document, dt.Policy())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, out)
}

func (h *SessionHandler) session(c *gin.Context) (*session.Controller, bool) {
	ctrl, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return ctrl, true
}

func settleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTimeout("remote fetches did not settle in time")
	}
	return err
}

func errorResponse(err error) *dto.ErrorResponse {
	if appErr, ok := apperror.AsAppError(err); ok {
		return &dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	}
	return &dto.ErrorResponse{Code: apperror.CodeInternal, Message: err.Error()}
}
