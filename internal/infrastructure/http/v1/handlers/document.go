package handlers

import (
	"github.com/gin-gonic/gin"

	"txcalc/internal/domain"
	"txcalc/internal/infrastructure/http/v1/dto"
)

// DocumentHandler reads stored documents.
type DocumentHandler struct {
	*BaseHandler
	store domain.DocumentRepository
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(base *BaseHandler, store domain.DocumentRepository) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, store: store}
}

// List returns stored document summaries.
// GET /api/v1/documents
func (h *DocumentHandler) List(c *gin.Context) {
	var req dto.DocumentListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	result, err := h.store.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// Get returns a stored document.
// GET /api/v1/documents/:doctype/:name
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.store.Get(c.Request.Context(), c.Param("doctype"), c.Param("name"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
