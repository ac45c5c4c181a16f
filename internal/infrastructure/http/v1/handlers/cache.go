package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"txcalc/internal/core/apperror"
)

// Flusher drops cached remote answers.
type Flusher interface {
	Flush(ctx context.Context) (int64, error)
}

// CacheHandler administers the remote call cache.
type CacheHandler struct {
	*BaseHandler
	cache Flusher
}

// NewCacheHandler creates a cache handler.
func NewCacheHandler(base *BaseHandler, cache Flusher) *CacheHandler {
	return &CacheHandler{BaseHandler: base, cache: cache}
}

// Flush drops every cached answer.
// POST /api/v1/cache/flush
func (h *CacheHandler) Flush(c *gin.Context) {
	n, err := h.cache.Flush(c.Request.Context())
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, gin.H{"success": true, "deleted": n})
}
