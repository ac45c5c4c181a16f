package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"txcalc/internal/core/apperror"
	"txcalc/internal/metadata"
)

type MetadataHandler struct {
	registry *metadata.Registry
}

func NewMetadataHandler(registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{
		registry: registry,
	}
}

// ListEntities returns the definitions of all document types.
// GET /api/v1/meta
func (h *MetadataHandler) ListEntities(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// GetEntity returns the definition of one document type.
// GET /api/v1/meta/:name
func (h *MetadataHandler) GetEntity(c *gin.Context) {
	name := c.Param("name")
	def, ok := h.registry.Get(name)
	if !ok {
		_ = c.Error(apperror.NewNotFound("DocType", name))
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, def)
}
