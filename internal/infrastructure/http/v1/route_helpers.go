package v1

import (
	"github.com/gin-gonic/gin"
)

// SessionRouteHandler defines the interface for session handlers.
type SessionRouteHandler interface {
	Create(c *gin.Context)
	Load(c *gin.Context)
	Mapped(c *gin.Context)
	Get(c *gin.Context)
	Edit(c *gin.Context)
	Calculate(c *gin.Context)
	Settle(c *gin.Context)
	Save(c *gin.Context)
	Submit(c *gin.Context)
	Close(c *gin.Context)
}

// RegisterSessionRoutes registers the session lifecycle routes.
//
// Usage:
//
//	handler := handlers.NewSessionHandler(baseHandler, sessions, calc)
//	RegisterSessionRoutes(v1.Group("/sessions"), handler)
func RegisterSessionRoutes(group *gin.RouterGroup, handler SessionRouteHandler) {
	group.POST("", handler.Create)
	group.POST("/load", handler.Load)
	group.POST("/mapped", handler.Mapped)
	group.GET("/:id", handler.Get)
	group.DELETE("/:id", handler.Close)
	group.POST("/:id/edits", handler.Edit)
	group.POST("/:id/calculate", handler.Calculate)
	group.POST("/:id/settle", handler.Settle)
	group.POST("/:id/save", handler.Save)
	group.POST("/:id/submit", handler.Submit)
}
