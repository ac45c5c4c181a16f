// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"txcalc/internal/domain"
	"txcalc/internal/domain/session"
	"txcalc/internal/domain/transaction"
	"txcalc/internal/infrastructure/cache"
	"txcalc/internal/infrastructure/http/v1/handlers"
	"txcalc/internal/infrastructure/http/v1/middleware"
	"txcalc/internal/infrastructure/storage/postgres"
	"txcalc/internal/metadata"
	"txcalc/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Sessions owns the open editing sessions
	Sessions *session.Manager

	// Calc recalculates documents posted without a session
	Calc *transaction.Calculator

	// Store backs the document list; nil disables /documents
	Store domain.DocumentRepository

	// MetadataRegistry stores document type definitions
	MetadataRegistry *metadata.Registry

	// Cache is the remote call cache; nil disables /cache
	Cache *cache.Invoker

	// Pool is checked by the readiness probe when set
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Version reported by /health/info
	Version string

	// Debug runs gin in debug mode
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters: recovery must sit inside the error handler)
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	var pinger handlers.Pinger
	if cfg.Cache != nil {
		pinger = cfg.Cache
	}
	healthHandler := handlers.NewHealthHandler(cfg.Pool, pinger, cfg.Sessions, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	{
		registerSessionRoutes(v1, cfg)
		registerDocumentRoutes(v1, cfg)
		registerMetaRoutes(v1, cfg)
		registerCacheRoutes(v1, cfg)
	}

	return router
}

// registerSessionRoutes registers editing session endpoints.
func registerSessionRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()
	handler := handlers.NewSessionHandler(baseHandler, cfg.Sessions, cfg.Calc)

	RegisterSessionRoutes(rg.Group("/sessions"), handler)
	rg.POST("/calculate", handler.CalculateDocument)
}

// registerDocumentRoutes registers stored document endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Store == nil {
		return
	}
	handler := handlers.NewDocumentHandler(handlers.NewBaseHandler(), cfg.Store)
	docs := rg.Group("/documents")
	{
		docs.GET("", handler.List)
		docs.GET("/:doctype/:name", handler.Get)
	}
}

// registerMetaRoutes registers metadata/schema endpoints.
func registerMetaRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.MetadataRegistry == nil {
		return
	}

	handler := handlers.NewMetadataHandler(cfg.MetadataRegistry)
	meta := rg.Group("/meta")
	{
		meta.GET("", handler.ListEntities)
		meta.GET("/:name", handler.GetEntity)
	}
}

// registerCacheRoutes registers remote call cache endpoints.
func registerCacheRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Cache == nil {
		return
	}
	handler := handlers.NewCacheHandler(handlers.NewBaseHandler(), cfg.Cache)
	rg.POST("/cache/flush", handler.Flush)
}
