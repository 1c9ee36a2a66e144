// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"entigraph/internal/config"
	"entigraph/internal/entity"
	"entigraph/internal/infrastructure/http/v1/handlers"
	"entigraph/internal/infrastructure/http/v1/middleware"
	"entigraph/internal/infrastructure/metrics"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Domain *metadata.Domain
	Format config.FormatConfig
	Logger *logger.Logger

	// Metrics observes every entity created by the handlers and serves
	// /metrics. Optional.
	Metrics *metrics.Observer

	// Store, Resolver and DB enable the entity endpoints and the database
	// readiness check. All optional.
	Store    handlers.EntityStore
	Resolver handlers.ForeignKeyResolver
	DB       handlers.Pinger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	// Integers in request bodies must not pass through float64.
	binding.EnableDecoderUseNumber = true

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	var entityOpts []entity.Option
	if cfg.Metrics != nil {
		entityOpts = append(entityOpts, entity.WithObserver(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	base := handlers.NewBaseHandler(cfg.Domain, cfg.Format.DateLayout, entityOpts...)

	api := router.Group("/api/v1")

	metaHandler := handlers.NewMetadataHandler(base)
	meta := api.Group("/meta")
	{
		meta.GET("", metaHandler.ListEntities)
		meta.GET("/:name", metaHandler.GetEntity)
		meta.POST("/:name/evaluate", metaHandler.Evaluate)
	}

	if cfg.Store != nil && cfg.Resolver != nil {
		entityHandler := handlers.NewEntityHandler(base, cfg.Store, cfg.Resolver)
		entities := api.Group("/entities")
		{
			entities.GET("/:name/:key", entityHandler.Get)
			entities.PUT("/:name", entityHandler.Save)
		}
	}

	return router
}
