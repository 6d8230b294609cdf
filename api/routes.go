package api

import (
	"net/http"
	"sync"

	"github.com/callmetrics/callmetrics-api/api/auth"
	"github.com/callmetrics/callmetrics-api/api/health"
	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/api/version"
	"github.com/callmetrics/callmetrics-api/api/videos"
	"github.com/callmetrics/callmetrics-api/api/webhooks"
	_ "github.com/callmetrics/callmetrics-api/docs/swagger"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Rate limit buckets, keyed like rate_limiting.endpoints
const (
	bucketProcessing = "processing"
	bucketWebhooks   = "webhooks"
	bucketDefault    = "default"
)

var defaultRates = map[string]int{
	bucketProcessing: 2,
	bucketWebhooks:   20,
	bucketDefault:    10,
}

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, cfg *config.Config, deps *types.Dependencies, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once) error {
	if deps == nil {
		deps = &types.Dependencies{}
	}

	limit := func(bucket string) gin.HandlerFunc {
		if !cfg.RateLimiting.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		rps, ok := cfg.RateLimiting.Endpoints[bucket]
		if !ok || rps <= 0 {
			rps = defaultRates[bucket]
		}
		return PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, bucket, rps, rps*2)
	}

	// Public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine)

	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	engine.NoRoute(NotFoundHandler())

	v1 := engine.Group("/api/v1")

	// Provider callbacks carry their own secret
	webhooks.RegisterRoutes(v1.Group("/webhooks", limit(bucketWebhooks)), deps)

	authHandler := auth.NewHandler(deps.Auth)
	protected := v1.Group("", authHandler.AuthMiddleware(), limit(bucketDefault))
	protected.GET("/me", authHandler.Me)

	processLimit := limit(bucketProcessing)
	videos.RegisterProcessRoute(protected, deps, processLimit)
	videos.RegisterRoutes(protected.Group("/videos"), deps, processLimit)

	return nil
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "The requested endpoint was not found",
			Code:    "NOT_FOUND",
			Details: gin.H{"path": c.Request.URL.Path},
		})
	}
}
