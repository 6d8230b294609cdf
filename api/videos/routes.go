package videos

import (
	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers record management routes under /api/v1/videos
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies, processLimit gin.HandlerFunc) {
	router.POST("", Create(deps))
	router.GET("", List(deps))
	router.GET("/:id", Get(deps))
	router.DELETE("/:id", Delete(deps))
	router.POST("/:id/retry", processLimit, Retry(deps))
	router.GET("/:id/transcriptions", ListTranscriptions(deps))
	router.GET("/:id/analyses", ListAnalyses(deps))
}

// RegisterProcessRoute registers POST /api/v1/process-video
func RegisterProcessRoute(router *gin.RouterGroup, deps *types.Dependencies, processLimit gin.HandlerFunc) {
	router.POST("/process-video", processLimit, Process(deps))
}
