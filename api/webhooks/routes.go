package webhooks

import (
	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers provider callbacks. They authenticate with a
// shared secret instead of a bearer token.
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("/transcription", Transcription(deps))
}
