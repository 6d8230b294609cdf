package health

import (
	"net/http"
	"time"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/gin-gonic/gin"
)

// Get handles health check requests
// @Summary      Health check
// @Description  Reports whether the service and its database are reachable
// @Tags         system
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Failure      503 {object} map[string]interface{}
// @Router       /health [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		database := getDatabaseStatus(deps)

		status, code := "healthy", http.StatusOK
		if database["status"] == "unhealthy" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"database":  database,
		})
	}
}

// getDatabaseStatus returns the database connection status. The Supabase
// driver has no local connection to check.
func getDatabaseStatus(deps *types.Dependencies) gin.H {
	if deps != nil && deps.StorageDriver == database.DriverSupabase {
		return gin.H{"status": "remote", "driver": deps.StorageDriver, "connected": true}
	}
	if deps == nil || deps.DB == nil || deps.DB.DB == nil {
		return gin.H{"status": "not configured", "connected": false}
	}

	if err := deps.DB.HealthCheck(); err != nil {
		return gin.H{"status": "unhealthy", "connected": false, "error": err.Error()}
	}

	return gin.H{"status": "healthy", "connected": true}
}
