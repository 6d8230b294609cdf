package version

import (
	"net/http"

	"github.com/callmetrics/callmetrics-api/pkg/version"
	"github.com/gin-gonic/gin"
)

// Get handles version requests
// @Summary      Service version
// @Description  Build metadata of the running service
// @Tags         system
// @Produce      json
// @Success      200 {object} version.Info
// @Router       /version [get]
func Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	}
}
