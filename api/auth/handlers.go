package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/services/auth"
	"github.com/gin-gonic/gin"
)

// UserInfo is the caller identity returned by /me
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Handler manages auth endpoints
type Handler struct {
	validator types.TokenValidator
}

// NewHandler creates a new auth handler
func NewHandler(validator types.TokenValidator) *Handler {
	return &Handler{validator: validator}
}

// Me returns current user info from JWT
// @Summary Get current user
// @Description Get the identity carried by the bearer token
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} types.SuccessResponse{data=UserInfo}
// @Failure 401 {object} types.ErrorResponse
// @Router /api/v1/me [get]
func (h *Handler) Me(c *gin.Context) {
	claims, ok := types.Claims(c)
	if !ok {
		types.SendUnauthorized(c, "Unauthorized")
		return
	}

	types.SendSuccess(c, UserInfo{ID: claims.Sub, Email: claims.Email, Role: claims.Role})
}

// AuthMiddleware validates Supabase JWT tokens
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.validator == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, types.ErrorResponse{
				Error: "authentication not configured",
				Code:  "CONFIG_REQUIRED",
			})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			types.SendUnauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			types.SendUnauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := h.validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			message := "Invalid or expired token"
			if errors.Is(err, auth.ErrTokenExpired) {
				message = "Token expired"
			}
			types.SendUnauthorized(c, message)
			c.Abort()
			return
		}

		c.Set(types.ContextClaims, claims)
		c.Set(types.ContextUserID, claims.Sub)

		c.Next()
	}
}
