package types

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/auth"
	"github.com/callmetrics/callmetrics-api/internal/services/videos"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	ContextClaims = "claims"
	ContextUserID = "user_id"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler utility functions to reduce duplication across handlers

// BindJSONOrError attempts to bind JSON request body to target struct
// Returns false and sends error response if binding fails
func BindJSONOrError(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    string(apperrors.ErrCodeValidation),
			Details: err.Error(),
		})
		return false
	}
	return true
}

// ParsePagination reads limit and offset query parameters, clamping them to
// sane bounds
func ParsePagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// UserID returns the authenticated subject, or "" when the route is public
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// Claims returns the validated token claims
func Claims(c *gin.Context) (*auth.Claims, bool) {
	value, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

// SendError maps err to a status code and a message safe to show the caller
func SendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, videos.ErrVideoNotFound):
		err = apperrors.NotFound("video", c.Param("id"))
	case errors.Is(err, videos.ErrAttemptInProgress):
		err = apperrors.Conflict("video is already being processed")
	case errors.Is(err, models.ErrInvalidTransition):
		err = apperrors.Conflict("video status does not allow this operation")
	}

	status := apperrors.GetHTTPCode(err)
	resp := ErrorResponse{
		Error: apperrors.UserMessage(err, http.StatusText(status)),
		Code:  string(apperrors.GetCode(err)),
	}
	if appErr, ok := apperrors.As(err); ok && len(appErr.Details) > 0 {
		resp.Details = appErr.Details
	}
	c.JSON(status, resp)
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: string(apperrors.ErrCodeValidation)})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: message, Code: string(apperrors.ErrCodeNotFound)})
}

// SendUnauthorized sends a standardized unauthorized response
func SendUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Error: message, Code: string(apperrors.ErrCodeUnauthorized)})
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// SendCreated sends a standardized created response with data
func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

// SendAccepted sends a standardized accepted response with data
func SendAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Data: data})
}
