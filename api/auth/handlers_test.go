package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/callmetrics/callmetrics-api/api/types"
	authService "github.com/callmetrics/callmetrics-api/internal/services/auth"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-jwt-secret"
	testDevToken = "valid-dev-token"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := authService.NewService(config.AuthConfig{
		JWTSecret:  testSecret,
		DevEnabled: true,
		DevToken:   testDevToken,
	})
	require.NoError(t, err)

	handler := NewHandler(svc)
	router := gin.New()
	router.GET("/me", handler.AuthMiddleware(), handler.Me)
	return router
}

func signToken(t *testing.T, sub string, expiresIn time.Duration) string {
	t.Helper()
	claims := authService.Claims{
		Sub:   sub,
		Email: sub + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name          string
		header        string
		expectedCode  int
		expectedError string
		expectedUser  string
	}{
		{
			name:          "missing Authorization header",
			expectedCode:  http.StatusUnauthorized,
			expectedError: "Authorization header required",
		},
		{
			name:          "invalid Authorization format",
			header:        "Token abc",
			expectedCode:  http.StatusUnauthorized,
			expectedError: "Invalid authorization header format",
		},
		{
			name:          "invalid token",
			header:        "Bearer invalid-token",
			expectedCode:  http.StatusUnauthorized,
			expectedError: "Invalid or expired token",
		},
		{
			name:          "expired token",
			header:        "Bearer " + signToken(t, "user-1", -time.Minute),
			expectedCode:  http.StatusUnauthorized,
			expectedError: "Token expired",
		},
		{
			name:         "valid signed token",
			header:       "Bearer " + signToken(t, "user-1", time.Hour),
			expectedCode: http.StatusOK,
			expectedUser: "user-1",
		},
		{
			name:         "dev token",
			header:       "Bearer " + testDevToken,
			expectedCode: http.StatusOK,
			expectedUser: "dev-user-001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				var resp types.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.expectedError, resp.Error)
				return
			}

			var resp struct {
				Success bool     `json:"success"`
				Data    UserInfo `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.expectedUser, resp.Data.ID)
		})
	}
}

func TestAuthMiddleware_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", NewHandler(nil).AuthMiddleware(), NewHandler(nil).Me)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_Me_MissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/me", nil)

	(&Handler{}).Me(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
