package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		setupDeps      func() *types.Dependencies
		expectedStatus int
		expectedHealth string
		expectedDB     string
		expectedLinked bool
	}{
		{
			name: "healthy with database",
			setupDeps: func() *types.Dependencies {
				db, err := database.Initialize(":memory:", false)
				require.NoError(t, err)
				return &types.Dependencies{DB: db}
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedDB:     "healthy",
			expectedLinked: true,
		},
		{
			name: "healthy without database",
			setupDeps: func() *types.Dependencies {
				return &types.Dependencies{}
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedDB:     "not configured",
		},
		{
			name: "supabase driver",
			setupDeps: func() *types.Dependencies {
				return &types.Dependencies{StorageDriver: "supabase"}
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedDB:     "remote",
			expectedLinked: true,
		},
		{
			name: "unhealthy with closed database",
			setupDeps: func() *types.Dependencies {
				db, err := database.Initialize(":memory:", false)
				require.NoError(t, err)
				sqlDB, err := db.DB.DB()
				require.NoError(t, err)
				require.NoError(t, sqlDB.Close())
				return &types.Dependencies{DB: db}
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "unhealthy",
			expectedDB:     "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := tt.setupDeps()
			defer func() {
				if deps.DB != nil {
					_ = deps.DB.Close()
				}
			}()

			router := gin.New()
			RegisterRoutes(router, deps)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response struct {
				Status   string `json:"status"`
				Database struct {
					Status    string `json:"status"`
					Connected bool   `json:"connected"`
				} `json:"database"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedHealth, response.Status)
			assert.Equal(t, tt.expectedDB, response.Database.Status)
			assert.Equal(t, tt.expectedLinked, response.Database.Connected)
		})
	}
}
