package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Format: "json", Output: &buf})

	log.With(logrus.Fields{"video_id": "v-1"}).Info("stage finished")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stage finished", entry["msg"])
	assert.Equal(t, "v-1", entry["video_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_LevelFallback(t *testing.T) {
	log := New(Options{Level: "loud", Output: &bytes.Buffer{}})
	assert.Equal(t, logrus.InfoLevel, log.Logger.GetLevel())
}

func TestWithRequest(t *testing.T) {
	log := Discard()

	req := httptest.NewRequest("POST", "/api/v1/process-video", nil)
	req.Header.Set("X-Request-ID", "req-42")
	entry := log.WithRequest(req)
	assert.Equal(t, "req-42", entry.Data["req_id"])
	assert.Equal(t, "/api/v1/process-video", entry.Data["path"])

	generated := log.WithRequest(httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, generated.Data["req_id"])
}

func TestWithError(t *testing.T) {
	log := Discard()
	assert.Equal(t, "boom", log.WithError(errors.New("boom")).Data["error"])
	assert.NotContains(t, log.WithError(nil).Data, "error")
}
