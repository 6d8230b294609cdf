package webhooks

import (
	"net/http"
	"strconv"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/services/transcription"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Transcription receives job notifications from the asynchronous
// transcription provider
// @Summary      Transcription webhook
// @Description  Called by the transcription provider when a job changes state. The key query parameter must match the configured webhook secret and is checked before anything else. Authentic notifications are always acknowledged with 200 so the provider does not retry; a failure to apply one is recorded on the video and echoed in the error field. Notifications for a job of an earlier attempt are acknowledged without changes.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        videoId query string true "Video ID"
// @Param        attempt query int    false "Attempt the job was submitted for"
// @Param        key     query string true "Webhook secret"
// @Param        payload body transcription.CallbackPayload true "Provider notification"
// @Success      200 {object} types.WebhookAck
// @Failure      400 {object} types.ErrorResponse
// @Failure      401 {object} types.ErrorResponse
// @Router       /api/v1/webhooks/transcription [post]
func Transcription(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		videoID := c.Query("videoId")
		key := c.Query("key")

		if err := deps.Pipeline.VerifyCallbackKey(key); err != nil {
			deps.Log().WithRequest(c.Request).WithField("video_id", videoID).Warn("webhook rejected: invalid key")
			types.SendError(c, err)
			return
		}

		var payload transcription.CallbackPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			types.SendBadRequest(c, "Invalid request body")
			return
		}
		if videoID == "" {
			types.SendBadRequest(c, "videoId is required")
			return
		}
		payload.Attempt, _ = strconv.Atoi(c.Query("attempt"))

		log := deps.Log().WithRequest(c.Request).WithFields(logrus.Fields{
			"video_id": videoID,
			"job_id":   payload.TranscriptID,
			"status":   payload.Status,
			"attempt":  payload.Attempt,
		})

		out, err := deps.Pipeline.HandleCallback(c.Request.Context(), videoID, key, payload)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrCodeUnauthorized) {
				log.Warn("webhook rejected: invalid key")
				types.SendError(c, err)
				return
			}
			log.WithField("error", err.Error()).Error("webhook could not be applied")
			c.JSON(http.StatusOK, types.WebhookAck{
				Received: true,
				Error:    apperrors.UserMessage(err, "webhook processing failed"),
			})
			return
		}

		if out != nil && out.Transcription == nil {
			log.Info("webhook acknowledged without changes")
		} else {
			log.Info("webhook applied")
		}
		c.JSON(http.StatusOK, types.WebhookAck{Received: true})
	}
}
