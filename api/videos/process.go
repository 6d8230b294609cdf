package videos

import (
	"net/http"
	"strconv"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/gin-gonic/gin"
)

// Process runs the pipeline over a recording
// @Summary      Process video
// @Description  Acquire, transcribe and score a recording. Runs inline and answers with the outcome, or with async=true queues a background job and answers 202. With the asynchronous transcription provider the inline outcome has pending=true and the record completes when the provider webhook arrives.
// @Tags         processing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body types.ProcessVideoRequest true "Video to process"
// @Param        async query bool false "Queue instead of running inline"
// @Success      200 {object} types.SuccessResponse{data=pipeline.Outcome}
// @Success      202 {object} types.SuccessResponse{data=types.JobAccepted}
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Already processing or processed"
// @Failure      422 {object} types.ErrorResponse "Audio could not be acquired or transcript unusable"
// @Failure      502 {object} types.ErrorResponse "Provider failure"
// @Failure      503 {object} types.ErrorResponse "Stage not configured"
// @Router       /api/v1/process-video [post]
func Process(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ProcessVideoRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		video, ok := loadOwned(c, deps, req.VideoID)
		if !ok {
			return
		}

		run(c, deps, video)
	}
}

// Retry returns a failed recording to pending and processes it again
// @Summary      Retry video
// @Tags         processing
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Video ID"
// @Param        async query bool false "Queue instead of running inline"
// @Success      200 {object} types.SuccessResponse{data=pipeline.Outcome}
// @Success      202 {object} types.SuccessResponse{data=types.JobAccepted}
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Video is not failed"
// @Router       /api/v1/videos/{id}/retry [post]
func Retry(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		video, ok := loadOwned(c, deps, c.Param("id"))
		if !ok {
			return
		}
		if video.Status != models.VideoStatusFailed {
			c.JSON(http.StatusConflict, types.ErrorResponse{
				Error: "only failed videos can be retried",
				Code:  "CONFLICT",
			})
			return
		}

		resubmitted, err := deps.Videos.Resubmit(c.Request.Context(), video.ID)
		if err != nil {
			types.SendError(c, err)
			return
		}

		run(c, deps, resubmitted)
	}
}

// run processes inline, or queues when the caller asked for async
func run(c *gin.Context, deps *types.Dependencies, video *models.Video) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		job, err := deps.Pipeline.Enqueue(c.Request.Context(), video.ID, types.UserID(c))
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendAccepted(c, types.JobAccepted{JobID: job.ID, VideoID: video.ID, Status: string(job.Status)})
		return
	}

	out, err := deps.Pipeline.Process(c.Request.Context(), video.ID)
	if err != nil {
		types.SendError(c, err)
		return
	}
	types.SendSuccess(c, out)
}
