package videos

import (
	"errors"
	"strings"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	"github.com/callmetrics/callmetrics-api/internal/services/scoring"
	videoService "github.com/callmetrics/callmetrics-api/internal/services/videos"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// loadOwned fetches the record named by the id path parameter and checks it
// belongs to the caller. Records of other users are reported as missing.
func loadOwned(c *gin.Context, deps *types.Dependencies, id string) (*models.Video, bool) {
	video, err := deps.Videos.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, videoService.ErrVideoNotFound) {
			types.SendError(c, apperrors.NotFound("video", id))
			return nil, false
		}
		types.SendError(c, err)
		return nil, false
	}
	if video.UserID != types.UserID(c) {
		types.SendError(c, apperrors.NotFound("video", id))
		return nil, false
	}
	return video, true
}

// Create registers a new recording
// @Summary      Create video
// @Description  Register a call recording for processing. storage_path is required for direct-upload, source_url for remote-url and cloud-drive-legacy.
// @Tags         videos
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        video body types.CreateVideoRequest true "Recording"
// @Success      201 {object} types.SuccessResponse{data=models.Video}
// @Failure      400 {object} types.ErrorResponse
// @Failure      401 {object} types.ErrorResponse
// @Router       /api/v1/videos [post]
func Create(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreateVideoRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		mode := models.AcquisitionMode(strings.TrimSpace(req.Mode))
		locator := req.SourceURL
		if mode.NeedsStoragePath() {
			locator = req.StoragePath
		}

		var opts []videoService.CreateOption
		if req.MimeType != "" {
			opts = append(opts, videoService.WithMimeType(req.MimeType))
		}
		if req.FileSize > 0 {
			opts = append(opts, videoService.WithFileSize(req.FileSize))
		}
		if req.DurationSeconds > 0 {
			opts = append(opts, videoService.WithDuration(req.DurationSeconds))
		}

		video, err := deps.Videos.Create(c.Request.Context(), types.UserID(c), mode, locator, req.Title, opts...)
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendCreated(c, video)
	}
}

// List returns the caller's recordings, newest first
// @Summary      List videos
// @Tags         videos
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size (max 100)" default(20)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} types.SuccessResponse{data=types.ListResponse}
// @Failure      401 {object} types.ErrorResponse
// @Router       /api/v1/videos [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := types.ParsePagination(c)

		items, total, err := deps.Videos.ListByOwner(c.Request.Context(), types.UserID(c), limit, offset)
		if err != nil {
			types.SendError(c, err)
			return
		}
		if items == nil {
			items = []models.Video{}
		}

		types.SendSuccess(c, types.ListResponse{Items: items, Total: total, Limit: limit, Offset: offset})
	}
}

// Get returns one recording with its newest analysis and background job
// @Summary      Get video
// @Tags         videos
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Video ID"
// @Success      200 {object} types.SuccessResponse{data=types.VideoDetail}
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/videos/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		video, ok := loadOwned(c, deps, c.Param("id"))
		if !ok {
			return
		}

		ctx := c.Request.Context()
		detail := types.VideoDetail{Video: video}

		if deps.Analyses != nil {
			latest, err := deps.Analyses.Latest(ctx, video.ID)
			switch {
			case err == nil:
				detail.LatestAnalysis = latest
			case !errors.Is(err, scoring.ErrAnalysisNotFound):
				types.SendError(c, err)
				return
			}
		}

		if deps.Jobs != nil {
			job, err := deps.Jobs.GetJobForVideo(ctx, video.ID)
			switch {
			case err == nil:
				detail.Job = types.NewJobStatus(job)
			case !errors.Is(err, jobs.ErrJobNotFound):
				types.SendError(c, err)
				return
			}
		}

		types.SendSuccess(c, detail)
	}
}

// Delete removes a recording that is not being processed
// @Summary      Delete video
// @Tags         videos
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Video ID"
// @Success      200 {object} types.SuccessResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Video is being processed"
// @Router       /api/v1/videos/{id} [delete]
func Delete(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		video, ok := loadOwned(c, deps, c.Param("id"))
		if !ok {
			return
		}

		if err := deps.Videos.Delete(c.Request.Context(), video.ID); err != nil {
			types.SendError(c, err)
			return
		}

		deps.Log().With(logrus.Fields{"video_id": video.ID, "user_id": video.UserID}).Info("video deleted")
		types.SendSuccess(c, gin.H{"id": video.ID, "deleted": true})
	}
}

// ListTranscriptions returns every transcript stored for a recording
// @Summary      List transcriptions
// @Tags         videos
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Video ID"
// @Success      200 {object} types.SuccessResponse{data=[]models.Transcription}
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/videos/{id}/transcriptions [get]
func ListTranscriptions(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		video, ok := loadOwned(c, deps, c.Param("id"))
		if !ok {
			return
		}

		items, err := deps.Transcriptions.List(c.Request.Context(), video.ID)
		if err != nil {
			types.SendError(c, err)
			return
		}
		if items == nil {
			items = []models.Transcription{}
		}
		types.SendSuccess(c, items)
	}
}

// ListAnalyses returns every analysis stored for a recording, newest first
// @Summary      List analyses
// @Tags         videos
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Video ID"
// @Success      200 {object} types.SuccessResponse{data=[]models.Analysis}
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/videos/{id}/analyses [get]
func ListAnalyses(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		video, ok := loadOwned(c, deps, c.Param("id"))
		if !ok {
			return
		}

		items, err := deps.Analyses.List(c.Request.Context(), video.ID)
		if err != nil {
			types.SendError(c, err)
			return
		}
		if items == nil {
			items = []models.Analysis{}
		}
		types.SendSuccess(c, items)
	}
}
