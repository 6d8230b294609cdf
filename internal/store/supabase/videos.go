package supabase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/videos"
	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
)

// VideoRepository implements videos.Repository over PostgREST
type VideoRepository struct {
	client *postgrest.Client
	now    func() time.Time
}

var _ videos.Repository = (*VideoRepository)(nil)

// NewVideoRepository creates the REST backed video repository
func NewVideoRepository(client *postgrest.Client) *VideoRepository {
	return &VideoRepository{client: client, now: time.Now}
}

func (r *VideoRepository) Create(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	now := r.now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	if video.Status == "" {
		video.Status = models.VideoStatusPending
	}

	var rows []models.Video
	if _, err := r.client.From(videosTable).Insert(video, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*models.Video, error) {
	var rows []models.Video
	_, err := r.client.From(videosTable).
		Select("*", "", false).
		Eq("id", id).
		Is("deleted_at", "null").
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}
	if len(rows) == 0 {
		return nil, videos.ErrVideoNotFound
	}
	return &rows[0], nil
}

// UpdateIf filters on status and attempt and asks for the changed rows back,
// so an empty answer means another writer got there first
func (r *VideoRepository) UpdateIf(ctx context.Context, id string, status models.VideoStatus, attempt int, updates map[string]interface{}) (bool, error) {
	var rows []models.Video
	_, err := r.client.From(videosTable).
		Update(r.stamp(updates), "representation", "").
		Eq("id", id).
		Eq("status", string(status)).
		Eq("attempt", strconv.Itoa(attempt)).
		Is("deleted_at", "null").
		ExecuteTo(&rows)
	if err != nil {
		return false, fmt.Errorf("updating video: %w", err)
	}
	return len(rows) > 0, nil
}

func (r *VideoRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	var rows []models.Video
	_, err := r.client.From(videosTable).
		Update(r.stamp(updates), "representation", "").
		Eq("id", id).
		Is("deleted_at", "null").
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("updating video: %w", err)
	}
	if len(rows) == 0 {
		return videos.ErrVideoNotFound
	}
	return nil
}

func (r *VideoRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Video, int64, error) {
	var rows []models.Video
	total, err := r.client.From(videosTable).
		Select("*", "exact", false).
		Eq("user_id", ownerID).
		Is("deleted_at", "null").
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(offset, offset+limit-1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, 0, fmt.Errorf("listing videos: %w", err)
	}
	return rows, total, nil
}

func (r *VideoRepository) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Video, error) {
	var rows []models.Video
	_, err := r.client.From(videosTable).
		Select("*", "", false).
		Eq("status", string(models.VideoStatusProcessing)).
		Lt("processing_started_at", timestamp(startedBefore)).
		Is("deleted_at", "null").
		Order("processing_started_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("listing stale videos: %w", err)
	}
	return rows, nil
}

// Delete soft deletes the record
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	return r.Update(ctx, id, map[string]interface{}{"deleted_at": timestamp(r.now())})
}

// stamp copies updates and sets updated_at, which the database does not
// maintain on its own
func (r *VideoRepository) stamp(updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		out[k] = v
	}
	out["updated_at"] = timestamp(r.now())
	return out
}
