package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/scoring"
	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"gorm.io/datatypes"
)

// analysisRow is the flat column layout of the analyses table
type analysisRow struct {
	ID                     string                              `json:"id"`
	VideoID                string                              `json:"video_id"`
	ScoreRapport           *int                                `json:"score_rapport"`
	ScoreSituation         *int                                `json:"score_situation"`
	ScoreProblem           *int                                `json:"score_problem"`
	ScoreImplication       *int                                `json:"score_implication"`
	ScoreNeedPayoff        *int                                `json:"score_need_payoff"`
	ScorePresentation      *int                                `json:"score_presentation"`
	ScoreClosing           *int                                `json:"score_closing"`
	ScoreObjectionHandling *int                                `json:"score_objection_handling"`
	ScorePaymentCommitment *int                                `json:"score_payment_commitment"`
	GlobalScore            *float64                            `json:"global_score"`
	Insights               datatypes.JSONType[models.Insights] `json:"insights"`
	Model                  string                              `json:"model"`
	ProcessingMS           int64                               `json:"processing_ms"`
	CreatedAt              time.Time                           `json:"created_at"`
}

func toRow(a *models.Analysis) analysisRow {
	s := a.Scores
	return analysisRow{
		ID:                     a.ID,
		VideoID:                a.VideoID,
		ScoreRapport:           s.Rapport,
		ScoreSituation:         s.Situation,
		ScoreProblem:           s.Problem,
		ScoreImplication:       s.Implication,
		ScoreNeedPayoff:        s.NeedPayoff,
		ScorePresentation:      s.Presentation,
		ScoreClosing:           s.Closing,
		ScoreObjectionHandling: s.ObjectionHandling,
		ScorePaymentCommitment: s.PaymentCommitment,
		GlobalScore:            a.GlobalScore,
		Insights:               a.Insights,
		Model:                  a.Model,
		ProcessingMS:           a.ProcessingMS,
		CreatedAt:              a.CreatedAt,
	}
}

func (row analysisRow) analysis() models.Analysis {
	return models.Analysis{
		ID:      row.ID,
		VideoID: row.VideoID,
		Scores: models.Scores{
			Rapport:           row.ScoreRapport,
			Situation:         row.ScoreSituation,
			Problem:           row.ScoreProblem,
			Implication:       row.ScoreImplication,
			NeedPayoff:        row.ScoreNeedPayoff,
			Presentation:      row.ScorePresentation,
			Closing:           row.ScoreClosing,
			ObjectionHandling: row.ScoreObjectionHandling,
			PaymentCommitment: row.ScorePaymentCommitment,
		},
		GlobalScore:  row.GlobalScore,
		Insights:     row.Insights,
		Model:        row.Model,
		ProcessingMS: row.ProcessingMS,
		CreatedAt:    row.CreatedAt,
	}
}

func analysesFrom(rows []analysisRow) []models.Analysis {
	out := make([]models.Analysis, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.analysis())
	}
	return out
}

// AnalysisRepository implements scoring.Repository over PostgREST
type AnalysisRepository struct {
	client *postgrest.Client
}

var _ scoring.Repository = (*AnalysisRepository)(nil)

func NewAnalysisRepository(client *postgrest.Client) *AnalysisRepository {
	return &AnalysisRepository{client: client}
}

func (r *AnalysisRepository) Create(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.GlobalScore == nil {
		a.GlobalScore = a.Scores.Global()
	}
	a.CreatedAt = time.Now().UTC()

	var rows []analysisRow
	if _, err := r.client.From(analysesTable).Insert(toRow(a), false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return fmt.Errorf("creating analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) ListByVideo(ctx context.Context, videoID string) ([]models.Analysis, error) {
	var rows []analysisRow
	_, err := r.client.From(analysesTable).
		Select("*", "", false).
		Eq("video_id", videoID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return analysesFrom(rows), nil
}

func (r *AnalysisRepository) LatestByVideo(ctx context.Context, videoID string) (*models.Analysis, error) {
	var rows []analysisRow
	_, err := r.client.From(analysesTable).
		Select("*", "", false).
		Eq("video_id", videoID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("getting analysis: %w", err)
	}
	if len(rows) == 0 {
		return nil, scoring.ErrAnalysisNotFound
	}
	a := rows[0].analysis()
	return &a, nil
}

func (r *AnalysisRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]models.Analysis, error) {
	var rows []analysisRow
	query := r.client.From(analysesTable).
		Select("*", "", false).
		Gte("created_at", timestamp(since)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true})
	if limit > 0 {
		query = query.Limit(limit, "")
	}
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return analysesFrom(rows), nil
}
