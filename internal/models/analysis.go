package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Scores holds the nine rubric scores. Each is nil when the model could not
// assess the dimension, otherwise within [0, 100].
type Scores struct {
	Rapport           *int `json:"rapport" validate:"omitempty,min=0,max=100"`
	Situation         *int `json:"situation" validate:"omitempty,min=0,max=100"`
	Problem           *int `json:"problem" validate:"omitempty,min=0,max=100"`
	Implication       *int `json:"implication" validate:"omitempty,min=0,max=100"`
	NeedPayoff        *int `json:"need_payoff" validate:"omitempty,min=0,max=100"`
	Presentation      *int `json:"presentation" validate:"omitempty,min=0,max=100"`
	Closing           *int `json:"closing" validate:"omitempty,min=0,max=100"`
	ObjectionHandling *int `json:"objection_handling" validate:"omitempty,min=0,max=100"`
	PaymentCommitment *int `json:"payment_commitment" validate:"omitempty,min=0,max=100"`
}

// Values returns the scores in rubric order
func (s Scores) Values() []*int {
	return []*int{
		s.Rapport,
		s.Situation,
		s.Problem,
		s.Implication,
		s.NeedPayoff,
		s.Presentation,
		s.Closing,
		s.ObjectionHandling,
		s.PaymentCommitment,
	}
}

// Global is the arithmetic mean of the non-nil scores, or nil when every
// score is nil.
func (s Scores) Global() *float64 {
	var sum, n int
	for _, v := range s.Values() {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	mean := float64(sum) / float64(n)
	return &mean
}

// InBounds reports whether every present score is within [0, 100]
func (s Scores) InBounds() bool {
	for _, v := range s.Values() {
		if v != nil && (*v < 0 || *v > 100) {
			return false
		}
	}
	return true
}

// Sentiment tags a notable moment of the call
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// Moment is a notable point of the call, quoted from the transcript
type Moment struct {
	Timestamp string    `json:"timestamp"`
	Quote     string    `json:"quote" validate:"required"`
	Sentiment Sentiment `json:"sentiment" validate:"oneof=positive negative"`
	Note      string    `json:"note,omitempty"`
}

// Objection is a customer objection and how the seller handled it
type Objection struct {
	CustomerStatement string `json:"customer_statement" validate:"required"`
	SellerResponse    string `json:"seller_response"`
	Rating            int    `json:"rating" validate:"min=1,max=10"`
	BetterResponse    string `json:"better_response"`
}

// Insights is the coaching document attached to an analysis
type Insights struct {
	Summary         string      `json:"summary,omitempty"`
	Strengths       []string    `json:"strengths"`
	Weaknesses      []string    `json:"weaknesses"`
	Recommendations []string    `json:"recommendations"`
	Timeline        []Moment    `json:"timeline" validate:"dive"`
	Objections      []Objection `json:"objections" validate:"dive"`
}

// Analysis is one scoring run over a transcript. Rows are never updated;
// re-running scoring adds a row so history is kept.
type Analysis struct {
	ID           string                       `json:"id" gorm:"primaryKey;type:uuid"`
	VideoID      string                       `json:"video_id" gorm:"not null;index"`
	Scores       Scores                       `json:"scores" gorm:"embedded;embeddedPrefix:score_"`
	GlobalScore  *float64                     `json:"global_score"`
	Insights     datatypes.JSONType[Insights] `json:"insights"`
	Model        string                       `json:"model"`
	ProcessingMS int64                        `json:"processing_ms"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// BeforeCreate assigns an id and fills the global score from the components
func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.GlobalScore == nil {
		a.GlobalScore = a.Scores.Global()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Analysis) TableName() string {
	return "analyses"
}
