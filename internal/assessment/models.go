// Package assessment persists screening runs: the assessment record itself,
// the raw per-source response envelopes, and the risk findings derived from
// matches.
package assessment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Assessment statuses.
const (
	StatusStarted   = "started"
	StatusScreening = "screening"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Assessment is one screening run for one company.
type Assessment struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CompanyName string          `json:"company_name" gorm:"not null;index"`
	Industry    string          `json:"industry,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	Status      string          `json:"status" gorm:"not null;index"`
	TotalCost   decimal.Decimal `json:"total_cost" gorm:"type:decimal(12,4)"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (a *Assessment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// APIResponse stores the raw envelope returned by one source during an
// assessment, for audit and replay.
type APIResponse struct {
	ID           uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	AssessmentID uuid.UUID       `json:"assessment_id" gorm:"type:uuid;index;not null"`
	APIName      string          `json:"api_name" gorm:"not null;index"`
	ResponseData []byte          `json:"response_data" gorm:"type:blob"`
	APICost      decimal.Decimal `json:"api_cost" gorm:"type:decimal(12,4)"`
	FetchedAt    time.Time       `json:"fetched_at" gorm:"index"`
}

func (r *APIResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now().UTC()
	}
	return nil
}

// RiskFinding is a single reviewable fact derived from a screening match.
type RiskFinding struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	AssessmentID uuid.UUID `json:"assessment_id" gorm:"type:uuid;index;not null"`
	RiskCategory string    `json:"risk_category" gorm:"not null"`
	Severity     string    `json:"severity" gorm:"not null"`
	Description  string    `json:"description" gorm:"type:text"`
	SourceAPI    string    `json:"source_api" gorm:"not null"`
	RawData      []byte    `json:"raw_data,omitempty" gorm:"type:blob"`
	CreatedAt    time.Time `json:"created_at"`
}

func (f *RiskFinding) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
