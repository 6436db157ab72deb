package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/acuityrisk/sanctionscan/internal/screening"
)

// Store wraps the relational persistence for assessments.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the schema and returns a store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Assessment{}, &APIResponse{}, &RiskFinding{}); err != nil {
		return nil, fmt.Errorf("failed to migrate assessment schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateAssessment starts a new assessment for a company.
func (s *Store) CreateAssessment(ctx context.Context, companyName, industry, createdBy string) (*Assessment, error) {
	a := &Assessment{
		CompanyName: companyName,
		Industry:    industry,
		CreatedBy:   createdBy,
		Status:      StatusStarted,
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, fmt.Errorf("failed to create assessment: %w", err)
	}
	return a, nil
}

// UpdateStatus moves an assessment to a new status. A non-nil totalCost also
// updates the accumulated cost.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string, totalCost *decimal.Decimal) error {
	updates := map[string]interface{}{"status": status}
	if totalCost != nil {
		updates["total_cost"] = *totalCost
	}
	result := s.db.WithContext(ctx).Model(&Assessment{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update assessment %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveResult stores a screening envelope as a raw API response and derives
// one risk finding per match. The envelope is stored even for clear and
// error outcomes so the audit trail shows what each source actually said.
func (s *Store) SaveResult(ctx context.Context, assessmentID uuid.UUID, result *screening.SearchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode screening result: %w", err)
	}

	response := &APIResponse{
		AssessmentID: assessmentID,
		APIName:      result.Source,
		ResponseData: payload,
		APICost:      decimal.NewFromFloat(result.APICost),
	}
	if err := s.db.WithContext(ctx).Create(response).Error; err != nil {
		return fmt.Errorf("failed to save API response: %w", err)
	}

	for i := range result.Matches {
		if err := s.recordFinding(ctx, assessmentID, result.Source, &result.Matches[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordFinding(ctx context.Context, assessmentID uuid.UUID, source string, match *screening.MatchResult) error {
	raw, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to encode match: %w", err)
	}
	finding := &RiskFinding{
		AssessmentID: assessmentID,
		RiskCategory: "Sanctions",
		Severity:     string(match.Severity),
		Description:  findingDescription(source, match),
		SourceAPI:    source,
		RawData:      raw,
	}
	if err := s.db.WithContext(ctx).Create(finding).Error; err != nil {
		return fmt.Errorf("failed to save risk finding: %w", err)
	}
	return nil
}

// findingDescription renders the analyst-facing summary line for a match.
// Each source has its own wording.
func findingDescription(source string, match *screening.MatchResult) string {
	switch source {
	case "OFAC_SDN":
		return fmt.Sprintf("Potential OFAC match: %s (score: %.2f)", match.Name, match.MatchScore)
	case "EU_Sanctions":
		programme := "N/A"
		if len(match.Programs) > 0 {
			programme = match.Programs[0]
		}
		return fmt.Sprintf("EU Sanctions match: %s (score: %.2f) - Programme: %s",
			match.Name, match.MatchScore, programme)
	case "OpenSanctions":
		return fmt.Sprintf("Potential match in OpenSanctions: %s (score: %.2f) - Programs: %s",
			match.Name, match.MatchScore, strings.Join(match.Programs, ", "))
	default:
		return fmt.Sprintf("Potential %s match: %s (score: %.2f)", source, match.Name, match.MatchScore)
	}
}

// GetAssessment loads one assessment by ID.
func (s *Store) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	var a Assessment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssessments returns the most recent assessments, newest first.
func (s *Store) ListAssessments(ctx context.Context, limit int) ([]Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Assessment
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// GetFindings returns all risk findings for an assessment.
func (s *Store) GetFindings(ctx context.Context, assessmentID uuid.UUID) ([]RiskFinding, error) {
	var out []RiskFinding
	err := s.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// GetResponses returns the raw source envelopes for an assessment, optionally
// filtered to one source.
func (s *Store) GetResponses(ctx context.Context, assessmentID uuid.UUID, apiName string) ([]APIResponse, error) {
	q := s.db.WithContext(ctx).Where("assessment_id = ?", assessmentID)
	if apiName != "" {
		q = q.Where("api_name = ?", apiName)
	}
	var out []APIResponse
	err := q.Order("fetched_at").Find(&out).Error
	return out, err
}

// AssessmentCost sums the per-call costs recorded for an assessment.
func (s *Store) AssessmentCost(ctx context.Context, assessmentID uuid.UUID) (decimal.Decimal, error) {
	var responses []APIResponse
	if err := s.db.WithContext(ctx).
		Select("api_cost").
		Where("assessment_id = ?", assessmentID).
		Find(&responses).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range responses {
		total = total.Add(r.APICost)
	}
	return total, nil
}

// UsageCount counts calls made to one source since a point in time, for
// rate-budget reporting.
func (s *Store) UsageCount(ctx context.Context, apiName string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&APIResponse{}).
		Where("api_name = ? AND fetched_at >= ?", apiName, since).
		Count(&count).Error
	return count, err
}
