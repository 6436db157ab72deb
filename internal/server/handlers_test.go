package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/acuityrisk/sanctionscan/internal/assessment"
	"github.com/acuityrisk/sanctionscan/internal/config"
	"github.com/acuityrisk/sanctionscan/internal/screening"
)

// stubSource is a LocalSource backed by a fixed entity list.
type stubSource struct {
	name     string
	entities []screening.ListEntity
	err      error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Normalizer() *screening.Normalizer { return screening.NewWesternNormalizer() }

func (s *stubSource) FetchAndParse(ctx context.Context) ([]screening.ListEntity, error) {
	return s.entities, s.err
}

// stubDelegated is a DelegatedSource that fails every call.
type stubDelegated struct {
	name string
	err  error
}

func (s *stubDelegated) Name() string { return s.name }

func (s *stubDelegated) Match(ctx context.Context, rawName string, threshold float64) ([]screening.MatchResult, error) {
	return nil, s.err
}

func newTestServer(t *testing.T, srcs ...screening.Source) *Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store, err := assessment.NewStore(db)
	require.NoError(t, err)

	cache := screening.NewListCache(6*time.Hour, time.Minute, nil, zap.NewNop().Sugar())
	engine := screening.NewEngine(cache, 0.7, zap.NewNop().Sugar())

	if len(srcs) == 0 {
		srcs = []screening.Source{
			&stubSource{name: "OFAC_SDN", entities: []screening.ListEntity{
				{Name: "GAZPROM", Type: screening.EntityTypeEntity, Programs: []string{"RUSSIA-EO14024"}},
			}},
			&stubSource{name: "EU_Sanctions", entities: []screening.ListEntity{
				{Name: "Cham Holding", Type: screening.EntityTypeEntity},
			}},
		}
	}

	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, engine, srcs, store, zap.NewNop())
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthListsSources(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string   `json:"status"`
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{"OFAC_SDN", "EU_Sanctions"}, body.Sources)
}

func TestScreenAdHocAllSources(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/screenings", map[string]any{
		"company_name": "Gazprom",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CompanyName string                    `json:"company_name"`
		Threshold   float64                   `json:"threshold"`
		Results     []*screening.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	// No threshold in the request, so the engine default is reported back.
	assert.Equal(t, 0.7, body.Threshold)
	require.Len(t, body.Results, 2)
	assert.Equal(t, screening.StatusFoundMatches, body.Results[0].Status)
	assert.Equal(t, 1.0, body.Results[0].Matches[0].MatchScore)
	assert.Equal(t, screening.StatusClear, body.Results[1].Status)
}

func TestScreenAdHocNamedSource(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/screenings", map[string]any{
		"company_name": "Cham Holding",
		"sources":      []string{"EU_Sanctions"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []*screening.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "EU_Sanctions", body.Results[0].Source)
	assert.Equal(t, screening.StatusFoundMatches, body.Results[0].Status)
}

func TestScreenAdHocRejectsUnknownSourceAndMissingName(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/screenings", map[string]any{
		"company_name": "Gazprom",
		"sources":      []string{"UN_Sanctions"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown source")

	rec = doJSON(t, s, http.MethodPost, "/api/v1/screenings", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshSourceDropsCachedList(t *testing.T) {
	src := &stubSource{name: "OFAC_SDN", entities: []screening.ListEntity{
		{Name: "GAZPROM", Type: screening.EntityTypeEntity},
	}}
	s := newTestServer(t, src)

	screen := func() screening.Status {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/screenings", map[string]any{
			"company_name": "Gazprom",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Results []*screening.SearchResult `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Results, 1)
		return body.Results[0].Status
	}

	require.Equal(t, screening.StatusFoundMatches, screen())

	// The list changes upstream, but the cached copy is still served.
	src.entities = nil
	assert.Equal(t, screening.StatusFoundMatches, screen())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sources/OFAC_SDN/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, screening.StatusClear, screen())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/sources/UN_Sanctions/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssessmentLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/assessments", map[string]any{
		"company_name": "Gazprom",
		"industry":     "Energy",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created assessment.Assessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, assessment.StatusStarted, created.Status)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%s/screenings", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run struct {
		Status  string                    `json:"status"`
		Results []*screening.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, assessment.StatusCompleted, run.Status)
	assert.Len(t, run.Results, 2)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%s/findings", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var findings struct {
		Findings []assessment.RiskFinding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findings))
	require.Len(t, findings.Findings, 1)
	assert.Equal(t, "Potential OFAC match: GAZPROM (score: 1.00)", findings.Findings[0].Description)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%s/responses?api_name=OFAC_SDN", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var responses struct {
		Responses []assessment.APIResponse `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &responses))
	require.Len(t, responses.Responses, 1)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%s", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed")
}

func TestAssessmentScreeningMarksFailedOnSourceError(t *testing.T) {
	s := newTestServer(t,
		&stubSource{name: "OFAC_SDN", entities: []screening.ListEntity{
			{Name: "GAZPROM", Type: screening.EntityTypeEntity},
		}},
		&stubDelegated{name: "OpenSanctions", err: fmt.Errorf("OpenSanctions rejected the API key (status 401)")},
	)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/assessments", map[string]any{
		"company_name": "Gazprom",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created assessment.Assessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%s/screenings", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run struct {
		Status  string                    `json:"status"`
		Results []*screening.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	// The failing source must never read as clear.
	assert.Equal(t, assessment.StatusFailed, run.Status)
	require.Len(t, run.Results, 2)
	assert.Equal(t, screening.StatusError, run.Results[1].Status)
	assert.NotEmpty(t, run.Results[1].Error)
}

func TestGetAssessmentInvalidAndMissingID(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/assessments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/assessments/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
