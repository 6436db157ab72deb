package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/acuityrisk/sanctionscan/internal/assessment"
	"github.com/acuityrisk/sanctionscan/internal/screening"
)

type screeningRequest struct {
	CompanyName string   `json:"company_name" binding:"required"`
	Threshold   float64  `json:"threshold"`
	Sources     []string `json:"sources"`
}

type assessmentScreeningRequest struct {
	Threshold float64  `json:"threshold"`
	Sources   []string `json:"sources"`
}

type createAssessmentRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	Industry    string `json:"industry"`
	CreatedBy   string `json:"created_by"`
}

// resolveSources maps requested source names to sources, defaulting to all
// registered sources in registration order.
func (s *Server) resolveSources(names []string) ([]screening.Source, string) {
	if len(names) == 0 {
		names = s.sourceOrder
	}
	out := make([]screening.Source, 0, len(names))
	for _, name := range names {
		src, ok := s.sources[name]
		if !ok {
			return nil, name
		}
		out = append(out, src)
	}
	return out, ""
}

func (s *Server) screen(c *gin.Context, req screeningRequest, srcs []screening.Source) []*screening.SearchResult {
	results := make([]*screening.SearchResult, 0, len(srcs))
	for _, src := range srcs {
		results = append(results, s.engine.Search(c.Request.Context(), src, req.CompanyName, req.Threshold))
	}
	return results
}

// screenAdHoc screens a name without persisting anything.
func (s *Server) screenAdHoc(c *gin.Context) {
	var req screeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	srcs, unknown := s.resolveSources(req.Sources)
	if unknown != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source: " + unknown})
		return
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = s.engine.DefaultThreshold()
	}
	c.JSON(http.StatusOK, gin.H{
		"company_name": req.CompanyName,
		"threshold":    threshold,
		"results":      s.screen(c, req, srcs),
	})
}

// refreshSource drops the cached list for a source. The next screening that
// touches the source downloads a fresh copy.
func (s *Server) refreshSource(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.sources[name]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + name})
		return
	}
	s.engine.InvalidateList(name)
	s.logger.Info("Invalidated cached sanctions list", zap.String("source", name))
	c.JSON(http.StatusAccepted, gin.H{"source": name, "status": "refresh scheduled"})
}

func (s *Server) createAssessment(c *gin.Context) {
	var req createAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := s.store.CreateAssessment(c.Request.Context(), req.CompanyName, req.Industry, req.CreatedBy)
	if err != nil {
		s.logger.Error("Failed to create assessment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create assessment"})
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) listAssessments(c *gin.Context) {
	list, err := s.store.ListAssessments(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assessments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list})
}

func (s *Server) getAssessment(c *gin.Context) {
	id, a, ok := s.loadAssessment(c)
	if !ok {
		return
	}

	cost, err := s.store.AssessmentCost(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate cost"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessment": a, "total_cost": cost})
}

// runAssessmentScreening screens the assessment's company against the
// requested sources, persists every envelope and derived finding, and moves
// the assessment to completed (or failed when any source errored).
func (s *Server) runAssessmentScreening(c *gin.Context) {
	id, a, ok := s.loadAssessment(c)
	if !ok {
		return
	}

	// Body is optional: an empty body screens all sources at the default
	// threshold.
	var opts assessmentScreeningRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	req := screeningRequest{
		CompanyName: a.CompanyName,
		Threshold:   opts.Threshold,
		Sources:     opts.Sources,
	}

	srcs, unknown := s.resolveSources(req.Sources)
	if unknown != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source: " + unknown})
		return
	}

	ctx := c.Request.Context()
	if err := s.store.UpdateStatus(ctx, id, assessment.StatusScreening, nil); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update assessment"})
		return
	}

	results := s.screen(c, req, srcs)
	anyError := false
	for _, res := range results {
		if res.Status == screening.StatusError {
			anyError = true
		}
		if err := s.store.SaveResult(ctx, id, res); err != nil {
			s.logger.Error("Failed to persist screening result",
				zap.String("assessment_id", id.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist results"})
			return
		}
	}

	cost, err := s.store.AssessmentCost(ctx, id)
	if err != nil {
		cost = decimal.Zero
	}
	finalStatus := assessment.StatusCompleted
	if anyError {
		finalStatus = assessment.StatusFailed
	}
	if err := s.store.UpdateStatus(ctx, id, finalStatus, &cost); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update assessment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessment_id": id,
		"status":        finalStatus,
		"results":       results,
	})
}

func (s *Server) getFindings(c *gin.Context) {
	id, _, ok := s.loadAssessment(c)
	if !ok {
		return
	}
	findings, err := s.store.GetFindings(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load findings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": findings})
}

func (s *Server) getResponses(c *gin.Context) {
	id, _, ok := s.loadAssessment(c)
	if !ok {
		return
	}
	responses, err := s.store.GetResponses(c.Request.Context(), id, c.Query("api_name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load responses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": responses})
}

func (s *Server) loadAssessment(c *gin.Context) (uuid.UUID, *assessment.Assessment, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assessment id"})
		return uuid.Nil, nil, false
	}
	a, err := s.store.GetAssessment(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "assessment not found"})
		return uuid.Nil, nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load assessment"})
		return uuid.Nil, nil, false
	}
	return id, a, true
}
