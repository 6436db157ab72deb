package screening

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityForScore(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityForScore(1.0))
	assert.Equal(t, SeverityCritical, SeverityForScore(0.91))

	// The cutoff is strictly greater than 0.9, so containment hits stay
	// high, not critical.
	assert.Equal(t, SeverityHigh, SeverityForScore(0.9))
	assert.Equal(t, SeverityHigh, SeverityForScore(0.7))
}

func TestNewSearchResult_Invariants(t *testing.T) {
	clear := NewSearchResult("Acme Corp", "OFAC_SDN", nil, false)
	assert.Equal(t, StatusClear, clear.Status)
	assert.Equal(t, 0, clear.MatchCount)
	assert.NotNil(t, clear.Matches)
	assert.Empty(t, clear.Matches)
	assert.Empty(t, clear.Error)

	matches := []MatchResult{
		{ListEntity: ListEntity{Name: "ACME"}, MatchScore: 1.0, Source: "OFAC_SDN", Severity: SeverityCritical},
	}
	found := NewSearchResult("Acme Corp", "OFAC_SDN", matches, false)
	assert.Equal(t, StatusFoundMatches, found.Status)
	assert.Equal(t, 1, found.MatchCount)
	assert.Len(t, found.Matches, 1)
}

func TestNewSearchResult_TimestampIsUTC(t *testing.T) {
	res := NewSearchResult("Acme", "EU_Sanctions", nil, false)
	assert.Equal(t, time.UTC, res.SearchTimestamp.Location())
	assert.WithinDuration(t, time.Now().UTC(), res.SearchTimestamp, time.Minute)
}

func TestNewSearchResult_StaleFlag(t *testing.T) {
	res := NewSearchResult("Acme", "OFAC_SDN", nil, true)
	assert.True(t, res.StaleData)
	assert.Equal(t, StatusClear, res.Status)
}

func TestNewErrorResult(t *testing.T) {
	res := NewErrorResult("Acme", "OpenSanctions", errors.New("api key rejected"))
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "api key rejected", res.Error)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 0, res.MatchCount)
	assert.Equal(t, 0.0, res.APICost)
}
