package screening

import (
	"time"
)

// Status is the tri-state outcome of a screening call. A compliance consumer
// must never conflate StatusError with StatusClear: error means the list was
// not actually checked.
type Status string

const (
	StatusClear        Status = "clear"
	StatusFoundMatches Status = "found_matches"
	StatusError        Status = "error"
)

// Severity is the risk level derived from a match score. The matching core
// only ever assigns these two values; medium/low severities belong to
// unrelated regulatory checks.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
)

// SeverityForScore derives the severity for a (rounded) match score:
// critical above 0.9, high otherwise.
func SeverityForScore(score float64) Severity {
	if score > 0.9 {
		return SeverityCritical
	}
	return SeverityHigh
}

// MatchResult is one scored hit against a list entity. The entity's
// structured fields are embedded so downstream display and persistence get
// the full record.
type MatchResult struct {
	ListEntity

	// MatchScore is in [0,1], rounded to two decimals.
	MatchScore float64 `json:"match_score"`
	// Source labels the list the hit came from, e.g. "OFAC SDN".
	Source   string   `json:"source"`
	Severity Severity `json:"severity"`
	// EditDistance is a display diagnostic (Levenshtein distance between
	// the normalized query and the normalized entity name). It plays no
	// part in scoring or filtering.
	EditDistance int `json:"edit_distance"`
}

// SearchResult is the uniform envelope returned for every screening call.
// Invariants: Status == StatusFoundMatches iff MatchCount > 0 iff Matches is
// non-empty; Status == StatusError implies empty Matches and a populated
// Error.
type SearchResult struct {
	SearchedName    string        `json:"searched_name"`
	Source          string        `json:"source"`
	Status          Status        `json:"status"`
	Matches         []MatchResult `json:"matches"`
	MatchCount      int           `json:"match_count"`
	SearchTimestamp time.Time     `json:"search_timestamp"`
	APICost         float64       `json:"api_cost"`
	Error           string        `json:"error,omitempty"`
	// StaleData is set when the result was computed against a cached list
	// past its TTL because the refresh failed.
	StaleData bool `json:"stale_data,omitempty"`
}

// NewSearchResult builds a clear or found_matches envelope from a scored
// match set, maintaining the status/count/matches invariant.
func NewSearchResult(searchedName, source string, matches []MatchResult, stale bool) *SearchResult {
	status := StatusClear
	if len(matches) > 0 {
		status = StatusFoundMatches
	}
	if matches == nil {
		matches = []MatchResult{}
	}
	return &SearchResult{
		SearchedName:    searchedName,
		Source:          source,
		Status:          status,
		Matches:         matches,
		MatchCount:      len(matches),
		SearchTimestamp: time.Now().UTC(),
		APICost:         0.0,
		StaleData:       stale,
	}
}

// NewErrorResult builds an error envelope preserving the failure message for
// diagnostics.
func NewErrorResult(searchedName, source string, err error) *SearchResult {
	return &SearchResult{
		SearchedName:    searchedName,
		Source:          source,
		Status:          StatusError,
		Matches:         []MatchResult{},
		MatchCount:      0,
		SearchTimestamp: time.Now().UTC(),
		APICost:         0.0,
		Error:           err.Error(),
	}
}
