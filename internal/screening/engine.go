package screening

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/pkg/metrics"
)

// Source is the common contract over the three sanctions list providers.
// Concrete sources implement exactly one of the two strategies below.
type Source interface {
	// Name is the stable source label carried on results, e.g. "OFAC_SDN".
	Name() string
}

// LocalSource is the strategy for providers whose full list is downloaded
// and scored locally (OFAC, EU). The engine caches the parsed universe and
// runs the similarity scorer against it.
type LocalSource interface {
	Source

	// Normalizer returns the name canonicalizer matching the source's
	// publishing convention; suffix vocabularies differ per source, so
	// normalized forms are never shared across sources.
	Normalizer() *Normalizer

	// FetchAndParse downloads the provider's current list and returns it in
	// the common entity shape. It returns an error only after exhausting
	// all of the provider's format and URL fallbacks.
	FetchAndParse(ctx context.Context) ([]ListEntity, error)
}

// DelegatedSource is the strategy for providers that score remotely
// (OpenSanctions). There is no local universe; the provider's own calibrated
// score is trusted directly and the local scorer is bypassed.
type DelegatedSource interface {
	Source

	// Match queries the provider and returns hits at or above the
	// threshold, already scored on the common [0,1] scale.
	Match(ctx context.Context, rawName string, threshold float64) ([]MatchResult, error)
}

// Engine orchestrates a screening call: load-or-reuse the cached universe,
// score every entity against the query, filter by threshold, sort, and wrap
// into the response envelope. No failure escapes Search; everything becomes
// a status:error envelope.
type Engine struct {
	cache            *ListCache
	defaultThreshold float64
	logger           *zap.SugaredLogger
}

// NewEngine creates a match engine on top of a list cache.
func NewEngine(cache *ListCache, defaultThreshold float64, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		cache:            cache,
		defaultThreshold: defaultThreshold,
		logger:           logger,
	}
}

// DefaultThreshold returns the threshold used when a caller passes none.
func (e *Engine) DefaultThreshold() float64 {
	return e.defaultThreshold
}

// InvalidateList drops a source's cached universe so the next search against
// it downloads a fresh list.
func (e *Engine) InvalidateList(sourceName string) {
	e.cache.Invalidate(sourceName)
}

// Search screens a raw company name against one source. threshold <= 0
// selects the engine default. The returned envelope always satisfies the
// status/match-count invariants; errors and panics anywhere in the pipeline
// are converted to a status:error envelope rather than propagated.
func (e *Engine) Search(ctx context.Context, src Source, rawName string, threshold float64) (result *SearchResult) {
	start := time.Now()
	if threshold <= 0 {
		threshold = e.defaultThreshold
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("Screening pipeline panic", "source", src.Name(), "panic", r)
			result = NewErrorResult(rawName, src.Name(), fmt.Errorf("screening failed: %v", r))
		}
		metrics.SearchesTotal.WithLabelValues(src.Name(), string(result.Status)).Inc()
		metrics.SearchLatency.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())
	}()

	switch s := src.(type) {
	case LocalSource:
		result = e.searchLocal(ctx, s, rawName, threshold)
	case DelegatedSource:
		result = e.searchDelegated(ctx, s, rawName, threshold)
	default:
		result = NewErrorResult(rawName, src.Name(), fmt.Errorf("source %s implements no matching strategy", src.Name()))
	}
	return result
}

// SearchBatch screens several names against one source, reusing the cached
// universe across the batch.
func (e *Engine) SearchBatch(ctx context.Context, src Source, rawNames []string, threshold float64) []*SearchResult {
	results := make([]*SearchResult, 0, len(rawNames))
	for _, name := range rawNames {
		results = append(results, e.Search(ctx, src, name, threshold))
	}
	return results
}

func (e *Engine) searchLocal(ctx context.Context, src LocalSource, rawName string, threshold float64) *SearchResult {
	entities, stale := e.cache.GetOrRefresh(ctx, src)

	normalizer := src.Normalizer()
	query := normalizer.Normalize(rawName)

	var matches []MatchResult
	for _, entity := range entities {
		candidate := normalizer.Normalize(entity.Name)
		// The threshold applies to the raw score; rounding is presentation
		// only, so a 0.698 must not sneak past a 0.7 threshold.
		score := Score(query, candidate)
		if score < threshold {
			continue
		}
		rounded := RoundScore(score)
		matches = append(matches, MatchResult{
			ListEntity:   entity,
			MatchScore:   rounded,
			Source:       src.Name(),
			Severity:     SeverityForScore(rounded),
			EditDistance: levenshtein.ComputeDistance(query, candidate),
		})
	}

	// Score-descending; ties keep original list order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	e.logger.Debugw("Local screening complete",
		"source", src.Name(), "query", query, "universe", len(entities), "matches", len(matches))

	return NewSearchResult(rawName, src.Name(), matches, stale)
}

func (e *Engine) searchDelegated(ctx context.Context, src DelegatedSource, rawName string, threshold float64) *SearchResult {
	matches, err := src.Match(ctx, rawName, threshold)
	if err != nil {
		e.logger.Errorw("Delegated screening failed", "source", src.Name(), "error", err)
		return NewErrorResult(rawName, src.Name(), err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	return NewSearchResult(rawName, src.Name(), matches, false)
}
