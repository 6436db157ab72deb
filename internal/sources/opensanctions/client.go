// Package opensanctions screens against the OpenSanctions aggregator, which
// consolidates sanctions lists from dozens of jurisdictions. Matching is
// delegated to the provider; there is no local list to download.
package opensanctions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/internal/config"
	"github.com/acuityrisk/sanctionscan/internal/screening"
)

// SourceName is the label carried on every OpenSanctions result.
const SourceName = "OpenSanctions"

// Readable names for the dataset codes most often attached to company hits.
// Unmapped codes pass through as-is.
var datasetNames = map[string]string{
	"us_ofac_sdn":             "US OFAC SDN",
	"eu_fsf":                  "EU Consolidated",
	"un_sc_sanctions":         "UN Security Council",
	"gb_hmt_sanctions":        "UK Treasury",
	"ca_dfatd_sema_sanctions": "Canada SEMA",
	"au_dfat_sanctions":       "Australia DFAT",
	"ch_seco_sanctions":       "Switzerland SECO",
	"jp_mof_sanctions":        "Japan MOF",
}

// Identifier property fields worth surfacing on company hits.
var identifierProps = []struct {
	field string
	label string
}{
	{"registrationNumber", "Registration"},
	{"taxNumber", "Tax ID"},
	{"vatCode", "VAT"},
	{"dunsCode", "DUNS"},
	{"innCode", "INN"},
	{"ogrnCode", "OGRN"},
	{"swiftBic", "SWIFT/BIC"},
	{"imoNumber", "IMO"},
	{"lei", "LEI"},
}

// Client queries the OpenSanctions API. Without an API key the free public
// search endpoint is used and its 0-100 score rescaled to [0,1]; with a key
// the authenticated match endpoint is used, which returns calibrated scores
// already on [0,1]. An auth failure on the paid path is returned as an error
// rather than downgraded, since treating an unchecked name as clear is a
// false negative a compliance caller must never see.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
	logger     *zap.SugaredLogger
}

// NewClient creates an OpenSanctions client.
func NewClient(httpCfg config.HTTPClientConfig, cfg config.OpenSanctionsConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpCfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  httpCfg.UserAgent,
		logger:     logger,
	}
}

func (c *Client) Name() string { return SourceName }

// Match screens one name, returning hits scored by the provider at or above
// the threshold.
func (c *Client) Match(ctx context.Context, rawName string, threshold float64) ([]screening.MatchResult, error) {
	if c.apiKey != "" {
		return c.matchAuthenticated(ctx, rawName, threshold)
	}
	return c.searchFree(ctx, rawName, threshold)
}

// entityProperties is the followthemoney property bag: every property is a
// list of strings.
type entityProperties map[string][]string

func (p entityProperties) first(field string) string {
	if values := p[field]; len(values) > 0 {
		return values[0]
	}
	return ""
}

type osEntity struct {
	ID         string           `json:"id"`
	Caption    string           `json:"caption"`
	Schema     string           `json:"schema"`
	Datasets   []string         `json:"datasets"`
	Properties entityProperties `json:"properties"`
	FirstSeen  string           `json:"first_seen"`
}

// searchHit carries the result-level score next to the entity, which the
// search endpoint nests under "entity". Older responses inlined the entity
// fields on the result itself, so both placements are read.
type searchHit struct {
	osEntity
	Score  float64   `json:"score"`
	Entity *osEntity `json:"entity"`
}

func (h searchHit) entity() osEntity {
	if h.Entity != nil {
		return *h.Entity
	}
	return h.osEntity
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

func (c *Client) searchFree(ctx context.Context, rawName string, threshold float64) ([]screening.MatchResult, error) {
	endpoint := fmt.Sprintf("%s/search/default?q=%s&schema=Company&limit=20",
		c.baseURL, url.QueryEscape(rawName))

	body, err := c.get(ctx, endpoint, false)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	var matches []screening.MatchResult
	for _, hit := range parsed.Results {
		// The free endpoint scores on 0-100.
		score := screening.RoundScore(hit.Score / 100)
		if score < threshold {
			continue
		}
		match := c.toMatch(hit.entity(), score)
		if match.Name == "" {
			continue
		}
		matches = append(matches, match)
	}
	return matches, nil
}

type matchRequest struct {
	Queries map[string]matchQuery `json:"queries"`
}

type matchQuery struct {
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
}

type matchResponse struct {
	Responses map[string]struct {
		Results []struct {
			osEntity
			Score float64 `json:"score"`
		} `json:"results"`
	} `json:"responses"`
}

func (c *Client) matchAuthenticated(ctx context.Context, rawName string, threshold float64) ([]screening.MatchResult, error) {
	payload, err := json.Marshal(matchRequest{
		Queries: map[string]matchQuery{
			"q1": {
				Schema:     "Company",
				Properties: map[string][]string{"name": {rawName}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode match request: %w", err)
	}

	endpoint := c.baseURL + "/match/default"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, true)
	if err != nil {
		return nil, err
	}

	var parsed matchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse match response: %w", err)
	}

	var matches []screening.MatchResult
	for _, response := range parsed.Responses {
		for _, hit := range response.Results {
			// The match endpoint scores on [0,1] already.
			score := screening.RoundScore(hit.Score)
			if score < threshold {
				continue
			}
			match := c.toMatch(hit.osEntity, score)
			if match.Name == "" {
				continue
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (c *Client) get(ctx context.Context, endpoint string, authenticated bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, authenticated)
}

func (c *Client) do(req *http.Request, authenticated bool) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if authenticated {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to OpenSanctions failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("OpenSanctions rejected the API key (status %d)", resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected status %d from OpenSanctions", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read OpenSanctions response: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) toMatch(entity osEntity, score float64) screening.MatchResult {
	listed := screening.ListEntity{
		Name:            primaryName(entity),
		Type:            screening.EntityTypeEntity,
		Aliases:         aliases(entity.Properties),
		Programs:        programs(entity.Datasets),
		Addresses:       addresses(entity.Properties),
		Identifiers:     identifiers(entity.Properties),
		ListingDate:     entity.FirstSeen,
		SourceReference: entity.ID,
	}
	return screening.MatchResult{
		ListEntity: listed,
		MatchScore: score,
		Source:     SourceName,
		Severity:   screening.SeverityForScore(score),
	}
}

func primaryName(entity osEntity) string {
	if name := entity.Properties.first("name"); name != "" {
		return name
	}
	for _, field := range []string{"alias", "weakAlias", "previousName"} {
		if name := entity.Properties.first(field); name != "" {
			return name
		}
	}
	return entity.Caption
}

func aliases(props entityProperties) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, field := range []string{"alias", "weakAlias", "previousName", "tradeName"} {
		for _, name := range props[field] {
			if _, dup := seen[name]; dup || name == "" {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func programs(datasets []string) []string {
	var out []string
	for _, code := range datasets {
		if readable, ok := datasetNames[code]; ok {
			out = append(out, readable)
		} else {
			out = append(out, code)
		}
	}
	return out
}

func addresses(props entityProperties) []screening.Address {
	var out []screening.Address
	for _, full := range props["address"] {
		if full != "" {
			out = append(out, screening.Address{FullAddress: full})
		}
	}
	if len(out) == 0 {
		for _, country := range props["country"] {
			if country != "" {
				out = append(out, screening.Address{Country: country})
			}
		}
	}
	return out
}

func identifiers(props entityProperties) []screening.Identifier {
	var out []screening.Identifier
	for _, prop := range identifierProps {
		for _, value := range props[prop.field] {
			if value != "" {
				out = append(out, screening.Identifier{Type: prop.label, Value: value})
			}
		}
	}
	return out
}
