// Package eusanctions screens against the EU Consolidated Financial
// Sanctions List published by the Commission's FSF service. Free, no API key.
package eusanctions

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/internal/config"
	"github.com/acuityrisk/sanctionscan/internal/screening"
	"github.com/acuityrisk/sanctionscan/internal/sources"
)

// SourceName is the label carried on every EU result.
const SourceName = "EU_Sanctions"

// Client downloads and parses the consolidated list. The XML v1.1 export is
// primary; the semicolon-separated CSV export is the fallback. Each format
// has a token-appended retry URL for when the bare URL is rejected by the
// Commission's edge servers.
type Client struct {
	fetcher    *sources.Fetcher
	cfg        config.EUConfig
	normalizer *screening.Normalizer
	logger     *zap.SugaredLogger
}

// NewClient creates an EU consolidated list client.
func NewClient(fetcher *sources.Fetcher, cfg config.EUConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		fetcher:    fetcher,
		cfg:        cfg,
		normalizer: screening.NewWesternNormalizer(),
		logger:     logger,
	}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Normalizer() *screening.Normalizer { return c.normalizer }

// FetchAndParse downloads the current consolidated list, trying XML before
// CSV and the bare URL before its token variant.
func (c *Client) FetchAndParse(ctx context.Context) ([]screening.ListEntity, error) {
	var lastErr error

	for _, url := range nonEmpty(c.cfg.XMLURL, c.cfg.XMLTokenURL) {
		body, err := c.fetcher.Get(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		entities, err := parseXML(body)
		if err != nil {
			lastErr = err
			c.logger.Warnw("EU XML export unusable", "url", url, "error", err)
			continue
		}
		if len(entities) > 0 {
			return entities, nil
		}
	}

	c.logger.Warnw("EU XML exports unavailable, falling back to CSV", "error", lastErr)

	for _, url := range nonEmpty(c.cfg.CSVURL, c.cfg.CSVTokenURL) {
		body, err := c.fetcher.Get(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		entities, err := parseCSV(body)
		if err != nil {
			lastErr = err
			continue
		}
		if len(entities) > 0 {
			return entities, nil
		}
	}

	return nil, fmt.Errorf("all EU consolidated list exports failed: %w", lastErr)
}

// The v1.1 schema separates organizations (sanctionEntity) from individuals
// (sanctionPerson) at the top level; only the former are decoded. Most data
// lives in attributes.
type fsfExport struct {
	Entities []fsfEntity `xml:"sanctionEntity"`
}

type fsfEntity struct {
	EUReferenceNumber string              `xml:"euReferenceNumber,attr"`
	Remark            string              `xml:"remark"`
	Regulation        fsfRegulation       `xml:"regulation"`
	NameAliases       []fsfNameAlias      `xml:"nameAlias"`
	Addresses         []fsfAddress        `xml:"address"`
	Identifications   []fsfIdentification `xml:"identification"`
}

type fsfNameAlias struct {
	WholeName string `xml:"wholeName,attr"`
	Strong    string `xml:"strong,attr"`
}

type fsfRegulation struct {
	Programme          string `xml:"programme,attr"`
	EntryIntoForceDate string `xml:"entryIntoForceDate,attr"`
	NumberTitle        string `xml:"numberTitle,attr"`
}

type fsfAddress struct {
	Street             string `xml:"street,attr"`
	City               string `xml:"city,attr"`
	ZipCode            string `xml:"zipCode,attr"`
	CountryDescription string `xml:"countryDescription,attr"`
}

type fsfIdentification struct {
	TypeCode string `xml:"identificationTypeCode,attr"`
	Number   string `xml:"number,attr"`
}

// parseXML decodes the XML v1.1 export. The alias flagged strong="true"
// becomes the primary display name; every other alias is demoted to the
// alias list. Entities without any usable name are dropped.
func parseXML(data []byte) ([]screening.ListEntity, error) {
	var export fsfExport
	if err := xml.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse EU sanctions XML: %w", err)
	}

	var entities []screening.ListEntity
	for _, raw := range export.Entities {
		var primary string
		var aliases []string
		for _, alias := range raw.NameAliases {
			name := strings.TrimSpace(alias.WholeName)
			if name == "" {
				continue
			}
			if primary == "" && strings.EqualFold(alias.Strong, "true") {
				primary = name
				continue
			}
			aliases = append(aliases, name)
		}
		// No strong alias: promote the first listed name.
		if primary == "" && len(aliases) > 0 {
			primary, aliases = aliases[0], aliases[1:]
		}
		if primary == "" {
			continue
		}

		entity := screening.ListEntity{
			Name:            primary,
			Type:            screening.EntityTypeEntity,
			Aliases:         aliases,
			Remarks:         strings.TrimSpace(raw.Remark),
			LegalBasis:      strings.TrimSpace(raw.Regulation.NumberTitle),
			ListingDate:     strings.TrimSpace(raw.Regulation.EntryIntoForceDate),
			SourceReference: strings.TrimSpace(raw.EUReferenceNumber),
		}
		if p := strings.TrimSpace(raw.Regulation.Programme); p != "" {
			entity.Programs = []string{p}
		}
		for _, a := range raw.Addresses {
			addr := screening.Address{
				Street:     strings.TrimSpace(a.Street),
				City:       strings.TrimSpace(a.City),
				PostalCode: strings.TrimSpace(a.ZipCode),
				Country:    strings.TrimSpace(a.CountryDescription),
			}
			if !addr.Empty() {
				entity.Addresses = append(entity.Addresses, addr)
			}
		}
		for _, id := range raw.Identifications {
			if v := strings.TrimSpace(id.Number); v != "" {
				entity.Identifiers = append(entity.Identifiers, screening.Identifier{
					Type:  strings.TrimSpace(id.TypeCode),
					Value: v,
				})
			}
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// CSV export column names have drifted across export runs, so each logical
// field is looked up under every spelling seen in the wild.
var (
	csvNameCols      = []string{"NameAlias_WholeName", "Naal_WholeName", "wholeName", "Name"}
	csvStrongCols    = []string{"NameAlias_Strong", "Naal_Strong", "strong"}
	csvTypeCols      = []string{"Entity_SubjectType", "Subject_Type", "subjectType"}
	csvRefCols       = []string{"Entity_EU_ReferenceNumber", "EU_ReferenceNumber", "euReferenceNumber"}
	csvProgrammeCols = []string{"Entity_Regulation_Programme", "Programme", "programme"}
	csvDateCols      = []string{"Entity_Regulation_EntryIntoForceDate", "EntryIntoForceDate", "entryIntoForceDate"}
	csvLegalCols     = []string{"Entity_Regulation_NumberTitle", "Regulation_NumberTitle", "numberTitle"}
	csvRemarkCols    = []string{"Entity_Remark", "Remark", "remark"}
)

// parseCSV reads the semicolon-separated fallback export. The CSV carries
// one row per name alias, so rows are grouped by EU reference number with
// the strong name promoted to primary.
func parseCSV(data []byte) ([]screening.ListEntity, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read EU CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, candidates []string) string {
		for _, name := range candidates {
			if i, ok := col[strings.ToLower(name)]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	byRef := make(map[string]*screening.ListEntity)
	var order []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read EU CSV row: %w", err)
		}

		if t := strings.ToLower(field(row, csvTypeCols)); t != "" && t != "e" && t != "enterprise" && t != "entity" {
			continue
		}
		name := field(row, csvNameCols)
		if name == "" {
			continue
		}

		ref := field(row, csvRefCols)
		key := ref
		if key == "" {
			key = name
		}

		entity, ok := byRef[key]
		if !ok {
			entity = &screening.ListEntity{
				Type:            screening.EntityTypeEntity,
				Remarks:         field(row, csvRemarkCols),
				LegalBasis:      field(row, csvLegalCols),
				ListingDate:     field(row, csvDateCols),
				SourceReference: ref,
			}
			if p := field(row, csvProgrammeCols); p != "" {
				entity.Programs = []string{p}
			}
			byRef[key] = entity
			order = append(order, key)
		}

		if entity.Name == "" || strings.EqualFold(field(row, csvStrongCols), "true") {
			if entity.Name != "" {
				entity.Aliases = append(entity.Aliases, entity.Name)
			}
			entity.Name = name
		} else {
			entity.Aliases = append(entity.Aliases, name)
		}
	}

	entities := make([]screening.ListEntity, 0, len(order))
	for _, key := range order {
		entities = append(entities, *byRef[key])
	}
	return entities, nil
}

func nonEmpty(urls ...string) []string {
	var kept []string
	for _, u := range urls {
		if u != "" {
			kept = append(kept, u)
		}
	}
	return kept
}
