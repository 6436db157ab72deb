// Package ofac screens against OFAC's Specially Designated Nationals list,
// pulled from the Treasury Sanctions List Service. No API key required.
package ofac

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

// SourceName is the label carried on every OFAC result.
const SourceName = "OFAC_SDN"

// Client downloads and parses the SDN list. CSV is tried first for speed;
// on CSV failure it falls back to the classic XML export and then the
// advanced one. Only Entity and Vessel records are kept.
type Client struct {
	fetcher    *sources.Fetcher
	cfg        config.OFACConfig
	normalizer *screening.Normalizer
	logger     *zap.SugaredLogger
}

// NewClient creates an OFAC SDN list client.
func NewClient(fetcher *sources.Fetcher, cfg config.OFACConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		fetcher:    fetcher,
		cfg:        cfg,
		normalizer: screening.NewOFACNormalizer(),
		logger:     logger,
	}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Normalizer() *screening.Normalizer { return c.normalizer }

// FetchAndParse downloads the current SDN list. An error is returned only
// when the CSV and both XML exports all fail or come back empty.
func (c *Client) FetchAndParse(ctx context.Context) ([]screening.ListEntity, error) {
	var lastErr error
	body, err := c.fetcher.Get(ctx, c.cfg.CSVURL)
	if err == nil {
		entities, parseErr := parseCSV(body)
		if parseErr == nil && len(entities) > 0 {
			return entities, nil
		}
		if parseErr == nil {
			parseErr = fmt.Errorf("SDN CSV contained no entity records")
		}
		lastErr = parseErr
		c.logger.Warnw("SDN CSV unusable, falling back to XML",
			"parsed", len(entities), "error", parseErr)
	} else {
		lastErr = err
		c.logger.Warnw("SDN CSV download failed, falling back to XML", "error", err)
	}

	for _, url := range []string{c.cfg.XMLURL, c.cfg.AdvancedXMLURL} {
		body, err := c.fetcher.Get(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		entities, err := parseXML(body)
		if err != nil {
			lastErr = err
			continue
		}
		if len(entities) > 0 {
			return entities, nil
		}
	}

	return nil, fmt.Errorf("all SDN exports failed: %w", lastErr)
}

// parseCSV reads the SLS SDN.CSV export. Columns are looked up by header
// name so column reordering in the export does not break parsing.
func parseCSV(data []byte) ([]screening.ListEntity, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read SDN CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entities []screening.ListEntity
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read SDN CSV row: %w", err)
		}

		sdnType := screening.EntityType(field(row, "sdnType"))
		if sdnType != screening.EntityTypeEntity && sdnType != screening.EntityTypeVessel {
			continue
		}
		name := field(row, "sdnName")
		if name == "" {
			continue
		}

		entity := screening.ListEntity{
			Name:            name,
			Type:            sdnType,
			Programs:        splitPrograms(field(row, "programList")),
			Remarks:         field(row, "remarks"),
			ListingDate:     firstNonEmpty(field(row, "addListDate"), field(row, "publicationDate")),
			SourceReference: field(row, "ent_num"),
		}
		if sdnType == screening.EntityTypeVessel {
			entity.VesselDetails = &screening.VesselDetails{
				CallSign:   field(row, "callSign"),
				VesselType: field(row, "vesselType"),
				Flag:       field(row, "vesselFlag"),
			}
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// The XML structs carry no namespace in their tags, so the decoder matches
// on local element names and the same shapes cover both the classic and the
// advanced export.
type sdnList struct {
	Entries []sdnEntry `xml:"sdnEntry"`
}

type sdnEntry struct {
	UID         string       `xml:"uid"`
	LastName    string       `xml:"lastName"`
	SDNType     string       `xml:"sdnType"`
	Remarks     string       `xml:"remarks"`
	PublishDate string       `xml:"publishInformation>publishDate"`
	Programs    []string     `xml:"programList>program"`
	AKAs        []sdnAKA     `xml:"akaList>aka"`
	Addresses   []sdnAddress `xml:"addressList>address"`
	IDs         []sdnID      `xml:"idList>id"`
	VesselInfo  *sdnVessel   `xml:"vesselInfo"`
}

type sdnAKA struct {
	LastName  string `xml:"lastName"`
	FirstName string `xml:"firstName"`
	WholeName string `xml:"wholeName"`
}

type sdnAddress struct {
	Address1   string `xml:"address1"`
	Address2   string `xml:"address2"`
	City       string `xml:"city"`
	State      string `xml:"stateOrProvince"`
	PostalCode string `xml:"postalCode"`
	Country    string `xml:"country"`
}

type sdnID struct {
	Type   string `xml:"idType"`
	Number string `xml:"idNumber"`
}

type sdnVessel struct {
	CallSign   string `xml:"callSign"`
	VesselType string `xml:"vesselType"`
	Flag       string `xml:"vesselFlag"`
}

// parseXML reads SDN.XML or SDN_ADVANCED.XML. OFAC stores the primary name
// of organization records in lastName.
func parseXML(data []byte) ([]screening.ListEntity, error) {
	var list sdnList
	if err := xml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse SDN XML: %w", err)
	}

	var entities []screening.ListEntity
	for _, entry := range list.Entries {
		sdnType := screening.EntityType(strings.TrimSpace(entry.SDNType))
		if sdnType != screening.EntityTypeEntity && sdnType != screening.EntityTypeVessel {
			continue
		}
		name := strings.TrimSpace(entry.LastName)
		if name == "" {
			continue
		}

		entity := screening.ListEntity{
			Name:            name,
			Type:            sdnType,
			Remarks:         strings.TrimSpace(entry.Remarks),
			ListingDate:     strings.TrimSpace(entry.PublishDate),
			SourceReference: strings.TrimSpace(entry.UID),
		}
		for _, p := range entry.Programs {
			if p = strings.TrimSpace(p); p != "" {
				entity.Programs = append(entity.Programs, p)
			}
		}
		for _, aka := range entry.AKAs {
			alias := strings.TrimSpace(aka.WholeName)
			if alias == "" {
				alias = strings.TrimSpace(strings.TrimSpace(aka.FirstName) + " " + strings.TrimSpace(aka.LastName))
			}
			if alias != "" {
				entity.Aliases = append(entity.Aliases, alias)
			}
		}
		for _, a := range entry.Addresses {
			addr := screening.Address{
				Street:     joinNonEmpty(a.Address1, a.Address2),
				City:       strings.TrimSpace(a.City),
				State:      strings.TrimSpace(a.State),
				PostalCode: strings.TrimSpace(a.PostalCode),
				Country:    strings.TrimSpace(a.Country),
			}
			if !addr.Empty() {
				entity.Addresses = append(entity.Addresses, addr)
			}
		}
		for _, id := range entry.IDs {
			if v := strings.TrimSpace(id.Number); v != "" {
				entity.Identifiers = append(entity.Identifiers, screening.Identifier{
					Type:  strings.TrimSpace(id.Type),
					Value: v,
				})
			}
		}
		if sdnType == screening.EntityTypeVessel && entry.VesselInfo != nil {
			entity.VesselDetails = &screening.VesselDetails{
				CallSign:   strings.TrimSpace(entry.VesselInfo.CallSign),
				VesselType: strings.TrimSpace(entry.VesselInfo.VesselType),
				Flag:       strings.TrimSpace(entry.VesselInfo.Flag),
			}
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func splitPrograms(list string) []string {
	var programs []string
	for _, p := range strings.Split(list, ";") {
		if p = strings.TrimSpace(p); p != "" {
			programs = append(programs, p)
		}
	}
	return programs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
