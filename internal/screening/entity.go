package screening

// EntityType classifies a sanctions-list record. Individual records are
// filtered out at parse time since screening scope is companies and vessels.
type EntityType string

const (
	EntityTypeEntity     EntityType = "Entity"
	EntityTypeVessel     EntityType = "Vessel"
	EntityTypeIndividual EntityType = "Individual"
)

// Address is one structured address attached to a list entity. Every field
// is optional; sources differ in which they populate.
type Address struct {
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
	FullAddress string `json:"full_address,omitempty"`
}

// Empty reports whether no field of the address is populated.
func (a Address) Empty() bool {
	return a == Address{}
}

// Identifier is a (type, value) pair: registration numbers, tax IDs, INN,
// IMO numbers and the like.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// VesselDetails carries the vessel-specific sub-fields OFAC publishes for
// Vessel records.
type VesselDetails struct {
	CallSign   string `json:"call_sign,omitempty"`
	VesselType string `json:"vessel_type,omitempty"`
	Flag       string `json:"flag,omitempty"`
}

// ListEntity is a normalized sanctions-list record in the common shape all
// three sources parse into. Records without a resolvable name are discarded
// by the parsers; everything past Name is optional. Entities are constructed
// once per list refresh and held immutably in the cache until replaced.
type ListEntity struct {
	Name            string         `json:"name"`
	Type            EntityType     `json:"type"`
	Aliases         []string       `json:"aliases,omitempty"`
	Programs        []string       `json:"programs,omitempty"`
	Addresses       []Address      `json:"addresses,omitempty"`
	Identifiers     []Identifier   `json:"identifiers,omitempty"`
	Remarks         string         `json:"remarks,omitempty"`
	LegalBasis      string         `json:"legal_basis,omitempty"`
	ListingDate     string         `json:"listing_date,omitempty"`
	SourceReference string         `json:"source_reference,omitempty"`
	VesselDetails   *VesselDetails `json:"vessel_details,omitempty"`
}
