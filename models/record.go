package models

import (
	"time"
)

// RecordSource identifies which layer of the fallback chain produced a record.
type RecordSource string

const (
	RecordSourceAPI    RecordSource = "API"
	RecordSourceScrape RecordSource = "SCRAPE"
	RecordSourceCache  RecordSource = "CACHE"
	RecordSourceDB     RecordSource = "DB"
)

// TaxHistoryEntry is one tax year line item on a parcel.
type TaxHistoryEntry struct {
	TaxYear      int     `json:"tax_year"`
	AmountBilled float64 `json:"amount_billed"`
	AmountPaid   float64 `json:"amount_paid"`
	Status       string  `json:"status"` // PAID, DUE, DELINQUENT
}

// PropertyRecord is the consolidated result of a lookup. Records are immutable
// once constructed; a later fetch produces a new record rather than mutating
// an old one in place.
type PropertyRecord struct {
	ParcelID         string            `json:"parcel_id"`
	OwnerName        string            `json:"owner_name"`
	OwnerAddress     string            `json:"owner_address,omitempty"`
	SitusAddress     string            `json:"situs_address"`
	Subdivision      string            `json:"subdivision,omitempty"`
	AssessedValue    float64           `json:"assessed_value"`
	LandValue        float64           `json:"land_value,omitempty"`
	ImprovementValue float64           `json:"improvement_value,omitempty"`
	YearBuilt        int               `json:"year_built,omitempty"`
	LivingArea       int               `json:"living_area,omitempty"`
	TaxHistory       []TaxHistoryEntry `json:"tax_history,omitempty"`

	Source    RecordSource `json:"source"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// WithSource returns a copy of the record tagged with a different source.
// The resolver uses this when serving a record from a layer other than the
// one that originally fetched it.
func (r *PropertyRecord) WithSource(source RecordSource) *PropertyRecord {
	clone := *r
	clone.Source = source
	return &clone
}

// Age returns how long ago the record was fetched.
func (r *PropertyRecord) Age() time.Duration {
	return time.Since(r.FetchedAt)
}

// PropertyRecordRow is the durable form of a record as stored in the
// property_records table. The table is the durable superset of the in-memory
// cache and serves as the last-resort fallback.
type PropertyRecordRow struct {
	KeyKind    string    `json:"key_kind"`
	KeyValue   string    `json:"key_value"`
	ParcelID   string    `json:"parcel_id"`
	RecordJSON []byte    `json:"record"`
	FetchedAt  time.Time `json:"fetched_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
