package model

import (
	"encoding/json"
	"time"
)

// ParsedAddress is the structured form of a permit's raw address. Absent
// pieces are empty strings and are omitted from the stored JSON.
type ParsedAddress struct {
	HouseNumber string `json:"house_number,omitempty"`
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zip,omitempty"`
}

// Empty reports whether no component of the address was parsed.
func (a ParsedAddress) Empty() bool {
	return a == ParsedAddress{}
}

// Provenance is per-record audit metadata embedded in each permit.
// MaxRecordID is set only by the feature-service connector: the largest
// record id observed in the batch this record belonged to, read by the
// orchestrator to advance cursors.
type Provenance struct {
	Platform    Platform          `json:"platform"`
	URL         string            `json:"url"`
	FetchedAt   time.Time         `json:"fetched_at"`
	FieldsMap   map[string]string `json:"fields_map,omitempty"`
	Checksum    string            `json:"checksum,omitempty"`
	MaxRecordID int64             `json:"max_record_id,omitempty"`
}

// Permit is the normalized record persisted for every ingested row.
// Fingerprint is the only deduplication key: two permits with the same
// fingerprint are the same permit and are merged on upsert.
type Permit struct {
	ID              string          `json:"id"`
	SourceID        int64           `json:"source_id"`
	SourceName      string          `json:"source_name"`
	Platform        Platform        `json:"platform"`
	SourceRecordID  string          `json:"source_record_id"`
	PermitType      string          `json:"permit_type,omitempty"`
	WorkDescription string          `json:"work_description,omitempty"`
	PermitStatus    string          `json:"permit_status,omitempty"`
	IssueDate       string          `json:"issue_date,omitempty"`
	RawAddress      string          `json:"raw_address,omitempty"`
	Address         ParsedAddress   `json:"address_parsed"`
	ParcelID        string          `json:"parcel_id,omitempty"`
	OwnerName       string          `json:"owner_name,omitempty"`
	ContractorName  string          `json:"contractor_name,omitempty"`
	PermitValue     *float64        `json:"permit_value,omitempty"`
	Lat             *float64        `json:"lat,omitempty"`
	Lon             *float64        `json:"lon,omitempty"`
	GeomGeoJSON     json.RawMessage `json:"geom_geojson,omitempty"`
	Fingerprint     string          `json:"fingerprint"`
	IsRoofing       bool            `json:"is_roofing"`
	IngestedAt      time.Time       `json:"ingested_at"`
	Provenance      Provenance      `json:"provenance"`
	RawRef          string          `json:"raw_ref,omitempty"`
}

// PermitStats are the aggregate counters exposed by the storage adapter.
type PermitStats struct {
	Total           int `json:"total"`
	WithCoordinates int `json:"with_coordinates"`
	Roofing         int `json:"roofing"`
}

// GeocodeEntry is one row of the persistent geocode cache. Matched=false
// entries record upstream "no result" answers so they are not re-queried.
type GeocodeEntry struct {
	Address     string    `json:"address"`
	Lat         *float64  `json:"lat,omitempty"`
	Lon         *float64  `json:"lon,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Matched     bool      `json:"matched"`
	FetchedAt   time.Time `json:"fetched_at"`
}
