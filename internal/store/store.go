// Package store is the boundary between the ingestion pipeline and the
// database. Two drivers implement the same Store surface: Postgres (pgxpool)
// for production and SQLite for local runs.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/roofsignal/permit-ingest/internal/config"
	"github.com/roofsignal/permit-ingest/internal/model"
)

// BBox is a closed-interval bounding box in WGS84 decimal degrees.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// PermitFilter specifies criteria for listing permits. City and State are
// substring matches against the parsed-address JSON; Limit is capped at 1000.
type PermitFilter struct {
	BBox        *BBox  `json:"bbox,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PermitType  string `json:"type,omitempty"`
	DateFrom    string `json:"date_from,omitempty"`
	DateTo      string `json:"date_to,omitempty"`
	RoofingOnly bool   `json:"roofing_only,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// maxPermitPageSize caps a single listing page.
const maxPermitPageSize = 1000

func (f PermitFilter) effectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return 100
	case f.Limit > maxPermitPageSize:
		return maxPermitPageSize
	}
	return f.Limit
}

// Store defines the persistence surface the orchestrator and API depend on.
type Store interface {
	// Sources
	GetSources(ctx context.Context) ([]model.Source, error)
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	CreateSource(ctx context.Context, src model.Source) (*model.Source, error)
	UpdateSource(ctx context.Context, id int64, patch model.SourcePatch) (*model.Source, error)

	// Per-source state
	GetSourceState(ctx context.Context, sourceID int64) (*model.SourceState, error)
	GetAllSourceStates(ctx context.Context) ([]model.SourceState, error)
	UpsertSourceState(ctx context.Context, patch model.StatePatch) error

	// Permits
	GetPermit(ctx context.Context, id string) (*model.Permit, error)
	GetPermitByFingerprint(ctx context.Context, fingerprint string) (*model.Permit, error)
	UpsertPermit(ctx context.Context, p *model.Permit) (string, error)
	GetPermits(ctx context.Context, filter PermitFilter) ([]model.Permit, int, error)
	GetPermitStats(ctx context.Context) (*model.PermitStats, error)
	GetSourcePermitCount(ctx context.Context, sourceID int64) (int, error)
	GetMaxSourceRecordID(ctx context.Context, sourceID int64) (int64, error)

	// Geocode cache (persistent tier)
	GetGeocode(ctx context.Context, address string) (*model.GeocodeEntry, error)
	PutGeocode(ctx context.Context, entry model.GeocodeEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates a Store from configuration.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite":
		return NewSQLite(ctx, cfg.DatabaseURL)
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}

// mergePermit applies the upsert overwrite rule: fields present on the
// incoming record replace the stored ones; absent fields keep their stored
// values. Identity, insertion timestamp, and primary key stay with the
// existing row.
func mergePermit(existing, incoming *model.Permit) *model.Permit {
	merged := *existing

	merged.SourceID = incoming.SourceID
	merged.SourceName = incoming.SourceName
	merged.Platform = incoming.Platform
	if incoming.SourceRecordID != "" {
		merged.SourceRecordID = incoming.SourceRecordID
	}
	if incoming.PermitType != "" {
		merged.PermitType = incoming.PermitType
	}
	if incoming.WorkDescription != "" {
		merged.WorkDescription = incoming.WorkDescription
	}
	if incoming.PermitStatus != "" {
		merged.PermitStatus = incoming.PermitStatus
	}
	if incoming.IssueDate != "" {
		merged.IssueDate = incoming.IssueDate
	}
	if incoming.RawAddress != "" {
		merged.RawAddress = incoming.RawAddress
	}
	if !incoming.Address.Empty() {
		merged.Address = incoming.Address
	}
	if incoming.ParcelID != "" {
		merged.ParcelID = incoming.ParcelID
	}
	if incoming.OwnerName != "" {
		merged.OwnerName = incoming.OwnerName
	}
	if incoming.ContractorName != "" {
		merged.ContractorName = incoming.ContractorName
	}
	if incoming.PermitValue != nil {
		merged.PermitValue = incoming.PermitValue
	}
	if incoming.Lat != nil && incoming.Lon != nil {
		merged.Lat = incoming.Lat
		merged.Lon = incoming.Lon
	}
	if len(incoming.GeomGeoJSON) > 0 {
		merged.GeomGeoJSON = incoming.GeomGeoJSON
	}
	if incoming.RawRef != "" {
		merged.RawRef = incoming.RawRef
	}

	// The label is a pure function of type and description at insertion
	// time; the fresh classification wins.
	merged.IsRoofing = incoming.IsRoofing
	merged.Provenance = incoming.Provenance
	return &merged
}
