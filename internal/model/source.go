// Package model defines the core domain types shared across the ingestion
// pipeline: registered sources, per-source cursor state, and normalized
// permit records.
package model

import "time"

// Platform identifies the wire protocol a source speaks.
type Platform string

const (
	// PlatformJSONDataset is a Socrata-style JSON dataset API.
	PlatformJSONDataset Platform = "json-dataset"
	// PlatformFeatureService is an ArcGIS Feature Service.
	PlatformFeatureService Platform = "feature-service"
	// PlatformOther covers platforms ingested by out-of-band tooling.
	PlatformOther Platform = "other"
)

// Valid reports whether p is a known platform tag.
func (p Platform) Valid() bool {
	switch p {
	case PlatformJSONDataset, PlatformFeatureService, PlatformOther:
		return true
	}
	return false
}

// Source is a registered data origin: one jurisdiction-and-protocol pair.
// The ID is immutable; every other field is operator-mutable.
type Source struct {
	ID                   int64          `json:"id"`
	Name                 string         `json:"name"`
	Platform             Platform       `json:"platform"`
	EndpointURL          string         `json:"endpoint_url"`
	Config               map[string]any `json:"config,omitempty"`
	Enabled              bool           `json:"enabled"`
	MaxRowsPerRun        int            `json:"max_rows_per_run"`
	MaxRuntimeMinutes    int            `json:"max_runtime_minutes"`
	MaxRequestsPerMinute int            `json:"max_requests_per_minute"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// ConfigString returns a string-valued config key, or "" when absent.
func (s Source) ConfigString(key string) string {
	if s.Config == nil {
		return ""
	}
	if v, ok := s.Config[key].(string); ok {
		return v
	}
	return ""
}

// SourcePatch is a partial update to a Source. Nil fields are left untouched.
type SourcePatch struct {
	Name                 *string         `json:"name,omitempty"`
	EndpointURL          *string         `json:"endpoint_url,omitempty"`
	Config               *map[string]any `json:"config,omitempty"`
	Enabled              *bool           `json:"enabled,omitempty"`
	MaxRowsPerRun        *int            `json:"max_rows_per_run,omitempty"`
	MaxRuntimeMinutes    *int            `json:"max_runtime_minutes,omitempty"`
	MaxRequestsPerMinute *int            `json:"max_requests_per_minute,omitempty"`
}
