// Package connector implements the portal connector framework and the two
// concrete connectors: the Socrata-style JSON dataset API and the ArcGIS
// Feature Service. A connector exposes a uniform streaming iterator over
// normalized permit records with per-source rate limiting, retries with
// jitter, pagination, and resumable cursors.
package connector

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/pipeline"
)

// pageSize is the fixed page size for all portal fetches.
const pageSize = 1000

// Config is the per-source connector configuration, lifted out of the
// source's opaque config map.
type Config struct {
	EndpointURL  string
	DatasetID    string
	AppToken     string
	LayerID      string
	DefaultState string
}

// ConfigFromSource extracts the connector configuration from a registered
// source. Numeric layer ids are accepted and formatted.
func ConfigFromSource(src model.Source) Config {
	return Config{
		EndpointURL:  src.EndpointURL,
		DatasetID:    src.ConfigString("dataset_id"),
		AppToken:     src.ConfigString("app_token"),
		LayerID:      cfgString(src.Config, "layer_id"),
		DefaultState: src.ConfigString("default_state"),
	}
}

// cfgString reads a config key as a string, formatting JSON numbers, so that
// `layer_id: 0` and `layer_id: "0"` behave the same.
func cfgString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	switch v := cfg[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

// State is the read-only cursor snapshot a run starts from. Zero values mean
// "no cursor".
type State struct {
	LastMaxTimestamp string
	LastMaxRecordID  int64
	LastIssueDate    string
}

// StateFrom snapshots the cursor fields of a state row. A nil row yields the
// zero State.
func StateFrom(s *model.SourceState) State {
	if s == nil {
		return State{}
	}
	var out State
	if s.LastMaxTimestamp != nil {
		out.LastMaxTimestamp = *s.LastMaxTimestamp
	}
	if s.LastMaxRecordID != nil {
		out.LastMaxRecordID = *s.LastMaxRecordID
	}
	if s.LastIssueDate != nil {
		out.LastIssueDate = *s.LastIssueDate
	}
	return out
}

// Request carries everything a streaming run needs. DBMaxRecordID is the
// maximum source_record_id already persisted for this source, cast to
// integer; the feature-service connector uses it to repair state-table drift.
type Request struct {
	SourceID          int64
	SourceName        string
	Config            Config
	State             State
	MaxRows           int
	RequestsPerMinute int
	DBMaxRecordID     int64
}

// Stream is the lazy, finite iterator a connector produces. Records is
// closed when the stream ends; Errs receives at most one terminal error.
// A faulted stream is discarded, not restarted: the next run re-enters from
// persisted cursors.
type Stream struct {
	Records <-chan model.Permit
	Errs    <-chan error
}

// Connector is a portal adapter. Backfill reads forward from the persisted
// cursor (or the portal's earliest record); Incremental restricts results to
// records newer than the cursors in the request state.
type Connector interface {
	Platform() model.Platform
	Validate(ctx context.Context, cfg Config) error
	Backfill(ctx context.Context, req Request) *Stream
	Incremental(ctx context.Context, req Request) *Stream
}

// Registry maps platform tags to their connectors.
type Registry struct {
	connectors map[model.Platform]Connector
	order      []model.Platform
}

// NewRegistry creates a registry populated with both wire-protocol
// connectors, sharing one normalizer.
func NewRegistry(n *pipeline.Normalizer) *Registry {
	r := &Registry{connectors: make(map[model.Platform]Connector)}
	r.Register(NewSocrata(n))
	r.Register(NewFeatureService(n))
	return r
}

// Register adds a connector to the registry.
func (r *Registry) Register(c Connector) {
	p := c.Platform()
	r.connectors[p] = c
	r.order = append(r.order, p)
}

// Get returns the connector for a platform tag.
func (r *Registry) Get(p model.Platform) (Connector, error) {
	c, ok := r.connectors[p]
	if !ok {
		return nil, eris.Errorf("connector: unsupported platform %q", p)
	}
	return c, nil
}

// Platforms returns the registered platform tags in registration order.
func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, len(r.order))
	copy(out, r.order)
	return out
}
