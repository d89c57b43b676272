package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/pipeline"
	"github.com/roofsignal/permit-ingest/internal/resilience"
)

// Socrata is the JSON-dataset connector: paginates
// {endpoint}/resource/{dataset_id}.json with $limit/$offset/$where and
// forwards an optional app token as the X-App-Token header.
type Socrata struct {
	normalizer *pipeline.Normalizer
}

// NewSocrata creates the JSON-dataset connector.
func NewSocrata(n *pipeline.Normalizer) *Socrata {
	return &Socrata{normalizer: n}
}

func (s *Socrata) Platform() model.Platform { return model.PlatformJSONDataset }

// Validate checks required config and probes the dataset with a one-row
// request.
func (s *Socrata) Validate(ctx context.Context, cfg Config) error {
	if cfg.EndpointURL == "" {
		return resilience.NewConfigError("json-dataset: endpoint_url is required")
	}
	if cfg.DatasetID == "" {
		return resilience.NewConfigError("json-dataset: dataset_id is required")
	}
	u := s.datasetURL(cfg, 1, 0, "")
	return probe(ctx, u, s.header(cfg))
}

// Backfill streams the dataset from the beginning (the portal orders rows;
// dedup happens downstream by fingerprint).
func (s *Socrata) Backfill(ctx context.Context, req Request) *Stream {
	return s.run(ctx, req, "")
}

// Incremental streams rows newer than the persisted cursors: the portal's
// data-loaded watermark when present, else the issue-date cursor.
func (s *Socrata) Incremental(ctx context.Context, req Request) *Stream {
	var where string
	switch {
	case req.State.LastMaxTimestamp != "":
		where = fmt.Sprintf("data_loaded_at > '%s'", req.State.LastMaxTimestamp)
	case req.State.LastIssueDate != "":
		where = fmt.Sprintf("issue_date > '%s'", req.State.LastIssueDate)
	}
	return s.run(ctx, req, where)
}

func (s *Socrata) header(cfg Config) http.Header {
	h := http.Header{}
	if cfg.AppToken != "" {
		h.Set("X-App-Token", cfg.AppToken)
	}
	return h
}

func (s *Socrata) datasetURL(cfg Config, limit, offset int, where string) string {
	q := url.Values{}
	q.Set("$limit", fmt.Sprintf("%d", limit))
	q.Set("$offset", fmt.Sprintf("%d", offset))
	if where != "" {
		q.Set("$where", where)
	}
	base := strings.TrimRight(cfg.EndpointURL, "/")
	return fmt.Sprintf("%s/resource/%s.json?%s", base, cfg.DatasetID, q.Encode())
}

func (s *Socrata) run(ctx context.Context, req Request, where string) *Stream {
	records := make(chan model.Permit, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		client := newPortalClient(req.RequestsPerMinute)
		produced := 0
		offset := 0

		for page := 0; ; page++ {
			limit := pageSize
			if req.MaxRows > 0 && req.MaxRows-produced < limit {
				limit = req.MaxRows - produced
			}
			if limit <= 0 {
				return
			}

			pageURL := s.datasetURL(req.Config, limit, offset, where)
			body, err := client.getJSON(ctx, pageURL, s.header(req.Config))
			if err != nil {
				errs <- eris.Wrapf(err, "socrata: fetch page %d", page)
				return
			}

			var rows []map[string]any
			if err := json.Unmarshal(body, &rows); err != nil {
				errs <- eris.Wrapf(err, "socrata: decode page %d", page)
				return
			}

			fetchedAt := time.Now().UTC()
			for _, raw := range rows {
				p := s.normalize(raw, req, pageURL, fetchedAt)
				select {
				case records <- p:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				produced++
			}

			zap.L().Debug("json-dataset page complete",
				zap.Int64("source_id", req.SourceID),
				zap.Int("page", page),
				zap.Int("rows", len(rows)),
			)

			if len(rows) < limit {
				return
			}
			offset += len(rows)
		}
	}()

	return &Stream{Records: records, Errs: errs}
}

// normalize maps one portal row into a permit. Field names vary across
// deployments, so each normalized field probes a short alternates list.
func (s *Socrata) normalize(raw map[string]any, req Request, pageURL string, fetchedAt time.Time) model.Permit {
	fieldsMap := make(map[string]string)
	note := func(normalized, portal string) {
		if portal != "" {
			fieldsMap[normalized] = portal
		}
	}

	p := model.Permit{
		SourceID:   req.SourceID,
		SourceName: req.SourceName,
		Platform:   model.PlatformJSONDataset,
	}

	recordID, recField := firstString(raw, "id", "_id")
	if recordID == "" {
		// No portal identifier: synthesize one so fingerprint-based dedup
		// still works downstream.
		recordID = "gen-" + uuid.New().String()
	}
	p.SourceRecordID = recordID
	note("source_record_id", recField)

	var f string
	p.PermitType, f = firstString(raw, "permit_type", "permittype", "type", "permit_type_desc", "permit_class")
	note("permit_type", f)
	p.WorkDescription, f = firstString(raw, "description", "work_description", "workdesc", "work_desc", "job_description", "proposed_use")
	note("work_description", f)
	p.PermitStatus, f = firstString(raw, "status", "permit_status", "statuscurrent", "current_status")
	note("permit_status", f)

	if v, df := firstRaw(raw, "issue_date", "issued_date", "issueddate", "date_issued", "issuedate"); v != nil {
		p.IssueDate = normalizeDate(v)
		note("issue_date", df)
	}

	p.ParcelID, f = firstString(raw, "parcel_number", "parcel_id", "apn", "parcelno", "parcel")
	note("parcel_id", f)
	p.OwnerName, f = firstString(raw, "owner_name", "owner", "applicant_name")
	note("owner_name", f)
	p.ContractorName, f = firstString(raw, "contractor_name", "contractor", "contractor_business_name")
	note("contractor_name", f)

	if v, vf := firstNumber(raw, "valuation", "permit_value", "job_value", "estimated_cost", "value"); v != nil {
		p.PermitValue = v
		note("permit_value", vf)
	}

	addr, lat, lon, af := extractSocrataAddress(raw)
	p.RawAddress = addr
	note("address", af)
	if lat == nil || lon == nil {
		lat, _ = firstNumber(raw, "latitude", "lat")
		lon, _ = firstNumber(raw, "longitude", "lon", "lng")
	}
	if lat != nil && lon != nil {
		p.Lat, p.Lon = lat, lon
	}

	p.Provenance = model.Provenance{
		Platform:  model.PlatformJSONDataset,
		URL:       pageURL,
		FetchedAt: fetchedAt,
		FieldsMap: fieldsMap,
	}

	s.normalizer.Finish(&p, req.Config.DefaultState)
	return p
}

// extractSocrataAddress handles the three shapes an address arrives in:
// a plain string, an object with a human_address sub-field (possibly itself
// JSON-encoded), or a string of JSON.
func extractSocrataAddress(raw map[string]any) (addr string, lat, lon *float64, field string) {
	v, field := firstRaw(raw, "address", "original_address1", "street_address", "location_address", "full_address", "location")
	if v == nil {
		return "", nil, nil, ""
	}

	switch t := v.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		if strings.HasPrefix(trimmed, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
				a, la, lo := addressFromObject(obj)
				return a, la, lo, field
			}
		}
		return trimmed, nil, nil, field
	case map[string]any:
		a, la, lo := addressFromObject(t)
		return a, la, lo, field
	}
	return "", nil, nil, field
}

func addressFromObject(obj map[string]any) (string, *float64, *float64) {
	lat := asFloat(obj["latitude"])
	lon := asFloat(obj["longitude"])

	if ha, ok := obj["human_address"]; ok {
		switch h := ha.(type) {
		case string:
			var inner map[string]any
			if err := json.Unmarshal([]byte(h), &inner); err == nil {
				return joinHumanAddress(inner), lat, lon
			}
			return strings.TrimSpace(h), lat, lon
		case map[string]any:
			return joinHumanAddress(h), lat, lon
		}
	}
	return joinHumanAddress(obj), lat, lon
}

// joinHumanAddress reassembles a Socrata human_address object into the
// comma-separated form the address parser expects, with state and zip kept
// in one trailing component.
func joinHumanAddress(obj map[string]any) string {
	var parts []string
	for _, key := range []string{"address", "city"} {
		if s := asString(obj[key]); s != "" {
			parts = append(parts, s)
		}
	}
	tail := strings.TrimSpace(asString(obj["state"]) + " " + asString(obj["zip"]))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}
