package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/pipeline"
	"github.com/roofsignal/permit-ingest/internal/resilience"
)

// FeatureService is the ArcGIS connector: pages
// {endpoint}/FeatureServer/{layer}/query ordered by OBJECTID, requesting
// WGS84 output, and resumes from an integer OBJECTID cursor.
type FeatureService struct {
	normalizer *pipeline.Normalizer
}

// NewFeatureService creates the feature-service connector.
func NewFeatureService(n *pipeline.Normalizer) *FeatureService {
	return &FeatureService{normalizer: n}
}

func (f *FeatureService) Platform() model.Platform { return model.PlatformFeatureService }

// featureResponse is the layer query envelope. A top-level error object is a
// failure even when the HTTP status is 200.
type featureResponse struct {
	Features []struct {
		Attributes map[string]any  `json:"attributes"`
		Geometry   json.RawMessage `json:"geometry,omitempty"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Validate checks required config and probes the layer with a one-row query.
func (f *FeatureService) Validate(ctx context.Context, cfg Config) error {
	if cfg.EndpointURL == "" {
		return resilience.NewConfigError("feature-service: endpoint_url is required")
	}
	if cfg.LayerID == "" {
		return resilience.NewConfigError("feature-service: layer_id is required")
	}
	u := f.queryURL(cfg, 1, 0, "1=1")
	return probe(ctx, u, nil)
}

// Backfill streams features in OBJECTID order starting past the repaired
// cursor: the greater of the state cursor and the integer-cast maximum
// source_record_id already persisted for this source. The second input
// repairs state-table drift when records predate the cursor column.
func (f *FeatureService) Backfill(ctx context.Context, req Request) *Stream {
	return f.run(ctx, req, f.cursorWhere(req, false))
}

// Incremental is Backfill with a timestamp clause when no OBJECTID cursor
// exists yet.
func (f *FeatureService) Incremental(ctx context.Context, req Request) *Stream {
	return f.run(ctx, req, f.cursorWhere(req, true))
}

func (f *FeatureService) cursorWhere(req Request, incremental bool) string {
	cursor := req.State.LastMaxRecordID
	if req.DBMaxRecordID > cursor {
		cursor = req.DBMaxRecordID
	}
	if cursor > 0 {
		return fmt.Sprintf("OBJECTID > %d", cursor)
	}
	if incremental && req.State.LastMaxTimestamp != "" {
		return fmt.Sprintf("lastEditDate > '%s'", req.State.LastMaxTimestamp)
	}
	return "1=1"
}

func (f *FeatureService) queryURL(cfg Config, count, offset int, where string) string {
	q := url.Values{}
	q.Set("outFields", "*")
	q.Set("f", "json")
	q.Set("outSR", "4326")
	q.Set("orderByFields", "OBJECTID")
	q.Set("resultOffset", fmt.Sprintf("%d", offset))
	q.Set("resultRecordCount", fmt.Sprintf("%d", count))
	q.Set("where", where)
	base := strings.TrimRight(cfg.EndpointURL, "/")
	return fmt.Sprintf("%s/FeatureServer/%s/query?%s", base, cfg.LayerID, q.Encode())
}

func (f *FeatureService) run(ctx context.Context, req Request, where string) *Stream {
	records := make(chan model.Permit, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		client := newPortalClient(req.RequestsPerMinute)
		produced := 0
		offset := 0

		for page := 0; ; page++ {
			count := pageSize
			if req.MaxRows > 0 && req.MaxRows-produced < count {
				count = req.MaxRows - produced
			}
			if count <= 0 {
				return
			}

			pageURL := f.queryURL(req.Config, count, offset, where)
			body, err := client.getJSON(ctx, pageURL, nil)
			if err != nil {
				errs <- eris.Wrapf(err, "arcgis: fetch page %d", page)
				return
			}

			var resp featureResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				errs <- eris.Wrapf(err, "arcgis: decode page %d", page)
				return
			}
			if resp.Error != nil {
				errs <- eris.Errorf("arcgis: portal error %d: %s", resp.Error.Code, resp.Error.Message)
				return
			}

			// Cursor carry: each record in the batch reports the largest
			// OBJECTID observed in that batch, so the orchestrator can
			// advance the cursor even when later rows fail to persist.
			var batchMax int64
			for _, feat := range resp.Features {
				if id, ok := objectID(feat.Attributes); ok && id > batchMax {
					batchMax = id
				}
			}

			fetchedAt := time.Now().UTC()
			for _, feat := range resp.Features {
				p := f.normalize(feat.Attributes, feat.Geometry, req, pageURL, fetchedAt, batchMax)
				select {
				case records <- p:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				produced++
			}

			zap.L().Debug("feature-service page complete",
				zap.Int64("source_id", req.SourceID),
				zap.Int("page", page),
				zap.Int("rows", len(resp.Features)),
				zap.Int64("batch_max_record_id", batchMax),
			)

			if len(resp.Features) < count {
				return
			}
			offset += len(resp.Features)
		}
	}()

	return &Stream{Records: records, Errs: errs}
}

func objectID(attrs map[string]any) (int64, bool) {
	for _, name := range []string{"OBJECTID", "ObjectId", "objectid", "FID"} {
		if v, ok := attrs[name]; ok {
			if id, ok := asInt64(v); ok {
				return id, true
			}
		}
	}
	return 0, false
}

// normalize maps one feature into a permit. The alternates lists here are
// longer than the JSON-dataset ones: ArcGIS layers frequently carry
// jurisdiction-specific export names.
func (f *FeatureService) normalize(attrs map[string]any, rawGeom json.RawMessage, req Request, pageURL string, fetchedAt time.Time, batchMax int64) model.Permit {
	fieldsMap := make(map[string]string)
	note := func(normalized, portal string) {
		if portal != "" {
			fieldsMap[normalized] = portal
		}
	}

	p := model.Permit{
		SourceID:   req.SourceID,
		SourceName: req.SourceName,
		Platform:   model.PlatformFeatureService,
	}

	if id, ok := objectID(attrs); ok {
		p.SourceRecordID = fmt.Sprintf("%d", id)
		note("source_record_id", "OBJECTID")
	} else {
		p.SourceRecordID = "gen-" + uuid.New().String()
	}

	var fld string
	p.PermitType, fld = firstString(attrs,
		"PermitType", "PERMIT_TYPE", "PermitClass", "Type", "PermitTypeDesc",
		"ActiveBuilding_ExcelToTable_PermitType", "ActiveBuilding_ExcelToTable_Type")
	note("permit_type", fld)
	p.WorkDescription, fld = firstString(attrs,
		"Description", "WorkDescription", "WORK_DESC", "ProjectDescription", "ScopeOfWork",
		"ActiveBuilding_ExcelToTable_Description")
	note("work_description", fld)
	p.PermitStatus, fld = firstString(attrs,
		"Status", "PermitStatus", "STATUS", "CurrentStatus")
	note("permit_status", fld)

	if v, df := firstRaw(attrs,
		"IssueDate", "ISSUE_DATE", "IssuedDate", "DateIssued", "issue_date",
		"ActiveBuilding_ExcelToTable_IssueDate"); v != nil {
		p.IssueDate = normalizeDate(v)
		note("issue_date", df)
	}

	p.RawAddress, fld = firstString(attrs,
		"Address", "SiteAddress", "SITE_ADDR", "FullAddress", "OriginalAddress", "PermitAddress",
		"ActiveBuilding_ExcelToTable_Address")
	note("address", fld)
	p.ParcelID, fld = firstString(attrs,
		"ParcelNumber", "APN", "PARCEL_ID", "Parcel", "ParcelID")
	note("parcel_id", fld)
	p.OwnerName, fld = firstString(attrs, "OwnerName", "Owner", "OWNER_NAME")
	note("owner_name", fld)
	p.ContractorName, fld = firstString(attrs, "ContractorName", "Contractor", "CONTRACTOR")
	note("contractor_name", fld)

	if v, vf := firstNumber(attrs,
		"Valuation", "JobValue", "PermitValue", "EstProjectCost", "Value"); v != nil {
		p.PermitValue = v
		note("permit_value", vf)
	}

	if lat, lon, gj := parseGeometry(rawGeom); lat != nil && lon != nil {
		p.Lat, p.Lon = lat, lon
		p.GeomGeoJSON = gj
	}

	p.Provenance = model.Provenance{
		Platform:    model.PlatformFeatureService,
		URL:         pageURL,
		FetchedAt:   fetchedAt,
		FieldsMap:   fieldsMap,
		MaxRecordID: batchMax,
	}

	f.normalizer.Finish(&p, req.Config.DefaultState)
	return p
}

// parseGeometry accepts both feature geometry shapes, {x,y} and
// {coordinates:[lon,lat]}, and re-encodes the point as GeoJSON so the stored
// geometry column is what its name says.
func parseGeometry(raw json.RawMessage) (lat, lon *float64, gj json.RawMessage) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	var g struct {
		X           *float64  `json:"x"`
		Y           *float64  `json:"y"`
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, nil, nil
	}

	switch {
	case g.X != nil && g.Y != nil:
		lon, lat = g.X, g.Y
	case len(g.Coordinates) >= 2:
		lon, lat = &g.Coordinates[0], &g.Coordinates[1]
	default:
		return nil, nil, nil
	}

	pt := geom.NewPointFlat(geom.XY, []float64{*lon, *lat})
	pt.SetSRID(4326)
	encoded, err := geojson.Marshal(pt)
	if err != nil {
		return lat, lon, nil
	}
	return lat, lon, encoded
}
