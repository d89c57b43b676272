package connector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/resilience"
)

var objectIDWhereRe = regexp.MustCompile(`OBJECTID > (\d+)`)

// newFeatureServer serves features with OBJECTIDs 1..total, honoring the
// where cursor, resultOffset, and resultRecordCount.
func newFeatureServer(t *testing.T, total int) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		q := r.URL.Query()

		count, _ := strconv.Atoi(q.Get("resultRecordCount"))
		offset, _ := strconv.Atoi(q.Get("resultOffset"))
		if count <= 0 {
			count = 1000
		}

		startID := 1
		if m := objectIDWhereRe.FindStringSubmatch(q.Get("where")); m != nil {
			cursor, _ := strconv.Atoi(m[1])
			startID = cursor + 1
		}

		features := []map[string]any{}
		for i := 0; i < count; i++ {
			id := startID + offset + i
			if id > total {
				break
			}
			features = append(features, map[string]any{
				"attributes": map[string]any{
					"OBJECTID":   id,
					"PermitType": "Re-Roof",
					"Address":    fmt.Sprintf("%d J Street, Sacramento, CA 95814", id),
					"IssueDate":  1728950400000, // 2024-10-15 UTC in epoch millis
				},
				"geometry": map[string]any{"x": -121.49, "y": 38.58},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"features": features})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func featureRequest(srv *httptest.Server, maxRows int) Request {
	return Request{
		SourceID:          2,
		SourceName:        "Sacramento County",
		Config:            Config{EndpointURL: srv.URL, LayerID: "0"},
		MaxRows:           maxRows,
		RequestsPerMinute: 600,
	}
}

func TestFeatureService_BackfillCarriesBatchCursor(t *testing.T) {
	srv, seen := newFeatureServer(t, 1000)
	f := NewFeatureService(testNormalizer())

	records, err := collect(t, f.Backfill(testCtx(t), featureRequest(srv, 1000)))
	require.NoError(t, err)
	require.Len(t, records, 1000)

	// No cursor yet: the first query fetches everything.
	first := (*seen)[0].URL.Query()
	assert.Equal(t, "1=1", first.Get("where"))
	assert.Equal(t, "*", first.Get("outFields"))
	assert.Equal(t, "4326", first.Get("outSR"))
	assert.Equal(t, "OBJECTID", first.Get("orderByFields"))

	// Every record in the batch reports the batch maximum.
	for _, rec := range records {
		assert.Equal(t, int64(1000), rec.Provenance.MaxRecordID)
	}
	assert.Equal(t, "1000", records[999].SourceRecordID)
}

func TestFeatureService_CursorResumesPastLastMaxRecordID(t *testing.T) {
	srv, seen := newFeatureServer(t, 1200)
	f := NewFeatureService(testNormalizer())

	req := featureRequest(srv, 1000)
	req.State = State{LastMaxRecordID: 1000}
	records, err := collect(t, f.Incremental(testCtx(t), req))
	require.NoError(t, err)

	assert.Equal(t, "OBJECTID > 1000", (*seen)[0].URL.Query().Get("where"))
	require.Len(t, records, 200)
	assert.Equal(t, "1001", records[0].SourceRecordID)
	assert.Equal(t, int64(1200), records[199].Provenance.MaxRecordID)
}

func TestFeatureService_DBMaxRepairsStateDrift(t *testing.T) {
	srv, seen := newFeatureServer(t, 600)
	f := NewFeatureService(testNormalizer())

	// State says 100 but the database already holds records up to 500: the
	// larger value wins.
	req := featureRequest(srv, 1000)
	req.State = State{LastMaxRecordID: 100}
	req.DBMaxRecordID = 500
	records, err := collect(t, f.Backfill(testCtx(t), req))
	require.NoError(t, err)

	assert.Equal(t, "OBJECTID > 500", (*seen)[0].URL.Query().Get("where"))
	assert.Len(t, records, 100)
}

func TestFeatureService_IncrementalTimestampFallback(t *testing.T) {
	srv, seen := newFeatureServer(t, 0)
	f := NewFeatureService(testNormalizer())

	req := featureRequest(srv, 10)
	req.State = State{LastMaxTimestamp: "2024-06-01"}
	_, err := collect(t, f.Incremental(testCtx(t), req))
	require.NoError(t, err)
	assert.Equal(t, "lastEditDate > '2024-06-01'", (*seen)[0].URL.Query().Get("where"))
}

func TestFeatureService_NormalizesDatesAndGeometry(t *testing.T) {
	srv, _ := newFeatureServer(t, 1)
	f := NewFeatureService(testNormalizer())

	records, err := collect(t, f.Backfill(testCtx(t), featureRequest(srv, 10)))
	require.NoError(t, err)
	require.Len(t, records, 1)

	p := records[0]
	assert.Equal(t, "2024-10-15", p.IssueDate)
	require.NotNil(t, p.Lat)
	require.NotNil(t, p.Lon)
	assert.InDelta(t, 38.58, *p.Lat, 0.001)
	assert.InDelta(t, -121.49, *p.Lon, 0.001)

	// The stored geometry is GeoJSON, not the ArcGIS shape.
	var gj struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(p.GeomGeoJSON, &gj))
	assert.Equal(t, "Point", gj.Type)
	require.Len(t, gj.Coordinates, 2)
	assert.InDelta(t, -121.49, gj.Coordinates[0], 0.001)
	assert.InDelta(t, 38.58, gj.Coordinates[1], 0.001)
}

func TestFeatureService_CoordinatesArrayGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"features": []map[string]any{{
			"attributes": map[string]any{"OBJECTID": 1},
			"geometry":   map[string]any{"coordinates": []float64{-104.99, 39.74}},
		}}})
	}))
	t.Cleanup(srv.Close)
	f := NewFeatureService(testNormalizer())

	records, err := collect(t, f.Backfill(testCtx(t), featureRequest(srv, 10)))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Lat)
	assert.InDelta(t, 39.74, *records[0].Lat, 0.001)
	assert.InDelta(t, -104.99, *records[0].Lon, 0.001)
}

func TestFeatureService_ErrorBodyIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HTTP 200 with a top-level error object is still a failure.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "Invalid query"},
		})
	}))
	t.Cleanup(srv.Close)
	f := NewFeatureService(testNormalizer())

	records, err := collect(t, f.Backfill(testCtx(t), featureRequest(srv, 10)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid query")
	assert.Empty(t, records)
}

func TestFeatureService_RetriesAfter429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"features": []map[string]any{{
			"attributes": map[string]any{"OBJECTID": 1, "PermitType": "Re-Roof"},
		}}})
	}))
	t.Cleanup(srv.Close)
	f := NewFeatureService(testNormalizer())

	start := time.Now()
	records, err := collect(t, f.Backfill(testCtx(t), featureRequest(srv, 10)))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, calls)
	// Backoff after the 429 is at least the one-second base delay.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestFeatureService_Validate(t *testing.T) {
	srv, _ := newFeatureServer(t, 0)
	f := NewFeatureService(testNormalizer())

	assert.NoError(t, f.Validate(testCtx(t), Config{EndpointURL: srv.URL, LayerID: "0"}))

	err := f.Validate(testCtx(t), Config{EndpointURL: srv.URL})
	require.Error(t, err)
	assert.True(t, resilience.IsConfigError(err))

	err = f.Validate(testCtx(t), Config{LayerID: "0"})
	require.Error(t, err)
	assert.True(t, resilience.IsConfigError(err))
}

func TestConfigFromSource_NumericLayerID(t *testing.T) {
	src := model.Source{
		EndpointURL: "https://gis.example.com/arcgis/rest/services/Permits",
		Config:      map[string]any{"layer_id": float64(3), "default_state": "CA"},
	}
	cfg := ConfigFromSource(src)
	assert.Equal(t, "3", cfg.LayerID)
	assert.Equal(t, "CA", cfg.DefaultState)
}
