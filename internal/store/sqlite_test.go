package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsignal/permit-ingest/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func testSource() model.Source {
	return model.Source{
		Name:        "Sacramento",
		Platform:    model.PlatformJSONDataset,
		EndpointURL: "https://data.example.gov",
		Config:      map[string]any{"dataset_id": "abcd-1234"},
		Enabled:     true,
	}
}

func testPermit(recordID, fingerprint string) *model.Permit {
	lat, lon := 38.58, -121.49
	return &model.Permit{
		SourceID:        1,
		SourceName:      "Sacramento",
		Platform:        model.PlatformJSONDataset,
		SourceRecordID:  recordID,
		PermitType:      "Re-Roof",
		WorkDescription: "tear off and reroof",
		IssueDate:       "2024-10-15",
		RawAddress:      "700 H Street, Sacramento, CA 95814",
		Address: model.ParsedAddress{
			HouseNumber: "700", Street: "H Street", City: "Sacramento", State: "CA", Zip: "95814",
		},
		Lat: &lat, Lon: &lon,
		Fingerprint: fingerprint,
		IsRoofing:   true,
		Provenance: model.Provenance{
			Platform:  model.PlatformJSONDataset,
			URL:       "https://data.example.gov/resource/abcd-1234.json?$offset=0",
			FetchedAt: time.Now().UTC(),
		},
	}
}

func TestSQLite_SourceCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSource(ctx, testSource())
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Equal(t, 1000, created.MaxRowsPerRun)
	assert.Equal(t, 60, created.MaxRequestsPerMinute)

	got, err := s.GetSource(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sacramento", got.Name)
	assert.Equal(t, "abcd-1234", got.ConfigString("dataset_id"))

	enabled := false
	maxRows := 500
	updated, err := s.UpdateSource(ctx, created.ID, model.SourcePatch{
		Enabled:       &enabled,
		MaxRowsPerRun: &maxRows,
	})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
	assert.Equal(t, 500, updated.MaxRowsPerRun)
	// Untouched fields survive the patch.
	assert.Equal(t, "Sacramento", updated.Name)

	all, err := s.GetSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	missing, err := s.GetSource(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_SourceStatePatchMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.CreateSource(ctx, testSource())
	require.NoError(t, err)

	running := true
	msg := "Starting backfill..."
	require.NoError(t, s.UpsertSourceState(ctx, model.StatePatch{
		SourceID:      src.ID,
		IsRunning:     &running,
		StatusMessage: &msg,
	}))

	// A later patch with different fields keeps the untouched ones.
	cursor := int64(1000)
	fetched := 1000
	require.NoError(t, s.UpsertSourceState(ctx, model.StatePatch{
		SourceID:        src.ID,
		LastMaxRecordID: &cursor,
		RowsFetched:     &fetched,
	}))

	st, err := s.GetSourceState(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.IsRunning)
	assert.Equal(t, "Starting backfill...", st.StatusMessage)
	require.NotNil(t, st.LastMaxRecordID)
	assert.Equal(t, int64(1000), *st.LastMaxRecordID)
	assert.Equal(t, 1000, st.RowsFetched)

	states, err := s.GetAllSourceStates(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestSQLite_UpsertPermitIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testPermit("X-1", "fp-idempotent")
	id1, err := s.UpsertPermit(ctx, p)
	require.NoError(t, err)

	id2, err := s.UpsertPermit(ctx, testPermit("X-1", "fp-idempotent"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	stats, err := s.GetPermitStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	got, err := s.GetPermitByFingerprint(ctx, "fp-idempotent")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id1, got.ID)
	assert.Equal(t, "Re-Roof", got.PermitType)
}

func TestSQLite_UpsertPermitMergeKeepsExistingFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testPermit("X-1", "fp-merge")
	first.OwnerName = "Jane Doe"
	_, err := s.UpsertPermit(ctx, first)
	require.NoError(t, err)

	// Re-ingest without the owner: the stored value survives; new fields
	// overwrite.
	second := testPermit("X-1", "fp-merge")
	second.OwnerName = ""
	second.PermitStatus = "Finaled"
	_, err = s.UpsertPermit(ctx, second)
	require.NoError(t, err)

	got, err := s.GetPermitByFingerprint(ctx, "fp-merge")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.OwnerName)
	assert.Equal(t, "Finaled", got.PermitStatus)
}

func TestSQLite_GetPermitsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		p := testPermit(fmt.Sprintf("R-%d", i), fmt.Sprintf("fp-%d", i))
		lat := 38.0 + float64(i)
		lon := -121.0 - float64(i)
		p.Lat, p.Lon = &lat, &lon
		p.IssueDate = fmt.Sprintf("2024-10-%02d", i)
		if i > 3 {
			p.IsRoofing = false
			p.PermitType = "HVAC"
			p.Address.City = "Davis"
		}
		_, err := s.UpsertPermit(ctx, p)
		require.NoError(t, err)
	}

	// City substring on the parsed-address JSON.
	rows, total, err := s.GetPermits(ctx, PermitFilter{City: "sacra"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rows, 3)

	// Roofing flag.
	_, total, err = s.GetPermits(ctx, PermitFilter{RoofingOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// Permit-type substring.
	_, total, err = s.GetPermits(ctx, PermitFilter{PermitType: "hvac"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// Date range is a closed interval.
	_, total, err = s.GetPermits(ctx, PermitFilter{DateFrom: "2024-10-02", DateTo: "2024-10-04"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// Bounding box (closed intervals on lat and lon).
	_, total, err = s.GetPermits(ctx, PermitFilter{BBox: &BBox{West: -124, South: 39, East: -122, North: 41}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// Limit with total intact.
	rows, total, err = s.GetPermits(ctx, PermitFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rows, 2)
}

func TestSQLite_GetPermitsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	early := testPermit("A", "fp-a")
	early.IngestedAt = time.Now().UTC().Add(-time.Hour)
	_, err := s.UpsertPermit(ctx, early)
	require.NoError(t, err)

	late := testPermit("B", "fp-b")
	late.IngestedAt = time.Now().UTC()
	_, err = s.UpsertPermit(ctx, late)
	require.NoError(t, err)

	rows, _, err := s.GetPermits(ctx, PermitFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Insertion timestamp descending.
	assert.Equal(t, "fp-b", rows[0].Fingerprint)
	assert.Equal(t, "fp-a", rows[1].Fingerprint)
}

func TestSQLite_MaxSourceRecordID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, rec := range []struct{ id, fp string }{
		{"999", "fp-999"},
		{"1000", "fp-1000"},
		{"P-2000", "fp-p2000"}, // non-integer: skipped
	} {
		p := testPermit(rec.id, rec.fp)
		_, err := s.UpsertPermit(ctx, p)
		require.NoError(t, err)
	}

	// Integer cast: "1000" beats "999" despite lexicographic order.
	maxID, err := s.GetMaxSourceRecordID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), maxID)

	// No rows for an unknown source.
	maxID, err = s.GetMaxSourceRecordID(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, maxID)
}

func TestSQLite_SourcePermitCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := testPermit(fmt.Sprintf("C-%d", i), fmt.Sprintf("fp-c%d", i))
		_, err := s.UpsertPermit(ctx, p)
		require.NoError(t, err)
	}
	other := testPermit("D-1", "fp-d1")
	other.SourceID = 2
	_, err := s.UpsertPermit(ctx, other)
	require.NoError(t, err)

	count, err := s.GetSourcePermitCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLite_PermitStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	withCoords := testPermit("1", "fp-1")
	_, err := s.UpsertPermit(ctx, withCoords)
	require.NoError(t, err)

	noCoords := testPermit("2", "fp-2")
	noCoords.Lat, noCoords.Lon = nil, nil
	noCoords.IsRoofing = false
	_, err = s.UpsertPermit(ctx, noCoords)
	require.NoError(t, err)

	stats, err := s.GetPermitStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.WithCoordinates)
	assert.Equal(t, 1, stats.Roofing)
}

func TestSQLite_GeocodeCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetGeocode(ctx, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, missing)

	lat, lon := 38.58, -121.49
	require.NoError(t, s.PutGeocode(ctx, model.GeocodeEntry{
		Address: "700 H Street", Lat: &lat, Lon: &lon,
		DisplayName: "700 H Street, Sacramento", Matched: true,
		FetchedAt: time.Now().UTC(),
	}))

	got, err := s.GetGeocode(ctx, "700 H Street")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Matched)
	assert.InDelta(t, 38.58, *got.Lat, 0.0001)

	// Unmatched answers are stored too (negative cache).
	require.NoError(t, s.PutGeocode(ctx, model.GeocodeEntry{
		Address: "nowhere", Matched: false, FetchedAt: time.Now().UTC(),
	}))
	neg, err := s.GetGeocode(ctx, "nowhere")
	require.NoError(t, err)
	require.NotNil(t, neg)
	assert.False(t, neg.Matched)
	assert.Nil(t, neg.Lat)
}

func TestSQLite_PermitRoundTripPreservesJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testPermit("RT-1", "fp-rt")
	p.GeomGeoJSON = []byte(`{"type":"Point","coordinates":[-121.49,38.58]}`)
	p.Provenance.FieldsMap = map[string]string{"permit_type": "permittype"}
	p.Provenance.MaxRecordID = 1000
	id, err := s.UpsertPermit(ctx, p)
	require.NoError(t, err)

	got, err := s.GetPermit(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"type":"Point","coordinates":[-121.49,38.58]}`, string(got.GeomGeoJSON))
	assert.Equal(t, "permittype", got.Provenance.FieldsMap["permit_type"])
	assert.Equal(t, int64(1000), got.Provenance.MaxRecordID)
	assert.Equal(t, "H Street", got.Address.Street)
}
