package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsignal/permit-ingest/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM sources WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	src, err := s.GetSource(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, src)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM sources WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "platform", "endpoint_url", "config", "enabled",
			"max_rows_per_run", "max_runtime_minutes", "max_requests_per_minute",
			"created_at", "updated_at",
		}).AddRow(
			int64(1), "Sacramento", "json-dataset", "https://data.example.gov",
			[]byte(`{"dataset_id":"abcd-1234"}`), true, 1000, 30, 60, now, now,
		))

	src, err := s.GetSource(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, model.PlatformJSONDataset, src.Platform)
	assert.Equal(t, "abcd-1234", src.ConfigString("dataset_id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSourceState_PatchMergeSQL(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	running := true
	msg := "Starting backfill..."
	page := 0
	mock.ExpectExec(`INSERT INTO source_state`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertSourceState(context.Background(), model.StatePatch{
		SourceID:      1,
		IsRunning:     &running,
		StatusMessage: &msg,
		CurrentPage:   &page,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPermitByFingerprint_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM permits WHERE fingerprint = \$1`).
		WithArgs("fp-missing").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetPermitByFingerprint(context.Background(), "fp-missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPermit_InsertsWhenAbsent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM permits WHERE fingerprint = \$1`).
		WithArgs("fp-new").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO permits`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.UpsertPermit(context.Background(), &model.Permit{
		SourceID:    1,
		Platform:    model.PlatformJSONDataset,
		Fingerprint: "fp-new",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMaxSourceRecordID_CastsToInteger(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(source_record_id::bigint\), 0\)`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(int64(1000)))

	maxID, err := s.GetMaxSourceRecordID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), maxID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPermitStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "coords", "roofing"}).AddRow(120, 80, 45))

	stats, err := s.GetPermitStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, stats.Total)
	assert.Equal(t, 80, stats.WithCoordinates)
	assert.Equal(t, 45, stats.Roofing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergePermit(t *testing.T) {
	val := 100.0
	existing := &model.Permit{
		ID:          "perm-1",
		PermitType:  "Re-Roof",
		OwnerName:   "Jane Doe",
		PermitValue: &val,
		IsRoofing:   true,
		IngestedAt:  time.Now().UTC().Add(-time.Hour),
	}
	incoming := &model.Permit{
		PermitStatus: "Finaled",
		IsRoofing:    true,
	}

	merged := mergePermit(existing, incoming)
	assert.Equal(t, "perm-1", merged.ID)
	assert.Equal(t, "Re-Roof", merged.PermitType)
	assert.Equal(t, "Jane Doe", merged.OwnerName)
	assert.Equal(t, "Finaled", merged.PermitStatus)
	require.NotNil(t, merged.PermitValue)
	assert.Equal(t, existing.IngestedAt, merged.IngestedAt)
}
