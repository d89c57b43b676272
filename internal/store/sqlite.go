package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/roofsignal/permit-ingest/internal/model"
)

// SQLiteStore implements Store on a local SQLite file for development and
// single-operator runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "permits.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite allows one writer; the shared pool serializes through it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: pragma")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	name                    TEXT NOT NULL,
	platform                TEXT NOT NULL DEFAULT 'other'
	                        CHECK (platform IN ('json-dataset', 'feature-service', 'other')),
	endpoint_url            TEXT NOT NULL,
	config                  TEXT NOT NULL DEFAULT '{}',
	enabled                 INTEGER NOT NULL DEFAULT 1,
	max_rows_per_run        INTEGER NOT NULL DEFAULT 1000,
	max_runtime_minutes     INTEGER NOT NULL DEFAULT 30,
	max_requests_per_minute INTEGER NOT NULL DEFAULT 60,
	created_at              TIMESTAMP NOT NULL,
	updated_at              TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS source_state (
	source_id          INTEGER PRIMARY KEY REFERENCES sources(id),
	last_max_timestamp TEXT,
	last_max_record_id INTEGER,
	last_issue_date    TEXT,
	etag               TEXT,
	checksum           TEXT,
	rows_fetched       INTEGER NOT NULL DEFAULT 0,
	rows_upserted      INTEGER NOT NULL DEFAULT 0,
	errors             INTEGER NOT NULL DEFAULT 0,
	freshness_seconds  INTEGER,
	last_sync_at       TIMESTAMP,
	is_running         INTEGER NOT NULL DEFAULT 0,
	status_message     TEXT NOT NULL DEFAULT '',
	current_page       INTEGER NOT NULL DEFAULT 0,
	updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS permits (
	id               TEXT PRIMARY KEY,
	source_id        INTEGER NOT NULL,
	source_name      TEXT NOT NULL DEFAULT '',
	platform         TEXT NOT NULL DEFAULT 'other',
	source_record_id TEXT NOT NULL DEFAULT '',
	permit_type      TEXT NOT NULL DEFAULT '',
	work_description TEXT NOT NULL DEFAULT '',
	permit_status    TEXT NOT NULL DEFAULT '',
	issue_date       TEXT NOT NULL DEFAULT '',
	raw_address      TEXT NOT NULL DEFAULT '',
	address_parsed   TEXT,
	parcel_id        TEXT NOT NULL DEFAULT '',
	owner_name       TEXT NOT NULL DEFAULT '',
	contractor_name  TEXT NOT NULL DEFAULT '',
	permit_value     REAL,
	lat              REAL,
	lon              REAL,
	geom_geojson     TEXT,
	fingerprint      TEXT NOT NULL,
	is_roofing       INTEGER NOT NULL DEFAULT 0,
	ingested_at      TIMESTAMP NOT NULL,
	provenance       TEXT,
	raw_ref          TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_permits_fingerprint ON permits(fingerprint);
CREATE INDEX IF NOT EXISTS idx_permits_coords ON permits(lat, lon) WHERE lat IS NOT NULL AND lon IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_permits_issue_date ON permits(issue_date);
CREATE INDEX IF NOT EXISTS idx_permits_roofing ON permits(is_roofing) WHERE is_roofing = 1;
CREATE INDEX IF NOT EXISTS idx_permits_source_id ON permits(source_id);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address      TEXT PRIMARY KEY,
	lat          REAL,
	lon          REAL,
	display_name TEXT NOT NULL DEFAULT '',
	matched      INTEGER NOT NULL DEFAULT 0,
	fetched_at   TIMESTAMP NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSourceSQL(row rowScanner) (*model.Source, error) {
	var src model.Source
	var configJSON string
	var platform string
	if err := row.Scan(&src.ID, &src.Name, &platform, &src.EndpointURL, &configJSON,
		&src.Enabled, &src.MaxRowsPerRun, &src.MaxRuntimeMinutes, &src.MaxRequestsPerMinute,
		&src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	src.Platform = model.Platform(platform)
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &src.Config); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source config")
		}
	}
	return &src, nil
}

func (s *SQLiteStore) GetSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var sources []model.Source
	for rows.Next() {
		src, err := scanSourceSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	src, err := scanSourceSQL(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get source %d", id)
	}
	return src, nil
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	if src.Config == nil {
		src.Config = map[string]any{}
	}
	configJSON, err := json.Marshal(src.Config)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal source config")
	}
	if src.MaxRowsPerRun <= 0 {
		src.MaxRowsPerRun = 1000
	}
	if src.MaxRuntimeMinutes <= 0 {
		src.MaxRuntimeMinutes = 30
	}
	if src.MaxRequestsPerMinute <= 0 {
		src.MaxRequestsPerMinute = 60
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, platform, endpoint_url, config, enabled, max_rows_per_run, max_runtime_minutes, max_requests_per_minute, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, string(src.Platform), src.EndpointURL, string(configJSON), src.Enabled,
		src.MaxRowsPerRun, src.MaxRuntimeMinutes, src.MaxRequestsPerMinute, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert source")
	}
	src.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	src.CreatedAt = now
	src.UpdatedAt = now
	return &src, nil
}

func (s *SQLiteStore) UpdateSource(ctx context.Context, id int64, patch model.SourcePatch) (*model.Source, error) {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, eris.Errorf("sqlite: source not found: %d", id)
	}

	if patch.Name != nil {
		src.Name = *patch.Name
	}
	if patch.EndpointURL != nil {
		src.EndpointURL = *patch.EndpointURL
	}
	if patch.Config != nil {
		src.Config = *patch.Config
	}
	if patch.Enabled != nil {
		src.Enabled = *patch.Enabled
	}
	if patch.MaxRowsPerRun != nil {
		src.MaxRowsPerRun = *patch.MaxRowsPerRun
	}
	if patch.MaxRuntimeMinutes != nil {
		src.MaxRuntimeMinutes = *patch.MaxRuntimeMinutes
	}
	if patch.MaxRequestsPerMinute != nil {
		src.MaxRequestsPerMinute = *patch.MaxRequestsPerMinute
	}

	configJSON, err := json.Marshal(src.Config)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal source config")
	}
	src.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE sources SET name = ?, endpoint_url = ?, config = ?, enabled = ?,
		 max_rows_per_run = ?, max_runtime_minutes = ?, max_requests_per_minute = ?, updated_at = ?
		 WHERE id = ?`,
		src.Name, src.EndpointURL, string(configJSON), src.Enabled,
		src.MaxRowsPerRun, src.MaxRuntimeMinutes, src.MaxRequestsPerMinute, src.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update source %d", id)
	}
	return src, nil
}

func scanStateSQL(row rowScanner) (*model.SourceState, error) {
	var st model.SourceState
	if err := row.Scan(&st.SourceID, &st.LastMaxTimestamp, &st.LastMaxRecordID, &st.LastIssueDate,
		&st.ETag, &st.Checksum, &st.RowsFetched, &st.RowsUpserted, &st.Errors,
		&st.FreshnessSeconds, &st.LastSyncAt, &st.IsRunning, &st.StatusMessage,
		&st.CurrentPage, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) GetSourceState(ctx context.Context, sourceID int64) (*model.SourceState, error) {
	st, err := scanStateSQL(s.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM source_state WHERE source_id = ?`, sourceID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get source state %d", sourceID)
	}
	return st, nil
}

func (s *SQLiteStore) GetAllSourceStates(ctx context.Context) ([]model.SourceState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM source_state ORDER BY source_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source states")
	}
	defer rows.Close() //nolint:errcheck

	var states []model.SourceState
	for rows.Next() {
		st, err := scanStateSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source state")
		}
		states = append(states, *st)
	}
	return states, eris.Wrap(rows.Err(), "sqlite: list source states iterate")
}

func (s *SQLiteStore) UpsertSourceState(ctx context.Context, patch model.StatePatch) error {
	existing, err := s.GetSourceState(ctx, patch.SourceID)
	if err != nil {
		return err
	}

	st := model.SourceState{SourceID: patch.SourceID}
	if existing != nil {
		st = *existing
	}
	patch.Apply(&st)
	st.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_state (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id) DO UPDATE SET
		   last_max_timestamp = excluded.last_max_timestamp,
		   last_max_record_id = excluded.last_max_record_id,
		   last_issue_date    = excluded.last_issue_date,
		   etag               = excluded.etag,
		   checksum           = excluded.checksum,
		   rows_fetched       = excluded.rows_fetched,
		   rows_upserted      = excluded.rows_upserted,
		   errors             = excluded.errors,
		   freshness_seconds  = excluded.freshness_seconds,
		   last_sync_at       = excluded.last_sync_at,
		   is_running         = excluded.is_running,
		   status_message     = excluded.status_message,
		   current_page       = excluded.current_page,
		   updated_at         = excluded.updated_at`,
		st.SourceID, st.LastMaxTimestamp, st.LastMaxRecordID, st.LastIssueDate,
		st.ETag, st.Checksum, st.RowsFetched, st.RowsUpserted, st.Errors,
		st.FreshnessSeconds, st.LastSyncAt, st.IsRunning, st.StatusMessage,
		st.CurrentPage, st.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert source state %d", patch.SourceID)
}

func scanPermitSQL(row rowScanner) (*model.Permit, error) {
	var p model.Permit
	var platform string
	var addressJSON, geomJSON, provJSON sql.NullString
	if err := row.Scan(&p.ID, &p.SourceID, &p.SourceName, &platform, &p.SourceRecordID,
		&p.PermitType, &p.WorkDescription, &p.PermitStatus, &p.IssueDate, &p.RawAddress,
		&addressJSON, &p.ParcelID, &p.OwnerName, &p.ContractorName, &p.PermitValue,
		&p.Lat, &p.Lon, &geomJSON, &p.Fingerprint, &p.IsRoofing, &p.IngestedAt,
		&provJSON, &p.RawRef); err != nil {
		return nil, err
	}
	p.Platform = model.Platform(platform)
	if addressJSON.Valid && addressJSON.String != "" {
		if err := json.Unmarshal([]byte(addressJSON.String), &p.Address); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal address")
		}
	}
	if geomJSON.Valid && geomJSON.String != "" {
		p.GeomGeoJSON = json.RawMessage(geomJSON.String)
	}
	if provJSON.Valid && provJSON.String != "" {
		if err := json.Unmarshal([]byte(provJSON.String), &p.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
		}
	}
	return &p, nil
}

func permitArgsSQL(p *model.Permit) ([]any, error) {
	addressJSON, err := json.Marshal(p.Address)
	if err != nil {
		return nil, eris.Wrap(err, "marshal address")
	}
	provJSON, err := json.Marshal(p.Provenance)
	if err != nil {
		return nil, eris.Wrap(err, "marshal provenance")
	}
	var geomJSON any
	if len(p.GeomGeoJSON) > 0 {
		geomJSON = string(p.GeomGeoJSON)
	}
	return []any{
		p.ID, p.SourceID, p.SourceName, string(p.Platform), p.SourceRecordID,
		p.PermitType, p.WorkDescription, p.PermitStatus, p.IssueDate, p.RawAddress,
		string(addressJSON), p.ParcelID, p.OwnerName, p.ContractorName, p.PermitValue,
		p.Lat, p.Lon, geomJSON, p.Fingerprint, p.IsRoofing, p.IngestedAt,
		string(provJSON), p.RawRef,
	}, nil
}

func (s *SQLiteStore) GetPermit(ctx context.Context, id string) (*model.Permit, error) {
	p, err := scanPermitSQL(s.db.QueryRowContext(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get permit %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) GetPermitByFingerprint(ctx context.Context, fingerprint string) (*model.Permit, error) {
	p, err := scanPermitSQL(s.db.QueryRowContext(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE fingerprint = ?`, fingerprint,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get permit by fingerprint")
	}
	return p, nil
}

func (s *SQLiteStore) UpsertPermit(ctx context.Context, p *model.Permit) (string, error) {
	existing, err := s.GetPermitByFingerprint(ctx, p.Fingerprint)
	if err != nil {
		return "", err
	}

	if existing == nil {
		ins := *p
		if ins.ID == "" {
			ins.ID = uuid.New().String()
		}
		if ins.IngestedAt.IsZero() {
			ins.IngestedAt = time.Now().UTC()
		}
		args, err := permitArgsSQL(&ins)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: upsert permit")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO permits (`+permitColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: insert permit")
		}
		return ins.ID, nil
	}

	merged := mergePermit(existing, p)
	args, err := permitArgsSQL(merged)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: upsert permit")
	}
	// Shift id to the WHERE position.
	args = append(args[1:], merged.ID)
	_, err = s.db.ExecContext(ctx,
		`UPDATE permits SET source_id = ?, source_name = ?, platform = ?, source_record_id = ?,
		   permit_type = ?, work_description = ?, permit_status = ?, issue_date = ?, raw_address = ?,
		   address_parsed = ?, parcel_id = ?, owner_name = ?, contractor_name = ?, permit_value = ?,
		   lat = ?, lon = ?, geom_geojson = ?, fingerprint = ?, is_roofing = ?, ingested_at = ?,
		   provenance = ?, raw_ref = ?
		 WHERE id = ?`,
		args...,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: update permit")
	}
	return merged.ID, nil
}

func buildPermitWhereSQL(filter PermitFilter) (string, []any) {
	where := ` WHERE 1=1`
	var args []any

	if filter.BBox != nil {
		where += ` AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`
		args = append(args, filter.BBox.South, filter.BBox.North, filter.BBox.West, filter.BBox.East)
	}
	if filter.City != "" {
		where += ` AND json_extract(address_parsed, '$.city') LIKE '%' || ? || '%'`
		args = append(args, filter.City)
	}
	if filter.State != "" {
		where += ` AND json_extract(address_parsed, '$.state') LIKE '%' || ? || '%'`
		args = append(args, filter.State)
	}
	if filter.PermitType != "" {
		where += ` AND permit_type LIKE '%' || ? || '%'`
		args = append(args, filter.PermitType)
	}
	if filter.DateFrom != "" {
		where += ` AND issue_date >= ?`
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		where += ` AND issue_date <= ?`
		args = append(args, filter.DateTo)
	}
	if filter.RoofingOnly {
		where += ` AND is_roofing = 1`
	}
	return where, args
}

func (s *SQLiteStore) GetPermits(ctx context.Context, filter PermitFilter) ([]model.Permit, int, error) {
	where, args := buildPermitWhereSQL(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permits`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count permits")
	}

	query := `SELECT ` + permitColumns + ` FROM permits` + where + ` ORDER BY ingested_at DESC LIMIT ?`
	args = append(args, filter.effectiveLimit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list permits")
	}
	defer rows.Close() //nolint:errcheck

	var permits []model.Permit
	for rows.Next() {
		p, err := scanPermitSQL(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan permit")
		}
		permits = append(permits, *p)
	}
	return permits, total, eris.Wrap(rows.Err(), "sqlite: list permits iterate")
}

func (s *SQLiteStore) GetPermitStats(ctx context.Context) (*model.PermitStats, error) {
	var stats model.PermitStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN lat IS NOT NULL AND lon IS NOT NULL THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN is_roofing = 1 THEN 1 ELSE 0 END), 0)
		 FROM permits`,
	).Scan(&stats.Total, &stats.WithCoordinates, &stats.Roofing)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: permit stats")
	}
	return &stats, nil
}

func (s *SQLiteStore) GetSourcePermitCount(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permits WHERE source_id = ?`, sourceID,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: source permit count %d", sourceID)
}

func (s *SQLiteStore) GetMaxSourceRecordID(ctx context.Context, sourceID int64) (int64, error) {
	var maxID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(source_record_id AS INTEGER)), 0)
		 FROM permits
		 WHERE source_id = ?
		   AND source_record_id != ''
		   AND NOT source_record_id GLOB '*[^0-9]*'`,
		sourceID,
	).Scan(&maxID)
	return maxID, eris.Wrapf(err, "sqlite: max source record id %d", sourceID)
}

func (s *SQLiteStore) GetGeocode(ctx context.Context, address string) (*model.GeocodeEntry, error) {
	var e model.GeocodeEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT address, lat, lon, display_name, matched, fetched_at FROM geocode_cache WHERE address = ?`,
		address,
	).Scan(&e.Address, &e.Lat, &e.Lon, &e.DisplayName, &e.Matched, &e.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get geocode")
	}
	return &e, nil
}

func (s *SQLiteStore) PutGeocode(ctx context.Context, entry model.GeocodeEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (address, lat, lon, display_name, matched, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (address) DO UPDATE SET
		   lat = excluded.lat, lon = excluded.lon, display_name = excluded.display_name,
		   matched = excluded.matched, fetched_at = excluded.fetched_at`,
		entry.Address, entry.Lat, entry.Lon, entry.DisplayName, entry.Matched, entry.FetchedAt,
	)
	return eris.Wrap(err, "sqlite: put geocode")
}
