package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/roofsignal/permit-ingest/internal/config"
	"github.com/roofsignal/permit-ingest/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id                      BIGSERIAL PRIMARY KEY,
	name                    TEXT NOT NULL,
	platform                TEXT NOT NULL DEFAULT 'other'
	                        CHECK (platform IN ('json-dataset', 'feature-service', 'other')),
	endpoint_url            TEXT NOT NULL,
	config                  JSONB NOT NULL DEFAULT '{}',
	enabled                 BOOLEAN NOT NULL DEFAULT true,
	max_rows_per_run        INTEGER NOT NULL DEFAULT 1000,
	max_runtime_minutes     INTEGER NOT NULL DEFAULT 30,
	max_requests_per_minute INTEGER NOT NULL DEFAULT 60,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_state (
	source_id          BIGINT PRIMARY KEY REFERENCES sources(id),
	last_max_timestamp TEXT,
	last_max_record_id BIGINT,
	last_issue_date    TEXT,
	etag               TEXT,
	checksum           TEXT,
	rows_fetched       INTEGER NOT NULL DEFAULT 0,
	rows_upserted      INTEGER NOT NULL DEFAULT 0,
	errors             INTEGER NOT NULL DEFAULT 0,
	freshness_seconds  INTEGER,
	last_sync_at       TIMESTAMPTZ,
	is_running         BOOLEAN NOT NULL DEFAULT false,
	status_message     TEXT NOT NULL DEFAULT '',
	current_page       INTEGER NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS permits (
	id               TEXT PRIMARY KEY,
	source_id        BIGINT NOT NULL,
	source_name      TEXT NOT NULL DEFAULT '',
	platform         TEXT NOT NULL DEFAULT 'other',
	source_record_id TEXT NOT NULL DEFAULT '',
	permit_type      TEXT NOT NULL DEFAULT '',
	work_description TEXT NOT NULL DEFAULT '',
	permit_status    TEXT NOT NULL DEFAULT '',
	issue_date       TEXT NOT NULL DEFAULT '',
	raw_address      TEXT NOT NULL DEFAULT '',
	address_parsed   JSONB,
	parcel_id        TEXT NOT NULL DEFAULT '',
	owner_name       TEXT NOT NULL DEFAULT '',
	contractor_name  TEXT NOT NULL DEFAULT '',
	permit_value     DOUBLE PRECISION,
	lat              DOUBLE PRECISION,
	lon              DOUBLE PRECISION,
	geom_geojson     JSONB,
	fingerprint      TEXT NOT NULL,
	is_roofing       BOOLEAN NOT NULL DEFAULT false,
	ingested_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	provenance       JSONB,
	raw_ref          TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_permits_fingerprint ON permits(fingerprint);
CREATE INDEX IF NOT EXISTS idx_permits_coords ON permits(lat, lon) WHERE lat IS NOT NULL AND lon IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_permits_issue_date ON permits(issue_date);
CREATE INDEX IF NOT EXISTS idx_permits_roofing ON permits(is_roofing) WHERE is_roofing;
CREATE INDEX IF NOT EXISTS idx_permits_source_id ON permits(source_id);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address      TEXT PRIMARY KEY,
	lat          DOUBLE PRECISION,
	lon          DOUBLE PRECISION,
	display_name TEXT NOT NULL DEFAULT '',
	matched      BOOLEAN NOT NULL DEFAULT false,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const sourceColumns = `id, name, platform, endpoint_url, config, enabled, max_rows_per_run, max_runtime_minutes, max_requests_per_minute, created_at, updated_at`

func scanSource(row pgx.Row) (*model.Source, error) {
	var src model.Source
	var configJSON []byte
	var platform string
	if err := row.Scan(&src.ID, &src.Name, &platform, &src.EndpointURL, &configJSON,
		&src.Enabled, &src.MaxRowsPerRun, &src.MaxRuntimeMinutes, &src.MaxRequestsPerMinute,
		&src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	src.Platform = model.Platform(platform)
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &src.Config); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source config")
		}
	}
	return &src, nil
}

func (s *PostgresStore) GetSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get source %d", id)
	}
	return src, nil
}

func (s *PostgresStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	if src.Config == nil {
		src.Config = map[string]any{}
	}
	configJSON, err := json.Marshal(src.Config)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal source config")
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
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sources (name, platform, endpoint_url, config, enabled, max_rows_per_run, max_runtime_minutes, max_requests_per_minute, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		src.Name, string(src.Platform), src.EndpointURL, configJSON, src.Enabled,
		src.MaxRowsPerRun, src.MaxRuntimeMinutes, src.MaxRequestsPerMinute, now, now,
	).Scan(&src.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert source")
	}
	src.CreatedAt = now
	src.UpdatedAt = now
	return &src, nil
}

func (s *PostgresStore) UpdateSource(ctx context.Context, id int64, patch model.SourcePatch) (*model.Source, error) {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, eris.Errorf("postgres: source not found: %d", id)
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
		return nil, eris.Wrap(err, "postgres: marshal source config")
	}
	src.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET name = $1, endpoint_url = $2, config = $3, enabled = $4,
		 max_rows_per_run = $5, max_runtime_minutes = $6, max_requests_per_minute = $7, updated_at = $8
		 WHERE id = $9`,
		src.Name, src.EndpointURL, configJSON, src.Enabled,
		src.MaxRowsPerRun, src.MaxRuntimeMinutes, src.MaxRequestsPerMinute, src.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update source %d", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("postgres: source not found: %d", id)
	}
	return src, nil
}

const stateColumns = `source_id, last_max_timestamp, last_max_record_id, last_issue_date, etag, checksum, rows_fetched, rows_upserted, errors, freshness_seconds, last_sync_at, is_running, status_message, current_page, updated_at`

func scanState(row pgx.Row) (*model.SourceState, error) {
	var st model.SourceState
	if err := row.Scan(&st.SourceID, &st.LastMaxTimestamp, &st.LastMaxRecordID, &st.LastIssueDate,
		&st.ETag, &st.Checksum, &st.RowsFetched, &st.RowsUpserted, &st.Errors,
		&st.FreshnessSeconds, &st.LastSyncAt, &st.IsRunning, &st.StatusMessage,
		&st.CurrentPage, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) GetSourceState(ctx context.Context, sourceID int64) (*model.SourceState, error) {
	st, err := scanState(s.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM source_state WHERE source_id = $1`, sourceID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get source state %d", sourceID)
	}
	return st, nil
}

func (s *PostgresStore) GetAllSourceStates(ctx context.Context) ([]model.SourceState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM source_state ORDER BY source_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source states")
	}
	defer rows.Close()

	var states []model.SourceState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source state")
		}
		states = append(states, *st)
	}
	return states, eris.Wrap(rows.Err(), "postgres: list source states iterate")
}

// UpsertSourceState inserts the row if missing, else patch-merges the set
// fields of the argument into the existing row and bumps updated_at.
func (s *PostgresStore) UpsertSourceState(ctx context.Context, patch model.StatePatch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_state (source_id, last_max_timestamp, last_max_record_id, last_issue_date, etag, checksum,
		   rows_fetched, rows_upserted, errors, freshness_seconds, last_sync_at, is_running, status_message, current_page, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6,
		   COALESCE($7, 0), COALESCE($8, 0), COALESCE($9, 0), $10, $11,
		   COALESCE($12, false), COALESCE($13, ''), COALESCE($14, 0), now())
		 ON CONFLICT (source_id) DO UPDATE SET
		   last_max_timestamp = COALESCE($2, source_state.last_max_timestamp),
		   last_max_record_id = COALESCE($3, source_state.last_max_record_id),
		   last_issue_date    = COALESCE($4, source_state.last_issue_date),
		   etag               = COALESCE($5, source_state.etag),
		   checksum           = COALESCE($6, source_state.checksum),
		   rows_fetched       = COALESCE($7, source_state.rows_fetched),
		   rows_upserted      = COALESCE($8, source_state.rows_upserted),
		   errors             = COALESCE($9, source_state.errors),
		   freshness_seconds  = COALESCE($10, source_state.freshness_seconds),
		   last_sync_at       = COALESCE($11, source_state.last_sync_at),
		   is_running         = COALESCE($12, source_state.is_running),
		   status_message     = COALESCE($13, source_state.status_message),
		   current_page       = COALESCE($14, source_state.current_page),
		   updated_at         = now()`,
		patch.SourceID, patch.LastMaxTimestamp, patch.LastMaxRecordID, patch.LastIssueDate,
		patch.ETag, patch.Checksum, patch.RowsFetched, patch.RowsUpserted, patch.Errors,
		patch.FreshnessSeconds, patch.LastSyncAt, patch.IsRunning, patch.StatusMessage, patch.CurrentPage,
	)
	return eris.Wrapf(err, "postgres: upsert source state %d", patch.SourceID)
}

const permitColumns = `id, source_id, source_name, platform, source_record_id, permit_type, work_description, permit_status, issue_date, raw_address, address_parsed, parcel_id, owner_name, contractor_name, permit_value, lat, lon, geom_geojson, fingerprint, is_roofing, ingested_at, provenance, raw_ref`

func scanPermit(row pgx.Row) (*model.Permit, error) {
	var p model.Permit
	var platform string
	var addressJSON, geomJSON, provJSON []byte
	if err := row.Scan(&p.ID, &p.SourceID, &p.SourceName, &platform, &p.SourceRecordID,
		&p.PermitType, &p.WorkDescription, &p.PermitStatus, &p.IssueDate, &p.RawAddress,
		&addressJSON, &p.ParcelID, &p.OwnerName, &p.ContractorName, &p.PermitValue,
		&p.Lat, &p.Lon, &geomJSON, &p.Fingerprint, &p.IsRoofing, &p.IngestedAt,
		&provJSON, &p.RawRef); err != nil {
		return nil, err
	}
	p.Platform = model.Platform(platform)
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &p.Address); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal address")
		}
	}
	if len(geomJSON) > 0 {
		p.GeomGeoJSON = json.RawMessage(geomJSON)
	}
	if len(provJSON) > 0 {
		if err := json.Unmarshal(provJSON, &p.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal provenance")
		}
	}
	return &p, nil
}

func permitArgs(p *model.Permit) ([]any, error) {
	addressJSON, err := json.Marshal(p.Address)
	if err != nil {
		return nil, eris.Wrap(err, "marshal address")
	}
	provJSON, err := json.Marshal(p.Provenance)
	if err != nil {
		return nil, eris.Wrap(err, "marshal provenance")
	}
	var geomJSON []byte
	if len(p.GeomGeoJSON) > 0 {
		geomJSON = []byte(p.GeomGeoJSON)
	}
	return []any{
		p.ID, p.SourceID, p.SourceName, string(p.Platform), p.SourceRecordID,
		p.PermitType, p.WorkDescription, p.PermitStatus, p.IssueDate, p.RawAddress,
		addressJSON, p.ParcelID, p.OwnerName, p.ContractorName, p.PermitValue,
		p.Lat, p.Lon, geomJSON, p.Fingerprint, p.IsRoofing, p.IngestedAt,
		provJSON, p.RawRef,
	}, nil
}

func (s *PostgresStore) GetPermit(ctx context.Context, id string) (*model.Permit, error) {
	p, err := scanPermit(s.pool.QueryRow(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get permit %s", id)
	}
	return p, nil
}

func (s *PostgresStore) GetPermitByFingerprint(ctx context.Context, fingerprint string) (*model.Permit, error) {
	p, err := scanPermit(s.pool.QueryRow(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE fingerprint = $1`, fingerprint,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get permit by fingerprint")
	}
	return p, nil
}

// UpsertPermit looks up the record by fingerprint: if present, fields set on
// the incoming record overwrite the stored ones; if absent, it is inserted
// with a fresh id. Returns the permit id.
func (s *PostgresStore) UpsertPermit(ctx context.Context, p *model.Permit) (string, error) {
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
		args, err := permitArgs(&ins)
		if err != nil {
			return "", eris.Wrap(err, "postgres: upsert permit")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO permits (`+permitColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
			args...,
		)
		if err != nil {
			return "", eris.Wrap(err, "postgres: insert permit")
		}
		return ins.ID, nil
	}

	merged := mergePermit(existing, p)
	args, err := permitArgs(merged)
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert permit")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE permits SET source_id = $2, source_name = $3, platform = $4, source_record_id = $5,
		   permit_type = $6, work_description = $7, permit_status = $8, issue_date = $9, raw_address = $10,
		   address_parsed = $11, parcel_id = $12, owner_name = $13, contractor_name = $14, permit_value = $15,
		   lat = $16, lon = $17, geom_geojson = $18, fingerprint = $19, is_roofing = $20, ingested_at = $21,
		   provenance = $22, raw_ref = $23
		 WHERE id = $1`,
		args...,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: update permit")
	}
	return merged.ID, nil
}

func buildPermitWhere(filter PermitFilter, argIdx *int) (string, []any) {
	where := ` WHERE true`
	var args []any

	add := func(clause string, vals ...any) {
		where += clause
		args = append(args, vals...)
		*argIdx += len(vals)
	}

	if filter.BBox != nil {
		add(fmt.Sprintf(` AND lat BETWEEN $%d AND $%d AND lon BETWEEN $%d AND $%d`,
			*argIdx, *argIdx+1, *argIdx+2, *argIdx+3),
			filter.BBox.South, filter.BBox.North, filter.BBox.West, filter.BBox.East)
	}
	if filter.City != "" {
		add(fmt.Sprintf(` AND address_parsed->>'city' ILIKE '%%' || $%d || '%%'`, *argIdx), filter.City)
	}
	if filter.State != "" {
		add(fmt.Sprintf(` AND address_parsed->>'state' ILIKE '%%' || $%d || '%%'`, *argIdx), filter.State)
	}
	if filter.PermitType != "" {
		add(fmt.Sprintf(` AND permit_type ILIKE '%%' || $%d || '%%'`, *argIdx), filter.PermitType)
	}
	if filter.DateFrom != "" {
		add(fmt.Sprintf(` AND issue_date >= $%d`, *argIdx), filter.DateFrom)
	}
	if filter.DateTo != "" {
		add(fmt.Sprintf(` AND issue_date <= $%d`, *argIdx), filter.DateTo)
	}
	if filter.RoofingOnly {
		where += ` AND is_roofing`
	}
	return where, args
}

func (s *PostgresStore) GetPermits(ctx context.Context, filter PermitFilter) ([]model.Permit, int, error) {
	argIdx := 1
	where, args := buildPermitWhere(filter, &argIdx)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permits`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count permits")
	}

	query := `SELECT ` + permitColumns + ` FROM permits` + where + ` ORDER BY ingested_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.effectiveLimit())
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list permits")
	}
	defer rows.Close()

	var permits []model.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan permit")
		}
		permits = append(permits, *p)
	}
	return permits, total, eris.Wrap(rows.Err(), "postgres: list permits iterate")
}

func (s *PostgresStore) GetPermitStats(ctx context.Context) (*model.PermitStats, error) {
	var stats model.PermitStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE lat IS NOT NULL AND lon IS NOT NULL),
		        COUNT(*) FILTER (WHERE is_roofing)
		 FROM permits`,
	).Scan(&stats.Total, &stats.WithCoordinates, &stats.Roofing)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: permit stats")
	}
	return &stats, nil
}

func (s *PostgresStore) GetSourcePermitCount(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM permits WHERE source_id = $1`, sourceID,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: source permit count %d", sourceID)
}

// GetMaxSourceRecordID casts source_record_id to integer before taking the
// max; lexicographic ordering would mis-order "999" vs "1000". Non-integer
// identifiers are skipped.
func (s *PostgresStore) GetMaxSourceRecordID(ctx context.Context, sourceID int64) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(source_record_id::bigint), 0)
		 FROM permits
		 WHERE source_id = $1 AND source_record_id ~ '^[0-9]+$'`,
		sourceID,
	).Scan(&max)
	return max, eris.Wrapf(err, "postgres: max source record id %d", sourceID)
}

func (s *PostgresStore) GetGeocode(ctx context.Context, address string) (*model.GeocodeEntry, error) {
	var e model.GeocodeEntry
	err := s.pool.QueryRow(ctx,
		`SELECT address, lat, lon, display_name, matched, fetched_at FROM geocode_cache WHERE address = $1`,
		address,
	).Scan(&e.Address, &e.Lat, &e.Lon, &e.DisplayName, &e.Matched, &e.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get geocode")
	}
	return &e, nil
}

func (s *PostgresStore) PutGeocode(ctx context.Context, entry model.GeocodeEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (address, lat, lon, display_name, matched, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (address) DO UPDATE SET
		   lat = $2, lon = $3, display_name = $4, matched = $5, fetched_at = $6`,
		entry.Address, entry.Lat, entry.Lon, entry.DisplayName, entry.Matched, entry.FetchedAt,
	)
	return eris.Wrap(err, "postgres: put geocode")
}
