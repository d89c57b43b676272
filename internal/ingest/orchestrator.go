// Package ingest runs connectors against registered sources, persists
// records as they stream, maintains per-source cursor state, and drives the
// continuous sweep over all enabled sources.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roofsignal/permit-ingest/internal/config"
	"github.com/roofsignal/permit-ingest/internal/connector"
	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/resilience"
	"github.com/roofsignal/permit-ingest/internal/store"
	"github.com/roofsignal/permit-ingest/pkg/geocode"
)

// Mode selects how a run reads the portal.
type Mode string

const (
	// ModeBackfill reads forward from the persisted cursor (or the portal's
	// earliest record).
	ModeBackfill Mode = "backfill"
	// ModeIncremental restricts results to records newer than the cursors.
	ModeIncremental Mode = "incremental"
	// ModeDeep repeats backfill batches until the source is drained.
	ModeDeep Mode = "deep"
)

// ParseMode validates a mode string from the API or CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBackfill, ModeIncremental, ModeDeep:
		return Mode(s), nil
	case "":
		return ModeBackfill, nil
	}
	return "", eris.Errorf("ingest: unknown mode %q", s)
}

// ErrRunInProgress is returned when a run targets a source that already has
// one active in this process. Concurrent same-source runs are an
// anti-pattern; the is_running flag is advisory, this refusal is the lock.
var ErrRunInProgress = eris.New("ingest: run already in progress for source")

// defaultMaxRows is the per-run row budget when the source doesn't set one.
const defaultMaxRows = 1000

// statusEvery is how many records pass between status_message refreshes.
const statusEvery = 10

// RunResult summarizes one ingestion run.
type RunResult struct {
	RowsFetched  int `json:"rows_fetched"`
	RowsUpserted int `json:"rows_upserted"`
	Errors       int `json:"errors"`
}

// Geocoder is the lookup contract the orchestrator consumes; the geocode
// client satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

// Orchestrator wires sources, connectors, and the store together.
type Orchestrator struct {
	store    store.Store
	registry *connector.Registry
	geocoder Geocoder
	sweepCfg config.SweepConfig

	mu     sync.Mutex
	active map[int64]bool
}

// New creates an Orchestrator. geocoder may be nil to skip coordinate
// resolution for records that arrive without lat/lon.
func New(st store.Store, registry *connector.Registry, geocoder Geocoder, sweepCfg config.SweepConfig) *Orchestrator {
	if sweepCfg.IntervalMinutes <= 0 {
		sweepCfg.IntervalMinutes = 5
	}
	if sweepCfg.FailurePauseSecs <= 0 {
		sweepCfg.FailurePauseSecs = 60
	}
	if sweepCfg.BatchRetryPauseSecs <= 0 {
		sweepCfg.BatchRetryPauseSecs = 30
	}
	return &Orchestrator{
		store:    st,
		registry: registry,
		geocoder: geocoder,
		sweepCfg: sweepCfg,
		active:   make(map[int64]bool),
	}
}

func (o *Orchestrator) acquire(sourceID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[sourceID] {
		return false
	}
	o.active[sourceID] = true
	return true
}

func (o *Orchestrator) release(sourceID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, sourceID)
}

// RunIngestion executes one run against a source: resolves cursors, streams
// the connector, persists each record, and writes final state. Per-record
// failures are counted and skipped; a connector fault marks the state row
// failed and is returned.
func (o *Orchestrator) RunIngestion(ctx context.Context, sourceID int64, mode Mode) (*RunResult, error) {
	if !o.acquire(sourceID) {
		return nil, ErrRunInProgress
	}
	defer o.release(sourceID)

	src, err := o.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, eris.Errorf("ingest: source not found: %d", sourceID)
	}

	prev, err := o.store.GetSourceState(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	conn, err := o.registry.Get(src.Platform)
	if err != nil {
		o.markFailed(sourceID, err)
		return nil, err
	}

	cfg := connector.ConfigFromSource(*src)
	if err := conn.Validate(ctx, cfg); err != nil {
		o.markFailed(sourceID, err)
		return nil, err
	}

	maxRows := src.MaxRowsPerRun
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	req := connector.Request{
		SourceID:          src.ID,
		SourceName:        src.Name,
		Config:            cfg,
		State:             connector.StateFrom(prev),
		MaxRows:           maxRows,
		RequestsPerMinute: src.MaxRequestsPerMinute,
	}

	// The starting cursor for feature services is the greater of the state
	// cursor and the database-derived maximum; this repairs state drift.
	if src.Platform == model.PlatformFeatureService {
		dbMax, err := o.store.GetMaxSourceRecordID(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		req.DBMaxRecordID = dbMax
	}

	if err := o.store.UpsertSourceState(ctx, model.StatePatch{
		SourceID:      sourceID,
		IsRunning:     boolPtr(true),
		StatusMessage: strPtr(fmt.Sprintf("Starting %s...", mode)),
		CurrentPage:   intPtr(0),
	}); err != nil {
		return nil, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if src.MaxRuntimeMinutes > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(src.MaxRuntimeMinutes)*time.Minute)
		defer cancel()
	}

	var stream *connector.Stream
	if mode == ModeIncremental {
		stream = conn.Incremental(runCtx, req)
	} else {
		stream = conn.Backfill(runCtx, req)
	}

	started := time.Now()
	result, maxIssueDate, maxRecordID := o.consume(runCtx, sourceID, stream)

	if err := firstErr(stream); err != nil {
		o.markFailed(sourceID, err)
		zap.L().Error("ingestion run failed",
			zap.Int64("source_id", sourceID),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		return result, err
	}

	patch := model.StatePatch{
		SourceID:         sourceID,
		RowsFetched:      intPtr(result.RowsFetched),
		RowsUpserted:     intPtr(result.RowsUpserted),
		Errors:           intPtr(result.Errors),
		FreshnessSeconds: intPtr(int(time.Since(started).Seconds())),
		LastSyncAt:       timePtr(time.Now().UTC()),
		IsRunning:        boolPtr(false),
		StatusMessage: strPtr(fmt.Sprintf("✓ Synced %d records (%d fetched, %d errors)",
			result.RowsUpserted, result.RowsFetched, result.Errors)),
	}

	// Cursors only advance; unset fields carry the prior values forward.
	if maxIssueDate != "" && (prev == nil || prev.LastIssueDate == nil || *prev.LastIssueDate < maxIssueDate) {
		patch.LastIssueDate = strPtr(maxIssueDate)
	}
	if maxRecordID > 0 && (prev == nil || prev.LastMaxRecordID == nil || *prev.LastMaxRecordID < maxRecordID) {
		patch.LastMaxRecordID = int64Ptr(maxRecordID)
	}

	if err := o.store.UpsertSourceState(ctx, patch); err != nil {
		return result, err
	}

	zap.L().Info("ingestion run complete",
		zap.Int64("source_id", sourceID),
		zap.String("mode", string(mode)),
		zap.Int("rows_fetched", result.RowsFetched),
		zap.Int("rows_upserted", result.RowsUpserted),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// consume drains the stream, persisting records in arrival order and
// tracking cursor candidates.
func (o *Orchestrator) consume(ctx context.Context, sourceID int64, stream *connector.Stream) (*RunResult, string, int64) {
	result := &RunResult{}
	var maxIssueDate string
	var maxRecordID int64

	for rec := range stream.Records {
		result.RowsFetched++

		o.maybeGeocode(ctx, &rec)

		if _, err := o.store.UpsertPermit(ctx, &rec); err != nil {
			result.Errors++
			zap.L().Warn("permit upsert failed",
				zap.Int64("source_id", sourceID),
				zap.String("source_record_id", rec.SourceRecordID),
				zap.Error(err),
			)
			continue
		}
		result.RowsUpserted++

		if rec.IssueDate > maxIssueDate {
			maxIssueDate = rec.IssueDate
		}
		if rec.Provenance.MaxRecordID > maxRecordID {
			maxRecordID = rec.Provenance.MaxRecordID
		}

		if result.RowsFetched%statusEvery == 0 {
			_ = o.store.UpsertSourceState(ctx, model.StatePatch{
				SourceID: sourceID,
				StatusMessage: strPtr(fmt.Sprintf("Ingesting: %d fetched, %d saved, %d errors",
					result.RowsFetched, result.RowsUpserted, result.Errors)),
				CurrentPage: intPtr(result.RowsFetched / 1000),
			})
		}
	}

	return result, maxIssueDate, maxRecordID
}

// maybeGeocode fills missing coordinates from the shared geocoder. Failures
// never affect the run.
func (o *Orchestrator) maybeGeocode(ctx context.Context, rec *model.Permit) {
	if o.geocoder == nil || rec.Lat != nil || rec.RawAddress == "" {
		return
	}
	res, err := o.geocoder.Geocode(ctx, rec.RawAddress)
	if err != nil {
		zap.L().Warn("geocode failed", zap.String("address", rec.RawAddress), zap.Error(err))
		return
	}
	if res.Matched && res.Lat != nil && res.Lon != nil {
		rec.Lat, rec.Lon = res.Lat, res.Lon
	}
}

// RunDeepIngestion repeats backfill runs until a single run writes strictly
// fewer new permits than the per-run budget, sleeping a second between
// batches to be polite to the portal.
func (o *Orchestrator) RunDeepIngestion(ctx context.Context, sourceID int64) error {
	src, err := o.store.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if src == nil {
		return eris.Errorf("ingest: source not found: %d", sourceID)
	}
	maxRows := src.MaxRowsPerRun
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	for {
		before, err := o.store.GetSourcePermitCount(ctx, sourceID)
		if err != nil {
			return err
		}
		if _, err := o.RunIngestion(ctx, sourceID, ModeBackfill); err != nil {
			return err
		}
		after, err := o.store.GetSourcePermitCount(ctx, sourceID)
		if err != nil {
			return err
		}
		if after-before < maxRows {
			return nil
		}
		if !resilience.Sleep(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) markFailed(sourceID int64, runErr error) {
	// Best-effort with a fresh context: the run context may already be dead.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.UpsertSourceState(ctx, model.StatePatch{
		SourceID:      sourceID,
		IsRunning:     boolPtr(false),
		StatusMessage: strPtr(fmt.Sprintf("✗ Failed: %v", runErr)),
	}); err != nil {
		zap.L().Error("failed to mark source state", zap.Int64("source_id", sourceID), zap.Error(err))
	}
}

// firstErr reads the stream's terminal error after Records closes. The
// producer closes both channels on exit, so this never blocks past the end
// of the stream.
func firstErr(stream *connector.Stream) error {
	if err, ok := <-stream.Errs; ok {
		return err
	}
	return nil
}

func boolPtr(b bool) *bool          { return &b }
func strPtr(s string) *string      { return &s }
func intPtr(n int) *int            { return &n }
func int64Ptr(n int64) *int64      { return &n }
func timePtr(t time.Time) *time.Time { return &t }
