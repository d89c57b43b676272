package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/resilience"
)

// zeroSaveLimit is how many consecutive full-page batches may save nothing
// before a source is declared exhausted: the portal is still returning full
// pages but every record is already persisted.
const zeroSaveLimit = 3

// RunSweeper runs the continuous ingestion loop until the context ends:
// sweep every enabled source, sleep, repeat. A failed sweep pauses briefly
// and continues; it never kills the loop.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	zap.L().Info("sweeper started",
		zap.Int("interval_minutes", o.sweepCfg.IntervalMinutes),
	)

	for {
		if err := o.sweepOnce(ctx); err != nil {
			if ctx.Err() != nil {
				zap.L().Info("sweeper stopped")
				return
			}
			zap.L().Error("sweep pass failed", zap.Error(err))
			if !resilience.Sleep(ctx, time.Duration(o.sweepCfg.FailurePauseSecs)*time.Second) {
				zap.L().Info("sweeper stopped")
				return
			}
			continue
		}

		if !resilience.Sleep(ctx, time.Duration(o.sweepCfg.IntervalMinutes)*time.Minute) {
			zap.L().Info("sweeper stopped")
			return
		}
	}
}

// sweepOnce visits every enabled source in registration order and drains
// each until exhaustion.
func (o *Orchestrator) sweepOnce(ctx context.Context) error {
	sources, err := o.store.GetSources(ctx)
	if err != nil {
		return err
	}

	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		if err := o.drainSource(ctx, src); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// drainSource returns on context death, on a skip, or when the
			// store read after a batch fails; per-batch failures are retried
			// inside.
			zap.L().Warn("source drain ended early", zap.Int64("source_id", src.ID), zap.Error(err))
		}
	}
	return nil
}

// drainSource runs backfill batches against one source until the tri-state
// exhaustion rule fires: the portal returned a short page, or three
// consecutive full batches saved nothing new. Batch failures pause and retry
// the same source without advancing.
func (o *Orchestrator) drainSource(ctx context.Context, src model.Source) error {
	maxRows := src.MaxRowsPerRun
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	retryPause := time.Duration(o.sweepCfg.BatchRetryPauseSecs) * time.Second

	zeroSaveBatches := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		before, err := o.store.GetSourcePermitCount(ctx, src.ID)
		if err != nil {
			zap.L().Warn("sweep: permit count failed, retrying source",
				zap.Int64("source_id", src.ID), zap.Error(err))
			if !resilience.Sleep(ctx, retryPause) {
				return ctx.Err()
			}
			continue
		}

		if _, err := o.RunIngestion(ctx, src.ID, ModeBackfill); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				// A manual run owns the source right now; leave it alone.
				zap.L().Info("sweep: source busy, skipping", zap.Int64("source_id", src.ID))
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("sweep: batch failed, retrying source",
				zap.Int64("source_id", src.ID), zap.Error(err))
			if !resilience.Sleep(ctx, retryPause) {
				return ctx.Err()
			}
			continue
		}

		after, err := o.store.GetSourcePermitCount(ctx, src.ID)
		if err != nil {
			return err
		}
		permitsAdded := after - before

		// The state row holds what the portal actually returned this batch.
		state, err := o.store.GetSourceState(ctx, src.ID)
		if err != nil {
			return err
		}
		rowsFetched := 0
		if state != nil {
			rowsFetched = state.RowsFetched
		}

		if rowsFetched < maxRows {
			// Short page: nothing more upstream.
			zap.L().Info("sweep: source exhausted",
				zap.Int64("source_id", src.ID),
				zap.Int("rows_fetched", rowsFetched),
				zap.Int("permits_added", permitsAdded),
			)
			return nil
		}

		if permitsAdded == 0 {
			zeroSaveBatches++
			if zeroSaveBatches >= zeroSaveLimit {
				// Full pages of pure duplicates: we've looped back onto
				// already-ingested records.
				zap.L().Info("sweep: source exhausted (all duplicates)",
					zap.Int64("source_id", src.ID),
					zap.Int("zero_save_batches", zeroSaveBatches),
				)
				return nil
			}
		} else {
			zeroSaveBatches = 0
		}

		if !resilience.Sleep(ctx, time.Second) {
			return ctx.Err()
		}
	}
}
