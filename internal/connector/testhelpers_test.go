package connector

import (
	"context"
	"testing"
	"time"

	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/pipeline"
)

func testNormalizer() *pipeline.Normalizer {
	var rules pipeline.RoofingRules
	rules.PermitTypes.ExactMatches = []string{"Re-Roof"}
	rules.PermitTypes.PartialMatches = []string{"roof"}
	rules.WorkDescriptionTokens.Primary = []string{"roof"}
	rules.MinTokenMatches = 1
	return pipeline.NewNormalizer(pipeline.NewClassifier(rules))
}

// collect drains a stream and returns the records plus the terminal error.
func collect(t *testing.T, stream *Stream) ([]model.Permit, error) {
	t.Helper()

	var records []model.Permit
	timeout := time.After(30 * time.Second)
	for {
		select {
		case rec, ok := <-stream.Records:
			if !ok {
				if err, open := <-stream.Errs; open {
					return records, err
				}
				return records, nil
			}
			records = append(records, rec)
		case <-timeout:
			t.Fatal("stream did not finish in time")
		}
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return ctx
}
