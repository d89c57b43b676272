package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/roofsignal/permit-ingest/internal/connector"
	"github.com/roofsignal/permit-ingest/internal/ingest"
	"github.com/roofsignal/permit-ingest/internal/pipeline"
	"github.com/roofsignal/permit-ingest/internal/store"
	"github.com/roofsignal/permit-ingest/pkg/geocode"
)

// env bundles the long-lived dependencies commands share.
type env struct {
	Store        store.Store
	Registry     *connector.Registry
	Orchestrator *ingest.Orchestrator
}

// initEnv builds the store, rule engine, connectors, geocoder, and
// orchestrator from loaded config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate")
	}

	rules, err := pipeline.LoadRules(cfg.Rules.Path)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load roofing rules")
	}

	normalizer := pipeline.NewNormalizer(pipeline.NewClassifier(rules))
	registry := connector.NewRegistry(normalizer)

	var geocoder ingest.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = geocode.NewClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, st)
	}

	orch := ingest.New(st, registry, geocoder, cfg.Sweep)

	return &env{Store: st, Registry: registry, Orchestrator: orch}, nil
}

func (e *env) Close() {
	_ = e.Store.Close()
}
