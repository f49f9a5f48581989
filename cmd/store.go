package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/attribution"
	"github.com/sells-group/attribution-engine/internal/cache"
	"github.com/sells-group/attribution-engine/internal/identity"
	"github.com/sells-group/attribution-engine/internal/source"
	"github.com/sells-group/attribution-engine/internal/store"
	"github.com/sells-group/attribution-engine/internal/syncer"
	"github.com/sells-group/attribution-engine/internal/touchpoint"
)

// openStore opens the configured backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemory()
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildAdapters constructs an adapter per configured source, each
// wrapped with transient-failure retries.
func buildAdapters() ([]source.Adapter, error) {
	backoff, err := time.ParseDuration(cfg.Sync.RetryBackoff)
	if err != nil {
		return nil, eris.Wrapf(err, "parse sync.retry_backoff %q", cfg.Sync.RetryBackoff)
	}

	var adapters []source.Adapter
	if cfg.Salesforce.Domain != "" {
		sf, err := source.NewSalesforceClient(source.SalesforceCreds{
			Domain:         cfg.Salesforce.Domain,
			ConsumerKey:    cfg.Salesforce.ConsumerKey,
			ConsumerSecret: cfg.Salesforce.ConsumerSecret,
		}, cfg.Salesforce.RateLimit)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, source.NewSalesforceAdapter(sf))
	}
	if cfg.Scheduler.Token != "" {
		adapters = append(adapters, source.NewSchedulerAdapter(cfg.Scheduler.BaseURL, cfg.Scheduler.Token, cfg.Scheduler.RateLimit))
	}
	if cfg.Forms.Token != "" && cfg.Forms.DatabaseID != "" {
		adapters = append(adapters, source.NewNotionAdapter(cfg.Forms.Token, cfg.Forms.DatabaseID))
	}
	if len(adapters) == 0 {
		return nil, eris.New("no sources configured")
	}

	wrapped := make([]source.Adapter, len(adapters))
	for i, a := range adapters {
		wrapped[i] = source.WithRetries(a, cfg.Sync.RetryAttempts, backoff)
	}
	return wrapped, nil
}

// buildEngine assembles the full sync pipeline over the store.
func buildEngine(st store.Store) (*syncer.Engine, error) {
	adapters, err := buildAdapters()
	if err != nil {
		return nil, err
	}

	strategy := attribution.StrategyByName(cfg.Attribution.Strategy)
	if td, ok := strategy.(attribution.TimeDecay); ok && cfg.Attribution.HalfLifeDays > 0 {
		td.HalfLifeDays = cfg.Attribution.HalfLifeDays
		strategy = td
	}

	classifier := touchpoint.NewClassifier()
	if cfg.Touchpoints.RulesPath != "" {
		rules, err := touchpoint.LoadRules(cfg.Touchpoints.RulesPath)
		if err != nil {
			return nil, err
		}
		classifier = touchpoint.NewClassifierFromRules(rules)
	}

	runner := syncer.NewRunner(
		st,
		adapters,
		identity.NewResolver(st),
		touchpoint.NewSequencer(st, classifier),
		attribution.NewCalculator(st, strategy),
	)

	invalidator, err := cache.NewRedis(cfg.Cache.RedisURL)
	if err != nil {
		return nil, err
	}
	if invalidator == nil {
		return syncer.NewEngine(runner, cache.Noop{}), nil
	}
	return syncer.NewEngine(runner, invalidator), nil
}
