package syncer

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/attribution-engine/internal/cache"
	"github.com/sells-group/attribution-engine/internal/model"
)

// Engine orchestrates sync runs across every registered source and
// invalidates downstream report caches when derived state changed.
type Engine struct {
	runner      *Runner
	invalidator cache.Invalidator
	log         *zap.Logger
}

// NewEngine creates the sync orchestrator. invalidator may be nil when
// no cache layer is configured.
func NewEngine(runner *Runner, invalidator cache.Invalidator) *Engine {
	if invalidator == nil {
		invalidator = cache.Noop{}
	}
	return &Engine{
		runner:      runner,
		invalidator: invalidator,
		log:         zap.L().Named("syncer"),
	}
}

// SyncAll starts a run for every source with a registered adapter,
// concurrently. Sources fail independently; the first error is returned
// after all runs settle, and the cache is invalidated if any run
// processed records.
func (e *Engine) SyncAll(ctx context.Context, opts Options) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, src := range model.Sources {
		if e.runner.Adapter(src) == nil {
			continue
		}
		g.Go(func() error {
			res, err := e.runner.StartSync(gCtx, src, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, *res)
			mu.Unlock()
			return nil
		})
	}
	runErr := g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Source < results[j].Source
	})

	changed := false
	for _, res := range results {
		if res.Processed > 0 {
			changed = true
			break
		}
	}
	if changed {
		if err := e.invalidator.InvalidateReports(ctx); err != nil {
			e.log.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	return results, runErr
}

// Resume continues one paused run and invalidates the cache if records
// were processed.
func (e *Engine) Resume(ctx context.Context, token string, opts Options) (*Result, error) {
	res, err := e.runner.ResumeSync(ctx, token, opts)
	if err != nil {
		return nil, err
	}
	if res.Processed > 0 {
		if err := e.invalidator.InvalidateReports(ctx); err != nil {
			e.log.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	return res, nil
}

// Sync runs a single source and invalidates the cache on change.
func (e *Engine) Sync(ctx context.Context, src model.Source, opts Options) (*Result, error) {
	res, err := e.runner.StartSync(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	if res.Processed > 0 {
		if err := e.invalidator.InvalidateReports(ctx); err != nil {
			e.log.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	return res, nil
}
