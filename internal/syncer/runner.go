package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/attribution"
	"github.com/sells-group/attribution-engine/internal/confidence"
	"github.com/sells-group/attribution-engine/internal/identity"
	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/source"
	"github.com/sells-group/attribution-engine/internal/store"
	"github.com/sells-group/attribution-engine/internal/touchpoint"
)

// defaultPageSize is the adapter fetch size when the caller sets none.
const defaultPageSize = 100

// Options bound a sync run.
type Options struct {
	// Limit stops the run after this many records and pauses with a
	// resume token. Zero means unbounded.
	Limit int64

	// Timeout pauses the run when exceeded. Zero means no deadline.
	Timeout time.Duration

	// PageSize is the adapter fetch size. Pages never cross the Limit
	// boundary, so pauses always land between records.
	PageSize int
}

// Result summarizes one sync run (or run segment, when paused).
type Result struct {
	Source    model.Source `json:"source"`
	RunID     string       `json:"run_id"`
	Processed int64        `json:"processed"`
	Skipped   int64        `json:"skipped"`
	Completed bool         `json:"completed"`
	Paused    bool         `json:"paused"`

	// ResumeToken is set when Paused with a persisted checkpoint to
	// resume from. A run cancelled before it started has none.
	ResumeToken string `json:"resume_token,omitempty"`
}

// Runner executes checkpointed sync runs for one or more sources. Each
// ingested event flows synchronously through resolution, touchpoint
// classification, and attribution recompute before its page's checkpoint
// advances, so an interrupted run never leaves a half-applied record.
type Runner struct {
	store      store.Store
	adapters   map[model.Source]source.Adapter
	resolver   *identity.Resolver
	sequencer  *touchpoint.Sequencer
	calculator *attribution.Calculator
	scorer     *confidence.Scorer
	log        *zap.Logger
}

// NewRunner creates a sync runner over the given adapters.
func NewRunner(
	st store.Store,
	adapters []source.Adapter,
	resolver *identity.Resolver,
	sequencer *touchpoint.Sequencer,
	calculator *attribution.Calculator,
) *Runner {
	bysrc := make(map[model.Source]source.Adapter, len(adapters))
	for _, a := range adapters {
		bysrc[a.Source()] = a
	}
	r := &Runner{
		store:      st,
		adapters:   bysrc,
		resolver:   resolver,
		sequencer:  sequencer,
		calculator: calculator,
		scorer:     confidence.NewScorer(st),
		log:        zap.L().Named("syncer"),
	}
	// A merge reshuffles the survivor's touchpoint union, so every
	// derived view of the contact has to be rebuilt right away.
	resolver.OnMerge = r.afterMerge
	return r
}

// afterMerge rebuilds the survivor's derived state: journey sequences
// across all families, the attribution record, and match confidence.
func (r *Runner) afterMerge(ctx context.Context, survivor *model.Contact) error {
	if err := r.sequencer.RenumberAll(ctx, survivor.ID); err != nil {
		return err
	}
	if _, err := r.calculator.Recompute(ctx, survivor.ID); err != nil {
		return err
	}
	if _, err := r.scorer.Score(ctx, survivor.ID); err != nil {
		return err
	}
	return nil
}

// Adapter returns the adapter registered for a source, or nil.
func (r *Runner) Adapter(src model.Source) source.Adapter {
	return r.adapters[src]
}

// StartSync begins a fresh run for the source from the beginning of its
// feed. A source with an active run rejects the start; a paused run is
// abandoned and its token invalidated, since the new run id supersedes it.
func (r *Runner) StartSync(ctx context.Context, src model.Source, opts Options) (*Result, error) {
	adapter := r.adapters[src]
	if adapter == nil {
		return nil, eris.Errorf("syncer: no adapter for source %q", src)
	}
	cp, err := r.store.GetCheckpoint(ctx, src)
	if err != nil {
		return nil, eris.Wrapf(err, "syncer: load checkpoint %s", src)
	}
	if cp.Status == model.CheckpointInProgress {
		return nil, eris.Wrapf(ErrSyncInProgress, "source %s", src)
	}

	cp.RunID = uuid.NewString()
	cp.Cursor = ""
	cp.ProcessedCount = 0
	return r.run(ctx, adapter, cp, opts)
}

// ResumeSync continues a paused run from its resume token. The token
// must match the persisted checkpoint exactly.
func (r *Runner) ResumeSync(ctx context.Context, encoded string, opts Options) (*Result, error) {
	token, err := DecodeResumeToken(encoded)
	if err != nil {
		return nil, err
	}
	adapter := r.adapters[token.Source]
	if adapter == nil {
		return nil, eris.Errorf("syncer: no adapter for source %q", token.Source)
	}
	cp, err := r.store.GetCheckpoint(ctx, token.Source)
	if err != nil {
		return nil, eris.Wrapf(err, "syncer: load checkpoint %s", token.Source)
	}
	if err := token.validateAgainst(cp); err != nil {
		return nil, err
	}
	return r.run(ctx, adapter, cp, opts)
}

// run drives the fetch/process/checkpoint loop. cp carries the starting
// cursor and cumulative processed count.
func (r *Runner) run(ctx context.Context, adapter source.Adapter, cp *model.SyncCheckpoint, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	// A context that is already done must not touch the persisted
	// checkpoint: the previous run's state stays authoritative.
	if ctx.Err() != nil {
		r.log.Info("sync run not started, context already done",
			zap.String("source", string(cp.Source)))
		return &Result{Source: cp.Source, RunID: cp.RunID, Paused: true}, nil
	}

	cp.Status = model.CheckpointInProgress
	cp.LastAttemptAt = time.Now().UTC()
	cp.LastError = ""
	if err := r.store.SaveCheckpoint(ctx, cp); err != nil {
		return nil, eris.Wrapf(err, "syncer: mark %s in progress", cp.Source)
	}

	res := &Result{Source: cp.Source, RunID: cp.RunID}
	log := r.log.With(zap.String("source", string(cp.Source)), zap.String("runId", cp.RunID))
	log.Info("sync run started", zap.String("cursor", cp.Cursor), zap.Int64("alreadyProcessed", cp.ProcessedCount))

	for {
		if ctx.Err() != nil {
			return r.pause(cp, res, log)
		}
		fetchLimit := pageSize
		if opts.Limit > 0 {
			remaining := opts.Limit - res.Processed
			if remaining <= 0 {
				return r.pause(cp, res, log)
			}
			if remaining < int64(fetchLimit) {
				fetchLimit = int(remaining)
			}
		}

		page, err := adapter.Fetch(ctx, cp.Cursor, fetchLimit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r.pause(cp, res, log)
			}
			return nil, r.fail(cp, res, log, eris.Wrapf(ErrAdapterFailure, "source %s: %v", cp.Source, err))
		}

		for i := range page.Events {
			// Budget and cancellation are honored between records, not
			// just between pages. The cursor stays at the page start, so
			// the resumed run replays this page; every stage downstream
			// is idempotent per event.
			if ctx.Err() != nil {
				return r.pause(cp, res, log)
			}
			if err := r.processEvent(ctx, page.Events[i]); err != nil {
				if eris.Is(err, identity.ErrInvalidRecord) {
					res.Skipped++
					log.Warn("skipping invalid record",
						zap.String("externalId", page.Events[i].ExternalID),
						zap.Error(err))
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return r.pause(cp, res, log)
				}
				return nil, r.fail(cp, res, log, err)
			}
		}

		res.Processed += int64(len(page.Events))
		cp.ProcessedCount += int64(len(page.Events))
		cp.Cursor = page.NextCursor
		if err := r.store.SaveCheckpoint(ctx, cp); err != nil {
			return nil, eris.Wrapf(err, "syncer: advance checkpoint %s", cp.Source)
		}

		if page.NextCursor == "" {
			cp.Status = model.CheckpointCompleted
			if err := r.store.SaveCheckpoint(ctx, cp); err != nil {
				return nil, eris.Wrapf(err, "syncer: complete checkpoint %s", cp.Source)
			}
			res.Completed = true
			log.Info("sync run completed", zap.Int64("processed", res.Processed), zap.Int64("skipped", res.Skipped))
			return res, nil
		}
	}
}

// processEvent applies one raw event end to end: append to the event
// log, resolve identity, record the touchpoint if the kind produces one,
// then recompute the contact's attribution and match confidence.
func (r *Runner) processEvent(ctx context.Context, ev model.RawEvent) error {
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		return eris.Wrapf(err, "syncer: append event %s/%s", ev.Source, ev.ExternalID)
	}
	contact, err := r.resolver.Resolve(ctx, ev)
	if err != nil {
		return err
	}
	if ev.Kind.TouchKind() {
		if _, err := r.sequencer.Record(ctx, contact.ID, ev); err != nil {
			return err
		}
	}
	if _, err := r.calculator.Recompute(ctx, contact.ID); err != nil {
		return err
	}
	if _, err := r.scorer.Score(ctx, contact.ID); err != nil {
		return err
	}
	return nil
}

// pause persists the paused state and mints the resume token.
func (r *Runner) pause(cp *model.SyncCheckpoint, res *Result, log *zap.Logger) (*Result, error) {
	cp.Status = model.CheckpointPaused
	// Persist with a fresh context: the run context may already be done.
	if err := r.store.SaveCheckpoint(context.Background(), cp); err != nil {
		return nil, eris.Wrapf(err, "syncer: pause checkpoint %s", cp.Source)
	}
	res.Paused = true
	res.ResumeToken = ResumeToken{
		Source:    cp.Source,
		Cursor:    cp.Cursor,
		Processed: cp.ProcessedCount,
		RunID:     cp.RunID,
	}.Encode()
	log.Info("sync run paused", zap.Int64("processed", res.Processed), zap.String("cursor", cp.Cursor))
	return res, nil
}

// fail persists the failed state and returns the cause. The checkpoint
// keeps its last good cursor so operators can inspect where the run died.
func (r *Runner) fail(cp *model.SyncCheckpoint, res *Result, log *zap.Logger, cause error) error {
	cp.Status = model.CheckpointFailed
	cp.LastError = cause.Error()
	if err := r.store.SaveCheckpoint(context.Background(), cp); err != nil {
		log.Error("failed to persist failed checkpoint", zap.Error(err))
	}
	log.Error("sync run failed", zap.Int64("processed", res.Processed), zap.Error(cause))
	return cause
}
