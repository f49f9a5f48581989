package attribution

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// Calculator recomputes attribution records from touchpoint timelines
// and deal state. Records are derived wholesale on every call; there is
// no incremental update path, which keeps replays and merges trivially
// consistent.
type Calculator struct {
	store    store.Store
	strategy Weighting
	now      func() time.Time
	log      *zap.Logger
}

// NewCalculator creates a calculator using the given weighting strategy.
func NewCalculator(st store.Store, strategy Weighting) *Calculator {
	if strategy == nil {
		strategy = EvenSplit{}
	}
	return &Calculator{
		store:    st,
		strategy: strategy,
		now:      time.Now,
		log:      zap.L().Named("attribution"),
	}
}

// Recompute rebuilds and persists the attribution record for one contact.
func (c *Calculator) Recompute(ctx context.Context, contactID int64) (*model.AttributionRecord, error) {
	tps, err := c.store.ListTouchpoints(ctx, contactID)
	if err != nil {
		return nil, eris.Wrapf(err, "attribution: list touchpoints for %d", contactID)
	}
	deals, err := c.store.ListDeals(ctx, contactID)
	if err != nil {
		return nil, eris.Wrapf(err, "attribution: list deals for %d", contactID)
	}

	sort.SliceStable(tps, func(i, j int) bool {
		if !tps[i].OccurredAt.Equal(tps[j].OccurredAt) {
			return tps[i].OccurredAt.Before(tps[j].OccurredAt)
		}
		return tps[i].ID < tps[j].ID
	})

	rec := &model.AttributionRecord{
		ContactID:  contactID,
		Strategy:   c.strategy.Name(),
		ComputedAt: c.now().UTC(),
	}

	if len(tps) > 0 {
		first, last := tps[0], tps[len(tps)-1]
		rec.FirstTouch = &first
		rec.LastTouch = &last
		rec.CreditDistribution = distribute(tps, c.strategy, rec.ComputedAt)
	}

	if closedAt, won := earliestWin(deals); won {
		rec.Converted = true
		if rec.FirstTouch != nil && !closedAt.Before(rec.FirstTouch.OccurredAt) {
			days := int(closedAt.Sub(rec.FirstTouch.OccurredAt).Hours() / 24)
			rec.DaysToConversion = &days
		}
	}

	if err := c.store.SaveAttribution(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "attribution: save record for %d", contactID)
	}
	c.log.Debug("recomputed attribution",
		zap.Int64("contactId", contactID),
		zap.Int("touchpoints", len(tps)),
		zap.Bool("converted", rec.Converted))
	return rec, nil
}

// RecomputeAll rebuilds attribution for every contact, in id order.
func (c *Calculator) RecomputeAll(ctx context.Context) (int, error) {
	contacts, err := c.store.ListContacts(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "attribution: list contacts")
	}
	for i := range contacts {
		if _, err := c.Recompute(ctx, contacts[i].ID); err != nil {
			return i, err
		}
	}
	return len(contacts), nil
}

// distribute aggregates per-touchpoint weights into per-source credit
// fractions summing to 1.
func distribute(tps []model.Touchpoint, strategy Weighting, now time.Time) map[model.Source]float64 {
	weights := strategy.Weights(tps, now)
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return nil
	}
	credit := make(map[model.Source]float64)
	for i := range tps {
		credit[tps[i].Source] += weights[i] / total
	}
	return credit
}

// earliestWin returns the closing time of the earliest won deal. A won
// deal without a close timestamp still marks the contact converted but
// yields no days-to-conversion.
func earliestWin(deals []model.Deal) (time.Time, bool) {
	var (
		won      bool
		closedAt time.Time
	)
	for _, d := range deals {
		if !d.Won() {
			continue
		}
		won = true
		if d.ClosedAt != nil && (closedAt.IsZero() || d.ClosedAt.Before(closedAt)) {
			closedAt = *d.ClosedAt
		}
	}
	return closedAt, won
}
