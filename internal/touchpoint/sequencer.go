package touchpoint

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// Sequencer records classified touchpoints and keeps each contact's
// per-family sequence numbers chronological and gap-free. Numbers are
// re-derived from occurrence timestamps on every write, so a backfilled
// event that lands earlier in the timeline shifts later touchpoints up.
type Sequencer struct {
	store      store.Store
	classifier *Classifier
	log        *zap.Logger
}

// NewSequencer creates a sequencer with the given classifier.
func NewSequencer(st store.Store, cl *Classifier) *Sequencer {
	return &Sequencer{
		store:      st,
		classifier: cl,
		log:        zap.L().Named("touchpoint"),
	}
}

// Record classifies an interaction event and persists it as a touchpoint
// for the contact. Re-seeing an (source, externalId) key updates the
// existing touchpoint in place; timestamps and types may change on
// replay, so the family is renumbered afterwards either way.
func (s *Sequencer) Record(ctx context.Context, contactID int64, ev model.RawEvent) (*model.Touchpoint, error) {
	occurredAt := eventOccurredAt(ev)
	tpType := s.classifier.Classify(ev)
	key := model.SourceID{Source: ev.Source, ExternalID: ev.ExternalID}

	// A key miss is (nil, nil), the same convention the contact finders use.
	tp, err := s.store.GetTouchpointByKey(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "touchpoint: lookup %s/%s", ev.Source, ev.ExternalID)
	}
	if tp != nil {
		prevFamily := tp.Type.Family()
		tp.ContactID = contactID
		tp.Type = tpType
		tp.OccurredAt = occurredAt
		if err := s.store.SaveTouchpoint(ctx, tp); err != nil {
			return nil, eris.Wrapf(err, "touchpoint: update %s/%s", ev.Source, ev.ExternalID)
		}
		// Reclassification can move the touchpoint between families; the
		// one it left needs renumbering too.
		if prevFamily != tpType.Family() {
			if err := s.Renumber(ctx, contactID, prevFamily); err != nil {
				return nil, err
			}
		}
	} else {
		tp = &model.Touchpoint{
			ContactID:   contactID,
			Type:        tpType,
			OccurredAt:  occurredAt,
			Source:      ev.Source,
			ExternalKey: key,
		}
		if err := s.store.SaveTouchpoint(ctx, tp); err != nil {
			return nil, eris.Wrapf(err, "touchpoint: create %s/%s", ev.Source, ev.ExternalID)
		}
	}

	if err := s.Renumber(ctx, contactID, tpType.Family()); err != nil {
		return nil, err
	}
	// Reload so the caller sees the assigned sequence number.
	fresh, err := s.store.GetTouchpointByKey(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "touchpoint: reload %s/%s", ev.Source, ev.ExternalID)
	}
	s.log.Debug("recorded touchpoint",
		zap.Int64("contactId", contactID),
		zap.String("type", string(fresh.Type)),
		zap.Int("sequence", fresh.SequenceNumber))
	return fresh, nil
}

// Renumber re-derives sequence numbers for a contact's touchpoint family
// from occurrence order. Ties on timestamp break by insertion id so the
// result is stable across runs.
func (s *Sequencer) Renumber(ctx context.Context, contactID int64, family string) error {
	tps, err := s.store.ListTouchpointsByFamily(ctx, contactID, family)
	if err != nil {
		return eris.Wrapf(err, "touchpoint: list family %s for contact %d", family, contactID)
	}
	sort.SliceStable(tps, func(i, j int) bool {
		if !tps[i].OccurredAt.Equal(tps[j].OccurredAt) {
			return tps[i].OccurredAt.Before(tps[j].OccurredAt)
		}
		return tps[i].ID < tps[j].ID
	})
	for i := range tps {
		want := i + 1
		if tps[i].SequenceNumber == want {
			continue
		}
		tps[i].SequenceNumber = want
		if err := s.store.SaveTouchpoint(ctx, &tps[i]); err != nil {
			return eris.Wrapf(err, "touchpoint: renumber %d", tps[i].ID)
		}
	}
	return nil
}

// RenumberAll recomputes every family sequence for a contact. Used after
// merges, which can interleave two previously independent timelines.
func (s *Sequencer) RenumberAll(ctx context.Context, contactID int64) error {
	tps, err := s.store.ListTouchpoints(ctx, contactID)
	if err != nil {
		return eris.Wrapf(err, "touchpoint: list contact %d", contactID)
	}
	families := make(map[string]bool, 4)
	for i := range tps {
		families[tps[i].Type.Family()] = true
	}
	for fam := range families {
		if err := s.Renumber(ctx, contactID, fam); err != nil {
			return err
		}
	}
	return nil
}

// eventOccurredAt pulls the interaction timestamp from the payload,
// falling back to the observation time when the source omits it.
func eventOccurredAt(ev model.RawEvent) time.Time {
	for _, key := range []string{"occurred_at", "start_time", "scheduled_at", "submitted_at", "timestamp"} {
		raw := ev.PayloadString(key)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return ev.ObservedAt
}
