// Package identity maps raw source events to canonical contacts.
package identity

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// ErrInvalidRecord marks a malformed raw event. The event is skipped and
// the checkpoint for it is not advanced.
var ErrInvalidRecord = eris.New("identity: invalid record")

// Resolver maps each incoming raw event to a canonical contact, creating
// one when no matcher produces a candidate.
//
// Resolution uses a priority cascade (first match wins):
//  1. exact (source, externalId) ownership
//  2. exact normalized email
//  3. pluggable low-confidence name fallback
//
// Contact creation and merge are serialized behind a single mutex so two
// concurrent resolves for the same new email cannot create two contacts.
type Resolver struct {
	store    store.Store
	matchers []Matcher

	// OnMerge, when set, runs after two contacts are collapsed so callers
	// can rebuild derived state for the survivor (touchpoint ordering,
	// attribution, confidence). Its error aborts the resolve.
	OnMerge func(ctx context.Context, survivor *model.Contact) error

	mu sync.Mutex
}

// NewResolver creates a resolver with the default matcher cascade.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st, matchers: DefaultMatchers()}
}

// NewResolverWithMatchers creates a resolver with a custom cascade, e.g.
// StrictMatchers for token-set name matching.
func NewResolverWithMatchers(st store.Store, matchers []Matcher) *Resolver {
	return &Resolver{store: st, matchers: matchers}
}

// Resolve attaches the event to its canonical contact. Idempotent: the
// same event resolves to the same contact without growing sourceIds.
func (r *Resolver) Resolve(ctx context.Context, ev model.RawEvent) (*model.Contact, error) {
	if ev.ExternalID == "" {
		return nil, eris.Wrapf(ErrInvalidRecord, "missing external id (source %s, kind %s)", ev.Source, ev.Kind)
	}
	if !ev.Source.Valid() {
		return nil, eris.Wrapf(ErrInvalidRecord, "unknown source %q", ev.Source)
	}

	probe := ExtractProbe(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		contact *model.Contact
		method  model.MatchMethod
	)
	for _, m := range r.matchers {
		c, err := m.Match(ctx, r.store, probe)
		if err != nil {
			return nil, err
		}
		if c != nil {
			contact = c
			method = m.Method()
			zap.L().Debug("resolve: matched",
				zap.String("matcher", m.Name()),
				zap.String("source", string(ev.Source)),
				zap.String("external_id", ev.ExternalID),
				zap.Int64("contact_id", c.ID),
			)
			break
		}
	}

	created := false
	if contact == nil {
		contact = &model.Contact{
			PrimaryEmail: probe.Email,
			DisplayName:  probe.Name,
			SourceIDs:    []model.SourceID{{Source: ev.Source, ExternalID: ev.ExternalID}},
			MatchMethods: map[model.Source]model.MatchMethod{ev.Source: model.MatchCreated},
		}
		applyProbe(contact, probe, ev.Kind)
		contact.FieldCoverage = Coverage(contact)
		if err := r.store.CreateContact(ctx, contact); err != nil {
			return nil, eris.Wrap(err, "identity: create contact")
		}
		created = true
		method = model.MatchCreated
		zap.L().Info("resolve: created new contact",
			zap.String("source", string(ev.Source)),
			zap.String("external_id", ev.ExternalID),
			zap.Int64("contact_id", contact.ID),
		)
	}

	if !created {
		// Find any other contact owning the probe email before it is
		// folded into this one; afterwards both would own it and the
		// duplicate would be invisible.
		duplicate, err := r.findDuplicate(ctx, contact, probe)
		if err != nil {
			return nil, err
		}

		if !contact.OwnsSourceID(ev.Source, ev.ExternalID) {
			contact.SourceIDs = append(contact.SourceIDs, model.SourceID{Source: ev.Source, ExternalID: ev.ExternalID})
		}
		if contact.MatchMethods == nil {
			contact.MatchMethods = make(map[model.Source]model.MatchMethod)
		}
		if _, ok := contact.MatchMethods[ev.Source]; !ok {
			contact.MatchMethods[ev.Source] = method
		}
		applyProbe(contact, probe, ev.Kind)
		contact.FieldCoverage = Coverage(contact)
		if err := r.store.UpdateContact(ctx, contact); err != nil {
			return nil, eris.Wrap(err, "identity: update contact")
		}

		if duplicate != nil {
			// A delayed email update revealed that two contacts share an
			// identity; collapse them with the deterministic survivor rule.
			merged, err := r.merge(ctx, contact, duplicate, probe.Email)
			if err != nil {
				return nil, err
			}
			contact = merged
		}
	}

	if ev.Kind == model.KindDeal {
		if err := r.upsertDeal(ctx, contact.ID, ev); err != nil {
			return nil, err
		}
	}

	return contact, nil
}

// findDuplicate returns another contact already owning the probe email,
// or nil. Must run under r.mu.
func (r *Resolver) findDuplicate(ctx context.Context, contact *model.Contact, probe Probe) (*model.Contact, error) {
	if probe.Email == "" || contact.HasEmail(probe.Email) {
		return nil, nil
	}
	other, err := r.store.FindByEmail(ctx, probe.Email)
	if err != nil {
		return nil, eris.Wrap(err, "identity: merge lookup")
	}
	if other == nil || other.ID == contact.ID {
		return nil, nil
	}
	return other, nil
}

// merge collapses contact and other into one. Survivor: more distinct
// sources, tie broken by lower numeric id. Must run under r.mu.
func (r *Resolver) merge(ctx context.Context, contact, other *model.Contact, email string) (*model.Contact, error) {
	winner, loser := pickSurvivor(contact, other)
	zap.L().Info("resolve: merging duplicate contacts",
		zap.Int64("winner_id", winner.ID),
		zap.Int64("loser_id", loser.ID),
		zap.String("email", email),
	)
	if err := r.store.MergeContacts(ctx, winner.ID, loser.ID); err != nil {
		return nil, eris.Wrapf(err, "identity: merge %d into %d", loser.ID, winner.ID)
	}

	merged, err := r.store.GetContact(ctx, winner.ID)
	if err != nil {
		return nil, eris.Wrap(err, "identity: reload after merge")
	}
	merged.FieldCoverage = Coverage(merged)
	if err := r.store.UpdateContact(ctx, merged); err != nil {
		return nil, eris.Wrap(err, "identity: recompute coverage after merge")
	}
	if r.OnMerge != nil {
		if err := r.OnMerge(ctx, merged); err != nil {
			return nil, eris.Wrapf(err, "identity: post-merge hook for contact %d", merged.ID)
		}
	}
	return merged, nil
}

func pickSurvivor(a, b *model.Contact) (winner, loser *model.Contact) {
	na, nb := len(a.DistinctSources()), len(b.DistinctSources())
	switch {
	case na > nb:
		return a, b
	case nb > na:
		return b, a
	case a.ID < b.ID:
		return a, b
	default:
		return b, a
	}
}

func (r *Resolver) upsertDeal(ctx context.Context, contactID int64, ev model.RawEvent) error {
	d := &model.Deal{
		ContactID:  contactID,
		ExternalID: ev.ExternalID,
		Title:      ev.PayloadString("title"),
		Status:     ev.PayloadString("status"),
	}
	if ts := parseTime(ev.PayloadString("close_date")); ts != nil {
		d.ClosedAt = ts
	}
	if err := r.store.UpsertDeal(ctx, d); err != nil {
		return eris.Wrap(err, "identity: upsert deal")
	}
	return nil
}

// applyProbe folds the probe's attributes into the contact.
func applyProbe(c *model.Contact, p Probe, kind model.EventKind) {
	if p.Email != "" {
		if c.PrimaryEmail == "" {
			c.PrimaryEmail = p.Email
		} else if !c.HasEmail(p.Email) {
			c.AltEmails = append(c.AltEmails, p.Email)
		}
	}
	if c.DisplayName == "" && p.Name != "" {
		c.DisplayName = p.Name
	}
	for field, v := range p.Fields {
		c.SetField(field, p.Source, v)
	}
	if c.Kinds == nil {
		c.Kinds = make(map[model.EventKind]bool)
	}
	c.Kinds[kind] = true
}
