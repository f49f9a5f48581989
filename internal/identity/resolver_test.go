package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

func contactEvent(src model.Source, externalID string, payload map[string]any) model.RawEvent {
	return model.RawEvent{
		Source:     src,
		ExternalID: externalID,
		Kind:       model.KindContact,
		Payload:    payload,
		ObservedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestResolve_CreatesContactForUnknownIdentity(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewResolver(st)

	c, err := r.Resolve(ctx, contactEvent(model.SourceCRM, "crm-1", map[string]any{
		"name":  "John Doe",
		"email": "john@acme.com",
		"phone": "555-0100",
	}))
	require.NoError(t, err)

	assert.Equal(t, "john@acme.com", c.PrimaryEmail)
	assert.Equal(t, "John Doe", c.DisplayName)
	assert.Len(t, c.SourceIDs, 1)
	assert.Equal(t, model.MatchCreated, c.MatchMethods[model.SourceCRM])
	assert.Greater(t, c.FieldCoverage, 0.0)
}

func TestResolve_MatchesMixedCaseEmailAcrossSources(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewResolver(st)

	first, err := r.Resolve(ctx, contactEvent(model.SourceCRM, "crm-1", map[string]any{
		"name":  "John Doe",
		"email": "John.Doe@Acme.com",
	}))
	require.NoError(t, err)

	second, err := r.Resolve(ctx, model.RawEvent{
		Source:     model.SourceScheduler,
		ExternalID: "sched-9",
		Kind:       model.KindMeeting,
		Payload: map[string]any{
			"title":         "Intro Call",
			"invitee_email": "JOHN.DOE@ACME.COM",
			"invitee_name":  "John Doe",
		},
		ObservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "mixed-case emails must resolve to one contact")
	assert.Len(t, second.SourceIDs, 2)
	assert.Equal(t, model.MatchEmail, second.MatchMethods[model.SourceScheduler])
	assert.Len(t, second.DistinctSources(), 2)
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewResolver(st)

	ev := contactEvent(model.SourceCRM, "crm-1", map[string]any{
		"name":  "Jane Roe",
		"email": "jane@acme.com",
	})

	first, err := r.Resolve(ctx, ev)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, ev)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.SourceIDs, 1, "re-resolving must not grow sourceIds")

	contacts, err := st.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestResolve_LateEmailTriggersMerge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewResolver(st)

	// Two contacts created independently; neither knows the other's email.
	crm, err := r.Resolve(ctx, contactEvent(model.SourceCRM, "crm-1", map[string]any{
		"name": "John Doe",
	}))
	require.NoError(t, err)

	forms, err := r.Resolve(ctx, model.RawEvent{
		Source:     model.SourceForms,
		ExternalID: "form-1",
		Kind:       model.KindFormSubmission,
		Payload:    map[string]any{"name": "J. Doe", "email": "john@acme.com"},
		ObservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEqual(t, crm.ID, forms.ID)

	// The CRM record later gains the shared email; the pair collapses.
	merged, err := r.Resolve(ctx, contactEvent(model.SourceCRM, "crm-1", map[string]any{
		"name":  "John Doe",
		"email": "john@acme.com",
	}))
	require.NoError(t, err)

	assert.Len(t, merged.DistinctSources(), 2)

	// Both prior ids now resolve to the survivor.
	viaCRM, err := st.GetContact(ctx, crm.ID)
	require.NoError(t, err)
	viaForms, err := st.GetContact(ctx, forms.ID)
	require.NoError(t, err)
	assert.Equal(t, viaCRM.ID, viaForms.ID)

	contacts, err := st.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1, "merge must leave exactly one canonical contact")
}

func TestResolve_NameFallbackRequiresSharedField(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewResolver(st)

	_, err := r.Resolve(ctx, contactEvent(model.SourceCRM, "crm-1", map[string]any{
		"name":    "John Doe",
		"company": "Acme Corp",
	}))
	require.NoError(t, err)

	// Same name, same company, no email: fuzzy match attaches.
	matched, err := r.Resolve(ctx, contactEvent(model.SourceScheduler, "sched-1", map[string]any{
		"name":    "john doe",
		"company": "Acme Corp",
	}))
	require.NoError(t, err)
	assert.Equal(t, model.MatchName, matched.MatchMethods[model.SourceScheduler])
	assert.Len(t, matched.DistinctSources(), 2)

	// Same name, nothing else in common: new contact.
	stranger, err := r.Resolve(ctx, contactEvent(model.SourceForms, "form-1", map[string]any{
		"name": "John Doe",
	}))
	require.NoError(t, err)
	assert.NotEqual(t, matched.ID, stranger.ID)
}

func TestResolve_RejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(store.NewMemory())

	_, err := r.Resolve(ctx, contactEvent(model.SourceCRM, "", map[string]any{"name": "X"}))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = r.Resolve(ctx, contactEvent(model.Source("legacy"), "x-1", map[string]any{"name": "X"}))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestResolve_DealEventUpsertsDealAndRemapsFields(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := NewResolver(st)

	c, err := r.Resolve(ctx, model.RawEvent{
		Source:     model.SourceCRM,
		ExternalID: "opp-1",
		Kind:       model.KindDeal,
		Payload: map[string]any{
			"title":      "Acme Expansion",
			"email":      "john@acme.com",
			"name":       "John Doe",
			"status":     "closed_won",
			"value":      "12000",
			"close_date": "2026-03-15",
		},
		ObservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Expansion", c.Fields["deal_title"][model.SourceCRM])
	assert.Empty(t, c.Fields["title"], "deal title must not pollute the job-title field")

	deals, err := st.ListDeals(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.True(t, deals[0].Won())
	require.NotNil(t, deals[0].ClosedAt)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *deals[0].ClosedAt)
}
