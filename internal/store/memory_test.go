package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

func seedContact(t *testing.T, st Store, email, name string, src model.Source, externalID string) *model.Contact {
	t.Helper()
	c := &model.Contact{
		PrimaryEmail: email,
		DisplayName:  name,
		SourceIDs:    []model.SourceID{{Source: src, ExternalID: externalID}},
		MatchMethods: map[model.Source]model.MatchMethod{src: model.MatchCreated},
	}
	require.NoError(t, st.CreateContact(context.Background(), c))
	return c
}

func TestMemory_FindBySourceIDAndEmail(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	c := seedContact(t, st, "a@b.com", "Alice", model.SourceCRM, "crm-1")

	bySrc, err := st.FindBySourceID(ctx, model.SourceCRM, "crm-1")
	require.NoError(t, err)
	require.NotNil(t, bySrc)
	assert.Equal(t, c.ID, bySrc.ID)

	byEmail, err := st.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, c.ID, byEmail.ID)

	missing, err := st.FindBySourceID(ctx, model.SourceForms, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemory_MergeReassignsAndAliases(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	winner := seedContact(t, st, "a@b.com", "Alice", model.SourceCRM, "crm-1")
	loser := seedContact(t, st, "alias@b.com", "Alicia", model.SourceForms, "form-1")

	tp := &model.Touchpoint{
		ContactID:   loser.ID,
		Type:        model.TouchForm,
		OccurredAt:  time.Now().UTC(),
		Source:      model.SourceForms,
		ExternalKey: model.SourceID{Source: model.SourceForms, ExternalID: "form-1"},
	}
	require.NoError(t, st.SaveTouchpoint(ctx, tp))
	require.NoError(t, st.UpsertDeal(ctx, &model.Deal{ContactID: loser.ID, ExternalID: "opp-1", Status: "open"}))

	require.NoError(t, st.MergeContacts(ctx, winner.ID, loser.ID))

	// The loser id forwards to the winner.
	got, err := st.GetContact(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.ElementsMatch(t, []model.Source{model.SourceCRM, model.SourceForms}, got.DistinctSources())
	assert.Contains(t, got.AltEmails, "alias@b.com")

	// Touchpoints and deals follow.
	tps, err := st.ListTouchpoints(ctx, winner.ID)
	require.NoError(t, err)
	require.Len(t, tps, 1)

	deals, err := st.ListDeals(ctx, winner.ID)
	require.NoError(t, err)
	require.Len(t, deals, 1)

	contacts, err := st.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	// Merging the pair again is a no-op.
	require.NoError(t, st.MergeContacts(ctx, winner.ID, loser.ID))
}

func TestMemory_SaveTouchpointUpsertsByExternalKey(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	c := seedContact(t, st, "a@b.com", "Alice", model.SourceCRM, "crm-1")

	key := model.SourceID{Source: model.SourceScheduler, ExternalID: "sched-1"}
	tp := &model.Touchpoint{
		ContactID:   c.ID,
		Type:        model.TouchCall1,
		OccurredAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Source:      model.SourceScheduler,
		ExternalKey: key,
	}
	require.NoError(t, st.SaveTouchpoint(ctx, tp))
	firstID := tp.ID

	// Re-saving the same key updates in place.
	reseen, err := st.GetTouchpointByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, reseen)
	reseen.Type = model.TouchCall2
	require.NoError(t, st.SaveTouchpoint(ctx, reseen))
	assert.Equal(t, firstID, reseen.ID)

	tps, err := st.ListTouchpoints(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, tps, 1)
	assert.Equal(t, model.TouchCall2, tps[0].Type)
}

func TestMemory_CheckpointDefaultsToIdle(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	cp, err := st.GetCheckpoint(ctx, model.SourceCRM)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointIdle, cp.Status)
	assert.Empty(t, cp.Cursor)
	assert.Zero(t, cp.ProcessedCount)

	cp.Status = model.CheckpointInProgress
	cp.Cursor = "page-2"
	cp.ProcessedCount = 42
	cp.RunID = "run-1"
	require.NoError(t, st.SaveCheckpoint(ctx, cp))

	got, err := st.GetCheckpoint(ctx, model.SourceCRM)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointInProgress, got.Status)
	assert.Equal(t, "page-2", got.Cursor)
	assert.EqualValues(t, 42, got.ProcessedCount)
}

func TestMemory_EventLogIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	ev := model.RawEvent{
		Source:     model.SourceCRM,
		ExternalID: "crm-1",
		Kind:       model.KindContact,
		Payload:    map[string]any{"name": "Alice"},
		ObservedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.AppendEvent(ctx, ev))

	// A later observation of the same record is a second log entry.
	ev.ObservedAt = ev.ObservedAt.Add(time.Hour)
	require.NoError(t, st.AppendEvent(ctx, ev))

	events, err := st.ListEvents(ctx, model.SourceCRM)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
