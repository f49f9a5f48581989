package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "attribution.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLite_ContactRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	c := &model.Contact{
		PrimaryEmail: "a@b.com",
		DisplayName:  "Alice",
		SourceIDs:    []model.SourceID{{Source: model.SourceCRM, ExternalID: "crm-1"}},
		MatchMethods: map[model.Source]model.MatchMethod{model.SourceCRM: model.MatchCreated},
		Fields: map[string]map[model.Source]string{
			"company": {model.SourceCRM: "Acme"},
		},
	}
	require.NoError(t, st.CreateContact(ctx, c))
	require.NotZero(t, c.ID)
	require.NotEmpty(t, c.UID)

	got, err := st.GetContact(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.PrimaryEmail)
	assert.Equal(t, "Acme", got.Fields["company"][model.SourceCRM])

	bySrc, err := st.FindBySourceID(ctx, model.SourceCRM, "crm-1")
	require.NoError(t, err)
	require.NotNil(t, bySrc)
	assert.Equal(t, c.ID, bySrc.ID)

	byEmail, err := st.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, c.ID, byEmail.ID)
}

func TestSQLite_MergeFollowsAlias(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

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

	require.NoError(t, st.MergeContacts(ctx, winner.ID, loser.ID))

	got, err := st.GetContact(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.ElementsMatch(t, []model.Source{model.SourceCRM, model.SourceForms}, got.DistinctSources())

	// The loser's source id now resolves to the winner.
	bySrc, err := st.FindBySourceID(ctx, model.SourceForms, "form-1")
	require.NoError(t, err)
	require.NotNil(t, bySrc)
	assert.Equal(t, winner.ID, bySrc.ID)

	tps, err := st.ListTouchpoints(ctx, winner.ID)
	require.NoError(t, err)
	assert.Len(t, tps, 1)

	contacts, err := st.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestSQLite_CheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	cp, err := st.GetCheckpoint(ctx, model.SourceScheduler)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointIdle, cp.Status)

	cp.Status = model.CheckpointPaused
	cp.Cursor = "tok-3"
	cp.ProcessedCount = 7
	cp.RunID = "run-9"
	cp.LastAttemptAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveCheckpoint(ctx, cp))

	got, err := st.GetCheckpoint(ctx, model.SourceScheduler)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointPaused, got.Status)
	assert.Equal(t, "tok-3", got.Cursor)
	assert.EqualValues(t, 7, got.ProcessedCount)
	assert.Equal(t, "run-9", got.RunID)
}

func TestSQLite_AttributionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)
	c := seedContact(t, st, "a@b.com", "Alice", model.SourceCRM, "crm-1")

	days := 12
	rec := &model.AttributionRecord{
		ContactID: c.ID,
		CreditDistribution: map[model.Source]float64{
			model.SourceCRM:   0.5,
			model.SourceForms: 0.5,
		},
		Converted:        true,
		DaysToConversion: &days,
		Strategy:         "even_split",
		ComputedAt:       time.Now().UTC(),
	}
	require.NoError(t, st.SaveAttribution(ctx, rec))

	got, err := st.GetAttribution(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Converted)
	require.NotNil(t, got.DaysToConversion)
	assert.Equal(t, 12, *got.DaysToConversion)
	assert.InDelta(t, 0.5, got.CreditDistribution[model.SourceCRM], 0.0001)
}
