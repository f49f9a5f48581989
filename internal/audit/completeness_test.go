package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

func TestRun_FieldCoverage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	contacts := []model.Contact{
		{
			PrimaryEmail: "a@b.com",
			DisplayName:  "Alice",
			SourceIDs:    []model.SourceID{{Source: model.SourceCRM, ExternalID: "c1"}},
			Fields: map[string]map[model.Source]string{
				"phone":   {model.SourceCRM: "555-0100"},
				"company": {model.SourceCRM: "Acme"},
			},
		},
		{
			DisplayName: "Bob",
			SourceIDs:   []model.SourceID{{Source: model.SourceForms, ExternalID: "f1"}},
		},
	}
	for i := range contacts {
		require.NoError(t, st.CreateContact(ctx, &contacts[i]))
	}

	rep, err := NewAuditor(st).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Contacts)
	assert.Equal(t, 0, rep.FullyPopulated)

	byField := make(map[string]FieldCoverage)
	for _, fc := range rep.Fields {
		byField[fc.Field] = fc
	}
	assert.InDelta(t, 0.5, byField["email"].Coverage, 0.0001)
	assert.InDelta(t, 1.0, byField["name"].Coverage, 0.0001)
	assert.InDelta(t, 0.5, byField["phone"].Coverage, 0.0001)
	assert.Zero(t, byField["deal_title"].Coverage)

	// The lowest-coverage fields are highlighted worst first, ties
	// broken by field name.
	require.Len(t, rep.Weakest, 3)
	assert.Equal(t, "close_date", rep.Weakest[0].Field)
	assert.Equal(t, "deal_title", rep.Weakest[1].Field)
	assert.Zero(t, rep.Weakest[0].Coverage)

	// Per-contact coverage is persisted as a side effect.
	got, err := st.GetContact(ctx, contacts[0].ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.FieldCoverage, 0.0001)
}

func TestWeakestFields(t *testing.T) {
	rep := &Report{Fields: []FieldCoverage{
		{Field: "email", Coverage: 0.9},
		{Field: "phone", Coverage: 0.1},
		{Field: "company", Coverage: 0.5},
	}}

	worst := rep.WeakestFields(2)
	require.Len(t, worst, 2)
	assert.Equal(t, "phone", worst[0].Field)
	assert.Equal(t, "company", worst[1].Field)
}

func TestTrustGate(t *testing.T) {
	gate := DefaultTrustGate()

	assert.False(t, gate.Allows(nil))
	assert.False(t, gate.Allows(&Report{}))
	assert.False(t, gate.Allows(&Report{Contacts: 10, AverageCoverage: 0.4}))
	assert.True(t, gate.Allows(&Report{Contacts: 10, AverageCoverage: 0.61}))
}
