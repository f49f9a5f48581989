package confidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		contact  model.Contact
		expected model.MatchConfidence
	}{
		{
			name: "two sources joined by email is high",
			contact: model.Contact{
				SourceIDs: []model.SourceID{
					{Source: model.SourceCRM, ExternalID: "c1"},
					{Source: model.SourceScheduler, ExternalID: "s1"},
				},
				MatchMethods: map[model.Source]model.MatchMethod{
					model.SourceCRM:       model.MatchCreated,
					model.SourceScheduler: model.MatchEmail,
				},
			},
			expected: model.ConfidenceHigh,
		},
		{
			name: "two sources joined by fuzzy name is medium",
			contact: model.Contact{
				SourceIDs: []model.SourceID{
					{Source: model.SourceCRM, ExternalID: "c1"},
					{Source: model.SourceForms, ExternalID: "f1"},
				},
				MatchMethods: map[model.Source]model.MatchMethod{
					model.SourceCRM:   model.MatchCreated,
					model.SourceForms: model.MatchName,
				},
			},
			expected: model.ConfidenceMedium,
		},
		{
			name: "single source with corroborating meeting is medium",
			contact: model.Contact{
				SourceIDs: []model.SourceID{
					{Source: model.SourceCRM, ExternalID: "c1"},
					{Source: model.SourceCRM, ExternalID: "m1"},
				},
				MatchMethods: map[model.Source]model.MatchMethod{
					model.SourceCRM: model.MatchCreated,
				},
				Kinds: map[model.EventKind]bool{
					model.KindContact: true,
					model.KindMeeting: true,
				},
			},
			expected: model.ConfidenceMedium,
		},
		{
			name: "single source fuzzy matched without corroboration is low",
			contact: model.Contact{
				SourceIDs: []model.SourceID{{Source: model.SourceForms, ExternalID: "f1"}},
				MatchMethods: map[model.Source]model.MatchMethod{
					model.SourceForms: model.MatchName,
				},
				Kinds: map[model.EventKind]bool{model.KindContact: true},
			},
			expected: model.ConfidenceLow,
		},
		{
			name: "isolated contact record is none",
			contact: model.Contact{
				SourceIDs: []model.SourceID{{Source: model.SourceCRM, ExternalID: "c1"}},
				MatchMethods: map[model.Source]model.MatchMethod{
					model.SourceCRM: model.MatchCreated,
				},
				Kinds: map[model.EventKind]bool{model.KindContact: true},
			},
			expected: model.ConfidenceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(&tt.contact))
		})
	}
}

func TestDistribution_WeightedScore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	seed := []model.Contact{
		{ // high
			SourceIDs: []model.SourceID{
				{Source: model.SourceCRM, ExternalID: "c1"},
				{Source: model.SourceScheduler, ExternalID: "s1"},
			},
			MatchMethods: map[model.Source]model.MatchMethod{
				model.SourceScheduler: model.MatchEmail,
			},
		},
		{ // medium: corroborated single source
			SourceIDs:    []model.SourceID{{Source: model.SourceCRM, ExternalID: "c2"}},
			MatchMethods: map[model.Source]model.MatchMethod{model.SourceCRM: model.MatchCreated},
			Kinds:        map[model.EventKind]bool{model.KindContact: true, model.KindDeal: true},
		},
		{ // none: isolated
			SourceIDs:    []model.SourceID{{Source: model.SourceForms, ExternalID: "f1"}},
			MatchMethods: map[model.Source]model.MatchMethod{model.SourceForms: model.MatchCreated},
			Kinds:        map[model.EventKind]bool{model.KindContact: true},
		},
		{ // none: isolated
			SourceIDs:    []model.SourceID{{Source: model.SourceForms, ExternalID: "f2"}},
			MatchMethods: map[model.Source]model.MatchMethod{model.SourceForms: model.MatchCreated},
			Kinds:        map[model.EventKind]bool{model.KindContact: true},
		},
	}
	for i := range seed {
		require.NoError(t, st.CreateContact(ctx, &seed[i]))
	}

	dist, err := NewScorer(st).Distribution(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, dist.Total)
	assert.Equal(t, 1, dist.Counts[model.ConfidenceHigh])
	assert.Equal(t, 1, dist.Counts[model.ConfidenceMedium])
	assert.Equal(t, 0, dist.Counts[model.ConfidenceLow])
	assert.Equal(t, 2, dist.Counts[model.ConfidenceNone])

	// (0.25 * 1.0) + (0.25 * 0.7) + (0.5 * 0.0)
	assert.InDelta(t, 0.425, dist.OverallScore, 0.0001)
}

func TestDistribution_EmptyPopulation(t *testing.T) {
	dist, err := NewScorer(store.NewMemory()).Distribution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, dist.Total)
	assert.Zero(t, dist.OverallScore)
}
