package touchpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

func meetingEvent(title string) model.RawEvent {
	return model.RawEvent{
		Source:     model.SourceScheduler,
		ExternalID: "sched-1",
		Kind:       model.KindMeeting,
		Payload:    map[string]any{"title": title},
		ObservedAt: time.Now().UTC(),
	}
}

func TestClassify_KeywordRules(t *testing.T) {
	tests := []struct {
		title    string
		expected model.TouchpointType
	}{
		{"Intro Call with John", model.TouchCall1},
		{"Discovery session", model.TouchCall1},
		{"Solution Walkthrough", model.TouchCall2},
		{"Product demo", model.TouchCall2},
		{"Next Step Planning", model.TouchCall3},
		{"Follow-up with Jane", model.TouchCall3},
		{"New Client Orientation", model.TouchOrientation},
		{"Mentor sync", model.TouchMentoring},
		{"Mentee check-in", model.TouchMentoring},
		// Unmatched titles default to the first call stage.
		{"Quarterly catch up", model.TouchCall1},
		{"", model.TouchCall1},
	}

	cl := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, cl.Classify(meetingEvent(tt.title)))
		})
	}
}

func TestClassify_LaterStageWinsMixedTitles(t *testing.T) {
	// When a title names two journey stages the later one wins; it is
	// what the meeting is actually about.
	cl := NewClassifier()
	assert.Equal(t, model.TouchCall3, cl.Classify(meetingEvent("Intro to next step planning")))
	assert.Equal(t, model.TouchCall3, cl.Classify(meetingEvent("Follow-up on intro call")))
	assert.Equal(t, model.TouchCall2, cl.Classify(meetingEvent("Demo after discovery")))
}

func TestClassify_FormSubmissionsBypassKeywords(t *testing.T) {
	cl := NewClassifier()
	got := cl.Classify(model.RawEvent{
		Source:     model.SourceForms,
		ExternalID: "f1",
		Kind:       model.KindFormSubmission,
		Payload:    map[string]any{"name": "Intro request"},
	})
	assert.Equal(t, model.TouchForm, got)
}

func TestLoadRules_ReplacesBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- type: orientation
  keywords: ["kickoff"]
- type: call_2
  keywords: ["pricing"]
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	cl := NewClassifierFromRules(rules)
	assert.Equal(t, model.TouchOrientation, cl.Classify(meetingEvent("Project Kickoff")))
	assert.Equal(t, model.TouchCall2, cl.Classify(meetingEvent("Pricing discussion")))
	// Builtin keywords are gone; unmatched falls back to call_1.
	assert.Equal(t, model.TouchCall1, cl.Classify(meetingEvent("Mentor sync")))
}

func TestLoadRules_RejectsIncompleteRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- type: call_1\n  keywords: []\n"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}
