package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDealWon(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"won", true},
		{"Closed Won", true},
		{"closed_won", true},
		{"CLOSED-WON", true},
		{"  closedwon  ", true},
		{"open", false},
		{"closed_lost", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Deal{Status: tt.status}.Won(), "status %q", tt.status)
	}
}

func TestTouchpointFamily(t *testing.T) {
	assert.Equal(t, "call", TouchCall1.Family())
	assert.Equal(t, "call", TouchCall2.Family())
	assert.Equal(t, "call", TouchCall3.Family())
	assert.Equal(t, "orientation", TouchOrientation.Family())
	assert.Equal(t, "mentoring", TouchMentoring.Family())
	assert.Equal(t, "form", TouchForm.Family())
	assert.Equal(t, "other", TouchpointType("webinar").Family())
}

func TestTouchKind(t *testing.T) {
	assert.True(t, KindMeeting.TouchKind())
	assert.True(t, KindActivity.TouchKind())
	assert.True(t, KindFormSubmission.TouchKind())
	assert.False(t, KindContact.TouchKind())
	assert.False(t, KindDeal.TouchKind())
}

func TestSourceValid(t *testing.T) {
	for _, src := range Sources {
		assert.True(t, src.Valid())
	}
	assert.False(t, Source("billing").Valid())
	assert.False(t, Source("").Valid())
}
