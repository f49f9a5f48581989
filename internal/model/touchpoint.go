package model

import (
	"time"
)

// TouchpointType is the classified interaction type.
type TouchpointType string

const (
	TouchCall1       TouchpointType = "call_1"
	TouchCall2       TouchpointType = "call_2"
	TouchCall3       TouchpointType = "call_3"
	TouchOrientation TouchpointType = "orientation"
	TouchMentoring   TouchpointType = "mentoring"
	TouchForm        TouchpointType = "form"
	TouchOther       TouchpointType = "other"
)

// Family returns the sequencing family for a touchpoint type.
// The three call stages share one sequence; every other type sequences
// independently.
func (t TouchpointType) Family() string {
	switch t {
	case TouchCall1, TouchCall2, TouchCall3:
		return "call"
	case TouchOrientation:
		return "orientation"
	case TouchMentoring:
		return "mentoring"
	case TouchForm:
		return "form"
	default:
		return "other"
	}
}

// Touchpoint is a classified, sequenced interaction belonging to exactly
// one contact. Immutable once created except for sequence renumbering when
// a backfilled event lands earlier in the timeline.
type Touchpoint struct {
	ID             int64          `json:"id" db:"id"`
	ContactID      int64          `json:"contact_id" db:"contact_id"`
	Type           TouchpointType `json:"type" db:"type"`
	SequenceNumber int            `json:"sequence_number" db:"sequence_number"`
	OccurredAt     time.Time      `json:"occurred_at" db:"occurred_at"`
	Source         Source         `json:"source" db:"source"`

	// ExternalKey is the originating (source, externalId) pair; re-seeing
	// the same key updates the existing touchpoint instead of creating a
	// second one.
	ExternalKey SourceID `json:"external_key" db:"external_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
