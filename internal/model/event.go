// Package model defines the core data types for identity resolution and
// multi-touch attribution.
package model

import (
	"time"
)

// Source identifies the upstream system an event originated from.
type Source string

const (
	SourceCRM       Source = "crm"
	SourceScheduler Source = "scheduler"
	SourceForms     Source = "forms"
)

// Sources lists all known sources in pipeline order.
var Sources = []Source{SourceCRM, SourceScheduler, SourceForms}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceCRM, SourceScheduler, SourceForms:
		return true
	}
	return false
}

// EventKind classifies the record type carried by a RawEvent.
type EventKind string

const (
	KindContact        EventKind = "contact"
	KindMeeting        EventKind = "meeting"
	KindActivity       EventKind = "activity"
	KindDeal           EventKind = "deal"
	KindFormSubmission EventKind = "form_submission"
)

// RawEvent is a source-tagged record exactly as received from an adapter.
// Events are immutable once ingested and retained in an append-only log
// keyed by (source, external_id, observed_at) for audit and replay.
type RawEvent struct {
	Source     Source         `json:"source" db:"source"`
	ExternalID string         `json:"external_id" db:"external_id"`
	Kind       EventKind      `json:"kind" db:"kind"`
	Payload    map[string]any `json:"payload" db:"payload"`
	ObservedAt time.Time      `json:"observed_at" db:"observed_at"`
}

// PayloadString returns the payload value for key as a string, or "" if
// absent or not a string.
func (e RawEvent) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}

// TouchKind reports whether the event kind produces a touchpoint
// (meetings, activities, and form submissions do; contacts and deals do not).
func (k EventKind) TouchKind() bool {
	switch k {
	case KindMeeting, KindActivity, KindFormSubmission:
		return true
	}
	return false
}
