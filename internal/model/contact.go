package model

import (
	"time"
)

// MatchConfidence classifies how certain an identity resolution is.
type MatchConfidence string

const (
	ConfidenceNone   MatchConfidence = "none"
	ConfidenceLow    MatchConfidence = "low"
	ConfidenceMedium MatchConfidence = "medium"
	ConfidenceHigh   MatchConfidence = "high"
)

// ConfidenceLevels lists all levels from weakest to strongest.
var ConfidenceLevels = []MatchConfidence{
	ConfidenceNone, ConfidenceLow, ConfidenceMedium, ConfidenceHigh,
}

// MatchMethod records how a source record was attached to a contact.
type MatchMethod string

const (
	MatchSourceID MatchMethod = "source_id"
	MatchEmail    MatchMethod = "email"
	MatchName     MatchMethod = "name"
	MatchCreated  MatchMethod = "created"
)

// SourceID is one (source, externalId) pair owned by a contact.
// At most one contact owns a given pair at any time.
type SourceID struct {
	Source     Source `json:"source" db:"source"`
	ExternalID string `json:"external_id" db:"external_id"`
}

// Contact is the canonical identity a raw record resolves to.
// Contacts are never deleted, only merged; a merged-away contact id is
// retired with a forwarding alias pointing at the survivor.
type Contact struct {
	ID           int64      `json:"id" db:"id"`
	UID          string     `json:"uid" db:"uid"`
	PrimaryEmail string     `json:"primary_email,omitempty" db:"primary_email"`
	AltEmails    []string   `json:"alt_emails,omitempty" db:"alt_emails"`
	DisplayName  string     `json:"display_name,omitempty" db:"display_name"`
	SourceIDs    []SourceID `json:"source_ids" db:"source_ids"`

	// Fields is the union of known attribute values keyed by canonical
	// field name, with one value recorded per contributing source.
	Fields map[string]map[Source]string `json:"fields,omitempty" db:"fields"`

	// MatchMethods records, per source, how that source was attached.
	MatchMethods map[Source]MatchMethod `json:"match_methods,omitempty" db:"match_methods"`

	FieldCoverage   float64         `json:"field_coverage" db:"field_coverage"`
	MatchConfidence MatchConfidence `json:"match_confidence" db:"match_confidence"`

	// Kinds tracks which record kinds have ever attached to this contact,
	// used to corroborate single-source confidence.
	Kinds map[EventKind]bool `json:"kinds,omitempty" db:"kinds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RequiredFields is the fixed field set field coverage is computed against.
var RequiredFields = []string{
	"name", "email", "phone", "company", "title",
	"deal_title", "value", "status", "close_date", "pipeline",
}

// OwnsSourceID reports whether the contact owns the given pair.
func (c *Contact) OwnsSourceID(src Source, externalID string) bool {
	for _, sid := range c.SourceIDs {
		if sid.Source == src && sid.ExternalID == externalID {
			return true
		}
	}
	return false
}

// DistinctSources returns the set of sources contributing to this contact.
func (c *Contact) DistinctSources() []Source {
	seen := make(map[Source]bool, len(c.SourceIDs))
	var out []Source
	for _, sid := range c.SourceIDs {
		if !seen[sid.Source] {
			seen[sid.Source] = true
			out = append(out, sid.Source)
		}
	}
	return out
}

// HasEmail reports whether addr matches the primary or any alternate email.
// Callers are expected to pass an already-normalized address.
func (c *Contact) HasEmail(addr string) bool {
	if addr == "" {
		return false
	}
	if c.PrimaryEmail == addr {
		return true
	}
	for _, e := range c.AltEmails {
		if e == addr {
			return true
		}
	}
	return false
}

// SetField records a field value contributed by a source.
func (c *Contact) SetField(field string, src Source, value string) {
	if value == "" {
		return
	}
	if c.Fields == nil {
		c.Fields = make(map[string]map[Source]string)
	}
	if c.Fields[field] == nil {
		c.Fields[field] = make(map[Source]string)
	}
	c.Fields[field][src] = value
}
