package model

import (
	"strings"
	"time"
)

// AttributionRecord is the derived attribution state for one contact.
// It is recomputed wholesale whenever the contact's touchpoint set or deal
// state changes and is treated as a cache, never hand-edited.
type AttributionRecord struct {
	ContactID int64 `json:"contact_id" db:"contact_id"`

	FirstTouch *Touchpoint `json:"first_touch,omitempty" db:"first_touch"`
	LastTouch  *Touchpoint `json:"last_touch,omitempty" db:"last_touch"`

	// CreditDistribution maps each contributing source to its credit
	// fraction. Empty when the contact has no touchpoints; otherwise the
	// fractions sum to 1.0.
	CreditDistribution map[Source]float64 `json:"credit_distribution,omitempty" db:"credit_distribution"`

	Converted        bool   `json:"converted" db:"converted"`
	DaysToConversion *int   `json:"days_to_conversion,omitempty" db:"days_to_conversion"`
	Strategy         string `json:"strategy" db:"strategy"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// Deal is the conversion-relevant slice of a CRM deal record attached to
// a contact.
type Deal struct {
	ContactID  int64      `json:"contact_id" db:"contact_id"`
	ExternalID string     `json:"external_id" db:"external_id"`
	Title      string     `json:"title,omitempty" db:"title"`
	Status     string     `json:"status,omitempty" db:"status"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// wonStatuses are the deal statuses treated as a successful conversion.
var wonStatuses = map[string]bool{
	"won":        true,
	"closed_won": true,
	"closed-won": true,
	"closed won": true,
	"closedwon":  true,
}

// Won reports whether the deal is in a won/closed-success state.
func (d Deal) Won() bool {
	return wonStatuses[strings.ToLower(strings.TrimSpace(d.Status))]
}
