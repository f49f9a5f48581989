// Package audit reports data completeness across the contact population
// and gates downstream accuracy claims on it.
package audit

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/identity"
	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// FieldCoverage is the fill rate for one tracked field.
type FieldCoverage struct {
	Field    string  `json:"field"`
	Present  int     `json:"present"`
	Coverage float64 `json:"coverage"`
}

// weakestCount bounds the highlighted low-coverage fields in a report.
const weakestCount = 3

// Report is the completeness audit over all contacts.
type Report struct {
	Contacts        int             `json:"contacts"`
	Fields          []FieldCoverage `json:"fields"`
	AverageCoverage float64         `json:"average_coverage"`

	// Weakest highlights the lowest-coverage fields, worst first.
	Weakest []FieldCoverage `json:"weakest,omitempty"`

	// FullyPopulated counts contacts carrying every tracked field.
	FullyPopulated int `json:"fully_populated"`
}

// Auditor computes completeness reports.
type Auditor struct {
	store store.Store
}

// NewAuditor creates a completeness auditor.
func NewAuditor(st store.Store) *Auditor {
	return &Auditor{store: st}
}

// Run audits every contact's tracked fields and returns the per-field
// fill rates, sorted by field name.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	contacts, err := a.store.ListContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list contacts")
	}

	present := make(map[string]int, len(model.RequiredFields))
	coverageSum := 0.0
	fullyPopulated := 0

	for i := range contacts {
		c := &contacts[i]
		filled := 0
		for _, field := range model.RequiredFields {
			if contactHasField(c, field) {
				present[field]++
				filled++
			}
		}
		coverage := identity.Coverage(c)
		coverageSum += coverage
		if filled == len(model.RequiredFields) {
			fullyPopulated++
		}
		// Keep the persisted per-contact coverage current alongside the
		// population audit.
		if c.FieldCoverage != coverage {
			c.FieldCoverage = coverage
			if err := a.store.UpdateContact(ctx, c); err != nil {
				return nil, eris.Wrapf(err, "audit: persist coverage for %d", c.ID)
			}
		}
	}

	rep := &Report{
		Contacts:       len(contacts),
		Fields:         make([]FieldCoverage, 0, len(model.RequiredFields)),
		FullyPopulated: fullyPopulated,
	}
	for _, field := range model.RequiredFields {
		fc := FieldCoverage{Field: field, Present: present[field]}
		if len(contacts) > 0 {
			fc.Coverage = float64(present[field]) / float64(len(contacts))
		}
		rep.Fields = append(rep.Fields, fc)
	}
	sort.Slice(rep.Fields, func(i, j int) bool {
		return rep.Fields[i].Field < rep.Fields[j].Field
	})
	if len(contacts) > 0 {
		rep.AverageCoverage = coverageSum / float64(len(contacts))
	}
	rep.Weakest = rep.WeakestFields(weakestCount)
	return rep, nil
}

// WeakestFields returns the n lowest-coverage fields, worst first.
func (r *Report) WeakestFields(n int) []FieldCoverage {
	out := make([]FieldCoverage, len(r.Fields))
	copy(out, r.Fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Coverage != out[j].Coverage {
			return out[i].Coverage < out[j].Coverage
		}
		return out[i].Field < out[j].Field
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TrustGate decides whether the weighted confidence score is presentable
// as a headline number. Below the coverage threshold the underlying data
// is too sparse for the score to mean anything.
type TrustGate struct {
	MinAverageCoverage float64
}

// DefaultTrustGate requires at least 60% average field coverage.
func DefaultTrustGate() TrustGate {
	return TrustGate{MinAverageCoverage: 0.6}
}

// Allows reports whether the audit passes the gate.
func (g TrustGate) Allows(rep *Report) bool {
	if rep == nil || rep.Contacts == 0 {
		return false
	}
	return rep.AverageCoverage >= g.MinAverageCoverage
}

func contactHasField(c *model.Contact, field string) bool {
	switch field {
	case "email":
		if c.PrimaryEmail != "" {
			return true
		}
	case "name":
		if c.DisplayName != "" {
			return true
		}
	}
	for _, v := range c.Fields[field] {
		if v != "" {
			return true
		}
	}
	return false
}
