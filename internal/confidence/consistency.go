package confidence

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
)

// DefaultConsistencyThreshold is the agreement score below which a
// field is flagged as inconsistent in reports.
const DefaultConsistencyThreshold = 0.8

// FieldConsistency reports cross-source agreement for one tracked field.
// Compared is the number of contacts that carry the field from at least
// two sources; Score is the fraction of those where every source agrees.
type FieldConsistency struct {
	Field    string  `json:"field"`
	Compared int     `json:"compared"`
	Agreeing int     `json:"agreeing"`
	Score    float64 `json:"score"`
}

// ConsistencyReport lists per-field agreement across all multi-source
// contacts, ordered by field name. Flagged holds the fields whose
// agreement score fell below the configured threshold, worst first.
type ConsistencyReport struct {
	Fields  []FieldConsistency `json:"fields"`
	Flagged []FieldConsistency `json:"flagged,omitempty"`
}

// Consistency measures how often independent sources agree on each
// tracked field. Fields carried by fewer than two sources on a contact
// are skipped for that contact.
func (s *Scorer) Consistency(ctx context.Context) (*ConsistencyReport, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "consistency: list contacts")
	}

	byField := make(map[string]*FieldConsistency, len(model.RequiredFields))
	for _, f := range model.RequiredFields {
		byField[f] = &FieldConsistency{Field: f}
	}

	for i := range contacts {
		c := &contacts[i]
		for field, fc := range byField {
			values := make([]string, 0, len(c.Fields[field]))
			for _, v := range c.Fields[field] {
				v = strings.TrimSpace(v)
				if v != "" {
					values = append(values, v)
				}
			}
			if len(values) < 2 {
				continue
			}
			fc.Compared++
			if allAgree(values) {
				fc.Agreeing++
			}
		}
	}

	rep := &ConsistencyReport{Fields: make([]FieldConsistency, 0, len(byField))}
	for _, fc := range byField {
		if fc.Compared > 0 {
			fc.Score = float64(fc.Agreeing) / float64(fc.Compared)
		}
		rep.Fields = append(rep.Fields, *fc)
	}
	sort.Slice(rep.Fields, func(i, j int) bool {
		return rep.Fields[i].Field < rep.Fields[j].Field
	})
	return rep, nil
}

// FieldsBelow returns the compared fields whose agreement score is under
// the threshold, worst first. Fields never compared are excluded.
func (r *ConsistencyReport) FieldsBelow(threshold float64) []FieldConsistency {
	out := make([]FieldConsistency, 0, len(r.Fields))
	for _, fc := range r.Fields {
		if fc.Compared > 0 && fc.Score < threshold {
			out = append(out, fc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func allAgree(values []string) bool {
	first := values[0]
	for _, v := range values[1:] {
		if !strings.EqualFold(v, first) {
			return false
		}
	}
	return true
}
