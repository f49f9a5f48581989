// Package confidence classifies identity-match certainty and reports the
// population-level confidence distribution.
package confidence

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// levelWeights convert the confidence histogram into the single weighted
// index surfaced as "attribution accuracy". It is a confidence index, not
// a percentage of correctness.
var levelWeights = map[model.MatchConfidence]float64{
	model.ConfidenceHigh:   1.0,
	model.ConfidenceMedium: 0.7,
	model.ConfidenceLow:    0.3,
	model.ConfidenceNone:   0.0,
}

// Scorer computes match-confidence classifications.
type Scorer struct {
	store store.Store
}

// NewScorer creates a confidence scorer.
func NewScorer(st store.Store) *Scorer {
	return &Scorer{store: st}
}

// Classify derives a contact's match confidence from its source count,
// match methods, and corroborating record kinds.
func Classify(c *model.Contact) model.MatchConfidence {
	sources := len(c.DistinctSources())

	hasEmailMatch := false
	hasNameMatch := false
	for _, m := range c.MatchMethods {
		switch m {
		case model.MatchEmail:
			hasEmailMatch = true
		case model.MatchName:
			hasNameMatch = true
		}
	}

	hasRelated := false
	for k := range c.Kinds {
		if k != model.KindContact {
			hasRelated = true
			break
		}
	}

	switch {
	case sources >= 2 && hasEmailMatch:
		return model.ConfidenceHigh
	case sources >= 2:
		// Fuzzy-matched into an existing multi-source contact.
		return model.ConfidenceMedium
	case hasRelated:
		// Single source corroborated by a related record type.
		return model.ConfidenceMedium
	case hasNameMatch:
		return model.ConfidenceLow
	default:
		return model.ConfidenceNone
	}
}

// Score updates and persists the contact's match confidence.
func (s *Scorer) Score(ctx context.Context, contactID int64) (model.MatchConfidence, error) {
	c, err := s.store.GetContact(ctx, contactID)
	if err != nil {
		return "", eris.Wrapf(err, "confidence: load contact %d", contactID)
	}
	level := Classify(c)
	if c.MatchConfidence != level {
		c.MatchConfidence = level
		if err := s.store.UpdateContact(ctx, c); err != nil {
			return "", eris.Wrapf(err, "confidence: persist contact %d", contactID)
		}
	}
	return level, nil
}

// Distribution is the normalized confidence histogram over all contacts
// plus the weighted overall score.
type Distribution struct {
	Total        int                               `json:"total"`
	Counts       map[model.MatchConfidence]int     `json:"counts"`
	Fractions    map[model.MatchConfidence]float64 `json:"fractions"`
	OverallScore float64                           `json:"overall_score"`
}

// Distribution computes the population-level confidence distribution.
func (s *Scorer) Distribution(ctx context.Context) (*Distribution, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "confidence: list contacts")
	}

	d := &Distribution{
		Total:     len(contacts),
		Counts:    make(map[model.MatchConfidence]int, len(model.ConfidenceLevels)),
		Fractions: make(map[model.MatchConfidence]float64, len(model.ConfidenceLevels)),
	}
	for _, lvl := range model.ConfidenceLevels {
		d.Counts[lvl] = 0
		d.Fractions[lvl] = 0
	}
	if len(contacts) == 0 {
		return d, nil
	}

	for i := range contacts {
		lvl := contacts[i].MatchConfidence
		if lvl == "" {
			lvl = Classify(&contacts[i])
		}
		d.Counts[lvl]++
	}
	for lvl, n := range d.Counts {
		frac := float64(n) / float64(len(contacts))
		d.Fractions[lvl] = frac
		d.OverallScore += frac * levelWeights[lvl]
	}
	return d, nil
}
