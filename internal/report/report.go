// Package report assembles read-only projections of the derived
// attribution state for the CLI and HTTP surfaces.
package report

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/audit"
	"github.com/sells-group/attribution-engine/internal/confidence"
	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// Service builds report projections. All methods are read-only except
// that confidence and coverage refreshes persist recomputed per-contact
// values as a side effect.
type Service struct {
	store     store.Store
	scorer    *confidence.Scorer
	auditor   *audit.Auditor
	gate      audit.TrustGate
	threshold float64
}

// NewService creates the report service with the default trust gate and
// consistency threshold.
func NewService(st store.Store) *Service {
	return &Service{
		store:     st,
		scorer:    confidence.NewScorer(st),
		auditor:   audit.NewAuditor(st),
		gate:      audit.DefaultTrustGate(),
		threshold: confidence.DefaultConsistencyThreshold,
	}
}

// WithTrustGate overrides the coverage threshold for the confidence
// headline.
func (s *Service) WithTrustGate(gate audit.TrustGate) *Service {
	s.gate = gate
	return s
}

// WithConsistencyThreshold overrides the agreement score below which a
// field is flagged in the consistency report.
func (s *Service) WithConsistencyThreshold(t float64) *Service {
	if t > 0 {
		s.threshold = t
	}
	return s
}

// Attribution lists every contact's attribution record.
func (s *Service) Attribution(ctx context.Context) ([]model.AttributionRecord, error) {
	recs, err := s.store.ListAttribution(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: list attribution")
	}
	return recs, nil
}

// ContactAttribution returns one contact's attribution record.
func (s *Service) ContactAttribution(ctx context.Context, contactID int64) (*model.AttributionRecord, error) {
	rec, err := s.store.GetAttribution(ctx, contactID)
	if err != nil {
		return nil, eris.Wrapf(err, "report: attribution for contact %d", contactID)
	}
	return rec, nil
}

// ConfidenceReport is the confidence distribution with the headline
// score suppressed when data completeness is below the trust gate.
type ConfidenceReport struct {
	Distribution *confidence.Distribution `json:"distribution"`

	// ScoreTrusted is false when average field coverage is too low for
	// the overall score to be presentable; OverallScore is zeroed then.
	ScoreTrusted    bool    `json:"score_trusted"`
	AverageCoverage float64 `json:"average_coverage"`
}

// Confidence computes the trust-gated confidence distribution.
func (s *Service) Confidence(ctx context.Context) (*ConfidenceReport, error) {
	dist, err := s.scorer.Distribution(ctx)
	if err != nil {
		return nil, err
	}
	auditRep, err := s.auditor.Run(ctx)
	if err != nil {
		return nil, err
	}
	rep := &ConfidenceReport{
		Distribution:    dist,
		ScoreTrusted:    s.gate.Allows(auditRep),
		AverageCoverage: auditRep.AverageCoverage,
	}
	if !rep.ScoreTrusted {
		// The histogram stays visible; only the single headline number
		// is withheld.
		rep.Distribution.OverallScore = 0
	}
	return rep, nil
}

// Coverage runs the completeness audit.
func (s *Service) Coverage(ctx context.Context) (*audit.Report, error) {
	return s.auditor.Run(ctx)
}

// Consistency reports cross-source field agreement, flagging the fields
// whose agreement fell below the configured threshold.
func (s *Service) Consistency(ctx context.Context) (*confidence.ConsistencyReport, error) {
	rep, err := s.scorer.Consistency(ctx)
	if err != nil {
		return nil, err
	}
	rep.Flagged = rep.FieldsBelow(s.threshold)
	return rep, nil
}

// SyncStatus lists every source's checkpoint.
func (s *Service) SyncStatus(ctx context.Context) ([]model.SyncCheckpoint, error) {
	cps, err := s.store.ListCheckpoints(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: list checkpoints")
	}
	return cps, nil
}

// Contacts lists every canonical contact.
func (s *Service) Contacts(ctx context.Context) ([]model.Contact, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: list contacts")
	}
	return contacts, nil
}
