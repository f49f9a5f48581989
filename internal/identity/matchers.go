package identity

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
	"github.com/sells-group/attribution-engine/internal/store"
)

// Probe carries the identity attributes extracted from a raw event.
type Probe struct {
	Source     model.Source
	ExternalID string
	Email      string // normalized, may be ""
	Name       string // raw display name, may be ""
	Fields     map[string]string
}

// Matcher is one pass of the resolution cascade. Matchers are tried in
// priority order; the first non-nil contact wins.
type Matcher interface {
	// Name identifies the matcher in logs.
	Name() string
	// Method is the match method recorded on the contact when this
	// matcher wins.
	Method() model.MatchMethod
	// Match returns the matching contact, or nil if no candidate.
	Match(ctx context.Context, st store.Store, p Probe) (*model.Contact, error)
}

// SourceIDMatcher matches on exact (source, externalId) ownership.
type SourceIDMatcher struct{}

func (SourceIDMatcher) Name() string { return "source_id" }
func (SourceIDMatcher) Method() model.MatchMethod { return model.MatchSourceID }

func (SourceIDMatcher) Match(ctx context.Context, st store.Store, p Probe) (*model.Contact, error) {
	c, err := st.FindBySourceID(ctx, p.Source, p.ExternalID)
	if err != nil {
		return nil, eris.Wrap(err, "identity: match by source id")
	}
	return c, nil
}

// EmailMatcher matches on normalized email against the primary or any
// alternate address.
type EmailMatcher struct{}

func (EmailMatcher) Name() string { return "email" }
func (EmailMatcher) Method() model.MatchMethod { return model.MatchEmail }

func (EmailMatcher) Match(ctx context.Context, st store.Store, p Probe) (*model.Contact, error) {
	if p.Email == "" {
		return nil, nil
	}
	c, err := st.FindByEmail(ctx, p.Email)
	if err != nil {
		return nil, eris.Wrap(err, "identity: match by email")
	}
	return c, nil
}

// NameContainmentMatcher is the low-confidence fallback: case-insensitive
// substring containment on normalized display names, restricted to
// candidates sharing at least one other extracted field value. Candidates
// are scanned in ascending id order so ties resolve deterministically.
type NameContainmentMatcher struct{}

func (NameContainmentMatcher) Name() string { return "name_containment" }
func (NameContainmentMatcher) Method() model.MatchMethod { return model.MatchName }

func (NameContainmentMatcher) Match(ctx context.Context, st store.Store, p Probe) (*model.Contact, error) {
	norm := NormalizeName(p.Name)
	if norm == "" {
		return nil, nil
	}
	contacts, err := st.ListContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "identity: list contacts for name match")
	}
	for i := range contacts {
		c := &contacts[i]
		cn := NormalizeName(c.DisplayName)
		if cn == "" {
			continue
		}
		if !strings.Contains(cn, norm) && !strings.Contains(norm, cn) {
			continue
		}
		if sharesField(c, p) {
			return c, nil
		}
	}
	return nil, nil
}

// TokenSetMatcher is the stricter substitute for name containment:
// normalized token-set equality, same shared-field restriction.
type TokenSetMatcher struct{}

func (TokenSetMatcher) Name() string { return "name_token_set" }
func (TokenSetMatcher) Method() model.MatchMethod { return model.MatchName }

func (TokenSetMatcher) Match(ctx context.Context, st store.Store, p Probe) (*model.Contact, error) {
	if NormalizeName(p.Name) == "" {
		return nil, nil
	}
	contacts, err := st.ListContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "identity: list contacts for token match")
	}
	for i := range contacts {
		c := &contacts[i]
		if !TokenSetEqual(c.DisplayName, p.Name) {
			continue
		}
		if sharesField(c, p) {
			return c, nil
		}
	}
	return nil, nil
}

// sharesField reports whether the probe and contact agree on at least one
// extracted field other than the name itself.
func sharesField(c *model.Contact, p Probe) bool {
	for field, v := range p.Fields {
		if field == "name" || v == "" {
			continue
		}
		for _, existing := range c.Fields[field] {
			if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(v)) {
				return true
			}
		}
	}
	return false
}

// DefaultMatchers is the resolution cascade in priority order.
func DefaultMatchers() []Matcher {
	return []Matcher{SourceIDMatcher{}, EmailMatcher{}, NameContainmentMatcher{}}
}

// StrictMatchers swaps the containment fallback for token-set equality.
func StrictMatchers() []Matcher {
	return []Matcher{SourceIDMatcher{}, EmailMatcher{}, TokenSetMatcher{}}
}
