// Package touchpoint classifies interaction events into touchpoint types
// and maintains per-contact chronological sequence numbers.
package touchpoint

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/attribution-engine/internal/model"
)

// Rule maps substrings of a meeting title to a touchpoint type. Rules are
// evaluated in order; the first keyword hit wins.
type Rule struct {
	Type     model.TouchpointType `yaml:"type"`
	Keywords []string             `yaml:"keywords"`
}

// DefaultRules is the built-in classification table. Order matters, and
// it deliberately runs from the latest journey stage to the earliest:
// titles like "Follow-up on intro call" name both stages, and the later
// stage is the one the meeting is actually about. Checking intro
// keywords first would misfile every follow-up that mentions its
// origin. The mentoring keywords cover both sides of the relationship.
var DefaultRules = []Rule{
	{Type: model.TouchCall3, Keywords: []string{"next step", "next-step", "follow up", "follow-up"}},
	{Type: model.TouchCall2, Keywords: []string{"solution", "proposal", "demo"}},
	{Type: model.TouchOrientation, Keywords: []string{"orientation", "onboarding"}},
	{Type: model.TouchMentoring, Keywords: []string{"mentor", "mentee"}},
	{Type: model.TouchCall1, Keywords: []string{"intro", "introduction", "discovery"}},
}

// Classifier resolves a meeting title to a touchpoint type.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier using the built-in rules.
func NewClassifier() *Classifier {
	return &Classifier{rules: DefaultRules}
}

// NewClassifierFromRules creates a classifier with a custom rule table.
func NewClassifierFromRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// LoadRules reads a YAML rule file. The file replaces the built-in table
// entirely so deployments can reorder precedence.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: read rules %s", path)
	}
	var rules []Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, eris.Wrapf(err, "classifier: parse rules %s", path)
	}
	for i, r := range rules {
		if r.Type == "" || len(r.Keywords) == 0 {
			return nil, eris.Errorf("classifier: rule %d missing type or keywords", i)
		}
	}
	return rules, nil
}

// Classify maps an event to a touchpoint type. Form submissions are
// always forms; meetings and activities classify by title keywords with
// an unmatched title defaulting to the first call stage.
func (c *Classifier) Classify(ev model.RawEvent) model.TouchpointType {
	if ev.Kind == model.KindFormSubmission {
		return model.TouchForm
	}
	title := strings.ToLower(ev.PayloadString("title"))
	if title == "" {
		title = strings.ToLower(ev.PayloadString("name"))
	}
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(title, kw) {
				return rule.Type
			}
		}
	}
	// Unmatched meeting names are treated as an initial call rather than
	// dropped, so they still participate in attribution.
	return model.TouchCall1
}
