package identity

import (
	"strings"
	"time"

	"github.com/sells-group/attribution-engine/internal/model"
)

// emailKeys and nameKeys list the payload keys adapters are known to use,
// in lookup order.
var (
	emailKeys = []string{"email", "invitee_email", "attendee_email", "contact_email"}
	nameKeys  = []string{"name", "full_name", "display_name", "invitee_name", "contact_name"}
)

// ExtractProbe pulls the identity-relevant attributes out of a raw event
// payload into a normalized probe for the matcher cascade.
func ExtractProbe(ev model.RawEvent) Probe {
	p := Probe{
		Source:     ev.Source,
		ExternalID: ev.ExternalID,
		Fields:     make(map[string]string),
	}

	for _, k := range emailKeys {
		if v := ev.PayloadString(k); v != "" {
			p.Email = NormalizeEmail(v)
			if p.Email != "" {
				break
			}
		}
	}
	for _, k := range nameKeys {
		if v := strings.TrimSpace(ev.PayloadString(k)); v != "" {
			p.Name = v
			break
		}
	}

	if p.Name != "" {
		p.Fields["name"] = p.Name
	}
	if p.Email != "" {
		p.Fields["email"] = p.Email
	}
	for _, k := range []string{"phone", "company", "title"} {
		if v := strings.TrimSpace(ev.PayloadString(k)); v != "" {
			p.Fields[k] = v
		}
	}

	if ev.Kind == model.KindDeal {
		// Deal payloads map onto the deal-specific tracked fields; a deal
		// "title" is the deal title, not a person's job title.
		delete(p.Fields, "title")
		if v := strings.TrimSpace(ev.PayloadString("title")); v != "" {
			p.Fields["deal_title"] = v
		}
		for _, k := range []string{"value", "status", "close_date", "pipeline"} {
			if v := strings.TrimSpace(ev.PayloadString(k)); v != "" {
				p.Fields[k] = v
			}
		}
	}

	return p
}

// parseTime parses the timestamp formats adapters emit. Returns nil when
// the value is empty or unparseable.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
