package identity

import (
	"github.com/sells-group/attribution-engine/internal/model"
)

// Coverage returns the fraction of the fixed required-field set that has
// at least one non-empty value from any source on the contact.
func Coverage(c *model.Contact) float64 {
	if len(model.RequiredFields) == 0 {
		return 0
	}
	present := 0
	for _, field := range model.RequiredFields {
		if hasValue(c, field) {
			present++
		}
	}
	return float64(present) / float64(len(model.RequiredFields))
}

func hasValue(c *model.Contact, field string) bool {
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
