package identity

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var (
	folder       = cases.Fold()
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// NormalizeEmail lowercases an email address via Unicode case folding and
// trims surrounding whitespace. Returns "" for addresses without an "@".
func NormalizeEmail(email string) string {
	e := folder.String(strings.TrimSpace(email))
	if !strings.Contains(e, "@") {
		return ""
	}
	return e
}

// NormalizeName standardizes a display name for matching: trim, case fold,
// strip punctuation, collapse runs of spaces.
func NormalizeName(name string) string {
	name = folder.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"-", " ",
	).Replace(name)
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// TokenSet returns the sorted unique whitespace tokens of a normalized name.
func TokenSet(normalized string) []string {
	if normalized == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	sort.Strings(out)
	return out
}

// TokenSetEqual reports whether two names have identical token sets after
// normalization ("Jane A. Doe" == "doe jane a").
func TokenSetEqual(a, b string) bool {
	ta := TokenSet(NormalizeName(a))
	tb := TokenSet(NormalizeName(b))
	if len(ta) == 0 || len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}
