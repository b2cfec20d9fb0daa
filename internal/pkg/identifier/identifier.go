// Package identifier canonicalizes email addresses and phone numbers so that
// values submitted at code issuance and at verification compare equal.
package identifier

import "strings"

// Kind classifies a raw identifier.
type Kind int

const (
	KindPhone Kind = iota
	KindEmail
)

var phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// Classify returns KindEmail when raw contains '@', KindPhone otherwise.
func Classify(raw string) Kind {
	if strings.Contains(raw, "@") {
		return KindEmail
	}
	return KindPhone
}

// NormalizeEmail trims surrounding whitespace and lowercases.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// CleanPhone strips spaces, hyphens and parentheses.
func CleanPhone(raw string) string {
	return phoneCleaner.Replace(strings.TrimSpace(raw))
}

// PhoneCandidates returns the ordered set of equivalent phone representations
// to try when a record may have been stored under a different format:
// the cleaned form, "+"-prefixed, default-country-prefixed, and with any
// leading (possibly backslash-escaped) plus removed. Duplicates are dropped
// without changing the relative order of the rest.
func PhoneCandidates(raw, defaultCountryCode string) []string {
	cleaned := CleanPhone(raw)
	if cleaned == "" {
		return nil
	}
	cc := strings.TrimPrefix(defaultCountryCode, "+")

	forms := []string{cleaned, "+" + cleaned}
	if cc != "" && !strings.HasPrefix(strings.TrimLeft(cleaned, `\`), "+") {
		forms = append(forms, "+"+cc+cleaned)
	}
	forms = append(forms, stripPlus(cleaned))

	out := make([]string, 0, len(forms))
	seen := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func stripPlus(s string) string {
	s = strings.TrimLeft(s, `\`)
	return strings.TrimLeft(s, "+")
}
