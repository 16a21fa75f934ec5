package stage

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeName returns the registry key for a node name.
//
// Content pipelines emit a mix of composed and decomposed Unicode and
// full-width ASCII. Keys are NFC, width-folded, and trimmed.
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	return norm.NFC.String(width.Fold.String(s))
}

// hasNameToken reports whether marker appears as a run of whole tokens in
// name, ignoring case. Tokens are split on any rune that is not a letter or
// digit, so "fan" matches "Hand_Fan_01" and "fan(Clone)" but not "fanfare".
func hasNameToken(name, marker string) bool {
	want := nameTokens(marker)
	if len(want) == 0 {
		return false
	}
	have := nameTokens(name)
	for i := 0; i+len(want) <= len(have); i++ {
		match := true
		for j, w := range want {
			if have[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func nameTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(NormalizeName(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
