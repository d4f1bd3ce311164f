package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeText canonicalizes payer, plan and description strings: only
// ASCII letters and whitespace survive, whitespace runs collapse to one
// space, and each word is title-cased. NormalizeText is idempotent.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		switch {
		case ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z'):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}

	// A Caser keeps state, so one is made per call.
	return cases.Title(language.English).String(b.String())
}

// NormalizeTextPtr is NormalizeText for nullable values. Nil passes through.
func NormalizeTextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	n := NormalizeText(*s)
	return &n
}
