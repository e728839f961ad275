// Package responder detects trigger keywords inside chat messages to
// drive the server's automatic system replies.
package responder

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Detector matches a fixed keyword set anywhere in a message,
// insensitive to case, punctuation noise, and common leet spellings.
type Detector struct {
	matcher *goahocorasick.Machine
}

// NewDetector builds the Aho-Corasick automaton over the normalized
// keyword set.
func NewDetector(keywords []string) (*Detector, error) {
	patterns := make([][]rune, len(keywords))
	for i, word := range keywords {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Detector{matcher: m}, nil
}

// Match reports whether the text contains any of the keywords.
func (d *Detector) Match(text string) bool {
	norm := normalizeRunes([]rune(text))
	if len(norm) == 0 {
		return false
	}
	return len(d.matcher.MultiPatternSearch(norm, true)) > 0
}

// normalizeRunes lowers the text into its searchable form: leet
// characters are simplified and noise characters removed. Whitespace
// collapses to a single boundary rune so a keyword never matches
// across two words ("watch it" must not trigger "hi").
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		switch {
		case unicode.IsSpace(clean):
			if len(out) > 0 && out[len(out)-1] != ' ' {
				out = append(out, ' ')
			}
		case isNoise(clean):
			continue
		default:
			out = append(out, unicode.ToLower(clean))
		}
	}
	return out
}

// simplifyRune maps common leet speak characters back to their standard
// alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters ignored during pattern matching.
// Whitespace is not noise, it marks a word boundary.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
