// Package namehint extracts candidate display names from self-introduction
// phrases in a speaker's transcript text and fuzzy-matches them against
// persisted profile display names.
//
// Hints are advisory only: they annotate match candidates so the confirming
// actor can see that a speaker introduced themselves with a name resembling
// a profile's, but they never move a candidate between decision bands.
// Acoustic similarity alone drives banding.
package namehint

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// introPhrases are scanned case-insensitively; the token following a phrase
// is taken as a name candidate.
var introPhrases = []string{"my name is", "i am", "i'm", "this is"}

// agreementThreshold is the minimum Jaro-Winkler score for a hint to count
// as agreeing with a profile display name.
const agreementThreshold = 0.85

// Extract scans texts for self-introduction phrases and returns the
// title-cased name candidates in first-seen order, deduplicated.
func Extract(texts []string) []string {
	var (
		hints []string
		seen  = make(map[string]bool)
	)
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, phrase := range introPhrases {
			rest, ok := after(lower, phrase)
			if !ok {
				continue
			}
			name := firstNameToken(rest)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			hints = append(hints, name)
		}
	}
	return hints
}

// Agrees reports whether any hint fuzzy-matches displayName. Multi-word
// display names also match on their first token, so the hint "Ada" agrees
// with the profile "Ada Lovelace".
func Agrees(hints []string, displayName string) bool {
	name := strings.ToLower(strings.TrimSpace(displayName))
	if name == "" || len(hints) == 0 {
		return false
	}
	first := name
	if i := strings.IndexByte(name, ' '); i > 0 {
		first = name[:i]
	}
	for _, hint := range hints {
		h := strings.ToLower(hint)
		if matchr.JaroWinkler(h, name, false) >= agreementThreshold {
			return true
		}
		if first != name && matchr.JaroWinkler(h, first, false) >= agreementThreshold {
			return true
		}
	}
	return false
}

// after returns the text following the first whole-word occurrence of phrase.
func after(text, phrase string) (string, bool) {
	idx := strings.Index(text, phrase)
	if idx < 0 {
		return "", false
	}
	// Reject mid-word hits like "miri am".
	if idx > 0 && !isBoundary(rune(text[idx-1])) {
		return "", false
	}
	rest := text[idx+len(phrase):]
	if rest == "" || !isBoundary(rune(rest[0])) {
		return "", false
	}
	return rest, true
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// firstNameToken takes the first word of rest, strips punctuation, and
// title-cases it. Common non-name continuations ("a", "the", "so", …) are
// rejected to keep "i am so glad" from hinting "So".
func firstNameToken(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	token := strings.TrimFunc(fields[0], unicode.IsPunct)
	if token == "" || stopwords[token] {
		return ""
	}
	return strings.ToUpper(token[:1]) + token[1:]
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "so": true, "very": true,
	"not": true, "just": true, "here": true, "going": true, "gonna": true,
	"sure": true, "sorry": true, "glad": true, "happy": true, "really": true,
}
