package capture

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minCorrectableRunes guards short function words ("ve", "da") from being
	// rewritten into vocabulary terms.
	minCorrectableRunes = 3
)

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched vocabulary term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) CorrectorOption {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) CorrectorOption {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// Corrector rewrites recognizer-mangled domain terms in finalized transcript
// fragments back to the simulation's vocabulary.
//
// Candidate selection is two-stage: Double Metaphone codes filter vocabulary
// terms that sound like the spoken token, then Jaro-Winkler similarity on the
// original strings ranks them. When no term is phonetically plausible, a pure
// Jaro-Winkler pass with a stricter threshold catches plain misspellings.
//
// A Corrector is read-only after construction and safe for concurrent use.
type Corrector struct {
	vocabulary        []string
	codes             []map[string]struct{} // per-term Double Metaphone codes
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCorrector builds a Corrector over the simulation's vocabulary. A nil or
// empty vocabulary yields a pass-through corrector.
func NewCorrector(vocabulary []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, term := range vocabulary {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		c.vocabulary = append(c.vocabulary, term)
		c.codes = append(c.codes, metaphoneCodes(strings.ToLower(term)))
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct rewrites each token of text that phonetically matches a vocabulary
// term. Tokens shorter than three runes and unmatched tokens pass through
// unchanged.
func (c *Corrector) Correct(text string) string {
	if len(c.vocabulary) == 0 || text == "" {
		return text
	}

	tokens := strings.Fields(text)
	changed := false
	for i, tok := range tokens {
		if len([]rune(tok)) < minCorrectableRunes {
			continue
		}
		if term, ok := c.match(strings.ToLower(tok)); ok && term != tok {
			tokens[i] = term
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(tokens, " ")
}

// match returns the best vocabulary term for the lowercased token, if any.
func (c *Corrector) match(token string) (string, bool) {
	tokenCodes := metaphoneCodes(token)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for i, term := range c.vocabulary {
		termLower := strings.ToLower(term)
		score := matchr.JaroWinkler(token, termLower, false)
		phonetic := codesOverlap(tokenCodes, c.codes[i])

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = term, score, true
			}
		case !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore:
			best, bestScore = term, score
		}
	}
	return best, best != ""
}

// metaphoneCodes returns the set of Double Metaphone codes for a word,
// excluding empty codes.
func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
