// Package namefix resolves misheard entity names against the campaign's
// known cards. Speech transcription mangles fantasy names ("Eldrinax"
// arrives as "elder nacks"), so diff entries frequently target names that
// almost, but not exactly, match an existing card.
//
// Resolution runs in two stages. Double Metaphone codes are computed for
// the input and every candidate; candidates sharing at least one code are
// ranked by Jaro-Winkler similarity and accepted above a lenient phonetic
// threshold. When nothing aligns phonetically, a stricter pure
// Jaro-Winkler pass catches plain misspellings.
package namefix

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Resolver].
type Option func(*Resolver)

// WithPhoneticThreshold sets the minimum similarity for a phonetically
// aligned candidate. Default: 0.70.
func WithPhoneticThreshold(v float64) Option {
	return func(r *Resolver) { r.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum similarity for the non-phonetic
// fallback pass. Default: 0.85.
func WithFuzzyThreshold(v float64) Option {
	return func(r *Resolver) { r.fuzzyThreshold = v }
}

// Resolver maps approximate names to canonical ones. It holds no state
// beyond its thresholds and is safe for concurrent use.
type Resolver struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Resolver with default thresholds.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the candidate most similar to name, its similarity
// score, and whether any candidate cleared a threshold. When ok is false,
// the returned name is the input unchanged.
//
// Multi-word names are handled on both sides: "elder nacks" can resolve to
// "Eldrinax" and "tower" to "Tower of Whispers". Names that differ only in
// a trailing number ("Goblin 2" vs "Goblin 1") never resolve to each other.
func (r *Resolver) Resolve(name string, candidates []string) (string, float64, bool) {
	input := strings.ToLower(strings.TrimSpace(name))
	if input == "" || len(candidates) == 0 {
		return name, 0, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := metaphoneCodes(inputTokens)

	var (
		bestName     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, cand := range candidates {
		lower := strings.ToLower(strings.TrimSpace(cand))
		if lower == "" {
			continue
		}
		if lower == input {
			return cand, 1, true
		}
		candTokens := strings.Fields(lower)
		if numberedSiblings(inputTokens, candTokens) {
			// "Goblin 2" must never land on "Goblin 1"; the number is
			// the identity, not noise.
			continue
		}
		phonetic := overlaps(inputCodes, metaphoneCodes(candTokens))
		score := similarity(inputTokens, candTokens, input, lower)

		switch {
		case phonetic && score >= r.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestName, bestScore, bestPhonetic = cand, score, true
			}
		case !phonetic && !bestPhonetic && score >= r.fuzzyThreshold && score > bestScore:
			bestName, bestScore = cand, score
		}
	}

	if bestName == "" {
		return name, 0, false
	}
	return bestName, bestScore, true
}

// numberedSiblings reports whether two token lists differ only in a
// trailing numeric token, as in "goblin 2" against "goblin 1" or plain
// "goblin". Such names are distinct entities and must not resolve to each
// other.
func numberedSiblings(a, b []string) bool {
	aCore, aNum := splitTrailingNumber(a)
	bCore, bNum := splitTrailingNumber(b)
	if aNum == "" && bNum == "" {
		return false
	}
	return aNum != bNum && strings.Join(aCore, " ") == strings.Join(bCore, " ")
}

// splitTrailingNumber peels a final all-digit token off tokens.
func splitTrailingNumber(tokens []string) (core []string, num string) {
	if len(tokens) == 0 {
		return tokens, ""
	}
	last := tokens[len(tokens)-1]
	for _, r := range last {
		if r < '0' || r > '9' {
			return tokens, ""
		}
	}
	return tokens[:len(tokens)-1], last
}

// metaphoneCodes returns the union of Double Metaphone codes over tokens,
// dropping empty codes from vowel-only or too-short words.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
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

// similarity is the best Jaro-Winkler score across three views of the
// pair: the full strings, the space-stripped strings, and the best single
// token pairing. The token pairing covers one spoken word landing on one
// word of a longer canonical name.
func similarity(inputTokens, candTokens []string, inputFull, candFull string) float64 {
	score := matchr.JaroWinkler(inputFull, candFull, false)

	if len(inputTokens) > 1 || len(candTokens) > 1 {
		joined := matchr.JaroWinkler(
			strings.Join(inputTokens, ""), strings.Join(candTokens, ""), false)
		if joined > score {
			score = joined
		}
	}

	for _, it := range inputTokens {
		for _, ct := range candTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}
