// Package adminnames reconciles free-text administrative region names
// against the admin1 layer currently on screen.  Boundary datasets and
// forecast datasets rarely agree on spelling ("Telangana" vs "State of
// Telangana" vs "Telengana"), so the package normalises aggressively,
// indexes several variants per feature, and falls back to conservative
// fuzzy scoring when no variant matches outright.
package adminnames

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// adminWords are generic administrative qualifiers that carry no
// identity: "State of Palestine" and "Palestine" must collapse to the
// same key.  The set also swallows articles and conjunctions.
var adminWords = map[string]struct{}{
	"and": {}, "of": {}, "the": {}, "state": {}, "states": {},
	"province": {}, "region": {}, "district": {}, "county": {},
	"department": {}, "republic": {}, "kingdom": {}, "autonomous": {},
	"territory": {}, "territories": {}, "city": {}, "municipality": {},
	"metropolitan": {}, "governorate": {}, "oblast": {}, "krai": {},
	"prefecture": {}, "special": {}, "capital": {}, "union": {},
	"ut": {}, "nct": {}, "island": {}, "islands": {}, "isle": {},
	"federal": {}, "nation": {}, "area": {}, "division": {}, "zone": {},
	"canton": {}, "commune": {}, "municipio": {}, "departamento": {},
}

// tokenAliases expands common abbreviations so "St. Petersburg" and
// "Saint Petersburg" tokenize identically.
var tokenAliases = map[string]string{
	"st": "saint", "mt": "mount", "ft": "fort",
	"n": "north", "s": "south", "e": "east", "w": "west",
	"ne": "northeast", "nw": "northwest", "se": "southeast", "sw": "southwest",
}

// compoundDirections additionally expand into their two cardinal
// components, so "NE Region" still shares tokens with "North East
// Region".
var compoundDirections = map[string][]string{
	"northeast": {"north", "east"},
	"northwest": {"north", "west"},
	"southeast": {"south", "east"},
	"southwest": {"south", "west"},
}

// Normalize lowers a raw name into the canonical comparison form:
// diacritics stripped, ampersands spelled out, every non-alphanumeric
// run collapsed into a single space.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	decomposed := norm.NFD.String(raw)
	var b strings.Builder
	b.Grow(len(decomposed))
	lastSpace := true
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark left over from NFD
		}
		r = unicode.ToLower(r)
		switch {
		case r == '&':
			b.WriteString("and")
			lastSpace = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// StripAdminWords removes generic administrative stop-words from an
// already normalised name.
func StripAdminWords(normName string) string {
	if normName == "" {
		return ""
	}
	fields := strings.Fields(normName)
	kept := fields[:0]
	for _, token := range fields {
		if _, generic := adminWords[token]; !generic {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " ")
}

// Tokens turns a raw name into its deduplicated, alias-expanded token
// set.  Compound directions contribute both the compound and its
// cardinal parts.  Order follows first appearance and is irrelevant to
// comparisons; TokenKey sorts before joining.
func Tokens(raw string) []string {
	stripped := StripAdminWords(Normalize(raw))
	if stripped == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(token string) {
		if token == "" {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	for _, token := range strings.Fields(stripped) {
		expanded := token
		if alias, ok := tokenAliases[token]; ok {
			expanded = alias
		}
		add(expanded)
		for _, part := range compoundDirections[expanded] {
			add(part)
		}
	}
	return out
}

// TokenKey renders a token set as a single order-independent string.
func TokenKey(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return strings.Join(sorted, "|")
}

// Levenshtein computes the classic edit distance with a two-row table
// so repeated fuzzy scoring does not churn the allocator.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity maps edit distance onto [0,1]: identical strings score 1,
// completely different strings approach 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
