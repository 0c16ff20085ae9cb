package adminnames

// Entry keeps every precomputed comparison form for one registered
// admin1 name so the fuzzy fallback never re-normalises per query.
type Entry struct {
	Norm     string   // canonical normalised name, the resolver's output
	Stripped string   // Norm minus administrative stop-words
	Tokens   []string // alias-expanded token set
	TokenKey string   // sorted Tokens joined with "|"
	Original string   // display name as the boundary dataset spells it
}

// Lookup is the per-layer resolution table.  It is rebuilt whenever a
// new admin1 layer renders and never mutated afterwards, so concurrent
// readers need no locking.
type Lookup struct {
	entries  []Entry
	variants map[string]map[string]struct{} // variant key -> set of Norm values
}

// Thresholds of the fuzzy fallback.  Empirically chosen; kept exactly
// for compatibility with datasets tuned against them.
const (
	jaccardFloor    = 0.5
	acceptScore     = 0.82
	acceptMargin    = 0.08
	jaccardWeight   = 0.6
	editDistWeight  = 0.4
	tokenTypoBudget = 1 // tokens this close in edit distance count as equal
)

// NewLookup indexes the display names of the currently rendered admin1
// features.  Every feature registers under five variant keys; each key
// maps to the set of distinct canonical names claiming it, so ambiguity
// stays visible instead of being silently overwritten.
func NewLookup(names []string) *Lookup {
	l := &Lookup{variants: make(map[string]map[string]struct{})}
	for _, name := range names {
		normName := Normalize(name)
		if normName == "" {
			continue
		}
		stripped := StripAdminWords(normName)
		tokens := Tokens(name)
		tokenKey := TokenKey(tokens)

		l.entries = append(l.entries, Entry{
			Norm:     normName,
			Stripped: stripped,
			Tokens:   tokens,
			TokenKey: tokenKey,
			Original: name,
		})

		l.addVariant(normName, normName)
		l.addVariant(stripped, normName)
		l.addVariant(despace(normName), normName)
		if stripped != "" {
			l.addVariant(despace(stripped), normName)
		}
		l.addVariant(tokenKey, normName)
	}
	return l
}

func (l *Lookup) addVariant(variant, normName string) {
	if variant == "" {
		return
	}
	set, ok := l.variants[variant]
	if !ok {
		set = make(map[string]struct{})
		l.variants[variant] = set
	}
	set[normName] = struct{}{}
}

// Len reports how many names are registered.
func (l *Lookup) Len() int { return len(l.entries) }

// Entries exposes the registered entries for diagnostics and tests.
func (l *Lookup) Entries() []Entry { return l.entries }

// Resolve maps a free-text name onto the canonical normalised name of a
// registered admin1 region.  Exact variant matches win first, but only
// when unambiguous: a variant claimed by several regions is skipped
// rather than guessed at.  The fuzzy fallback scores every entry and
// accepts the best only with both a high score and a clear margin over
// the runner-up, so near-ties resolve to "no match" instead of noise.
func (l *Lookup) Resolve(raw string) (string, bool) {
	if l == nil || raw == "" {
		return "", false
	}
	normName := Normalize(raw)
	if normName == "" {
		return "", false
	}
	stripped := StripAdminWords(normName)
	tokens := Tokens(raw)
	tokenKey := TokenKey(tokens)

	for _, variant := range []string{
		normName,
		stripped,
		despace(normName),
		despace(stripped),
		tokenKey,
	} {
		if variant == "" {
			continue
		}
		if set, ok := l.variants[variant]; ok && len(set) == 1 {
			for only := range set {
				return only, true
			}
		}
	}

	query := stripped
	if query == "" {
		query = normName
	}

	best, bestScore, secondScore := "", 0.0, 0.0
	for _, entry := range l.entries {
		if len(entry.Tokens) == 0 {
			continue
		}
		jaccard := tokenJaccard(tokens, entry.Tokens)
		if jaccard < jaccardFloor {
			continue
		}
		target := entry.Stripped
		if target == "" {
			target = entry.Norm
		}
		score := jaccardWeight*jaccard + editDistWeight*Similarity(query, target)
		if score > bestScore {
			secondScore = bestScore
			bestScore = score
			best = entry.Norm
		} else if score > secondScore {
			secondScore = score
		}
	}

	if bestScore >= acceptScore && bestScore-secondScore >= acceptMargin {
		return best, true
	}
	return "", false
}

// tokenJaccard measures token-set overlap.  Tokens within a one-edit
// typo of each other count as the same token: forecast feeds routinely
// drop a single letter ("Maharastra"), and single-token names would
// otherwise score zero overlap and be unreachable by the fallback.
func tokenJaccard(query, entry []string) float64 {
	if len(query) == 0 || len(entry) == 0 {
		return 0
	}
	used := make([]bool, len(entry))
	intersection := 0
	for _, q := range query {
		for i, e := range entry {
			if used[i] {
				continue
			}
			if q == e || closeTokens(q, e) {
				used[i] = true
				intersection++
				break
			}
		}
	}
	union := len(query) + len(entry) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// closeTokens treats near-identical tokens as equal.  The budget stays
// at one edit and only applies to tokens long enough that a single
// edit cannot turn one short word into another ("east" vs "west" must
// stay distinct).
func closeTokens(a, b string) bool {
	if len(a) < 5 || len(b) < 5 {
		return false
	}
	return Levenshtein(a, b) <= tokenTypoBudget
}

func despace(s string) string {
	if s == "" {
		return ""
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
