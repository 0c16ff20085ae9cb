package adminnames

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"São Paulo", "sao paulo"},
		{"Telangana", "telangana"},
		{"Jammu & Kashmir", "jammu and kashmir"},
		{"  Ile-de-France ", "ile de france"},
		{"NCT of Delhi", "nct of delhi"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStripAdminWords(t *testing.T) {
	if got := StripAdminWords("state of palestine"); got != "palestine" {
		t.Errorf("StripAdminWords = %q, want palestine", got)
	}
	if got := StripAdminWords("nct of delhi"); got != "delhi" {
		t.Errorf("StripAdminWords = %q, want delhi", got)
	}
}

func TestTokensExpansion(t *testing.T) {
	tokens := Tokens("NE Frontier Province")
	want := map[string]bool{"northeast": true, "north": true, "east": true, "frontier": true}
	if len(tokens) != len(want) {
		t.Fatalf("Tokens = %v, want keys %v", tokens, want)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Errorf("unexpected token %q in %v", tok, tokens)
		}
	}

	if key := TokenKey([]string{"b", "a"}); key != "a|b" {
		t.Errorf("TokenKey = %q, want a|b", key)
	}
}

func TestResolveExactVariants(t *testing.T) {
	l := NewLookup([]string{"Uttar Pradesh", "State of Telangana", "Jammu & Kashmir"})

	tests := []struct {
		query, want string
	}{
		{"Uttar Pradesh", "uttar pradesh"},
		{"uttarpradesh", "uttar pradesh"},
		{"Telangana", "state of telangana"},
		{"Kashmir Jammu", "jammu and kashmir"}, // token key is order-independent
	}
	for _, tc := range tests {
		got, ok := l.Resolve(tc.query)
		if !ok || got != tc.want {
			t.Errorf("Resolve(%q) = %q,%v, want %q", tc.query, got, ok, tc.want)
		}
	}
}

// TestResolveIdempotent: resolving an already-canonical name returns
// that same canonical name.
func TestResolveIdempotent(t *testing.T) {
	l := NewLookup([]string{"Maharashtra", "Madhya Pradesh"})
	first, ok := l.Resolve("Maharashtra")
	if !ok {
		t.Fatal("canonical name must resolve")
	}
	again, ok := l.Resolve(first)
	if !ok || again != first {
		t.Fatalf("Resolve(%q) = %q,%v, want itself", first, again, ok)
	}
}

// TestResolveFuzzyMisspelling covers the single-letter-dropped case
// that defeats exact variants, and the generic-substring case that must
// stay unresolved.
func TestResolveFuzzyMisspelling(t *testing.T) {
	l := NewLookup([]string{"Maharashtra", "Madhya Pradesh"})

	got, ok := l.Resolve("Maharastra")
	if !ok || got != "maharashtra" {
		t.Fatalf("Resolve(Maharastra) = %q,%v, want maharashtra", got, ok)
	}

	if got, ok := l.Resolve("Pradesh"); ok {
		t.Fatalf("Resolve(Pradesh) = %q, want no match", got)
	}
}

// TestResolveAmbiguousVariantSkipped: a variant shared by two regions
// must not resolve through the exact stage.
func TestResolveAmbiguousVariantSkipped(t *testing.T) {
	l := NewLookup([]string{"North Region", "North Province"})
	// Both strip to "north", so the stripped variant is ambiguous.
	if got, ok := l.Resolve("North"); ok {
		t.Fatalf("Resolve(North) = %q, want no match for ambiguous variant", got)
	}
	// The full names still resolve through their unambiguous norm keys.
	if got, ok := l.Resolve("North Region"); !ok || got != "north region" {
		t.Fatalf("Resolve(North Region) = %q,%v", got, ok)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"maharastra", "maharashtra", 1},
		{"", "abc", 3},
		{"same", "same", 0},
	}
	for _, tc := range tests {
		if got := Levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("Levenshtein(%q,%q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
