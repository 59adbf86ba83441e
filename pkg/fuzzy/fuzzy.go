package fuzzy

import (
	"strings"
	"unicode"
)

// LevenshteinDistance calculates the edit distance between two strings.
// Both inputs are lowercased before comparison.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(strings.ToLower(s1))
	r2 := []rune(strings.ToLower(s2))

	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rolling rows are enough, the full matrix is never read back
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// Vocabulary is a set of canonical words that misheard tokens can be corrected to.
type Vocabulary struct {
	words    []string
	exact    map[string]struct{}
	minToken int
}

// NewVocabulary builds a vocabulary. Tokens shorter than minToken runes are never corrected.
func NewVocabulary(minToken int, words ...string) *Vocabulary {
	v := &Vocabulary{
		exact:    make(map[string]struct{}, len(words)),
		minToken: minToken,
	}
	for _, w := range words {
		w = strings.ToLower(w)
		v.words = append(v.words, w)
		v.exact[w] = struct{}{}
	}
	return v
}

// Correct returns the vocabulary word closest to token and true when the token
// is within the allowed distance of it. Exact vocabulary words and short tokens
// are returned unchanged with false.
func (v *Vocabulary) Correct(token string) (string, bool) {
	word := strings.ToLower(token)
	if len([]rune(word)) < v.minToken || !isLetters(word) {
		return token, false
	}
	if _, ok := v.exact[word]; ok {
		return token, false
	}

	best := ""
	bestDist := -1
	for _, candidate := range v.words {
		dist := LevenshteinDistance(word, candidate)
		if dist > threshold(candidate) {
			continue
		}
		if bestDist == -1 || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	if best == "" {
		return token, false
	}
	return best, true
}

// CorrectText applies Correct to every whitespace-separated token and joins the
// result with single spaces.
func (v *Vocabulary) CorrectText(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		core, trail := splitTrailingPunct(f)
		if fixed, ok := v.Correct(core); ok {
			fields[i] = fixed + trail
		}
	}
	return strings.Join(fields, " ")
}

// threshold scales typo tolerance with the length of the canonical word.
func threshold(word string) int {
	n := len([]rune(word))
	switch {
	case n >= 8:
		return 2
	case n >= 7:
		return 1
	default:
		return 0
	}
}

func splitTrailingPunct(s string) (string, string) {
	i := len(s)
	for i > 0 && strings.ContainsRune(".,!?;:", rune(s[i-1])) {
		i--
	}
	return s[:i], s[i:]
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
