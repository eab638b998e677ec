package textutil

import (
	"sort"
	"strings"
)

// Score returns the similarity of a and b in [0, 1]. It is symmetric:
// Score(a, b) == Score(b, a).
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if strings.EqualFold(na, nb) {
		return 1
	}
	ra, rb := []rune(FoldKey(na)), []rune(FoldKey(nb))
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(ra, rb))/float64(maxLen)
}

// Levenshtein returns the edit distance between two rune slices.
func Levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Match is one scored candidate.
type Match struct {
	Index     int
	Candidate string
	Score     float64
}

// TopMatches returns the k highest-scoring candidates for query, ordered by
// descending score and then by candidate position. k <= 0 returns nil.
func TopMatches(query string, candidates []string, k int) []Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{Index: i, Candidate: c, Score: Score(query, c)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// BestMatch returns the top candidate scoring at least threshold.
func BestMatch(query string, candidates []string, threshold float64) (Match, bool) {
	top := TopMatches(query, candidates, 1)
	if len(top) == 0 || top[0].Score < threshold || top[0].Score == 0 {
		return Match{}, false
	}
	return top[0], true
}
