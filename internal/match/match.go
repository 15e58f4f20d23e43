// Package match scores approximate string similarity between manifest course
// names and on-disk folder names. Scores are integers in [0,100]; the metric
// combines a plain edit ratio with token-sort and partial variants so that
// word reordering and truncated folder names still match.
package match

import (
	"sort"
	"strings"
	"unicode"
)

// Candidate is one pre-normalized name. Normalization happens once, when the
// set is built, so scoring a target against the set is linear in set size.
type Candidate struct {
	Name string

	norm   string
	sorted string
}

// CandidateSet holds normalized candidates ready for repeated matching.
type CandidateSet struct {
	cands []Candidate
}

func NewCandidateSet(names []string) *CandidateSet {
	cands := make([]Candidate, 0, len(names))
	for _, name := range names {
		norm := Normalize(name)
		cands = append(cands, Candidate{
			Name:   name,
			norm:   norm,
			sorted: sortTokens(norm),
		})
	}

	return &CandidateSet{cands: cands}
}

func (s *CandidateSet) Len() int {
	return len(s.cands)
}

// Best is a successful match.
type Best struct {
	Name  string
	Index int
	Score int
}

// FindBest returns the candidate with the highest score at or above
// threshold. Ties break by shortest normalized name, then lexical order, so
// identical inputs always produce identical results.
func (s *CandidateSet) FindBest(target string, threshold int) (Best, bool) {
	norm := Normalize(target)
	sorted := sortTokens(norm)

	best := Best{Index: -1}
	var bestNorm string

	for i := range s.cands {
		c := &s.cands[i]
		score := scoreNormalized(norm, sorted, c.norm, c.sorted)
		if score < threshold {
			continue
		}

		if best.Index < 0 || score > best.Score ||
			(score == best.Score && betterTie(c.norm, bestNorm)) {
			best = Best{Name: c.Name, Index: i, Score: score}
			bestNorm = c.norm
		}
	}

	return best, best.Index >= 0
}

// Score rates two raw names against each other.
func Score(a, b string) int {
	na, nb := Normalize(a), Normalize(b)

	return scoreNormalized(na, sortTokens(na), nb, sortTokens(nb))
}

func betterTie(norm, bestNorm string) bool {
	if len(norm) != len(bestNorm) {
		return len(norm) < len(bestNorm)
	}

	return norm < bestNorm
}

// Normalize case-folds and collapses whitespace and punctuation so that
// "Intro_to_Programming_v2" and "intro to programming v2" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false

			continue
		}

		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

func sortTokens(norm string) string {
	if norm == "" {
		return ""
	}

	tokens := strings.Fields(norm)
	sort.Strings(tokens)

	return strings.Join(tokens, " ")
}

func scoreNormalized(target, targetSorted, cand, candSorted string) int {
	if target == "" || cand == "" {
		return 0
	}
	if target == cand {
		return 100
	}

	score := ratio(target, cand)
	if s := ratio(targetSorted, candSorted); s > score {
		score = s
	}
	if s := partialRatio(target, cand); s > score {
		score = s
	}

	return score
}

// ratio is the normalized indel similarity of two strings, scaled to 0-100.
func ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}

	dist := indelDistance(ra, rb)

	return (100*(total-dist) + total/2) / total
}

// partialRatio slides the shorter string across the longer one and returns
// the best window ratio. This is what lets a truncated folder name match the
// full course title.
func partialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}
	if len(ra) == len(rb) {
		return ratio(string(ra), string(rb))
	}

	best := 0
	for start := 0; start+len(ra) <= len(rb); start++ {
		window := rb[start : start+len(ra)]
		if s := ratio(string(ra), string(window)); s > best {
			best = s
			if best == 100 {
				break
			}
		}
	}

	return best
}

// indelDistance is the edit distance allowing insertions and deletions only
// (substitution counts as two operations). Two-row dynamic programming keeps
// it linear in memory.
func indelDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]

				continue
			}

			del := prev[j] + 1
			ins := curr[j-1] + 1
			if del < ins {
				curr[j] = del
			} else {
				curr[j] = ins
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
