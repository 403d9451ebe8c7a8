package search

import (
	"math"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreFuzzyMatch     = 25.0

	// Position bonus (earlier words are better)
	ScorePositionBonus = 10.0

	// Whole-title match bonus (huge boost)
	ScoreExactTitleBonus = 200.0

	// MinScore is the threshold below which a candidate is dropped.
	MinScore = 10.0

	// MinCoverage is the share of a word the fuzzy pattern must cover.
	MinCoverage = 0.5
)

// Field weights
const (
	WeightTitle       = 1.0
	WeightTags        = 0.8
	WeightCategory    = 0.6
	WeightDescription = 0.4
)

// field is one weighted text attribute of a candidate.
type field struct {
	text   string
	weight float64
}

// Candidate is an item with its match score.
type Candidate[T any] struct {
	Item  T
	Score float64
}

// rank scores every item, drops those under MinScore and sorts by score
// descending. Ties keep their input order.
func rank[T any](items []T, q Query, fields func(T) []field) []Candidate[T] {
	candidates := make([]Candidate[T], 0, len(items))
	for _, item := range items {
		s := score(q, fields(item))
		if s < MinScore {
			continue
		}
		candidates = append(candidates, Candidate[T]{Item: item, Score: s})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// score sums the best weighted score of each fragment across fields. Every
// fragment must hit somewhere; one miss zeroes the candidate.
func score(q Query, fields []field) float64 {
	if len(q.Fragments) == 0 {
		return 0.0
	}

	var total float64
	for _, frag := range q.Fragments {
		best := 0.0
		for _, f := range fields {
			if s := scoreText(frag, f.text) * f.weight; s > best {
				best = s
			}
		}
		if best == 0.0 {
			return 0.0
		}
		total += best
	}

	// The first field is the title-like one
	if len(fields) > 0 && strings.Join(words(fields[0].text), " ") == strings.Join(q.Fragments, " ") {
		total += ScoreExactTitleBonus
	}

	return total
}

// scoreText scores a fragment against the best matching word of text.
func scoreText(frag, text string) float64 {
	ws := words(text)
	if frag == "" || len(ws) == 0 {
		return 0.0
	}

	best := 0.0
	for i, w := range ws {
		if s := scoreFragment(frag, w, i); s > best {
			best = s
		}
	}
	if best > 0.0 {
		return best
	}

	return scoreFuzzy(frag, ws)
}

// scoreFragment scores a single query fragment against one word
func scoreFragment(frag, word string, position int) float64 {
	// Exact match
	if frag == word {
		return ScoreExactMatch + calculatePositionBonus(position)
	}

	// Prefix match
	if strings.HasPrefix(word, frag) {
		return ScorePrefixMatch + calculatePositionBonus(position)
	}

	// Substring match
	if index := strings.Index(word, frag); index >= 0 {
		// Earlier substring matches get higher score
		substringBonus := ScorePositionBonus * (1.0 - float64(index)/float64(len(word)))
		return ScoreSubstringMatch + substringBonus
	}

	return 0.0
}

// scoreFuzzy runs an in-order subsequence match of frag over ws and keeps
// the best hit whose coverage reaches MinCoverage.
func scoreFuzzy(frag string, ws []string) float64 {
	best := 0.0
	for _, m := range fuzzy.Find(frag, ws) {
		coverage := float64(len(m.MatchedIndexes)) / float64(len(m.Str))
		if coverage < MinCoverage {
			continue
		}
		if s := ScoreFuzzyMatch * coverage; s > best {
			best = s
		}
	}
	return best
}

// calculatePositionBonus gives bonus for earlier positions
func calculatePositionBonus(position int) float64 {
	return ScorePositionBonus * math.Exp(-float64(position)*0.3)
}
