package match

import (
	"sort"
	"strings"
)

// Scores assigned by Rank. A candidate whose every searchable string misses
// the query entirely scores 0 and is dropped.
const (
	scoreTokenSubset  = 3
	scoreIntersection = 2
	scoreSubstring    = 1

	// Whole-query substring matches shorter than this are too noisy to count.
	minSubstringLen = 4
)

// Candidate is a reference row reduced to its normalized searchable strings.
// Label carries whatever the caller needs to recover the original row.
type Candidate struct {
	ID         int64
	Label      string
	Searchable []string
}

// Ranked is a surviving candidate with its score.
type Ranked struct {
	Candidate
	Score int
}

// synonyms maps a singularized token to the variants that should also be
// tried against the searchable strings. Sourced from the service catalog's
// most common aliases.
var synonyms = map[string][]string{
	"flyer":    {"flyer", "volante"},
	"volante":  {"volante", "flyer"},
	"folleto":  {"folleto", "brochure"},
	"brochure": {"brochure", "folleto"},
	"banner":   {"banner", "lona"},
	"lona":     {"lona", "banner"},
}

func singular(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") {
		return tok[:len(tok)-1]
	}
	return tok
}

// ExpandToken returns the synonym variants for a token, always including the
// singularized token itself.
func ExpandToken(tok string) []string {
	base := singular(tok)
	if vs, ok := synonyms[base]; ok {
		return vs
	}
	return []string{base}
}

func tokenHits(tok string, searchable []string) bool {
	for _, v := range ExpandToken(tok) {
		for _, s := range searchable {
			if strings.Contains(s, v) {
				return true
			}
		}
	}
	return false
}

// Rank scores each candidate against the query: 3 when every query token
// appears in some searchable string, 2 when any token does, 1 when the whole
// normalized query is a substring (query length >= 4), 0 otherwise. Surviving
// candidates are sorted by score, then by combined searchable length so that
// more specific rows win ties.
func Rank(query string, candidates []Candidate) []Ranked {
	normQuery := Normalize(query)
	tokens := Tokens(query)

	var out []Ranked
	for _, c := range candidates {
		score := scoreCandidate(normQuery, tokens, c.Searchable)
		if score == 0 {
			continue
		}
		out = append(out, Ranked{Candidate: c, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return combinedLen(out[i].Searchable) > combinedLen(out[j].Searchable)
	})
	return out
}

func scoreCandidate(normQuery string, tokens []string, searchable []string) int {
	if len(tokens) == 0 {
		return 0
	}
	subset := true
	intersection := false
	for _, tok := range tokens {
		if tokenHits(tok, searchable) {
			intersection = true
		} else {
			subset = false
		}
	}
	switch {
	case subset:
		return scoreTokenSubset
	case intersection:
		return scoreIntersection
	}
	if len(normQuery) >= minSubstringLen {
		for _, s := range searchable {
			if strings.Contains(s, normQuery) {
				return scoreSubstring
			}
		}
	}
	return 0
}

func combinedLen(searchable []string) int {
	n := 0
	for _, s := range searchable {
		n += len(s)
	}
	return n
}
