package adapter

import (
	"slices"
	"sort"
)

// MinScore is the lowest heuristic score a candidate needs to be kept.
const MinScore = 3

// Features are the measurements the response heuristic scores.
type Features struct {
	TextLen        int
	DescendantDivs int
	DirectChildren int
	Words          int
	TerminalPunct  bool
}

// Candidate is one element under consideration, identified by its node
// stamp, with the stamps of its ancestors for nesting checks.
type Candidate struct {
	ID        string
	Ancestors []string
	Features  Features
}

// Score rates how much f looks like a rendered assistant answer.
func Score(f Features) int {
	s := 0
	switch {
	case f.TextLen >= 350:
		s += 2
	case f.TextLen >= 150:
		s++
	}
	switch {
	case f.DescendantDivs <= 5:
		s++
	case f.DescendantDivs > 25:
		s--
	}
	if f.DirectChildren >= 2 && f.DirectChildren <= 20 {
		s++
	}
	if f.TerminalPunct && f.Words > 20 {
		s++
	}
	return s
}

// Rank keeps candidates scoring at least MinScore, orders them by score
// then text length (both descending, discovery order on ties), and drops
// any candidate nested inside one already kept. limit <= 0 means no cap.
func Rank(cands []Candidate, limit int) []Candidate {
	type scored struct {
		Candidate
		score int
	}
	var keep []scored
	for _, c := range cands {
		if s := Score(c.Features); s >= MinScore {
			keep = append(keep, scored{c, s})
		}
	}
	sort.SliceStable(keep, func(i, j int) bool {
		if keep[i].score != keep[j].score {
			return keep[i].score > keep[j].score
		}
		return keep[i].Features.TextLen > keep[j].Features.TextLen
	})

	var out []Candidate
	for _, c := range keep {
		nested := slices.ContainsFunc(out, func(k Candidate) bool {
			return slices.Contains(c.Ancestors, k.ID)
		})
		if nested {
			continue
		}
		out = append(out, c.Candidate)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
