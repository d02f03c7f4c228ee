package combo

import (
	"sort"

	"github.com/magefree/landlord-arena/internal/cards"
)

type rankCounts = [cards.MaxRank + 1]int

// detectPriority orders ambiguous interpretations; lower sorts first.
var detectPriority = map[Type]int{
	Rocket:          0,
	Bomb:            1,
	Single:          2,
	Pair:            3,
	Triple:          4,
	Straight:        5,
	PairStraight:    6,
	Airplane:        7,
	FourTwoPairs:    8,
	FourTwoSingles:  9,
	AirplanePairs:   10,
	AirplaneSingles: 11,
	TriplePair:      12,
	TripleSingle:    13,
}

// Detect classifies an exact card set. When the set admits several
// decompositions the preferred one is returned; see DetectAll.
func Detect(cs []cards.Card, rules Rules) (Combo, error) {
	all := DetectAll(cs, rules)
	if len(all) == 0 {
		return Combo{}, ErrIllegalShape
	}
	return all[0], nil
}

// DetectAll returns every valid interpretation of the card set, most
// preferred first. The result is empty for an illegal shape.
func DetectAll(cs []cards.Card, rules Rules) []Combo {
	n := len(cs)
	if n == 0 || !distinctValid(cs) {
		return nil
	}

	counts := cards.Hand(cs).Counts()
	ranks := presentRanks(&counts)

	var out []Combo
	add := func(t Type, main cards.Rank, length int) {
		out = append(out, newCombo(t, main, length, cs))
	}

	switch {
	case n == 1:
		add(Single, cs[0].Rank, 1)
	case n == 2 && counts[cards.BlackJoker] == 1 && counts[cards.RedJoker] == 1:
		add(Rocket, cards.RedJoker, 1)
	case len(ranks) == 1 && n == 2:
		add(Pair, ranks[0], 1)
	case len(ranks) == 1 && n == 3:
		add(Triple, ranks[0], 1)
	case len(ranks) == 1 && n == 4:
		add(Bomb, ranks[0], 1)
	}

	if n >= MinStraight && isUniformRun(ranks, &counts, 1) {
		add(Straight, ranks[0], len(ranks))
	}
	if len(ranks) >= MinPairStraight && isUniformRun(ranks, &counts, 2) {
		add(PairStraight, ranks[0], len(ranks))
	}
	if len(ranks) >= MinAirplane && isUniformRun(ranks, &counts, 3) {
		add(Airplane, ranks[0], len(ranks))
	}

	switch n {
	case 4:
		if main, ok := withKickers(&counts, 3, 1, false, rules); ok {
			add(TripleSingle, main, 1)
		}
	case 5:
		if main, ok := withKickers(&counts, 3, 1, true, rules); ok {
			add(TriplePair, main, 1)
		}
	case 6:
		if main, ok := withKickers(&counts, 4, 2, false, rules); ok {
			add(FourTwoSingles, main, 1)
		}
	case 8:
		if main, ok := withKickers(&counts, 4, 2, true, rules); ok {
			add(FourTwoPairs, main, 1)
		}
	}

	if n%4 == 0 && n/4 >= MinAirplane {
		k := n / 4
		for _, start := range airplaneStarts(&counts, k) {
			if wingsFit(&counts, start, k, false, rules) {
				add(AirplaneSingles, start, k)
			}
		}
	}
	if n%5 == 0 && n/5 >= MinAirplane {
		k := n / 5
		for _, start := range airplaneStarts(&counts, k) {
			if wingsFit(&counts, start, k, true, rules) {
				add(AirplanePairs, start, k)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := detectPriority[out[i].Type], detectPriority[out[j].Type]
		if pi != pj {
			return pi < pj
		}
		return out[i].MainRank > out[j].MainRank
	})
	return out
}

func distinctValid(cs []cards.Card) bool {
	seen := make(map[cards.Card]bool, len(cs))
	for _, c := range cs {
		if !c.Valid() || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

func presentRanks(counts *rankCounts) []cards.Rank {
	var ranks []cards.Rank
	for r := cards.MinRank; r <= cards.MaxRank; r++ {
		if counts[r] > 0 {
			ranks = append(ranks, r)
		}
	}
	return ranks
}

// isUniformRun reports whether ranks are consecutive, sequenceable and each
// held exactly width times.
func isUniformRun(ranks []cards.Rank, counts *rankCounts, width int) bool {
	for i, r := range ranks {
		if !r.Sequenceable() || counts[r] != width {
			return false
		}
		if i > 0 && r != ranks[i-1]+1 {
			return false
		}
	}
	return len(ranks) > 0
}

// withKickers matches exactly one rank held `core` times plus `kickers`
// wing units. Pair wings must be distinct ranks held exactly twice.
func withKickers(counts *rankCounts, core, kickers int, pairs bool, rules Rules) (cards.Rank, bool) {
	main := cards.Rank(0)
	for r := cards.MinRank; r <= cards.MaxRank; r++ {
		if counts[r] == core {
			if main != 0 {
				return 0, false
			}
			main = r
		}
	}
	if main == 0 {
		return 0, false
	}

	units := 0
	for r := cards.MinRank; r <= cards.MaxRank; r++ {
		if r == main || counts[r] == 0 {
			continue
		}
		if !rules.wingOK(r) {
			return 0, false
		}
		if pairs {
			if counts[r] != 2 {
				return 0, false
			}
			units++
		} else {
			units += counts[r]
		}
	}
	return main, units == kickers
}

// airplaneStarts lists run starts of length k where every rank is held at
// least three times.
func airplaneStarts(counts *rankCounts, k int) []cards.Rank {
	var starts []cards.Rank
	for s := cards.Three; s+cards.Rank(k)-1 <= cards.Ace; s++ {
		ok := true
		for r := s; r < s+cards.Rank(k); r++ {
			if counts[r] < 3 {
				ok = false
				break
			}
		}
		if ok {
			starts = append(starts, s)
		}
	}
	return starts
}

// wingsFit checks that the cards left after removing a triple run form k
// wing units that do not share a rank with the run.
func wingsFit(counts *rankCounts, start cards.Rank, k int, pairs bool, rules Rules) bool {
	end := start + cards.Rank(k)
	units := 0
	for r := cards.MinRank; r <= cards.MaxRank; r++ {
		left := counts[r]
		if r >= start && r < end {
			left -= 3
			if left != 0 {
				return false
			}
			continue
		}
		if left == 0 {
			continue
		}
		if !rules.wingOK(r) {
			return false
		}
		if pairs {
			if left != 2 {
				return false
			}
			units++
		} else {
			units += left
		}
	}
	return units == k
}
