package combo

import (
	"github.com/magefree/landlord-arena/internal/cards"
)

// leadOrder is the order in which EnumerateAll emits combo types.
var leadOrder = []Type{
	Single, Pair, Triple, TripleSingle, TriplePair,
	Straight, PairStraight,
	Airplane, AirplaneSingles, AirplanePairs,
	FourTwoSingles, FourTwoPairs,
	Bomb, Rocket,
}

type part struct {
	rank cards.Rank
	n    int
}

// handIndex groups a hand by rank so generators can pick concrete cards.
type handIndex struct {
	counts rankCounts
	byRank [cards.MaxRank + 1][]cards.Card
	rules  Rules
}

func newHandIndex(hand []cards.Card, rules Rules) *handIndex {
	sorted := cards.Hand(hand).Clone()
	sorted.Sort()
	ix := &handIndex{rules: rules}
	for _, c := range sorted {
		if !c.Rank.Valid() {
			continue
		}
		ix.counts[c.Rank]++
		ix.byRank[c.Rank] = append(ix.byRank[c.Rank], c)
	}
	return ix
}

func (ix *handIndex) build(t Type, main cards.Rank, length int, parts []part) Combo {
	var cs []cards.Card
	for _, p := range parts {
		cs = append(cs, ix.byRank[p.rank][:p.n]...)
	}
	return newCombo(t, main, length, cs)
}

// EnumerateAll returns every combo the hand could lead with, in a
// deterministic order.
func EnumerateAll(hand []cards.Card, rules Rules) []Combo {
	ix := newHandIndex(hand, rules)
	var out []Combo
	for _, t := range leadOrder {
		out = append(out, ix.generate(t, 0)...)
	}
	return out
}

// EnumerateResponses returns the combos from the hand that beat the
// requirement. A nil or pass requirement is a lead and yields EnumerateAll.
func EnumerateResponses(hand []cards.Card, requirement *Combo, rules Rules) []Combo {
	if requirement == nil || requirement.IsPass() {
		return EnumerateAll(hand, rules)
	}
	if requirement.Type == Rocket {
		return nil
	}

	ix := newHandIndex(hand, rules)
	var candidates []Combo
	if requirement.Type != Bomb {
		candidates = ix.generate(requirement.Type, requirement.Length)
	}
	candidates = append(candidates, ix.generate(Bomb, 0)...)
	candidates = append(candidates, ix.generate(Rocket, 0)...)

	out := candidates[:0]
	for _, c := range candidates {
		if Beats(c, *requirement) {
			out = append(out, c)
		}
	}
	return out
}

// generate emits all combos of one type; length restricts run types to a
// single run length when positive.
func (ix *handIndex) generate(t Type, length int) []Combo {
	switch t {
	case Single:
		return ix.sets(Single, 1)
	case Pair:
		return ix.sets(Pair, 2)
	case Triple:
		return ix.sets(Triple, 3)
	case Bomb:
		return ix.sets(Bomb, 4)
	case Rocket:
		if ix.counts[cards.BlackJoker] == 1 && ix.counts[cards.RedJoker] == 1 {
			return []Combo{ix.build(Rocket, cards.RedJoker, 1, []part{{cards.BlackJoker, 1}, {cards.RedJoker, 1}})}
		}
		return nil
	case Straight:
		return ix.runs(Straight, 1, MinStraight, length)
	case PairStraight:
		return ix.runs(PairStraight, 2, MinPairStraight, length)
	case Airplane:
		return ix.runs(Airplane, 3, MinAirplane, length)
	case TripleSingle:
		return ix.withWings(TripleSingle, 3, 1, false)
	case TriplePair:
		return ix.withWings(TriplePair, 3, 1, true)
	case FourTwoSingles:
		return ix.withWings(FourTwoSingles, 4, 2, false)
	case FourTwoPairs:
		return ix.withWings(FourTwoPairs, 4, 2, true)
	case AirplaneSingles:
		return ix.airplanesWithWings(AirplaneSingles, false, length)
	case AirplanePairs:
		return ix.airplanesWithWings(AirplanePairs, true, length)
	}
	return nil
}

func (ix *handIndex) sets(t Type, width int) []Combo {
	var out []Combo
	for r := cards.MinRank; r <= cards.MaxRank; r++ {
		if ix.counts[r] < width {
			continue
		}
		if width > 1 && r.IsJoker() {
			continue
		}
		out = append(out, ix.build(t, r, 1, []part{{r, width}}))
	}
	return out
}

// runs emits every window of consecutive ranks, each held at least width
// times, for every valid length (or only the given length).
func (ix *handIndex) runs(t Type, width, minLen, length int) []Combo {
	var out []Combo
	for s := cards.Three; s <= cards.Ace; s++ {
		var parts []part
		for r := s; r <= cards.Ace && ix.counts[r] >= width; r++ {
			parts = append(parts, part{r, width})
			l := len(parts)
			if l < minLen || (length > 0 && l != length) {
				continue
			}
			out = append(out, ix.build(t, s, l, append([]part(nil), parts...)))
		}
	}
	return out
}

func (ix *handIndex) withWings(t Type, core, units int, pairs bool) []Combo {
	var out []Combo
	for r := cards.Three; r <= cards.Two; r++ {
		if ix.counts[r] < core {
			continue
		}
		exclude := func(w cards.Rank) bool { return w == r }
		for _, wings := range ix.chooseWings(units, pairs, exclude) {
			parts := append([]part{{r, core}}, wings...)
			out = append(out, ix.build(t, r, 1, parts))
		}
	}
	return out
}

func (ix *handIndex) airplanesWithWings(t Type, pairs bool, length int) []Combo {
	var out []Combo
	for _, run := range ix.runs(Airplane, 3, MinAirplane, length) {
		start, k := run.MainRank, run.Length
		exclude := func(w cards.Rank) bool { return w >= start && w < start+cards.Rank(k) }
		base := make([]part, 0, k)
		for r := start; r < start+cards.Rank(k); r++ {
			base = append(base, part{r, 3})
		}
		for _, wings := range ix.chooseWings(k, pairs, exclude) {
			parts := append(append([]part(nil), base...), wings...)
			out = append(out, ix.build(t, start, k, parts))
		}
	}
	return out
}

// chooseWings enumerates every multiset of wing units over the allowed
// ranks. Single wings may repeat a rank up to the number held; pair wings
// use distinct ranks.
func (ix *handIndex) chooseWings(units int, pairs bool, exclude func(cards.Rank) bool) [][]part {
	var candidates []cards.Rank
	for r := cards.MinRank; r <= cards.MaxRank; r++ {
		if exclude(r) || !ix.rules.wingOK(r) {
			continue
		}
		if pairs && (ix.counts[r] < 2 || r.IsJoker()) {
			continue
		}
		if ix.counts[r] > 0 {
			candidates = append(candidates, r)
		}
	}

	var out [][]part
	var current []part
	var walk func(idx, remaining int)
	walk = func(idx, remaining int) {
		if remaining == 0 {
			out = append(out, append([]part(nil), current...))
			return
		}
		if idx >= len(candidates) {
			return
		}
		r := candidates[idx]
		maxTake := 1
		if !pairs {
			maxTake = ix.counts[r]
		}
		if maxTake > remaining {
			maxTake = remaining
		}
		for take := maxTake; take >= 1; take-- {
			n := take
			if pairs {
				n = 2
			}
			current = append(current, part{r, n})
			walk(idx+1, remaining-take)
			current = current[:len(current)-1]
		}
		walk(idx+1, remaining)
	}
	walk(0, units)
	return out
}
