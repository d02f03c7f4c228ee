package bot

import (
	"context"
	"sort"

	"github.com/magefree/landlord-arena/internal/combo"
	"github.com/magefree/landlord-arena/internal/round"
)

// ThreatThreshold is the opponent hand size at which Greedy starts bombing.
const ThreatThreshold = 2

// Greedy sheds as many cards as it can per lead and holds bombs back until
// an opponent is close to going out.
type Greedy struct{}

func (Greedy) DecideBid(_ context.Context, v round.BidView) (round.BidDecision, error) {
	s := strength(v.Hand)
	want := 0
	switch {
	case s >= 7:
		want = 3
	case s >= 5:
		want = 2
	case s >= 3:
		want = 1
	}

	if v.Mode == round.BidModeRob {
		if want >= 2 || (want == 1 && v.Candidate < 0) {
			return round.Rob(), nil
		}
		return round.NoRob(), nil
	}

	if want > v.MaxCall {
		want = v.MaxCall
	}
	if want > v.HighestCall {
		return round.Call(want), nil
	}
	return round.Pass(), nil
}

func (g Greedy) DecidePlay(_ context.Context, v round.PlayView) (round.PlayDecision, error) {
	if v.Requirement == nil {
		return g.lead(v), nil
	}

	responses := combo.EnumerateResponses(v.Hand, v.Requirement, v.Rules)
	if c, ok := finishing(responses, v.Hand); ok {
		return play(c), nil
	}
	if v.LastPlaySeat >= 0 && v.LastPlaySeat != v.Seat && v.IsTeammate(v.LastPlaySeat) {
		return round.PassMove(), nil
	}

	plain, bombs := split(responses)
	if c, ok := combo.Smallest(plain); ok {
		return play(c), nil
	}
	if g.threatened(v) {
		if c, ok := cheapestBomb(bombs); ok {
			return play(c), nil
		}
	}
	return round.PassMove(), nil
}

func (Greedy) lead(v round.PlayView) round.PlayDecision {
	options := combo.EnumerateAll(v.Hand, v.Rules)
	if c, ok := finishing(options, v.Hand); ok {
		return play(c)
	}
	plain, bombs := split(options)
	if len(plain) == 0 {
		if c, ok := cheapestBomb(bombs); ok {
			return play(c)
		}
		return round.PassMove()
	}

	sort.SliceStable(plain, func(i, j int) bool {
		a, b := plain[i], plain[j]
		if len(a.Cards) != len(b.Cards) {
			return len(a.Cards) > len(b.Cards)
		}
		if a.MainRank != b.MainRank {
			return a.MainRank < b.MainRank
		}
		return a.Type < b.Type
	})
	return play(plain[0])
}

func (Greedy) threatened(v round.PlayView) bool {
	for seat, n := range v.HandCounts {
		if !v.IsTeammate(seat) && n <= ThreatThreshold {
			return true
		}
	}
	return false
}
