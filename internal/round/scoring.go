package round

// Side identifies the winning team of a deal.
type Side string

const (
	SideLandlord Side = "landlord"
	SideFarmers  Side = "farmers"
)

// Settlement is the scored result of a finished deal.
type Settlement struct {
	BaseStake  int
	Multiplier int
	Stake      int
	Spring     bool
	AntiSpring bool
	Scores     [3]int
}

// baseStake derives the stake from bidding.
func baseStake(rules Rules, highestCall, robs int) int {
	if rules.BidMode == BidModeCall {
		if highestCall < 1 {
			return 1
		}
		return highestCall
	}
	stake := 1
	switch rules.Scoring.RobStacking {
	case RobDouble:
		for i := 0; i < robs; i++ {
			stake *= 2
		}
	case RobAdd:
		stake += robs
	}
	return stake
}

// settle applies bomb and spring multipliers and splits the stake. The
// landlord wins or loses twice the stake; each farmer the opposite of one
// stake, so scores sum to zero.
func settle(s ScoringRules, base, landlord int, winner Side, bombs int, seatPlays [3]int) Settlement {
	out := Settlement{BaseStake: base, Multiplier: 1}

	for i := 0; i < bombs; i++ {
		out.Multiplier *= s.BombFactor
	}

	if s.SpringEnabled {
		farmerPlays := 0
		for seat, n := range seatPlays {
			if seat != landlord {
				farmerPlays += n
			}
		}
		out.Spring = winner == SideLandlord && farmerPlays == 0
		out.AntiSpring = winner == SideFarmers && seatPlays[landlord] == 1
		if out.Spring || out.AntiSpring {
			out.Multiplier *= s.SpringFactor
		}
	}

	if s.MaxMultiplier > 0 && out.Multiplier > s.MaxMultiplier {
		out.Multiplier = s.MaxMultiplier
	}
	out.Stake = base * out.Multiplier

	sign := 1
	if winner == SideFarmers {
		sign = -1
	}
	for seat := range out.Scores {
		if seat == landlord {
			out.Scores[seat] = sign * 2 * out.Stake
		} else {
			out.Scores[seat] = -sign * out.Stake
		}
	}
	return out
}
