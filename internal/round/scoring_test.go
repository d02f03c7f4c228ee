package round

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magefree/landlord-arena/internal/cards"
)

func TestSettle(t *testing.T) {
	standard := DefaultRules().Scoring

	tests := []struct {
		name       string
		rules      ScoringRules
		base       int
		winner     Side
		bombs      int
		moves      [3]int
		multiplier int
		scores     [3]int
	}{
		{"landlord win", standard, 2, SideLandlord, 0, [3]int{5, 2, 3}, 1, [3]int{4, -2, -2}},
		{"farmer win", standard, 3, SideFarmers, 0, [3]int{4, 6, 2}, 1, [3]int{-6, 3, 3}},
		{"bombs stack", standard, 1, SideLandlord, 2, [3]int{5, 2, 3}, 4, [3]int{8, -4, -4}},
		{"spring", standard, 1, SideLandlord, 0, [3]int{6, 0, 0}, 2, [3]int{4, -2, -2}},
		{"anti spring", standard, 1, SideFarmers, 1, [3]int{1, 7, 3}, 4, [3]int{-8, 4, 4}},
		{"spring disabled", ScoringRules{RobStacking: RobDouble, BombFactor: 2, SpringFactor: 2}, 1, SideLandlord, 0, [3]int{6, 0, 0}, 1, [3]int{2, -1, -1}},
		{"capped", ScoringRules{RobStacking: RobDouble, BombFactor: 3, SpringEnabled: true, SpringFactor: 2, MaxMultiplier: 8}, 1, SideLandlord, 3, [3]int{6, 0, 0}, 8, [3]int{16, -8, -8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settle(tt.rules, tt.base, 0, tt.winner, tt.bombs, tt.moves)
			assert.Equal(t, tt.multiplier, s.Multiplier)
			assert.Equal(t, tt.base*tt.multiplier, s.Stake)
			assert.Equal(t, tt.scores, s.Scores)
			assert.Zero(t, sum(s.Scores))
		})
	}
}

func TestSettleLandlordSeat(t *testing.T) {
	s := settle(DefaultRules().Scoring, 1, 2, SideFarmers, 0, [3]int{3, 4, 2})
	assert.Equal(t, [3]int{1, 1, -2}, s.Scores)
}

func TestBaseStake(t *testing.T) {
	call := DefaultRules()
	assert.Equal(t, 3, baseStake(call, 3, 0))
	assert.Equal(t, 1, baseStake(call, 0, 0))

	rob := DefaultRules()
	rob.BidMode = BidModeRob
	assert.Equal(t, 4, baseStake(rob, 1, 2))
	rob.Scoring.RobStacking = RobAdd
	assert.Equal(t, 3, baseStake(rob, 1, 2))
	rob.Scoring.RobStacking = RobNone
	assert.Equal(t, 1, baseStake(rob, 1, 2))
}

func TestDecisionValidate(t *testing.T) {
	t.Run("bids", func(t *testing.T) {
		assert.NoError(t, Pass().Validate(BidModeCall, 3))
		assert.NoError(t, Call(3).Validate(BidModeCall, 3))
		assert.ErrorIs(t, Call(0).Validate(BidModeCall, 3), ErrMalformedDecision)
		assert.ErrorIs(t, Call(4).Validate(BidModeCall, 3), ErrMalformedDecision)
		assert.ErrorIs(t, Rob().Validate(BidModeCall, 3), ErrMalformedDecision)
		assert.NoError(t, Rob().Validate(BidModeRob, 3))
		assert.NoError(t, NoRob().Validate(BidModeRob, 3))
		assert.ErrorIs(t, Call(1).Validate(BidModeRob, 3), ErrMalformedDecision)
		assert.ErrorIs(t, BidDecision{Kind: "double"}.Validate(BidModeCall, 3), ErrMalformedDecision)
	})

	t.Run("plays", func(t *testing.T) {
		assert.NoError(t, PassMove().Validate())
		assert.NoError(t, PlayCards(cards.MustParse("3S")).Validate())
		assert.ErrorIs(t, PlayDecision{Move: MovePlay}.Validate(), ErrMalformedDecision)
		assert.ErrorIs(t, PlayDecision{Move: MovePass, Cards: cards.MustParse("3S")}.Validate(), ErrMalformedDecision)
		assert.ErrorIs(t, PlayDecision{Move: MovePlay, Cards: []cards.Card{{Rank: 2}}}.Validate(), ErrMalformedDecision)
		assert.ErrorIs(t, PlayDecision{Move: "fold"}.Validate(), ErrMalformedDecision)
	})
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	mutations := map[string]func(*Rules){
		"bid mode":       func(r *Rules) { r.BidMode = "" },
		"max call":       func(r *Rules) { r.MaxCall = 0 },
		"redeals":        func(r *Rules) { r.MaxRedeals = -1 },
		"turns":          func(r *Rules) { r.MaxTurns = 0 },
		"timeout":        func(r *Rules) { r.DecisionTimeout = 0 },
		"rob stacking":   func(r *Rules) { r.Scoring.RobStacking = "triple" },
		"bomb factor":    func(r *Rules) { r.Scoring.BombFactor = 0 },
		"max multiplier": func(r *Rules) { r.Scoring.MaxMultiplier = -1 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := DefaultRules()
			mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRules)
		})
	}
}
