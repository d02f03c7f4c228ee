// Package combo classifies, enumerates and compares legal card combinations.
package combo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/magefree/landlord-arena/internal/cards"
)

// ErrIllegalShape is returned when a card set matches no recognized combination.
var ErrIllegalShape = errors.New("illegal shape")

// Type is the tagged variant of a combination.
type Type int

const (
	Pass Type = iota
	Single
	Pair
	Triple
	TripleSingle
	TriplePair
	Straight
	PairStraight
	Airplane
	AirplaneSingles
	AirplanePairs
	FourTwoSingles
	FourTwoPairs
	Bomb
	Rocket
)

var typeNames = map[Type]string{
	Pass:            "pass",
	Single:          "single",
	Pair:            "pair",
	Triple:          "triple",
	TripleSingle:    "triple+single",
	TriplePair:      "triple+pair",
	Straight:        "straight",
	PairStraight:    "consecutive-pairs",
	Airplane:        "airplane",
	AirplaneSingles: "airplane+singles",
	AirplanePairs:   "airplane+pairs",
	FourTwoSingles:  "four+two-singles",
	FourTwoPairs:    "four+two-pairs",
	Bomb:            "bomb",
	Rocket:          "rocket",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE_%d", int(t))
}

// ParseType resolves a type name as produced by String.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return Pass, fmt.Errorf("unknown combo type %q", name)
}

// IsRun reports whether the type is built from consecutive ranks.
func (t Type) IsRun() bool {
	switch t {
	case Straight, PairStraight, Airplane, AirplaneSingles, AirplanePairs:
		return true
	}
	return false
}

// Minimum run lengths, counted in distinct ranks.
const (
	MinStraight     = 5
	MinPairStraight = 3
	MinAirplane     = 2
)

// Rules holds the rule-set dependent switches of the combo engine.
type Rules struct {
	// WingsAllowHigh permits rank-2 and jokers as wing cards attached to
	// triples, airplanes and fours.
	WingsAllowHigh bool `mapstructure:"wings_allow_high" json:"wings_allow_high"`
}

// DefaultRules allows high wings.
func DefaultRules() Rules {
	return Rules{WingsAllowHigh: true}
}

func (r Rules) wingOK(rank cards.Rank) bool {
	return r.WingsAllowHigh || rank.Sequenceable()
}

// Combo is a legally shaped set of cards playable in one turn.
type Combo struct {
	Type     Type
	MainRank cards.Rank
	Length   int
	Cards    []cards.Card
}

// PassCombo is the empty move.
var PassCombo = Combo{Type: Pass}

// IsPass reports whether the combo is a pass.
func (c Combo) IsPass() bool {
	return c.Type == Pass
}

// Size is the number of cards consumed.
func (c Combo) Size() int {
	return len(c.Cards)
}

func (c Combo) String() string {
	if c.Type == Pass {
		return "pass"
	}
	if c.Type.IsRun() {
		return fmt.Sprintf("%s[%s x%d](%s)", c.Type, c.MainRank, c.Length, cards.Labels(c.Cards))
	}
	return fmt.Sprintf("%s[%s](%s)", c.Type, c.MainRank, cards.Labels(c.Cards))
}

// Key identifies a combination by shape. Two combos with equal keys are
// interchangeable for legality and comparison; suits never matter.
type Key struct {
	Type     Type
	MainRank cards.Rank
	Length   int
	Ranks    string
}

// Key returns the shape identity of the combo.
func (c Combo) Key() Key {
	ranks := make([]int, len(c.Cards))
	for i, card := range c.Cards {
		ranks[i] = int(card.Rank)
	}
	sort.Ints(ranks)
	parts := make([]string, len(ranks))
	for i, r := range ranks {
		parts[i] = cards.Rank(r).String()
	}
	return Key{Type: c.Type, MainRank: c.MainRank, Length: c.Length, Ranks: strings.Join(parts, ",")}
}

// Clone returns a deep copy.
func (c Combo) Clone() Combo {
	out := c
	if c.Cards != nil {
		out.Cards = append([]cards.Card(nil), c.Cards...)
	}
	return out
}

func newCombo(t Type, main cards.Rank, length int, cs []cards.Card) Combo {
	sorted := cards.Hand(append([]cards.Card(nil), cs...))
	sorted.Sort()
	return Combo{Type: t, MainRank: main, Length: length, Cards: sorted}
}
