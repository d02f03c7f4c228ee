// Package bot holds the built-in players used to fill tournament seats.
package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/magefree/landlord-arena/internal/cards"
	"github.com/magefree/landlord-arena/internal/combo"
	"github.com/magefree/landlord-arena/internal/round"
)

// ErrUnknownKind is returned by New for unsupported bot kinds.
var ErrUnknownKind = errors.New("unknown bot kind")

// Kind names a built-in strategy in configuration.
type Kind string

const (
	KindGreedy   Kind = "greedy"
	KindCautious Kind = "cautious"
	KindRandom   Kind = "random"
	KindPassive  Kind = "passive"
)

// Kinds lists every built-in kind.
func Kinds() []Kind {
	return []Kind{KindGreedy, KindCautious, KindRandom, KindPassive}
}

// ParseKind resolves a configuration string, ignoring case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// New creates a bot of the given kind. Only the random bot uses the seed.
func New(kind Kind, seed int64) (round.Bot, error) {
	switch kind {
	case KindGreedy:
		return Greedy{}, nil
	case KindCautious:
		return Cautious{}, nil
	case KindRandom:
		return NewRandom(seed), nil
	case KindPassive:
		return Passive{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func isBomb(c combo.Combo) bool {
	return c.Type == combo.Bomb || c.Type == combo.Rocket
}

func split(options []combo.Combo) (plain, bombs []combo.Combo) {
	for _, o := range options {
		if isBomb(o) {
			bombs = append(bombs, o)
		} else {
			plain = append(plain, o)
		}
	}
	return plain, bombs
}

// cheapestBomb prefers the lowest bomb and keeps the rocket for last.
func cheapestBomb(bombs []combo.Combo) (combo.Combo, bool) {
	if len(bombs) == 0 {
		return combo.Combo{}, false
	}
	sorted := append([]combo.Combo(nil), bombs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Type == combo.Rocket, sorted[j].Type == combo.Rocket
		if ri != rj {
			return rj
		}
		return sorted[i].MainRank < sorted[j].MainRank
	})
	return sorted[0], true
}

// cheapest is the smallest non-bomb option, falling back to the cheapest bomb.
func cheapest(options []combo.Combo) (combo.Combo, bool) {
	plain, bombs := split(options)
	if c, ok := combo.Smallest(plain); ok {
		return c, true
	}
	return cheapestBomb(bombs)
}

// finishing returns an option that empties the hand, if there is one.
func finishing(options []combo.Combo, hand []cards.Card) (combo.Combo, bool) {
	for _, o := range options {
		if len(o.Cards) == len(hand) {
			return o, true
		}
	}
	return combo.Combo{}, false
}

func play(c combo.Combo) round.PlayDecision {
	return round.PlayCards(c.Cards)
}

// strength scores a hand for bidding: jokers, twos and bombs.
func strength(hand []cards.Card) int {
	counts := cards.Hand(hand).Counts()
	score := 0
	if counts[cards.RedJoker] > 0 {
		score += 3
	}
	if counts[cards.BlackJoker] > 0 {
		score += 2
	}
	score += counts[cards.Two]
	for r := cards.Three; r <= cards.Ace; r++ {
		if counts[r] == 4 {
			score += 3
		}
	}
	return score
}
