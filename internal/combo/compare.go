package combo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/magefree/landlord-arena/internal/cards"
)

var (
	// ErrEmptyPlay is returned when a play proposal carries no cards.
	ErrEmptyPlay = errors.New("empty play")
	// ErrNotHeld is returned when proposed cards are not all in the hand.
	ErrNotHeld = errors.New("cards not held")
	// ErrDoesNotBeat is returned when a shape is legal but does not beat the requirement.
	ErrDoesNotBeat = errors.New("does not beat requirement")
)

// Beats reports whether a is strictly stronger than b. Any non-pass combo
// beats a pass requirement. Combos of different type or length never
// compare, except for bombs and the rocket.
func Beats(a, b Combo) bool {
	if a.IsPass() {
		return false
	}
	if b.IsPass() {
		return true
	}
	switch {
	case a.Type == Rocket:
		return b.Type != Rocket
	case b.Type == Rocket:
		return false
	case a.Type == Bomb && b.Type != Bomb:
		return true
	case a.Type != Bomb && b.Type == Bomb:
		return false
	}
	if a.Type != b.Type || a.Length != b.Length {
		return false
	}
	return a.MainRank > b.MainRank
}

// Smallest picks the fallback lead: fewest cards, then lowest main rank,
// then type order. The second result is false when options is empty.
func Smallest(options []Combo) (Combo, bool) {
	if len(options) == 0 {
		return Combo{}, false
	}
	sorted := append([]Combo(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if len(a.Cards) != len(b.Cards) {
			return len(a.Cards) < len(b.Cards)
		}
		if a.MainRank != b.MainRank {
			return a.MainRank < b.MainRank
		}
		return a.Type < b.Type
	})
	return sorted[0], true
}

// Contains reports membership by shape key.
func Contains(options []Combo, c Combo) bool {
	key := c.Key()
	for _, o := range options {
		if o.Key() == key {
			return true
		}
	}
	return false
}

// Match validates a proposed play. The proposal is accepted when the cards
// are held and one of their interpretations is a member of
// EnumerateAll(hand) on a lead, or EnumerateResponses(hand, requirement)
// otherwise. The accepted combo carries the exact proposed cards.
func Match(hand []cards.Card, proposed []cards.Card, requirement *Combo, rules Rules) (Combo, error) {
	if len(proposed) == 0 {
		return Combo{}, ErrEmptyPlay
	}
	if !cards.Hand(hand).ContainsAll(proposed) {
		return Combo{}, fmt.Errorf("%w: %s", ErrNotHeld, cards.Labels(proposed))
	}

	interpretations := DetectAll(proposed, rules)
	if len(interpretations) == 0 {
		return Combo{}, fmt.Errorf("%w: %s", ErrIllegalShape, cards.Labels(proposed))
	}

	lead := requirement == nil || requirement.IsPass()
	ix := newHandIndex(hand, rules)
	for _, interp := range interpretations {
		if !lead && !Beats(interp, *requirement) {
			continue
		}
		if Contains(ix.generate(interp.Type, interp.Length), interp) {
			return interp, nil
		}
	}
	if !lead {
		return Combo{}, fmt.Errorf("%w: %s vs %s", ErrDoesNotBeat, interpretations[0], requirement)
	}
	return Combo{}, fmt.Errorf("%w: %s", ErrIllegalShape, cards.Labels(proposed))
}
