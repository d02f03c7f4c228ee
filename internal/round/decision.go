package round

import (
	"errors"
	"fmt"

	"github.com/magefree/landlord-arena/internal/cards"
)

// ErrMalformedDecision is returned by Validate for decisions that cannot be
// applied in the current phase or mode.
var ErrMalformedDecision = errors.New("malformed decision")

// BidKind tags a BidDecision.
type BidKind string

const (
	BidPass  BidKind = "pass"
	BidCall  BidKind = "call"
	BidRob   BidKind = "rob"
	BidNoRob BidKind = "no-rob"
)

// BidDecision is a seat's answer during bidding. Call is only meaningful for
// BidCall.
type BidDecision struct {
	Kind BidKind `json:"kind"`
	Call int     `json:"call,omitempty"`
}

// Pass declines to bid.
func Pass() BidDecision { return BidDecision{Kind: BidPass} }

// Call bids the given multiplier in call mode.
func Call(n int) BidDecision { return BidDecision{Kind: BidCall, Call: n} }

// Rob claims (or takes over) the landlord candidacy in rob mode.
func Rob() BidDecision { return BidDecision{Kind: BidRob} }

// NoRob declines in rob mode.
func NoRob() BidDecision { return BidDecision{Kind: BidNoRob} }

// Validate checks the decision against the bidding mode.
func (d BidDecision) Validate(mode BidMode, maxCall int) error {
	switch d.Kind {
	case BidPass:
		return nil
	case BidCall:
		if mode != BidModeCall {
			return fmt.Errorf("%w: call in %s mode", ErrMalformedDecision, mode)
		}
		if d.Call < 1 || d.Call > maxCall {
			return fmt.Errorf("%w: call %d outside 1..%d", ErrMalformedDecision, d.Call, maxCall)
		}
		return nil
	case BidRob, BidNoRob:
		if mode != BidModeRob {
			return fmt.Errorf("%w: %s in %s mode", ErrMalformedDecision, d.Kind, mode)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown bid kind %q", ErrMalformedDecision, d.Kind)
}

func (d BidDecision) String() string {
	if d.Kind == BidCall {
		return fmt.Sprintf("call %d", d.Call)
	}
	return string(d.Kind)
}

// MoveKind tags a PlayDecision.
type MoveKind string

const (
	MovePass MoveKind = "pass"
	MovePlay MoveKind = "play"
)

// PlayDecision is a seat's answer during play.
type PlayDecision struct {
	Move  MoveKind     `json:"move"`
	Cards []cards.Card `json:"cards,omitempty"`
}

// PassMove declines to play.
func PassMove() PlayDecision { return PlayDecision{Move: MovePass} }

// PlayCards proposes the given cards.
func PlayCards(cs []cards.Card) PlayDecision {
	return PlayDecision{Move: MovePlay, Cards: append([]cards.Card(nil), cs...)}
}

// Validate checks that the decision is well formed. Legality against the
// hand and the requirement is checked by the engine.
func (d PlayDecision) Validate() error {
	switch d.Move {
	case MovePass:
		if len(d.Cards) != 0 {
			return fmt.Errorf("%w: pass with cards", ErrMalformedDecision)
		}
		return nil
	case MovePlay:
		if len(d.Cards) == 0 {
			return fmt.Errorf("%w: play without cards", ErrMalformedDecision)
		}
		for _, c := range d.Cards {
			if !c.Valid() {
				return fmt.Errorf("%w: invalid card %v", ErrMalformedDecision, c)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown move %q", ErrMalformedDecision, d.Move)
}
