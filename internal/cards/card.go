package cards

import (
	"fmt"
	"strings"
)

// Suit represents a card suit. Jokers carry NoSuit.
type Suit int

const (
	Spades Suit = iota
	Hearts
	Clubs
	Diamonds
	NoSuit
)

var suitSymbols = map[Suit]string{
	Spades:   "♠",
	Hearts:   "♥",
	Clubs:    "♣",
	Diamonds: "♦",
	NoSuit:   "",
}

var suitCodes = map[Suit]byte{
	Spades:   'S',
	Hearts:   'H',
	Clubs:    'C',
	Diamonds: 'D',
}

func (s Suit) String() string {
	if sym, ok := suitSymbols[s]; ok {
		return sym
	}
	return fmt.Sprintf("SUIT_%d", int(s))
}

// Rank is the strength order of a card. Values are chosen so that
// consecutive ordinary ranks differ by one.
type Rank int

const (
	Three Rank = iota + 3
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
	Two
	BlackJoker
	RedJoker
)

// MinRank and MaxRank bound the valid rank range.
const (
	MinRank = Three
	MaxRank = RedJoker
)

var rankNames = map[Rank]string{
	Three: "3", Four: "4", Five: "5", Six: "6", Seven: "7", Eight: "8", Nine: "9",
	Ten: "10", Jack: "J", Queen: "Q", King: "K", Ace: "A", Two: "2",
	BlackJoker: "BJ", RedJoker: "RJ",
}

var rankCodes = map[Rank]byte{
	Three: '3', Four: '4', Five: '5', Six: '6', Seven: '7', Eight: '8', Nine: '9',
	Ten: 'T', Jack: 'J', Queen: 'Q', King: 'K', Ace: 'A', Two: '2',
}

func (r Rank) String() string {
	if name, ok := rankNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RANK_%d", int(r))
}

// Valid reports whether r is one of the fifteen ranks.
func (r Rank) Valid() bool {
	return r >= MinRank && r <= MaxRank
}

// Sequenceable reports whether the rank may appear in a straight,
// pair-straight or airplane run (3 through Ace).
func (r Rank) Sequenceable() bool {
	return r >= Three && r <= Ace
}

// IsJoker reports whether r is one of the two jokers.
func (r Rank) IsJoker() bool {
	return r == BlackJoker || r == RedJoker
}

// Card is a single playing card. It is an immutable value type.
type Card struct {
	Rank Rank
	Suit Suit
}

// ID returns a unique index in [0, DeckSize).
func (c Card) ID() int {
	switch c.Rank {
	case BlackJoker:
		return 52
	case RedJoker:
		return 53
	}
	return int(c.Rank-Three)*4 + int(c.Suit)
}

// Valid reports whether the rank/suit pairing exists in the deck.
func (c Card) Valid() bool {
	if !c.Rank.Valid() {
		return false
	}
	if c.Rank.IsJoker() {
		return c.Suit == NoSuit
	}
	return c.Suit >= Spades && c.Suit <= Diamonds
}

// String returns the display label, e.g. "10♥" or "RJ".
func (c Card) String() string {
	if c.Rank.IsJoker() {
		return c.Rank.String()
	}
	return c.Rank.String() + c.Suit.String()
}

// Code returns the two-character ASCII wire code, e.g. "TH", "3S", "BJ".
func (c Card) Code() string {
	if c.Rank.IsJoker() {
		return c.Rank.String()
	}
	return string([]byte{rankCodes[c.Rank], suitCodes[c.Suit]})
}

// MarshalText encodes the card as its wire code.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid card %d/%d", c.Rank, c.Suit)
	}
	return []byte(c.Code()), nil
}

// UnmarshalText decodes a wire code.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard parses a wire code such as "3S", "TD", "10H", "BJ" or "RJ".
func ParseCard(code string) (Card, error) {
	s := strings.ToUpper(strings.TrimSpace(code))
	switch s {
	case "BJ":
		return Card{Rank: BlackJoker, Suit: NoSuit}, nil
	case "RJ":
		return Card{Rank: RedJoker, Suit: NoSuit}, nil
	}
	if strings.HasPrefix(s, "10") {
		s = "T" + s[2:]
	}
	if len(s) != 2 {
		return Card{}, fmt.Errorf("malformed card code %q", code)
	}

	var rank Rank
	for r, b := range rankCodes {
		if b == s[0] {
			rank = r
			break
		}
	}
	if rank == 0 {
		return Card{}, fmt.Errorf("unknown rank in card code %q", code)
	}

	suit := Suit(-1)
	for st, b := range suitCodes {
		if b == s[1] {
			suit = st
			break
		}
	}
	if suit < 0 {
		return Card{}, fmt.Errorf("unknown suit in card code %q", code)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// MustParse parses a space separated list of wire codes and panics on error.
// Intended for tests and fixtures.
func MustParse(codes string) []Card {
	fields := strings.Fields(codes)
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}
