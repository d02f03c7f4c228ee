package cards

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

const (
	// DeckSize is 13 ranks x 4 suits plus two jokers.
	DeckSize = 54
	// HandSize is the number of cards dealt to each seat.
	HandSize = 17
	// BottomSize is the number of cards kept back for the landlord.
	BottomSize = 3
)

// NewDeck returns the full deck in canonical order.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for r := Three; r <= Two; r++ {
		for s := Spades; s <= Diamonds; s++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	deck = append(deck, Card{Rank: BlackJoker, Suit: NoSuit}, Card{Rank: RedJoker, Suit: NoSuit})
	return deck
}

// Deal shuffles a fresh deck with rng and splits it into three hands and the bottom.
func Deal(rng *rand.Rand) (hands [3]Hand, bottom Hand) {
	deck := NewDeck()
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	for seat := 0; seat < 3; seat++ {
		h := make(Hand, HandSize)
		copy(h, deck[seat*HandSize:(seat+1)*HandSize])
		h.Sort()
		hands[seat] = h
	}
	bottom = make(Hand, BottomSize)
	copy(bottom, deck[3*HandSize:])
	bottom.Sort()
	return hands, bottom
}

// Hand is a multiset of cards held by one seat.
type Hand []Card

// Sort orders the hand by rank, then suit.
func (h Hand) Sort() {
	sort.Slice(h, func(i, j int) bool {
		if h[i].Rank != h[j].Rank {
			return h[i].Rank < h[j].Rank
		}
		return h[i].Suit < h[j].Suit
	})
}

// Clone returns an independent copy.
func (h Hand) Clone() Hand {
	if h == nil {
		return nil
	}
	out := make(Hand, len(h))
	copy(out, h)
	return out
}

// Counts returns the number of cards held per rank, indexed by Rank.
func (h Hand) Counts() [MaxRank + 1]int {
	var counts [MaxRank + 1]int
	for _, c := range h {
		if c.Rank.Valid() {
			counts[c.Rank]++
		}
	}
	return counts
}

// ContainsAll reports whether every card in subset is held. Each card in
// subset must be distinct; a repeated card is never contained.
func (h Hand) ContainsAll(subset []Card) bool {
	held := make(map[Card]bool, len(h))
	for _, c := range h {
		held[c] = true
	}
	seen := make(map[Card]bool, len(subset))
	for _, c := range subset {
		if !held[c] || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

// Without returns a new hand with the given cards removed.
func (h Hand) Without(remove []Card) (Hand, error) {
	if !h.ContainsAll(remove) {
		return nil, fmt.Errorf("cards %s not held", Labels(remove))
	}
	drop := make(map[Card]bool, len(remove))
	for _, c := range remove {
		drop[c] = true
	}
	out := make(Hand, 0, len(h)-len(remove))
	for _, c := range h {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Labels renders cards as a space separated display string.
func Labels(cs []Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Codes renders cards as wire codes.
func Codes(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Code()
	}
	return out
}
