package round

import (
	"github.com/magefree/landlord-arena/internal/cards"
	"github.com/magefree/landlord-arena/internal/combo"
)

// BidRecord is one answer given during bidding, after validation.
type BidRecord struct {
	Seat     int         `json:"seat"`
	Decision BidDecision `json:"decision"`
	Fallback bool        `json:"fallback,omitempty"`
}

// PlayRecord is one resolved turn of play. Passes carry a pass combo.
type PlayRecord struct {
	Seat     int         `json:"seat"`
	Trick    int         `json:"trick"`
	Combo    combo.Combo `json:"combo"`
	Fallback bool        `json:"fallback,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// BidView is the read-only snapshot a seat sees when asked to bid.
type BidView struct {
	GameID      string       `json:"game_id"`
	Seat        int          `json:"seat"`
	Hand        []cards.Card `json:"hand"`
	Mode        BidMode      `json:"mode"`
	MaxCall     int          `json:"max_call"`
	HighestCall int          `json:"highest_call"`
	Candidate   int          `json:"candidate"`
	Bids        []BidRecord  `json:"bids"`
}

// PlayView is the read-only snapshot a seat sees when asked to play.
// Requirement is nil on a lead.
type PlayView struct {
	GameID       string          `json:"game_id"`
	Seat         int             `json:"seat"`
	Hand         []cards.Card    `json:"hand"`
	LandlordSeat int             `json:"landlord_seat"`
	Requirement  *combo.Combo    `json:"requirement,omitempty"`
	Lead         bool            `json:"lead"`
	History      []PlayRecord    `json:"history"`
	SeatPlays    [3][]cards.Card `json:"seat_plays"`
	HandCounts   [3]int          `json:"hand_counts"`
	Bottom       []cards.Card    `json:"bottom"`
	Trick        int             `json:"trick"`
	LastPlaySeat int             `json:"last_play_seat"`
	Rules        combo.Rules     `json:"rules"`
}

// IsTeammate reports whether other plays on the same side as the viewer.
func (v PlayView) IsTeammate(other int) bool {
	if other == v.Seat {
		return true
	}
	return other != v.LandlordSeat && v.Seat != v.LandlordSeat
}

// Options enumerates every legal proposal for the view.
func (v PlayView) Options() []combo.Combo {
	return combo.EnumerateResponses(v.Hand, v.Requirement, v.Rules)
}

func cloneBids(in []BidRecord) []BidRecord {
	return append([]BidRecord(nil), in...)
}

func clonePlays(in []PlayRecord) []PlayRecord {
	out := make([]PlayRecord, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Combo = p.Combo.Clone()
	}
	return out
}
