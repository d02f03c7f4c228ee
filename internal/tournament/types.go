package tournament

import (
	"errors"
	"time"

	"github.com/magefree/landlord-arena/internal/rating"
	"github.com/magefree/landlord-arena/internal/round"
)

var (
	// ErrInvalidConfig is returned before any game runs.
	ErrInvalidConfig = errors.New("invalid tournament config")
	// ErrNoAssignment means every series of the current round has been handed out.
	ErrNoAssignment = errors.New("no assignment available")
	// ErrTournamentComplete means the final series has been completed.
	ErrTournamentComplete = errors.New("tournament complete")
	// ErrTournamentIncomplete is returned by Result before completion.
	ErrTournamentIncomplete = errors.New("tournament not complete")
	// ErrUnknownAssignment is returned for ids that were never handed out.
	ErrUnknownAssignment = errors.New("unknown assignment")
	// ErrAssignmentClosed is returned for series that were already completed.
	ErrAssignmentClosed = errors.New("assignment already completed")
	// ErrInvalidResult is returned when a recorded game does not fit its assignment.
	ErrInvalidResult = errors.New("invalid game result")
	// ErrSeriesIncomplete is returned when completing a series with games missing.
	ErrSeriesIncomplete = errors.New("series incomplete")
)

// Elimination reasons.
const (
	ReasonInsufficientSlots = "insufficient-slots"
	ReasonLowestRating      = "lowest-rating"
)

// DefaultGamesPerRound is the series length used when configuration omits it.
const DefaultGamesPerRound = 100

// Participant is one entrant. Bot is only required by the blocking Run.
type Participant struct {
	ID    string
	Label string
	Bot   round.Bot
}

// Options configures a tournament.
type Options struct {
	ID            string
	GamesPerRound int
	Seed          int64
	Rating        rating.Config
	Rules         round.Rules
	// Workers bounds concurrent series in Run; 0 runs every group at once.
	Workers int
	// DecisionTimeout overrides Rules.DecisionTimeout when positive.
	DecisionTimeout time.Duration
}

// Stats are cumulative per-player game counters.
type Stats struct {
	Games         int `json:"games"`
	Wins          int `json:"wins"`
	LandlordGames int `json:"landlord_games"`
	LandlordWins  int `json:"landlord_wins"`
	FarmerGames   int `json:"farmer_games"`
	FarmerWins    int `json:"farmer_wins"`
	ScoreSum      int `json:"score_sum"`
}

// Sub returns s - o field by field.
func (s Stats) Sub(o Stats) Stats {
	return Stats{
		Games:         s.Games - o.Games,
		Wins:          s.Wins - o.Wins,
		LandlordGames: s.LandlordGames - o.LandlordGames,
		LandlordWins:  s.LandlordWins - o.LandlordWins,
		FarmerGames:   s.FarmerGames - o.FarmerGames,
		FarmerWins:    s.FarmerWins - o.FarmerWins,
		ScoreSum:      s.ScoreSum - o.ScoreSum,
	}
}

// PlayerRecord persists across the whole tournament.
type PlayerRecord struct {
	ID                string
	Label             string
	Order             int
	Rating            rating.Rating
	Stats             Stats
	EliminatedRound   *int
	EliminationReason string
}

func (p *PlayerRecord) eliminated() bool {
	return p.EliminatedRound != nil
}

// GameSpec fixes everything needed to play one game of a series.
type GameSpec struct {
	Index  int       `json:"index"`
	GameID string    `json:"game_id"`
	Seed   int64     `json:"seed"`
	Seats  [3]string `json:"seats"`
}

// Assignment is one group series handed to a driver.
type Assignment struct {
	ID           string     `json:"id"`
	TournamentID string     `json:"tournament_id"`
	Round        int        `json:"round"`
	Group        int        `json:"group"`
	Final        bool       `json:"final"`
	Members      []string   `json:"members"`
	Games        []GameSpec `json:"games"`
}

// GameResult is what a driver reports for one game.
type GameResult struct {
	Game         int        `json:"game"`
	GameID       string     `json:"game_id"`
	Seats        [3]string  `json:"seats"`
	LandlordSeat int        `json:"landlord_seat"`
	Winner       round.Side `json:"winner"`
	Scores       [3]int     `json:"scores"`
}

// ResultFromOutcome converts an engine outcome for reporting.
func ResultFromOutcome(game int, o *round.Outcome) GameResult {
	return GameResult{
		Game:         game,
		GameID:       o.GameID,
		Seats:        o.Seats,
		LandlordSeat: o.LandlordSeat,
		Winner:       o.Winner,
		Scores:       o.Scores,
	}
}

// GameRecord is a recorded game inside a series.
type GameRecord = GameResult

// StatDelta is one member's change over a series.
type StatDelta struct {
	ID                string  `json:"id"`
	Stats             Stats   `json:"stats"`
	MuDelta           float64 `json:"mu_delta"`
	ConservativeDelta float64 `json:"conservative_delta"`
}

// GroupSummary records one completed series.
type GroupSummary struct {
	Index      int          `json:"index"`
	Members    []string     `json:"members"`
	Games      []GameRecord `json:"games"`
	Eliminated string       `json:"eliminated,omitempty"`
	StatDeltas []StatDelta  `json:"stat_deltas"`
}

// RoundSummary records one bracket round.
type RoundSummary struct {
	Number         int            `json:"number"`
	Final          bool           `json:"final"`
	AutoEliminated []string       `json:"auto_eliminated,omitempty"`
	Groups         []GroupSummary `json:"groups"`
}

// Standing is one line of the final table.
type Standing struct {
	Rank              int     `json:"rank"`
	ID                string  `json:"id"`
	Label             string  `json:"label"`
	Mu                float64 `json:"mu"`
	Sigma             float64 `json:"sigma"`
	Conservative      float64 `json:"conservative"`
	Stats             Stats   `json:"stats"`
	EliminatedRound   *int    `json:"eliminated_round"`
	EliminationReason string  `json:"elimination_reason,omitempty"`
}

// Result is the full history of a completed tournament.
type Result struct {
	TournamentID  string         `json:"tournament_id"`
	Seed          int64          `json:"seed"`
	GamesPerRound int            `json:"games_per_round"`
	Rounds        []RoundSummary `json:"rounds"`
	Standings     []Standing     `json:"standings"`
}
