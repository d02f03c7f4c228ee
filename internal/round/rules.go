package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/magefree/landlord-arena/internal/combo"
)

// ErrInvalidRules is returned by Rules.Validate.
var ErrInvalidRules = errors.New("invalid round rules")

// BidMode selects the bidding protocol.
type BidMode string

const (
	// BidModeCall lets each seat pass or call 1..MaxCall once.
	BidModeCall BidMode = "call"
	// BidModeRob lets the first rob claim the landlord and later robs take it over.
	BidModeRob BidMode = "rob"
)

// RobStacking controls how successful robs change the base stake.
type RobStacking string

const (
	RobDouble RobStacking = "double"
	RobAdd    RobStacking = "add"
	RobNone   RobStacking = "none"
)

// ScoringRules holds the multiplier configuration.
type ScoringRules struct {
	RobStacking   RobStacking `mapstructure:"rob_stacking"`
	BombFactor    int         `mapstructure:"bomb_factor"`
	SpringEnabled bool        `mapstructure:"spring_enabled"`
	SpringFactor  int         `mapstructure:"spring_factor"`
	// MaxMultiplier caps the combined multiplier; 0 means uncapped.
	MaxMultiplier int `mapstructure:"max_multiplier"`
}

// Rules configures a single deal.
type Rules struct {
	Combo           combo.Rules   `mapstructure:",squash"`
	BidMode         BidMode       `mapstructure:"bid_mode"`
	MaxCall         int           `mapstructure:"max_call"`
	MaxRedeals      int           `mapstructure:"max_redeals"`
	MaxTurns        int           `mapstructure:"max_turns"`
	DecisionTimeout time.Duration `mapstructure:"decision_timeout"`
	Scoring         ScoringRules  `mapstructure:"scoring"`
}

// DefaultRules returns the standard call-mode rule set.
func DefaultRules() Rules {
	return Rules{
		Combo:           combo.DefaultRules(),
		BidMode:         BidModeCall,
		MaxCall:         3,
		MaxRedeals:      3,
		MaxTurns:        200,
		DecisionTimeout: 5 * time.Second,
		Scoring: ScoringRules{
			RobStacking:   RobDouble,
			BombFactor:    2,
			SpringEnabled: true,
			SpringFactor:  2,
		},
	}
}

// Validate rejects rule sets the engine cannot run.
func (r Rules) Validate() error {
	switch r.BidMode {
	case BidModeCall, BidModeRob:
	default:
		return fmt.Errorf("%w: unknown bid mode %q", ErrInvalidRules, r.BidMode)
	}
	if r.BidMode == BidModeCall && r.MaxCall < 1 {
		return fmt.Errorf("%w: max call must be positive", ErrInvalidRules)
	}
	if r.MaxRedeals < 0 {
		return fmt.Errorf("%w: max redeals must not be negative", ErrInvalidRules)
	}
	if r.MaxTurns < 1 {
		return fmt.Errorf("%w: max turns must be positive", ErrInvalidRules)
	}
	if r.DecisionTimeout <= 0 {
		return fmt.Errorf("%w: decision timeout must be positive", ErrInvalidRules)
	}
	switch r.Scoring.RobStacking {
	case RobDouble, RobAdd, RobNone:
	default:
		return fmt.Errorf("%w: unknown rob stacking %q", ErrInvalidRules, r.Scoring.RobStacking)
	}
	if r.Scoring.BombFactor < 1 || r.Scoring.SpringFactor < 1 {
		return fmt.Errorf("%w: multiplier factors must be at least 1", ErrInvalidRules)
	}
	if r.Scoring.MaxMultiplier < 0 {
		return fmt.Errorf("%w: max multiplier must not be negative", ErrInvalidRules)
	}
	return nil
}
