// Package rating implements a Gaussian skill estimate with a team update
// for one-versus-two matches.
package rating

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by Config.Validate and NewSystem.
var ErrInvalidConfig = errors.New("invalid rating config")

// DefaultMu is the starting mean.
const DefaultMu = 1000.0

// Config holds the model parameters. Zero values are not usable; start from
// DefaultConfig or ConfigFor.
type Config struct {
	Mu0         float64 `mapstructure:"mu0"`
	Sigma0      float64 `mapstructure:"sigma0"`
	Beta        float64 `mapstructure:"beta"`
	Tau         float64 `mapstructure:"tau"`
	MinVariance float64 `mapstructure:"min_variance"`
}

// ConfigFor derives the standard parameters from a starting mean.
func ConfigFor(mu0 float64) Config {
	sigma0 := mu0 / 3
	return Config{
		Mu0:         mu0,
		Sigma0:      sigma0,
		Beta:        sigma0 / 2,
		Tau:         sigma0 / 100,
		MinVariance: 1e-4,
	}
}

// DefaultConfig is ConfigFor(DefaultMu).
func DefaultConfig() Config {
	return ConfigFor(DefaultMu)
}

// Validate rejects parameters that would break the update.
func (c Config) Validate() error {
	finite := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
	switch {
	case !finite(c.Mu0):
		return fmt.Errorf("%w: mu0 must be finite", ErrInvalidConfig)
	case !finite(c.Sigma0) || c.Sigma0 <= 0:
		return fmt.Errorf("%w: sigma0 must be positive", ErrInvalidConfig)
	case !finite(c.Beta) || c.Beta <= 0:
		return fmt.Errorf("%w: beta must be positive", ErrInvalidConfig)
	case !finite(c.Tau) || c.Tau < 0:
		return fmt.Errorf("%w: tau must not be negative", ErrInvalidConfig)
	case !finite(c.MinVariance) || c.MinVariance <= 0:
		return fmt.Errorf("%w: min variance must be positive", ErrInvalidConfig)
	}
	return nil
}

// Rating is a Gaussian skill estimate.
type Rating struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Conservative is the ranking key mu - 3 sigma.
func (r Rating) Conservative() float64 {
	return r.Mu - 3*r.Sigma
}

func (r Rating) String() string {
	return fmt.Sprintf("%.2f±%.2f", r.Mu, r.Sigma)
}

// Less reports whether a ranks below b by conservative score.
func Less(a, b Rating) bool {
	return a.Conservative() < b.Conservative()
}

// System applies updates with a fixed configuration. It holds no mutable
// state and is safe for concurrent use.
type System struct {
	cfg Config
}

// NewSystem validates cfg.
func NewSystem(cfg Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &System{cfg: cfg}, nil
}

// Config returns the parameters in use.
func (s *System) Config() Config {
	return s.cfg
}

// Initial returns the starting rating.
func (s *System) Initial() Rating {
	return Rating{Mu: s.cfg.Mu0, Sigma: s.cfg.Sigma0}
}

// UpdateTeams applies one match result in place. Every participant first has
// its variance inflated by tau squared; both teams then share one
// performance scale c.
func (s *System) UpdateTeams(winners, losers []*Rating) error {
	if len(winners) == 0 || len(losers) == 0 {
		return errors.New("rating update needs two non-empty teams")
	}

	tau2 := s.cfg.Tau * s.cfg.Tau
	var muW, muL, s2 float64
	for _, r := range winners {
		r.Sigma = math.Sqrt(r.Sigma*r.Sigma + tau2)
		muW += r.Mu
		s2 += r.Sigma * r.Sigma
	}
	for _, r := range losers {
		r.Sigma = math.Sqrt(r.Sigma*r.Sigma + tau2)
		muL += r.Mu
		s2 += r.Sigma * r.Sigma
	}

	c2 := s2 + 2*s.cfg.Beta*s.cfg.Beta
	c := math.Sqrt(c2)
	t := (muW - muL) / c
	v := vWin(t)
	w := wWin(t, v)

	apply := func(r *Rating, sign float64) {
		sigma2 := r.Sigma * r.Sigma
		r.Mu += sign * sigma2 / c * v
		sigma2 *= 1 - sigma2/c2*w
		if sigma2 < s.cfg.MinVariance {
			sigma2 = s.cfg.MinVariance
		}
		r.Sigma = math.Sqrt(sigma2)
	}
	for _, r := range winners {
		apply(r, 1)
	}
	for _, r := range losers {
		apply(r, -1)
	}
	return nil
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// vWin is the mean correction of a Gaussian truncated below zero. Deep in
// the lower tail the ratio tends to -t.
func vWin(t float64) float64 {
	denom := normCDF(t)
	if denom < 1e-300 {
		return -t
	}
	return normPDF(t) / denom
}

// wWin is the matching variance correction, always in [0, 1]. It tends to
// 1 in the lower tail.
func wWin(t, v float64) float64 {
	if normCDF(t) < 1e-300 {
		return 1
	}
	w := v * (v + t)
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
