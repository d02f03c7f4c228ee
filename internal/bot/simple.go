package bot

import (
	"context"
	"math/rand"
	"sync"

	"github.com/magefree/landlord-arena/internal/combo"
	"github.com/magefree/landlord-arena/internal/round"
)

// Cautious bids low and always answers with the cheapest beat it holds.
type Cautious struct{}

func (Cautious) DecideBid(_ context.Context, v round.BidView) (round.BidDecision, error) {
	if v.Mode == round.BidModeRob {
		if v.Candidate < 0 {
			return round.Rob(), nil
		}
		return round.NoRob(), nil
	}
	if v.HighestCall == 0 {
		return round.Call(1), nil
	}
	return round.Pass(), nil
}

func (Cautious) DecidePlay(_ context.Context, v round.PlayView) (round.PlayDecision, error) {
	if v.Requirement == nil {
		if c, ok := combo.Smallest(combo.EnumerateAll(v.Hand, v.Rules)); ok {
			return play(c), nil
		}
		return round.PassMove(), nil
	}
	if c, ok := cheapest(combo.EnumerateResponses(v.Hand, v.Requirement, v.Rules)); ok {
		return play(c), nil
	}
	return round.PassMove(), nil
}

// Random picks uniformly among legal options from its own seeded source.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a random bot whose choices are fixed by seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

func (r *Random) DecideBid(_ context.Context, v round.BidView) (round.BidDecision, error) {
	if v.Mode == round.BidModeRob {
		if r.intn(2) == 0 {
			return round.Rob(), nil
		}
		return round.NoRob(), nil
	}
	if n := r.intn(v.MaxCall + 1); n > v.HighestCall {
		return round.Call(n), nil
	}
	return round.Pass(), nil
}

func (r *Random) DecidePlay(_ context.Context, v round.PlayView) (round.PlayDecision, error) {
	if v.Requirement == nil {
		options := combo.EnumerateAll(v.Hand, v.Rules)
		if len(options) == 0 {
			return round.PassMove(), nil
		}
		return play(options[r.intn(len(options))]), nil
	}
	options := combo.EnumerateResponses(v.Hand, v.Requirement, v.Rules)
	// the extra slot is a pass
	k := r.intn(len(options) + 1)
	if k == len(options) {
		return round.PassMove(), nil
	}
	return play(options[k]), nil
}

// Passive never bids and never plays; the engine substitutes every lead.
type Passive struct{}

func (Passive) DecideBid(context.Context, round.BidView) (round.BidDecision, error) {
	return round.Pass(), nil
}

func (Passive) DecidePlay(context.Context, round.PlayView) (round.PlayDecision, error) {
	return round.PassMove(), nil
}
