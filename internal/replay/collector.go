package replay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/events"
)

// Collector builds a Replay from a live event stream. Subscribe Listener to
// the bus before the tournament starts.
type Collector struct {
	mu           sync.Mutex
	tournamentID string
	series       []events.Event
	games        []*GameLog
	index        map[string]*GameLog
	logger       *zap.Logger
}

// NewCollector records events of tournamentID; an empty id adopts the first
// tournament seen.
func NewCollector(tournamentID string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		tournamentID: tournamentID,
		index:        make(map[string]*GameLog),
		logger:       logger,
	}
}

// Publish implements events.Publisher.
func (c *Collector) Publish(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.TournamentID == "" {
		return
	}
	if c.tournamentID == "" {
		c.tournamentID = e.TournamentID
	}
	if e.TournamentID != c.tournamentID {
		return
	}

	if e.GameID == "" {
		c.series = append(c.series, e)
		return
	}
	g, ok := c.index[e.GameID]
	if !ok {
		g = &GameLog{GameID: e.GameID, Round: e.Round, Group: e.Group, Game: e.Game}
		c.index[e.GameID] = g
		c.games = append(c.games, g)
		c.logger.Debug("recording game",
			zap.String("tournament_id", e.TournamentID),
			zap.String("game_id", e.GameID),
			zap.Int("round", e.Round),
			zap.Int("group", e.Group),
			zap.Int("game", e.Game),
		)
	}
	g.Events = append(g.Events, e)
}

// Listener adapts the collector for EventBus.Subscribe.
func (c *Collector) Listener() events.Listener {
	return c.Publish
}

// Replay returns a copy of everything collected so far.
func (c *Collector) Replay() *Replay {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := New(c.tournamentID)
	r.Series = append([]events.Event(nil), c.series...)
	r.Games = make([]*GameLog, len(c.games))
	for i, g := range c.games {
		cp := *g
		cp.Events = append([]events.Event(nil), g.Events...)
		r.Games[i] = &cp
	}
	return r
}

// Len returns the number of games seen.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.games)
}
