package tournament

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/events"
)

// PlayerSnapshot captures participant data for external use.
type PlayerSnapshot struct {
	ID                string  `json:"id"`
	Label             string  `json:"label"`
	Mu                float64 `json:"mu"`
	Sigma             float64 `json:"sigma"`
	Conservative      float64 `json:"conservative"`
	Stats             Stats   `json:"stats"`
	Eliminated        bool    `json:"eliminated"`
	EliminatedRound   *int    `json:"eliminated_round,omitempty"`
	EliminationReason string  `json:"elimination_reason,omitempty"`
}

// Snapshot captures a consistent view of a tournament.
type Snapshot struct {
	ID              string           `json:"id"`
	State           State            `json:"-"`
	StateName       string           `json:"state"`
	Seed            int64            `json:"seed"`
	GamesPerRound   int              `json:"games_per_round"`
	CurrentRound    int              `json:"current_round"`
	OpenAssignments int              `json:"open_assignments"`
	Players         []PlayerSnapshot `json:"players"`
	Rounds          []RoundSummary   `json:"rounds"`
	CreateTime      time.Time        `json:"create_time"`
	StartTime       *time.Time       `json:"start_time,omitempty"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
}

// Snapshot returns a consistent copy of the tournament state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]PlayerSnapshot, 0, len(s.players))
	for _, p := range s.players {
		c := clonePlayer(p)
		players = append(players, PlayerSnapshot{
			ID:                c.ID,
			Label:             c.Label,
			Mu:                c.Rating.Mu,
			Sigma:             c.Rating.Sigma,
			Conservative:      c.Rating.Conservative(),
			Stats:             c.Stats,
			Eliminated:        c.eliminated(),
			EliminatedRound:   c.EliminatedRound,
			EliminationReason: c.EliminationReason,
		})
	}

	rounds := make([]RoundSummary, 0, len(s.rounds))
	for _, r := range s.rounds {
		rounds = append(rounds, cloneRound(r))
	}

	return Snapshot{
		ID:              s.id,
		State:           s.state,
		StateName:       s.state.String(),
		Seed:            s.opts.Seed,
		GamesPerRound:   s.opts.GamesPerRound,
		CurrentRound:    s.roundNum,
		OpenAssignments: s.openAssignments(),
		Players:         players,
		Rounds:          rounds,
		CreateTime:      s.createTime,
		StartTime:       cloneTime(s.startTime),
		EndTime:         cloneTime(s.endTime),
	}
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	cp := *src
	return &cp
}

// Manager keeps the tournaments hosted by one process.
type Manager struct {
	tournaments map[string]*Scheduler
	mu          sync.RWMutex
	logger      *zap.Logger
	bus         events.Publisher
}

// NewManager creates a new tournament manager. Every scheduler it creates
// publishes on bus.
func NewManager(logger *zap.Logger, bus events.Publisher) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		tournaments: make(map[string]*Scheduler),
		logger:      logger,
		bus:         bus,
	}
}

// Create builds and registers a scheduler.
func (m *Manager) Create(participants []Participant, opts Options) (*Scheduler, error) {
	s, err := New(participants, opts, m.logger, m.bus)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tournaments[s.ID()]; exists {
		return nil, fmt.Errorf("%w: tournament %s already exists", ErrInvalidConfig, s.ID())
	}
	m.tournaments[s.ID()] = s

	m.logger.Info("tournament created",
		zap.String("tournament_id", s.ID()),
		zap.Int("participants", len(participants)),
		zap.Int("games_per_round", opts.GamesPerRound),
	)
	return s, nil
}

// Get retrieves a tournament by ID.
func (m *Manager) Get(tournamentID string) (*Scheduler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.tournaments[tournamentID]
	return s, ok
}

// Remove drops a tournament.
func (m *Manager) Remove(tournamentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tournaments, tournamentID)

	m.logger.Info("tournament removed", zap.String("tournament_id", tournamentID))
}

// List returns snapshots of every tournament ordered by creation time.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	all := make([]*Scheduler, 0, len(m.tournaments))
	for _, s := range m.tournaments {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].CreateTime.Before(out[j].CreateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveCount returns the count of unfinished tournaments.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.tournaments {
		if s.State() != StateFinished {
			count++
		}
	}
	return count
}
