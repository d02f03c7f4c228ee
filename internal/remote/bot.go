package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/round"
)

// Directory maps participant ids to their currently connected agent. A new
// connection for the same participant replaces the old one.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger *zap.Logger
}

// NewDirectory returns an empty directory.
func NewDirectory(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{agents: make(map[string]*Agent), logger: logger}
}

// Bind makes a the agent for its participant and closes any predecessor.
func (d *Directory) Bind(a *Agent) {
	d.mu.Lock()
	prev := d.agents[a.Participant()]
	d.agents[a.Participant()] = a
	d.mu.Unlock()

	if prev != nil && prev != a {
		prev.Close()
		d.logger.Info("agent replaced", zap.String("player_id", a.Participant()))
		return
	}
	d.logger.Info("agent connected", zap.String("player_id", a.Participant()))
}

// Unbind removes a if it is still the bound agent.
func (d *Directory) Unbind(a *Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.agents[a.Participant()] == a {
		delete(d.agents, a.Participant())
		d.logger.Info("agent disconnected", zap.String("player_id", a.Participant()))
	}
}

// Get returns the agent bound to participant.
func (d *Directory) Get(participant string) (*Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[participant]
	return a, ok
}

// Connected lists bound participants in sorted order.
func (d *Directory) Connected() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.agents))
	for id := range d.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CloseAll drops every agent.
func (d *Directory) CloseAll() {
	d.mu.Lock()
	agents := d.agents
	d.agents = make(map[string]*Agent)
	d.mu.Unlock()
	for _, a := range agents {
		a.Close()
	}
}

// Bot returns a round.Bot that forwards decisions to whichever agent is
// bound to participant at call time.
func (d *Directory) Bot(participant string, timeout time.Duration) *Bot {
	return &Bot{dir: d, participant: participant, timeout: timeout}
}

// Bot is the engine-side stand-in for a remote agent. Every failure is
// returned as an error, which the engine turns into a fallback move.
type Bot struct {
	dir         *Directory
	participant string
	timeout     time.Duration
}

func (b *Bot) DecideBid(ctx context.Context, view round.BidView) (round.BidDecision, error) {
	var d round.BidDecision
	err := b.request(ctx, MsgDecideBid, view, &d)
	return d, err
}

func (b *Bot) DecidePlay(ctx context.Context, view round.PlayView) (round.PlayDecision, error) {
	var d round.PlayDecision
	err := b.request(ctx, MsgDecidePlay, view, &d)
	return d, err
}

func (b *Bot) request(ctx context.Context, msgType string, view any, out any) error {
	agent, ok := b.dir.Get(b.participant)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotConnected, b.participant)
	}
	raw, err := agent.Request(ctx, msgType, view, b.timeout)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
