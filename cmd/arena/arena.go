package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/bot"
	"github.com/magefree/landlord-arena/internal/config"
	"github.com/magefree/landlord-arena/internal/events"
	"github.com/magefree/landlord-arena/internal/remote"
	"github.com/magefree/landlord-arena/internal/replay"
	"github.com/magefree/landlord-arena/internal/repository"
	"github.com/magefree/landlord-arena/internal/tournament"
)

var errRemoteNeedsServer = errors.New("remote participants require the serve command")

// arena holds the components shared by run and serve.
type arena struct {
	cfg     *config.Config
	logger  *zap.Logger
	bus     *events.EventBus
	manager *tournament.Manager
	agents  *remote.Directory
}

func newArena(cfg *config.Config, logger *zap.Logger, agents *remote.Directory) *arena {
	bus := events.NewEventBus()
	return &arena{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		manager: tournament.NewManager(logger.Named("tournament"), bus),
		agents:  agents,
	}
}

// participants binds every configured entrant to a bot. Remote entrants are
// only available when an agent directory exists.
func (a *arena) participants() ([]tournament.Participant, error) {
	out := make([]tournament.Participant, 0, len(a.cfg.Participants))
	for i, p := range a.cfg.Participants {
		label := p.Label
		if label == "" {
			label = p.ID
		}

		if p.Kind == config.KindRemote {
			if a.agents == nil {
				return nil, fmt.Errorf("participant %q: %w", p.ID, errRemoteNeedsServer)
			}
			out = append(out, tournament.Participant{ID: p.ID, Label: label, Bot: a.agents.Bot(p.ID, 0)})
			continue
		}

		kind, err := bot.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("participant %q: %w", p.ID, err)
		}
		seed := p.Seed
		if seed == 0 {
			seed = a.cfg.Tournament.Seed + int64(i) + 1
		}
		b, err := bot.New(kind, seed)
		if err != nil {
			return nil, fmt.Errorf("participant %q: %w", p.ID, err)
		}
		out = append(out, tournament.Participant{ID: p.ID, Label: label, Bot: b})
	}
	return out, nil
}

func (a *arena) options() tournament.Options {
	tc := a.cfg.Tournament
	return tournament.Options{
		ID:              tc.ID,
		GamesPerRound:   tc.GamesPerRound,
		Seed:            tc.Seed,
		Rating:          a.cfg.Rating,
		Rules:           a.cfg.Rules,
		Workers:         tc.Workers,
		DecisionTimeout: tc.DecisionTimeout,
	}
}

// remoteIDs lists the participants played by agents.
func (a *arena) remoteIDs() []string {
	var ids []string
	for _, p := range a.cfg.Participants {
		if p.Kind == config.KindRemote {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// waitForAgents blocks until every remote participant is connected or wait
// elapses.
func (a *arena) waitForAgents(ctx context.Context, wait time.Duration) error {
	ids := a.remoteIDs()
	if len(ids) == 0 || a.agents == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var missing []string
		for _, id := range ids {
			if _, ok := a.agents.Get(id); !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("agents not connected %v: %w", missing, ctx.Err())
		case <-ticker.C:
		}
	}
}

// play runs the configured tournament to completion and archives the result.
func (a *arena) play(ctx context.Context) (*tournament.Result, error) {
	ps, err := a.participants()
	if err != nil {
		return nil, err
	}
	s, err := a.manager.Create(ps, a.options())
	if err != nil {
		return nil, err
	}

	var collector *replay.Collector
	if a.cfg.Replay.Enabled {
		collector = replay.NewCollector(s.ID(), a.logger.Named("replay"))
		handle := a.bus.Subscribe(collector.Listener())
		defer a.bus.Unsubscribe(handle)
	}

	start := time.Now()
	res, err := s.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("tournament %s: %w", s.ID(), err)
	}
	a.logger.Info("tournament finished",
		zap.String("tournament_id", res.TournamentID),
		zap.Int("rounds", len(res.Rounds)),
		zap.String("fingerprint", res.Fingerprint()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if collector != nil {
		path, err := collector.Replay().SaveToFile(a.cfg.Replay.Dir)
		if err != nil {
			return res, fmt.Errorf("save replay: %w", err)
		}
		a.logger.Info("replay saved", zap.String("path", path), zap.Int("games", collector.Len()))
	}

	if a.cfg.Database.Enabled() {
		if err := a.store(ctx, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (a *arena) store(ctx context.Context, res *tournament.Result) error {
	db, err := repository.NewDB(ctx, a.cfg.Database, a.logger.Named("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	repo := db.Results()
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	return repo.Save(ctx, res)
}

func printStandings(w io.Writer, res *tournament.Result) error {
	fmt.Fprintf(w, "tournament %s (seed %d, %d games per series)\n", res.TournamentID, res.Seed, res.GamesPerRound)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tMU\tSIGMA\tGAMES\tWINS\tOUT")
	for _, s := range res.Standings {
		out := "-"
		if s.EliminatedRound != nil {
			out = fmt.Sprintf("r%d %s", *s.EliminatedRound, s.EliminationReason)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%.1f\t%d\t%d\t%s\n",
			s.Rank, s.Label, s.Conservative, s.Mu, s.Sigma, s.Stats.Games, s.Stats.Wins, out)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "fingerprint %s\n", res.Fingerprint())
	return err
}
