package tournament

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/magefree/landlord-arena/internal/round"
)

// Run plays the whole tournament with the participants' bots and returns the
// result. Series of a round run concurrently, bounded by Options.Workers;
// results are applied in group order afterwards so that the outcome only
// depends on the seed.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	bots := make(map[string]round.Bot, len(s.participants))
	for _, p := range s.participants {
		if p.Bot == nil {
			return nil, fmt.Errorf("%w: participant %q has no bot", ErrInvalidConfig, p.ID)
		}
		bots[p.ID] = p.Bot
	}

	for {
		batch, err := s.drainRound()
		if errors.Is(err, ErrTournamentComplete) {
			return s.Result()
		}
		if err != nil {
			return nil, err
		}

		results := make([][]GameResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		if s.opts.Workers > 0 {
			g.SetLimit(s.opts.Workers)
		}
		for i, a := range batch {
			i, a := i, a
			g.Go(func() error {
				res, err := s.playSeries(gctx, a, bots)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, a := range batch {
			for _, res := range results[i] {
				if err := s.RecordGame(a.ID, res); err != nil {
					return nil, err
				}
			}
			if err := s.CompleteAssignment(a.ID); err != nil {
				return nil, err
			}
		}
	}
}

// drainRound collects every outstanding assignment of the current round.
func (s *Scheduler) drainRound() ([]*Assignment, error) {
	var batch []*Assignment
	for {
		a, err := s.NextAssignment()
		switch {
		case errors.Is(err, ErrNoAssignment):
			if len(batch) == 0 {
				return nil, fmt.Errorf("round has open series outside this run: %w", err)
			}
			return batch, nil
		case err != nil:
			return nil, err
		}
		batch = append(batch, a)
	}
}

func (s *Scheduler) playSeries(ctx context.Context, a *Assignment, bots map[string]round.Bot) ([]GameResult, error) {
	logger := s.logger.With(zap.Int("round", a.Round), zap.Int("group", a.Group))
	out := make([]GameResult, 0, len(a.Games))

	for _, spec := range a.Games {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var seats [3]round.Seat
		for i, id := range spec.Seats {
			seats[i] = round.Seat{PlayerID: id, Bot: bots[id]}
		}
		engine, err := round.NewEngine(round.Config{
			GameID:       spec.GameID,
			TournamentID: a.TournamentID,
			Round:        a.Round,
			Group:        a.Group,
			Game:         spec.Index,
			Seats:        seats,
			Seed:         spec.Seed,
			Rules:        s.rules,
		}, logger, s.bus)
		if err != nil {
			return nil, err
		}
		outcome, err := engine.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("round %d group %d game %d: %w", a.Round, a.Group, spec.Index, err)
		}
		out = append(out, ResultFromOutcome(spec.Index, outcome))
	}
	return out, nil
}
