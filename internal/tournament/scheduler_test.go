package tournament

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magefree/landlord-arena/internal/combo"
	"github.com/magefree/landlord-arena/internal/events"
	"github.com/magefree/landlord-arena/internal/rating"
	"github.com/magefree/landlord-arena/internal/round"
)

// eagerBot outbids whenever it can and plays the smallest legal option.
func eagerBot() round.Bot {
	return round.Funcs{
		Bid: func(_ context.Context, v round.BidView) (round.BidDecision, error) {
			if v.HighestCall < v.MaxCall {
				return round.Call(v.HighestCall + 1), nil
			}
			return round.Pass(), nil
		},
		Play: func(_ context.Context, v round.PlayView) (round.PlayDecision, error) {
			c, ok := combo.Smallest(v.Options())
			if !ok {
				return round.PassMove(), nil
			}
			return round.PlayCards(c.Cards), nil
		},
	}
}

func participants(n int) []Participant {
	out := make([]Participant, n)
	for i := range out {
		out[i] = Participant{ID: fmt.Sprintf("p%d", i+1), Bot: eagerBot()}
	}
	return out
}

func options(seed int64, games int) Options {
	return Options{
		ID:              "00000000-0000-0000-0000-000000000001",
		GamesPerRound:   games,
		Seed:            seed,
		DecisionTimeout: 2 * time.Second,
	}
}

func TestSixPlayerBracket(t *testing.T) {
	rec := events.NewRecorder()
	bus := events.NewEventBus()
	bus.Subscribe(rec.Listener())

	s, err := New(participants(6), options(1, 2), nil, bus)
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Rounds, 3)

	first := res.Rounds[0]
	assert.False(t, first.Final)
	assert.Empty(t, first.AutoEliminated)
	require.Len(t, first.Groups, 2)
	for _, g := range first.Groups {
		assert.Len(t, g.Members, 3)
		assert.Len(t, g.Games, 2)
		assert.NotEmpty(t, g.Eliminated)
		assert.Len(t, g.StatDeltas, 3)
		for k, game := range g.Games {
			rot := k % 3
			assert.Equal(t, [3]string{g.Members[rot], g.Members[(rot+1)%3], g.Members[(rot+2)%3]}, game.Seats)
		}
	}

	second := res.Rounds[1]
	assert.False(t, second.Final)
	assert.Len(t, second.AutoEliminated, 1)
	assert.Empty(t, second.Groups)

	final := res.Rounds[2]
	assert.True(t, final.Final)
	require.Len(t, final.Groups, 1)
	assert.Empty(t, final.Groups[0].Eliminated)

	require.Len(t, res.Standings, 6)
	counts := map[string]int{}
	for i, st := range res.Standings {
		assert.Equal(t, i+1, st.Rank)
		switch {
		case st.EliminatedRound == nil:
			counts["survivor"]++
			assert.Empty(t, st.EliminationReason)
		case *st.EliminatedRound == 1:
			counts["round1"]++
			assert.Equal(t, ReasonLowestRating, st.EliminationReason)
		case *st.EliminatedRound == 2:
			counts["round2"]++
			assert.Equal(t, ReasonInsufficientSlots, st.EliminationReason)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, res.Standings[i-1].Conservative, st.Conservative)
		}
	}
	assert.Equal(t, map[string]int{"survivor": 3, "round1": 2, "round2": 1}, counts)

	games := 0
	for _, st := range res.Standings {
		games += st.Stats.Games
		assert.Equal(t, st.Stats.Games, st.Stats.LandlordGames+st.Stats.FarmerGames)
		assert.Equal(t, st.Stats.Wins, st.Stats.LandlordWins+st.Stats.FarmerWins)
	}
	// Two series of two games in round one, one series in the final.
	assert.Equal(t, 3*(2*2+2), games)

	t.Run("event stream", func(t *testing.T) {
		all := rec.Events()
		require.NotEmpty(t, all)
		assert.Equal(t, events.EventTournamentStart, all[0].Type)
		assert.Equal(t, events.EventTournamentEnd, all[len(all)-1].Type)
		assert.Equal(t, res.Standings[0].ID, all[len(all)-1].PlayerID)

		assert.Len(t, rec.OfType(events.EventRoundStart), 3)
		assert.Len(t, rec.OfType(events.EventRoundEnd), 3)
		assert.Len(t, rec.OfType(events.EventSeriesStart), 3)
		assert.Len(t, rec.OfType(events.EventSeriesEnd), 3)
		assert.Len(t, rec.OfType(events.EventEliminated), 3)
		assert.Len(t, rec.OfType(events.EventFinish), 6)
	})

	t.Run("result is frozen", func(t *testing.T) {
		again, err := s.Result()
		require.NoError(t, err)
		assert.Equal(t, res.Fingerprint(), again.Fingerprint())

		_, err = s.NextAssignment()
		assert.ErrorIs(t, err, ErrTournamentComplete)
		assert.Equal(t, StateFinished, s.State())
	})
}

func TestRunIsDeterministic(t *testing.T) {
	run := func(workers int) *Result {
		opts := options(42, 3)
		opts.ID = ""
		opts.Workers = workers
		s, err := New(participants(9), opts, nil, nil)
		require.NoError(t, err)
		res, err := s.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	a, b, serial := run(0), run(0), run(1)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Fingerprint(), serial.Fingerprint())
	assert.NotEqual(t, a.TournamentID, b.TournamentID)

	other := func() *Result {
		s, err := New(participants(9), options(43, 3), nil, nil)
		require.NoError(t, err)
		res, err := s.Run(context.Background())
		require.NoError(t, err)
		return res
	}()
	assert.NotEqual(t, a.Fingerprint(), other.Fingerprint())
}

func TestIncrementalMatchesRun(t *testing.T) {
	blocking, err := New(participants(7), options(5, 2), nil, nil)
	require.NoError(t, err)
	want, err := blocking.Run(context.Background())
	require.NoError(t, err)

	s, err := New(participants(7), options(5, 2), nil, nil)
	require.NoError(t, err)
	bots := map[string]round.Bot{}
	for _, p := range participants(7) {
		bots[p.ID] = p.Bot
	}

	for {
		a, err := s.NextAssignment()
		if errors.Is(err, ErrTournamentComplete) {
			break
		}
		require.NoError(t, err)

		for _, spec := range a.Games {
			var seats [3]round.Seat
			for i, id := range spec.Seats {
				seats[i] = round.Seat{PlayerID: id, Bot: bots[id]}
			}
			e, err := round.NewEngine(round.Config{GameID: spec.GameID, Seats: seats, Seed: spec.Seed, Rules: s.rules}, nil, nil)
			require.NoError(t, err)
			out, err := e.Run(context.Background())
			require.NoError(t, err)
			require.NoError(t, s.RecordGame(a.ID, ResultFromOutcome(spec.Index, out)))
		}
		require.NoError(t, s.CompleteAssignment(a.ID))
	}

	got, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, want.Fingerprint(), got.Fingerprint())
	assert.Equal(t, want.Standings, got.Standings)
}

func TestAssignmentProtocol(t *testing.T) {
	s, err := New(participants(6), options(9, 2), nil, nil)
	require.NoError(t, err)

	_, err = s.Result()
	assert.ErrorIs(t, err, ErrTournamentIncomplete)
	assert.Equal(t, StateWaiting, s.State())

	a, err := s.NextAssignment()
	require.NoError(t, err)
	assert.Equal(t, 1, a.Round)
	assert.Equal(t, 0, a.Group)
	assert.False(t, a.Final)
	assert.Equal(t, StateInProgress, s.State())

	b, err := s.NextAssignment()
	require.NoError(t, err)
	assert.Equal(t, 1, b.Group)

	_, err = s.NextAssignment()
	assert.ErrorIs(t, err, ErrNoAssignment, "round two waits for round one")

	spec := a.Games[0]
	valid := GameResult{Game: 0, Seats: spec.Seats, LandlordSeat: 0, Winner: round.SideLandlord, Scores: [3]int{2, -1, -1}}

	t.Run("unknown assignment", func(t *testing.T) {
		assert.ErrorIs(t, s.RecordGame("nope", valid), ErrUnknownAssignment)
		assert.ErrorIs(t, s.CompleteAssignment("nope"), ErrUnknownAssignment)
		assert.Equal(t, 2, s.Snapshot().OpenAssignments)
	})

	t.Run("invalid results", func(t *testing.T) {
		bad := []GameResult{
			{Game: 1, Seats: spec.Seats, Winner: round.SideLandlord, Scores: [3]int{2, -1, -1}},
			{Game: 0, Seats: [3]string{"x", "y", "z"}, Winner: round.SideLandlord, Scores: [3]int{2, -1, -1}},
			{Game: 0, Seats: spec.Seats, LandlordSeat: 3, Winner: round.SideLandlord, Scores: [3]int{2, -1, -1}},
			{Game: 0, Seats: spec.Seats, Winner: "nobody", Scores: [3]int{2, -1, -1}},
			{Game: 0, Seats: spec.Seats, Winner: round.SideLandlord, Scores: [3]int{2, -1, 0}},
		}
		for i, r := range bad {
			assert.ErrorIs(t, s.RecordGame(a.ID, r), ErrInvalidResult, "case %d", i)
		}
	})

	t.Run("incomplete series", func(t *testing.T) {
		require.NoError(t, s.RecordGame(a.ID, valid))
		assert.ErrorIs(t, s.CompleteAssignment(a.ID), ErrSeriesIncomplete)
	})

	t.Run("series complete", func(t *testing.T) {
		next := a.Games[1]
		farmers := GameResult{Game: 1, Seats: next.Seats, LandlordSeat: 2, Winner: round.SideFarmers, Scores: [3]int{1, 1, -2}}
		require.NoError(t, s.RecordGame(a.ID, farmers))
		assert.ErrorIs(t, s.RecordGame(a.ID, farmers), ErrInvalidResult, "series is full")
		require.NoError(t, s.CompleteAssignment(a.ID))
		assert.ErrorIs(t, s.CompleteAssignment(a.ID), ErrAssignmentClosed, "closed once")
		assert.ErrorIs(t, s.RecordGame(a.ID, valid), ErrAssignmentClosed)

		snap := s.Snapshot()
		assert.Equal(t, 1, snap.OpenAssignments)
		assert.Equal(t, "IN_PROGRESS", snap.StateName)
		eliminated := 0
		for _, p := range snap.Players {
			if p.Eliminated {
				eliminated++
			}
		}
		assert.Equal(t, 1, eliminated)
	})
}

func TestGameSpecs(t *testing.T) {
	s, err := New(participants(3), options(3, 5), nil, nil)
	require.NoError(t, err)
	a, err := s.NextAssignment()
	require.NoError(t, err)
	assert.True(t, a.Final)
	require.Len(t, a.Games, 5)

	ids := map[string]bool{}
	seeds := map[int64]bool{}
	for k, g := range a.Games {
		assert.Equal(t, k, g.Index)
		ids[g.GameID] = true
		seeds[g.Seed] = true
	}
	assert.Len(t, ids, 5)
	assert.Len(t, seeds, 5)
	assert.Equal(t, a.Games[0].Seats, a.Games[3].Seats)

	// Same tournament id and seed give the same specs.
	twin, err := New(participants(3), options(3, 5), nil, nil)
	require.NoError(t, err)
	b, err := twin.NextAssignment()
	require.NoError(t, err)
	assert.Equal(t, a.Games, b.Games)
	assert.Equal(t, a.ID, b.ID)
}

func TestNewValidation(t *testing.T) {
	dup := participants(3)
	dup[2].ID = dup[0].ID
	blank := participants(3)
	blank[1].ID = " "
	badRating := options(1, 1)
	badRating.Rating = rating.Config{Mu0: 1000, Sigma0: -1, Beta: 1}
	zeroGames := options(1, 0)

	tests := []struct {
		name         string
		participants []Participant
		opts         Options
	}{
		{"too few", participants(2), options(1, 1)},
		{"duplicate id", dup, options(1, 1)},
		{"blank id", blank, options(1, 1)},
		{"zero games", participants(3), zeroGames},
		{"bad rating", participants(3), badRating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.participants, tt.opts, nil, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("run needs bots", func(t *testing.T) {
		ps := participants(3)
		ps[1].Bot = nil
		s, err := New(ps, options(1, 1), nil, nil)
		require.NoError(t, err)
		_, err = s.Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := New(participants(3), options(1, 3), nil, nil)
	require.NoError(t, err)
	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLowestTieBreak(t *testing.T) {
	a := &PlayerRecord{ID: "a", Order: 0, Rating: rating.Rating{Mu: 1000, Sigma: 100}}
	b := &PlayerRecord{ID: "b", Order: 1, Rating: rating.Rating{Mu: 1000, Sigma: 100}}
	c := &PlayerRecord{ID: "c", Order: 2, Rating: rating.Rating{Mu: 1200, Sigma: 100}}

	got := lowest([]*PlayerRecord{a, b, c}, 1)
	assert.Equal(t, "b", got[0].ID, "ties eliminate the later entrant")
}

func TestManager(t *testing.T) {
	m := NewManager(nil, nil)

	s, err := m.Create(participants(3), options(1, 1))
	require.NoError(t, err)
	_, err = m.Create(participants(3), options(1, 1))
	assert.ErrorIs(t, err, ErrInvalidConfig, "duplicate id")

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.ActiveCount())

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.ActiveCount())

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, StateFinished, list[0].State)
	assert.NotNil(t, list[0].StartTime)
	assert.NotNil(t, list[0].EndTime)

	m.Remove(s.ID())
	_, ok = m.Get(s.ID())
	assert.False(t, ok)
}
