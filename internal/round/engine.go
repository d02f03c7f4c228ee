// Package round runs a single deal: bidding, play and scoring.
package round

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/cards"
	"github.com/magefree/landlord-arena/internal/combo"
	"github.com/magefree/landlord-arena/internal/events"
)

var (
	// ErrCardAccounting signals that hands, bottom and played cards no longer
	// reconcile to the deck. It is an engine defect and aborts the round.
	ErrCardAccounting = errors.New("card accounting mismatch")
	// ErrTurnLimit signals that play did not converge within MaxTurns.
	ErrTurnLimit = errors.New("turn limit exceeded")
	// ErrInvalidSeats is returned when a seat has no bot bound.
	ErrInvalidSeats = errors.New("invalid seats")
)

// Phase is the engine state.
type Phase int

const (
	PhaseBidding Phase = iota
	PhasePlaying
	PhaseScoring
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseBidding:
		return "bidding"
	case PhasePlaying:
		return "playing"
	case PhaseScoring:
		return "scoring"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Seat binds a participant to one of the three positions.
type Seat struct {
	PlayerID string
	Bot      Bot
}

// Config describes one deal. Tournament coordinates are only used to label
// events.
type Config struct {
	GameID       string
	TournamentID string
	Round        int
	Group        int
	Game         int
	Seats        [3]Seat
	Seed         int64
	Rules        Rules
}

// Outcome is the complete record of a finished deal.
type Outcome struct {
	GameID       string
	Seats        [3]string
	LandlordSeat int
	Winner       Side
	WinnerSeat   int
	Redeals      int
	Bombs        int
	Turns        int
	Fallbacks    int
	Settlement
	Bids   []BidRecord
	Plays  []PlayRecord
	Events []events.Event
}

// Won reports whether the seat is on the winning side.
func (o *Outcome) Won(seat int) bool {
	if seat == o.LandlordSeat {
		return o.Winner == SideLandlord
	}
	return o.Winner == SideFarmers
}

// Engine is the per-deal state machine. An Engine runs once.
type Engine struct {
	cfg    Config
	rules  Rules
	logger *zap.Logger
	bus    events.Publisher
	rng    *rand.Rand

	mu    sync.Mutex
	phase Phase

	hands          [3]cards.Hand
	bottom         cards.Hand
	bottomAssigned bool
	played         []cards.Card

	landlord    int
	turn        int
	requirement *combo.Combo
	passes      int
	lastPlay    int
	trick       int
	turns       int

	bids      []BidRecord
	plays     []PlayRecord
	seatPlays [3][]cards.Card
	seatMoves [3]int
	bombs     int
	fallbacks int
	redeals   int
	eventLog  []events.Event
}

// NewEngine validates the configuration and prepares a deal. A nil bus
// discards events.
func NewEngine(cfg Config, logger *zap.Logger, bus events.Publisher) (*Engine, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	for i, s := range cfg.Seats {
		if s.Bot == nil {
			return nil, fmt.Errorf("%w: seat %d has no bot", ErrInvalidSeats, i)
		}
	}
	if cfg.GameID == "" {
		cfg.GameID = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.Discard
	}
	return &Engine{
		cfg:    cfg,
		rules:  cfg.Rules,
		logger: logger.With(zap.String("game_id", cfg.GameID)),
		bus:    bus,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Phase returns the current state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Run plays the deal to completion. Bot misbehaviour never surfaces as an
// error; only cancellation of ctx and engine defects do. Events emitted
// before a failure stay valid.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	start := e.event(events.EventGameStart, -1)
	for i, s := range e.cfg.Seats {
		start.Metadata["seat_"+strconv.Itoa(i)] = s.PlayerID
	}
	e.emit(start)

	e.setPhase(PhaseBidding)
	highest, robs, err := e.runBidding(ctx)
	if err != nil {
		return nil, err
	}

	e.setPhase(PhasePlaying)
	winnerSeat, err := e.runPlay(ctx)
	if err != nil {
		e.logger.Error("round aborted", zap.Error(err), zap.Int("turns", e.turns))
		return nil, err
	}

	e.setPhase(PhaseScoring)
	winner := SideFarmers
	if winnerSeat == e.landlord {
		winner = SideLandlord
	}
	settlement := settle(e.rules.Scoring, baseStake(e.rules, highest, robs), e.landlord, winner, e.bombs, e.seatMoves)

	finish := e.event(events.EventFinish, winnerSeat)
	finish.Description = string(winner)
	e.emit(finish)
	for seat, score := range settlement.Scores {
		ev := e.event(events.EventScore, seat).WithAmount(score)
		ev.Metadata["multiplier"] = strconv.Itoa(settlement.Multiplier)
		e.emit(ev)
	}
	e.setPhase(PhaseDone)

	out := &Outcome{
		GameID:       e.cfg.GameID,
		LandlordSeat: e.landlord,
		Winner:       winner,
		WinnerSeat:   winnerSeat,
		Redeals:      e.redeals,
		Bombs:        e.bombs,
		Turns:        e.turns,
		Fallbacks:    e.fallbacks,
		Settlement:   settlement,
		Bids:         cloneBids(e.bids),
		Plays:        clonePlays(e.plays),
		Events:       append([]events.Event(nil), e.eventLog...),
	}
	for i, s := range e.cfg.Seats {
		out.Seats[i] = s.PlayerID
	}
	return out, nil
}

// runBidding deals, polls the seats and redeals when everyone passes. After
// MaxRedeals failed deals seat 0 takes the landlord at stake 1.
func (e *Engine) runBidding(ctx context.Context) (highest, robs int, err error) {
	for attempt := 0; ; attempt++ {
		if err := e.deal(); err != nil {
			return 0, 0, err
		}

		var landlord int
		var ok bool
		if e.rules.BidMode == BidModeRob {
			landlord, robs, ok, err = e.robBidding(ctx)
			highest = 1
		} else {
			landlord, highest, ok, err = e.callBidding(ctx)
		}
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return highest, robs, e.assignLandlord(landlord, highest)
		}
		if attempt >= e.rules.MaxRedeals {
			e.logger.Debug("all seats passed, assigning default landlord", zap.Int("redeals", e.redeals))
			return 1, 0, e.assignLandlord(0, 1)
		}
		e.redeals++
	}
}

func (e *Engine) callBidding(ctx context.Context) (landlord, highest int, ok bool, err error) {
	landlord = -1
	for seat := 0; seat < 3; seat++ {
		d, err := e.askBid(ctx, seat, highest, landlord)
		if err != nil {
			return 0, 0, false, err
		}
		// ties go to the earlier declaration
		if d.Kind == BidCall && d.Call > highest {
			highest, landlord = d.Call, seat
		}
		if highest == e.rules.MaxCall {
			break
		}
	}
	return landlord, highest, landlord >= 0, nil
}

func (e *Engine) robBidding(ctx context.Context) (landlord, robs int, ok bool, err error) {
	landlord, first := -1, -1
	for seat := 0; seat < 3; seat++ {
		d, err := e.askBid(ctx, seat, 0, landlord)
		if err != nil {
			return 0, 0, false, err
		}
		if d.Kind != BidRob {
			continue
		}
		if landlord < 0 {
			first = seat
		} else {
			robs++
		}
		landlord = seat
	}
	// the first caller may take the candidacy back once
	if first >= 0 && landlord != first {
		d, err := e.askBid(ctx, first, 0, landlord)
		if err != nil {
			return 0, 0, false, err
		}
		if d.Kind == BidRob {
			landlord = first
			robs++
		}
	}
	return landlord, robs, landlord >= 0, nil
}

// askBid polls one seat and returns the validated decision; anything
// invalid becomes a pass.
func (e *Engine) askBid(ctx context.Context, seat, highest, candidate int) (BidDecision, error) {
	view := BidView{
		GameID:      e.cfg.GameID,
		Seat:        seat,
		Hand:        e.hands[seat].Clone(),
		Mode:        e.rules.BidMode,
		MaxCall:     e.rules.MaxCall,
		HighestCall: highest,
		Candidate:   candidate,
		Bids:        cloneBids(e.bids),
	}
	bot := e.cfg.Seats[seat].Bot
	d, err := ask(ctx, e.rules.DecisionTimeout, func(c context.Context) (BidDecision, error) {
		return bot.DecideBid(c, view)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return BidDecision{}, ctxErr
	}

	reason := ""
	switch {
	case err != nil:
		reason = failureReason(err)
	case d.Validate(e.rules.BidMode, e.rules.MaxCall) != nil:
		reason = "malformed"
	}
	rec := BidRecord{Seat: seat, Decision: d}
	if reason != "" {
		e.fallbacks++
		e.logger.Debug("bid replaced by pass",
			zap.Int("seat", seat),
			zap.String("player_id", e.cfg.Seats[seat].PlayerID),
			zap.String("reason", reason),
			zap.Error(err))
		rec = BidRecord{Seat: seat, Decision: Pass(), Fallback: true}
	}
	e.bids = append(e.bids, rec)

	ev := e.event(events.EventBid, seat).WithAmount(rec.Decision.Call)
	ev.Description = rec.Decision.String()
	if reason != "" {
		ev.Metadata["fallback"] = reason
	}
	e.emit(ev)
	return rec.Decision, nil
}

func (e *Engine) deal() error {
	e.hands, e.bottom = cards.Deal(e.rng)
	e.bottomAssigned = false
	e.played = nil
	e.bids = nil
	for seat := range e.hands {
		e.emit(e.event(events.EventDeal, seat).WithCards(e.hands[seat]))
	}
	return e.checkAccounting()
}

func (e *Engine) assignLandlord(seat, call int) error {
	e.landlord = seat
	hand := append(e.hands[seat].Clone(), e.bottom...)
	hand.Sort()
	e.hands[seat] = hand
	e.bottomAssigned = true

	ev := e.event(events.EventLandlord, seat).WithCards(e.bottom).WithAmount(call)
	e.emit(ev)
	e.logger.Debug("landlord chosen", zap.Int("seat", seat), zap.Int("call", call))
	return e.checkAccounting()
}

func (e *Engine) runPlay(ctx context.Context) (int, error) {
	e.turn = e.landlord
	e.lastPlay = e.landlord
	e.trick = 1
	e.requirement = nil

	for e.turns = 0; ; {
		if e.turns >= e.rules.MaxTurns {
			return -1, fmt.Errorf("%w: %d turns", ErrTurnLimit, e.turns)
		}
		e.turns++

		seat := e.turn
		view := e.playView(seat)
		bot := e.cfg.Seats[seat].Bot
		d, err := ask(ctx, e.rules.DecisionTimeout, func(c context.Context) (PlayDecision, error) {
			return bot.DecidePlay(c, view)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, ctxErr
		}

		move, reason := e.resolvePlay(seat, d, err)
		if reason != "" {
			e.fallbacks++
			e.logger.Debug("play replaced by fallback",
				zap.Int("seat", seat),
				zap.String("player_id", e.cfg.Seats[seat].PlayerID),
				zap.String("reason", reason),
				zap.Stringer("substitute", move),
				zap.Error(err))
		}
		e.plays = append(e.plays, PlayRecord{Seat: seat, Trick: e.trick, Combo: move.Clone(), Fallback: reason != "", Reason: reason})

		if move.IsPass() {
			ev := e.event(events.EventPass, seat)
			if reason != "" {
				ev.Metadata["fallback"] = reason
			}
			e.emit(ev)

			e.passes++
			if e.passes >= 2 {
				e.requirement = nil
				e.passes = 0
				e.turn = e.lastPlay
				e.trick++
				reset := e.event(events.EventTrickReset, e.lastPlay).WithAmount(e.trick)
				e.emit(reset)
			} else {
				e.turn = next(seat)
			}
			continue
		}

		rest, err := e.hands[seat].Without(move.Cards)
		if err != nil {
			return -1, fmt.Errorf("%w: seat %d: %v", ErrCardAccounting, seat, err)
		}
		e.hands[seat] = rest
		e.played = append(e.played, move.Cards...)
		e.seatPlays[seat] = append(e.seatPlays[seat], move.Cards...)
		e.seatMoves[seat]++
		if move.Type == combo.Bomb || move.Type == combo.Rocket {
			e.bombs++
		}
		req := move.Clone()
		e.requirement = &req
		e.lastPlay = seat
		e.passes = 0

		ev := e.event(events.EventPlay, seat).WithCards(move.Cards).WithAmount(len(rest))
		ev.Combo = move.Type.String()
		if reason != "" {
			ev.Metadata["fallback"] = reason
		}
		e.emit(ev)

		if err := e.checkAccounting(); err != nil {
			return -1, err
		}
		if len(rest) == 0 {
			return seat, nil
		}
		e.turn = next(seat)
	}
}

// resolvePlay turns a bot answer into the move actually applied. A non-empty
// reason means the answer was replaced: by the smallest legal lead when
// leading, by a pass when following.
func (e *Engine) resolvePlay(seat int, d PlayDecision, askErr error) (combo.Combo, string) {
	hand := e.hands[seat]
	lead := e.requirement == nil

	var reason string
	switch {
	case askErr != nil:
		reason = failureReason(askErr)
	case d.Validate() != nil:
		reason = "malformed"
	case d.Move == MovePass:
		if !lead {
			return combo.PassCombo, ""
		}
		reason = "pass-on-lead"
	default:
		c, err := combo.Match(hand, d.Cards, e.requirement, e.rules.Combo)
		if err == nil {
			return c, ""
		}
		reason = "illegal"
	}

	if lead {
		if c, ok := combo.Smallest(combo.EnumerateAll(hand, e.rules.Combo)); ok {
			return c, reason
		}
	}
	return combo.PassCombo, reason
}

func (e *Engine) playView(seat int) PlayView {
	v := PlayView{
		GameID:       e.cfg.GameID,
		Seat:         seat,
		Hand:         e.hands[seat].Clone(),
		LandlordSeat: e.landlord,
		Lead:         e.requirement == nil,
		History:      clonePlays(e.plays),
		Bottom:       e.bottom.Clone(),
		Trick:        e.trick,
		LastPlaySeat: e.lastPlay,
		Rules:        e.rules.Combo,
	}
	if e.requirement != nil {
		req := e.requirement.Clone()
		v.Requirement = &req
	}
	for i := range e.hands {
		v.HandCounts[i] = len(e.hands[i])
		v.SeatPlays[i] = append([]cards.Card(nil), e.seatPlays[i]...)
	}
	return v
}

// checkAccounting verifies that every card of the deck is in exactly one
// place.
func (e *Engine) checkAccounting() error {
	var seen [cards.DeckSize]bool
	total := 0
	mark := func(where string, cs []cards.Card) error {
		for _, c := range cs {
			if !c.Valid() {
				return fmt.Errorf("%w: invalid card %v in %s", ErrCardAccounting, c, where)
			}
			if seen[c.ID()] {
				return fmt.Errorf("%w: duplicate %s in %s", ErrCardAccounting, c, where)
			}
			seen[c.ID()] = true
			total++
		}
		return nil
	}
	for seat, h := range e.hands {
		if err := mark("hand "+strconv.Itoa(seat), h); err != nil {
			return err
		}
	}
	if !e.bottomAssigned {
		if err := mark("bottom", e.bottom); err != nil {
			return err
		}
	}
	if err := mark("played", e.played); err != nil {
		return err
	}
	if total != cards.DeckSize {
		return fmt.Errorf("%w: %d cards accounted for", ErrCardAccounting, total)
	}
	return nil
}

func (e *Engine) event(t events.EventType, seat int) events.Event {
	playerID := ""
	if seat >= 0 && seat < 3 {
		playerID = e.cfg.Seats[seat].PlayerID
	}
	ev := events.NewEvent(t, seat, playerID)
	ev.TournamentID = e.cfg.TournamentID
	ev.Round = e.cfg.Round
	ev.Group = e.cfg.Group
	ev.Game = e.cfg.Game
	ev.GameID = e.cfg.GameID
	return ev
}

func (e *Engine) emit(ev events.Event) {
	ev.Seq = uint64(len(e.eventLog) + 1)
	e.eventLog = append(e.eventLog, ev)
	e.bus.Publish(ev)
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func next(seat int) int {
	return (seat + 1) % 3
}
