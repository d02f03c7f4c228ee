package tournament

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/events"
	"github.com/magefree/landlord-arena/internal/rating"
	"github.com/magefree/landlord-arena/internal/round"
)

// State is the lifecycle of a tournament.
type State int

const (
	StateWaiting State = iota
	StateInProgress
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

type groupState struct {
	assignment Assignment
	summary    GroupSummary
	issued     bool
	completed  bool
	before     map[string]PlayerRecord
}

type roundState struct {
	summary   RoundSummary
	groups    []*groupState
	nextIssue int
	completed int
}

// Scheduler drives a seeded elimination bracket. It can run games itself
// (Run) or hand out series to an external driver (NextAssignment,
// RecordGame, CompleteAssignment); both paths share the same state machine.
type Scheduler struct {
	id     string
	opts   Options
	rules  round.Rules
	rating *rating.System
	logger *zap.Logger
	bus    events.Publisher

	mu           sync.Mutex
	state        State
	rng          *rand.Rand
	participants []Participant
	players      []*PlayerRecord
	index        map[string]int
	roundNum     int
	current      *roundState
	rounds       []RoundSummary
	assignments  map[string]*groupState
	createTime   time.Time
	startTime    *time.Time
	endTime      *time.Time
}

// New validates the participants and options. Nothing is played until the
// first assignment is requested.
func New(participants []Participant, opts Options, logger *zap.Logger, bus events.Publisher) (*Scheduler, error) {
	if len(participants) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 participants, got %d", ErrInvalidConfig, len(participants))
	}
	if opts.GamesPerRound <= 0 {
		return nil, fmt.Errorf("%w: games per round must be positive", ErrInvalidConfig)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if opts.Rating == (rating.Config{}) {
		opts.Rating = rating.DefaultConfig()
	}
	system, err := rating.NewSystem(opts.Rating)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	rules := opts.Rules
	if rules == (round.Rules{}) {
		rules = round.DefaultRules()
	}
	if opts.DecisionTimeout > 0 {
		rules.DecisionTimeout = opts.DecisionTimeout
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	index := make(map[string]int, len(participants))
	players := make([]*PlayerRecord, len(participants))
	for i, p := range participants {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: participant %d has an empty id", ErrInvalidConfig, i)
		}
		if _, dup := index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant id %q", ErrInvalidConfig, p.ID)
		}
		index[p.ID] = i
		label := p.Label
		if label == "" {
			label = p.ID
		}
		players[i] = &PlayerRecord{ID: p.ID, Label: label, Order: i, Rating: system.Initial()}
	}

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.Discard
	}

	return &Scheduler{
		id:           opts.ID,
		opts:         opts,
		rules:        rules,
		rating:       system,
		logger:       logger.With(zap.String("tournament_id", opts.ID)),
		bus:          bus,
		state:        StateWaiting,
		rng:          rand.New(rand.NewSource(opts.Seed)),
		participants: append([]Participant(nil), participants...),
		players:      players,
		index:        index,
		assignments:  make(map[string]*groupState),
		createTime:   time.Now(),
	}, nil
}

// ID returns the tournament id.
func (s *Scheduler) ID() string {
	return s.id
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextAssignment hands out the next series of the current round. It
// returns ErrNoAssignment while handed-out series of the round are still
// open, and ErrTournamentComplete after the final.
func (s *Scheduler) NextAssignment() (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureStarted()
	if s.state == StateFinished {
		return nil, ErrTournamentComplete
	}
	r := s.current
	if r.nextIssue >= len(r.groups) {
		return nil, ErrNoAssignment
	}
	g := r.groups[r.nextIssue]
	r.nextIssue++
	g.issued = true
	s.assignments[g.assignment.ID] = g

	ev := s.event(events.EventSeriesStart)
	ev.Group = g.assignment.Group
	ev.Description = strings.Join(g.assignment.Members, ",")
	ev.Amount = len(g.assignment.Games)
	s.bus.Publish(ev)

	a := g.assignment
	a.Members = append([]string(nil), a.Members...)
	a.Games = append([]GameSpec(nil), a.Games...)
	return &a, nil
}

// RecordGame applies one game result. Games must be recorded in series
// order and match the seat order of their GameSpec.
func (s *Scheduler) RecordGame(assignmentID string, res GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.lookup(assignmentID)
	if err != nil {
		return err
	}
	next := len(g.summary.Games)
	if next >= len(g.assignment.Games) {
		return fmt.Errorf("%w: series already has %d games", ErrInvalidResult, next)
	}
	if res.Game != next {
		return fmt.Errorf("%w: expected game %d, got %d", ErrInvalidResult, next, res.Game)
	}
	spec := g.assignment.Games[next]
	if res.Seats != spec.Seats {
		return fmt.Errorf("%w: seats %v do not match %v", ErrInvalidResult, res.Seats, spec.Seats)
	}
	if res.LandlordSeat < 0 || res.LandlordSeat > 2 {
		return fmt.Errorf("%w: landlord seat %d", ErrInvalidResult, res.LandlordSeat)
	}
	if res.Winner != round.SideLandlord && res.Winner != round.SideFarmers {
		return fmt.Errorf("%w: winner %q", ErrInvalidResult, res.Winner)
	}
	if res.Scores[0]+res.Scores[1]+res.Scores[2] != 0 {
		return fmt.Errorf("%w: scores %v do not sum to zero", ErrInvalidResult, res.Scores)
	}
	if res.GameID == "" {
		res.GameID = spec.GameID
	}

	var winners, losers []*rating.Rating
	for seat, id := range res.Seats {
		p := s.players[s.index[id]]
		landlord := seat == res.LandlordSeat
		won := landlord == (res.Winner == round.SideLandlord)

		p.Stats.Games++
		p.Stats.ScoreSum += res.Scores[seat]
		if landlord {
			p.Stats.LandlordGames++
		} else {
			p.Stats.FarmerGames++
		}
		if won {
			p.Stats.Wins++
			if landlord {
				p.Stats.LandlordWins++
			} else {
				p.Stats.FarmerWins++
			}
			winners = append(winners, &p.Rating)
		} else {
			losers = append(losers, &p.Rating)
		}
	}
	if err := s.rating.UpdateTeams(winners, losers); err != nil {
		return err
	}
	g.summary.Games = append(g.summary.Games, res)

	s.logger.Debug("game recorded",
		zap.Int("round", g.assignment.Round),
		zap.Int("group", g.assignment.Group),
		zap.Int("game", res.Game),
		zap.String("winner", string(res.Winner)))
	return nil
}

// CompleteAssignment closes a series once all its games are recorded. Outside
// the final the lowest conservative score of the group is eliminated. The
// round advances when its last series completes.
func (s *Scheduler) CompleteAssignment(assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.lookup(assignmentID)
	if err != nil {
		return err
	}
	if len(g.summary.Games) != len(g.assignment.Games) {
		return fmt.Errorf("%w: %d of %d games recorded", ErrSeriesIncomplete, len(g.summary.Games), len(g.assignment.Games))
	}
	g.completed = true

	for _, id := range g.summary.Members {
		p := s.players[s.index[id]]
		before := g.before[id]
		g.summary.StatDeltas = append(g.summary.StatDeltas, StatDelta{
			ID:                id,
			Stats:             p.Stats.Sub(before.Stats),
			MuDelta:           p.Rating.Mu - before.Rating.Mu,
			ConservativeDelta: p.Rating.Conservative() - before.Rating.Conservative(),
		})
	}

	end := s.event(events.EventSeriesEnd)
	end.Group = g.assignment.Group
	end.Amount = len(g.summary.Games)

	if !g.assignment.Final {
		members := make([]*PlayerRecord, len(g.summary.Members))
		for i, id := range g.summary.Members {
			members[i] = s.players[s.index[id]]
		}
		loser := lowest(members, 1)[0]
		s.eliminate(loser, ReasonLowestRating, g.assignment.Group)
		g.summary.Eliminated = loser.ID
		end.PlayerID = loser.ID
	}
	s.bus.Publish(end)

	r := s.current
	r.completed++
	if r.completed == len(r.groups) {
		s.closeRound()
	}
	return nil
}

// lookup returns the handed-out series with the given id while it is open.
func (s *Scheduler) lookup(id string) (*groupState, error) {
	g, ok := s.assignments[id]
	switch {
	case !ok || !g.issued:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAssignment, id)
	case g.completed:
		return nil, fmt.Errorf("%w: %s", ErrAssignmentClosed, id)
	}
	return g, nil
}

// openAssignments counts series handed out and not yet completed.
func (s *Scheduler) openAssignments() int {
	n := 0
	for _, g := range s.assignments {
		if g.issued && !g.completed {
			n++
		}
	}
	return n
}

// Result returns the completed tournament.
func (s *Scheduler) Result() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFinished {
		return nil, ErrTournamentIncomplete
	}
	return s.result(), nil
}

// Players returns copies of every record in input order.
func (s *Scheduler) Players() []PlayerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayerRecord, len(s.players))
	for i, p := range s.players {
		out[i] = clonePlayer(p)
	}
	return out
}

func (s *Scheduler) ensureStarted() {
	if s.state != StateWaiting {
		return
	}
	s.state = StateInProgress
	now := time.Now()
	s.startTime = &now

	ev := s.event(events.EventTournamentStart)
	ev.Amount = len(s.players)
	ev.Metadata["seed"] = strconv.FormatInt(s.opts.Seed, 10)
	s.bus.Publish(ev)
	s.logger.Info("tournament started", zap.Int("participants", len(s.players)), zap.Int64("seed", s.opts.Seed))

	s.startRound()
}

// startRound opens the next round: auto-eliminates the excess over a
// multiple of three, shuffles the survivors and partitions them into groups.
func (s *Scheduler) startRound() {
	s.roundNum++
	r := &roundState{summary: RoundSummary{Number: s.roundNum}}
	s.current = r

	survivors := s.survivors()
	r.summary.Final = len(survivors) <= 3

	ev := s.event(events.EventRoundStart)
	ev.Amount = len(survivors)
	ev.Metadata["final"] = strconv.FormatBool(r.summary.Final)
	s.bus.Publish(ev)

	if !r.summary.Final {
		if excess := len(survivors) % 3; excess > 0 {
			for _, p := range lowest(survivors, excess) {
				s.eliminate(p, ReasonInsufficientSlots, -1)
				r.summary.AutoEliminated = append(r.summary.AutoEliminated, p.ID)
			}
			survivors = s.survivors()
			if len(survivors) == 3 {
				s.closeRound()
				return
			}
		}
	}

	s.rng.Shuffle(len(survivors), func(i, j int) { survivors[i], survivors[j] = survivors[j], survivors[i] })
	for gi := 0; gi*3 < len(survivors); gi++ {
		members := survivors[gi*3 : gi*3+3]
		r.groups = append(r.groups, s.newGroup(gi, members, r.summary.Final))
	}
	s.logger.Info("round started",
		zap.Int("round", s.roundNum),
		zap.Int("survivors", len(survivors)),
		zap.Int("groups", len(r.groups)),
		zap.Bool("final", r.summary.Final))
}

func (s *Scheduler) newGroup(index int, members []*PlayerRecord, final bool) *groupState {
	ids := make([]string, len(members))
	before := make(map[string]PlayerRecord, len(members))
	for i, p := range members {
		ids[i] = p.ID
		before[p.ID] = clonePlayer(p)
	}

	ns := uuid.MustParse(s.namespace())
	games := make([]GameSpec, s.opts.GamesPerRound)
	for k := range games {
		rot := k % 3
		games[k] = GameSpec{
			Index:  k,
			GameID: uuid.NewSHA1(ns, []byte(fmt.Sprintf("%d/%d/%d", s.roundNum, index, k))).String(),
			Seed:   gameSeed(s.opts.Seed, s.roundNum, index, k),
			Seats:  [3]string{ids[rot], ids[(rot+1)%3], ids[(rot+2)%3]},
		}
	}

	return &groupState{
		assignment: Assignment{
			ID:           uuid.NewSHA1(ns, []byte(fmt.Sprintf("assignment/%d/%d", s.roundNum, index))).String(),
			TournamentID: s.id,
			Round:        s.roundNum,
			Group:        index,
			Final:        final,
			Members:      ids,
			Games:        games,
		},
		summary: GroupSummary{Index: index, Members: append([]string(nil), ids...)},
		before:  before,
	}
}

// namespace maps the tournament id onto a uuid so derived ids are stable.
func (s *Scheduler) namespace() string {
	if id, err := uuid.Parse(s.id); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.id)).String()
}

func (s *Scheduler) closeRound() {
	r := s.current
	for _, g := range r.groups {
		r.summary.Groups = append(r.summary.Groups, g.summary)
	}
	s.rounds = append(s.rounds, r.summary)

	ev := s.event(events.EventRoundEnd)
	ev.Amount = len(s.survivors())
	s.bus.Publish(ev)

	if r.summary.Final {
		s.finish()
		return
	}
	s.startRound()
}

func (s *Scheduler) finish() {
	s.state = StateFinished
	now := time.Now()
	s.endTime = &now

	standings := s.standings()
	ev := s.event(events.EventTournamentEnd)
	if len(standings) > 0 {
		ev.PlayerID = standings[0].ID
	}
	s.bus.Publish(ev)
	s.logger.Info("tournament finished", zap.Int("rounds", len(s.rounds)))
}

func (s *Scheduler) eliminate(p *PlayerRecord, reason string, group int) {
	r := s.roundNum
	p.EliminatedRound = &r
	p.EliminationReason = reason

	ev := s.event(events.EventEliminated)
	ev.PlayerID = p.ID
	ev.Group = group
	ev.Description = reason
	s.bus.Publish(ev)

	s.logger.Info("participant eliminated",
		zap.String("player_id", p.ID),
		zap.Int("round", r),
		zap.String("reason", reason),
		zap.Float64("conservative", p.Rating.Conservative()))
}

func (s *Scheduler) survivors() []*PlayerRecord {
	var out []*PlayerRecord
	for _, p := range s.players {
		if !p.eliminated() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Scheduler) standings() []Standing {
	sorted := make([]*PlayerRecord, len(s.players))
	copy(sorted, s.players)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ca, cb := a.Rating.Conservative(), b.Rating.Conservative()
		if ca != cb {
			return ca > cb
		}
		ra, rb := elimRank(a), elimRank(b)
		if ra != rb {
			return ra > rb
		}
		return a.Order < b.Order
	})

	out := make([]Standing, len(sorted))
	for i, p := range sorted {
		c := clonePlayer(p)
		out[i] = Standing{
			Rank:              i + 1,
			ID:                c.ID,
			Label:             c.Label,
			Mu:                c.Rating.Mu,
			Sigma:             c.Rating.Sigma,
			Conservative:      c.Rating.Conservative(),
			Stats:             c.Stats,
			EliminatedRound:   c.EliminatedRound,
			EliminationReason: c.EliminationReason,
		}
	}
	return out
}

func (s *Scheduler) result() *Result {
	rounds := make([]RoundSummary, len(s.rounds))
	for i, r := range s.rounds {
		rounds[i] = cloneRound(r)
	}
	return &Result{
		TournamentID:  s.id,
		Seed:          s.opts.Seed,
		GamesPerRound: s.opts.GamesPerRound,
		Rounds:        rounds,
		Standings:     s.standings(),
	}
}

func (s *Scheduler) event(t events.EventType) events.Event {
	ev := events.NewEvent(t, -1, "")
	ev.TournamentID = s.id
	ev.Round = s.roundNum
	return ev
}

// lowest returns the n lowest conservative scores; ties put the later input
// order first.
func lowest(players []*PlayerRecord, n int) []*PlayerRecord {
	sorted := append([]*PlayerRecord(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Rating.Conservative(), sorted[j].Rating.Conservative()
		if ci != cj {
			return ci < cj
		}
		return sorted[i].Order > sorted[j].Order
	})
	return sorted[:n]
}

// elimRank orders elimination rounds so that never-eliminated ranks highest.
func elimRank(p *PlayerRecord) int {
	if p.EliminatedRound == nil {
		return int(^uint(0) >> 1)
	}
	return *p.EliminatedRound
}

// gameSeed derives an independent per-game seed with splitmix64 so that
// concurrently played groups do not share a random stream.
func gameSeed(seed int64, roundNum, group, game int) int64 {
	x := splitmix64(uint64(seed))
	x = splitmix64(x + uint64(roundNum))
	x = splitmix64(x + uint64(group))
	x = splitmix64(x + uint64(game))
	return int64(x)
}

func splitmix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func clonePlayer(p *PlayerRecord) PlayerRecord {
	c := *p
	if p.EliminatedRound != nil {
		r := *p.EliminatedRound
		c.EliminatedRound = &r
	}
	return c
}

func cloneRound(r RoundSummary) RoundSummary {
	c := r
	c.AutoEliminated = append([]string(nil), r.AutoEliminated...)
	c.Groups = make([]GroupSummary, len(r.Groups))
	for i, g := range r.Groups {
		gc := g
		gc.Members = append([]string(nil), g.Members...)
		gc.Games = append([]GameRecord(nil), g.Games...)
		gc.StatDeltas = append([]StatDelta(nil), g.StatDeltas...)
		c.Groups[i] = gc
	}
	return c
}
