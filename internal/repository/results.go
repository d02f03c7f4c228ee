package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/tournament"
)

// ErrNotFound is returned when no result is stored under an id.
var ErrNotFound = errors.New("tournament result not found")

// Querier is the subset of pgxpool.Pool and pgx.Tx the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS tournaments (
	id              TEXT PRIMARY KEY,
	seed            BIGINT NOT NULL,
	games_per_round INTEGER NOT NULL,
	round_count     INTEGER NOT NULL,
	fingerprint     TEXT NOT NULL,
	rounds          JSONB NOT NULL,
	saved_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS standings (
	tournament_id      TEXT NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
	rank               INTEGER NOT NULL,
	player_id          TEXT NOT NULL,
	label              TEXT NOT NULL,
	mu                 DOUBLE PRECISION NOT NULL,
	sigma              DOUBLE PRECISION NOT NULL,
	conservative       DOUBLE PRECISION NOT NULL,
	games              INTEGER NOT NULL,
	wins               INTEGER NOT NULL,
	landlord_games     INTEGER NOT NULL,
	landlord_wins      INTEGER NOT NULL,
	farmer_games       INTEGER NOT NULL,
	farmer_wins        INTEGER NOT NULL,
	score_sum          INTEGER NOT NULL,
	eliminated_round   INTEGER,
	elimination_reason TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tournament_id, player_id)
);

CREATE TABLE IF NOT EXISTS eliminations (
	tournament_id TEXT NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
	round         INTEGER NOT NULL,
	group_index   INTEGER NOT NULL,
	player_id     TEXT NOT NULL,
	reason        TEXT NOT NULL,
	PRIMARY KEY (tournament_id, player_id)
);
`

// Elimination is one row of the eliminations table. Group is -1 for
// players removed before group play.
type Elimination struct {
	Round    int
	Group    int
	PlayerID string
	Reason   string
}

// Summary is a stored tournament without its per-player rows.
type Summary struct {
	ID            string
	Seed          int64
	GamesPerRound int
	Rounds        int
	Fingerprint   string
	SavedAt       time.Time
}

// ResultRepository stores and loads tournament results.
type ResultRepository struct {
	db     Querier
	logger *zap.Logger
}

// NewResultRepository creates a repository on db.
func NewResultRepository(db Querier, logger *zap.Logger) *ResultRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultRepository{db: db, logger: logger}
}

// Migrate creates the tables if they are missing.
func (r *ResultRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Save writes res in a single transaction, replacing any earlier copy.
func (r *ResultRepository) Save(ctx context.Context, res *tournament.Result) error {
	rounds, err := json.Marshal(res.Rounds)
	if err != nil {
		return fmt.Errorf("encode rounds: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tournaments WHERE id = $1`, res.TournamentID); err != nil {
		return fmt.Errorf("clear previous result: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO tournaments (id, seed, games_per_round, round_count, fingerprint, rounds, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.TournamentID, res.Seed, res.GamesPerRound, len(res.Rounds), res.Fingerprint(), rounds, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert tournament: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range res.Standings {
		batch.Queue(`
			INSERT INTO standings (tournament_id, rank, player_id, label, mu, sigma, conservative,
				games, wins, landlord_games, landlord_wins, farmer_games, farmer_wins, score_sum,
				eliminated_round, elimination_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			res.TournamentID, s.Rank, s.ID, s.Label, s.Mu, s.Sigma, s.Conservative,
			s.Stats.Games, s.Stats.Wins, s.Stats.LandlordGames, s.Stats.LandlordWins,
			s.Stats.FarmerGames, s.Stats.FarmerWins, s.Stats.ScoreSum,
			s.EliminatedRound, s.EliminationReason,
		)
	}
	for _, e := range Eliminations(res) {
		batch.Queue(`
			INSERT INTO eliminations (tournament_id, round, group_index, player_id, reason)
			VALUES ($1, $2, $3, $4, $5)`,
			res.TournamentID, e.Round, e.Group, e.PlayerID, e.Reason,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert standings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("saved tournament result",
		zap.String("tournament_id", res.TournamentID),
		zap.Int("standings", len(res.Standings)),
	)
	return nil
}

// Load reads a stored result back. The returned result fingerprints equal
// to the one that was saved.
func (r *ResultRepository) Load(ctx context.Context, tournamentID string) (*tournament.Result, error) {
	res := &tournament.Result{TournamentID: tournamentID}
	var rounds []byte
	err := r.db.QueryRow(ctx,
		`SELECT seed, games_per_round, rounds FROM tournaments WHERE id = $1`, tournamentID,
	).Scan(&res.Seed, &res.GamesPerRound, &rounds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, tournamentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load tournament: %w", err)
	}
	if err := json.Unmarshal(rounds, &res.Rounds); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT rank, player_id, label, mu, sigma, conservative,
			games, wins, landlord_games, landlord_wins, farmer_games, farmer_wins, score_sum,
			eliminated_round, elimination_reason
		FROM standings WHERE tournament_id = $1 ORDER BY rank`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s tournament.Standing
		if err := rows.Scan(&s.Rank, &s.ID, &s.Label, &s.Mu, &s.Sigma, &s.Conservative,
			&s.Stats.Games, &s.Stats.Wins, &s.Stats.LandlordGames, &s.Stats.LandlordWins,
			&s.Stats.FarmerGames, &s.Stats.FarmerWins, &s.Stats.ScoreSum,
			&s.EliminatedRound, &s.EliminationReason,
		); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		res.Standings = append(res.Standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	return res, nil
}

// LoadEliminations returns the elimination log ordered by round and group.
func (r *ResultRepository) LoadEliminations(ctx context.Context, tournamentID string) ([]Elimination, error) {
	rows, err := r.db.Query(ctx, `
		SELECT round, group_index, player_id, reason
		FROM eliminations WHERE tournament_id = $1
		ORDER BY round, group_index, player_id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("load eliminations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Elimination, error) {
		var e Elimination
		err := row.Scan(&e.Round, &e.Group, &e.PlayerID, &e.Reason)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("load eliminations: %w", err)
	}
	return out, nil
}

// List returns stored tournaments, newest first.
func (r *ResultRepository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, seed, games_per_round, round_count, fingerprint, saved_at
		FROM tournaments ORDER BY saved_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var s Summary
		err := row.Scan(&s.ID, &s.Seed, &s.GamesPerRound, &s.Rounds, &s.Fingerprint, &s.SavedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return out, nil
}

// Eliminations flattens the elimination history of res in bracket order.
func Eliminations(res *tournament.Result) []Elimination {
	var out []Elimination
	for _, rd := range res.Rounds {
		for _, id := range rd.AutoEliminated {
			out = append(out, Elimination{Round: rd.Number, Group: -1, PlayerID: id, Reason: tournament.ReasonInsufficientSlots})
		}
		for _, g := range rd.Groups {
			if g.Eliminated != "" {
				out = append(out, Elimination{Round: rd.Number, Group: g.Index, PlayerID: g.Eliminated, Reason: tournament.ReasonLowestRating})
			}
		}
	}
	return out
}
