package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magefree/landlord-arena/internal/rating"
	"github.com/magefree/landlord-arena/internal/round"
)

const sample = `
logging:
  level: debug
  format: json
tournament:
  games_per_round: 12
  seed: 7
  workers: 2
rules:
  bid_mode: rob
  wings_allow_high: false
  scoring:
    rob_stacking: add
    max_multiplier: 64
participants:
  - id: north
    kind: greedy
  - id: east
    kind: cautious
  - id: west
    kind: random
    seed: 3
  - id: south
    kind: remote
database:
  url: postgres://arena@localhost/arena
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Tournament.GamesPerRound)
	assert.Equal(t, rating.DefaultConfig(), cfg.Rating)
	assert.Equal(t, round.DefaultRules(), cfg.Rules)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Replay.Enabled)
	assert.Empty(t, cfg.Participants)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 12, cfg.Tournament.GamesPerRound)
	assert.Equal(t, int64(7), cfg.Tournament.Seed)
	assert.Equal(t, 2, cfg.Tournament.Workers)

	assert.Equal(t, round.BidModeRob, cfg.Rules.BidMode)
	assert.False(t, cfg.Rules.Combo.WingsAllowHigh)
	assert.Equal(t, round.RobAdd, cfg.Rules.Scoring.RobStacking)
	assert.Equal(t, 64, cfg.Rules.Scoring.MaxMultiplier)
	assert.Equal(t, 2, cfg.Rules.Scoring.BombFactor, "unset keys keep defaults")

	require.Len(t, cfg.Participants, 4)
	assert.Equal(t, ParticipantConfig{ID: "west", Kind: "random", Seed: 3}, cfg.Participants[2])
	assert.True(t, cfg.HasRemote())
	assert.True(t, cfg.Database.Enabled())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARENA_TOURNAMENT_SEED", "99")
	t.Setenv("ARENA_RULES_MAX_CALL", "2")
	t.Setenv("ARENA_SERVER_ADDRESS", "127.0.0.1:9000")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Tournament.Seed)
	assert.Equal(t, 2, cfg.Rules.MaxCall)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	tests := []struct {
		name string
		body string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"zero games", "tournament:\n  games_per_round: 0\n"},
		{"negative workers", "tournament:\n  workers: -1\n"},
		{"bad rating", "rating:\n  sigma0: -3\n"},
		{"bad bid mode", "rules:\n  bid_mode: auction\n"},
		{"unknown bot", "participants:\n  - id: a\n    kind: oracle\n"},
		{"missing id", "participants:\n  - kind: greedy\n"},
		{"duplicate id", "participants:\n  - id: a\n    kind: greedy\n  - id: a\n    kind: cautious\n"},
		{"replay without dir", "replay:\n  enabled: true\n  dir: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, "tournament:\n  seed: 1\n")

	var seed atomic.Int64
	require.NoError(t, Watch(path, func(c *Config) {
		seed.Store(c.Tournament.Seed)
	}, nil))

	require.NoError(t, os.WriteFile(path, []byte("tournament:\n  seed: 5\n"), 0o600))
	assert.Eventually(t, func() bool { return seed.Load() == 5 }, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, Watch("", func(*Config) {}, nil), ErrInvalidConfig)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "arena.example.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Participants, 6)
	assert.True(t, cfg.HasRemote())
	assert.Equal(t, 2*time.Second, cfg.Tournament.DecisionTimeout)
	assert.Equal(t, time.Minute, cfg.Server.AgentWait)
	assert.True(t, cfg.Replay.Enabled)
}

func TestRatingDerivedFromMu0(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rating:\n  mu0: 3000\n"))
	require.NoError(t, err)
	assert.Equal(t, rating.ConfigFor(3000), cfg.Rating)
	assert.InDelta(t, 1000, cfg.Rating.Sigma0, 1e-9)
	assert.InDelta(t, 500, cfg.Rating.Beta, 1e-9)
	assert.InDelta(t, 10, cfg.Rating.Tau, 1e-9)

	t.Run("explicit values win", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "rating:\n  mu0: 3000\n  beta: 250\n  tau: 0\n"))
		require.NoError(t, err)
		assert.InDelta(t, 1000, cfg.Rating.Sigma0, 1e-9)
		assert.InDelta(t, 250, cfg.Rating.Beta, 1e-9)
		assert.Zero(t, cfg.Rating.Tau)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("ARENA_RATING_MU0", "600")
		t.Setenv("ARENA_RATING_SIGMA0", "50")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.InDelta(t, 600, cfg.Rating.Mu0, 1e-9)
		assert.InDelta(t, 50, cfg.Rating.Sigma0, 1e-9)
		assert.InDelta(t, 100, cfg.Rating.Beta, 1e-9)
	})
}

func TestWingsAllowHighFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rules:\n  wings_allow_high: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Rules.Combo.WingsAllowHigh)
	assert.Equal(t, round.BidModeCall, cfg.Rules.BidMode, "sibling keys keep defaults")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Rules.Combo.WingsAllowHigh)
}
