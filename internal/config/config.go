// Package config loads arena configuration from YAML and ARENA_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/magefree/landlord-arena/internal/bot"
	"github.com/magefree/landlord-arena/internal/rating"
	"github.com/magefree/landlord-arena/internal/round"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ARENA"

// KindRemote marks a participant played by a connected agent.
const KindRemote = "remote"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete arena configuration.
type Config struct {
	Logging      LoggingConfig       `mapstructure:"logging"`
	Tournament   TournamentConfig    `mapstructure:"tournament"`
	Rating       rating.Config       `mapstructure:"rating"`
	Rules        round.Rules         `mapstructure:"rules"`
	Participants []ParticipantConfig `mapstructure:"participants"`
	Server       ServerConfig        `mapstructure:"server"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Replay       ReplayConfig        `mapstructure:"replay"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TournamentConfig holds the bracket options.
type TournamentConfig struct {
	ID              string        `mapstructure:"id"`
	GamesPerRound   int           `mapstructure:"games_per_round"`
	Seed            int64         `mapstructure:"seed"`
	Workers         int           `mapstructure:"workers"`
	DecisionTimeout time.Duration `mapstructure:"decision_timeout"`
}

// ParticipantConfig declares one entrant. Kind is a built-in bot kind or
// "remote".
type ParticipantConfig struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
	Kind  string `mapstructure:"kind"`
	Seed  int64  `mapstructure:"seed"`
}

// ServerConfig configures the HTTP/websocket listener.
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	EventBuffer       int           `mapstructure:"event_buffer"`
	// AgentWait bounds how long serve waits for remote participants to connect.
	AgentWait time.Duration `mapstructure:"agent_wait"`
}

// DatabaseConfig configures the optional Postgres result store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// Enabled reports whether a database URL is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ReplayConfig configures replay archives.
type ReplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Load reads path (empty means defaults and environment only) and returns a
// validated configuration.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

// Watch reloads path whenever it changes and hands each valid result to
// onChange. Invalid edits are reported through onError and otherwise ignored.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("%w: watch needs a config file", ErrInvalidConfig)
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	deriveRating(v, &cfg.Rating)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var derivedRatingKeys = []string{"rating.sigma0", "rating.beta", "rating.tau", "rating.min_variance"}

// deriveRating fills the rating parameters the configuration leaves unset from
// rating.ConfigFor(mu0), so a custom mu0 scales the whole model.
func deriveRating(v *viper.Viper, rc *rating.Config) {
	d := rating.ConfigFor(rc.Mu0)
	fields := []struct {
		dst *float64
		val float64
	}{
		{&rc.Sigma0, d.Sigma0},
		{&rc.Beta, d.Beta},
		{&rc.Tau, d.Tau},
		{&rc.MinVariance, d.MinVariance},
	}
	for i, f := range fields {
		if !v.IsSet(derivedRatingKeys[i]) {
			*f.dst = f.val
		}
	}
}

func setDefaults(v *viper.Viper) {
	rules := round.DefaultRules()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("tournament.id", "")
	v.SetDefault("tournament.games_per_round", 100)
	v.SetDefault("tournament.seed", 1)
	v.SetDefault("tournament.workers", 0)
	v.SetDefault("tournament.decision_timeout", 0)

	// The remaining rating keys are derived from mu0 in decode when unset.
	v.SetDefault("rating.mu0", rating.DefaultMu)
	for _, key := range derivedRatingKeys {
		_ = v.BindEnv(key)
	}

	v.SetDefault("rules.wings_allow_high", rules.Combo.WingsAllowHigh)
	v.SetDefault("rules.bid_mode", string(rules.BidMode))
	v.SetDefault("rules.max_call", rules.MaxCall)
	v.SetDefault("rules.max_redeals", rules.MaxRedeals)
	v.SetDefault("rules.max_turns", rules.MaxTurns)
	v.SetDefault("rules.decision_timeout", rules.DecisionTimeout)
	v.SetDefault("rules.scoring.rob_stacking", string(rules.Scoring.RobStacking))
	v.SetDefault("rules.scoring.bomb_factor", rules.Scoring.BombFactor)
	v.SetDefault("rules.scoring.spring_enabled", rules.Scoring.SpringEnabled)
	v.SetDefault("rules.scoring.spring_factor", rules.Scoring.SpringFactor)
	v.SetDefault("rules.scoring.max_multiplier", rules.Scoring.MaxMultiplier)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.event_buffer", 256)
	v.SetDefault("server.agent_wait", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.dir", "replays")
}

// Validate checks values the tournament and server cannot work around.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Tournament.GamesPerRound <= 0 {
		return fmt.Errorf("%w: tournament.games_per_round must be positive", ErrInvalidConfig)
	}
	if c.Tournament.Workers < 0 {
		return fmt.Errorf("%w: tournament.workers must not be negative", ErrInvalidConfig)
	}
	if err := c.Rating.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]bool, len(c.Participants))
	for i, p := range c.Participants {
		if p.ID == "" {
			return fmt.Errorf("%w: participants[%d] has no id", ErrInvalidConfig, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = true
		if p.Kind == KindRemote {
			continue
		}
		if _, err := bot.ParseKind(p.Kind); err != nil {
			return fmt.Errorf("%w: participants[%d]: %v", ErrInvalidConfig, i, err)
		}
	}

	if c.Server.EventBuffer <= 0 {
		return fmt.Errorf("%w: server.event_buffer must be positive", ErrInvalidConfig)
	}
	if c.Replay.Enabled && c.Replay.Dir == "" {
		return fmt.Errorf("%w: replay.dir is required when replays are enabled", ErrInvalidConfig)
	}
	return nil
}

// HasRemote reports whether any participant is played by an agent.
func (c *Config) HasRemote() bool {
	for _, p := range c.Participants {
		if p.Kind == KindRemote {
			return true
		}
	}
	return false
}
