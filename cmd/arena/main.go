package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/config"
	"github.com/magefree/landlord-arena/internal/remote"
	"github.com/magefree/landlord-arena/internal/server"
)

var (
	configFile string
	version    = "dev" // set via ldflags during build
)

var rootCmd = &cobra.Command{
	Use:           "arena",
	Short:         "Fight the Landlord bot arena",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured tournament with built-in bots and print the standings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, _, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.HasRemote() {
			return errRemoteNeedsServer
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newArena(cfg, logger, nil)
		res, err := a.play(ctx)
		if err != nil {
			return err
		}
		return printStandings(cmd.OutOrStdout(), res)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve agents and observers, then run the configured tournament",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, level, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("starting arena server",
			zap.String("version", version),
			zap.String("config", configFile),
			zap.String("address", cfg.Server.Address),
		)

		if configFile != "" {
			err := config.Watch(configFile, func(c *config.Config) {
				level.SetLevel(parseLevel(c.Logging.Level))
				logger.Info("configuration reloaded", zap.String("level", c.Logging.Level))
			}, func(err error) {
				logger.Warn("ignoring invalid configuration change", zap.Error(err))
			})
			if err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		agents := remote.NewDirectory(logger.Named("agents"))
		a := newArena(cfg, logger, agents)
		srv := server.New(cfg.Server, agents, a.manager, logger.Named("server"))
		a.bus.Subscribe(srv.Hub().Publish)

		lis, err := net.Listen("tcp", cfg.Server.Address)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Server.Address, err)
		}
		errc := make(chan error, 1)
		go func() { errc <- srv.Serve(ctx, lis) }()

		if len(cfg.Participants) > 0 {
			if err := a.waitForAgents(ctx, cfg.Server.AgentWait); err != nil {
				stop()
				<-errc
				return err
			}
			res, err := a.play(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("tournament failed", zap.Error(err))
			}
			if res != nil {
				if err := printStandings(cmd.OutOrStdout(), res); err != nil {
					logger.Warn("print standings", zap.Error(err))
				}
			}
		}

		// keep serving results and the event feed until interrupted
		return <-errc
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to configuration file (defaults and ARENA_* environment when empty)")
	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}

func setup() (*config.Config, *zap.Logger, zap.AtomicLevel, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, fmt.Errorf("load configuration: %w", err)
	}
	logger, level, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, nil, level, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, level, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		os.Exit(1)
	}
}
