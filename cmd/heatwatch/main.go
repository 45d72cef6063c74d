package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mediaheat/heatwatch/internal/alerts"
	"github.com/mediaheat/heatwatch/internal/config"
	"github.com/mediaheat/heatwatch/internal/gate"
	"github.com/mediaheat/heatwatch/internal/httpapi"
	"github.com/mediaheat/heatwatch/internal/persistence"
	"github.com/mediaheat/heatwatch/internal/persistence/postgres"
	"github.com/mediaheat/heatwatch/internal/scheduler"
	"github.com/mediaheat/heatwatch/internal/scoring"
)

const (
	appName = "heatwatch"
	version = "v0.3.0"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Popularity heat scoring and alerting pipeline",
		Version: version,
		Long: `heatwatch ingests popularity signals from public platforms, fuses them
into composite heat scores, and raises debounced alerts when an entity
starts spiking across platforms.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(
		newScoreCmd(),
		newAlertsCmd(),
		newServeCmd(),
		newRunCmd(),
		newHealthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (config.Config, *persistence.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	setupLogging(cfg.LogLevel)

	if cfg.Database.DSN == "" {
		return cfg, nil, fmt.Errorf("database dsn not configured (set database.dsn or HEATWATCH_DB_DSN)")
	}
	db, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, postgres.NewStore(db), nil
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newScoreCmd() *cobra.Command {
	var fold bool
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Run one scoring pass over the entity catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, err := setup(ctx)
			if err != nil {
				return err
			}
			engine := scoring.NewEngine(store, cfg.Scoring)
			report, err := engine.Run(ctx)
			if err != nil {
				return err
			}
			if fold {
				foldReport, err := engine.FoldTikTok(ctx)
				if err != nil {
					return err
				}
				report.Total += foldReport.Total
				report.Succeeded += foldReport.Succeeded
				report.Failed += foldReport.Failed
			}
			return printJSON(report)
		},
	}
	cmd.Flags().BoolVar(&fold, "tiktok-fold", false, "Also run the TikTok enrichment fold")
	return cmd
}

func newAlertsCmd() *cobra.Command {
	var limit int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate the trend gate and dispatch alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, err := setup(ctx)
			if err != nil {
				return err
			}
			evaluator := gate.NewEvaluator(store, cfg.Gate)
			candidates, err := evaluator.Evaluate(ctx, limit)
			if err != nil {
				return err
			}
			if dryRun {
				return printJSON(candidates)
			}
			dispatcher := alerts.NewDispatcher(store, alerts.NewSlackSender(cfg.Slack.WebhookURL), nil)
			report := dispatcher.Dispatch(ctx, candidates)
			return printJSON(report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum alerts per pass")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print candidates without dispatching")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, store, err := setup(ctx)
			if err != nil {
				return err
			}
			hub := alerts.NewHub()
			server := httpapi.NewServer(withRedis(cfg), store, hub)
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("http shutdown failed")
				}
			}()
			return server.Start()
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: scheduler plus HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, store, err := setup(ctx)
			if err != nil {
				return err
			}

			hub := alerts.NewHub()
			engine := scoring.NewEngine(store, cfg.Scoring)
			evaluator := gate.NewEvaluator(store, cfg.Gate)
			dispatcher := alerts.NewDispatcher(store, alerts.NewSlackSender(cfg.Slack.WebhookURL), hub)
			sched := scheduler.New(scheduler.Config{
				ScoreInterval: cfg.Scheduler.ScoreInterval,
				AlertInterval: cfg.Scheduler.AlertInterval,
				TikTokFold:    cfg.Scheduler.TikTokFold,
				AlertLimit:    cfg.Scheduler.AlertLimit,
			}, engine, evaluator, dispatcher)

			server := httpapi.NewServer(withRedis(cfg), store, hub)
			go func() {
				if err := server.Start(); err != nil {
					log.Error().Err(err).Msg("http server failed")
					stop()
				}
			}()

			sched.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print per-source circuit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			rows, err := store.Health.List(ctx)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
}

func withRedis(cfg config.Config) httpapi.ServerConfig {
	httpCfg := cfg.HTTP
	if httpCfg.RedisAddr == "" {
		httpCfg.RedisAddr = cfg.Redis.Addr
	}
	return httpCfg
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
