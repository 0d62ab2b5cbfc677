package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"radiology-ai/internal/agent"
	"radiology-ai/internal/config"
	"radiology-ai/internal/logging"
	"radiology-ai/internal/orchestrator"
	"radiology-ai/internal/platform/telegram"
	"radiology-ai/internal/report"
	"radiology-ai/internal/sentinel"
	"radiology-ai/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
}

// app is the wiring shared by every subcommand, built in PersistentPreRunE.
var app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Multi-pass radiology report drafting with hypothesis collapse",
	Long: `sentinel runs a study through six analysis passes, collapses their
candidate diagnoses to one validated final diagnosis and drafts a structured,
urgency-tagged report for radiologist review.

Configuration comes from an optional YAML file (--config), environment
variables and a .env file in the working directory.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		if rootFlags.logLevel != "" {
			cfg.LogLevel = rootFlags.logLevel
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		app.cfg = cfg
		app.logger = logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.db != nil {
			_ = app.db.Close()
		}
		if app.logger != nil {
			_ = app.logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "", "Path to YAML config file")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(correctionsCmd)
	rootCmd.Version = version
}

var errNoDatabase = errors.New("DATABASE_URL is not configured")

// database connects and migrates on first use.
func database(ctx context.Context) (*sql.DB, error) {
	if app.db != nil {
		return app.db, nil
	}
	dbCfg := app.cfg.Database
	if dbCfg.URL == "" {
		return nil, errNoDatabase
	}
	if err := store.Migrate(dbCfg.URL, dbCfg.MigrationsPath, app.logger); err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, dbCfg.URL, dbCfg.ConnectRetries, app.logger)
	if err != nil {
		return nil, err
	}
	app.db = db
	return db, nil
}

// newValidator uses the durable correction buffer when a database is
// configured and an in-memory one otherwise.
func newValidator(ctx context.Context) (*sentinel.Validator, error) {
	var buffer sentinel.LearningBuffer
	db, err := database(ctx)
	switch {
	case err == nil:
		buffer = store.NewCorrectionBuffer(db)
	case errors.Is(err, errNoDatabase):
		app.logger.Warn("no database configured, corrections are kept in memory")
	default:
		return nil, err
	}
	return sentinel.NewValidator(app.cfg.Validator(), buffer), nil
}

func newOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	var client agent.ModelClient
	if url := app.cfg.Inference.URL; url != "" {
		client = agent.NewHTTPModelClient(url, app.cfg.Inference.Timeout)
	} else {
		app.logger.Info("no inference service configured, passes run on rules alone")
	}

	validator, err := newValidator(ctx)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(app.cfg.Orchestrator(), agent.Defaults(client), validator, app.logger)
}

func newReportService() *report.Service {
	var tg report.TelegramClient
	if app.cfg.Telegram.Token != "" {
		tg = telegram.NewClient(app.cfg.Telegram.Token)
	}
	return report.NewService(tg, app.cfg.Telegram.ChatID, app.cfg.Report.FontPaths, app.logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
