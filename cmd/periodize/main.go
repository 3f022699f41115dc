// Command periodize applies periodized training plans and edits the resulting schedules.
//
// Usage:
//
//	periodize <command> [flags]
//
// Run periodize help for the list of commands.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/myrjola/periodize/internal/envstruct"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/logging"
	"github.com/myrjola/periodize/internal/retry"
	"github.com/myrjola/periodize/internal/schedule"
	"github.com/myrjola/periodize/internal/sqlite"
)

type config struct {
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"PERIODIZE_SQLITE_URL" envDefault:"./periodize.sqlite3"`
	// LoadTable is an optional YAML file replacing the built-in load table.
	LoadTable string `env:"PERIODIZE_LOAD_TABLE" envDefault:""`
	// RoundingStep is the smallest weight increment in kilograms.
	RoundingStep float64 `env:"PERIODIZE_ROUNDING_STEP" envDefault:"2.5"`
	RoundingMode string  `env:"PERIODIZE_ROUNDING_MODE" envDefault:"nearest"`
	// BucketPolicy maps intensities between table rows to the nearest row or the row below.
	BucketPolicy   string        `env:"PERIODIZE_BUCKET_POLICY" envDefault:"nearest"`
	LookupAttempts int           `env:"PERIODIZE_LOOKUP_ATTEMPTS" envDefault:"3"`
	LookupTimeout  time.Duration `env:"PERIODIZE_LOOKUP_TIMEOUT" envDefault:"2s"`
}

// application holds what every command needs.
type application struct {
	logger   *slog.Logger
	service  *schedule.Service
	rounding load.Rounding
	out      io.Writer
}

func loadTable(path string, policy load.BucketPolicy) (*load.Table, error) {
	if path == "" {
		return load.Default(policy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read load table: %w", err)
	}
	return load.Parse(data, policy)
}

func run(
	ctx context.Context,
	logger *slog.Logger,
	lookupEnv func(string) (string, bool),
	args []string,
	out io.Writer,
) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		usage(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return errors.Wrap(errUnknownCommand, "parse arguments", slog.String("command", args[0]))
	}

	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	policy, err := load.ParseBucketPolicy(cfg.BucketPolicy)
	if err != nil {
		return errors.Wrap(err, "parse bucket policy")
	}
	mode, err := load.ParseRoundingMode(cfg.RoundingMode)
	if err != nil {
		return errors.Wrap(err, "parse rounding mode")
	}
	table, err := loadTable(cfg.LoadTable, policy)
	if err != nil {
		return errors.Wrap(err, "load table", slog.String("path", cfg.LoadTable))
	}

	dbCtx, cancel := context.WithCancel(ctx)
	db, err := sqlite.NewDatabase(dbCtx, cfg.SqliteURL, logger)
	if err != nil {
		cancel()
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		// Stop the optimizer before the pools close.
		cancel()
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close db", errors.SlogError(closeErr))
		}
	}()

	app := application{
		logger: logger,
		service: schedule.NewService(db, logger, table, schedule.Config{
			Lookup: retry.Policy{
				Attempts: cfg.LookupAttempts,
				Timeout:  cfg.LookupTimeout,
				Backoff:  retry.DefaultPolicy.Backoff,
			},
			MaxConcurrentLookups: 0,
			Catalog:              nil,
			History:              nil,
			Now:                  nil,
		}),
		rounding: load.Rounding{StepKg: cfg.RoundingStep, Mode: mode},
		out:      out,
	}
	ctx = logging.WithAttrs(ctx, slog.String("command", args[0]))
	if err = cmd.run(ctx, &app, args[1:]); err != nil {
		return errors.Wrap(err, cmd.name)
	}
	return nil
}

// newLogger reads the log settings ahead of the rest of the configuration so that configuration errors are
// logged in the requested format.
func newLogger(lookupEnv func(string) (string, bool)) (*slog.Logger, error) {
	var cfg struct {
		LogLevel  string `env:"PERIODIZE_LOG_LEVEL" envDefault:"info"`
		LogFormat string `env:"PERIODIZE_LOG_FORMAT" envDefault:"text"`
	}
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return nil, fmt.Errorf("populate log config: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("parse log format: %w", err)
	}
	return logging.New(os.Stderr, format, level), nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	logger, err := newLogger(os.LookupEnv)
	if err != nil {
		logger = logging.New(os.Stderr, logging.FormatText, slog.LevelInfo)
		logger.LogAttrs(ctx, slog.LevelWarn, "falling back to default logger", errors.SlogError(err))
	}
	err = run(ctx, logger, os.LookupEnv, os.Args[1:], os.Stdout)
	cancel()
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "command failed", errors.SlogError(err))
		os.Exit(1)
	}
}
