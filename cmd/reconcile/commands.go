package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/config"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/database"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
	pkglogger "github.com/farunova-art/farunova-sub001/pkg/logger"
)

type rootOptions struct {
	configPath string
	output     string
}

type windowOptions struct {
	start    string
	end      string
	lookback time.Duration
}

func (w *windowOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.start, "start", "", "Window start, RFC 3339 (defaults to end minus lookback)")
	cmd.Flags().StringVar(&w.end, "end", "", "Window end, RFC 3339 (defaults to now)")
	cmd.Flags().DurationVar(&w.lookback, "lookback", 24*time.Hour, "Window length when --start is omitted")
}

func runCmd(opts *rootOptions) *cobra.Command {
	window := &windowOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile every payment completed in the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := resolveWindow(window.start, window.end, window.lookback, time.Now())
			if err != nil {
				return err
			}
			return withEngine(opts, func(engine *usecase.ReconciliationEngine) error {
				summary, err := engine.ReconcileRange(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.output, summary)
			})
		},
	}
	window.bind(cmd)
	return cmd
}

func reportCmd(opts *rootOptions) *cobra.Command {
	window := &windowOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize reconciliation records in the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := resolveWindow(window.start, window.end, window.lookback, time.Now())
			if err != nil {
				return err
			}
			return withEngine(opts, func(engine *usecase.ReconciliationEngine) error {
				report, err := engine.GenerateReport(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.output, report)
			})
		},
	}
	window.bind(cmd)
	return cmd
}

func discrepanciesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discrepancies",
		Short: "List unmatched payments, largest difference first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(engine *usecase.ReconciliationEngine) error {
				discrepancies, err := engine.DetectDiscrepancies(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.output, discrepancies)
			})
		},
	}
}

// withEngine opens the database named by the config and hands a reconciliation
// engine to fn. Confirmed amounts come from stored gateway transactions.
func withEngine(opts *rootOptions, fn func(*usecase.ReconciliationEngine) error) error {
	if err := validateFormat(opts.output); err != nil {
		return err
	}

	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr so stdout carries only the report.
	logger, err := pkglogger.NewZapLogger(pkglogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := database.Close(db, logger); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	repos := database.NewRepositories(db, logger)
	engine := usecase.NewReconciliationEngine(repos.Payment, repos.Reconciliation,
		usecase.NewStoredTransactionSource(repos.GatewayTransaction), nil, nil, logger)
	return fn(engine)
}

func resolveWindow(startRaw, endRaw string, lookback time.Duration, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if endRaw != "" {
		parsed, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = parsed.UTC()
	}

	if lookback <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("--lookback must be positive")
	}
	start := end.Add(-lookback)
	if startRaw != "" {
		parsed, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = parsed.UTC()
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end must be after --start")
	}
	return start, end, nil
}
