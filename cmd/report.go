// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/observability"
	"github.com/xkilldash9x/comet-monkey/internal/store"
)

// runStore is the slice of the store the CLI needs.
type runStore interface {
	schemas.Store
	LatestRunID(ctx context.Context) (string, error)
}

// storeProvider creates the data store. Tests inject a mock instead of a live
// database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function that releases it.
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider that connects to PostgreSQL.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the database named by COMET_DATABASE_URL and ensures the
// schema exists.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (COMET_DATABASE_URL)")
	}
	s, closePool, err := store.Connect(ctx, cfg.Database().URL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		closePool()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var runID string
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Regenerates the report of a stored run",
		Long: `Loads every page report recorded for a run from the database and writes it
as JSON or SARIF. Without --run-id the most recent run is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runReport(ctx, logger, cfg, runID, outputPath, format, provider, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "The run to report on (default: the latest run)")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", config.FormatSARIF, "Report format ('sarif' or 'json').")

	return reportCmd
}

// runReport contains the core, testable logic for generating a report.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	runID, outputPath, format string,
	provider storeProvider,
	stdout io.Writer,
) error {
	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	// Mocks may not provide a cleanup.
	if cleanup != nil {
		defer cleanup()
	}

	if runID == "" {
		runID, err = st.LatestRunID(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNoRuns) {
				return errors.New("no runs recorded yet; run `comet scan` first")
			}
			return err
		}
		logger.Debug("Using latest run.", zap.String("run_id", runID))
	}
	logger.Info("Starting report generation.", zap.String("run_id", runID))

	stored, err := st.GetReportsByRunID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if len(stored) == 0 {
		return fmt.Errorf("no pages recorded for run %s", runID)
	}

	reports := make([]*schemas.PageReport, len(stored))
	for i := range stored {
		reports[i] = &stored[i]
	}
	return writeReports(logger, reports, outputPath, format, stdout)
}
