// -- cmd/scan.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/observability"
	"github.com/xkilldash9x/comet-monkey/internal/orchestrator"
	"github.com/xkilldash9x/comet-monkey/internal/reporting"
)

const shutdownTimeout = 15 * time.Second

// scanFlagKeys maps scan flags onto their config keys.
var scanFlagKeys = map[string]string{
	"concurrency":      "browser.concurrency",
	"headless":         "browser.headless",
	"max-interactions": "interaction.max_interactions",
	"output":           "report.output",
	"format":           "report.format",
	"output-dir":       "report.output_dir",
	"screenshots":      "report.screenshots",
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd(v *viper.Viper, deps dependencies) *cobra.Command {
	var runID string

	scanCmd := &cobra.Command{
		Use:   "scan [targets...]",
		Short: "Explores and audits one or more pages",
		Long: `Opens each target in its own browser page, exercises its forms, links and
buttons, then runs the accessibility, performance and security audits.
With no targets, testing.base_url is scanned.`,
		// Flags override the config file and environment, so the config built in
		// PersistentPreRunE is rebuilt once they are bound.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for name, key := range scanFlagKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return fmt.Errorf("binding --%s: %w", name, err)
				}
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("invalid scan options: %w", err)
			}
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			targets := normalizeTargets(args, cfg.Testing().BaseURL)
			if len(targets) == 0 {
				return errors.New("no targets given and testing.base_url is empty")
			}
			if runID == "" {
				runID = uuid.NewString()
			}
			cfg.SetScanConfig(config.ScanConfig{
				Targets: targets,
				RunID:   runID,
				Output:  cfg.Report().Output,
				Format:  cfg.Report().Format,
			})

			return runScan(ctx, logger, cfg, deps, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	scanCmd.Flags().StringVar(&runID, "run-id", "", "Run ID to record results under (default: a new UUID)")

	// Reporting flags
	scanCmd.Flags().StringP("output", "o", "", "Report output file. If unset, the report is printed to stdout.")
	scanCmd.Flags().StringP("format", "f", config.FormatJSON, "Report format ('json' or 'sarif').")
	scanCmd.Flags().String("output-dir", "", "Directory for page screenshots. (Overrides config/env)")
	scanCmd.Flags().Bool("screenshots", true, "Capture a full-page screenshot per target.")

	// Run configuration override flags.
	scanCmd.Flags().IntP("concurrency", "j", 0, "Pages scanned in parallel. (Overrides config/env)")
	scanCmd.Flags().Bool("headless", true, "Run the browser headless.")
	scanCmd.Flags().IntP("max-interactions", "m", 0, "Interaction budget per page. (Overrides config/env)")

	return scanCmd
}

// runScan contains the core, testable logic of the scan command.
func runScan(ctx context.Context, logger *zap.Logger, cfg config.Interface, deps dependencies, stdout, stderr io.Writer) error {
	sc := cfg.Scan()
	logger.Info("Starting scan.",
		zap.String("run_id", sc.RunID),
		zap.Strings("targets", sc.Targets),
		zap.Int("concurrency", cfg.Browser().Concurrency),
		zap.Int("max_interactions", cfg.Interaction().MaxInteractions),
	)

	browserManager := deps.newBrowser(cfg, logger)
	defer func() {
		// The run context may already be cancelled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := browserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}()

	var opts []orchestrator.Option
	if cfg.Database().URL != "" {
		st, cleanup, err := deps.stores.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		opts = append(opts, orchestrator.WithStore(st))
	} else {
		logger.Debug("No database configured, results will not be persisted.")
	}

	orch, err := orchestrator.New(cfg, logger, browserManager, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	reports, runErr := orch.Run(ctx, sc.Targets, sc.RunID)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Scan failed during orchestration.", zap.Error(runErr), zap.String("run_id", sc.RunID))
		return runErr
	}

	// Partial results of an interrupted run are still written out.
	if len(reports) > 0 {
		if err := writeReports(logger, reports, sc.Output, sc.Format, stdout); err != nil {
			return err
		}
	}

	if err := reporting.WriteSummary(stderr, reports); err != nil {
		logger.Warn("Failed to print run summary.", zap.Error(err))
	}
	fmt.Fprintf(stderr, "\nRun ID: %s\n", sc.RunID)

	if runErr != nil {
		logger.Warn("Scan aborted.", zap.String("run_id", sc.RunID), zap.Int("completed_pages", len(reports)))
		return fmt.Errorf("scan aborted: %w", runErr)
	}
	logger.Info("Scan complete.", zap.String("run_id", sc.RunID), zap.Int("pages", len(reports)))
	return nil
}

// writeReports sends the reports to outputPath, or to stdout when no path is
// set.
func writeReports(logger *zap.Logger, reports []*schemas.PageReport, outputPath, format string, stdout io.Writer) error {
	var (
		reporter reporting.Reporter
		err      error
	)
	if outputPath == "" || outputPath == "stdout" {
		reporter, err = reporting.NewForWriter(format, stdout, Version, logger)
	} else {
		reporter, err = reporting.New(format, outputPath, Version, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporting.WriteAll(reporter, reports); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if outputPath != "" && outputPath != "stdout" {
		logger.Info("Report written.", zap.String("path", outputPath), zap.String("format", format))
	}
	return nil
}

// normalizeTargets trims the arguments and adds an https scheme when one is
// missing. With no arguments the fallback URL is used.
func normalizeTargets(args []string, fallback string) []string {
	if len(args) == 0 && fallback != "" {
		args = []string{fallback}
	}
	targets := make([]string, 0, len(args))
	for _, arg := range args {
		t := strings.TrimSpace(arg)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "http://") && !strings.HasPrefix(t, "https://") {
			t = "https://" + t
		}
		targets = append(targets, t)
	}
	return targets
}
