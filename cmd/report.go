// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/results"
	"github.com/xkilldash9x/lancet/internal/store"
)

// storeProvider creates the findings store a report reads from. The
// abstraction exists for testing: it allows injecting a fake store instead
// of a live database connection.
type storeProvider interface {
	// Create initializes and returns a schemas.Store, a cleanup function to
	// release resources, and an error if the creation fails.
	Create(ctx context.Context, cfg *config.Config) (schemas.Store, func(), error)
}

// defaultStoreProvider is the production implementation, backed by a
// PostgreSQL connection pool.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (schemas.Store, func(), error) {
	logger := observability.GetLogger()
	if cfg.Store.DSN == "" {
		return nil, nil, fmt.Errorf("store.dsn is not configured (set LANCET_STORE_DSN)")
	}

	pool, err := pgxpool.New(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to findings store: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize findings store: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Findings store connection pool closed")
	}
	return storeService, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var scanID string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render the report for a persisted scan",
		Long: `Reads the findings a previous scan archived in the store, runs them back
through enrichment and prioritization, and renders them in any report format.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("reporting.format", cmd.Flags().Lookup("format")); err != nil {
				return err
			}
			return viper.BindPFlag("reporting.output", cmd.Flags().Lookup("output"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			return runReport(ctx, logger, cfg, scanID, provider)
		},
	}

	reportCmd.Flags().StringVar(&scanID, "scan-id", "", "The ID of the scan to report on (required)")
	_ = reportCmd.MarkFlagRequired("scan-id")
	reportCmd.Flags().StringP("output", "o", "", "Report file path. If unset, the report streams to stdout.")
	reportCmd.Flags().StringP("format", "f", "sarif", "Report format: sarif, json, checkstyle, annotate")

	return reportCmd
}

// runReport contains the core, testable logic for generating a report.
func runReport(ctx context.Context, logger *zap.Logger, cfg *config.Config, scanID string, provider storeProvider) error {
	logger.Info("Starting report generation", zap.String("scan_id", scanID))

	storeService, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	pipeline := results.NewPipeline(storeService, logger)
	report, err := pipeline.ProcessScanResults(ctx, scanID)
	if err != nil {
		return fmt.Errorf("failed to process scan results: %w", err)
	}

	return writeReport(cfg.Reporting.Format, cfg.Reporting.Output, report.Envelope(time.Now().UTC()), logger)
}
