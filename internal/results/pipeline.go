// File: internal/results/pipeline.go
package results

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/results/providers"
	"go.uber.org/zap"
)

// Pipeline manages the processing of raw findings into a final report.
type Pipeline struct {
	store    schemas.Store
	enricher *Enricher
	scores   ScoreConfig
	logger   *zap.Logger
}

// NewPipeline creates a new results processing pipeline. The store may be nil
// when the caller already holds the findings in memory and only needs
// ProcessFindings.
func NewPipeline(store schemas.Store, logger *zap.Logger) *Pipeline {
	// Initialize providers for enrichment
	cweProvider := providers.NewInMemoryCWEProvider()
	enricher := NewEnricher(cweProvider, logger)

	return &Pipeline{
		store:    store,
		enricher: enricher,
		scores:   DefaultScoreConfig(),
		logger:   logger.Named("results_pipeline"),
	}
}

// ProcessScanResults retrieves, enriches, and prioritizes findings for a
// previously persisted scan.
func (p *Pipeline) ProcessScanResults(ctx context.Context, scanID string) (*Report, error) {
	p.logger.Info("Starting results processing", zap.String("scan_id", scanID))

	if p.store == nil {
		return nil, fmt.Errorf("no store configured to load scan %s from", scanID)
	}

	findings, err := p.store.GetFindingsByScanID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Retrieved raw findings", zap.Int("count", len(findings)))

	return p.ProcessFindings(ctx, scanID, findings)
}

// ProcessFindings enriches and prioritizes findings already held in memory,
// which is the path a live scan takes before reporting.
func (p *Pipeline) ProcessFindings(ctx context.Context, scanID string, findings []schemas.Finding) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 1. Enrichment
	for i := range findings {
		p.enricher.EnrichFinding(&findings[i])
	}

	// 2. Prioritization (severity weight + sink hit boost)
	prioritized, err := Prioritize(Normalize(findings), p.scores)
	if err != nil {
		return nil, err
	}
	ordered := make([]schemas.Finding, len(prioritized))
	for i, nf := range prioritized {
		ordered[i] = nf.Finding
	}

	// 3. Aggregation (Summary)
	report := NewReport(scanID, ordered)

	p.logger.Info("Results processing complete", zap.Int("count", len(ordered)))
	return report, nil
}
