// internal/results/enrich.go
package results

import (
	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/results/providers"
	"go.uber.org/zap"
)

// Enricher is responsible for enhancing findings with additional context.
type Enricher struct {
	cweProvider providers.CWEProvider
	logger      *zap.Logger
}

// NewEnricher creates a new Enricher instance.
func NewEnricher(cweProvider providers.CWEProvider, logger *zap.Logger) *Enricher {
	return &Enricher{
		cweProvider: cweProvider,
		logger:      logger.Named("enricher"),
	}
}

// EnrichFinding enhances a single finding in place.
func (e *Enricher) EnrichFinding(finding *schemas.Finding) {
	e.enrichCWE(finding)
	// Add other enrichment steps here (e.g., CVSS calculation)
}

func (e *Enricher) enrichCWE(finding *schemas.Finding) {
	if len(finding.CWE) == 0 || e.cweProvider == nil {
		return
	}

	// We only use the first CWE ID for enrichment currently.
	cweID := finding.CWE[0]

	entry, err := e.cweProvider.GetCWE(cweID)
	if err != nil {
		e.logger.Debug("Could not retrieve CWE details", zap.String("cwe_id", cweID), zap.Error(err))
		return
	}

	// If the name is very generic, replace it with the CWE's canonical one.
	// A specific name assigned by the analysis stays as-is.
	isGenericName := finding.VulnerabilityName == "" || finding.VulnerabilityName == "Unclassified Vulnerability"
	if isGenericName && entry.Name != "" {
		finding.VulnerabilityName = entry.Name
	}

	// Enrich description if the current one is empty or very short.
	if len(finding.Description) < 20 && entry.Description != "" {
		finding.Description = entry.Description
	}

	// Findings frequently arrive without remediation advice; the CWE catalog
	// carries a usable default.
	if finding.Recommendation == "" && entry.Remediation != "" {
		finding.Recommendation = entry.Remediation
	}
}
