package results

import (
	"encoding/json"
	"time"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// Report represents the final aggregated scan report.
type Report struct {
	ScanID   string            `json:"scan_id"`
	Findings []schemas.Finding `json:"findings"`
	Summary  map[string]int    `json:"summary"`
}

// NewReport compiles the final list of prioritized findings into a Report
// struct, including a severity tally.
func NewReport(scanID string, findings []schemas.Finding) *Report {
	return &Report{
		ScanID:   scanID,
		Findings: findings,
		Summary:  generateSummary(findings),
	}
}

// ToJSON serializes the report to a JSON byte slice.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Envelope wraps the report findings for reporters and the store.
func (r *Report) Envelope(timestamp time.Time) *schemas.ResultEnvelope {
	return &schemas.ResultEnvelope{
		ScanID:    r.ScanID,
		Timestamp: timestamp,
		Findings:  r.Findings,
	}
}

func generateSummary(findings []schemas.Finding) map[string]int {
	summary := make(map[string]int)
	summary["total"] = len(findings)
	for _, f := range findings {
		summary[string(f.Severity)]++
	}
	return summary
}
