package schemas

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// -- Finding Schemas --

// Severity represents the severity level of a security finding, ranging from
// critical to informational. The values are lowercase to align with database ENUMs.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "critical" // Represents a critical vulnerability.
	SeverityHigh     Severity = "high"     // Represents a high-severity vulnerability.
	SeverityMedium   Severity = "medium"   // Represents a medium-severity vulnerability.
	SeverityLow      Severity = "low"      // Represents a low-severity vulnerability.
	SeverityInfo     Severity = "info"     // Represents an informational finding.
)

// SeverityRank orders severities for threshold comparisons, info lowest.
// Unknown values rank below info so they never trip a gate.
func SeverityRank(s Severity) int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Finding encapsulates all the details of a single data-flow finding
// identified by a scan. It includes information about the vulnerability, its
// location, severity, and evidence. This struct maps directly to the `findings`
// table in the database.
type Finding struct {
	ID     string `json:"id"`      // Unique identifier for the finding.
	ScanID string `json:"scan_id"` // The ID of the scan that produced this finding.

	// ObservedAt is the timestamp when the finding was discovered.
	ObservedAt time.Time `json:"observed_at"`

	Target string `json:"target"` // The file the flow was found in, relative to the scan root.
	Module string `json:"module"` // The name of the analysis module that reported the finding.

	// VulnerabilityName is a descriptive name for the type of vulnerability (e.g., "Tainted Data Reaches Sink").
	VulnerabilityName string `json:"vulnerability_name"`

	Severity    Severity `json:"severity"`    // The severity level of the finding.
	Description string   `json:"description"` // A detailed description of the data flow.

	// Evidence provides structured, machine-readable proof of the finding,
	// stored as JSONB in the database. Taint findings carry a TaintEvidence.
	Evidence json.RawMessage `json:"evidence,omitempty"`

	Recommendation string   `json:"recommendation"` // Suggested steps for remediation.
	CWE            []string `json:"cwe,omitempty"`  // A list of relevant Common Weakness Enumeration (CWE) identifiers.
}

// -- Taint Evidence Schemas --

// MarkedExpr is one expression the flow analysis marked, positioned for
// report output. Line and Column are 1-based; the byte offsets address the
// raw file content.
type MarkedExpr struct {
	Snippet   string `json:"snippet"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// SinkHit couples one sink expression with the propagation steps that
// reached it, source first.
type SinkHit struct {
	Sink MarkedExpr   `json:"sink"`
	Path []MarkedExpr `json:"path,omitempty"`
}

// TaintEvidence is the structured evidence payload attached to taint
// findings. Marked holds every expression the analysis proved reachable from
// a source, in source order. Sinks is the subset that also matched a sink
// rule; sink matching never changes what gets marked.
type TaintEvidence struct {
	Scope  string       `json:"scope"`
	Marked []MarkedExpr `json:"marked"`
	Sinks  []SinkHit    `json:"sinks,omitempty"`
}

// Encode serializes the evidence for embedding in a Finding.
func (e *TaintEvidence) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode taint evidence: %w", err)
	}
	return raw, nil
}

// DecodeTaintEvidence recovers the structured payload from a finding's raw
// evidence. Reporters use this to render locations and flow steps.
func DecodeTaintEvidence(raw json.RawMessage) (*TaintEvidence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("empty evidence payload")
	}
	var ev TaintEvidence
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode taint evidence: %w", err)
	}
	return &ev, nil
}
