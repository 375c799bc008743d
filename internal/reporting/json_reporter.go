// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// jsonReport is the single document shape the JSON reporter emits on Close.
type jsonReport struct {
	Tool        string            `json:"tool"`
	Version     string            `json:"version,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	ScanID      string            `json:"scan_id,omitempty"`
	Findings    []schemas.Finding `json:"findings"`
	Summary     map[string]int    `json:"summary"`
}

// JSONReporter buffers findings from every envelope and writes one indented
// JSON document when closed. It is thread safe.
type JSONReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	version string

	mu       sync.Mutex
	scanID   string
	findings []schemas.Finding
}

// NewJSONReporter creates a reporter that emits a machine-readable JSON
// document. It takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *JSONReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONReporter{
		writer:  writer,
		logger:  logger.Named("json_reporter"),
		version: toolVersion,
		// Initialize empty slice (not nil) for proper JSON marshalling.
		findings: []schemas.Finding{},
	}
}

// Write accumulates the envelope's findings into the buffered document.
func (r *JSONReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if result.ScanID != "" {
		r.scanID = result.ScanID
	}
	r.findings = append(r.findings, result.Findings...)
	return nil
}

// Close serializes the buffered document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := map[string]int{"total": len(r.findings)}
	for _, f := range r.findings {
		summary[string(f.Severity)]++
	}

	doc := jsonReport{
		Tool:        ToolName,
		Version:     r.version,
		GeneratedAt: time.Now().UTC(),
		ScanID:      r.scanID,
		Findings:    r.findings,
		Summary:     summary,
	}

	data, encodeErr := json.MarshalIndent(doc, "", "  ")
	if encodeErr != nil {
		_ = r.writer.Close()
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}

	_, writeErr := r.writer.Write(append(data, '\n'))
	closeErr := r.writer.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write JSON report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Wrote JSON report", zap.Int("findings", len(r.findings)))
	return nil
}
