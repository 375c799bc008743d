// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "Lancet"
	ToolInfoURI  = "https://github.com/xkilldash9x/lancet"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer replaces characters not typically safe or allowed in SARIF
// Rule IDs. Alphanumerics, underscore and dot pass through; everything else
// (including hyphen runs) collapses to a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint uniquely identifies a rule definition based on its content.
type RuleFingerprint string

// calculateFingerprint generates a unique hash for the defining characteristics of a finding.
func calculateFingerprint(finding schemas.Finding) RuleFingerprint {
	// Sort CWEs to ensure consistent hashing regardless of input order.
	sortedCWEs := append([]string(nil), finding.CWE...)
	sort.Strings(sortedCWEs)

	data := struct {
		Name           string
		Description    string
		Recommendation string
		CWEs           []string
	}{
		Name:           finding.VulnerabilityName,
		Description:    finding.Description,
		Recommendation: finding.Recommendation,
		CWEs:           sortedCWEs,
	}

	h := sha1.New()
	// Encoding errors are highly unlikely for this simple struct.
	_ = json.NewEncoder(h).Encode(data)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the maps.
	mu sync.Mutex
	// rulesByFingerprint maps a content fingerprint to the generated Rule ID.
	rulesByFingerprint map[RuleFingerprint]string
	// ruleIDUsage tracks how many times a base Rule ID has been used, to handle collisions.
	ruleIDUsage map[string]int
}

// NewSARIFReporter creates a new reporter that writes SARIF output. It takes
// ownership of the writer.
func NewSARIFReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *SARIFReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Initialize empty slices (not nil) for proper JSON marshalling
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:             writer,
		logger:             logger.Named("sarif_reporter"),
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
	}
}

// Write converts a ResultEnvelope into one or more SARIF results and adds them to the log.
func (r *SARIFReporter) Write(result *schemas.ResultEnvelope) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	findingsCount := 0

	for _, finding := range result.Findings {
		ruleID := r.ensureRule(finding)

		messageText := finding.Description
		if messageText == "" {
			messageText = finding.VulnerabilityName
		}

		// The taint payload is optional; findings without one still report a
		// file-level location.
		evidence, evErr := schemas.DecodeTaintEvidence(finding.Evidence)
		if evErr != nil {
			evidence = nil
		}

		sarifResult := &sarif.Result{
			RuleID:              ruleID,
			Message:             &sarif.Message{Text: pString(messageText)},
			Level:               sarif.Level(mapSeverityToSARIFLevel(finding.Severity)),
			Locations:           r.createLocations(finding, evidence),
			PartialFingerprints: resultFingerprints(finding, evidence),
			CodeFlows:           createCodeFlows(finding, evidence),
		}
		run.Results = append(run.Results, sarifResult)
		findingsCount++
	}

	if findingsCount > 0 {
		r.logger.Debug("Wrote findings to SARIF buffer",
			zap.Int("findings_count", findingsCount),
			zap.Duration("duration_ms", time.Since(startTime)),
		)
	}

	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var resultsCount, rulesCount int
	if len(r.log.Runs) > 0 && r.log.Runs[0] != nil {
		resultsCount = len(r.log.Runs[0].Results)
		if r.log.Runs[0].Tool != nil && r.log.Runs[0].Tool.Driver != nil {
			rulesCount = len(r.log.Runs[0].Tool.Driver.Rules)
		}
	}

	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", resultsCount),
		zap.Int("total_rules", rulesCount),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ") // Pretty print

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		// Prioritize the encoding error as it indicates corrupted/incomplete output.
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}

	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Successfully wrote SARIF report",
		zap.Duration("duration_ms", time.Since(startTime)),
	)

	return nil
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func (r *SARIFReporter) sanitizeRuleName(name string) string {
	if name == "" {
		return "UNNAMED-VULNERABILITY"
	}

	sanitizedName := strings.ToUpper(name)
	sanitizedName = ruleIDSanitizer.ReplaceAllString(sanitizedName, "-")
	sanitizedName = strings.Trim(sanitizedName, "-")

	// Fallback for names that were only symbols.
	if sanitizedName == "" {
		return "UNKNOWN-VULNERABILITY"
	}
	return sanitizedName
}

// ensureRule ensures a unique rule definition exists for the finding and returns its ID.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(finding schemas.Finding) string {
	// 1. Check if we have already seen this exact rule definition.
	fingerprint := calculateFingerprint(finding)
	if ruleID, exists := r.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	// 2. This is a new rule definition. Generate a unique Rule ID.
	baseName := r.sanitizeRuleName(finding.VulnerabilityName)
	baseRuleID := "LANCET-" + baseName

	// Track usage to generate suffixes if necessary.
	usageCount := r.ruleIDUsage[baseRuleID]
	r.ruleIDUsage[baseRuleID] = usageCount + 1

	finalRuleID := baseRuleID
	if usageCount > 0 {
		// The base ID is already taken by a different fingerprint.
		finalRuleID = fmt.Sprintf("%s-%d", baseRuleID, usageCount)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", finalRuleID),
		)
	}

	// 3. Register the new rule.
	r.logger.Debug("Registering new SARIF rule definition", zap.String("rule_id", finalRuleID))

	driver := r.log.Runs[0].Tool.Driver

	markdownHelp := fmt.Sprintf("**Vulnerability:** %s\n\n**Description:**\n%s\n\n**Recommendation:**\n%s",
		finding.VulnerabilityName, finding.Description, finding.Recommendation)

	newRule := &sarif.ReportingDescriptor{
		ID:               finalRuleID,
		Name:             pString(finding.VulnerabilityName),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(finding.VulnerabilityName)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(finding.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(finding.Recommendation),
			Markdown: pString(markdownHelp),
		},
		Properties: &sarif.PropertyBag{
			"tags":      []string{"security", "taint-flow"},
			"precision": "high",
			// Storing []string in map[string]interface{} keeps marshalling simple.
			"CWE": finding.CWE,
		},
	}
	driver.Rules = append(driver.Rules, newRule)
	r.rulesByFingerprint[fingerprint] = finalRuleID
	return finalRuleID
}

// createLocations converts finding details into SARIF location objects. The
// primary location is the first sink when the evidence names one, otherwise
// the first marked expression, otherwise the bare artifact.
func (r *SARIFReporter) createLocations(finding schemas.Finding, evidence *schemas.TaintEvidence) []*sarif.Location {
	msgText := fmt.Sprintf("Vulnerability found at %s", finding.Target)

	location := &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{
				URI: pString(finding.Target),
			},
		},
		Message: &sarif.Message{
			Text: pString(msgText),
		},
	}

	if evidence != nil {
		if len(evidence.Sinks) > 0 {
			location.PhysicalLocation.Region = markedRegion(evidence.Sinks[0].Sink)
		} else if len(evidence.Marked) > 0 {
			location.PhysicalLocation.Region = markedRegion(evidence.Marked[0])
		}
		if evidence.Scope != "" {
			location.Message = &sarif.Message{
				Text: pString(fmt.Sprintf("Tainted flow in %s", evidence.Scope)),
			}
		}
	}

	return []*sarif.Location{location}
}

// createCodeFlows renders each sink's propagation path as a SARIF code flow.
func createCodeFlows(finding schemas.Finding, evidence *schemas.TaintEvidence) []*sarif.CodeFlow {
	if evidence == nil {
		return nil
	}

	var flows []*sarif.CodeFlow
	for _, hit := range evidence.Sinks {
		if len(hit.Path) == 0 {
			continue
		}
		locations := make([]*sarif.ThreadFlowLocation, 0, len(hit.Path))
		for _, step := range hit.Path {
			locations = append(locations, &sarif.ThreadFlowLocation{
				Location: &sarif.Location{
					PhysicalLocation: &sarif.PhysicalLocation{
						ArtifactLocation: &sarif.ArtifactLocation{URI: pString(finding.Target)},
						Region:           markedRegion(step),
					},
					Message: &sarif.Message{Text: pString(step.Snippet)},
				},
			})
		}
		flows = append(flows, &sarif.CodeFlow{
			Message:     &sarif.Message{Text: pString(fmt.Sprintf("Taint reaches %s", hit.Sink.Snippet))},
			ThreadFlows: []*sarif.ThreadFlow{{Locations: locations}},
		})
	}
	return flows
}

// resultFingerprints produces a stable identity for the result so consumers
// can track it across runs even when line numbers move.
func resultFingerprints(finding schemas.Finding, evidence *schemas.TaintEvidence) map[string]string {
	h := sha1.New()
	fmt.Fprint(h, finding.Target, "|", finding.VulnerabilityName, "|")
	if evidence != nil {
		fmt.Fprint(h, evidence.Scope, "|")
		for _, hit := range evidence.Sinks {
			fmt.Fprint(h, hit.Sink.Snippet, "|")
		}
	}
	return map[string]string{
		"lancetFlowFingerprint/v1": hex.EncodeToString(h.Sum(nil)),
	}
}

// markedRegion converts a marked expression into a SARIF region.
func markedRegion(m schemas.MarkedExpr) *sarif.Region {
	region := &sarif.Region{
		StartLine:   m.Line,
		StartColumn: m.Column,
	}
	if m.Snippet != "" {
		region.Snippet = &sarif.Message{Text: pString(m.Snippet)}
	}
	return region
}

// mapSeverityToSARIFLevel converts Lancet's severity to the SARIF standard.
func mapSeverityToSARIFLevel(severity schemas.Severity) string {
	switch strings.ToLower(string(severity)) {
	case "critical", "high":
		return string(sarif.LevelError)
	case "medium":
		return string(sarif.LevelWarning)
	case "low", "info":
		return string(sarif.LevelNote)
	default:
		return string(sarif.LevelNote)
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
