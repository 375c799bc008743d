// internal/reporting/checkstyle_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// checkstyleIssue is a single <error> element, resolved to a source position.
type checkstyleIssue struct {
	line     int
	column   int
	severity string
	message  string
	source   string
}

// CheckstyleReporter buffers findings and emits a checkstyle 8.0 XML document
// on Close, suitable for CI plugins that consume lint output. It is thread safe.
type CheckstyleReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	mu     sync.Mutex
	byFile map[string][]checkstyleIssue
}

// NewCheckstyleReporter creates a reporter that writes checkstyle XML. It
// takes ownership of the writer.
func NewCheckstyleReporter(writer io.WriteCloser, logger *zap.Logger) *CheckstyleReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckstyleReporter{
		writer: writer,
		logger: logger.Named("checkstyle_reporter"),
		byFile: make(map[string][]checkstyleIssue),
	}
}

// Write converts each finding into a file-grouped checkstyle issue.
func (r *CheckstyleReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, finding := range result.Findings {
		issue := checkstyleIssue{
			// Checkstyle consumers reject line 0.
			line:     1,
			severity: mapSeverityToCheckstyle(finding.Severity),
			message:  finding.Description,
			source:   "Lancet." + sanitizeCheckstyleSource(finding.VulnerabilityName),
		}
		if issue.message == "" {
			issue.message = finding.VulnerabilityName
		}

		if evidence, err := schemas.DecodeTaintEvidence(finding.Evidence); err == nil {
			var pos schemas.MarkedExpr
			switch {
			case len(evidence.Sinks) > 0:
				pos = evidence.Sinks[0].Sink
			case len(evidence.Marked) > 0:
				pos = evidence.Marked[0]
			}
			if pos.Line > 0 {
				issue.line = pos.Line
				issue.column = pos.Column
			}
		}

		r.byFile[finding.Target] = append(r.byFile[finding.Target], issue)
	}
	return nil
}

// Close renders the buffered issues as an indented XML document and closes
// the writer.
func (r *CheckstyleReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("checkstyle")
	root.CreateAttr("version", "8.0")

	// Deterministic output: sort files, then issues by position.
	files := make([]string, 0, len(r.byFile))
	for file := range r.byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	total := 0
	for _, file := range files {
		issues := r.byFile[file]
		sort.SliceStable(issues, func(i, j int) bool {
			if issues[i].line != issues[j].line {
				return issues[i].line < issues[j].line
			}
			return issues[i].column < issues[j].column
		})

		fileElem := root.CreateElement("file")
		fileElem.CreateAttr("name", file)
		for _, issue := range issues {
			errElem := fileElem.CreateElement("error")
			errElem.CreateAttr("line", strconv.Itoa(issue.line))
			if issue.column > 0 {
				errElem.CreateAttr("column", strconv.Itoa(issue.column))
			}
			errElem.CreateAttr("severity", issue.severity)
			errElem.CreateAttr("message", issue.message)
			errElem.CreateAttr("source", issue.source)
			total++
		}
	}

	doc.Indent(2)
	_, writeErr := doc.WriteTo(r.writer)
	closeErr := r.writer.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write checkstyle report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Wrote checkstyle report",
		zap.Int("files", len(files)),
		zap.Int("issues", total),
	)
	return nil
}

// mapSeverityToCheckstyle converts Lancet's severity to the three checkstyle levels.
func mapSeverityToCheckstyle(severity schemas.Severity) string {
	switch strings.ToLower(string(severity)) {
	case "critical", "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "info"
	}
}

// sanitizeCheckstyleSource produces a dotted-identifier-friendly source tag.
func sanitizeCheckstyleSource(name string) string {
	if name == "" {
		return "Unclassified"
	}
	cleaned := ruleIDSanitizer.ReplaceAllString(name, "")
	if cleaned == "" {
		return "Unclassified"
	}
	return cleaned
}
