// internal/reporting/annotate_reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// taintMarker is inserted immediately before every tainted expression.
const taintMarker = "/*~~>*/"

// contextLines is how many unchanged lines surround a changed hunk.
const contextLines = 2

// AnnotateReporter renders findings as a diff against the scanned sources,
// with a marker inserted before every expression the analysis tainted. The
// output is meant for humans reviewing a flow, not for machines. It is
// thread safe.
type AnnotateReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	mu sync.Mutex
	// offsets collects marked start bytes per target file across envelopes.
	offsets map[string]map[int]struct{}
}

// NewAnnotateReporter creates a reporter that writes annotated source diffs.
// It takes ownership of the writer.
func NewAnnotateReporter(writer io.WriteCloser, logger *zap.Logger) *AnnotateReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnotateReporter{
		writer:  writer,
		logger:  logger.Named("annotate_reporter"),
		offsets: make(map[string]map[int]struct{}),
	}
}

// Write records the marked byte offsets of every finding that carries a
// taint payload. Findings without one have nothing to annotate.
func (r *AnnotateReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, finding := range result.Findings {
		evidence, err := schemas.DecodeTaintEvidence(finding.Evidence)
		if err != nil {
			continue
		}
		if len(evidence.Marked) == 0 {
			continue
		}
		set := r.offsets[finding.Target]
		if set == nil {
			set = make(map[int]struct{})
			r.offsets[finding.Target] = set
		}
		for _, m := range evidence.Marked {
			set[m.StartByte] = struct{}{}
		}
	}
	return nil
}

// Close reads each annotated file from disk, inserts the markers, and writes
// the per-file diffs. Files that cannot be read (e.g. sources scanned out of
// a git ref rather than the worktree) are skipped with a warning.
func (r *AnnotateReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]string, 0, len(r.offsets))
	for target := range r.offsets {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	var writeErr error
	annotated := 0
	for _, target := range targets {
		src, err := os.ReadFile(target)
		if err != nil {
			r.logger.Warn("Skipping unreadable file in annotate output",
				zap.String("file", target),
				zap.Error(err),
			)
			continue
		}

		set := r.offsets[target]
		offsets := make([]int, 0, len(set))
		for off := range set {
			offsets = append(offsets, off)
		}

		after := insertMarkers(src, offsets)
		if err := renderFileDiff(r.writer, target, string(src), after); err != nil {
			writeErr = err
			break
		}
		annotated++
	}

	closeErr := r.writer.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write annotate report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Wrote annotate report", zap.Int("files", annotated))
	return nil
}

// insertMarkers splices the taint marker in front of each byte offset.
// Offsets are applied highest first so earlier insertions do not shift
// later ones.
func insertMarkers(src []byte, offsets []int) string {
	valid := offsets[:0]
	for _, off := range offsets {
		if off >= 0 && off <= len(src) {
			valid = append(valid, off)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))

	out := append([]byte(nil), src...)
	for _, off := range valid {
		out = append(out[:off], append([]byte(taintMarker), out[off:]...)...)
	}
	return string(out)
}

// renderFileDiff writes a unified-style diff of the annotation, eliding long
// unchanged runs.
func renderFileDiff(w io.Writer, path, before, after string) error {
	if _, err := fmt.Fprintf(w, "--- a/%s\n+++ b/%s\n", path, path); err != nil {
		return err
	}

	for _, chunk := range diff.Do(before, after) {
		lines := splitDiffLines(chunk.Text)
		switch chunk.Type {
		case diffmatchpatch.DiffInsert:
			if err := writePrefixed(w, "+", lines); err != nil {
				return err
			}
		case diffmatchpatch.DiffDelete:
			if err := writePrefixed(w, "-", lines); err != nil {
				return err
			}
		default:
			if err := writeContext(w, lines); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func splitDiffLines(text string) []string {
	lines := strings.Split(text, "\n")
	// A trailing newline yields an empty final element; drop it.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writePrefixed(w io.Writer, prefix string, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefix, line); err != nil {
			return err
		}
	}
	return nil
}

// writeContext prints unchanged lines, keeping only a few around the edges
// of the run so annotated hunks stay readable.
func writeContext(w io.Writer, lines []string) error {
	if len(lines) <= 2*contextLines+1 {
		return writePrefixed(w, " ", lines)
	}
	if err := writePrefixed(w, " ", lines[:contextLines]); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "..."); err != nil {
		return err
	}
	return writePrefixed(w, " ", lines[len(lines)-contextLines:])
}
