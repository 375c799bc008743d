// Filename: models/csv.go
package models

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// The shipped table covers the JDK and commons utilities the builtin rules
// do not: value-combining helpers whose results derive from their inputs and
// stream-copy helpers that move data between their arguments.
//
//go:embed flow-models.csv
var defaultTable string

// LoadCSV reads rows from a table in the canonical six-column layout:
// namespace,type,subtypes,name,signature,arguments. A leading header row
// and #-comments are skipped. Structural problems (wrong column count, an
// unparseable subtypes flag) fail the whole load; a malformed arguments
// column does not, the row just carries no range.
func LoadCSV(r io.Reader) ([]ExternalModel, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 6
	reader.TrimLeadingSpace = true

	var rows []ExternalModel
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading model table: %w", err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}

		subtypes, err := strconv.ParseBool(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("model table row %d: subtypes flag %q: %w", line, record[2], err)
		}
		rows = append(rows, ExternalModel{
			Namespace: strings.TrimSpace(record[0]),
			Type:      strings.TrimSpace(record[1]),
			Subtypes:  subtypes,
			Name:      strings.TrimSpace(record[3]),
			Signature: strings.TrimSpace(record[4]),
			Arguments: strings.TrimSpace(record[5]),
		})
	}
	return rows, nil
}

func isHeader(record []string) bool {
	return strings.EqualFold(strings.TrimSpace(record[0]), "namespace") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "type")
}

// LoadFile reads one table file from disk.
func LoadFile(path string) ([]ExternalModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model table: %w", err)
	}
	defer f.Close()

	rows, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// DefaultRows parses the embedded table.
func DefaultRows() ([]ExternalModel, error) {
	return LoadCSV(strings.NewReader(defaultTable))
}
