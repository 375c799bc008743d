// Filename: syntax/location.go
package syntax

import (
	"fmt"
	"strings"
)

// LocationInfo holds the detailed location and snippet of a finding.
type LocationInfo struct {
	File    string
	Line    int
	Column  int
	Snippet string
}

func (l LocationInfo) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// FormatLocation converts a node position into detailed LocationInfo, using
// the full source line as the snippet when the boundaries can be recovered.
func FormatLocation(filename string, n Node) LocationInfo {
	if n.IsNil() {
		return LocationInfo{File: filename, Snippet: "N/A"}
	}

	snippet := n.Content()
	if lineStart := findLineStart(n.src, n.StartByte()); lineStart >= 0 {
		lineEnd := findLineEnd(n.src, n.StartByte())
		if lineEnd > lineStart {
			snippet = strings.TrimSpace(string(n.src[lineStart:lineEnd]))
		}
	}

	return LocationInfo{
		File:    filename,
		Line:    n.Line(),
		Column:  n.Column(),
		Snippet: snippet,
	}
}

func findLineStart(source []byte, idx int) int {
	if len(source) == 0 {
		return 0
	}
	if idx >= len(source) {
		idx = len(source) - 1
	}
	if idx < 0 {
		return 0
	}
	for i := idx; i >= 0; i-- {
		if source[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func findLineEnd(source []byte, idx int) int {
	for i := idx; i < len(source); i++ {
		if source[i] == '\n' {
			return i
		}
	}
	return len(source)
}
