package schemas

import "time"

// -- Result Schemas --

// ResultEnvelope is the top level wrapper for all findings produced by a
// single scan. Reporters consume it and the store persists it.
type ResultEnvelope struct {
	ScanID    string    `json:"scan_id"`
	Timestamp time.Time `json:"timestamp"`
	Findings  []Finding `json:"findings"`
}
