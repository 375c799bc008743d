package results

import (
	"github.com/xkilldash9x/lancet/api/schemas"
)

// Defines the parameters for the prioritization process.
type ScoreConfig struct {
	// Keys are the lowercase schemas.Severity strings.
	SeverityWeights map[string]float64
	// SinkHitWeight is added to the score once per sink the flow evidence
	// reached. A finding that proves arrival at a sink outranks one of equal
	// severity that only proves propagation.
	SinkHitWeight float64
}

// DefaultScoreConfig returns the weights used when the caller provides none.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		SeverityWeights: map[string]float64{
			string(schemas.SeverityCritical): 100,
			string(schemas.SeverityHigh):     80,
			string(schemas.SeverityMedium):   50,
			string(schemas.SeverityLow):      20,
			string(schemas.SeverityInfo):     5,
		},
		SinkHitWeight: 10,
	}
}

// Represents a finding that has been standardized for scoring.
type NormalizedFinding struct {
	schemas.Finding
	Score              float64
	NormalizedSeverity string
}
