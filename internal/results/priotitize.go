package results

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// Normalize wraps raw findings for scoring. The normalized severity is the
// lowercase severity string, which is what ScoreConfig weights key on.
func Normalize(findings []schemas.Finding) []NormalizedFinding {
	normalized := make([]NormalizedFinding, len(findings))
	for i, f := range findings {
		normalized[i] = NormalizedFinding{
			Finding:            f,
			NormalizedSeverity: strings.ToLower(string(f.Severity)),
		}
	}
	return normalized
}

// Prioritize sorts a slice of NormalizedFinding based on a calculated score.
// The score combines the severity weight with a boost per sink hit in the
// flow evidence, so findings whose taint demonstrably arrived somewhere
// dangerous float to the top.
func Prioritize(findings []NormalizedFinding, config ScoreConfig) ([]NormalizedFinding, error) {
	// First, calculate the score for each finding
	for i := range findings {
		score := 0.0
		if weight, ok := config.SeverityWeights[findings[i].NormalizedSeverity]; ok {
			score = weight
		}
		if config.SinkHitWeight != 0 {
			// Findings without a decodable taint payload simply get no boost.
			if ev, err := schemas.DecodeTaintEvidence(findings[i].Evidence); err == nil {
				score += config.SinkHitWeight * float64(len(ev.Sinks))
			}
		}
		findings[i].Score = score
	}

	// Now, sort the findings slice in-place based on the calculated score
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Score != findings[j].Score {
			return findings[i].Score > findings[j].Score
		}
		// Secondary sort for deterministic output.
		return findings[i].VulnerabilityName < findings[j].VulnerabilityName
	})

	return findings, nil
}
