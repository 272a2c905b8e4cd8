package research

// Tier boundaries on the 0-100 capacity score.
const (
	tierABoundary = 70
	tierBBoundary = 45
	tierCBoundary = 20
)

// ScoreFindings aggregates evidence into a capacity score and tier. Weights
// sum with diminishing returns per source so one noisy source cannot
// dominate: only the top three findings per source count.
func ScoreFindings(findings []Finding) (float64, string) {
	perSource := make(map[string]int)
	var score float64
	for _, f := range findings {
		if perSource[f.Source] >= 3 {
			continue
		}
		perSource[f.Source]++
		score += f.Weight
	}

	if score > 100 {
		score = 100
	}

	return score, tierForScore(score)
}

func tierForScore(score float64) string {
	switch {
	case score >= tierABoundary:
		return "A"
	case score >= tierBBoundary:
		return "B"
	case score >= tierCBoundary:
		return "C"
	default:
		return "D"
	}
}

// sourcesOf returns the distinct source names present in the findings, in
// first-seen order. Persisted on the result for operator visibility.
func sourcesOf(findings []Finding) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, f := range findings {
		if !seen[f.Source] {
			seen[f.Source] = true
			sources = append(sources, f.Source)
		}
	}
	return sources
}

// verified reports whether the evidence is corroborated: findings from at
// least two independent sources.
func verified(findings []Finding) bool {
	return len(sourcesOf(findings)) >= 2
}
