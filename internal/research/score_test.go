package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFindings(t *testing.T) {
	tests := []struct {
		name        string
		findings    []Finding
		expectScore float64
		expectTier  string
	}{
		{
			name:        "no findings",
			findings:    nil,
			expectScore: 0,
			expectTier:  "D",
		},
		{
			name: "single mid-weight finding",
			findings: []Finding{
				{Source: "propublica", Weight: 25},
			},
			expectScore: 25,
			expectTier:  "C",
		},
		{
			name: "corroborated wealthy prospect",
			findings: []Finding{
				{Source: "edgar", Weight: 30},
				{Source: "fec", Weight: 30},
				{Source: "propublica", Weight: 25},
			},
			expectScore: 85,
			expectTier:  "A",
		},
		{
			name: "only top three findings per source count",
			findings: []Finding{
				{Source: "edgar", Weight: 30},
				{Source: "edgar", Weight: 30},
				{Source: "edgar", Weight: 30},
				{Source: "edgar", Weight: 30},
				{Source: "edgar", Weight: 30},
			},
			expectScore: 90,
			expectTier:  "A",
		},
		{
			name: "score caps at 100",
			findings: []Finding{
				{Source: "edgar", Weight: 30},
				{Source: "edgar", Weight: 30},
				{Source: "edgar", Weight: 30},
				{Source: "fec", Weight: 30},
			},
			expectScore: 100,
			expectTier:  "A",
		},
		{
			name: "tier B boundary",
			findings: []Finding{
				{Source: "edgar", Weight: 30},
				{Source: "propublica", Weight: 15},
			},
			expectScore: 45,
			expectTier:  "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, tier := ScoreFindings(tt.findings)
			assert.Equal(t, tt.expectScore, score)
			assert.Equal(t, tt.expectTier, tier)
		})
	}
}

func TestVerifiedRequiresTwoSources(t *testing.T) {
	single := []Finding{
		{Source: "edgar", Weight: 30},
		{Source: "edgar", Weight: 30},
	}
	assert.False(t, verified(single))

	corroborated := []Finding{
		{Source: "edgar", Weight: 30},
		{Source: "fec", Weight: 10},
	}
	assert.True(t, verified(corroborated))
}

func TestSourcesOfPreservesFirstSeenOrder(t *testing.T) {
	findings := []Finding{
		{Source: "fec", Weight: 10},
		{Source: "edgar", Weight: 30},
		{Source: "fec", Weight: 5},
	}
	assert.Equal(t, []string{"fec", "edgar"}, sourcesOf(findings))
}
