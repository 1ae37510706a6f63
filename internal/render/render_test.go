package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobandits/app"
	"gobandits/domain/arms"
)

func sampleReport() *app.Report {
	limit := uint64(2)
	return &app.Report{
		Mode:   "runtime-aware",
		Trials: 100,
		Arms: []app.ArmSummary{
			{
				Name:          "parser",
				Stats:         arms.Statistics{Interesting: 8, Uninteresting: 2},
				Runtime:       arms.RuntimeOf(20),
				Bias:          1,
				PosteriorMean: 0.75,
				Lower:         0.5,
				Upper:         0.9,
				FirstShare:    0.8,
				MeanRank:      1.2,
			},
			{
				Name:          "lexer",
				Stats:         arms.Statistics{Interesting: 1, Uninteresting: 9},
				Runtime:       arms.UnknownRuntime,
				Bias:          2,
				Limit:         &limit,
				Eligible:      true,
				PosteriorMean: 0.17,
				FirstShare:    0.2,
				MeanRank:      1.8,
			},
		},
		Order: []int{0, 1},
	}
}

func TestRankingTable(t *testing.T) {
	out := RankingTable(sampleReport())

	assert.Contains(t, out, "Ranking (runtime-aware, 100 trials)")
	assert.Contains(t, out, "parser")
	assert.Contains(t, out, "lexer")
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "unknown")
	assert.Contains(t, out, "[0.500, 0.900]")
	assert.Less(t, strings.Index(out, "parser"), strings.Index(out, "lexer"))
	assert.NotContains(t, out, "did not converge")
}

func TestFormatLimit(t *testing.T) {
	two := uint64(2)
	assert.Equal(t, "-", formatLimit(nil, true))
	assert.Equal(t, "2", formatLimit(&two, true))
	assert.Equal(t, "2 (reached)", formatLimit(&two, false))
}

func TestRanking(t *testing.T) {
	roster := &arms.Roster{Scripts: []arms.Script{
		arms.NewScript("a", "true"),
		arms.NewScript("b", "true"),
	}}
	assert.Equal(t, "  1. b\n  2. a\n", Ranking(roster, []int{1, 0}))
}

func TestFindings(t *testing.T) {
	assert.Contains(t, Findings(nil), "no problems found")

	out := Findings([]app.Finding{
		{Script: "a", Severity: app.SeverityWarning, Message: "careful"},
		{Script: "b", Severity: app.SeverityError, Message: "broken"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "careful")
	assert.Contains(t, lines[1], "ERROR")
}

func TestDensity(t *testing.T) {
	// uniform prior is flat across the unit interval
	flat := Density(1, 1, 1, 1, 10)
	for _, v := range flat {
		assert.InDelta(t, 1.0, v, 1e-12)
	}

	// a scaled curve keeps its mass and is zero beyond its support
	scaled := Density(2, 5, 0.5, 1, 100)
	mass := 0.0
	for _, v := range scaled {
		mass += v * 0.01
	}
	assert.InDelta(t, 1.0, mass, 0.01)
	assert.Zero(t, scaled[60])
}

func TestSparkline(t *testing.T) {
	line := Sparkline([]float64{0, 0.5, 1, 2}, 2)
	assert.Equal(t, 4, utf8.RuneCountInString(line))
	assert.Equal(t, " ▃▅█", line)
	assert.Equal(t, "  ", Sparkline([]float64{1, 1}, 0))
}

func TestTopDensities(t *testing.T) {
	out := TopDensities(sampleReport(), 3, 40)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "parser"), "highest posterior mean first")
	assert.Equal(t, "", TopDensities(&app.Report{}, 3, 40))
}

func TestTopSkewedDensities(t *testing.T) {
	out := TopSkewedDensities(sampleReport(), 3, 40)
	assert.Contains(t, out, "parser")
	assert.Contains(t, out, "unknown runtime, scheduled first: lexer")
}
