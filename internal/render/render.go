// Package render draws reports for a terminal: ranking tables, lint findings
// and one-line posterior density strips.
package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"gobandits/app"
	"gobandits/domain/arms"
	"gobandits/internal/betainc"
	"gobandits/internal/thompson"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// RankingTable renders a report as a table in report order.
func RankingTable(rep *app.Report) string {
	rows := make([][]string, 0, len(rep.Order))
	for pos, idx := range rep.Order {
		a := rep.Arms[idx]
		rows = append(rows, []string{
			strconv.Itoa(pos + 1),
			a.Name.String(),
			strconv.FormatUint(a.Stats.Interesting, 10),
			strconv.FormatUint(a.Stats.Uninteresting, 10),
			a.Runtime.String(),
			strconv.FormatFloat(a.Bias, 'g', 4, 64),
			formatLimit(a.Limit, a.Eligible),
			fmt.Sprintf("%.3f", a.PosteriorMean),
			fmt.Sprintf("[%.3f, %.3f]", a.Lower, a.Upper),
			fmt.Sprintf("%.1f%%", 100*a.FirstShare),
			fmt.Sprintf("%.2f", a.MeanRank),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "script", "interesting", "uninteresting", "runtime", "bias", "limit",
			"mean", "90% interval", "P(first)", "mean rank").
		Rows(rows...)

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Ranking (%s, %d trials)", rep.Mode, rep.Trials)))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	if rep.Approximate {
		b.WriteString(warningStyle.Render("some quantiles did not converge; values are best estimates"))
		b.WriteString("\n")
	}
	return b.String()
}

func formatLimit(limit *uint64, eligible bool) string {
	if limit == nil {
		return "-"
	}
	s := strconv.FormatUint(*limit, 10)
	if !eligible {
		s += " (reached)"
	}
	return s
}

// Ranking renders one sampled ranking as a numbered list of script names.
func Ranking(roster *arms.Roster, order []int) string {
	var b strings.Builder
	for pos, idx := range order {
		fmt.Fprintf(&b, "%3d. %s\n", pos+1, roster.Scripts[idx].Name)
	}
	return b.String()
}

// Findings renders lint findings one per line, or a clean bill of health.
func Findings(findings []app.Finding) string {
	if len(findings) == 0 {
		return dimStyle.Render("no problems found") + "\n"
	}
	var b strings.Builder
	for _, f := range findings {
		style := warningStyle
		if f.Severity == app.SeverityError {
			style = errorStyle
		}
		fmt.Fprintf(&b, "%s %s: %s\n", f.Script, style.Render(f.Severity.String()), f.Message)
	}
	return b.String()
}

// strip is one density curve over a shared horizontal axis
type strip struct {
	label  string
	alpha  float64
	beta   float64
	factor float64
}

// TopDensities draws the posterior density of the n arms with the highest
// posterior mean, width cells wide on [0, 1].
func TopDensities(rep *app.Report, n, width int) string {
	strips := make([]strip, 0, len(rep.Arms))
	for _, a := range rep.Arms {
		strips = append(strips, strip{label: a.Name.String(), alpha: a.Stats.Alpha(), beta: a.Stats.Beta(), factor: 1})
	}
	sort.SliceStable(strips, func(i, j int) bool {
		return strips[i].alpha/(strips[i].alpha+strips[i].beta) > strips[j].alpha/(strips[j].alpha+strips[j].beta)
	})
	return drawStrips("Posterior of the top arms", top(strips, n), width)
}

// TopSkewedDensities draws the density of the runtime-skewed score
// sample × RuntimeScale/runtime × bias for the n arms with the highest skewed
// mean. Arms without a measured runtime always run first and are listed apart.
func TopSkewedDensities(rep *app.Report, n, width int) string {
	strips := make([]strip, 0, len(rep.Arms))
	var unknown []string
	for _, a := range rep.Arms {
		ms, known := a.Runtime.Get()
		if !known {
			unknown = append(unknown, a.Name.String())
			continue
		}
		if ms <= 0 || a.Bias <= 0 {
			continue
		}
		strips = append(strips, strip{
			label:  a.Name.String(),
			alpha:  a.Stats.Alpha(),
			beta:   a.Stats.Beta(),
			factor: thompson.RuntimeScale / ms * a.Bias,
		})
	}
	sort.SliceStable(strips, func(i, j int) bool {
		mi := strips[i].factor * strips[i].alpha / (strips[i].alpha + strips[i].beta)
		mj := strips[j].factor * strips[j].alpha / (strips[j].alpha + strips[j].beta)
		return mi > mj
	})

	out := drawStrips("Runtime-skewed score of the top arms", top(strips, n), width)
	if len(unknown) > 0 {
		out += dimStyle.Render("unknown runtime, scheduled first: "+strings.Join(unknown, ", ")) + "\n"
	}
	return out
}

func top(strips []strip, n int) []strip {
	if n < len(strips) {
		return strips[:n]
	}
	return strips
}

func drawStrips(title string, strips []strip, width int) string {
	if len(strips) == 0 || width <= 0 {
		return ""
	}

	upper := 0.0
	labelWidth := 0
	for _, s := range strips {
		upper = math.Max(upper, s.factor)
		labelWidth = max(labelWidth, len(s.label))
	}

	curves := make([][]float64, len(strips))
	peak := 0.0
	for i, s := range strips {
		curves[i] = Density(s.alpha, s.beta, s.factor, upper, width)
		for _, v := range curves[i] {
			peak = math.Max(peak, v)
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for i, s := range strips {
		fmt.Fprintf(&b, "%-*s %s\n", labelWidth, s.label, Sparkline(curves[i], peak))
	}
	fmt.Fprintf(&b, "%-*s %s\n", labelWidth, "", dimStyle.Render(axis(upper, width)))
	return b.String()
}

// Density samples the density of factor·X, X ~ Beta(alpha, beta), at the
// midpoints of width equal cells covering [0, upper].
func Density(alpha, beta, factor, upper float64, width int) []float64 {
	out := make([]float64, width)
	for i := range out {
		y := (float64(i) + 0.5) * upper / float64(width)
		x := y / factor
		if x <= 0 || x >= 1 {
			continue
		}
		d, err := betainc.Density(x, alpha, beta)
		if err != nil || math.IsInf(d, 0) || math.IsNaN(d) {
			continue
		}
		out[i] = d / factor
	}
	return out
}

// Sparkline maps values onto block characters relative to peak.
func Sparkline(values []float64, peak float64) string {
	var b strings.Builder
	for _, v := range values {
		if peak <= 0 || v <= 0 {
			b.WriteRune(' ')
			continue
		}
		level := int(math.Round(v / peak * float64(len(sparkLevels)-1)))
		level = min(max(level, 0), len(sparkLevels)-1)
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

func axis(upper float64, width int) string {
	left := "0"
	right := strconv.FormatFloat(upper, 'g', 3, 64)
	gap := width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
