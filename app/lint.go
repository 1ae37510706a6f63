package app

import (
	"fmt"
	"math"
	"strings"

	"gobandits/domain/arms"
	"gobandits/domain/core"
)

// Severity of a lint finding
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "ERROR"
	}
	return "Warning"
}

// Finding is one problem found in a roster
type Finding struct {
	Script   core.ArmName `json:"script"`
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Script, f.Severity, f.Message)
}

// Lint inspects a roster for settings that are legal but almost certainly
// unintended, plus the structural problems Validate would reject.
func Lint(roster *arms.Roster) []Finding {
	var findings []Finding
	add := func(name core.ArmName, sev Severity, format string, args ...interface{}) {
		findings = append(findings, Finding{Script: name, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[core.ArmName]bool, len(roster.Scripts))
	seenZero := false
	for _, s := range roster.Scripts {
		if seen[s.Name] {
			add(s.Name, SeverityError, "duplicate script name")
		}
		seen[s.Name] = true

		if strings.TrimSpace(s.Command) == "" {
			add(s.Name, SeverityError, "empty command")
		}

		switch {
		case math.IsNaN(s.Bias) || math.IsInf(s.Bias, 0):
			add(s.Name, SeverityError, "bias %v is not a finite number", s.Bias)
		case s.Bias < 0:
			add(s.Name, SeverityError, "a negative bias rewards scripts that take longer to find an interesting case")
		case s.Bias == 0:
			add(s.Name, SeverityWarning, "a bias of 0 only runs after all other scripts reach their limit")
			if seenZero {
				add(s.Name, SeverityError, "multiple scripts with bias 0 are never ranked against each other and run with equal probability regardless of interestingness or runtime")
			}
			seenZero = true
		}

		if ms, known := s.AvgRuntimeMs.Get(); known && (math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0) {
			add(s.Name, SeverityError, "average runtime %v ms is not a positive finite number; reset the script to measure it again", ms)
		}

		if s.Limit != nil && *s.Limit == 0 {
			add(s.Name, SeverityWarning, "a limit of 0 stops this script from ever running; leave it unset for no limit")
		}
	}
	return findings
}

// HasErrors reports whether any finding is an error
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
