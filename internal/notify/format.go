package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/phase"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// outcomeSeverity is success for complete tests and warning for tests that
// stopped early.
func outcomeSeverity(o engine.Outcome) string {
	if o.Status == engine.Complete {
		return "success"
	}
	return "warning"
}

// FormatOutcome formats a finished test of a project.
func FormatOutcome(project string, o engine.Outcome) Event {
	severity := outcomeSeverity(o)
	title := fmt.Sprintf("%s: %s test %s %s", project, o.Kind, o.Test, o.Status)

	var body []string
	switch o.Kind {
	case phase.Safety:
		body = append(body, fmt.Sprintf("**Safety factor**: %s", num(o.SafetyFactor)))
	case phase.Load, phase.Failure:
		body = append(body, fmt.Sprintf("**Capacity**: %s kN", num(o.Capacity)))
	}
	if o.Reason != "" {
		body = append(body, fmt.Sprintf("**Reason**: %s", o.Reason))
	}

	fields := []Field{
		{Name: "Test", Value: o.Test, Short: true},
		{Name: "Kind", Value: string(o.Kind), Short: true},
		{Name: "Status", Value: string(o.Status), Short: true},
		{Name: "Phases", Value: strconv.Itoa(len(o.Phases)), Short: true},
	}
	if o.Capacity != 0 {
		fields = append(fields, Field{Name: "Capacity", Value: num(o.Capacity), Short: true})
	}
	if o.SafetyFactor != 0 {
		fields = append(fields, Field{Name: "Safety factor", Value: num(o.SafetyFactor), Short: true})
	}

	return Event{
		Title:    title,
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
