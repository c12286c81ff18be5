package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// fallbackNext is used when an expression cannot be evaluated.
const fallbackNext = time.Hour

// Five fields only: minute hour day-of-month month day-of-week.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// fieldKind classifies one expression field.
type fieldKind int

const (
	fieldAny fieldKind = iota
	fieldValue
	fieldStep
)

type field struct {
	kind fieldKind
	n    int // value or step
	raw  string
}

func parseField(raw string) (field, bool) {
	switch {
	case raw == "*":
		return field{kind: fieldAny, raw: raw}, true
	case strings.HasPrefix(raw, "*/"):
		n, ok := atoi(raw[2:])
		if !ok || n <= 0 {
			return field{}, false
		}
		return field{kind: fieldStep, n: n, raw: raw}, true
	default:
		n, ok := atoi(raw)
		if !ok {
			return field{}, false
		}
		return field{kind: fieldValue, n: n, raw: raw}, true
	}
}

// atoi accepts only plain non-negative decimal digits (no sign, no spaces).
func atoi(s string) (int, bool) {
	if s == "" || len(s) > 4 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// splitFields checks the syntax: exactly five whitespace-separated fields,
// each "*", a non-negative integer, or "*/N" with N > 0.
func splitFields(expr string) ([5]field, error) {
	var out [5]field
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return out, errors.Wrapf(ErrInvalidSchedule, "%q: expected 5 fields, got %d", expr, len(parts))
	}
	for i, p := range parts {
		f, ok := parseField(p)
		if !ok {
			return out, errors.Wrapf(ErrInvalidSchedule, "%q: bad field %q", expr, p)
		}
		out[i] = f
	}
	return out, nil
}

// ValidateExpr reports whether expr is a usable five-field cron expression.
// Values outside a field's range (minute 75, weekday 9) are rejected too.
func ValidateExpr(expr string) error {
	_, err := parseExpr(expr)
	return err
}

func parseExpr(expr string) (cron.Schedule, error) {
	if _, err := splitFields(expr); err != nil {
		return nil, err
	}
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%q", expr), ErrInvalidSchedule)
	}
	return sched, nil
}

// NextRun returns the first instant after now matching expr, evaluated in loc.
// When expr cannot be evaluated it returns now + 1h.
func NextRun(expr string, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	sched, err := parseExpr(expr)
	if err != nil {
		return now.Add(fallbackNext)
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return now.Add(fallbackNext)
	}
	return next
}

// NextRuns returns up to n upcoming instants for expr.
func NextRuns(expr string, now time.Time, loc *time.Location, n int) ([]time.Time, error) {
	sched, err := parseExpr(expr)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]time.Time, 0, n)
	t := now.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadZone resolves an IANA zone name and its display label. An empty label
// becomes the zone's standard-time abbreviation.
func LoadZone(tz, label string) (*time.Location, string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, "", errors.Wrapf(err, "load timezone %q", tz)
	}
	if label = strings.TrimSpace(label); label == "" {
		label = zoneLabel(loc)
	}
	return loc, label, nil
}

// zoneLabel is the abbreviation in effect on January 1st (standard time in
// the northern hemisphere).
func zoneLabel(loc *time.Location) string {
	y := time.Now().In(loc).Year()
	name, _ := time.Date(y, time.January, 1, 12, 0, 0, 0, loc).Zone()
	if name == "" {
		return loc.String()
	}
	return name
}
