package scheduler

import (
	"fmt"
	"time"
)

// DescribeSchedule renders common expressions as English; anything else is
// returned unchanged.
//
//	"*/15 * * * *" -> "Every 15 minutes"
//	"0 * * * *"    -> "Every hour"
//	"30 9 * * *"   -> "Every day at 9:30 AM EST"
//	"0 18 * * 1"   -> "Every Monday at 6:00 PM EST"
func DescribeSchedule(expr, zone string) string {
	if ValidateExpr(expr) != nil {
		return expr
	}
	f, _ := splitFields(expr)
	minute, hour, dom, month, dow := f[0], f[1], f[2], f[3], f[4]

	if minute.kind == fieldStep {
		return fmt.Sprintf("Every %d minutes", minute.n)
	}
	if minute.kind == fieldValue && minute.n == 0 &&
		hour.kind == fieldAny && dom.kind == fieldAny && month.kind == fieldAny && dow.kind == fieldAny {
		return "Every hour"
	}
	// The day templates need a fixed time of day.
	if minute.kind != fieldValue || hour.kind != fieldValue || dom.kind != fieldAny || month.kind != fieldAny {
		return expr
	}
	at := clock(hour.n, minute.n)
	if zone != "" {
		at += " " + zone
	}
	switch dow.kind {
	case fieldAny:
		return "Every day at " + at
	case fieldValue:
		return fmt.Sprintf("Every %s at %s", time.Weekday(dow.n), at)
	default:
		return expr
	}
}

// DescribeSchedule uses the service's zone label.
func (s *Service) DescribeSchedule(expr string) string {
	s.mu.Lock()
	label := s.label
	s.mu.Unlock()
	return DescribeSchedule(expr, label)
}

// clock formats a 24h hour/minute as "H:MM AM".
func clock(hour, minute int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, suffix)
}
