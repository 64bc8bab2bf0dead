package cron

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/cronexpr"
	robfig "github.com/robfig/cron/v3"
)

// ErrNoFutureFire is returned when an expression never fires after the
// reference instant (e.g. "0 0 30 2 *", or a year list in the past).
var ErrNoFutureFire = errors.New("cron expression has no future fire time")

// Dialect selects how the day-of-week field is numbered.
type Dialect int

const (
	// DialectUnix numbers days of week 0-7 with both 0 and 7 meaning Sunday.
	// Auto Scaling recurrences use this dialect.
	DialectUnix Dialect = iota
	// DialectAWS numbers days of week 1-7 starting on Sunday, as EventBridge
	// cron() schedule expressions do.
	DialectAWS
)

var (
	fiveFieldParser = robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow)

	dowNumber = regexp.MustCompile(`\d+`)
)

// nexter is implemented by both schedule engines. Next returns the first
// instant strictly after t, or the zero time when there is none.
type nexter interface {
	Next(t time.Time) time.Time
}

// Schedule is a parsed expression able to compute fire times in UTC.
type Schedule struct {
	engine nexter
}

// NewSchedule builds a Schedule from a 5 or 6 field expression. A sixth field
// is interpreted as the year.
//
// Expressions with a year field are evaluated by cronexpr, which also
// understands the L, W and # day extensions. Five-field expressions use
// robfig/cron.
func NewSchedule(expression string, dialect Dialect) (*Schedule, error) {
	expr, err := Parse(expression)
	if err != nil {
		return nil, err
	}

	fields := expr.Fields()
	if dialect == DialectAWS {
		fields[4] = shiftDaysOfWeek(fields[4])
	}

	var engine nexter
	if len(fields) == 6 {
		engine, err = cronexpr.Parse(strings.Join(fields, " "))
	} else {
		fields[4] = normalizeSunday(fields[4])
		engine, err = fiveFieldParser.Parse(strings.Join(fields, " "))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expression, err)
	}
	return &Schedule{engine: engine}, nil
}

// NextAtOrAfter returns the first fire instant at or after t, in UTC, at
// whole-second resolution.
func (s *Schedule) NextAtOrAfter(t time.Time) (time.Time, error) {
	next := s.engine.Next(t.UTC().Add(-time.Nanosecond))
	if next.IsZero() {
		return time.Time{}, ErrNoFutureFire
	}
	return next.UTC(), nil
}

// NextAtOrAfter parses expression and returns its first fire instant at or
// after t.
func NextAtOrAfter(expression string, dialect Dialect, t time.Time) (time.Time, error) {
	s, err := NewSchedule(expression, dialect)
	if err != nil {
		return time.Time{}, err
	}
	return s.NextAtOrAfter(t)
}

// shiftDaysOfWeek converts numeric AWS days of week (1-7) to Unix numbering
// (0-6). Step values and the week number after # are left alone.
func shiftDaysOfWeek(field string) string {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		base, step, hasStep := strings.Cut(part, "/")
		day, nth, hasNth := strings.Cut(base, "#")
		day = dowNumber.ReplaceAllStringFunc(day, func(n string) string {
			v, err := strconv.Atoi(n)
			if err != nil || v == 0 {
				return n
			}
			return strconv.Itoa(v - 1)
		})
		if hasNth {
			day += "#" + nth
		}
		if hasStep {
			day += "/" + step
		}
		parts[i] = day
	}
	return strings.Join(parts, ",")
}

// normalizeSunday rewrites the Unix day-of-week 7 as 0, which robfig/cron
// requires. A range ending on 7 is cut at 6 and Sunday added separately.
func normalizeSunday(field string) string {
	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		base, step, hasStep := strings.Cut(part, "/")
		lo, hi, isRange := strings.Cut(base, "-")
		switch {
		case base == "7" && !hasStep:
			base = "0"
		case isRange && hi == "7" && lo != "7":
			base = lo + "-6"
			if reachesSeven(lo, step, hasStep) {
				out = append(out, "0")
			}
		}
		if hasStep {
			base += "/" + step
		}
		out = append(out, base)
	}
	return strings.Join(out, ",")
}

func reachesSeven(lo, step string, hasStep bool) bool {
	if !hasStep {
		return true
	}
	from, err1 := strconv.Atoi(lo)
	n, err2 := strconv.Atoi(step)
	if err1 != nil || err2 != nil || n <= 0 {
		return false
	}
	return (7-from)%n == 0
}
