// Package recurrence corrects UTC cron recurrences so that they fire at a
// declared local wall-clock time.
//
// Given a recurrence assumed to be in UTC, an expected local time (HH:MM) and
// an IANA timezone, the Calculator looks at the next time the recurrence
// fires, converts it to the timezone, and, when the local time differs from
// the expected one, derives a new recurrence in which only the minute and
// hour fields change. Running the calculator on every invocation keeps the
// recurrence aligned across daylight-saving transitions.
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"scheduleadjuster/internal/clock"
	"scheduleadjuster/internal/cron"
	"scheduleadjuster/internal/types"
)

var (
	// ErrNotSupported is returned for recurrences whose hour or minute field
	// is anything other than a single number (ranges, lists, steps, "*").
	ErrNotSupported = errors.New("recurrence not supported")

	// ErrInvalidTimezone is returned when the timezone is not a known IANA name.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidLocalTime is returned when the expected time is not HH:MM.
	ErrInvalidLocalTime = errors.New("invalid local time")
)

// startTimeHorizon is the number of whole days a start time may lie in the
// future before the recurrence is left alone until a later run.
const startTimeHorizon = 1

// safetyMargin is added to the computed next fire instant before it is
// formatted, so that a fire time never renders as the previous minute.
const safetyMargin = time.Second

var literalField = regexp.MustCompile(`^\d+$`)

// Calculator computes corrected recurrences. The zero value is not usable;
// construct one with NewCalculator.
type Calculator struct {
	clock   clock.Source
	dialect cron.Dialect
	logger  *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithDialect selects the cron dialect used to compute fire times.
func WithDialect(d cron.Dialect) Option {
	return func(c *Calculator) {
		c.dialect = d
	}
}

// WithLogger sets the logger used for decision traces.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) {
		c.logger = logger
	}
}

// NewCalculator creates a Calculator. A nil source defaults to the system
// clock.
func NewCalculator(src clock.Source, opts ...Option) *Calculator {
	if src == nil {
		src = clock.System()
	}
	c := &Calculator{
		clock:   src,
		dialect: cron.DialectUnix,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CalculateRecurrence returns the recurrence that makes the action fire at
// expectedTime in timezone.
//
// The current recurrence is returned unchanged when it is not selective on
// the hour, when startTime lies more than a day ahead, or when its next fire
// time already matches the expected local time. Otherwise only the minute and
// hour fields are rewritten; every other field is kept verbatim.
func (c *Calculator) CalculateRecurrence(ctx context.Context, current, expectedTime, timezone string, startTime *time.Time) (string, error) {
	expr, err := cron.Parse(current)
	if err != nil {
		return "", err
	}
	log := c.logger
	if id := types.GetRunID(ctx); id != "" {
		log = log.With("run_id", id)
	}

	if expr.Hour == "*" {
		log.DebugContext(ctx, "recurrence is not selective on the hour, leaving as is",
			"recurrence", current,
		)
		return current, nil
	}
	if !literalField.MatchString(expr.Hour) {
		return "", fmt.Errorf("%w: multiple hours in %q", ErrNotSupported, current)
	}
	if !literalField.MatchString(expr.Minute) {
		return "", fmt.Errorf("%w: multiple minutes in %q", ErrNotSupported, current)
	}

	now := c.clock.Now().UTC()

	if startTime != nil && wholeDays(startTime.Sub(now)) > startTimeHorizon {
		log.DebugContext(ctx, "start time is over a day away, leaving recurrence as is",
			"recurrence", current,
			"start_time", startTime.UTC().Format(time.RFC3339),
		)
		return current, nil
	}

	expectedHour, expectedMinute, err := parseLocalTime(expectedTime)
	if err != nil {
		return "", err
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}

	next, err := cron.NextAtOrAfter(current, c.dialect, now)
	if err != nil {
		return "", fmt.Errorf("computing next run of %q: %w", current, err)
	}
	next = next.Add(safetyMargin)

	localNext := next.In(loc)
	expected := fmt.Sprintf("%02d:%02d", expectedHour, expectedMinute)
	localNextTime := localNext.Format("15:04")

	log.DebugContext(ctx, "evaluated next run",
		"recurrence", current,
		"expected_local_time", expected,
		"next_run_utc", next.Format(time.RFC3339),
		"next_run_local", localNextTime,
		"timezone", timezone,
	)

	if localNextTime == expected {
		return current, nil
	}

	// Anchor on the local calendar date of the next run so that the offset in
	// effect on that date (standard or daylight time) is the one applied.
	localExpected := time.Date(localNext.Year(), localNext.Month(), localNext.Day(),
		expectedHour, expectedMinute, 0, 0, loc)
	utcExpected := localExpected.UTC()

	// Minutes are rewritten together with hours because some zones have
	// non-whole-hour offsets (e.g. Asia/Kolkata, UTC+5:30).
	return expr.WithTime(utcExpected.Minute(), utcExpected.Hour()).String(), nil
}

// parseLocalTime parses a 24-hour HH:MM string. A single-digit hour is
// accepted.
func parseLocalTime(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLocalTime, value)
	}
	return t.Hour(), t.Minute(), nil
}

// wholeDays truncates d to whole days, rounding towards negative infinity.
func wholeDays(d time.Duration) int {
	days := d / (24 * time.Hour)
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return int(days)
}
