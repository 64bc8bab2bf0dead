// Package cron parses the cron expressions used by AWS scheduled actions and
// EventBridge rules, and computes their next fire time.
//
// Parsing is purely syntactic: an expression is split into its minute field,
// its hour field, and an opaque tail ("rest") holding the remaining three or
// four fields. Only the schedule computation interprets field values.
package cron

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidExpression is returned for strings that are not 5 or 6
// whitespace-separated fields.
var ErrInvalidExpression = errors.New("invalid cron expression")

// expressionPattern matches minute and hour followed by three or four more
// fields (day-of-month, month, day-of-week and an optional year).
var expressionPattern = regexp.MustCompile(`^(\S+)\s+(\S+)((?:\s+\S+){3,4})$`)

// Expression is a cron expression split into the two fields this module
// rewrites and the tail it must preserve verbatim.
type Expression struct {
	Minute string
	Hour   string
	// Rest holds the remaining fields joined by single spaces, in their
	// original order.
	Rest string
}

// Parse splits expression into minute, hour and rest. It does not validate
// field values.
func Parse(expression string) (Expression, error) {
	m := expressionPattern.FindStringSubmatch(expression)
	if m == nil {
		return Expression{}, fmt.Errorf("%w: %q", ErrInvalidExpression, expression)
	}
	return Expression{
		Minute: m[1],
		Hour:   m[2],
		Rest:   strings.Join(strings.Fields(m[3]), " "),
	}, nil
}

// String renders the expression as "{minute} {hour} {rest}".
func (e Expression) String() string {
	return e.Minute + " " + e.Hour + " " + e.Rest
}

// WithTime returns a copy of e with the minute and hour fields replaced.
func (e Expression) WithTime(minute, hour int) Expression {
	e.Minute = strconv.Itoa(minute)
	e.Hour = strconv.Itoa(hour)
	return e
}

// Fields returns all fields of the expression in order.
func (e Expression) Fields() []string {
	return append([]string{e.Minute, e.Hour}, strings.Fields(e.Rest)...)
}
