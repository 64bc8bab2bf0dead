// Package tags reads the adjuster's configuration from resource tags.
//
// Every tag key is namespaced by a prefix (by default
// "scheduled-event-adjuster"):
//
//	{prefix}:enabled               presence opts the resource in
//	{prefix}:local-timezone        IANA timezone name
//	{prefix}:local-time            HH:MM target (event rules)
//	{prefix}:local-time:{action}   HH:MM target per scheduled action
package tags

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"scheduleadjuster/internal/types"
)

// DefaultPrefix is the tag namespace used when none is configured.
const DefaultPrefix = "scheduled-event-adjuster"

var (
	ErrInvalidTimezone  = errors.New("invalid timezone tag")
	ErrInvalidLocalTime = errors.New("invalid local time tag")
)

// Keys builds the tag keys for a prefix.
type Keys struct {
	prefix string
}

// NewKeys returns the key builder for prefix, falling back to DefaultPrefix.
func NewKeys(prefix string) Keys {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{prefix: prefix}
}

func (k Keys) Enabled() string       { return k.prefix + ":enabled" }
func (k Keys) LocalTimezone() string { return k.prefix + ":local-timezone" }
func (k Keys) LocalTime() string     { return k.prefix + ":local-time" }

// LocalTimeFor returns the per-action local time key.
func (k Keys) LocalTimeFor(action string) string {
	return k.LocalTime() + ":" + action
}

// Value returns the value of the first tag whose key equals key.
func Value(tags []types.Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Has reports whether a tag with key is present, whatever its value.
func Has(tags []types.Tag, key string) bool {
	_, ok := Value(tags, key)
	return ok
}

// scheduleTags is the validated view of the resource-wide tag values. Empty
// values pass so that an undeclared tag is distinguishable from a malformed
// one.
type scheduleTags struct {
	Timezone  string `validate:"omitempty,timezone"`
	LocalTime string `validate:"omitempty,localtime"`
}

// Resolver converts raw tags into a types.ScheduleConfig.
type Resolver struct {
	keys     Keys
	validate *validator.Validate
}

// NewResolver creates a Resolver for the given key set.
func NewResolver(keys Keys) *Resolver {
	v := validator.New()
	// Registration only fails for an empty tag name or nil func.
	_ = v.RegisterValidation("localtime", validateLocalTime)
	return &Resolver{keys: keys, validate: v}
}

// Keys returns the key set the resolver reads.
func (r *Resolver) Keys() Keys {
	return r.keys
}

// Resolve reads tags into a ScheduleConfig. A resource without the enabled
// tag resolves to a disabled config and no error. A declared but malformed
// timezone or resource-wide local time yields an error wrapping
// ErrInvalidTimezone or ErrInvalidLocalTime. Per-action local times are
// returned as written; check them with CheckLocalTime so that one bad
// action does not disable the others.
func (r *Resolver) Resolve(tags []types.Tag) (types.ScheduleConfig, error) {
	cfg := types.ScheduleConfig{
		Enabled: Has(tags, r.keys.Enabled()),
	}
	if !cfg.Enabled {
		return cfg, nil
	}

	cfg.Timezone, _ = Value(tags, r.keys.LocalTimezone())
	cfg.LocalTime, _ = Value(tags, r.keys.LocalTime())

	actionPrefix := r.keys.LocalTime() + ":"
	for _, t := range tags {
		if action, ok := strings.CutPrefix(t.Key, actionPrefix); ok && action != "" {
			if cfg.LocalTimesByAction == nil {
				cfg.LocalTimesByAction = make(map[string]string)
			}
			if _, seen := cfg.LocalTimesByAction[action]; !seen {
				cfg.LocalTimesByAction[action] = t.Value
			}
		}
	}

	err := r.validate.Struct(scheduleTags{
		Timezone:  cfg.Timezone,
		LocalTime: cfg.LocalTime,
	})
	if err != nil {
		return cfg, r.describe(err)
	}
	return cfg, nil
}

func (r *Resolver) describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.StructField() == "Timezone" {
		return fmt.Errorf("%w: %s=%q", ErrInvalidTimezone, r.keys.LocalTimezone(), fe.Value())
	}
	return fmt.Errorf("%w: %s=%q", ErrInvalidLocalTime, r.keys.LocalTime(), fe.Value())
}

// CheckLocalTime validates the local time declared for action.
func (r *Resolver) CheckLocalTime(action, value string) error {
	if err := r.validate.Var(value, "required,localtime"); err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidLocalTime, r.keys.LocalTimeFor(action), value)
	}
	return nil
}

func validateLocalTime(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}
