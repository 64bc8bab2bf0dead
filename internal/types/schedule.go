// Package types holds the shared domain types of the scheduled event
// adjuster: tags, per-resource schedule configuration, change records and
// run summaries, plus the error taxonomy.
package types

import "time"

// ResourceType identifies the kind of AWS resource a change applies to. The
// values are part of the completion event payload.
type ResourceType string

const (
	ResourceAutoScalingAction ResourceType = "AutoScalingGroupScalingPolicy"
	ResourceEventBridgeRule   ResourceType = "EventBridgeRule"
)

// Tag is a key-value annotation read from an AWS resource.
type Tag struct {
	Key   string
	Value string
}

// ScheduleConfig is the typed form of the tags that drive a resource. It is
// built once per resource before any recurrence is evaluated.
type ScheduleConfig struct {
	// Enabled is true when the enabled tag is present, whatever its value.
	Enabled bool
	// Timezone is the IANA zone name, empty when undeclared.
	Timezone string
	// LocalTime is the resource-wide HH:MM target (event rules).
	LocalTime string
	// LocalTimesByAction holds per-action HH:MM targets (Auto Scaling).
	LocalTimesByAction map[string]string
}

// ChangeRecord describes one corrected recurrence. It is created once per
// corrected action or rule and never modified.
type ChangeRecord struct {
	Type               ResourceType      `json:"Type"`
	ResourceName       string            `json:"ResourceName"`
	ResourceArn        string            `json:"ResourceArn"`
	OriginalRecurrence string            `json:"OriginalRecurrence"`
	NewRecurrence      string            `json:"NewRecurrence"`
	LocalTime          string            `json:"LocalTime"`
	LocalTimezone      string            `json:"LocalTimezone"`
	AdditionalDetails  map[string]string `json:"AdditionalDetails,omitempty"`
}

// RunSummary aggregates the outcome of one pass over all processors.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Evaluated int
	Skipped   int
	Failed    int
	Changes   []ChangeRecord
}

// Corrected returns the number of recurrences changed during the run.
func (s RunSummary) Corrected() int {
	return len(s.Changes)
}
