// Package clock abstracts the current time so that time-dependent decisions
// can be made deterministic in tests. Production code injects System();
// tests inject Fixed() with a known instant.
package clock

import "time"

// Source returns the current instant. Implementations must be safe to call
// repeatedly; callers convert the result to the location they need.
type Source interface {
	Now() time.Time
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func() time.Time

// Now calls f.
func (f SourceFunc) Now() time.Time {
	return f()
}

type systemSource struct{}

func (systemSource) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Source backed by the wall clock, always in UTC.
func System() Source {
	return systemSource{}
}

// Fixed returns a Source that always reports t.
func Fixed(t time.Time) Source {
	return SourceFunc(func() time.Time { return t })
}
