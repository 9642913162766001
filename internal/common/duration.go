package common

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Duration wraps time.Duration so it can be written as "30s" or "1m" in config files.
type Duration struct {
	time.Duration
}

// NewDuration returns a Duration wrapping d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string such as "300ms" or "1h30m".
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(data), err)
	}
	d.Duration = duration
	return nil
}

// MarshalText renders the duration in time.Duration string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// JSONSchema describes Duration as a string for generated config schemas.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units: [ns, us, ms, s, m, h, d]",
		Examples: []any{
			"1m",
			"300ms",
		},
	}
}
