// Package jsontime provides a duration that reads and writes as a
// human-readable string in JSON and YAML reports.
package jsontime

import (
	"encoding/json"
	"time"
)

// Duration is a time.Duration that serializes as a string such as
// "1.52s", rounded to the millisecond. Unmarshaling also accepts an
// integer count of nanoseconds. Binary encoders that ignore these
// methods see an int64 of nanoseconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		dur, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML writes the same string as MarshalJSON.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration rounded to the millisecond.
func (d Duration) String() string {
	return time.Duration(d).Round(time.Millisecond).String()
}
