// Package timewin parses time window values that are either a number of
// milliseconds or a string of the form <n>(ms|s|m|h|d).
package timewin

import (
	"regexp"
	"strconv"
	"time"

	"github.com/viant/dispatchly/fault"
)

var pattern = regexp.MustCompile(`^(\d+)([a-z]+)$`)

var units = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// Window is a duration configurable as ms or "<n><unit>".
type Window time.Duration

// Duration returns the window as time.Duration.
func (w Window) Duration() time.Duration {
	return time.Duration(w)
}

// Millis returns the window in milliseconds.
func (w Window) Millis() int64 {
	return time.Duration(w).Milliseconds()
}

// Parse converts a raw value to a Window. Accepted: integers (ms), strings
// matching <n>(ms|s|m|h|d). Anything else is rejected.
func Parse(value interface{}) (Window, error) {
	switch actual := value.(type) {
	case int:
		return fromMillis(int64(actual))
	case int64:
		return fromMillis(actual)
	case float64:
		return fromMillis(int64(actual))
	case time.Duration:
		if actual < 0 {
			return 0, fault.Newf(fault.InvalidTimeWindowFormat, "negative time window: %v", actual)
		}
		return Window(actual), nil
	case string:
		return parseString(actual)
	}
	return 0, fault.Newf(fault.InvalidTimeWindowFormat, "unsupported time window: %v", value)
}

func fromMillis(ms int64) (Window, error) {
	if ms < 0 {
		return 0, fault.Newf(fault.InvalidTimeWindowFormat, "negative time window: %v", ms)
	}
	return Window(time.Duration(ms) * time.Millisecond), nil
}

func parseString(value string) (Window, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return fromMillis(ms)
	}
	match := pattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fault.Newf(fault.InvalidTimeWindowFormat, "invalid time window: %q", value)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fault.Newf(fault.InvalidTimeWindowFormat, "invalid time window: %q", value)
	}
	unit, ok := units[match[2]]
	if !ok {
		return 0, fault.Newf(fault.InvalidTimeWindowUnit, "invalid time window unit: %q", match[2])
	}
	return Window(time.Duration(n) * unit), nil
}

// UnmarshalYAML accepts yaml scalars in either form.
func (w *Window) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// UnmarshalJSON accepts JSON numbers (ms) or strings.
func (w *Window) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return fault.Newf(fault.InvalidTimeWindowFormat, "invalid time window: %s", data)
		}
		parsed, err := parseString(unquoted)
		if err != nil {
			return err
		}
		*w = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fault.Newf(fault.InvalidTimeWindowFormat, "invalid time window: %s", data)
	}
	parsed, err := fromMillis(ms)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
