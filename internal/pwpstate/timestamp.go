package pwpstate

import (
	"fmt"
	"strings"
	"time"
)

// Generalized time layouts accepted on the wire and in operand input.
const (
	generalizedTimeMillis = "20060102150405.000Z"
	generalizedTime       = "20060102150405Z"
)

// FormatGeneralizedTime renders a time in the millisecond-precision
// generalized time form used by the state operation values.
func FormatGeneralizedTime(t time.Time) string {
	return t.UTC().Format(generalizedTimeMillis)
}

// ParseGeneralizedTime parses a generalized time value returned by the
// server, with or without fractional seconds.
func ParseGeneralizedTime(s string) (time.Time, error) {
	for _, layout := range []string{generalizedTimeMillis, generalizedTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid generalized time value: %q", s)
}

// ParseTimestampOperand converts operand input into the wire form.
// Accepted forms: empty or "now" (the current time), RFC 3339, or
// generalized time.
func ParseTimestampOperand(s string, now func() time.Time) (string, error) {
	if now == nil {
		now = time.Now
	}

	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return FormatGeneralizedTime(now()), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return FormatGeneralizedTime(t), nil
	}

	if t, err := ParseGeneralizedTime(s); err == nil {
		return FormatGeneralizedTime(t), nil
	}

	return "", fmt.Errorf("invalid timestamp %q: expected RFC 3339, generalized time, or \"now\"", s)
}

// ParseBooleanOperand converts operand input into the wire form
// ("true" or "false").
func ParseBooleanOperand(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "on", "1":
		return "true", nil
	case "false", "f", "no", "off", "0":
		return "false", nil
	default:
		return "", fmt.Errorf("invalid boolean %q: expected true or false", s)
	}
}
