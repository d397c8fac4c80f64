package utils

import (
	"fmt"
	"time"
)

// FixTimestampLayout is the UTC, second-precision layout used on the wire
// for every location fix.
const FixTimestampLayout = "2006-01-02T15:04:05Z"

// FormatFixTimestamp renders t in UTC with second precision.
func FormatFixTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(FixTimestampLayout)
}

// FormatRangeBound renders a track query bound. The backend accepts any
// ISO-8601 instant; RFC 3339 in UTC is used for stability.
func FormatRangeBound(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp accepts the fix layout as well as fractional-second and
// offset forms that backends commonly emit.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{FixTimestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ValidUntilFrom calculates the validity horizon of a delivery built at
// baseEpoch that is refreshed every readIntervalMS.
func ValidUntilFrom(baseEpoch int64, readIntervalMS int) string {
	if baseEpoch <= 0 || readIntervalMS <= 0 {
		return ""
	}
	return time.Unix(baseEpoch+int64(readIntervalMS/1000), 0).UTC().Format(time.RFC3339)
}
