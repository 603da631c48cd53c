package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultPeriod is the window used when no start is given.
const DefaultPeriod = 30 * 24 * time.Hour

// ParseTime accepts YYYY-MM-DD (midnight in loc), RFC3339 or unix seconds.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want YYYY-MM-DD, RFC3339 or unix seconds)", value)
}

// ResolvePeriod parses optional since and until values. Until defaults to
// now and since to DefaultPeriod before until. A bare date resolves to 00:00
// of that day for both ends, so an until date itself is not covered.
func ResolvePeriod(since, until string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	end := now.In(loc)
	if until != "" {
		t, err := ParseTime(until, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("until: %w", err)
		}
		end = t
	}
	start := end.Add(-DefaultPeriod)
	if since != "" {
		t, err := ParseTime(since, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("since: %w", err)
		}
		start = t
	}
	return start, end, nil
}
