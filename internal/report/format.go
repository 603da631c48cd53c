package report

import (
	"fmt"
	"strings"
)

// FormatDuration renders seconds as a short label such as "2 hours 5 mins".
// Only the two most significant units are shown; zero renders as "now".
func FormatDuration(totalSecs int64) string {
	if totalSecs < 0 {
		totalSecs = -totalSecs
	}
	hours := totalSecs / 3600
	mins := totalSecs % 3600 / 60
	secs := totalSecs % 60

	switch {
	case hours > 0:
		return joinUnits(unit(hours, "hour", "hours"), unit(mins, "min", "mins"))
	case mins > 0:
		return joinUnits(unit(mins, "min", "mins"), unit(secs, "sec", "secs"))
	case secs > 0:
		return unit(secs, "sec", "secs")
	}
	return "now"
}

// FormatPeriod renders a period length with days, e.g. "10 days 4 hours".
func FormatPeriod(totalSecs int64) string {
	if totalSecs < 0 {
		totalSecs = -totalSecs
	}
	days := totalSecs / 86400
	if days == 0 {
		return FormatDuration(totalSecs)
	}
	hours := totalSecs % 86400 / 3600
	return joinUnits(unit(days, "day", "days"), unit(hours, "hour", "hours"))
}

// Minutes rounds seconds to whole minutes.
func Minutes(secs int64) int64 {
	return (secs + 30) / 60
}

func unit(n int64, one, many string) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func joinUnits(parts ...string) string {
	return strings.TrimSpace(strings.Join(parts, " "))
}
