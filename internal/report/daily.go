package report

import (
	"math"
	"strings"
	"time"

	"github.com/verte-zerg/dedication/internal/model"
)

const sparkChars = " .:-=+*#%@"

// DailyTotal is the dedication attributed to one calendar date.
type DailyTotal struct {
	Date    string `json:"date"`
	Seconds int64  `json:"seconds"`
}

// DailyDedication sums session durations by the local date each session
// started on. Every date in [since, until) is present, including empty ones.
func DailyDedication(sessions []model.Session, loc *time.Location, since, until time.Time) []DailyTotal {
	if loc == nil {
		loc = time.UTC
	}
	byDate := make(map[string]int64, len(sessions))
	for _, s := range sessions {
		byDate[time.Unix(s.Start, 0).In(loc).Format("2006-01-02")] += s.Duration()
	}
	start := since.In(loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	var out []DailyTotal
	for first := true; first || day.Before(until); first = false {
		key := day.Format("2006-01-02")
		out = append(out, DailyTotal{Date: key, Seconds: byDate[key]})
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Sparkline renders daily totals as a single-line ASCII sparkline.
func Sparkline(daily []DailyTotal) string {
	if len(daily) == 0 {
		return ""
	}
	minVal, maxVal := daily[0].Seconds, daily[0].Seconds
	for _, d := range daily[1:] {
		if d.Seconds < minVal {
			minVal = d.Seconds
		}
		if d.Seconds > maxVal {
			maxVal = d.Seconds
		}
	}
	if maxVal == minVal {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(daily))
	}
	var b strings.Builder
	for _, d := range daily {
		pos := float64(d.Seconds-minVal) / float64(maxVal-minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}
