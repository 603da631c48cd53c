package dedication

import (
	"fmt"
	"math"
	"time"

	"github.com/verte-zerg/dedication/internal/model"
)

// GroupLookup resolves the groups a user belongs to, in course order.
type GroupLookup interface {
	GroupsOf(userID int64) []int64
}

// GroupLookupFunc adapts a function to GroupLookup.
type GroupLookupFunc func(userID int64) []int64

// GroupsOf implements GroupLookup.
func (f GroupLookupFunc) GroupsOf(userID int64) []int64 {
	return f(userID)
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithIgnoreThreshold sets the detail-mode short-session cutoff in seconds.
func WithIgnoreThreshold(secs int64) Option {
	return func(c *Calculator) {
		c.ignore = secs
	}
}

// WithLocation sets the location whose midnight separates calendar days.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithGroupLookup injects the group membership lookup used in summaries.
func WithGroupLookup(lookup GroupLookup) Option {
	return func(c *Calculator) {
		c.groups = lookup
	}
}

// Calculator computes dedication for a fixed course and period.
// It holds no mutable state and may be shared between goroutines.
type Calculator struct {
	params model.Params
	ignore int64
	loc    *time.Location
	groups GroupLookup
}

// New validates params and returns a Calculator. A zero Limit selects
// DefaultSessionLimit.
func New(params model.Params, opts ...Option) (*Calculator, error) {
	if params.MaxTime < params.MinTime {
		return nil, fmt.Errorf("%w: maxtime %d before mintime %d", ErrInvalidPeriod, params.MaxTime, params.MinTime)
	}
	if params.Limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, params.Limit)
	}
	if params.Limit == 0 {
		params.Limit = DefaultSessionLimit
	}
	c := &Calculator{
		params: params,
		ignore: DefaultIgnoreThreshold,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ignore < 0 {
		return nil, fmt.Errorf("%w: ignore threshold %d", ErrInvalidLimit, c.ignore)
	}
	return c, nil
}

// Params returns the effective parameters.
func (c *Calculator) Params() model.Params {
	return c.params
}

// PeriodDays returns the reporting window length in days.
func (c *Calculator) PeriodDays() float64 {
	return float64(c.params.MaxTime-c.params.MinTime) / float64(SecondsPerDay)
}

// Segment splits a timeline using the calculator's limit.
func (c *Calculator) Segment(tl Timeline) []model.Session {
	return Segment(tl, c.params.Limit)
}

// Summarize computes one record per timeline, ordered by user ID. Users
// absent from the input get no record.
func (c *Calculator) Summarize(timelines []UserTimeline) ([]model.DedicationRecord, error) {
	periodDays := c.PeriodDays()
	if periodDays <= 0 {
		return nil, fmt.Errorf("%w: connection ratio needs a non-empty period", ErrInvalidPeriod)
	}
	records := make([]model.DedicationRecord, 0, len(timelines))
	for i, ut := range timelines {
		if i > 0 && ut.UserID <= timelines[i-1].UserID {
			return nil, ErrEventsNotSorted
		}
		if len(ut.Events) == 0 {
			continue
		}
		var total int64
		for _, s := range c.Segment(ut.Events) {
			total += s.Duration()
		}
		days := c.DistinctDays(ut.Events)
		records = append(records, model.DedicationRecord{
			UserID:          ut.UserID,
			GroupID:         c.firstGroup(ut.UserID),
			DedicationTime:  total,
			DistinctDays:    days,
			ConnectionRatio: roundRatio(float64(days) / periodDays),
		})
	}
	return records, nil
}

// DistinctDays counts the calendar dates touched by any event.
func (c *Calculator) DistinctDays(tl Timeline) int {
	days := make(map[string]struct{})
	for _, ev := range tl {
		days[time.Unix(ev.Time, 0).In(c.loc).Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}

// Total returns the sum of all session durations without short-session filtering.
func (c *Calculator) Total(tl Timeline) int64 {
	var total int64
	for _, s := range c.Segment(tl) {
		total += s.Duration()
	}
	return total
}

// Sessions returns sessions longer than the ignore threshold. Their durations
// may sum to less than Total for the same timeline.
func (c *Calculator) Sessions(tl Timeline) []model.SessionRecord {
	sessions := c.Segment(tl)
	out := make([]model.SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		if s.Duration() <= c.ignore {
			continue
		}
		out = append(out, model.SessionRecord{
			Start:    s.Start,
			Duration: s.Duration(),
			Origins:  s.Origins,
		})
	}
	return out
}

// UserDetail is the result of Detail. Total is never filtered by the ignore
// threshold; Sessions is nil in simple mode.
type UserDetail struct {
	Total    int64                 `json:"total"`
	Sessions []model.SessionRecord `json:"sessions,omitempty"`
}

// Detail returns the simple total, plus the filtered session list unless simple is set.
func (c *Calculator) Detail(tl Timeline, simple bool) UserDetail {
	detail := UserDetail{Total: c.Total(tl)}
	if !simple {
		detail.Sessions = c.Sessions(tl)
	}
	return detail
}

func (c *Calculator) firstGroup(userID int64) int64 {
	if c.groups == nil {
		return 0
	}
	groups := c.groups.GroupsOf(userID)
	if len(groups) == 0 {
		return 0
	}
	return groups[0]
}

func roundRatio(v float64) float64 {
	return math.Round(v*100) / 100
}
