// Package dedication estimates time spent in a course from activity-log timestamps.
//
// A user's events are split into sessions wherever the gap between two
// consecutive events exceeds the session limit. Dedication time is the sum
// of session durations; a single-event session contributes zero.
package dedication

import (
	"errors"

	"github.com/verte-zerg/dedication/internal/model"
)

const (
	// DefaultSessionLimit is the inactivity gap, in seconds, that starts a new session.
	DefaultSessionLimit int64 = 60 * 60
	// DefaultIgnoreThreshold drops sessions of this many seconds or less from detail output.
	DefaultIgnoreThreshold int64 = 59
	// SecondsPerDay is used to convert a period into days.
	SecondsPerDay int64 = 24 * 60 * 60
)

var (
	// ErrInvalidPeriod reports a period whose end precedes its start, or an empty
	// period where a connection ratio is required.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrEventsNotSorted reports input that violates the ascending-order precondition.
	ErrEventsNotSorted = errors.New("events not sorted")
	// ErrInvalidLimit reports a negative session limit or ignore threshold.
	ErrInvalidLimit = errors.New("invalid session limit")
)

// Timeline is one user's events in ascending time order.
type Timeline []model.Event

// NewTimeline validates that events are ascending by time.
func NewTimeline(events []model.Event) (Timeline, error) {
	for i := 1; i < len(events); i++ {
		if events[i].Time < events[i-1].Time {
			return nil, ErrEventsNotSorted
		}
	}
	return Timeline(events), nil
}

// UserTimeline pairs a user with their ordered events.
type UserTimeline struct {
	UserID int64
	Events Timeline
}

// SplitFeed splits a feed ordered by (user, time) into per-user timelines.
// A user appearing in two non-adjacent runs is treated as unsorted input.
func SplitFeed(feed []model.Event) ([]UserTimeline, error) {
	var out []UserTimeline
	start := 0
	for i := 1; i <= len(feed); i++ {
		if i < len(feed) && feed[i].UserID == feed[start].UserID {
			if feed[i].Time < feed[i-1].Time {
				return nil, ErrEventsNotSorted
			}
			continue
		}
		if i < len(feed) && feed[i].UserID < feed[start].UserID {
			return nil, ErrEventsNotSorted
		}
		out = append(out, UserTimeline{
			UserID: feed[start].UserID,
			Events: Timeline(feed[start:i]),
		})
		start = i
	}
	return out, nil
}

// Segment partitions a timeline into sessions. A gap equal to limit keeps the
// session open; only a strictly larger gap closes it.
func Segment(tl Timeline, limit int64) []model.Session {
	if len(tl) == 0 {
		return nil
	}
	sessions := make([]model.Session, 0, 4)
	start := tl[0].Time
	previous := tl[0].Time
	origins := newOriginSet()
	origins.add(tl[0].Origin)
	for _, ev := range tl[1:] {
		if ev.Time-previous > limit {
			sessions = append(sessions, model.Session{Start: start, End: previous, Origins: origins.list()})
			start = ev.Time
			origins = newOriginSet()
		}
		previous = ev.Time
		origins.add(ev.Origin)
	}
	sessions = append(sessions, model.Session{Start: start, End: previous, Origins: origins.list()})
	return sessions
}

type originSet struct {
	seen  map[string]struct{}
	order []string
}

func newOriginSet() *originSet {
	return &originSet{seen: map[string]struct{}{}}
}

func (o *originSet) add(origin string) {
	if origin == "" {
		return
	}
	if _, ok := o.seen[origin]; ok {
		return
	}
	o.seen[origin] = struct{}{}
	o.order = append(o.order, origin)
}

func (o *originSet) list() []string {
	if len(o.order) == 0 {
		return []string{}
	}
	return o.order
}
