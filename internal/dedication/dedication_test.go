package dedication

import (
	"errors"
	"reflect"
	"testing"

	"github.com/verte-zerg/dedication/internal/model"
)

func timeline(times ...int64) Timeline {
	tl := make(Timeline, len(times))
	for i, ts := range times {
		tl[i] = model.Event{UserID: 1, Time: ts}
	}
	return tl
}

func TestSegmentSplitsOnGap(t *testing.T) {
	sessions := Segment(timeline(0, 100, 4000), 3600)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Start != 0 || sessions[0].End != 100 || sessions[0].Duration() != 100 {
		t.Fatalf("unexpected first session: %+v", sessions[0])
	}
	if sessions[1].Start != 4000 || sessions[1].End != 4000 || sessions[1].Duration() != 0 {
		t.Fatalf("unexpected second session: %+v", sessions[1])
	}
}

func TestSegmentGapBoundary(t *testing.T) {
	tests := []struct {
		name     string
		times    []int64
		expected int
	}{
		{name: "empty", times: nil, expected: 0},
		{name: "single", times: []int64{42}, expected: 1},
		{name: "gap equals limit", times: []int64{0, 3600}, expected: 1},
		{name: "gap above limit", times: []int64{0, 3601}, expected: 2},
		{name: "same timestamp", times: []int64{10, 10, 10}, expected: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sessions := Segment(timeline(tc.times...), 3600)
			if len(sessions) != tc.expected {
				t.Fatalf("expected %d sessions, got %d", tc.expected, len(sessions))
			}
			for _, s := range sessions {
				if s.End < s.Start || s.Duration() < 0 {
					t.Fatalf("invalid session %+v", s)
				}
			}
		})
	}
}

func TestSegmentOrderedAndDisjoint(t *testing.T) {
	sessions := Segment(timeline(0, 10, 5000, 5001, 9000, 20000, 20010), 3600)
	for i := 1; i < len(sessions); i++ {
		if sessions[i].Start <= sessions[i-1].End {
			t.Fatalf("sessions overlap: %+v then %+v", sessions[i-1], sessions[i])
		}
	}
}

func TestSegmentCollectsOrigins(t *testing.T) {
	tl := Timeline{
		{UserID: 1, Time: 0, Origin: "10.0.0.1"},
		{UserID: 1, Time: 5, Origin: "10.0.0.2"},
		{UserID: 1, Time: 9, Origin: "10.0.0.1"},
		{UserID: 1, Time: 9000, Origin: "10.0.0.3"},
	}
	sessions := Segment(tl, 3600)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !reflect.DeepEqual(sessions[0].Origins, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Fatalf("unexpected origins: %v", sessions[0].Origins)
	}
	if !reflect.DeepEqual(sessions[1].Origins, []string{"10.0.0.3"}) {
		t.Fatalf("unexpected origins: %v", sessions[1].Origins)
	}
}

func TestNewTimelineRejectsUnsorted(t *testing.T) {
	_, err := NewTimeline([]model.Event{{Time: 5}, {Time: 4}})
	if !errors.Is(err, ErrEventsNotSorted) {
		t.Fatalf("expected ErrEventsNotSorted, got %v", err)
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	if _, err := New(model.Params{MinTime: 10, MaxTime: 5}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := New(model.Params{Limit: -1}); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	c, err := New(model.Params{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.Params().Limit != DefaultSessionLimit {
		t.Fatalf("expected default limit, got %d", c.Params().Limit)
	}
}

func TestTotalMatchesSegmentSum(t *testing.T) {
	tl := timeline(0, 30, 60, 4000, 4100, 9000, 9050, 9100)
	c, err := New(model.Params{MaxTime: 10000, Limit: 3600})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var sum int64
	for _, s := range Segment(tl, 3600) {
		sum += s.Duration()
	}
	if got := c.Total(tl); got != sum {
		t.Fatalf("expected total %d, got %d", sum, got)
	}
	if got := c.Detail(tl, true).Total; got != sum {
		t.Fatalf("expected simple detail total %d, got %d", sum, got)
	}
}

func TestSessionsDropsShortSessions(t *testing.T) {
	times := make([]int64, 10)
	for i := range times {
		times[i] = int64(i * 3)
	}
	tl := timeline(times...)
	c, err := New(model.Params{MaxTime: 100, Limit: 3600})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Total(tl); got != 27 {
		t.Fatalf("expected total 27, got %d", got)
	}
	if sessions := c.Sessions(tl); len(sessions) != 0 {
		t.Fatalf("expected short session to be dropped, got %+v", sessions)
	}
	detail := c.Detail(tl, false)
	if len(detail.Sessions) != 0 || detail.Total != 27 {
		t.Fatalf("expected unfiltered total beside filtered sessions, got %+v", detail)
	}
	if simple := c.Detail(tl, true); simple.Total != 27 || simple.Sessions != nil {
		t.Fatalf("unexpected simple detail: %+v", simple)
	}
}

func TestSessionsKeepsLongSessions(t *testing.T) {
	c, err := New(model.Params{MaxTime: 100000}, WithIgnoreThreshold(59))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sessions := c.Sessions(timeline(0, 59, 10000, 10060))
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Start != 10000 || sessions[0].Duration != 60 {
		t.Fatalf("unexpected session: %+v", sessions[0])
	}
}

func TestSplitFeed(t *testing.T) {
	feed := []model.Event{
		{UserID: 1, Time: 0},
		{UserID: 1, Time: 10},
		{UserID: 3, Time: 5},
	}
	timelines, err := SplitFeed(feed)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(timelines) != 2 || timelines[0].UserID != 1 || len(timelines[0].Events) != 2 || timelines[1].UserID != 3 {
		t.Fatalf("unexpected timelines: %+v", timelines)
	}

	unsorted := [][]model.Event{
		{{UserID: 1, Time: 10}, {UserID: 1, Time: 0}},
		{{UserID: 2, Time: 0}, {UserID: 1, Time: 0}},
		{{UserID: 1, Time: 0}, {UserID: 2, Time: 0}, {UserID: 1, Time: 5}},
	}
	for _, feed := range unsorted {
		if _, err := SplitFeed(feed); !errors.Is(err, ErrEventsNotSorted) {
			t.Fatalf("expected ErrEventsNotSorted for %+v, got %v", feed, err)
		}
	}
}

func TestSummarizeConnectionRatio(t *testing.T) {
	const day = 86400
	feed := []model.Event{
		{UserID: 7, Time: 100},
		{UserID: 7, Time: 200},
		{UserID: 7, Time: 2*day + 50},
		{UserID: 7, Time: 5*day + 10},
		{UserID: 9, Time: 3 * day},
	}
	groups := GroupLookupFunc(func(userID int64) []int64 {
		if userID == 7 {
			return []int64{4, 2}
		}
		return nil
	})
	c, err := New(model.Params{MinTime: 0, MaxTime: 10 * day, Limit: 3600}, WithGroupLookup(groups))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	records, err := summarizeFeed(c, feed)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.UserID != 7 || first.GroupID != 4 || first.DistinctDays != 3 || first.ConnectionRatio != 0.3 || first.DedicationTime != 100 {
		t.Fatalf("unexpected record: %+v", first)
	}
	second := records[1]
	if second.UserID != 9 || second.GroupID != 0 || second.DistinctDays != 1 || second.ConnectionRatio != 0.1 || second.DedicationTime != 0 {
		t.Fatalf("unexpected record: %+v", second)
	}
}

func TestSummarizeEmptyPeriod(t *testing.T) {
	c, err := New(model.Params{MinTime: 50, MaxTime: 50})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := summarizeFeed(c, []model.Event{{UserID: 1, Time: 50}}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if total := c.Total(timeline(50)); total != 0 {
		t.Fatalf("expected zero total, got %d", total)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	c, err := New(model.Params{MaxTime: 86400})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	records, err := summarizeFeed(c, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
	if c.Total(nil) != 0 || len(c.Sessions(nil)) != 0 {
		t.Fatalf("expected zero dedication for empty timeline")
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	feed := []model.Event{
		{UserID: 1, Time: 0, Origin: "a"},
		{UserID: 1, Time: 90, Origin: "b"},
		{UserID: 2, Time: 7200},
		{UserID: 2, Time: 7300},
	}
	c, err := New(model.Params{MaxTime: 86400 * 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	first, err := summarizeFeed(c, feed)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	second, err := summarizeFeed(c, feed)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output, got %+v and %+v", first, second)
	}
}

func summarizeFeed(c *Calculator, feed []model.Event) ([]model.DedicationRecord, error) {
	timelines, err := SplitFeed(feed)
	if err != nil {
		return nil, err
	}
	return c.Summarize(timelines)
}
