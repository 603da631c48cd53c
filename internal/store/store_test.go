package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/verte-zerg/dedication/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "dedication.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestCourseFeedOrderedByUserThenTime(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	n, err := st.InsertLogs(ctx, []model.LogEntry{
		{CourseID: 1, UserID: 5, TimeCreated: 300, IP: "a"},
		{CourseID: 1, UserID: 2, TimeCreated: 200, IP: "b"},
		{CourseID: 1, UserID: 5, TimeCreated: 100, IP: "c"},
		{CourseID: 1, UserID: 2, TimeCreated: 900, IP: "d"},
		{CourseID: 2, UserID: 2, TimeCreated: 150, IP: "e"},
		{CourseID: 1, UserID: 2, TimeCreated: 5000, IP: "f"},
	})
	if err != nil {
		t.Fatalf("insert logs: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 inserted rows, got %d", n)
	}

	feed, err := st.CourseFeed(ctx, 1, 0, 1000)
	if err != nil {
		t.Fatalf("course feed: %v", err)
	}
	expected := []model.Event{
		{UserID: 2, Time: 200, Origin: "b"},
		{UserID: 2, Time: 900, Origin: "d"},
		{UserID: 5, Time: 100, Origin: "c"},
		{UserID: 5, Time: 300, Origin: "a"},
	}
	if len(feed) != len(expected) {
		t.Fatalf("expected %d events, got %d: %+v", len(expected), len(feed), feed)
	}
	for i := range expected {
		if feed[i] != expected[i] {
			t.Fatalf("event %d: expected %+v, got %+v", i, expected[i], feed[i])
		}
	}

	events, err := st.UserEvents(ctx, 1, 2, 0, 10000)
	if err != nil {
		t.Fatalf("user events: %v", err)
	}
	if len(events) != 3 || events[2].Time != 5000 {
		t.Fatalf("unexpected user events: %+v", events)
	}

	total, err := st.CountLogs(ctx)
	if err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if total != 6 {
		t.Fatalf("expected 6 rows, got %d", total)
	}
	inCourse, err := st.CountLogs(ctx, 2)
	if err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if inCourse != 1 {
		t.Fatalf("expected 1 row in course 2, got %d", inCourse)
	}
}

func TestGroupsAndRoster(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if err := st.UpsertCourses(ctx, []model.Course{{ID: 1, ShortName: "GO101", FullName: "Go basics"}}); err != nil {
		t.Fatalf("upsert courses: %v", err)
	}
	if err := st.UpsertUsers(ctx, []model.User{{ID: 2, FirstName: "Ada", LastName: "Lovelace"}}); err != nil {
		t.Fatalf("upsert users: %v", err)
	}
	if err := st.UpsertGroups(ctx, []model.Group{
		{ID: 20, CourseID: 1, Name: "B"},
		{ID: 10, CourseID: 1, Name: "A"},
		{ID: 30, CourseID: 9, Name: "other"},
	}); err != nil {
		t.Fatalf("upsert groups: %v", err)
	}
	if err := st.AddGroupMembers(ctx, []model.GroupMember{
		{GroupID: 20, UserID: 2},
		{GroupID: 10, UserID: 2},
		{GroupID: 30, UserID: 2},
		{GroupID: 10, UserID: 2},
	}); err != nil {
		t.Fatalf("add members: %v", err)
	}
	if err := st.AddEnrolments(ctx, []model.Enrolment{{CourseID: 1, UserID: 3}, {CourseID: 1, UserID: 2}}); err != nil {
		t.Fatalf("add enrolments: %v", err)
	}

	memberships, err := st.GroupMemberships(ctx, 1)
	if err != nil {
		t.Fatalf("memberships: %v", err)
	}
	if got := memberships[2]; len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("unexpected memberships: %v", got)
	}

	groups, err := st.ListGroups(ctx, 1)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "A" {
		t.Fatalf("unexpected groups: %+v", groups)
	}

	users, err := st.CourseUsers(ctx, 1)
	if err != nil {
		t.Fatalf("course users: %v", err)
	}
	if len(users) != 2 || users[0].FullName() != "Ada Lovelace" || users[1].ID != 3 || users[1].FullName() != "" {
		t.Fatalf("unexpected roster: %+v", users)
	}

	course, err := st.GetCourse(ctx, 1)
	if err != nil || course.ShortName != "GO101" {
		t.Fatalf("unexpected course %+v (%v)", course, err)
	}
	if _, err := st.GetUser(ctx, 99); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
