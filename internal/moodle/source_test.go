package moodle

import (
	"context"
	"strings"
	"testing"
)

func TestNewQueriesUsesPrefix(t *testing.T) {
	q, err := newQueries("m40_")
	if err != nil {
		t.Fatalf("new queries: %v", err)
	}
	if !strings.Contains(q.courseFeed, "FROM m40_logstore_standard_log") {
		t.Fatalf("unexpected feed query: %s", q.courseFeed)
	}
	if !strings.Contains(q.courseFeed, "ORDER BY userid ASC, timecreated ASC") {
		t.Fatalf("feed query must order by user then time: %s", q.courseFeed)
	}
	if !strings.Contains(q.memberships, "m40_groups_members gm") || !strings.Contains(q.memberships, "JOIN m40_groups g") {
		t.Fatalf("unexpected memberships query: %s", q.memberships)
	}
	if !strings.Contains(q.courseUsers, "m40_user_enrolments") {
		t.Fatalf("unexpected roster query: %s", q.courseUsers)
	}
}

func TestRosterQueryKeepsStudentsOnly(t *testing.T) {
	q, err := newQueries(DefaultPrefix)
	if err != nil {
		t.Fatalf("new queries: %v", err)
	}
	for _, want := range []string{
		"JOIN mdl_role_assignments ra ON ra.userid = u.id",
		"ctx.contextlevel = 50 AND ctx.instanceid = e.courseid",
		"JOIN mdl_role r ON r.id = ra.roleid",
		"r.shortname = $2",
	} {
		if !strings.Contains(q.courseUsers, want) {
			t.Fatalf("roster query missing %q:\n%s", want, q.courseUsers)
		}
	}
	if StudentRole != "student" {
		t.Fatalf("unexpected student role %q", StudentRole)
	}
}

func TestNewQueriesRejectsUnsafePrefix(t *testing.T) {
	for _, prefix := range []string{"mdl; DROP", "mdl-", "a b"} {
		if _, err := newQueries(prefix); err == nil {
			t.Fatalf("expected error for prefix %q", prefix)
		}
	}
}

func TestOpenRejectsBadDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz", DefaultPrefix); err == nil {
		t.Fatalf("expected parse error")
	}
}
