// Package moodle reads activity logs, users, and groups directly from a
// Moodle PostgreSQL database.
package moodle

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verte-zerg/dedication/internal/model"
)

// DefaultPrefix is Moodle's default table prefix.
const DefaultPrefix = "mdl_"

// StudentRole is the role shortname a roster member must hold in the course.
const StudentRole = "student"

// contextCourse is Moodle's CONTEXT_COURSE level.
const contextCourse = 50

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Source is a read-only view over a Moodle database.
type Source struct {
	pool    *pgxpool.Pool
	queries queries
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dsn, prefix string) (*Source, error) {
	q, err := newQueries(prefix)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Source{pool: pool, queries: q}, nil
}

// Close releases the pool.
func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

type queries struct {
	courseFeed  string
	userEvents  string
	memberships string
	groups      string
	courseUsers string
	user        string
	course      string
}

func newQueries(prefix string) (queries, error) {
	if !prefixPattern.MatchString(prefix) {
		return queries{}, fmt.Errorf("invalid table prefix %q", prefix)
	}
	t := func(name string) string { return prefix + name }
	return queries{
		courseFeed: fmt.Sprintf(`SELECT userid, timecreated, COALESCE(ip, '') FROM %s
			WHERE courseid = $1 AND timecreated >= $2 AND timecreated <= $3
			ORDER BY userid ASC, timecreated ASC, id ASC`, t("logstore_standard_log")),
		userEvents: fmt.Sprintf(`SELECT userid, timecreated, COALESCE(ip, '') FROM %s
			WHERE courseid = $1 AND userid = $2 AND timecreated >= $3 AND timecreated <= $4
			ORDER BY timecreated ASC, id ASC`, t("logstore_standard_log")),
		memberships: fmt.Sprintf(`SELECT gm.userid, gm.groupid FROM %s gm
			JOIN %s g ON g.id = gm.groupid
			WHERE g.courseid = $1
			ORDER BY gm.userid ASC, gm.groupid ASC`, t("groups_members"), t("groups")),
		groups: fmt.Sprintf(`SELECT id, courseid, name FROM %s WHERE courseid = $1 ORDER BY id ASC`, t("groups")),
		courseUsers: fmt.Sprintf(`SELECT DISTINCT u.id, u.firstname, u.lastname FROM %s u
			JOIN %s ue ON ue.userid = u.id
			JOIN %s e ON e.id = ue.enrolid
			JOIN %s ra ON ra.userid = u.id
			JOIN %s ctx ON ctx.id = ra.contextid AND ctx.contextlevel = %d AND ctx.instanceid = e.courseid
			JOIN %s r ON r.id = ra.roleid
			WHERE e.courseid = $1 AND r.shortname = $2 AND u.deleted = 0
			ORDER BY u.id ASC`,
			t("user"), t("user_enrolments"), t("enrol"),
			t("role_assignments"), t("context"), contextCourse, t("role")),
		user:   fmt.Sprintf(`SELECT firstname, lastname FROM %s WHERE id = $1`, t("user")),
		course: fmt.Sprintf(`SELECT shortname, fullname FROM %s WHERE id = $1`, t("course")),
	}, nil
}

// CourseFeed returns a course's events ordered by user then time.
func (s *Source) CourseFeed(ctx context.Context, courseID, minTime, maxTime int64) ([]model.Event, error) {
	return s.queryEvents(ctx, s.queries.courseFeed, courseID, minTime, maxTime)
}

// UserEvents returns one user's events ordered by time.
func (s *Source) UserEvents(ctx context.Context, courseID, userID, minTime, maxTime int64) ([]model.Event, error) {
	return s.queryEvents(ctx, s.queries.userEvents, courseID, userID, minTime, maxTime)
}

func (s *Source) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Event, error) {
		var ev model.Event
		err := row.Scan(&ev.UserID, &ev.Time, &ev.Origin)
		return ev, err
	})
}

// GroupMemberships maps users to their course group IDs in ascending order.
func (s *Source) GroupMemberships(ctx context.Context, courseID int64) (map[int64][]int64, error) {
	rows, err := s.pool.Query(ctx, s.queries.memberships, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[int64][]int64{}
	for rows.Next() {
		var userID, groupID int64
		if err := rows.Scan(&userID, &groupID); err != nil {
			return nil, err
		}
		result[userID] = append(result[userID], groupID)
	}
	return result, rows.Err()
}

// ListGroups returns a course's groups.
func (s *Source) ListGroups(ctx context.Context, courseID int64) ([]model.Group, error) {
	rows, err := s.pool.Query(ctx, s.queries.groups, courseID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Group, error) {
		var g model.Group
		err := row.Scan(&g.ID, &g.CourseID, &g.Name)
		return g, err
	})
}

// CourseUsers returns enrolled users holding the student role in the course.
// Teachers and other staff are left out of the roster.
func (s *Source) CourseUsers(ctx context.Context, courseID int64) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, s.queries.courseUsers, courseID, StudentRole)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		var u model.User
		err := row.Scan(&u.ID, &u.FirstName, &u.LastName)
		return u, err
	})
}

// GetUser returns a user or model.ErrNotFound.
func (s *Source) GetUser(ctx context.Context, id int64) (model.User, error) {
	u := model.User{ID: id}
	err := s.pool.QueryRow(ctx, s.queries.user, id).Scan(&u.FirstName, &u.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetCourse returns a course or model.ErrNotFound.
func (s *Source) GetCourse(ctx context.Context, id int64) (model.Course, error) {
	c := model.Course{ID: id}
	err := s.pool.QueryRow(ctx, s.queries.course, id).Scan(&c.ShortName, &c.FullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Course{}, fmt.Errorf("course %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Course{}, err
	}
	return c, nil
}
