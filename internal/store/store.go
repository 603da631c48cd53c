// Package store handles SQLite persistence of course activity logs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/dedication/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)


// Store wraps SQLite access for log data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id INTEGER PRIMARY KEY,
			shortname TEXT NOT NULL DEFAULT '',
			fullname TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			firstname TEXT NOT NULL DEFAULT '',
			lastname TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS course_groups (
			id INTEGER PRIMARY KEY,
			course_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS enrolments (
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (course_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS log (
			id INTEGER PRIMARY KEY,
			course_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			time_created INTEGER NOT NULL,
			ip TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_log_course_user_time ON log(course_id, user_id, time_created);`,
		`CREATE INDEX IF NOT EXISTS idx_course_groups_course ON course_groups(course_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertLogs stores log entries in a single transaction and returns how many were written.
func (s *Store) InsertLogs(ctx context.Context, entries []model.LogEntry) (n int64, err error) {
	if len(entries) == 0 {
		return 0, nil
	}
	err = s.inTx(ctx, `INSERT INTO log (course_id, user_id, time_created, ip) VALUES (?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, e := range entries {
				if _, err := stmt.ExecContext(ctx, e.CourseID, e.UserID, e.TimeCreated, e.IP); err != nil {
					return err
				}
				n++
			}
			return nil
		})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpsertUsers inserts or replaces directory entries.
func (s *Store) UpsertUsers(ctx context.Context, users []model.User) error {
	return s.inTx(ctx, `INSERT INTO users (id, firstname, lastname) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET firstname = excluded.firstname, lastname = excluded.lastname`,
		func(stmt *sql.Stmt) error {
			for _, u := range users {
				if _, err := stmt.ExecContext(ctx, u.ID, u.FirstName, u.LastName); err != nil {
					return err
				}
			}
			return nil
		})
}

// UpsertCourses inserts or replaces courses.
func (s *Store) UpsertCourses(ctx context.Context, courses []model.Course) error {
	return s.inTx(ctx, `INSERT INTO courses (id, shortname, fullname) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET shortname = excluded.shortname, fullname = excluded.fullname`,
		func(stmt *sql.Stmt) error {
			for _, c := range courses {
				if _, err := stmt.ExecContext(ctx, c.ID, c.ShortName, c.FullName); err != nil {
					return err
				}
			}
			return nil
		})
}

// UpsertGroups inserts or replaces course groups. An empty name keeps the stored one.
func (s *Store) UpsertGroups(ctx context.Context, groups []model.Group) error {
	return s.inTx(ctx, `INSERT INTO course_groups (id, course_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET course_id = excluded.course_id,
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE course_groups.name END`,
		func(stmt *sql.Stmt) error {
			for _, g := range groups {
				if _, err := stmt.ExecContext(ctx, g.ID, g.CourseID, g.Name); err != nil {
					return err
				}
			}
			return nil
		})
}

// AddGroupMembers links users to groups, ignoring existing links.
func (s *Store) AddGroupMembers(ctx context.Context, members []model.GroupMember) error {
	return s.inTx(ctx, `INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, m := range members {
				if _, err := stmt.ExecContext(ctx, m.GroupID, m.UserID); err != nil {
					return err
				}
			}
			return nil
		})
}

// AddEnrolments enrols users in courses, ignoring existing enrolments.
func (s *Store) AddEnrolments(ctx context.Context, enrolments []model.Enrolment) error {
	return s.inTx(ctx, `INSERT OR IGNORE INTO enrolments (course_id, user_id) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, e := range enrolments {
				if _, err := stmt.ExecContext(ctx, e.CourseID, e.UserID); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *Store) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	if err = fn(stmt); err != nil {
		return err
	}
	return tx.Commit()
}

// CourseFeed returns a course's events within [minTime, maxTime], ordered by user then time.
func (s *Store) CourseFeed(ctx context.Context, courseID, minTime, maxTime int64) ([]model.Event, error) {
	return s.queryEvents(ctx, `SELECT user_id, time_created, ip FROM log
		WHERE course_id = ? AND time_created >= ? AND time_created <= ?
		ORDER BY user_id ASC, time_created ASC, id ASC`, courseID, minTime, maxTime)
}

// UserEvents returns one user's events within [minTime, maxTime], ordered by time.
func (s *Store) UserEvents(ctx context.Context, courseID, userID, minTime, maxTime int64) ([]model.Event, error) {
	return s.queryEvents(ctx, `SELECT user_id, time_created, ip FROM log
		WHERE course_id = ? AND user_id = ? AND time_created >= ? AND time_created <= ?
		ORDER BY time_created ASC, id ASC`, courseID, userID, minTime, maxTime)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.UserID, &ev.Time, &ev.Origin); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// GroupMemberships maps each user of a course to their group IDs in ascending order.
func (s *Store) GroupMemberships(ctx context.Context, courseID int64) (map[int64][]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gm.user_id, gm.group_id
		FROM group_members gm
		JOIN course_groups g ON g.id = gm.group_id
		WHERE g.course_id = ?
		ORDER BY gm.user_id ASC, gm.group_id ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	result := map[int64][]int64{}
	for rows.Next() {
		var userID, groupID int64
		if err := rows.Scan(&userID, &groupID); err != nil {
			return nil, err
		}
		result[userID] = append(result[userID], groupID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListGroups returns a course's groups ordered by ID.
func (s *Store) ListGroups(ctx context.Context, courseID int64) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, course_id, name FROM course_groups WHERE course_id = ? ORDER BY id ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.CourseID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// CourseUsers returns the users enrolled in a course, ordered by ID. Users
// missing from the directory are returned with empty names.
func (s *Store) CourseUsers(ctx context.Context, courseID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT e.user_id, COALESCE(u.firstname, ''), COALESCE(u.lastname, '')
		FROM enrolments e
		LEFT JOIN users u ON u.id = e.user_id
		WHERE e.course_id = ?
		ORDER BY e.user_id ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns a directory entry or model.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	u := model.User{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT firstname, lastname FROM users WHERE id = ?`, id).Scan(&u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetCourse returns a course or model.ErrNotFound.
func (s *Store) GetCourse(ctx context.Context, id int64) (model.Course, error) {
	c := model.Course{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT shortname, fullname FROM courses WHERE id = ?`, id).Scan(&c.ShortName, &c.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Course{}, fmt.Errorf("course %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Course{}, err
	}
	return c, nil
}

// CountLogs returns the number of stored log rows for the given courses, or all rows when none are given.
func (s *Store) CountLogs(ctx context.Context, courseIDs ...int64) (int64, error) {
	query := `SELECT COUNT(*) FROM log`
	args := make([]any, 0, len(courseIDs))
	if len(courseIDs) > 0 {
		placeholders := make([]string, len(courseIDs))
		for i, id := range courseIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query = fmt.Sprintf(`%s WHERE course_id IN (%s)`, query, strings.Join(placeholders, ","))
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
