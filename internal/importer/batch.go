package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/verte-zerg/dedication/internal/logging"
	"github.com/verte-zerg/dedication/internal/model"
)

type logRow struct {
	CourseID int64  `validate:"required,gt=0"`
	UserID   int64  `validate:"required,gt=0"`
	Time     int64  `validate:"gte=0"`
	IP       string `validate:"omitempty,ip"`
}

type userRow struct {
	ID        int64  `validate:"required,gt=0"`
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
}

type courseRow struct {
	ID        int64  `validate:"required,gt=0"`
	ShortName string `validate:"max=255"`
	FullName  string `validate:"max=1333"`
}

type groupRow struct {
	CourseID int64  `validate:"required,gt=0"`
	GroupID  int64  `validate:"required,gt=0"`
	Name     string `validate:"max=254"`
	UserID   int64  `validate:"gte=0"`
}

type enrolmentRow struct {
	CourseID int64 `validate:"required,gt=0"`
	UserID   int64 `validate:"required,gt=0"`
}

// batch buffers validated rows of one kind until they are flushed.
type batch struct {
	im         *Importer
	kind       Kind
	logs       []model.LogEntry
	users      []model.User
	courses    []model.Course
	groups     []model.Group
	groupIndex map[int64]int
	members    []model.GroupMember
	enrolments []model.Enrolment
	rows       int64
}

func (im *Importer) newBatch(kind Kind) *batch {
	return &batch{im: im, kind: kind, groupIndex: map[int64]int{}}
}

// size is the number of CSV rows buffered since the last flush.
func (b *batch) size() int {
	return int(b.rows)
}

func (b *batch) add(cols columns, record []string) error {
	var err error
	switch b.kind {
	case KindLogs:
		err = b.addLog(cols, record)
	case KindUsers:
		err = b.addUser(cols, record)
	case KindCourses:
		err = b.addCourse(cols, record)
	case KindGroups:
		err = b.addGroup(cols, record)
	case KindEnrolments:
		err = b.addEnrolment(cols, record)
	default:
		err = fmt.Errorf("unsupported import kind %q", b.kind)
	}
	if err == nil {
		b.rows++
	}
	return err
}

func (b *batch) addLog(cols columns, record []string) error {
	var row logRow
	var err error
	if row.CourseID, err = cols.int64(record, "course"); err != nil {
		return err
	}
	if row.UserID, err = cols.int64(record, "user"); err != nil {
		return err
	}
	if row.Time, err = ParseTimestamp(cols.get(record, "time")); err != nil {
		return err
	}
	row.IP = cols.get(record, "ip")
	if err := b.check(row); err != nil {
		return err
	}
	b.logs = append(b.logs, model.LogEntry{CourseID: row.CourseID, UserID: row.UserID, TimeCreated: row.Time, IP: row.IP})
	return nil
}

func (b *batch) addUser(cols columns, record []string) error {
	var row userRow
	var err error
	if row.ID, err = cols.int64(record, "id"); err != nil {
		return err
	}
	row.FirstName = cols.get(record, "firstname")
	row.LastName = cols.get(record, "lastname")
	if err := b.check(row); err != nil {
		return err
	}
	b.users = append(b.users, model.User{ID: row.ID, FirstName: row.FirstName, LastName: row.LastName})
	return nil
}

func (b *batch) addCourse(cols columns, record []string) error {
	var row courseRow
	var err error
	if row.ID, err = cols.int64(record, "id"); err != nil {
		return err
	}
	row.ShortName = cols.get(record, "shortname")
	row.FullName = cols.get(record, "fullname")
	if err := b.check(row); err != nil {
		return err
	}
	b.courses = append(b.courses, model.Course{ID: row.ID, ShortName: row.ShortName, FullName: row.FullName})
	return nil
}

// addGroup accepts one row per group, or one row per member when a user
// column is present.
func (b *batch) addGroup(cols columns, record []string) error {
	var row groupRow
	var err error
	if row.CourseID, err = cols.int64(record, "course"); err != nil {
		return err
	}
	if row.GroupID, err = cols.int64(record, "group"); err != nil {
		return err
	}
	if cols.has("user") {
		if row.UserID, err = cols.int64(record, "user"); err != nil {
			return err
		}
	}
	row.Name = cols.get(record, "name")
	if err := b.check(row); err != nil {
		return err
	}
	if i, ok := b.groupIndex[row.GroupID]; ok {
		if b.groups[i].Name == "" {
			b.groups[i].Name = row.Name
		}
	} else {
		b.groupIndex[row.GroupID] = len(b.groups)
		b.groups = append(b.groups, model.Group{ID: row.GroupID, CourseID: row.CourseID, Name: row.Name})
	}
	if row.UserID > 0 {
		b.members = append(b.members, model.GroupMember{GroupID: row.GroupID, UserID: row.UserID})
	}
	return nil
}

func (b *batch) addEnrolment(cols columns, record []string) error {
	var row enrolmentRow
	var err error
	if row.CourseID, err = cols.int64(record, "course"); err != nil {
		return err
	}
	if row.UserID, err = cols.int64(record, "user"); err != nil {
		return err
	}
	if err := b.check(row); err != nil {
		return err
	}
	b.enrolments = append(b.enrolments, model.Enrolment{CourseID: row.CourseID, UserID: row.UserID})
	return nil
}

func (b *batch) check(row any) error {
	err := b.im.validate.Struct(row)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "ip":
		return fmt.Sprintf("%s must be an IP address, got %q", fe.Field(), fe.Value())
	case "gt", "gte":
		return fmt.Sprintf("%s must be %s %s", fe.Field(), map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// flush writes buffered rows and resets the batch. It returns the number of
// CSV rows written.
func (b *batch) flush(ctx context.Context) (int64, error) {
	if b.rows == 0 {
		return 0, nil
	}
	n := b.rows
	sink := b.im.sink
	switch b.kind {
	case KindLogs:
		if _, err := sink.InsertLogs(ctx, b.logs); err != nil {
			return 0, fmt.Errorf("failed to insert logs: %w", err)
		}
	case KindUsers:
		if err := sink.UpsertUsers(ctx, b.users); err != nil {
			return 0, fmt.Errorf("failed to upsert users: %w", err)
		}
	case KindCourses:
		if err := sink.UpsertCourses(ctx, b.courses); err != nil {
			return 0, fmt.Errorf("failed to upsert courses: %w", err)
		}
	case KindGroups:
		if err := sink.UpsertGroups(ctx, b.groups); err != nil {
			return 0, fmt.Errorf("failed to upsert groups: %w", err)
		}
		if len(b.members) > 0 {
			if err := sink.AddGroupMembers(ctx, b.members); err != nil {
				return 0, fmt.Errorf("failed to add group members: %w", err)
			}
		}
	case KindEnrolments:
		if err := sink.AddEnrolments(ctx, b.enrolments); err != nil {
			return 0, fmt.Errorf("failed to add enrolments: %w", err)
		}
	}
	logging.Debug().Str("kind", string(b.kind)).Int64("rows", n).Msg("import batch flushed")

	b.logs = b.logs[:0]
	b.users = b.users[:0]
	b.courses = b.courses[:0]
	b.groups = b.groups[:0]
	b.members = b.members[:0]
	b.enrolments = b.enrolments[:0]
	clear(b.groupIndex)
	b.rows = 0
	return n, nil
}
