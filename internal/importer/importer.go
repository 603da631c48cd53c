// Package importer loads activity logs and the course directory from CSV files.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/verte-zerg/dedication/internal/logging"
	"github.com/verte-zerg/dedication/internal/model"
)

// DefaultBatchSize is the number of rows written per store transaction.
const DefaultBatchSize = 1000

// Kind names a CSV layout.
type Kind string

const (
	KindLogs       Kind = "logs"
	KindUsers      Kind = "users"
	KindCourses    Kind = "courses"
	KindGroups     Kind = "groups"
	KindEnrolments Kind = "enrolments"
)

// Kinds lists the supported layouts in the order they are usually imported.
var Kinds = []Kind{KindCourses, KindUsers, KindGroups, KindEnrolments, KindLogs}

// ParseKind resolves a layout name; "enrollments" is accepted as an alias.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if k == "enrollments" {
		k = KindEnrolments
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown import kind %q", value)
}

// Sink receives validated rows. store.Store implements it.
type Sink interface {
	InsertLogs(ctx context.Context, entries []model.LogEntry) (int64, error)
	UpsertUsers(ctx context.Context, users []model.User) error
	UpsertCourses(ctx context.Context, courses []model.Course) error
	UpsertGroups(ctx context.Context, groups []model.Group) error
	AddGroupMembers(ctx context.Context, members []model.GroupMember) error
	AddEnrolments(ctx context.Context, enrolments []model.Enrolment) error
}

// LineError reports a rejected CSV line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing column")

// Result summarizes an import.
type Result struct {
	Kind Kind
	Rows int64
}

// Importer validates CSV rows and writes them to a Sink in batches.
type Importer struct {
	sink      Sink
	batchSize int
	validate  *validator.Validate
}

// New creates an importer. A batch size of zero or less uses DefaultBatchSize.
func New(sink Sink, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{
		sink:      sink,
		batchSize: batchSize,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Import reads a CSV with a header row and stores every row. Rows already
// flushed stay stored when a later line is rejected.
func (im *Importer) Import(ctx context.Context, kind Kind, r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{Kind: kind}, nil
	}
	if err != nil {
		return Result{Kind: kind}, fmt.Errorf("failed to read header: %w", err)
	}
	cols, err := newColumns(header, layouts[kind])
	if err != nil {
		return Result{Kind: kind}, err
	}

	b := im.newBatch(kind)
	res := Result{Kind: kind}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}
		if err := b.add(cols, record); err != nil {
			return res, &LineError{Line: line, Err: err}
		}
		if b.size() >= im.batchSize {
			n, err := b.flush(ctx)
			res.Rows += n
			if err != nil {
				return res, err
			}
		}
	}
	n, err := b.flush(ctx)
	res.Rows += n
	if err != nil {
		return res, err
	}
	logging.Info().Str("kind", string(kind)).Int64("rows", res.Rows).Msg("import finished")
	return res, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// layout maps canonical column names to accepted header aliases.
type layout struct {
	required map[string][]string
	optional map[string][]string
}

var layouts = map[Kind]layout{
	KindLogs: {
		required: map[string][]string{
			"course": {"course", "courseid", "course_id"},
			"user":   {"user", "userid", "user_id"},
			"time":   {"time", "timecreated", "time_created"},
		},
		optional: map[string][]string{
			"ip": {"ip", "origin"},
		},
	},
	KindUsers: {
		required: map[string][]string{
			"id": {"id", "userid", "user_id"},
		},
		optional: map[string][]string{
			"firstname": {"firstname", "first_name"},
			"lastname":  {"lastname", "last_name"},
		},
	},
	KindCourses: {
		required: map[string][]string{
			"id": {"id", "courseid", "course_id"},
		},
		optional: map[string][]string{
			"shortname": {"shortname", "short_name"},
			"fullname":  {"fullname", "full_name"},
		},
	},
	KindGroups: {
		required: map[string][]string{
			"course": {"course", "courseid", "course_id"},
			"group":  {"group", "groupid", "group_id", "id"},
		},
		optional: map[string][]string{
			"name": {"name", "groupname"},
			"user": {"user", "userid", "user_id"},
		},
	},
	KindEnrolments: {
		required: map[string][]string{
			"course": {"course", "courseid", "course_id"},
			"user":   {"user", "userid", "user_id"},
		},
	},
}

// columns resolves canonical names to record indexes.
type columns map[string]int

func newColumns(header []string, l layout) (columns, error) {
	if l.required == nil {
		return nil, errors.New("unsupported import kind")
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	cols := make(columns)
	resolve := func(names map[string][]string, required bool) error {
		for canonical, aliases := range names {
			found := false
			for _, alias := range aliases {
				if i, ok := index[alias]; ok {
					cols[canonical] = i
					found = true
					break
				}
			}
			if !found && required {
				return fmt.Errorf("%w %q", ErrMissingColumn, canonical)
			}
		}
		return nil
	}
	if err := resolve(l.required, true); err != nil {
		return nil, err
	}
	if err := resolve(l.optional, false); err != nil {
		return nil, err
	}
	return cols, nil
}

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c columns) int64(record []string, name string) (int64, error) {
	raw := c.get(record, name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	return v, nil
}

// ParseTimestamp accepts unix seconds or RFC3339.
func ParseTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q (want unix seconds or RFC3339)", raw)
	}
	return t.Unix(), nil
}
