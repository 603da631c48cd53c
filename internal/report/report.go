// Package report assembles dedication results into display-ready reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/verte-zerg/dedication/internal/dedication"
	"github.com/verte-zerg/dedication/internal/model"
)

// Source supplies ordered events plus the course directory. It is
// implemented by the SQLite store and the Moodle database reader.
type Source interface {
	CourseFeed(ctx context.Context, courseID, minTime, maxTime int64) ([]model.Event, error)
	UserEvents(ctx context.Context, courseID, userID, minTime, maxTime int64) ([]model.Event, error)
	GroupMemberships(ctx context.Context, courseID int64) (map[int64][]int64, error)
	ListGroups(ctx context.Context, courseID int64) ([]model.Group, error)
	CourseUsers(ctx context.Context, courseID int64) ([]model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetCourse(ctx context.Context, id int64) (model.Course, error)
}

// StudentRow is a summary record joined with directory data.
type StudentRow struct {
	model.DedicationRecord
	User      model.User `json:"user"`
	GroupName string     `json:"groupname"`
}

// CourseReport contains the summary rows for a course and period.
type CourseReport struct {
	Course model.Course       `json:"course"`
	Config model.ReportConfig `json:"-"`
	Rows   []StudentRow       `json:"rows"`
	Daily  []DailyTotal       `json:"daily"`
}

// UserReport contains one user's sessions for a course and period.
type UserReport struct {
	Course   model.Course          `json:"course"`
	User     model.User            `json:"user"`
	Config   model.ReportConfig    `json:"-"`
	Total    int64                 `json:"total"`
	Sessions []model.SessionRecord `json:"sessions"`
	Daily    []DailyTotal          `json:"daily"`
}

// NewCalculator builds a calculator for the configured period and thresholds.
func NewCalculator(cfg model.ReportConfig, opts ...dedication.Option) (*dedication.Calculator, error) {
	params := model.Params{
		Course:  cfg.Course,
		MinTime: cfg.Since.Unix(),
		MaxTime: cfg.Until.Unix(),
		Limit:   cfg.Limit,
	}
	all := []dedication.Option{dedication.WithLocation(location(cfg))}
	if cfg.IgnoreThreshold != nil {
		all = append(all, dedication.WithIgnoreThreshold(*cfg.IgnoreThreshold))
	}
	all = append(all, opts...)
	return dedication.New(params, all...)
}

// BuildCourseReport computes summary rows for every student of a course.
// When the course has a roster, users outside it are left out; with
// IncludeInactive, roster users without events get zero rows.
func BuildCourseReport(ctx context.Context, src Source, cfg model.ReportConfig) (CourseReport, error) {
	course, err := loadCourse(ctx, src, cfg.Course)
	if err != nil {
		return CourseReport{}, err
	}
	memberships, err := src.GroupMemberships(ctx, cfg.Course)
	if err != nil {
		return CourseReport{}, fmt.Errorf("failed to load group memberships: %w", err)
	}
	calc, err := NewCalculator(cfg, dedication.WithGroupLookup(dedication.GroupLookupFunc(func(userID int64) []int64 {
		return memberships[userID]
	})))
	if err != nil {
		return CourseReport{}, err
	}
	params := calc.Params()

	feed, err := src.CourseFeed(ctx, cfg.Course, params.MinTime, params.MaxTime)
	if err != nil {
		return CourseReport{}, fmt.Errorf("failed to load course events: %w", err)
	}
	timelines, err := dedication.SplitFeed(feed)
	if err != nil {
		return CourseReport{}, fmt.Errorf("course %d: %w", cfg.Course, err)
	}
	roster, err := src.CourseUsers(ctx, cfg.Course)
	if err != nil {
		return CourseReport{}, fmt.Errorf("failed to load course users: %w", err)
	}
	users := make(map[int64]model.User, len(roster))
	for _, u := range roster {
		users[u.ID] = u
	}
	if len(roster) > 0 {
		timelines = filterTimelines(timelines, users)
	}

	records, err := calc.Summarize(timelines)
	if err != nil {
		return CourseReport{}, err
	}
	groups, err := src.ListGroups(ctx, cfg.Course)
	if err != nil {
		return CourseReport{}, fmt.Errorf("failed to load groups: %w", err)
	}
	groupNames := make(map[int64]string, len(groups))
	for _, g := range groups {
		groupNames[g.ID] = g.Name
	}

	rows := make([]StudentRow, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		user, ok := users[rec.UserID]
		if !ok {
			user = lookupUser(ctx, src, rec.UserID)
		}
		rows = append(rows, StudentRow{DedicationRecord: rec, User: user, GroupName: groupNames[rec.GroupID]})
		seen[rec.UserID] = struct{}{}
	}
	if cfg.IncludeInactive {
		for _, u := range roster {
			if _, ok := seen[u.ID]; ok {
				continue
			}
			var groupID int64
			if ids := memberships[u.ID]; len(ids) > 0 {
				groupID = ids[0]
			}
			rows = append(rows, StudentRow{
				DedicationRecord: model.DedicationRecord{UserID: u.ID, GroupID: groupID},
				User:             u,
				GroupName:        groupNames[groupID],
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].UserID < rows[j].UserID
		})
	}

	var sessions []model.Session
	for _, tl := range timelines {
		sessions = append(sessions, calc.Segment(tl.Events)...)
	}

	return CourseReport{
		Course: course,
		Config: cfg,
		Rows:   rows,
		Daily:  DailyDedication(sessions, location(cfg), cfg.Since, cfg.Until),
	}, nil
}

// BuildUserReport computes the simple total and the filtered sessions for one user.
func BuildUserReport(ctx context.Context, src Source, cfg model.ReportConfig, userID int64) (UserReport, error) {
	calc, err := NewCalculator(cfg)
	if err != nil {
		return UserReport{}, err
	}
	course, err := loadCourse(ctx, src, cfg.Course)
	if err != nil {
		return UserReport{}, err
	}
	user, err := src.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return UserReport{}, fmt.Errorf("failed to load user: %w", err)
		}
		user = model.User{ID: userID}
	}
	params := calc.Params()
	events, err := src.UserEvents(ctx, cfg.Course, userID, params.MinTime, params.MaxTime)
	if err != nil {
		return UserReport{}, fmt.Errorf("failed to load user events: %w", err)
	}
	tl, err := dedication.NewTimeline(events)
	if err != nil {
		return UserReport{}, fmt.Errorf("user %d: %w", userID, err)
	}
	detail := calc.Detail(tl, false)
	return UserReport{
		Course:   course,
		User:     user,
		Config:   cfg,
		Total:    detail.Total,
		Sessions: detail.Sessions,
		Daily:    DailyDedication(calc.Segment(tl), location(cfg), cfg.Since, cfg.Until),
	}, nil
}

// Detail returns the report in detail-mode shape: the total alone when simple
// is set, otherwise the total with the filtered sessions.
func (r UserReport) Detail(simple bool) dedication.UserDetail {
	if simple {
		return dedication.UserDetail{Total: r.Total}
	}
	return dedication.UserDetail{Total: r.Total, Sessions: r.Sessions}
}

func loadCourse(ctx context.Context, src Source, id int64) (model.Course, error) {
	course, err := src.GetCourse(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Course{ID: id}, nil
	}
	if err != nil {
		return model.Course{}, fmt.Errorf("failed to load course: %w", err)
	}
	return course, nil
}

func lookupUser(ctx context.Context, src Source, id int64) model.User {
	user, err := src.GetUser(ctx, id)
	if err != nil {
		return model.User{ID: id}
	}
	return user
}

func filterTimelines(timelines []dedication.UserTimeline, users map[int64]model.User) []dedication.UserTimeline {
	out := timelines[:0:0]
	for _, tl := range timelines {
		if _, ok := users[tl.UserID]; ok {
			out = append(out, tl)
		}
	}
	return out
}

func location(cfg model.ReportConfig) *time.Location {
	if cfg.Location == nil {
		return time.UTC
	}
	return cfg.Location
}
