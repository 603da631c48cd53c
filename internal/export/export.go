// Package export writes dedication reports as CSV or JSON downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/verte-zerg/dedication/internal/model"
	"github.com/verte-zerg/dedication/internal/report"
)

// Format selects how a report is written.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

const timeLayout = "2006-01-02 15:04"

// ParseFormat accepts table, csv or json; empty means table.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, csv or json)", value)
}

// Filename returns the download name for a course, e.g. "MATH101_dedication.csv".
func Filename(course model.Course, format Format) string {
	name := course.ShortName
	if name == "" {
		name = "course" + strconv.FormatInt(course.ID, 10)
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
	return name + "_dedication." + string(format)
}

// WriteCourseCSV writes the period header block followed by one row per student.
func WriteCourseCSV(w io.Writer, r report.CourseReport) error {
	cw := csv.NewWriter(w)
	records := periodHeader(r.Config)
	records = append(records, []string{
		"First name", "Last name", "Group",
		"Dedication (mins)", "Dedication", "Connection ratio",
	})
	for _, row := range r.Rows {
		records = append(records, []string{
			row.User.FirstName,
			row.User.LastName,
			row.GroupName,
			strconv.FormatInt(report.Minutes(row.DedicationTime), 10),
			report.FormatDuration(row.DedicationTime),
			strconv.FormatFloat(row.ConnectionRatio, 'f', -1, 64),
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write course csv: %w", err)
	}
	return nil
}

// WriteUserCSV writes the period header block followed by one row per session.
func WriteUserCSV(w io.Writer, r report.UserReport) error {
	cw := csv.NewWriter(w)
	loc := r.Config.Location
	if loc == nil {
		loc = time.UTC
	}
	records := periodHeader(r.Config)
	records = append(records, []string{
		"First name", "Last name", "Session start",
		"Dedication (secs)", "Session duration", "IP",
	})
	for _, s := range r.Sessions {
		records = append(records, []string{
			r.User.FirstName,
			r.User.LastName,
			time.Unix(s.Start, 0).In(loc).Format(timeLayout),
			strconv.FormatInt(s.Duration, 10),
			report.FormatDuration(s.Duration),
			strings.Join(s.Origins, ", "),
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write user csv: %w", err)
	}
	return nil
}

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// CourseDocument is the JSON shape of a course report.
type CourseDocument struct {
	Course model.Course        `json:"course"`
	Period Period              `json:"period"`
	Rows   []report.StudentRow `json:"rows"`
	Daily  []report.DailyTotal `json:"daily"`
}

// UserDocument is the JSON shape of a user report.
type UserDocument struct {
	Course   model.Course          `json:"course"`
	User     model.User            `json:"user"`
	Period   Period                `json:"period"`
	Total    int64                 `json:"total"`
	Sessions []model.SessionRecord `json:"sessions"`
	Daily    []report.DailyTotal   `json:"daily,omitempty"`
}

// Period describes the reporting window in unix seconds.
type Period struct {
	Since int64  `json:"since"`
	Until int64  `json:"until"`
	Label string `json:"label"`
}

// NewPeriod describes the window of cfg.
func NewPeriod(cfg model.ReportConfig) Period {
	since, until := cfg.Since.Unix(), cfg.Until.Unix()
	return Period{Since: since, Until: until, Label: report.FormatPeriod(until - since)}
}

// NewCourseDocument converts a course report to its JSON shape.
func NewCourseDocument(r report.CourseReport) CourseDocument {
	rows := r.Rows
	if rows == nil {
		rows = []report.StudentRow{}
	}
	return CourseDocument{Course: r.Course, Period: NewPeriod(r.Config), Rows: rows, Daily: r.Daily}
}

// NewUserDocument converts a user report to its JSON shape.
func NewUserDocument(r report.UserReport) UserDocument {
	sessions := r.Sessions
	if sessions == nil {
		sessions = []model.SessionRecord{}
	}
	return UserDocument{
		Course:   r.Course,
		User:     r.User,
		Period:   NewPeriod(r.Config),
		Total:    r.Total,
		Sessions: sessions,
		Daily:    r.Daily,
	}
}

func periodHeader(cfg model.ReportConfig) [][]string {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return [][]string{
		{
			"Since", cfg.Since.In(loc).Format(timeLayout),
			"To", cfg.Until.In(loc).Format(timeLayout),
			"Period", report.FormatPeriod(cfg.Until.Unix() - cfg.Since.Unix()),
		},
		{""},
	}
}
