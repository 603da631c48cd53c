package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/verte-zerg/dedication/internal/model"
)

const timeLayout = "2006-01-02 15:04"

// RenderCourseSummary prints the period header and one row per student.
func RenderCourseSummary(w io.Writer, r CourseReport) error {
	if err := renderHeader(w, courseTitle(r), r.Config); err != nil {
		return err
	}
	if len(r.Rows) == 0 {
		_, err := fmt.Fprintln(w, "No activity found.")
		return err
	}
	tbl := newTextTable("First name", "Last name", "Group", "Dedication (mins)", "Dedication", "Days", "Connection ratio").
		alignRight(3, 5, 6)
	for _, row := range r.Rows {
		tbl.add(
			row.User.FirstName,
			row.User.LastName,
			row.GroupName,
			fmt.Sprintf("%d", Minutes(row.DedicationTime)),
			FormatDuration(row.DedicationTime),
			fmt.Sprintf("%d", row.DistinctDays),
			fmt.Sprintf("%.2f", row.ConnectionRatio),
		)
	}
	if err := tbl.write(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderUserSessions prints a user's total followed by the non-trivial sessions.
func RenderUserSessions(w io.Writer, r UserReport) error {
	title := fmt.Sprintf("%s / %s", courseTitle(CourseReport{Course: r.Course}), userTitle(r))
	if err := renderHeader(w, title, r.Config); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Total dedication: %s (%d secs)\n\n", FormatDuration(r.Total), r.Total); err != nil {
		return err
	}
	if len(r.Sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	loc := location(r.Config)
	tbl := newTextTable("Session start", "Dedication (secs)", "Duration", "Origins").alignRight(1)
	for _, s := range r.Sessions {
		tbl.add(
			time.Unix(s.Start, 0).In(loc).Format(timeLayout),
			fmt.Sprintf("%d", s.Duration),
			FormatDuration(s.Duration),
			strings.Join(s.Origins, ", "),
		)
	}
	if err := tbl.write(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderTotal prints only the simple total in seconds.
func RenderTotal(w io.Writer, r UserReport) error {
	_, err := fmt.Fprintln(w, r.Total)
	return err
}

func renderHeader(w io.Writer, title string, cfg model.ReportConfig) error {
	loc := location(cfg)
	period := cfg.Until.Unix() - cfg.Since.Unix()
	lines := []string{
		title,
		fmt.Sprintf("Since: %s  To: %s  Period: %s",
			cfg.Since.In(loc).Format(timeLayout),
			cfg.Until.In(loc).Format(timeLayout),
			FormatPeriod(period)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func courseTitle(r CourseReport) string {
	switch {
	case r.Course.ShortName != "" && r.Course.FullName != "":
		return fmt.Sprintf("%s (%s)", r.Course.ShortName, r.Course.FullName)
	case r.Course.ShortName != "":
		return r.Course.ShortName
	}
	return fmt.Sprintf("Course %d", r.Course.ID)
}

func userTitle(r UserReport) string {
	if name := r.User.FullName(); name != "" {
		return name
	}
	return fmt.Sprintf("User %d", r.User.ID)
}
