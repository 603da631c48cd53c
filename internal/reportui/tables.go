package reportui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/dedication/internal/model"
	"github.com/verte-zerg/dedication/internal/report"
)

const (
	minNameWidth   = 12
	minOriginWidth = 15
)

func newTable(cols []table.Column, rows []table.Row) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithHeight(1),
	)
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// fitTable sizes t so its rendered view is exactly height lines tall.
func fitTable(t *table.Model, width, height int) {
	target := maxInt(1, height)
	t.SetWidth(width)
	t.SetHeight(maxInt(1, target-1))
	viewHeight := lipgloss.Height(t.View())
	if viewHeight == target {
		return
	}
	t.SetHeight(maxInt(1, t.Height()+target-viewHeight))
}

func studentColumns(width int) []table.Column {
	fixed := []table.Column{
		{Title: "Group", Width: 12},
		{Title: "Mins", Width: 6},
		{Title: "Dedication", Width: 16},
		{Title: "Days", Width: 5},
		{Title: "Ratio", Width: 6},
	}
	used := 0
	for _, c := range fixed {
		used += c.Width + 1
	}
	name := maxInt(minNameWidth, width-used-1)
	return append([]table.Column{{Title: "Student", Width: name}}, fixed...)
}

func sessionColumns(width int) []table.Column {
	fixed := []table.Column{
		{Title: "Start", Width: 16},
		{Title: "Secs", Width: 7},
		{Title: "Duration", Width: 16},
	}
	used := 0
	for _, c := range fixed {
		used += c.Width + 1
	}
	origins := maxInt(minOriginWidth, width-used-1)
	return append(fixed, table.Column{Title: "Origins", Width: origins})
}

func displayName(u model.User) string {
	if name := u.FullName(); name != "" {
		return name
	}
	return fmt.Sprintf("User %d", u.ID)
}

// studentRows returns table rows and the user ID behind each row.
func studentRows(rows []report.StudentRow) ([]table.Row, []int64) {
	out := make([]table.Row, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		out = append(out, table.Row{
			displayName(row.User),
			row.GroupName,
			fmt.Sprintf("%d", report.Minutes(row.DedicationTime)),
			report.FormatDuration(row.DedicationTime),
			fmt.Sprintf("%d", row.DistinctDays),
			fmt.Sprintf("%.2f", row.ConnectionRatio),
		})
		ids = append(ids, row.UserID)
	}
	return out, ids
}

func sessionRows(sessions []model.SessionRecord, loc *time.Location) []table.Row {
	out := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, table.Row{
			time.Unix(s.Start, 0).In(loc).Format(inputTimeLayout),
			fmt.Sprintf("%d", s.Duration),
			report.FormatDuration(s.Duration),
			strings.Join(s.Origins, ", "),
		})
	}
	return out
}
