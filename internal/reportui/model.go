// Package reportui provides the Bubble Tea course report browser.
package reportui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/dedication/internal/dedication"
	"github.com/verte-zerg/dedication/internal/model"
	"github.com/verte-zerg/dedication/internal/report"
)

const (
	tabStudents = iota
	tabDaily
	tabSessions
)

const inputTimeLayout = "2006-01-02 15:04"

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea report browser.
type Model struct {
	src report.Source
	cfg model.ReportConfig

	course     report.CourseReport
	user       *report.UserReport
	errMsg     string
	studentIDs []int64

	tabs      []string
	activeTab int
	daily     viewport.Model
	students  table.Model
	sessions  table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a browser for the course and period in cfg.
func NewModel(src report.Source, cfg model.ReportConfig) *Model {
	m := &Model{
		src:  src,
		cfg:  cfg,
		tabs: []string{"Students", "Daily", "Sessions"},
	}
	m.initInputs()
	m.students = newTable(studentColumns(80), nil)
	m.sessions = newTable(sessionColumns(80), nil)
	m.daily = viewport.New(0, 0)
	m.refreshReport()
	m.focusTable()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderDaily()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			return m.startFilter()
		case "enter":
			if m.activeTab == tabStudents {
				m.openSelectedStudent()
			}
			return m, nil
		case "g", "home":
			m.gotoTop()
			return m, nil
		case "G", "end":
			m.gotoBottom()
			return m, nil
		}
		var cmd tea.Cmd
		switch m.activeTab {
		case tabStudents:
			m.students, cmd = m.students.Update(msg)
		case tabSessions:
			m.sessions, cmd = m.sessions.Update(msg)
		default:
			m.daily, cmd = m.daily.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Until (YYYY-MM-DD): "),
		newFilterInput("Session limit (secs): "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) location() *time.Location {
	if m.cfg.Location == nil {
		return time.UTC
	}
	return m.cfg.Location
}

func (m *Model) setInputsFromConfig() {
	loc := m.location()
	m.filterInputs[0].SetValue(formatInputTime(m.cfg.Since.In(loc)))
	m.filterInputs[1].SetValue(formatInputTime(m.cfg.Until.In(loc)))
	m.filterInputs[2].SetValue(strconv.FormatInt(m.limit(), 10))
}

func formatInputTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func (m *Model) limit() int64 {
	if m.cfg.Limit > 0 {
		return m.cfg.Limit
	}
	return dedication.DefaultSessionLimit
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.daily.Width = m.width
	m.daily.Height = bodyHeight
	m.students.SetColumns(studentColumns(m.width))
	m.sessions.SetColumns(sessionColumns(m.width))
	fitTable(&m.students, m.width, bodyHeight)
	// The sessions tab shows a total line above the table.
	fitTable(&m.sessions, m.width, bodyHeight-2)
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = maxInt(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	m.focusTable()
}

func (m *Model) focusTable() {
	m.students.Blur()
	m.sessions.Blur()
	switch m.activeTab {
	case tabStudents:
		m.students.Focus()
	case tabSessions:
		m.sessions.Focus()
	}
}

func (m *Model) gotoTop() {
	switch m.activeTab {
	case tabStudents:
		m.students.GotoTop()
	case tabSessions:
		m.sessions.GotoTop()
	default:
		m.daily.GotoTop()
	}
}

func (m *Model) gotoBottom() {
	switch m.activeTab {
	case tabStudents:
		m.students.GotoBottom()
	case tabSessions:
		m.sessions.GotoBottom()
	default:
		m.daily.GotoBottom()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	summary := padLines(m.renderSettingsSummary(), m.width)
	return tabs + "\n" + summary
}

func (m *Model) renderSettingsSummary() string {
	loc := m.location()
	title := fmt.Sprintf("Course %d", m.cfg.Course)
	if m.course.Course.ShortName != "" {
		title = m.course.Course.ShortName
	}
	summary := fmt.Sprintf("%s  since=%s  until=%s  limit=%ds",
		title,
		m.cfg.Since.In(loc).Format(inputTimeLayout),
		m.cfg.Until.In(loc).Format(inputTimeLayout),
		m.limit())
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Settings: /  Quit: q"
	if m.activeTab == tabStudents {
		help = "Nav: left/right  Scroll: up/down  Sessions: enter  Settings: /  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	switch m.activeTab {
	case tabStudents:
		if len(m.course.Rows) == 0 {
			return fitLines("No activity found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.students.View()), m.width, height)
	case tabSessions:
		return fitLines(m.renderSessions(), m.width, height)
	}
	return fitLines(m.daily.View(), m.width, height)
}

func (m *Model) renderSessions() string {
	if m.user == nil {
		return "Select a student and press enter."
	}
	title := fmt.Sprintf("%s  total: %s (%d secs)",
		displayName(m.user.User), report.FormatDuration(m.user.Total), m.user.Total)
	lines := []string{cardValueStyle.Render(truncateLine(title, m.width))}
	if len(m.user.Sessions) == 0 {
		lines = append(lines, "", "No sessions above the ignore threshold.")
		return strings.Join(lines, "\n")
	}
	lines = append(lines, "", tableMutedStyle.Render(m.sessions.View()))
	return strings.Join(lines, "\n")
}

func (m *Model) refreshReport() {
	rep, err := report.BuildCourseReport(context.Background(), m.src, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.course = report.CourseReport{Config: m.cfg}
		m.studentIDs = nil
		m.students.SetRows(nil)
		m.renderDaily()
		return
	}
	m.errMsg = ""
	m.course = rep
	rows, ids := studentRows(rep.Rows)
	m.studentIDs = ids
	m.students.SetRows(rows)
	m.students.SetCursor(0)
	if m.user != nil {
		m.loadUser(m.user.User.ID)
	}
	m.renderDaily()
}

func (m *Model) openSelectedStudent() {
	idx := m.students.Cursor()
	if idx < 0 || idx >= len(m.studentIDs) {
		return
	}
	if m.loadUser(m.studentIDs[idx]) {
		m.activeTab = tabSessions
		m.focusTable()
	}
}

func (m *Model) loadUser(userID int64) bool {
	rep, err := report.BuildUserReport(context.Background(), m.src, m.cfg, userID)
	if err != nil {
		m.errMsg = err.Error()
		return false
	}
	m.user = &rep
	m.sessions.SetRows(sessionRows(rep.Sessions, m.location()))
	m.sessions.SetCursor(0)
	return true
}

func (m *Model) renderDaily() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	if m.errMsg != "" && len(m.course.Daily) == 0 {
		m.daily.SetContent("Failed to load report.")
		return
	}
	m.daily.SetContent(renderDaily(m.course, width))
}

func renderDaily(rep report.CourseReport, width int) string {
	cards := renderSummaryCards(rep, width)
	var buf bytes.Buffer
	if err := report.RenderDailyBars(&buf, "", rep.Daily, width, true); err != nil {
		return fmt.Sprintf("Failed to render daily chart: %v", err)
	}
	spark := headerStyle.Render("Trend: " + report.Sparkline(rep.Daily))
	return strings.TrimRight(cards+"\n\n"+spark+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(rep report.CourseReport, width int) string {
	var total int64
	active := 0
	for _, row := range rep.Rows {
		total += row.DedicationTime
		if row.DistinctDays > 0 {
			active++
		}
	}
	avg := int64(0)
	if len(rep.Rows) > 0 {
		avg = total / int64(len(rep.Rows))
	}
	activeDays := 0
	for _, d := range rep.Daily {
		if d.Seconds > 0 {
			activeDays++
		}
	}
	cards := []string{
		metricCard("Students", fmt.Sprintf("%d", active)),
		metricCard("Total", report.FormatDuration(total)),
		metricCard("Avg / student", report.FormatDuration(avg)),
		metricCard("Active days", fmt.Sprintf("%d/%d", activeDays, len(rep.Daily))),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.filterIndex = idx
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	loc := m.location()
	since, err := report.ParseTime(m.filterInputs[0].Value(), loc)
	if err != nil {
		return fmt.Errorf("invalid since: %w", err)
	}
	until, err := report.ParseTime(m.filterInputs[1].Value(), loc)
	if err != nil {
		return fmt.Errorf("invalid until: %w", err)
	}
	if !until.After(since) {
		return fmt.Errorf("until must be after since")
	}
	limitInput := strings.TrimSpace(m.filterInputs[2].Value())
	limit := int64(0)
	if limitInput != "" {
		parsed, err := strconv.ParseInt(limitInput, 10, 64)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid session limit (use a positive number of seconds)")
		}
		limit = parsed
	}
	m.cfg.Since = since
	m.cfg.Until = until
	m.cfg.Limit = limit
	return nil
}
