// Package model defines shared data structures.
package model

import "time"

// Event is a single activity-log entry for a user within a course.
type Event struct {
	UserID int64
	Time   int64 // unix seconds
	Origin string
}

// Session is a maximal run of a user's events with no gap above the session limit.
type Session struct {
	Start   int64
	End     int64
	Origins []string
}

// Duration returns the session length in seconds.
func (s Session) Duration() int64 {
	return s.End - s.Start
}

// Params defines a dedication computation run.
type Params struct {
	Course  int64
	MinTime int64
	MaxTime int64
	Limit   int64
}

// DedicationRecord summarizes one user's activity over a period.
type DedicationRecord struct {
	UserID          int64   `json:"userid"`
	GroupID         int64   `json:"groupid"`
	DedicationTime  int64   `json:"dedicationtime"`
	DistinctDays    int     `json:"distinctdays"`
	ConnectionRatio float64 `json:"connectionratio"`
}

// SessionRecord is a session as reported in detail mode.
type SessionRecord struct {
	Start    int64    `json:"start"`
	Duration int64    `json:"duration"`
	Origins  []string `json:"origins"`
}

// User is a directory entry.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Course identifies a course.
type Course struct {
	ID        int64  `json:"id"`
	ShortName string `json:"shortname"`
	FullName  string `json:"fullname"`
}

// Group is a course group.
type Group struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"courseid"`
	Name     string `json:"name"`
}

// LogEntry is a raw log row as stored or imported.
type LogEntry struct {
	CourseID    int64
	UserID      int64
	TimeCreated int64
	IP          string
}

// GroupMember links a user to a group.
type GroupMember struct {
	GroupID int64
	UserID  int64
}

// Enrolment links a user to a course.
type Enrolment struct {
	CourseID int64
	UserID   int64
}

// ReportConfig defines the period and thresholds for a report.
type ReportConfig struct {
	Course          int64
	Since           time.Time
	Until           time.Time
	Limit           int64
	// IgnoreThreshold is the detail-mode short-session cutoff in seconds;
	// nil means the calculator default.
	IgnoreThreshold *int64
	Location        *time.Location
	IncludeInactive bool
}
