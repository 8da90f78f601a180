// Package report derives attendance views from the ledger: per-student
// percentages, course summaries, history listings, and roster exports.
package report

import (
	"context"
	"errors"
	"time"
)

var ErrCourseNotFound = errors.New("course not found")

// StudentRef is the slice of a student the reports need.
type StudentRef struct {
	ID          int64  `json:"id"`
	IndexNumber string `json:"index_number"`
	Name        string `json:"name"`
}

// Percentage is attendance of one student in one course.
type Percentage struct {
	TotalSessions int     `json:"total_sessions"`
	Attended      int     `json:"attended_sessions"`
	Percent       float64 `json:"attendance_percentage"`
}

// StudentShare is one row of a course summary.
type StudentShare struct {
	StudentRef
	Percent float64 `json:"attendance_percentage"`
}

// CourseSummary aggregates attendance over a course's enrolled students.
type CourseSummary struct {
	CourseID int64          `json:"course_id"`
	Average  float64        `json:"average_attendance_percentage"`
	Students []StudentShare `json:"student_attendance"`
}

// Entry is one ledger row joined with the student, for the per-session view.
type Entry struct {
	RecordID    int64     `json:"attendance_id"`
	StudentID   int64     `json:"student_id"`
	IndexNumber string    `json:"index_number"`
	StudentName string    `json:"student_name"`
	MarkedAt    time.Time `json:"marked_at"`
}

// HistoryEntry is one ledger row joined with its session and course, for
// student history and filtered reports.
type HistoryEntry struct {
	RecordID    int64     `json:"attendance_id"`
	SessionID   int64     `json:"session_id"`
	SessionDate time.Time `json:"session_date"`
	CourseID    int64     `json:"course_id"`
	CourseName  string    `json:"course_name"`
	StudentID   int64     `json:"student_id"`
	IndexNumber string    `json:"index_number"`
	Status      string    `json:"status"`
	MarkedAt    time.Time `json:"marked_at"`
}

// Store is the read access the reports need. from/to bound the session date
// when non-nil.
type Store interface {
	SessionCount(ctx context.Context, courseID int64, from, to *time.Time) (int, error)
	AttendedCount(ctx context.Context, studentID, courseID int64, from, to *time.Time) (int, error)
	StudentsInCourse(ctx context.Context, courseID int64) ([]StudentRef, error)
	SessionEntries(ctx context.Context, sessionID int64) ([]Entry, error)
	StudentHistory(ctx context.Context, studentID, courseID int64) ([]HistoryEntry, error)
	FilteredRecords(ctx context.Context, courseID int64, from, to *time.Time) ([]HistoryEntry, error)
	Students(ctx context.Context, indexFilter, nameFilter string) ([]StudentRef, error)
	CourseIDByName(ctx context.Context, name string) (int64, bool, error)
}
