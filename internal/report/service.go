package report

import (
	"context"
	"math"
	"time"
)

// Service computes derived attendance views. It never writes: the ledger is
// append-only and owned by the check-in protocol.
type Service struct {
	store Store
}

// NewService creates a service over a read store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// StudentPercentage computes one student's attendance share of a course's
// sessions, optionally bounded by a date range. Zero sessions yields zero
// percent rather than an error.
func (s *Service) StudentPercentage(ctx context.Context, studentID, courseID int64, from, to *time.Time) (Percentage, error) {
	total, err := s.store.SessionCount(ctx, courseID, from, to)
	if err != nil {
		return Percentage{}, err
	}
	attended, err := s.store.AttendedCount(ctx, studentID, courseID, from, to)
	if err != nil {
		return Percentage{}, err
	}
	p := Percentage{TotalSessions: total, Attended: attended}
	if total > 0 {
		p.Percent = round1(float64(attended) / float64(total) * 100)
	}
	return p, nil
}

// CourseSummary averages attendance over a course's enrolled students.
func (s *Service) CourseSummary(ctx context.Context, courseID int64, from, to *time.Time) (CourseSummary, error) {
	students, err := s.store.StudentsInCourse(ctx, courseID)
	if err != nil {
		return CourseSummary{}, err
	}
	summary := CourseSummary{CourseID: courseID, Students: []StudentShare{}}
	if len(students) == 0 {
		return summary, nil
	}

	var sum float64
	for _, st := range students {
		p, err := s.StudentPercentage(ctx, st.ID, courseID, from, to)
		if err != nil {
			return CourseSummary{}, err
		}
		sum += p.Percent
		summary.Students = append(summary.Students, StudentShare{StudentRef: st, Percent: p.Percent})
	}
	summary.Average = round1(sum / float64(len(students)))
	return summary, nil
}

// SessionAttendance lists who is marked present in a session.
func (s *Service) SessionAttendance(ctx context.Context, sessionID int64) ([]Entry, error) {
	return s.store.SessionEntries(ctx, sessionID)
}

// StudentHistory lists a student's records, optionally restricted to one
// course (courseID 0 means all).
func (s *Service) StudentHistory(ctx context.Context, studentID, courseID int64) ([]HistoryEntry, error) {
	return s.store.StudentHistory(ctx, studentID, courseID)
}

// FilteredRecords lists a course's records within a date range.
func (s *Service) FilteredRecords(ctx context.Context, courseID int64, from, to *time.Time) ([]HistoryEntry, error) {
	return s.store.FilteredRecords(ctx, courseID, from, to)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
