package checkin

import "time"

// Roles understood by the authorization predicates.
const (
	RoleAdmin    = "admin"
	RoleLecturer = "lecturer"
	RoleStudent  = "student"
)

// StatusPresent is the only status the check-in path ever writes.
const StatusPresent = "present"

// Session is one scheduled class meeting. Whether its code is usable is
// always derived from Credential and ExpiresAt at read time; there is no
// stored active flag to go stale.
type Session struct {
	ID         int64      `json:"id"`
	CourseID   int64      `json:"course_id"`
	LecturerID int64      `json:"-"`
	Date       time.Time  `json:"session_date"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	Topic      string     `json:"topic,omitempty"`
	Credential *string    `json:"-"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the session's credential is usable at the given
// instant.
func (s *Session) ActiveAt(now time.Time) bool {
	return s.Credential != nil && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// Student is the slice of the roster the validator needs.
type Student struct {
	ID          int64  `json:"id"`
	IndexNumber string `json:"index_number"`
	Name        string `json:"name"`
}

// Record is one row of the attendance ledger. Rows are immutable once
// written; they disappear only when their session is deleted.
type Record struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	StudentID int64     `json:"student_id"`
	Status    string    `json:"status"`
	MarkedAt  time.Time `json:"marked_at"`
}

// Actor is the caller identity threaded into every operation that needs
// authorization. It is derived from verified token claims by the HTTP layer.
type Actor struct {
	UserID   int64
	Username string
	Role     string
	IsAdmin  bool
}

// CanManage reports whether the actor may administer a course owned by the
// given lecturer.
func (a Actor) CanManage(lecturerID int64) bool {
	return a.IsAdmin || (a.Role == RoleLecturer && a.UserID == lecturerID)
}
