package checkin

import "errors"

// Every rejection the protocol can produce is a distinct sentinel so the
// HTTP layer can tell the student exactly what went wrong.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrUnauthorized    = errors.New("not allowed to manage this session")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrNotActive       = errors.New("session has no active code")
	ErrNotEnrolled     = errors.New("student is not enrolled in this course")
	ErrNotCollecting   = errors.New("attendance is not currently being taken for this session")
	ErrCodeExpired     = errors.New("code has expired")
	ErrCodeMismatch    = errors.New("code does not match the active code for this session")
	ErrAlreadyMarked   = errors.New("attendance already marked for this session")
)

// RejectReason returns a short stable label for a rejection, used as a
// metrics dimension and in the audit trail.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrStudentNotFound):
		return "student_not_found"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrNotCollecting):
		return "not_collecting"
	case errors.Is(err, ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, ErrCodeMismatch):
		return "code_mismatch"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	default:
		return "internal"
	}
}
