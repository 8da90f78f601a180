package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence the protocol needs. The Postgres implementation
// lives in repo.go; tests use an in-memory fake.
type Store interface {
	// SessionByID returns the session joined with its owning course's
	// lecturer, or (nil, nil) when absent.
	SessionByID(ctx context.Context, id int64) (*Session, error)

	// Activate atomically clears the credential of every other session of
	// the course and installs the fresh credential on this one. Concurrent
	// activations for the same course must serialize so at most one session
	// per course ends up holding a credential.
	Activate(ctx context.Context, sessionID, courseID int64, credential string, expiresAt time.Time) error

	// Deactivate clears the session's credential and expiry.
	Deactivate(ctx context.Context, sessionID int64) error

	// StudentByIndex resolves a student by index number, (nil, nil) when absent.
	StudentByIndex(ctx context.Context, indexNumber string) (*Student, error)

	Enrolled(ctx context.Context, studentID, courseID int64) (bool, error)

	HasRecord(ctx context.Context, sessionID, studentID int64) (bool, error)

	// InsertRecord appends to the ledger. It returns false when a row for
	// (session, student) already exists; the uniqueness constraint, not an
	// application-level check, is what closes the race.
	InsertRecord(ctx context.Context, rec *Record) (bool, error)
}

// Recorder receives protocol events for the audit trail. Implementations
// must not block the request path; the queue-backed one hands off to a worker.
type Recorder interface {
	Record(ctx context.Context, kind string, sessionID int64, actor, detail string)
}

// Activation is the outcome of minting a fresh code for a session.
type Activation struct {
	SessionID  int64     `json:"session_id"`
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CodeStatus is the lazily derived view of a session's code.
type CodeStatus struct {
	SessionID  int64      `json:"session_id"`
	Active     bool       `json:"is_active"`
	Credential string     `json:"credential,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Service owns the session activation state machine and the check-in
// decision procedure.
type Service struct {
	store  Store
	events Recorder
	now    func() time.Time
}

// NewService creates the protocol service. events may be nil.
func NewService(store Store, events Recorder) *Service {
	return &Service{store: store, events: events, now: time.Now}
}

// Activate mints a fresh single-use code for the session, force-expiring any
// other active session of the same course. A previously issued code is never
// reused, so a screenshot of an old QR cannot be replayed after reactivation.
func (s *Service) Activate(ctx context.Context, actor Actor, sessionID int64, duration time.Duration) (Activation, error) {
	if duration <= 0 {
		return Activation{}, ErrInvalidDuration
	}
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return Activation{}, err
	}
	if sess == nil {
		return Activation{}, ErrSessionNotFound
	}
	if !actor.CanManage(sess.LecturerID) {
		return Activation{}, ErrUnauthorized
	}

	credential := uuid.NewString()
	expiresAt := s.now().UTC().Add(duration)
	if err := s.store.Activate(ctx, sess.ID, sess.CourseID, credential, expiresAt); err != nil {
		return Activation{}, err
	}

	activationsTotal.Inc()
	s.record(ctx, "session.activated", sess.ID, actor.Username, fmt.Sprintf("valid for %s", duration))
	return Activation{SessionID: sess.ID, Credential: credential, ExpiresAt: expiresAt}, nil
}

// Deactivate withdraws the session's code. Fails with ErrNotActive when the
// session is not currently collecting attendance.
func (s *Service) Deactivate(ctx context.Context, actor Actor, sessionID int64) error {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if !actor.CanManage(sess.LecturerID) {
		return ErrUnauthorized
	}
	if !sess.ActiveAt(s.now().UTC()) {
		return ErrNotActive
	}
	if err := s.store.Deactivate(ctx, sess.ID); err != nil {
		return err
	}
	s.record(ctx, "session.deactivated", sess.ID, actor.Username, "")
	return nil
}

// Status reports whether the session's code is currently usable. Validity is
// re-derived from the stored expiry every time; an elapsed window reads as
// inactive without any stored-state change.
func (s *Service) Status(ctx context.Context, actor Actor, sessionID int64) (CodeStatus, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return CodeStatus{}, err
	}
	if sess == nil {
		return CodeStatus{}, ErrSessionNotFound
	}
	if !actor.CanManage(sess.LecturerID) {
		return CodeStatus{}, ErrUnauthorized
	}
	status := CodeStatus{SessionID: sess.ID}
	if sess.ActiveAt(s.now().UTC()) {
		status.Active = true
		status.Credential = *sess.Credential
		status.ExpiresAt = sess.ExpiresAt
	}
	return status, nil
}

// CheckIn decides whether a claimed code plus a student index number earns a
// presence mark. Checks run in a fixed order so each rejection names the
// earliest failed precondition: session, student, enrollment, code validity
// (inactive / expired / mismatch, in that order), then duplicates. Exactly
// one ledger row is written on success and none on any rejection.
func (s *Service) CheckIn(ctx context.Context, sessionID int64, credential, indexNumber string) (*Record, error) {
	now := s.now().UTC()

	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, s.reject(ctx, sessionID, indexNumber, ErrSessionNotFound)
	}

	student, err := s.store.StudentByIndex(ctx, strings.TrimSpace(indexNumber))
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrStudentNotFound)
	}

	// Enrollment is a precondition independent of timing, so it is checked
	// before the code.
	enrolled, err := s.store.Enrolled(ctx, student.ID, sess.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrNotEnrolled)
	}

	switch {
	case sess.Credential == nil || sess.ExpiresAt == nil:
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrNotCollecting)
	case !sess.ExpiresAt.After(now):
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrCodeExpired)
	case *sess.Credential != credential:
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrCodeMismatch)
	}

	if marked, err := s.store.HasRecord(ctx, sess.ID, student.ID); err != nil {
		return nil, err
	} else if marked {
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrAlreadyMarked)
	}

	rec := &Record{
		SessionID: sess.ID,
		StudentID: student.ID,
		Status:    StatusPresent,
		MarkedAt:  now,
	}
	inserted, err := s.store.InsertRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race against a concurrent duplicate; the unique
		// constraint guarantees exactly one of the two rows landed.
		return nil, s.reject(ctx, sess.ID, indexNumber, ErrAlreadyMarked)
	}

	checkinsAccepted.Inc()
	s.record(ctx, "checkin.accepted", sess.ID, indexNumber, "")
	return rec, nil
}

func (s *Service) reject(ctx context.Context, sessionID int64, indexNumber string, err error) error {
	checkinsRejected.WithLabelValues(RejectReason(err)).Inc()
	s.record(ctx, "checkin.rejected", sessionID, indexNumber, RejectReason(err))
	return err
}

func (s *Service) record(ctx context.Context, kind string, sessionID int64, actor, detail string) {
	if s.events != nil {
		s.events.Record(ctx, kind, sessionID, actor, detail)
	}
}
