package checkin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for exercising the protocol without Postgres.
type memStore struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	students    map[string]*Student
	enrollments map[[2]int64]bool // {studentID, courseID}
	records     []Record
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    make(map[int64]*Session),
		students:    make(map[string]*Student),
		enrollments: make(map[[2]int64]bool),
	}
}

func (m *memStore) addSession(id, courseID, lecturerID int64) {
	m.sessions[id] = &Session{ID: id, CourseID: courseID, LecturerID: lecturerID}
}

func (m *memStore) addStudent(id int64, index string, courses ...int64) {
	m.students[index] = &Student{ID: id, IndexNumber: index, Name: "Student " + index}
	for _, c := range courses {
		m.enrollments[[2]int64{id, c}] = true
	}
}

func (m *memStore) SessionByID(_ context.Context, id int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (m *memStore) Activate(_ context.Context, sessionID, courseID int64, credential string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for _, other := range m.sessions {
		if other.CourseID == courseID && other.ID != sessionID {
			other.Credential = nil
			other.ExpiresAt = nil
		}
	}
	sess.Credential = &credential
	sess.ExpiresAt = &expiresAt
	return nil
}

func (m *memStore) Deactivate(_ context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.Credential = nil
		sess.ExpiresAt = nil
	}
	return nil
}

func (m *memStore) StudentByIndex(_ context.Context, index string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[index]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) Enrolled(_ context.Context, studentID, courseID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollments[[2]int64{studentID, courseID}], nil
}

func (m *memStore) HasRecord(_ context.Context, sessionID, studentID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.SessionID == sessionID && rec.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertRecord(_ context.Context, rec *Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.SessionID == rec.SessionID && existing.StudentID == rec.StudentID {
			return false, nil
		}
	}
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, *rec)
	return true, nil
}

func (m *memStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) activeSessions(now time.Time) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, sess := range m.sessions {
		if sess.ActiveAt(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// racyStore bypasses the read-before-insert duplicate check so both
// concurrent check-ins reach the insert, leaving the uniqueness constraint
// as the only defence.
type racyStore struct {
	*memStore
}

func (r *racyStore) HasRecord(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func clockAt(svc *Service, t *time.Time) {
	svc.now = func() time.Time { return *t }
}

var (
	lecturer = Actor{UserID: 10, Username: "drsmith", Role: RoleLecturer}
	admin    = Actor{UserID: 1, Username: "root", Role: RoleAdmin, IsAdmin: true}
)

func TestActivateKeepsOneCodePerCourse(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(1, 100, 10)
	store.addSession(2, 100, 10)
	store.addSession(3, 100, 10)
	store.addSession(9, 200, 10) // other course, untouched

	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	if _, err := svc.Activate(ctx, lecturer, 9, 10*time.Minute); err != nil {
		t.Fatalf("activate other-course session: %v", err)
	}

	for _, id := range []int64{1, 2, 3, 2, 1} {
		if _, err := svc.Activate(ctx, lecturer, id, 10*time.Minute); err != nil {
			t.Fatalf("activate session %d: %v", id, err)
		}
		active := store.activeSessions(now)
		var inCourse []int64
		for _, a := range active {
			if a != 9 {
				inCourse = append(inCourse, a)
			}
		}
		if len(inCourse) != 1 || inCourse[0] != id {
			t.Fatalf("after activating %d, active sessions in course = %v, want [%d]", id, inCourse, id)
		}
	}

	// Sibling rotation must not disturb other courses.
	if got := store.sessions[9]; got.Credential == nil {
		t.Fatalf("session in other course lost its code")
	}
}

func TestActivateMintsFreshCodeEveryTime(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(1, 100, 10)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	first, err := svc.Activate(ctx, lecturer, 1, 5*time.Minute)
	if err != nil {
		t.Fatalf("first activate: %v", err)
	}
	second, err := svc.Activate(ctx, lecturer, 1, 5*time.Minute)
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if first.Credential == second.Credential {
		t.Fatalf("reactivation reused credential %q", first.Credential)
	}
	if want := now.Add(5 * time.Minute); !second.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", second.ExpiresAt, want)
	}
}

func TestActivateAuthorization(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(1, 100, 10)
	svc := NewService(store, nil)

	otherLecturer := Actor{UserID: 99, Username: "other", Role: RoleLecturer}
	if _, err := svc.Activate(ctx, otherLecturer, 1, time.Minute); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign lecturer: got %v, want ErrUnauthorized", err)
	}
	student := Actor{UserID: 10, Username: "impostor", Role: RoleStudent}
	if _, err := svc.Activate(ctx, student, 1, time.Minute); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student caller: got %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Activate(ctx, admin, 1, time.Minute); err != nil {
		t.Fatalf("admin caller: %v", err)
	}
	if _, err := svc.Activate(ctx, lecturer, 1, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("zero duration: got %v, want ErrInvalidDuration", err)
	}
	if _, err := svc.Activate(ctx, admin, 404, time.Minute); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session: got %v, want ErrSessionNotFound", err)
	}
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(1, 100, 10)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	if err := svc.Deactivate(ctx, lecturer, 1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("deactivate inactive session: got %v, want ErrNotActive", err)
	}
	if _, err := svc.Activate(ctx, lecturer, 1, 10*time.Minute); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := svc.Deactivate(ctx, lecturer, 1); err != nil {
		t.Fatalf("deactivate active session: %v", err)
	}
	if err := svc.Deactivate(ctx, lecturer, 1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second deactivate: got %v, want ErrNotActive", err)
	}

	// An elapsed window counts as inactive even though nothing was stored.
	if _, err := svc.Activate(ctx, lecturer, 1, 10*time.Minute); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	now = now.Add(11 * time.Minute)
	if err := svc.Deactivate(ctx, lecturer, 1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("deactivate after expiry: got %v, want ErrNotActive", err)
	}
}

func TestStatusDerivesExpiryLazily(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(1, 100, 10)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	act, err := svc.Activate(ctx, lecturer, 1, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	status, err := svc.Status(ctx, lecturer, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Active || status.Credential != act.Credential {
		t.Fatalf("status while active = %+v", status)
	}

	now = now.Add(10*time.Minute + time.Second)
	status, err = svc.Status(ctx, lecturer, 1)
	if err != nil {
		t.Fatalf("status after expiry: %v", err)
	}
	if status.Active || status.Credential != "" {
		t.Fatalf("expired code still reported usable: %+v", status)
	}
}

// The concrete scenario: activate at T, check in at T+30s, retry at T+31s,
// stale attempt at T+700s.
func TestCheckInLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(5, 100, 10)
	store.addStudent(42, "STU42", 100)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	start := now
	clockAt(svc, &now)

	act, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	now = start.Add(30 * time.Second)
	rec, err := svc.CheckIn(ctx, 5, act.Credential, "STU42")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Status != StatusPresent || rec.SessionID != 5 || rec.StudentID != 42 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.MarkedAt.Equal(now) {
		t.Fatalf("marked_at = %v, want %v", rec.MarkedAt, now)
	}
	if store.recordCount() != 1 {
		t.Fatalf("ledger rows = %d, want 1", store.recordCount())
	}

	now = start.Add(31 * time.Second)
	if _, err := svc.CheckIn(ctx, 5, act.Credential, "STU42"); !errors.Is(err, ErrAlreadyMarked) {
		t.Fatalf("duplicate check-in: got %v, want ErrAlreadyMarked", err)
	}

	// After expiry the timing error wins over the duplicate error.
	now = start.Add(700 * time.Second)
	if _, err := svc.CheckIn(ctx, 5, act.Credential, "STU42"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("stale check-in: got %v, want ErrCodeExpired", err)
	}
	if store.recordCount() != 1 {
		t.Fatalf("ledger rows = %d after rejections, want 1", store.recordCount())
	}
}

func TestCheckInExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(5, 100, 10)
	store.addStudent(1, "S1", 100)
	store.addStudent(2, "S2", 100)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	start := now
	clockAt(svc, &now)

	act, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	now = start.Add(10*time.Minute - time.Second)
	if _, err := svc.CheckIn(ctx, 5, act.Credential, "S1"); err != nil {
		t.Fatalf("check-in one second before expiry: %v", err)
	}

	now = start.Add(10*time.Minute + time.Second)
	if _, err := svc.CheckIn(ctx, 5, act.Credential, "S2"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("check-in one second after expiry: got %v, want ErrCodeExpired", err)
	}
}

func TestCheckInRotationInvalidatesOldCode(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(5, 100, 10)
	store.addStudent(1, "S1", 100)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	first, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := svc.Deactivate(ctx, lecturer, 5); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Cleared code: nothing is being collected.
	if _, err := svc.CheckIn(ctx, 5, first.Credential, "S1"); !errors.Is(err, ErrNotCollecting) {
		t.Fatalf("check-in after deactivation: got %v, want ErrNotCollecting", err)
	}

	second, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := svc.CheckIn(ctx, 5, first.Credential, "S1"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("stale code against fresh activation: got %v, want ErrCodeMismatch", err)
	}
	if _, err := svc.CheckIn(ctx, 5, second.Credential, "S1"); err != nil {
		t.Fatalf("fresh code: %v", err)
	}
}

func TestCheckInEnrollmentPrecedesCodeChecks(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(5, 100, 10)
	store.addStudent(1, "OUTSIDER") // exists, not enrolled
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	act, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Valid code, wrong roster: enrollment error wins.
	if _, err := svc.CheckIn(ctx, 5, act.Credential, "OUTSIDER"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("non-enrolled student: got %v, want ErrNotEnrolled", err)
	}
	// Even a bogus code reports enrollment first.
	if _, err := svc.CheckIn(ctx, 5, "wrong-code", "OUTSIDER"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("non-enrolled student with bad code: got %v, want ErrNotEnrolled", err)
	}
}

func TestCheckInResolutionFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(5, 100, 10)
	svc := NewService(store, nil)

	if _, err := svc.CheckIn(ctx, 404, "code", "S1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session: got %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.CheckIn(ctx, 5, "code", "GHOST"); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("missing student: got %v, want ErrStudentNotFound", err)
	}
}

func TestCheckInRaceWritesExactlyOneRow(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	mem.addSession(5, 100, 10)
	mem.addStudent(1, "S1", 100)
	svc := NewService(&racyStore{mem}, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	act, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.CheckIn(ctx, 5, act.Credential, "S1")
			results <- err
		}()
	}

	var successes, duplicates int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyMarked):
			duplicates++
		default:
			t.Fatalf("unexpected race outcome: %v", err)
		}
	}
	if successes != 1 || duplicates != 1 {
		t.Fatalf("race outcomes: %d successes, %d duplicates; want 1 and 1", successes, duplicates)
	}
	if mem.recordCount() != 1 {
		t.Fatalf("ledger rows = %d, want 1", mem.recordCount())
	}
}

// Reactivating with a new code must not retroactively invalidate attendance
// recorded under an earlier code: the ledger is keyed by session+student only.
func TestReactivationPreservesEarlierAttendance(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addSession(5, 100, 10)
	store.addStudent(1, "S1", 100)
	store.addStudent(2, "S2", 100)
	svc := NewService(store, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clockAt(svc, &now)

	first, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.CheckIn(ctx, 5, first.Credential, "S1"); err != nil {
		t.Fatalf("check-in under first code: %v", err)
	}

	if err := svc.Deactivate(ctx, lecturer, 5); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	second, err := svc.Activate(ctx, lecturer, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	if _, err := svc.CheckIn(ctx, 5, second.Credential, "S2"); err != nil {
		t.Fatalf("check-in under second code: %v", err)
	}
	// S1's earlier mark still stands and still blocks a second mark.
	if _, err := svc.CheckIn(ctx, 5, second.Credential, "S1"); !errors.Is(err, ErrAlreadyMarked) {
		t.Fatalf("re-check-in after rotation: got %v, want ErrAlreadyMarked", err)
	}
	if store.recordCount() != 2 {
		t.Fatalf("ledger rows = %d, want 2", store.recordCount())
	}
}
