package checkin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists sessions and the attendance ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ErrDuplicateSession is returned when a course already has a session on the
// requested date.
var ErrDuplicateSession = errors.New("a session already exists for this course on that date")

// SessionByID returns a session joined with its course's lecturer, or
// (nil, nil) when absent.
func (r *Repository) SessionByID(ctx context.Context, id int64) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.course_id, COALESCE(c.lecturer_id, 0),
		       s.session_date, s.start_time, s.end_time, COALESCE(s.topic, ''),
		       s.credential, s.expires_at
		FROM sessions s
		JOIN courses c ON c.id = s.course_id
		WHERE s.id = $1
	`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.CourseID, &sess.LecturerID,
		&sess.Date, &sess.StartTime, &sess.EndTime, &sess.Topic,
		&sess.Credential, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// Activate installs a fresh credential on one session and strips it from
// every sibling in the same transaction, so concurrent activations cannot
// leave two sessions of a course holding live codes.
func (r *Repository) Activate(ctx context.Context, sessionID, courseID int64, credential string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET credential = NULL, expires_at = NULL
		WHERE course_id = $1 AND id <> $2 AND credential IS NOT NULL
	`, courseID, sessionID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET credential = $2, expires_at = $3
		WHERE id = $1
	`, sessionID, credential, expiresAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrSessionNotFound
	}

	return tx.Commit()
}

// Deactivate clears the session's credential and expiry.
func (r *Repository) Deactivate(ctx context.Context, sessionID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET credential = NULL, expires_at = NULL WHERE id = $1
	`, sessionID)
	return err
}

// StudentByIndex resolves a student by their index number, (nil, nil) when absent.
func (r *Repository) StudentByIndex(ctx context.Context, indexNumber string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, index_number, name FROM students WHERE index_number = $1
	`, indexNumber)
	var st Student
	if err := row.Scan(&st.ID, &st.IndexNumber, &st.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// Enrolled reports whether the student is enrolled in the course.
func (r *Repository) Enrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	var enrolled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)
	`, studentID, courseID).Scan(&enrolled)
	return enrolled, err
}

// HasRecord reports whether the ledger already holds a row for the pair.
func (r *Repository) HasRecord(ctx context.Context, sessionID, studentID int64) (bool, error) {
	var marked bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance WHERE session_id = $1 AND student_id = $2)
	`, sessionID, studentID).Scan(&marked)
	return marked, err
}

// InsertRecord appends one ledger row. The unique constraint on
// (session_id, student_id) makes a concurrent duplicate insert a no-op here
// rather than a crash or a double count.
func (r *Repository) InsertRecord(ctx context.Context, rec *Record) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (session_id, student_id, status, marked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING id
	`, rec.SessionID, rec.StudentID, rec.Status, rec.MarkedAt)
	if err := row.Scan(&rec.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateSession schedules a new meeting. A course gets at most one session
// per date.
func (r *Repository) CreateSession(ctx context.Context, sess *Session) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (course_id, session_date, start_time, end_time, topic)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id
	`, sess.CourseID, sess.Date, sess.StartTime, sess.EndTime, sess.Topic)
	if err := row.Scan(&sess.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

// SessionsByCourse lists a course's sessions, most recent first.
func (r *Repository) SessionsByCourse(ctx context.Context, courseID int64) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.course_id, COALESCE(c.lecturer_id, 0),
		       s.session_date, s.start_time, s.end_time, COALESCE(s.topic, ''),
		       s.credential, s.expires_at
		FROM sessions s
		JOIN courses c ON c.id = s.course_id
		WHERE s.course_id = $1
		ORDER BY s.session_date DESC, s.start_time DESC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CourseID, &sess.LecturerID,
			&sess.Date, &sess.StartTime, &sess.EndTime, &sess.Topic,
			&sess.Credential, &sess.ExpiresAt); err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, rows.Err()
}

// DeleteSession removes a session; its attendance rows go with it via the
// foreign-key cascade.
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UserEnrolled reports whether the user's linked student profile is enrolled
// in the course. Used to let enrolled students view a course's sessions.
func (r *Repository) UserEnrolled(ctx context.Context, userID, courseID int64) (bool, error) {
	var enrolled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM enrollments e
			JOIN students st ON st.id = e.student_id
			WHERE st.user_id = $1 AND e.course_id = $2
		)
	`, userID, courseID).Scan(&enrolled)
	return enrolled, err
}
