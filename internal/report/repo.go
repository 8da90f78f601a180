package report

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository implements Store over Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SessionCount counts a course's sessions in the date range.
func (r *Repository) SessionCount(ctx context.Context, courseID int64, from, to *time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE course_id = $1
		  AND ($2::date IS NULL OR session_date >= $2)
		  AND ($3::date IS NULL OR session_date <= $3)
	`, courseID, from, to).Scan(&n)
	return n, err
}

// AttendedCount counts a student's present marks across the course's
// sessions in the date range.
func (r *Repository) AttendedCount(ctx context.Context, studentID, courseID int64, from, to *time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM attendance a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.student_id = $1
		  AND s.course_id = $2
		  AND a.status = 'present'
		  AND ($3::date IS NULL OR s.session_date >= $3)
		  AND ($4::date IS NULL OR s.session_date <= $4)
	`, studentID, courseID, from, to).Scan(&n)
	return n, err
}

// StudentsInCourse lists enrolled students.
func (r *Repository) StudentsInCourse(ctx context.Context, courseID int64) ([]StudentRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.index_number, s.name
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.course_id = $1
		ORDER BY s.index_number
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStudents(rows)
}

// SessionEntries lists a session's ledger rows joined with student info.
func (r *Repository) SessionEntries(ctx context.Context, sessionID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, s.index_number, s.name, a.marked_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY a.marked_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RecordID, &e.StudentID, &e.IndexNumber, &e.StudentName, &e.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

const historyCols = `
	a.id, a.session_id, s.session_date, c.id, c.name,
	a.student_id, st.index_number, a.status, a.marked_at`

const historyJoins = `
	FROM attendance a
	JOIN sessions s ON s.id = a.session_id
	JOIN courses c ON c.id = s.course_id
	JOIN students st ON st.id = a.student_id`

// StudentHistory lists a student's records, newest session first.
// courseID 0 means all courses.
func (r *Repository) StudentHistory(ctx context.Context, studentID, courseID int64) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+historyCols+historyJoins+`
		WHERE a.student_id = $1 AND ($2 = 0 OR c.id = $2)
		ORDER BY s.session_date DESC, s.start_time DESC
	`, studentID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHistory(rows)
}

// FilteredRecords lists a course's records within the date range.
func (r *Repository) FilteredRecords(ctx context.Context, courseID int64, from, to *time.Time) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+historyCols+historyJoins+`
		WHERE c.id = $1
		  AND ($2::date IS NULL OR s.session_date >= $2)
		  AND ($3::date IS NULL OR s.session_date <= $3)
		ORDER BY s.session_date DESC, st.index_number
	`, courseID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHistory(rows)
}

// Students lists students matching case-insensitive substring filters.
func (r *Repository) Students(ctx context.Context, indexFilter, nameFilter string) ([]StudentRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, index_number, name
		FROM students
		WHERE ($1 = '' OR index_number ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY index_number
	`, indexFilter, nameFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStudents(rows)
}

// CourseIDByName resolves a course by exact name.
func (r *Repository) CourseIDByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM courses WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func collectStudents(rows *sql.Rows) ([]StudentRef, error) {
	var res []StudentRef
	for rows.Next() {
		var s StudentRef
		if err := rows.Scan(&s.ID, &s.IndexNumber, &s.Name); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func collectHistory(rows *sql.Rows) ([]HistoryEntry, error) {
	var res []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.RecordID, &h.SessionID, &h.SessionDate, &h.CourseID, &h.CourseName,
			&h.StudentID, &h.IndexNumber, &h.Status, &h.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
