package roster

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists the roster in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---------- Users ----------

const userCols = `id, username, password_hash, role, email, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user. ErrDuplicateUser on username/email collision.
func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role, email, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Username, u.PasswordHash, u.Role, u.Email, u.IsAdmin)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if uniqueViolation(err) {
			return ErrDuplicateUser
		}
		return err
	}
	return nil
}

// UserByUsername returns a user or (nil, nil).
func (r *Repository) UserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

// UserByID returns a user or (nil, nil).
func (r *Repository) UserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

// ListUsers returns all users ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUser rewrites role, email, and admin flag; password changes go
// through UpdatePassword.
func (r *Repository) UpdateUser(ctx context.Context, u *User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET role = $2, email = $3, is_admin = $4 WHERE id = $1
	`, u.ID, u.Role, u.Email, u.IsAdmin)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicateUser
		}
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

// UpdatePassword replaces the stored hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

// DeleteUser removes a user.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

// ---------- Students ----------

const studentCols = `id, index_number, name, email, class_name, major, user_id`

func scanStudent(row interface{ Scan(...any) error }) (*Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.IndexNumber, &s.Name, &s.Email, &s.ClassName, &s.Major, &s.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreateStudent inserts a student. ErrDuplicateStudent on index/email collision.
func (r *Repository) CreateStudent(ctx context.Context, s *Student) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (index_number, name, email, class_name, major, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, s.IndexNumber, s.Name, s.Email, s.ClassName, s.Major, s.UserID)
	if err := row.Scan(&s.ID); err != nil {
		if uniqueViolation(err) {
			return ErrDuplicateStudent
		}
		return err
	}
	return nil
}

// StudentByID returns a student or (nil, nil).
func (r *Repository) StudentByID(ctx context.Context, id int64) (*Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE id = $1`, id))
}

// StudentByIndex returns a student by index number or (nil, nil).
func (r *Repository) StudentByIndex(ctx context.Context, index string) (*Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE index_number = $1`, index))
}

// StudentByUserID returns the student profile linked to a user, or (nil, nil).
func (r *Repository) StudentByUserID(ctx context.Context, userID int64) (*Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE user_id = $1`, userID))
}

// ListStudents returns students filtered by case-insensitive substring match
// on index number and name; empty filters match everything.
func (r *Repository) ListStudents(ctx context.Context, indexFilter, nameFilter string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentCols+`
		FROM students
		WHERE ($1 = '' OR index_number ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY index_number
	`, indexFilter, nameFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.IndexNumber, &s.Name, &s.Email, &s.ClassName, &s.Major, &s.UserID); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateStudent rewrites the mutable fields.
func (r *Repository) UpdateStudent(ctx context.Context, s *Student) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET index_number = $2, name = $3, email = $4, class_name = $5, major = $6
		WHERE id = $1
	`, s.ID, s.IndexNumber, s.Name, s.Email, s.ClassName, s.Major)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicateStudent
		}
		return err
	}
	return requireRow(res, ErrStudentNotFound)
}

// DeleteStudent removes a student; enrollment and attendance rows cascade.
func (r *Repository) DeleteStudent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStudentNotFound)
}

// ---------- Courses ----------

const courseCols = `id, name, description, lecturer_id`

func scanCourse(row interface{ Scan(...any) error }) (*Course, error) {
	var c Course
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.LecturerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// CreateCourse inserts a course. ErrDuplicateCourse on name collision.
func (r *Repository) CreateCourse(ctx context.Context, c *Course) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (name, description, lecturer_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.Name, c.Description, c.LecturerID)
	if err := row.Scan(&c.ID); err != nil {
		if uniqueViolation(err) {
			return ErrDuplicateCourse
		}
		return err
	}
	return nil
}

// CourseByID returns a course or (nil, nil).
func (r *Repository) CourseByID(ctx context.Context, id int64) (*Course, error) {
	return scanCourse(r.db.QueryRowContext(ctx,
		`SELECT `+courseCols+` FROM courses WHERE id = $1`, id))
}

// ListCourses returns courses, optionally restricted to one lecturer.
func (r *Repository) ListCourses(ctx context.Context, lecturerID int64) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+courseCols+` FROM courses
		WHERE $1 = 0 OR lecturer_id = $1
		ORDER BY name
	`, lecturerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.LecturerID); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CoursesForStudent returns the courses a student is enrolled in.
func (r *Repository) CoursesForStudent(ctx context.Context, studentID int64) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.lecturer_id
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = $1
		ORDER BY c.name
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.LecturerID); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateCourse rewrites name, description, and lecturer.
func (r *Repository) UpdateCourse(ctx context.Context, c *Course) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE courses SET name = $2, description = $3, lecturer_id = $4 WHERE id = $1
	`, c.ID, c.Name, c.Description, c.LecturerID)
	if err != nil {
		if uniqueViolation(err) {
			return ErrDuplicateCourse
		}
		return err
	}
	return requireRow(res, ErrCourseNotFound)
}

// DeleteCourse removes a course; sessions, their attendance, and enrollment
// rows cascade.
func (r *Repository) DeleteCourse(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrCourseNotFound)
}

// ---------- Enrollment ----------

// StudentsByIDs returns the subset of ids that exist.
func (r *Repository) StudentsByIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM students WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

// Enroll inserts enrollment rows, skipping pairs that already exist.
// Returns how many were added.
func (r *Repository) Enroll(ctx context.Context, courseID int64, studentIDs []int64) (int, error) {
	added := 0
	for _, sid := range studentIDs {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO enrollments (student_id, course_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, sid, courseID)
		if err != nil {
			return added, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// Unenroll removes enrollment rows. Returns how many were removed.
func (r *Repository) Unenroll(ctx context.Context, courseID int64, studentIDs []int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE course_id = $1 AND student_id = ANY($2)
	`, courseID, studentIDs)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// StudentsInCourse lists enrolled students ordered by index number.
func (r *Repository) StudentsInCourse(ctx context.Context, courseID int64) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.index_number, s.name, s.email, s.class_name, s.major, s.user_id
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.course_id = $1
		ORDER BY s.index_number
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.IndexNumber, &s.Name, &s.Email, &s.ClassName, &s.Major, &s.UserID); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
