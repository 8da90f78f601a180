package roster

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	emailRe    = regexp.MustCompile(`^[\w\.\-+]+@[\w\.\-]+\.\w+$`)
)

// Service validates and coordinates roster changes on top of the repository.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Repo exposes the underlying repository for read-only handler queries.
func (s *Service) Repo() *Repository { return s.repo }

// ---------- Accounts ----------

// Register creates a self-service account. Only student and lecturer roles
// may be self-assigned; admins are created by other admins.
func (s *Service) Register(ctx context.Context, username, password, email, role string) (*User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "student"
	}
	if role != "student" && role != "lecturer" {
		return nil, fmt.Errorf("%w: role %q is not self-assignable", ErrValidation, role)
	}
	return s.createUser(ctx, username, password, email, role, false)
}

// CreateUser creates an account with any role. Caller must be an admin;
// the HTTP layer enforces that.
func (s *Service) CreateUser(ctx context.Context, username, password, email, role string, isAdmin bool) (*User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "student" && role != "lecturer" && role != "admin" {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return s.createUser(ctx, username, password, email, role, isAdmin)
}

func (s *Service) createUser(ctx context.Context, username, password, email, role string, isAdmin bool) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-50 alphanumeric characters or underscores", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if email != "" && !emailRe.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		IsAdmin:      isAdmin,
	}
	if email != "" {
		u.Email = &email
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies a username/password pair. Returns ErrBadCredentials
// for both unknown users and wrong passwords so callers cannot probe for
// valid usernames.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.UserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// SetPassword replaces a user's password.
func (s *Service) SetPassword(ctx context.Context, userID int64, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, string(hash))
}

// ---------- Students ----------

// CreateStudent validates and inserts a student.
func (s *Service) CreateStudent(ctx context.Context, st *Student) error {
	st.IndexNumber = strings.TrimSpace(st.IndexNumber)
	st.Name = strings.TrimSpace(st.Name)
	if st.IndexNumber == "" || st.Name == "" {
		return fmt.Errorf("%w: index number and name are required", ErrValidation)
	}
	if st.Email != nil && !emailRe.MatchString(*st.Email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return s.repo.CreateStudent(ctx, st)
}

// ImportRow is one record of a bulk student import.
type ImportRow struct {
	IndexNumber string `json:"index_number"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

// ImportOutcome reports per-row results of an import.
type ImportOutcome struct {
	Imported []string            `json:"imported"`
	Updated  []string            `json:"updated"`
	Failed   []map[string]string `json:"failed,omitempty"`
}

// ImportStudents upserts students by index number. Rows that fail validation
// or collide on email are reported rather than aborting the batch.
func (s *Service) ImportStudents(ctx context.Context, rows []ImportRow) (ImportOutcome, error) {
	var out ImportOutcome
	fail := func(row ImportRow, reason string) {
		out.Failed = append(out.Failed, map[string]string{
			"index_number": row.IndexNumber, "error": reason,
		})
	}

	for _, row := range rows {
		index := strings.TrimSpace(row.IndexNumber)
		name := strings.TrimSpace(row.Name)
		email := strings.TrimSpace(row.Email)

		if index == "" || name == "" {
			fail(row, "index number and name are required")
			continue
		}
		if email != "" && !emailRe.MatchString(email) {
			fail(row, "invalid email format")
			continue
		}

		existing, err := s.repo.StudentByIndex(ctx, index)
		if err != nil {
			return out, err
		}
		if existing != nil {
			existing.Name = name
			if email != "" {
				existing.Email = &email
			}
			if err := s.repo.UpdateStudent(ctx, existing); err != nil {
				if err == ErrDuplicateStudent {
					fail(row, "email is already taken by another student")
					continue
				}
				return out, err
			}
			out.Updated = append(out.Updated, index)
			continue
		}

		st := &Student{IndexNumber: index, Name: name}
		if email != "" {
			st.Email = &email
		}
		if err := s.repo.CreateStudent(ctx, st); err != nil {
			if err == ErrDuplicateStudent {
				fail(row, "email is already taken by another student")
				continue
			}
			return out, err
		}
		out.Imported = append(out.Imported, index)
	}
	return out, nil
}

// ---------- Courses ----------

// CreateCourse validates and inserts a course.
func (s *Service) CreateCourse(ctx context.Context, c *Course) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: course name is required", ErrValidation)
	}
	return s.repo.CreateCourse(ctx, c)
}

// EnrollStudents adds a batch of students to a course. All ids must exist;
// pairs already enrolled are counted, not errors.
func (s *Service) EnrollStudents(ctx context.Context, courseID int64, studentIDs []int64) (EnrollResult, error) {
	missing, err := s.missingStudents(ctx, studentIDs)
	if err != nil {
		return EnrollResult{}, err
	}
	if len(missing) > 0 {
		return EnrollResult{Missing: missing}, ErrStudentNotFound
	}
	added, err := s.repo.Enroll(ctx, courseID, studentIDs)
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{Changed: added, Unchanged: len(studentIDs) - added}, nil
}

// UnenrollStudents removes a batch of students from a course.
func (s *Service) UnenrollStudents(ctx context.Context, courseID int64, studentIDs []int64) (EnrollResult, error) {
	missing, err := s.missingStudents(ctx, studentIDs)
	if err != nil {
		return EnrollResult{}, err
	}
	if len(missing) > 0 {
		return EnrollResult{Missing: missing}, ErrStudentNotFound
	}
	removed, err := s.repo.Unenroll(ctx, courseID, studentIDs)
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{Changed: removed, Unchanged: len(studentIDs) - removed}, nil
}

func (s *Service) missingStudents(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: student_ids must not be empty", ErrValidation)
	}
	found, err := s.repo.StudentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
