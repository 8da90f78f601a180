// Package roster manages users, students, courses, and enrollment. The
// check-in protocol consumes it only through the enrollment and student
// lookups in its own store.
package roster

import (
	"errors"
	"time"
)

// User is an account that can log in.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Email        *string   `json:"email,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Student is a person who can be marked present. IndexNumber is the
// human-readable identifier students type in at check-in.
type Student struct {
	ID          int64   `json:"id"`
	IndexNumber string  `json:"index_number"`
	Name        string  `json:"name"`
	Email       *string `json:"email,omitempty"`
	ClassName   *string `json:"class_name,omitempty"`
	Major       *string `json:"major,omitempty"`
	UserID      *int64  `json:"user_id,omitempty"`
}

// Course groups sessions and enrolled students under a lecturer.
type Course struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	LecturerID  *int64  `json:"lecturer_id,omitempty"`
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrDuplicateUser    = errors.New("username or email already exists")
	ErrDuplicateStudent = errors.New("index number or email already exists")
	ErrDuplicateCourse  = errors.New("course name already exists")
	ErrBadCredentials   = errors.New("invalid username or password")
	ErrValidation       = errors.New("validation failed")
)

// EnrollResult summarises a batch enroll or unenroll.
type EnrollResult struct {
	Changed   int     `json:"changed"`
	Unchanged int     `json:"unchanged"`
	Missing   []int64 `json:"missing,omitempty"`
}
