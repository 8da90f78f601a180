package roster

import (
	"context"
	"errors"
	"testing"
)

// Validation failures are decided before the repository is touched, so a nil
// repo is enough to exercise them.
func TestRegisterValidation(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		email    string
		role     string
	}{
		{"admin not self-assignable", "alice", "longenough", "a@example.com", "admin"},
		{"unknown role", "alice", "longenough", "a@example.com", "superuser"},
		{"short username", "al", "longenough", "a@example.com", "student"},
		{"username with spaces", "a lice", "longenough", "a@example.com", "student"},
		{"short password", "alice", "short", "a@example.com", "student"},
		{"bad email", "alice", "longenough", "not-an-email", "student"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.password, tc.email, tc.role)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.CreateUser(context.Background(), "bob", "longenough", "", "janitor", false); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestCreateStudentValidation(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	if err := svc.CreateStudent(ctx, &Student{Name: "No Index"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing index: got %v, want ErrValidation", err)
	}
	if err := svc.CreateStudent(ctx, &Student{IndexNumber: "S1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing name: got %v, want ErrValidation", err)
	}
	bad := "nope"
	if err := svc.CreateStudent(ctx, &Student{IndexNumber: "S1", Name: "One", Email: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad email: got %v, want ErrValidation", err)
	}
}

func TestCreateCourseRequiresName(t *testing.T) {
	svc := NewService(nil)
	if err := svc.CreateCourse(context.Background(), &Course{Name: "   "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestEnrollRejectsEmptyBatch(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.EnrollStudents(context.Background(), 1, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}
