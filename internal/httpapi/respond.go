package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"presence/internal/checkin"
	"presence/internal/report"
	"presence/internal/roster"
)

// fail maps service errors to HTTP statuses. Every expected rejection keeps
// its specific message; anything unrecognised is logged and reported as a
// generic failure so internals do not leak.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, checkin.ErrSessionNotFound),
		errors.Is(err, checkin.ErrStudentNotFound),
		errors.Is(err, roster.ErrUserNotFound),
		errors.Is(err, roster.ErrStudentNotFound),
		errors.Is(err, roster.ErrCourseNotFound),
		errors.Is(err, report.ErrCourseNotFound):
		status = http.StatusNotFound
	case errors.Is(err, checkin.ErrUnauthorized),
		errors.Is(err, checkin.ErrNotEnrolled),
		errors.Is(err, checkin.ErrNotCollecting),
		errors.Is(err, checkin.ErrCodeExpired):
		status = http.StatusForbidden
	case errors.Is(err, checkin.ErrCodeMismatch),
		errors.Is(err, checkin.ErrInvalidDuration),
		errors.Is(err, roster.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, checkin.ErrNotActive),
		errors.Is(err, checkin.ErrAlreadyMarked),
		errors.Is(err, checkin.ErrDuplicateSession),
		errors.Is(err, roster.ErrDuplicateUser),
		errors.Is(err, roster.ErrDuplicateStudent),
		errors.Is(err, roster.ErrDuplicateCourse):
		status = http.StatusConflict
	case errors.Is(err, roster.ErrBadCredentials):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "an unexpected error occurred"
	}
	c.JSON(status, gin.H{"message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

func forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, gin.H{"message": message})
}
