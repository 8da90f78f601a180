package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"presence/internal/roster"
)

// MyAttendance shows the caller's own history, plus the percentage when a
// course is named.
func (h *Handler) MyAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	who := actor(c)

	student, err := h.roster.Repo().StudentByUserID(ctx, who.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "no student profile is linked to this account"})
		return
	}
	h.writeStudentAttendance(c, student)
}

// StudentAttendance shows one student's history and percentage to staff.
func (h *Handler) StudentAttendance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid student id")
		return
	}
	student, err := h.roster.Repo().StudentByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if student == nil {
		fail(c, roster.ErrStudentNotFound)
		return
	}
	h.writeStudentAttendance(c, student)
}

func (h *Handler) writeStudentAttendance(c *gin.Context, student *roster.Student) {
	ctx := c.Request.Context()
	courseID := queryID(c, "course_id")

	history, err := h.reports.StudentHistory(ctx, student.ID, courseID)
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{
		"student_id":   student.ID,
		"index_number": student.IndexNumber,
		"history":      history,
	}
	if courseID > 0 {
		from, to, ok := dateRange(c)
		if !ok {
			return
		}
		pct, err := h.reports.StudentPercentage(ctx, student.ID, courseID, from, to)
		if err != nil {
			fail(c, err)
			return
		}
		resp["course_id"] = courseID
		resp["summary"] = pct
	}
	c.JSON(http.StatusOK, resp)
}

// CourseAttendanceSummary aggregates per-student percentages over a course.
func (h *Handler) CourseAttendanceSummary(c *gin.Context) {
	course, ok := h.manageableCourse(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	summary, err := h.reports.CourseSummary(c.Request.Context(), course.ID, from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AttendanceReport lists a course's ledger rows inside an optional date range.
func (h *Handler) AttendanceReport(c *gin.Context) {
	courseID := queryID(c, "course_id")
	if courseID <= 0 {
		badRequest(c, "course_id is required")
		return
	}

	ctx := c.Request.Context()
	course, err := h.roster.Repo().CourseByID(ctx, courseID)
	if err != nil {
		fail(c, err)
		return
	}
	if course == nil {
		fail(c, roster.ErrCourseNotFound)
		return
	}
	who := actor(c)
	if !who.IsAdmin && (course.LecturerID == nil || *course.LecturerID != who.UserID) {
		forbidden(c, "you do not manage this course")
		return
	}

	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	records, err := h.reports.FilteredRecords(ctx, courseID, from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": courseID, "records": records, "count": len(records)})
}

// AuditTrail lists recent protocol events, newest first.
func (h *Handler) AuditTrail(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := h.audits.List(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func queryID(c *gin.Context, key string) int64 {
	id, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// dateRange parses optional from/to query dates. On a malformed value it
// writes the 400 itself and reports ok=false.
func dateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	parse := func(key string) (*time.Time, bool) {
		raw := c.Query(key)
		if raw == "" {
			return nil, true
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			badRequest(c, key+" must be YYYY-MM-DD")
			return nil, false
		}
		return &t, true
	}
	if from, ok = parse("from"); !ok {
		return nil, nil, false
	}
	if to, ok = parse("to"); !ok {
		return nil, nil, false
	}
	return from, to, true
}
