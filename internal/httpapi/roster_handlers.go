package httpapi

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"presence/internal/report"
	"presence/internal/roster"
)

// ---------- Users (admin only) ----------

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.roster.Repo().ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Email    string `json:"email"`
		Role     string `json:"role" binding:"required"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username, password, and role are required")
		return
	}
	user, err := h.roster.CreateUser(c.Request.Context(), req.Username, req.Password, req.Email, req.Role, req.IsAdmin)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid user id")
		return
	}
	user, err := h.roster.Repo().UserByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil {
		fail(c, roster.ErrUserNotFound)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid user id")
		return
	}
	var req struct {
		Email    *string `json:"email"`
		Role     *string `json:"role"`
		IsAdmin  *bool   `json:"is_admin"`
		Password *string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	user, err := h.roster.Repo().UserByID(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil {
		fail(c, roster.ErrUserNotFound)
		return
	}

	if req.Email != nil {
		user.Email = req.Email
	}
	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		if role != "student" && role != "lecturer" && role != "admin" {
			badRequest(c, fmt.Sprintf("unknown role %q", role))
			return
		}
		user.Role = role
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if err := h.roster.Repo().UpdateUser(ctx, user); err != nil {
		fail(c, err)
		return
	}
	if req.Password != nil {
		if err := h.roster.SetPassword(ctx, id, *req.Password); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid user id")
		return
	}
	if actor(c).UserID == id {
		forbidden(c, "cannot delete your own account")
		return
	}
	if err := h.roster.Repo().DeleteUser(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// ---------- Students ----------

type studentRequest struct {
	IndexNumber string  `json:"index_number"`
	Name        string  `json:"name"`
	Email       *string `json:"email"`
	ClassName   *string `json:"class_name"`
	Major       *string `json:"major"`
	UserID      *int64  `json:"user_id"`
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	st := &roster.Student{
		IndexNumber: req.IndexNumber,
		Name:        req.Name,
		Email:       req.Email,
		ClassName:   req.ClassName,
		Major:       req.Major,
		UserID:      req.UserID,
	}
	if err := h.roster.CreateStudent(c.Request.Context(), st); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.roster.Repo().ListStudents(c.Request.Context(),
		c.Query("index_number"), c.Query("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "count": len(students)})
}

func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid student id")
		return
	}
	st, err := h.roster.Repo().StudentByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if st == nil {
		fail(c, roster.ErrStudentNotFound)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid student id")
		return
	}
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	st, err := h.roster.Repo().StudentByID(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if st == nil {
		fail(c, roster.ErrStudentNotFound)
		return
	}

	if req.IndexNumber != "" {
		st.IndexNumber = req.IndexNumber
	}
	if req.Name != "" {
		st.Name = req.Name
	}
	if req.Email != nil {
		st.Email = req.Email
	}
	if req.ClassName != nil {
		st.ClassName = req.ClassName
	}
	if req.Major != nil {
		st.Major = req.Major
	}
	if req.UserID != nil {
		st.UserID = req.UserID
	}
	if err := h.roster.Repo().UpdateStudent(ctx, st); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid student id")
		return
	}
	if err := h.roster.Repo().DeleteStudent(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "student deleted"})
}

// ImportStudents bulk-upserts students. Accepts either a JSON body with a
// students array or a multipart CSV upload with an index_number,name,email
// header row.
func (h *Handler) ImportStudents(c *gin.Context) {
	rows, err := importRows(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(rows) == 0 {
		badRequest(c, "no student rows supplied")
		return
	}
	outcome, err := h.roster.ImportStudents(c.Request.Context(), rows)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func importRows(c *gin.Context) ([]roster.ImportRow, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file upload")
		}
		defer file.Close()
		return parseImportCSV(file)
	}

	var req struct {
		Students []roster.ImportRow `json:"students"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("invalid request body")
	}
	return req.Students, nil
}

func parseImportCSV(r io.Reader) ([]roster.ImportRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("empty csv file")
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idxCol, okIdx := col["index_number"]
	nameCol, okName := col["name"]
	if !okIdx || !okName {
		return nil, fmt.Errorf("csv header must include index_number and name")
	}
	emailCol, hasEmail := col["email"]

	var rows []roster.ImportRow
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %v", err)
		}
		row := roster.ImportRow{
			IndexNumber: strings.TrimSpace(rec[idxCol]),
			Name:        strings.TrimSpace(rec[nameCol]),
		}
		if hasEmail && emailCol < len(rec) {
			row.Email = strings.TrimSpace(rec[emailCol])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (h *Handler) ExportStudents(c *gin.Context) {
	file, err := h.reports.ExportStudents(c.Request.Context(), report.ExportOptions{
		IndexFilter: c.Query("index_number"),
		NameFilter:  c.Query("name"),
		CourseName:  c.Query("course"),
		Format:      c.DefaultQuery("format", "csv"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// ---------- Courses ----------

func (h *Handler) CreateCourse(c *gin.Context) {
	var req struct {
		Name        string  `json:"name" binding:"required"`
		Description *string `json:"description"`
		LecturerID  *int64  `json:"lecturer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "course name is required")
		return
	}

	who := actor(c)
	course := &roster.Course{Name: req.Name, Description: req.Description}
	if who.IsAdmin && req.LecturerID != nil {
		course.LecturerID = req.LecturerID
	} else {
		course.LecturerID = &who.UserID
	}
	if err := h.roster.CreateCourse(c.Request.Context(), course); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// ListCourses scopes the listing to the caller: lecturers see their own
// courses, students the ones they are enrolled in, admins everything.
func (h *Handler) ListCourses(c *gin.Context) {
	ctx := c.Request.Context()
	who := actor(c)

	var (
		courses []roster.Course
		err     error
	)
	switch {
	case who.IsAdmin:
		courses, err = h.roster.Repo().ListCourses(ctx, 0)
	case who.Role == "lecturer":
		courses, err = h.roster.Repo().ListCourses(ctx, who.UserID)
	default:
		var st *roster.Student
		st, err = h.roster.Repo().StudentByUserID(ctx, who.UserID)
		if err == nil && st != nil {
			courses, err = h.roster.Repo().CoursesForStudent(ctx, st.ID)
		}
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses, "count": len(courses)})
}

func (h *Handler) GetCourse(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid course id")
		return
	}
	course, err := h.roster.Repo().CourseByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if course == nil {
		fail(c, roster.ErrCourseNotFound)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) UpdateCourse(c *gin.Context) {
	course, ok := h.manageableCourse(c)
	if !ok {
		return
	}
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		LecturerID  *int64  `json:"lecturer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if req.Name != "" {
		course.Name = req.Name
	}
	if req.Description != nil {
		course.Description = req.Description
	}
	if req.LecturerID != nil {
		if !actor(c).IsAdmin {
			forbidden(c, "only admins may reassign a course")
			return
		}
		course.LecturerID = req.LecturerID
	}
	if err := h.roster.Repo().UpdateCourse(c.Request.Context(), course); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) DeleteCourse(c *gin.Context) {
	course, ok := h.manageableCourse(c)
	if !ok {
		return
	}
	if err := h.roster.Repo().DeleteCourse(c.Request.Context(), course.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "course deleted"})
}

func (h *Handler) EnrollStudents(c *gin.Context) {
	h.changeEnrollment(c, h.roster.EnrollStudents)
}

func (h *Handler) UnenrollStudents(c *gin.Context) {
	h.changeEnrollment(c, h.roster.UnenrollStudents)
}

func (h *Handler) changeEnrollment(c *gin.Context,
	apply func(context.Context, int64, []int64) (roster.EnrollResult, error)) {
	course, ok := h.manageableCourse(c)
	if !ok {
		return
	}
	var req struct {
		StudentIDs []int64 `json:"student_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "student_ids is required")
		return
	}

	result, err := apply(c.Request.Context(), course.ID, req.StudentIDs)
	if errors.Is(err, roster.ErrStudentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":     "some students do not exist",
			"missing_ids": result.Missing,
		})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CourseStudents(c *gin.Context) {
	course, ok := h.visibleCourse(c)
	if !ok {
		return
	}
	students, err := h.roster.Repo().StudentsInCourse(c.Request.Context(), course.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": course.ID, "students": students, "count": len(students)})
}

func (h *Handler) CourseSessions(c *gin.Context) {
	course, ok := h.visibleCourse(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.SessionsByCourse(c.Request.Context(), course.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": course.ID, "sessions": sessions, "count": len(sessions)})
}

// manageableCourse loads the :id course and checks the caller may change it.
// On failure it writes the response and returns ok=false.
func (h *Handler) manageableCourse(c *gin.Context) (*roster.Course, bool) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid course id")
		return nil, false
	}
	course, err := h.roster.Repo().CourseByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if course == nil {
		fail(c, roster.ErrCourseNotFound)
		return nil, false
	}
	who := actor(c)
	if !who.IsAdmin && (course.LecturerID == nil || *course.LecturerID != who.UserID) {
		forbidden(c, "you do not manage this course")
		return nil, false
	}
	return course, true
}

// visibleCourse loads the :id course and checks the caller may read it:
// its lecturer, an admin, or an enrolled student.
func (h *Handler) visibleCourse(c *gin.Context) (*roster.Course, bool) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid course id")
		return nil, false
	}
	ctx := c.Request.Context()
	course, err := h.roster.Repo().CourseByID(ctx, id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if course == nil {
		fail(c, roster.ErrCourseNotFound)
		return nil, false
	}
	who := actor(c)
	if who.IsAdmin || (course.LecturerID != nil && *course.LecturerID == who.UserID) {
		return course, true
	}
	enrolled, err := h.sessions.UserEnrolled(ctx, who.UserID, course.ID)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if !enrolled {
		forbidden(c, "you are not enrolled in this course")
		return nil, false
	}
	return course, true
}
