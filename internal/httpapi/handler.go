// Package httpapi maps the REST surface onto the services. Handlers do
// parameter parsing and course-ownership checks; protocol decisions stay in
// internal/checkin.
package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"presence/internal/audit"
	"presence/internal/auth"
	"presence/internal/checkin"
	"presence/internal/config"
	"presence/internal/report"
	"presence/internal/roster"
)

// Handler carries the services behind the REST surface.
type Handler struct {
	cfg      config.App
	roster   *roster.Service
	protocol *checkin.Service
	sessions *checkin.Repository
	reports  *report.Service
	audits   *audit.Repository
	denylist *auth.Denylist
}

// New wires a handler.
func New(cfg config.App, rosterSvc *roster.Service, protocol *checkin.Service,
	sessions *checkin.Repository, reports *report.Service,
	audits *audit.Repository, denylist *auth.Denylist) *Handler {
	return &Handler{
		cfg:      cfg,
		roster:   rosterSvc,
		protocol: protocol,
		sessions: sessions,
		reports:  reports,
		audits:   audits,
		denylist: denylist,
	}
}

// Routes registers every endpoint on the router.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/api/login", h.Login)
	r.POST("/api/register", h.Register)

	authd := r.Group("/api", auth.Require(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, h.denylist))

	authd.POST("/logout", h.Logout)
	authd.GET("/my-profile", h.MyProfile)
	authd.GET("/my-attendance", h.MyAttendance)

	staff := authd.Group("", auth.RequireRole(checkin.RoleLecturer))
	admin := authd.Group("", auth.RequireRole()) // admins only

	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.GET("/users/:id", h.GetUser)
	admin.PUT("/users/:id", h.UpdateUser)
	admin.DELETE("/users/:id", h.DeleteUser)

	staff.POST("/students", h.CreateStudent)
	staff.GET("/students", h.ListStudents)
	staff.GET("/students/:id", h.GetStudent)
	staff.PUT("/students/:id", h.UpdateStudent)
	staff.DELETE("/students/:id", h.DeleteStudent)
	staff.POST("/students/import", h.ImportStudents)
	admin.GET("/students/export", h.ExportStudents)

	staff.POST("/courses", h.CreateCourse)
	authd.GET("/courses", h.ListCourses)
	authd.GET("/courses/:id", h.GetCourse)
	staff.PUT("/courses/:id", h.UpdateCourse)
	staff.DELETE("/courses/:id", h.DeleteCourse)
	staff.POST("/courses/:id/students", h.EnrollStudents)
	staff.DELETE("/courses/:id/students", h.UnenrollStudents)
	authd.GET("/courses/:id/students", h.CourseStudents)
	authd.GET("/courses/:id/sessions", h.CourseSessions)
	staff.GET("/courses/:id/attendance_summary", h.CourseAttendanceSummary)

	staff.POST("/sessions", h.CreateSession)
	staff.DELETE("/sessions/:id", h.DeleteSession)
	staff.POST("/sessions/:id/qr", h.ActivateCode)
	staff.DELETE("/sessions/:id/qr", h.DeactivateCode)
	staff.GET("/sessions/:id/qr", h.CodeStatus)
	authd.POST("/sessions/:id/attendance", h.CheckIn)
	staff.GET("/sessions/:id/attendance", h.SessionAttendance)

	staff.GET("/students/:id/attendance", h.StudentAttendance)
	staff.GET("/reports/attendance", h.AttendanceReport)
	admin.GET("/audit", h.AuditTrail)
}

// actor converts verified claims into the explicit authorization context the
// services take.
func actor(c *gin.Context) checkin.Actor {
	claims, _ := auth.FromContext(c)
	return checkin.Actor{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		IsAdmin:  claims.IsAdmin,
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
