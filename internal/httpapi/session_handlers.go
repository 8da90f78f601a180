package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"presence/internal/checkin"
	"presence/internal/qrimage"
)

const dateLayout = "2006-01-02"

func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		CourseID    int64  `json:"course_id" binding:"required"`
		SessionDate string `json:"session_date" binding:"required"`
		StartTime   string `json:"start_time" binding:"required"`
		EndTime     string `json:"end_time" binding:"required"`
		Topic       string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "course_id, session_date, start_time, and end_time are required")
		return
	}
	date, err := time.Parse(dateLayout, req.SessionDate)
	if err != nil {
		badRequest(c, "session_date must be YYYY-MM-DD")
		return
	}

	ctx := c.Request.Context()
	course, err := h.roster.Repo().CourseByID(ctx, req.CourseID)
	if err != nil {
		fail(c, err)
		return
	}
	if course == nil {
		badRequest(c, "course does not exist")
		return
	}
	who := actor(c)
	if !who.IsAdmin && (course.LecturerID == nil || *course.LecturerID != who.UserID) {
		forbidden(c, "you do not manage this course")
		return
	}

	sess := &checkin.Session{
		CourseID:  course.ID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Topic:     req.Topic,
	}
	if err := h.sessions.CreateSession(ctx, sess); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	sess, ok := h.manageableSession(c)
	if !ok {
		return
	}
	if err := h.sessions.DeleteSession(c.Request.Context(), sess.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

// ActivateCode mints a fresh check-in code for the session and returns it
// together with a QR image of the check-in URL. Any other collecting session
// of the same course is force-expired.
func (h *Handler) ActivateCode(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid session id")
		return
	}
	var req struct {
		DurationMinutes int `json:"duration_minutes"`
	}
	// body is optional; an empty one means the default window
	_ = c.ShouldBindJSON(&req)

	duration := h.cfg.QRDefaultTTL
	if req.DurationMinutes != 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	activation, err := h.protocol.Activate(c.Request.Context(), actor(c), id, duration)
	if err != nil {
		fail(c, err)
		return
	}

	checkInURL := qrimage.CheckInURL(h.cfg.CheckInBaseURL, activation.SessionID, activation.Credential)
	png, err := qrimage.Encode(checkInURL, h.cfg.QRImageSize)
	if err != nil {
		log.Printf("qr encode failed for session %d: %v", activation.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not render qr code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   activation.SessionID,
		"code":         activation.Credential,
		"expires_at":   activation.ExpiresAt,
		"check_in_url": checkInURL,
		"qr_png":       png, // base64 in the JSON encoding
	})
}

func (h *Handler) DeactivateCode(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid session id")
		return
	}
	if err := h.protocol.Deactivate(c.Request.Context(), actor(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "qr code deactivated"})
}

func (h *Handler) CodeStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid session id")
		return
	}
	status, err := h.protocol.Status(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// CheckIn validates a scanned code and index number and, when everything
// holds, appends exactly one attendance row.
func (h *Handler) CheckIn(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid session id")
		return
	}
	var req struct {
		IndexNumber string `json:"student_index_number" binding:"required"`
		Code        string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "student_index_number and code are required")
		return
	}

	rec, err := h.protocol.CheckIn(c.Request.Context(), id, req.Code, req.IndexNumber)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "attendance marked successfully",
		"attendance": rec,
	})
}

func (h *Handler) SessionAttendance(c *gin.Context) {
	sess, ok := h.manageableSession(c)
	if !ok {
		return
	}
	entries, err := h.reports.SessionAttendance(c.Request.Context(), sess.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "attendance": entries, "count": len(entries)})
}

// manageableSession loads the :id session and checks the caller runs it.
func (h *Handler) manageableSession(c *gin.Context) (*checkin.Session, bool) {
	id, ok := idParam(c)
	if !ok {
		badRequest(c, "invalid session id")
		return nil, false
	}
	sess, err := h.sessions.SessionByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if sess == nil {
		fail(c, checkin.ErrSessionNotFound)
		return nil, false
	}
	if !actor(c).CanManage(sess.LecturerID) {
		forbidden(c, "you do not manage this session")
		return nil, false
	}
	return sess, true
}
