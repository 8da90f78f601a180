package httpapi

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"presence/internal/auth"
)

// Login verifies credentials and issues an access token.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	user, err := h.roster.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := auth.Issue(user.ID, user.Username, user.Role, user.IsAdmin,
		h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		log.Printf("token issue failed for %s: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token.Value,
		"expires_at":   token.ExpiresAt.Unix(),
		"role":         user.Role,
		"is_admin":     user.IsAdmin,
	})
}

// Logout revokes the caller's token via the denylist.
func (h *Handler) Logout(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if claims.ID == "" || claims.ExpiresAt == nil {
		badRequest(c, "token has no revocable id")
		return
	}
	if err := h.denylist.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "successfully logged out"})
}

// Register creates a self-service student or lecturer account.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username, password, and email are required")
		return
	}

	user, err := h.roster.Register(c.Request.Context(), req.Username, req.Password, req.Email, req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully", "user_id": user.ID})
}

// MyProfile returns the caller's account plus linked student profile, if any.
func (h *Handler) MyProfile(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	user, err := h.roster.Repo().UserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		return
	}

	resp := gin.H{"user": user}
	if student, err := h.roster.Repo().StudentByUserID(c.Request.Context(), user.ID); err == nil && student != nil {
		resp["student"] = student
	}
	c.JSON(http.StatusOK, resp)
}
