package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platewise/auth/internal/http/middleware"
	"github.com/platewise/auth/internal/service"
)

// AuthHandler exposes the OTP and session endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// OTPRequest issues a one-time code to an email address.
func (h *AuthHandler) OTPRequest(c *gin.Context) {
	var req struct {
		Email           string `json:"email"`
		GuestIdentityID int64  `json:"guest_identity_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "error_description": "Invalid payload."})
		return
	}

	if err := h.Auth.IssueChallenge(c.Request.Context(), req.Email, req.GuestIdentityID); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// OTPVerify checks a submitted code and returns a session token.
func (h *AuthHandler) OTPVerify(c *gin.Context) {
	var req struct {
		Email           string `json:"email"`
		Code            string `json:"code"`
		GuestIdentityID int64  `json:"guest_identity_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "error_description": "Invalid payload."})
		return
	}

	result, err := h.Auth.VerifyChallenge(c.Request.Context(), req.Email, req.Code, req.GuestIdentityID)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GuestStart creates an anonymous identity and returns a session token
// for it.
func (h *AuthHandler) GuestStart(c *gin.Context) {
	result, err := h.Auth.StartGuest(c.Request.Context())
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Me echoes the identity bound to the caller's session token.
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := middleware.GetIdentityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Session required."})
		return
	}

	identity, err := h.Auth.Identity(c.Request.Context(), id)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity_id":    identity.ID,
		"email":          identity.Email,
		"email_verified": identity.EmailVerified,
		"is_anonymous":   identity.IsAnonymous,
	})
}

// Health reports liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondAuthError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if !errors.As(err, &authErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "error_description": "Unexpected error."})
		return
	}

	body := gin.H{"error": authErr.Code, "error_description": authErr.Description}
	switch authErr.Code {
	case service.CodeRateLimited:
		body["retry_after"] = int(authErr.RetryAfter.Seconds() + 0.5)
	case service.CodeWrongCode:
		body["attempts_remaining"] = authErr.AttemptsRemaining
	}
	c.JSON(authErr.Status, body)
}
