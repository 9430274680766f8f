package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platewise/auth/internal/token"
)

const (
	identityIDKey    = "identityID"
	sessionClaimsKey = "sessionClaims"
)

// Auth validates the Authorization header and attaches the session
// identity to the request context.
type Auth struct {
	Tokens *token.Issuer
}

// ValidateToken ensures the request carries a valid bearer session token.
func (m *Auth) ValidateToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	std, custom, err := m.Tokens.Validate(c.Request.Context(), parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid session token."})
		return
	}
	id, err := token.SubjectID(std)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid session token."})
		return
	}

	c.Set(identityIDKey, id)
	c.Set(sessionClaimsKey, custom)
	c.Next()
}

// GetIdentityID returns the authenticated identity id for the request.
func GetIdentityID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(identityIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

// GetSessionClaims exposes the custom session claims to handlers.
func GetSessionClaims(c *gin.Context) (*token.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*token.SessionClaims)
	return claims, ok
}
