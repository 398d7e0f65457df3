package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "auth.userID"
	ctxNickname = "auth.nickname"
)

// Middleware rejects requests without a valid Bearer token and stashes the
// caller's identity on the gin context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, nickname, err := s.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.log.Warnf("token rejected: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxNickname, nickname)
		c.Next()
	}
}

// UserID returns the authenticated caller's id set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// Nickname returns the authenticated caller's nickname set by Middleware.
func Nickname(c *gin.Context) string {
	return c.GetString(ctxNickname)
}
