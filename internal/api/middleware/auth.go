package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth rejects requests whose Authorization header does not carry
// token. An empty token disables the check.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
			unauthorized(c, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(header[len(prefix):]), []byte(token)) != 1 {
			unauthorized(c, "invalid bearer token")
			return
		}

		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	GetLogger(c).Warnf("Rejected request: %s", message)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "Unauthorized", "message": message},
	})
}
