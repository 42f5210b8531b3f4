package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/diaryprint/internal/auth"
)

// RequireServiceToken accepts only requests carrying a bearer token signed
// with secret by issuer. An empty secret disables the check.
func RequireServiceToken(secret, issuer string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "Authentication required",
			})
			return
		}

		if err := auth.Verify(secret, token, issuer); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set("service_issuer", issuer)
		c.Next()
	}
}
