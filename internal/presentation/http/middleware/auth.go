package middleware

import (
	"net/http"
	"strings"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/gin-gonic/gin"
)

// OperatorAuthMiddleware guards the admin surface with operator JWTs.
func OperatorAuthMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !auth.ValidateOperatorToken(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator token required"})
			return
		}
		c.Next()
	}
}
