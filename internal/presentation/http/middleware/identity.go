package middleware

import (
	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/gin-gonic/gin"
)

// IdentityMiddleware stamps the identifier pair onto every response so the
// dashboard frontend always knows which browser/session identity its data
// was fetched under.
func IdentityMiddleware(identity *services.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(gateway.HeaderBrowserID, identity.BrowserID())
		c.Header(gateway.HeaderSessionID, identity.SessionID())
		c.Next()
	}
}
