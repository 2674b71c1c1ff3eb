package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMiddlewareStampsHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := localstore.New(filepath.Join(t.TempDir(), "test.db"), nil)
	defer store.Close()
	identity := services.NewIdentityService(store, nil)

	r := gin.New()
	r.Use(IdentityMiddleware(identity))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, identity.BrowserID(), w.Header().Get(gateway.HeaderBrowserID))
	assert.Equal(t, identity.SessionID(), w.Header().Get(gateway.HeaderSessionID))
}

func TestOperatorAuthMiddlewareRejectsWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := services.NewAuthService(nil)

	r := gin.New()
	r.Use(OperatorAuthMiddleware(auth))
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
