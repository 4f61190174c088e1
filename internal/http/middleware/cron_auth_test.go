package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func cronTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/cron/run", CronAuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestCronAuth_EmptySecretFailsClosed(t *testing.T) {
	r := cronTestRouter("")

	req, _ := http.NewRequest("GET", "/cron/run", nil)
	// Even a matching empty bearer must not pass.
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronAuth_MissingHeader(t *testing.T) {
	r := cronTestRouter("topsecret")

	req, _ := http.NewRequest("GET", "/cron/run", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronAuth_WrongSecret(t *testing.T) {
	r := cronTestRouter("topsecret")

	req, _ := http.NewRequest("GET", "/cron/run", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronAuth_CorrectSecret(t *testing.T) {
	r := cronTestRouter("topsecret")

	req, _ := http.NewRequest("GET", "/cron/run", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
