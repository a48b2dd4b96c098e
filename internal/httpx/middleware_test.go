package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-42")
	r.ServeHTTP(w, req)
	require.Equal(t, "rid-42", w.Header().Get("X-Request-ID"))
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AdminAuth(string(hash)))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name string
		key  string
		want int
	}{
		{"valid key", "letmein", http.StatusOK},
		{"wrong key", "guess", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		if c.key != "" {
			req.Header.Set("X-Admin-Key", c.key)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, c.want, w.Code, c.name)
	}
}

func TestAdminAuth_NoHashConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminAuth(""))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("X-Admin-Key", "anything")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code, "no hash means admin API is closed")
}
