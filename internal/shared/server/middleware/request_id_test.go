package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDKeepsCallerSuppliedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = RequestIDFromContext(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "edge-7f3a:1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if seen != "edge-7f3a:1" {
		t.Fatalf("expected caller id in context, got %q", seen)
	}
	if got := resp.Header().Get("X-Request-Id"); got != "edge-7f3a:1" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}
}

func TestRequestIDReplacesUnsafeIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := map[string]string{
		"missing":  "",
		"too long": strings.Repeat("a", 65),
		"spaces":   "id with spaces",
		"newline":  "abc\r\nSet-Cookie: x",
	}
	for name, incoming := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if incoming != "" {
				req.Header["X-Request-Id"] = []string{incoming}
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			got := resp.Header().Get("X-Request-Id")
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("expected generated uuid, got %q", got)
			}
		})
	}
}
