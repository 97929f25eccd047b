package skills

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/shared/server/middleware"
)

func newSkillsRouter() (*gin.Engine, *MemoryRegistry) {
	gin.SetMode(gin.TestMode)
	tokens := NewMemoryRegistry()
	policy := access.NewPolicy(nil, []string{"guest:issuer"}, true)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Auth("test"))
	NewHandler(tokens, policy).RegisterRoutes(api)
	return r, tokens
}

func postMint(r http.Handler, guest string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/skills/tokens", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", guest)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerMintAndGet(t *testing.T) {
	r, _ := newSkillsRouter()

	rec := postMint(r, "issuer", map[string]any{"owner": "guest:alice", "category": "Rust", "level": 6})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != 1 || created.Issuer != "guest:issuer" || created.Owner != "guest:alice" {
		t.Fatalf("unexpected token: %+v", created)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/skills/tokens/1", nil)
	req.Header.Set("X-Guest-Id", "viewer")
	get := httptest.NewRecorder()
	r.ServeHTTP(get, req)
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", get.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/skills/tokens/2", nil)
	req.Header.Set("X-Guest-Id", "viewer")
	missing := httptest.NewRecorder()
	r.ServeHTTP(missing, req)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestHandlerMintRequiresIssuerRole(t *testing.T) {
	r, tokens := newSkillsRouter()

	rec := postMint(r, "alice", map[string]any{"owner": "guest:alice", "category": "Rust", "level": 100})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for self-issued token, got %d", rec.Code)
	}
	rec = postMint(r, "issuer", map[string]any{"owner": "guest:alice", "category": "Rust", "level": 101})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range level, got %d", rec.Code)
	}
	if _, err := tokens.Get(t.Context(), 1); err == nil {
		t.Fatalf("expected no token minted")
	}
}
