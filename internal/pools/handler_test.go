package pools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/shared/server/middleware"
)

func newTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)
	env.policy.Grant("guest:"+testAdmin, access.RoleAdmin)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Auth("test"))
	NewHandler(env.engine).RegisterRoutes(api)
	return r, env
}

func doJSON(t *testing.T, r http.Handler, method, path, guest string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if guest != "" {
		req.Header.Set("X-Guest-Id", guest)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func createPoolBody(env *testEnv, stake int64) map[string]any {
	return map[string]any{
		"title":          "Rust engineer",
		"jobType":        "contract",
		"requiredSkills": []string{"Rust"},
		"minimumLevels":  []int{5},
		"salaryMin":      50000,
		"salaryMax":      80000,
		"stakeAmount":    stake,
		"deadline":       env.clock.Now().Add(7 * 24 * time.Hour).Unix(),
	}
}

func TestHandlerPoolLifecycle(t *testing.T) {
	r, env := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/pools", "acme", createPoolBody(env, 1000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Pool PoolResponse `json:"pool"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode pool: %v", err)
	}
	if created.Pool.Company != "guest:acme" || created.Pool.SelectedCandidate != nil {
		t.Fatalf("unexpected pool: %+v", created.Pool)
	}
	poolPath := fmt.Sprintf("/api/v1/pools/%d", created.Pool.ID)

	env.skills.add(1, "guest:alice", "Rust", 3)
	rec = doJSON(t, r, http.MethodPost, poolPath+"/applications", "alice", map[string]any{
		"skillTokenIds": []int64{1},
		"stakeAmount":   200,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, poolPath+"/score/guest:alice", "viewer", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"matchScore":60`)) {
		t.Fatalf("expected score 60, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, poolPath+"/select", "mallory", map[string]any{"candidate": "guest:alice"})
	if rec.Code != http.StatusForbidden || decodeError(t, rec) != "forbidden" {
		t.Fatalf("expected 403 forbidden, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, poolPath+"/select", "acme", map[string]any{"candidate": "guest:alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, r, http.MethodPost, poolPath+"/close", "acme", nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec) != "invalid_state" {
		t.Fatalf("expected 409 invalid_state, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, poolPath+"/complete", "acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var completed struct {
		Pool    PoolResponse    `json:"pool"`
		Effects EffectsResponse `json:"effects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &completed); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if completed.Pool.Status != PoolCompleted || len(completed.Effects.Payouts) != 3 {
		t.Fatalf("unexpected completion: %+v", completed)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/stats", "viewer", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"totalMatches":1`)) {
		t.Fatalf("unexpected stats: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	r, env := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/pools/42", "viewer", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != "not_found" {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/pools/abc", "viewer", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}

	body := createPoolBody(env, 1000)
	body["minimumLevels"] = []int{5, 6}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/pools", "acme", body)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "validation_error" {
		t.Fatalf("expected validation error, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"field":"minimumLevels"`)) {
		t.Fatalf("expected field details, got %s", rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/pools", "", createPoolBody(env, 1000))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/admin/pause", testAdmin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pause to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/pools", "acme", createPoolBody(env, 1000))
	if rec.Code != http.StatusLocked || decodeError(t, rec) != "paused" {
		t.Fatalf("expected 423 paused, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerAdminSettings(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPut, "/api/v1/admin/fee-rate", "acme", map[string]any{"feeRateBps": 100})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPut, "/api/v1/admin/fee-rate", testAdmin, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing rate, got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPut, "/api/v1/admin/fee-rate", testAdmin, map[string]any{"feeRateBps": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected zero fee rate to be accepted, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/admin/roles", testAdmin, map[string]any{"account": "guest:ops", "role": "operator"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected grant to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	var granted struct {
		Effects EffectsResponse `json:"effects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &granted); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if len(granted.Effects.Events) != 1 || granted.Effects.Events[0].Type != EventRoleGranted {
		t.Fatalf("expected RoleGranted effect, got %+v", granted.Effects.Events)
	}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/admin/pause", "ops", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected granted operator to pause, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/admin/roles", testAdmin, map[string]any{"account": "x", "role": "wizard"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown role rejected, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/admin/settings", "viewer", nil)
	var settings SettingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.PlatformFeeBps != 0 || !settings.Paused || settings.FeeCollector != testCollector {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}
