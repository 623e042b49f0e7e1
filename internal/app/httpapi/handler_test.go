package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{
		AuthSecret: "handler-test-secret",
		TokenTTL:   time.Hour,
		Version:    "test",
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Bootstrap(context.Background(), "admin", "admin-pass-123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return application
}

func newTestHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	application := newTestApp(t)
	handler := NewHandler(application, RouterConfig{}, nil)
	return handler, loginAs(t, handler, "admin", "admin-pass-123")
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	resp := doRequest(handler, http.MethodPost, "/api/v1/auth/login", "",
		map[string]any{"username": username, "password": password})
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return payload.Token
}

func doRequest(handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestAuthRequired(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doRequest(handler, http.MethodGet, "/api/v1/targets", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz should skip auth, got %d", resp.Code)
	}
}

func TestLoginFailureAudited(t *testing.T) {
	application := newTestApp(t)
	handler := NewHandler(application, RouterConfig{}, nil)

	resp := doRequest(handler, http.MethodPost, "/api/v1/auth/login", "",
		map[string]any{"username": "admin", "password": "wrong"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	events := application.Audit.Recent(50)
	found := false
	for _, e := range events {
		if e.Action == "auth.login_failed" && e.Actor == "admin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected login failure audit event, got %+v", events)
	}
}

func TestTargetAndRuleLifecycle(t *testing.T) {
	handler, token := newTestHandler(t)

	resp := doRequest(handler, http.MethodPost, "/api/v1/targets", token, map[string]any{
		"name": "warehouse", "driver": "postgres", "dsn": "postgres://localhost/wh",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create target: %d: %s", resp.Code, resp.Body.String())
	}
	var target struct {
		ID  string `json:"id"`
		DSN string `json:"dsn"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &target); err != nil {
		t.Fatalf("decode target: %v", err)
	}
	if target.ID == "" {
		t.Fatal("expected target id")
	}
	if target.DSN != "" {
		t.Fatal("DSN must not appear in responses")
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/rules", token, map[string]any{
		"target_id": target.ID,
		"name":      "orders not empty",
		"dataset":   "orders",
		"check":     "row_count",
		"params":    map[string]string{"min": "1"},
		"severity":  "critical",
		"schedule":  "*/5 * * * *",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create rule: %d: %s", resp.Code, resp.Body.String())
	}
	var rule struct {
		ID      string `json:"ID"`
		NextRun time.Time
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.NextRun.IsZero() {
		t.Fatal("scheduled rule should have a next run time")
	}

	resp = doRequest(handler, http.MethodGet, "/api/v1/rules?target_id="+target.ID, token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list rules: %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/rules", token, map[string]any{
		"target_id": target.ID,
		"name":      "bad check",
		"dataset":   "orders",
		"check":     "fortune_telling",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unknown check should 400, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodGet, "/api/v1/dq/manifest/export", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("manifest export: %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/x-yaml" {
		t.Fatalf("manifest content type = %s", ct)
	}

	resp = doRequest(handler, http.MethodDelete, "/api/v1/rules/"+rule.ID, token, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete rule: %d", resp.Code)
	}
}

func TestPipelineValidationOverHTTP(t *testing.T) {
	handler, token := newTestHandler(t)

	resp := doRequest(handler, http.MethodPost, "/api/v1/targets", token, map[string]any{
		"name": "source", "driver": "postgres", "dsn": "dsn-a",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create target: %d", resp.Code)
	}
	var target struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &target)

	resp = doRequest(handler, http.MethodPost, "/api/v1/pipelines", token, map[string]any{
		"name":       "orders-sync",
		"source_id":  target.ID,
		"query":      "DELETE FROM orders",
		"dest_id":    target.ID,
		"dest_table": "orders_copy",
		"mappings":   []map[string]string{{"Dest": "id", "Source": "id"}},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("non-SELECT query should 400, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/pipelines", token, map[string]any{
		"name":       "orders-sync",
		"source_id":  target.ID,
		"query":      "SELECT id FROM orders",
		"dest_id":    target.ID,
		"dest_table": "orders_copy",
		"mappings":   []map[string]string{{"dest": "id", "source": "id"}},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create pipeline: %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	handler, adminToken := newTestHandler(t)

	resp := doRequest(handler, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"username": "analyst", "email": "a@example.com", "password": "analyst-pass", "role": "analyst",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create analyst: %d: %s", resp.Code, resp.Body.String())
	}
	if bytes.Contains(resp.Body.Bytes(), []byte("PasswordHash")) {
		t.Fatal("password hash leaked in response")
	}

	analystToken := loginAs(t, handler, "analyst", "analyst-pass")

	resp = doRequest(handler, http.MethodGet, "/api/v1/users", analystToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst listing users should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodGet, "/api/v1/audit/events", analystToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst reading audit should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/targets", analystToken, map[string]any{
		"name": "wh2", "driver": "postgres", "dsn": "dsn",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("analyst creating target should succeed, got %d", resp.Code)
	}
}

func TestDSARLifecycleOverHTTP(t *testing.T) {
	handler, token := newTestHandler(t)

	resp := doRequest(handler, http.MethodPost, "/api/v1/targets", token, map[string]any{
		"name": "crm", "driver": "postgres", "dsn": "dsn",
	})
	var target struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &target)

	resp = doRequest(handler, http.MethodPost, "/api/v1/dsar", token, map[string]any{
		"target_id":      target.ID,
		"type":           "export",
		"subject_column": "email",
		"subject_value":  "a@example.com",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create dsar: %d: %s", resp.Code, resp.Body.String())
	}
	var req struct {
		ID          string
		Status      string
		RequestedBy string
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &req); err != nil {
		t.Fatalf("decode dsar: %v", err)
	}
	if req.Status != "pending" {
		t.Fatalf("status = %s", req.Status)
	}
	if req.RequestedBy != "admin" {
		t.Fatalf("requested_by = %s", req.RequestedBy)
	}

	resp = doRequest(handler, http.MethodGet, "/api/v1/dsar/"+req.ID, token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get dsar: %d", resp.Code)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	application := newTestApp(t)
	handler := NewHandler(application, RouterConfig{}, nil)
	token := loginAs(t, handler, "admin", "admin-pass-123")

	resp := doRequest(handler, http.MethodPost, "/api/v1/targets", token, map[string]any{
		"name": "warehouse", "driver": "postgres", "dsn": "dsn",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create target: %d", resp.Code)
	}

	found := false
	for _, e := range application.Audit.Recent(50) {
		if e.Action == http.MethodPost && e.Resource == "/api/v1/targets" && e.Actor == "admin" && e.Status == http.StatusCreated {
			found = true
		}
	}
	if !found {
		t.Fatal("expected audit event for target creation")
	}
}

func createAnalyst(t *testing.T, handler http.Handler, adminToken string) string {
	t.Helper()
	resp := doRequest(handler, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"username": "ana", "email": "ana@example.com", "password": "analyst-pass", "role": "analyst",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create analyst: %d: %s", resp.Code, resp.Body.String())
	}
	return loginAs(t, handler, "ana", "analyst-pass")
}

func createTestTarget(t *testing.T, handler http.Handler, token string) string {
	t.Helper()
	resp := doRequest(handler, http.MethodPost, "/api/v1/targets", token, map[string]any{
		"name": "warehouse", "driver": "postgres", "dsn": "postgres://localhost/wh",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create target: %d: %s", resp.Code, resp.Body.String())
	}
	var target struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &target); err != nil {
		t.Fatalf("decode target: %v", err)
	}
	return target.ID
}

func TestRuleEnabledFlagRespected(t *testing.T) {
	handler, token := newTestHandler(t)
	targetID := createTestTarget(t, handler, token)

	resp := doRequest(handler, http.MethodPost, "/api/v1/rules", token, map[string]any{
		"target_id": targetID,
		"name":      "paused rule",
		"dataset":   "orders",
		"check":     "row_count",
		"severity":  "warning",
		"enabled":   false,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create rule: %d: %s", resp.Code, resp.Body.String())
	}
	var rule struct {
		Enabled bool
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.Enabled {
		t.Fatal("rule created with enabled=false should stay disabled")
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/rules", token, map[string]any{
		"target_id": targetID,
		"name":      "default rule",
		"dataset":   "orders",
		"check":     "row_count",
		"severity":  "warning",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create rule: %d: %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if !rule.Enabled {
		t.Fatal("rule created without the flag should default to enabled")
	}
}

func TestManifestExportRequiresAdmin(t *testing.T) {
	handler, adminToken := newTestHandler(t)
	createTestTarget(t, handler, adminToken)
	analystToken := createAnalyst(t, handler, adminToken)

	resp := doRequest(handler, http.MethodGet, "/api/v1/dq/manifest/export", analystToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst manifest export should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodGet, "/api/v1/dq/manifest/export", adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin manifest export: %d", resp.Code)
	}
}

func TestPIICatalogRequiresAdmin(t *testing.T) {
	handler, adminToken := newTestHandler(t)
	targetID := createTestTarget(t, handler, adminToken)
	analystToken := createAnalyst(t, handler, adminToken)

	fieldPayload := map[string]any{
		"target_id": targetID, "dataset": "customers", "column": "email", "category": "email",
	}

	resp := doRequest(handler, http.MethodPost, "/api/v1/pii/fields", analystToken, fieldPayload)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst creating pii field should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/pii/scan/"+targetID, analystToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst pii scan should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodPost, "/api/v1/pii/fields", adminToken, fieldPayload)
	if resp.Code != http.StatusCreated {
		t.Fatalf("admin creating pii field: %d: %s", resp.Code, resp.Body.String())
	}
	var field struct {
		ID string
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &field); err != nil {
		t.Fatalf("decode field: %v", err)
	}

	resp = doRequest(handler, http.MethodPatch, "/api/v1/pii/fields/"+field.ID, analystToken,
		map[string]any{"category": "phone"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst updating pii field should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodDelete, "/api/v1/pii/fields/"+field.ID, analystToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("analyst deleting pii field should 403, got %d", resp.Code)
	}

	resp = doRequest(handler, http.MethodGet, "/api/v1/pii/fields", analystToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("analyst listing pii fields: %d", resp.Code)
	}
}
