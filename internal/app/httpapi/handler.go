// Package httpapi exposes the back office REST API.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/metrics"
	dqsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/dq"
	etlsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/etl"
	piisvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/pii"
	apperrors "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/errors"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/middleware"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// RouterConfig tunes the middleware stack around the API handlers.
type RouterConfig struct {
	AllowedOrigins    []string
	RequestsPerSecond int
	Burst             int
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the full API surface behind the middleware stack.
func NewHandler(application *app.Application, cfg RouterConfig, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", h.login)
	mux.HandleFunc("/api/v1/auth/logout", h.logout)
	mux.HandleFunc("/api/v1/auth/me", h.me)
	mux.HandleFunc("/api/v1/users", h.users)
	mux.HandleFunc("/api/v1/users/", h.userResource)
	mux.HandleFunc("/api/v1/targets", h.targets)
	mux.HandleFunc("/api/v1/targets/", h.targetResource)
	mux.HandleFunc("/api/v1/rules", h.rules)
	mux.HandleFunc("/api/v1/rules/", h.ruleResource)
	mux.HandleFunc("/api/v1/runs/", h.runResource)
	mux.HandleFunc("/api/v1/dq/manifest/export", h.manifestExport)
	mux.HandleFunc("/api/v1/dq/manifest/import", h.manifestImport)
	mux.HandleFunc("/api/v1/pipelines", h.pipelines)
	mux.HandleFunc("/api/v1/pipelines/", h.pipelineResource)
	mux.HandleFunc("/api/v1/pii/fields", h.piiFields)
	mux.HandleFunc("/api/v1/pii/fields/", h.piiFieldResource)
	mux.HandleFunc("/api/v1/pii/scan/", h.piiScan)
	mux.HandleFunc("/api/v1/dsar", h.dsars)
	mux.HandleFunc("/api/v1/dsar/", h.dsarResource)
	mux.HandleFunc("/api/v1/alerts", h.alerts)
	mux.HandleFunc("/api/v1/audit/events", h.auditEvents)
	mux.HandleFunc("/ws/events", h.wsEvents)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = newAuditMiddleware(application.Audit)(chain)
	chain = metrics.InstrumentHandler(chain)
	chain = middleware.NewAuthMiddleware(application.Auth, log, []string{
		"/api/v1/auth/login",
		"/healthz",
		"/metrics",
	}).Handler(chain)
	if cfg.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, log)
		limiter.StartCleanup(0)
		chain = limiter.Handler(chain)
	}
	chain = middleware.NewCORSMiddleware(cfg.AllowedOrigins).Handler(chain)
	chain = middleware.NewTracingMiddleware(log).Handler(chain)
	return chain
}

// requireRole enforces a minimum role and writes the error response itself.
func (h *handler) requireRole(w http.ResponseWriter, r *http.Request, min user.Role) bool {
	role := middleware.GetUserRole(r.Context())
	if role.Rank() < min.Rank() {
		writeError(w, http.StatusForbidden, fmt.Errorf("requires %s role", min))
		return false
	}
	return true
}

// userView hides credential fields from API responses.
type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt string    `json:"created_at"`
}

func toUserView(u user.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, u, err := h.app.Auth.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		h.recordSecurityEvent(r, "auth.login_failed", payload.Username)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  toUserView(u),
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := h.app.Auth.Logout(r.Context(), strings.TrimSpace(token)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	u, err := h.app.Users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (h *handler) users(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Username string    `json:"username"`
			Email    string    `json:"email"`
			Password string    `json:"password"`
			Role     user.Role `json:"role"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		u, err := h.app.Users.Create(r.Context(), payload.Username, payload.Email, payload.Password, payload.Role)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toUserView(u))

	case http.MethodGet:
		users, err := h.app.Users.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]userView, len(users))
		for i, u := range users {
			views[i] = toUserView(u)
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) userResource(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	id, rest := splitResource(r.URL.Path, "/api/v1/users")
	if id == "" || len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		u, err := h.app.Users.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserView(u))

	case http.MethodPatch:
		var payload struct {
			Email    *string    `json:"email"`
			Role     *user.Role `json:"role"`
			Active   *bool      `json:"active"`
			Password *string    `json:"password"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if payload.Password != nil {
			if err := h.app.Users.ChangePassword(r.Context(), id, *payload.Password); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		u, err := h.app.Users.Update(r.Context(), id, payload.Email, payload.Role, payload.Active)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserView(u))

	case http.MethodDelete:
		if err := h.app.Users.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// targetView hides the DSN from API responses.
type targetView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Schema string `json:"schema,omitempty"`
}

func toTargetView(t dq.Target) targetView {
	return targetView{ID: t.ID, Name: t.Name, Driver: t.Driver, Schema: t.Schema}
}

func (h *handler) targets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		var payload struct {
			Name   string `json:"name"`
			Driver string `json:"driver"`
			DSN    string `json:"dsn"`
			Schema string `json:"schema"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		target, err := h.app.DQ.CreateTarget(r.Context(), payload.Name, payload.Driver, payload.DSN, payload.Schema)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toTargetView(target))

	case http.MethodGet:
		targets, err := h.app.DQ.ListTargets(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]targetView, len(targets))
		for i, t := range targets {
			views[i] = toTargetView(t)
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) targetResource(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResource(r.URL.Path, "/api/v1/targets")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 && rest[0] == "ping" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		target, err := h.app.DQ.GetTarget(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		db, err := h.app.Connector.Connect(r.Context(), target)
		if err == nil {
			err = db.PingContext(r.Context())
		}
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "down", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		target, err := h.app.DQ.GetTarget(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTargetView(target))

	case http.MethodPatch:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		var payload struct {
			Name   *string `json:"name"`
			DSN    *string `json:"dsn"`
			Schema *string `json:"schema"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		target, err := h.app.DQ.UpdateTarget(r.Context(), id, payload.Name, payload.DSN, payload.Schema)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTargetView(target))

	case http.MethodDelete:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		if err := h.app.DQ.DeleteTarget(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) rules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		var payload struct {
			TargetID string            `json:"target_id"`
			Name     string            `json:"name"`
			Dataset  string            `json:"dataset"`
			Check    dq.CheckType      `json:"check"`
			Params   map[string]string `json:"params"`
			Severity dq.Severity       `json:"severity"`
			Schedule string            `json:"schedule"`
			Enabled  *bool             `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rule := dq.Rule{
			TargetID: payload.TargetID,
			Name:     payload.Name,
			Dataset:  payload.Dataset,
			Check:    payload.Check,
			Params:   payload.Params,
			Severity: payload.Severity,
			Schedule: payload.Schedule,
			Enabled:  true,
		}
		if payload.Enabled != nil {
			rule.Enabled = *payload.Enabled
		}
		created, err := h.app.DQ.CreateRule(r.Context(), rule)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		rules, err := h.app.DQ.ListRules(r.Context(), r.URL.Query().Get("target_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) ruleResource(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResource(r.URL.Path, "/api/v1/rules")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 {
		switch rest[0] {
		case "run":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !h.requireRole(w, r, user.RoleAnalyst) {
				return
			}
			run, err := h.app.DQ.RunRule(r.Context(), id, "manual")
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
			return
		case "runs":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			runs, err := h.app.DQ.ListRuns(r.Context(), id, queryLimit(r))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
			return
		case "metrics":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			points, err := h.app.DQ.ListMetricPoints(r.Context(), id, r.URL.Query().Get("name"), queryLimit(r))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, points)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := h.app.DQ.GetRule(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)

	case http.MethodPatch:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		var payload struct {
			Name     *string           `json:"name"`
			Dataset  *string           `json:"dataset"`
			Params   map[string]string `json:"params"`
			Severity *dq.Severity      `json:"severity"`
			Schedule *string           `json:"schedule"`
			Enabled  *bool             `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rule, err := h.app.DQ.UpdateRule(r.Context(), id, dqsvc.RuleUpdate{
			Name:     payload.Name,
			Dataset:  payload.Dataset,
			Params:   payload.Params,
			Severity: payload.Severity,
			Schedule: payload.Schedule,
			Enabled:  payload.Enabled,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)

	case http.MethodDelete:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		if err := h.app.DQ.DeleteRule(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) runResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, rest := splitResource(r.URL.Path, "/api/v1/runs")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 && rest[0] == "violations" {
		violations, err := h.app.DQ.ListViolations(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, violations)
		return
	}
	if len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	run, err := h.app.DQ.GetRun(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) manifestExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	// The manifest carries raw DSNs so it can round-trip through import.
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	data, err := h.app.DQ.ExportManifest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) manifestImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := h.app.DQ.ImportManifest(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) pipelines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		var payload struct {
			Name      string        `json:"name"`
			SourceID  string        `json:"source_id"`
			Query     string        `json:"query"`
			DestID    string        `json:"dest_id"`
			DestTable string        `json:"dest_table"`
			Mappings  []etl.Mapping `json:"mappings"`
			Schedule  string        `json:"schedule"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.ETL.CreatePipeline(r.Context(), etl.Pipeline{
			Name:      payload.Name,
			SourceID:  payload.SourceID,
			Query:     payload.Query,
			DestID:    payload.DestID,
			DestTable: payload.DestTable,
			Mappings:  payload.Mappings,
			Schedule:  payload.Schedule,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		pipelines, err := h.app.ETL.ListPipelines(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, pipelines)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) pipelineResource(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResource(r.URL.Path, "/api/v1/pipelines")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 {
		switch rest[0] {
		case "run":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !h.requireRole(w, r, user.RoleAnalyst) {
				return
			}
			run, err := h.app.ETL.RunPipeline(r.Context(), id, "manual")
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
			return
		case "runs":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			runs, err := h.app.ETL.ListRuns(r.Context(), id, queryLimit(r))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := h.app.ETL.GetPipeline(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodPatch:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		var payload struct {
			Name      *string       `json:"name"`
			Query     *string       `json:"query"`
			DestTable *string       `json:"dest_table"`
			Mappings  []etl.Mapping `json:"mappings"`
			Schedule  *string       `json:"schedule"`
			Enabled   *bool         `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		p, err := h.app.ETL.UpdatePipeline(r.Context(), id, etlsvc.PipelineUpdate{
			Name:      payload.Name,
			Query:     payload.Query,
			DestTable: payload.DestTable,
			Mappings:  payload.Mappings,
			Schedule:  payload.Schedule,
			Enabled:   payload.Enabled,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if !h.requireRole(w, r, user.RoleAnalyst) {
			return
		}
		if err := h.app.ETL.DeletePipeline(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) piiFields(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !h.requireRole(w, r, user.RoleAdmin) {
			return
		}
		var payload struct {
			TargetID      string       `json:"target_id"`
			Dataset       string       `json:"dataset"`
			Column        string       `json:"column"`
			Category      pii.Category `json:"category"`
			LawfulBasis   string       `json:"lawful_basis"`
			RetentionDays int          `json:"retention_days"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		field, err := h.app.PII.CreateField(r.Context(), pii.Field{
			TargetID:      payload.TargetID,
			Dataset:       payload.Dataset,
			Column:        payload.Column,
			Category:      payload.Category,
			LawfulBasis:   payload.LawfulBasis,
			RetentionDays: payload.RetentionDays,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, field)

	case http.MethodGet:
		fields, err := h.app.PII.ListFields(r.Context(), r.URL.Query().Get("target_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, fields)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) piiFieldResource(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResource(r.URL.Path, "/api/v1/pii/fields")
	if id == "" || len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		field, err := h.app.PII.GetField(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, field)

	case http.MethodPatch:
		if !h.requireRole(w, r, user.RoleAdmin) {
			return
		}
		var payload struct {
			Category      *pii.Category `json:"category"`
			LawfulBasis   *string       `json:"lawful_basis"`
			RetentionDays *int          `json:"retention_days"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		field, err := h.app.PII.UpdateField(r.Context(), id, piisvc.FieldUpdate{
			Category:      payload.Category,
			LawfulBasis:   payload.LawfulBasis,
			RetentionDays: payload.RetentionDays,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, field)

	case http.MethodDelete:
		if !h.requireRole(w, r, user.RoleAdmin) {
			return
		}
		if err := h.app.PII.DeleteField(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) piiScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	targetID, rest := splitResource(r.URL.Path, "/api/v1/pii/scan")
	if targetID == "" || len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	suggestions, err := h.app.PII.ScanTarget(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *handler) dsars(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !h.requireRole(w, r, user.RoleAdmin) {
			return
		}
		var payload struct {
			TargetID      string       `json:"target_id"`
			Type          pii.DSARType `json:"type"`
			SubjectColumn string       `json:"subject_column"`
			SubjectValue  string       `json:"subject_value"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req, err := h.app.PII.CreateDSAR(r.Context(), pii.DSARRequest{
			TargetID:      payload.TargetID,
			Type:          payload.Type,
			SubjectColumn: payload.SubjectColumn,
			SubjectValue:  payload.SubjectValue,
			RequestedBy:   middleware.GetUsername(r.Context()),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)

	case http.MethodGet:
		if !h.requireRole(w, r, user.RoleAdmin) {
			return
		}
		reqs, err := h.app.PII.ListDSARs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) dsarResource(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	id, rest := splitResource(r.URL.Path, "/api/v1/dsar")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 && rest[0] == "process" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := h.app.PII.ProcessDSAR(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
		return
	}
	if len(rest) > 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, err := h.app.PII.GetDSAR(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	alerts, err := h.app.Alerting.List(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *handler) auditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireRole(w, r, user.RoleAdmin) {
		return
	}
	writeJSON(w, http.StatusOK, h.app.Audit.Recent(queryLimit(r)))
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report := h.app.Health.Check(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// splitResource strips the collection prefix and returns the resource ID
// with any remaining path segments.
func splitResource(path, prefix string) (string, []string) {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return "", nil
	}
	parts := strings.Split(trimmed, "/")
	return parts[0], parts[1:]
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeServiceError maps service errors onto HTTP statuses. Plain errors
// default to 400, missing rows to 404.
func writeServiceError(w http.ResponseWriter, err error) {
	if se := apperrors.GetServiceError(err); se != nil {
		writeError(w, se.HTTPStatus, err)
		return
	}
	if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}
