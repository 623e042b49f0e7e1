package storage

import (
	"context"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
)

// UserStore persists operator accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SessionStore persists issued sessions so tokens can be revoked.
type SessionStore interface {
	CreateSession(ctx context.Context, s user.Session) (user.Session, error)
	GetSessionByTokenHash(ctx context.Context, hash string) (user.Session, error)
	DeleteSession(ctx context.Context, hash string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) error
}

// TargetStore persists data quality target connections.
type TargetStore interface {
	CreateTarget(ctx context.Context, t dq.Target) (dq.Target, error)
	UpdateTarget(ctx context.Context, t dq.Target) (dq.Target, error)
	GetTarget(ctx context.Context, id string) (dq.Target, error)
	GetTargetByName(ctx context.Context, name string) (dq.Target, error)
	ListTargets(ctx context.Context) ([]dq.Target, error)
	DeleteTarget(ctx context.Context, id string) error
}

// RuleStore persists data quality rules.
type RuleStore interface {
	CreateRule(ctx context.Context, r dq.Rule) (dq.Rule, error)
	UpdateRule(ctx context.Context, r dq.Rule) (dq.Rule, error)
	GetRule(ctx context.Context, id string) (dq.Rule, error)
	ListRules(ctx context.Context, targetID string) ([]dq.Rule, error)
	ListDueRules(ctx context.Context, now time.Time) ([]dq.Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// RunStore persists rule runs, their violations and metric history.
type RunStore interface {
	CreateRun(ctx context.Context, run dq.Run) (dq.Run, error)
	UpdateRun(ctx context.Context, run dq.Run) (dq.Run, error)
	GetRun(ctx context.Context, id string) (dq.Run, error)
	ListRuns(ctx context.Context, ruleID string, limit int) ([]dq.Run, error)

	CreateViolation(ctx context.Context, v dq.Violation) (dq.Violation, error)
	ListViolations(ctx context.Context, runID string) ([]dq.Violation, error)

	CreateMetricPoint(ctx context.Context, p dq.MetricPoint) (dq.MetricPoint, error)
	ListMetricPoints(ctx context.Context, ruleID, name string, limit int) ([]dq.MetricPoint, error)
}

// AlertStore persists raised alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	ListAlerts(ctx context.Context, limit int) ([]alert.Alert, error)
}

// PipelineStore persists ETL pipelines and their runs.
type PipelineStore interface {
	CreatePipeline(ctx context.Context, p etl.Pipeline) (etl.Pipeline, error)
	UpdatePipeline(ctx context.Context, p etl.Pipeline) (etl.Pipeline, error)
	GetPipeline(ctx context.Context, id string) (etl.Pipeline, error)
	ListPipelines(ctx context.Context) ([]etl.Pipeline, error)
	ListDuePipelines(ctx context.Context, now time.Time) ([]etl.Pipeline, error)
	DeletePipeline(ctx context.Context, id string) error

	CreatePipelineRun(ctx context.Context, run etl.Run) (etl.Run, error)
	UpdatePipelineRun(ctx context.Context, run etl.Run) (etl.Run, error)
	ListPipelineRuns(ctx context.Context, pipelineID string, limit int) ([]etl.Run, error)
}

// PIIStore persists the PII field catalog and DSAR requests.
type PIIStore interface {
	CreatePIIField(ctx context.Context, f pii.Field) (pii.Field, error)
	UpdatePIIField(ctx context.Context, f pii.Field) (pii.Field, error)
	GetPIIField(ctx context.Context, id string) (pii.Field, error)
	ListPIIFields(ctx context.Context, targetID string) ([]pii.Field, error)
	DeletePIIField(ctx context.Context, id string) error

	CreateDSAR(ctx context.Context, req pii.DSARRequest) (pii.DSARRequest, error)
	UpdateDSAR(ctx context.Context, req pii.DSARRequest) (pii.DSARRequest, error)
	GetDSAR(ctx context.Context, id string) (pii.DSARRequest, error)
	ListDSARs(ctx context.Context) ([]pii.DSARRequest, error)
}

// AuditStore persists security audit events.
type AuditStore interface {
	CreateAuditEvent(ctx context.Context, e audit.Event) (audit.Event, error)
	ListAuditEvents(ctx context.Context, limit int) ([]audit.Event, error)
}
