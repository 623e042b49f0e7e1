package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/platform/database"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{
		Username: "it-admin", Email: "it@example.com",
		PasswordHash: "x", Role: user.RoleAdmin, Active: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	defer store.DeleteUser(ctx, u.ID)

	target, err := store.CreateTarget(ctx, dq.Target{
		Name: "it-warehouse", Driver: "postgres", DSN: dsn,
	})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	defer store.DeleteTarget(ctx, target.ID)

	rule, err := store.CreateRule(ctx, dq.Rule{
		TargetID: target.ID, Name: "it-row-count", Dataset: "bo_users",
		Check: dq.CheckRowCount, Params: map[string]string{"min": "1"},
		Severity: dq.SeverityWarning, Enabled: true,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	defer store.DeleteRule(ctx, rule.ID)

	run, err := store.CreateRun(ctx, dq.Run{
		RuleID: rule.ID, TargetID: target.ID, Status: dq.RunPending,
		TriggeredBy: "test", StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	run.Status = dq.RunFailed
	run.Violations = 1
	if _, err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	if _, err := store.CreateViolation(ctx, dq.Violation{
		RunID: run.ID, RuleID: rule.ID, Severity: dq.SeverityWarning,
		Message: "row count below minimum", Observed: "0", Expected: ">= 1",
	}); err != nil {
		t.Fatalf("create violation: %v", err)
	}
	violations, err := store.ListViolations(ctx, run.ID)
	if err != nil || len(violations) != 1 {
		t.Fatalf("list violations: %v (%d)", err, len(violations))
	}

	p, err := store.CreatePipeline(ctx, etl.Pipeline{
		Name: "it-sync", SourceID: target.ID, Query: "SELECT 1 AS one",
		DestID: target.ID, DestTable: "bo_it_dest",
		Mappings: []etl.Mapping{{Dest: "one", Source: "one"}},
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	defer store.DeletePipeline(ctx, p.ID)

	field, err := store.CreatePIIField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "bo_users", Column: "email",
		Category: pii.CategoryEmail, LawfulBasis: "contract",
	})
	if err != nil {
		t.Fatalf("create pii field: %v", err)
	}
	defer store.DeletePIIField(ctx, field.ID)

	if _, err := store.CreateAuditEvent(ctx, audit.Event{
		Actor: "it-admin", Action: "POST", Resource: "/api/v1/targets", Status: 201,
	}); err != nil {
		t.Fatalf("create audit event: %v", err)
	}

	got, err := store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if got.Params["min"] != "1" {
		t.Fatalf("rule params = %+v", got.Params)
	}
}
