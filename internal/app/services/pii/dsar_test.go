package pii

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
)

func TestCreateDSARValidation(t *testing.T) {
	svc, _, _, target := newTestService(t)
	ctx := context.Background()

	req, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARExport,
		SubjectColumn: "email", SubjectValue: "a@example.com",
		RequestedBy: "admin",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != pii.DSARPending {
		t.Fatalf("status = %s", req.Status)
	}

	if _, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARType("purge"),
		SubjectColumn: "email", SubjectValue: "a@example.com",
	}); err == nil {
		t.Fatal("expected unknown type rejection")
	}

	if _, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARExport,
		SubjectColumn: "email = 'x' OR", SubjectValue: "a@example.com",
	}); err == nil {
		t.Fatal("expected subject column rejection")
	}

	if _, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARExport,
		SubjectColumn: "email",
	}); err == nil {
		t.Fatal("expected missing subject value rejection")
	}
}

func TestProcessDSARExport(t *testing.T) {
	svc, _, conn, target := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "customers", Column: "email",
		Category: pii.CategoryEmail,
	}); err != nil {
		t.Fatalf("create field: %v", err)
	}

	db, mock := newMockDB(t)
	conn.db = db
	mock.ExpectQuery(`SELECT \* FROM "customers" WHERE "email" = \$1`).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(1), []byte("a@example.com")))

	req, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARExport,
		SubjectColumn: "email", SubjectValue: "a@example.com",
	})
	if err != nil {
		t.Fatalf("create dsar: %v", err)
	}

	processed, err := svc.ProcessDSAR(ctx, req.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != pii.DSARCompleted {
		t.Fatalf("status = %s, error = %s", processed.Status, processed.Error)
	}
	if processed.CompletedAt.IsZero() {
		t.Fatal("expected CompletedAt to be set")
	}

	var export map[string][]map[string]interface{}
	if err := json.Unmarshal([]byte(processed.Result), &export); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	rows := export["customers"]
	if len(rows) != 1 || rows[0]["email"] != "a@example.com" {
		t.Fatalf("export = %+v", export)
	}
}

func TestProcessDSARErase(t *testing.T) {
	svc, _, conn, target := newTestService(t)
	ctx := context.Background()

	for _, column := range []string{"email", "phone"} {
		if _, err := svc.CreateField(ctx, pii.Field{
			TargetID: target.ID, Dataset: "customers", Column: column,
			Category: pii.CategoryOther,
		}); err != nil {
			t.Fatalf("create field %s: %v", column, err)
		}
	}

	db, mock := newMockDB(t)
	conn.db = db
	mock.ExpectExec(`UPDATE "customers" SET "phone" = NULL WHERE "email" = \$1`).
		WithArgs("a@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))

	req, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARErase,
		SubjectColumn: "email", SubjectValue: "a@example.com",
	})
	if err != nil {
		t.Fatalf("create dsar: %v", err)
	}

	processed, err := svc.ProcessDSAR(ctx, req.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != pii.DSARCompleted {
		t.Fatalf("status = %s, error = %s", processed.Status, processed.Error)
	}
	if !strings.Contains(processed.Result, `"rows_erased"`) {
		t.Fatalf("result = %s", processed.Result)
	}
}

func TestProcessDSARFailureRecorded(t *testing.T) {
	svc, _, conn, target := newTestService(t)
	ctx := context.Background()

	db, _ := newMockDB(t)
	conn.db = db

	req, err := svc.CreateDSAR(ctx, pii.DSARRequest{
		TargetID: target.ID, Type: pii.DSARExport,
		SubjectColumn: "email", SubjectValue: "a@example.com",
	})
	if err != nil {
		t.Fatalf("create dsar: %v", err)
	}

	// No cataloged fields for the target, so processing fails.
	processed, err := svc.ProcessDSAR(ctx, req.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != pii.DSARFailed || processed.Error == "" {
		t.Fatalf("processed = %+v", processed)
	}

	if _, err := svc.ProcessDSAR(ctx, req.ID); err == nil {
		t.Fatal("expected reprocessing of non-pending request to be rejected")
	}
}
