package pii

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
)

type fakeConnector struct {
	db *sqlx.DB
}

func (f *fakeConnector) Connect(context.Context, dq.Target) (*sqlx.DB, error) {
	return f.db, nil
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeConnector, dq.Target) {
	t.Helper()
	store := memory.New()
	conn := &fakeConnector{}
	svc := New(store, store, conn, nil)

	target, err := store.CreateTarget(context.Background(), dq.Target{
		Name: "warehouse", Driver: "postgres", DSN: "dsn",
	})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	return svc, store, conn, target
}

func TestCreateFieldValidation(t *testing.T) {
	svc, _, _, target := newTestService(t)
	ctx := context.Background()

	f, err := svc.CreateField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "customers", Column: "email",
		Category: pii.CategoryEmail, LawfulBasis: "contract", RetentionDays: 365,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.ID == "" {
		t.Fatal("expected assigned ID")
	}

	if _, err := svc.CreateField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "Customers", Column: "EMAIL",
		Category: pii.CategoryEmail,
	}); err == nil {
		t.Fatal("expected duplicate column error")
	}

	if _, err := svc.CreateField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "customers; drop table x", Column: "phone",
		Category: pii.CategoryPhone,
	}); err == nil {
		t.Fatal("expected dataset ident rejection")
	}

	if _, err := svc.CreateField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "customers", Column: "phone",
		Category: pii.Category("bogus"),
	}); err == nil {
		t.Fatal("expected unknown category rejection")
	}

	if _, err := svc.CreateField(ctx, pii.Field{
		TargetID: "missing", Dataset: "customers", Column: "phone",
		Category: pii.CategoryPhone,
	}); err == nil {
		t.Fatal("expected unknown target rejection")
	}
}

func TestUpdateField(t *testing.T) {
	svc, _, _, target := newTestService(t)
	ctx := context.Background()

	f, err := svc.CreateField(ctx, pii.Field{
		TargetID: target.ID, Dataset: "customers", Column: "email",
		Category: pii.CategoryOther,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	category := pii.CategoryEmail
	days := 30
	updated, err := svc.UpdateField(ctx, f.ID, FieldUpdate{Category: &category, RetentionDays: &days})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Category != pii.CategoryEmail || updated.RetentionDays != 30 {
		t.Fatalf("updated = %+v", updated)
	}

	bad := pii.Category("bogus")
	if _, err := svc.UpdateField(ctx, f.ID, FieldUpdate{Category: &bad}); err == nil {
		t.Fatal("expected unknown category rejection")
	}
}

func TestClassifyByName(t *testing.T) {
	cases := map[string]pii.Category{
		"email":          pii.CategoryEmail,
		"customer_email": pii.CategoryEmail,
		"phone_number":   pii.CategoryPhone,
		"date_of_birth":  pii.CategoryDOB,
		"first_name":     pii.CategoryName,
		"street_address": pii.CategoryAddress,
		"ssn":            pii.CategoryNationalID,
		"remote_addr":    pii.CategoryIP,
	}
	for column, want := range cases {
		got, ok := classifyByName(column)
		if !ok || got != want {
			t.Errorf("classifyByName(%q) = %q, %v; want %q", column, got, ok, want)
		}
	}
	if _, ok := classifyByName("order_total"); ok {
		t.Error("order_total should not classify")
	}
}

func TestClassifyByValues(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT "contact"::text FROM "customers"`).
		WillReturnRows(sqlmock.NewRows([]string{"contact"}).
			AddRow("a@example.com").
			AddRow("b@example.com").
			AddRow("not-an-email").
			AddRow("c@example.com"))

	category, err := svc.classifyByValues(context.Background(), db, "customers", "contact")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if category != pii.CategoryEmail {
		t.Fatalf("category = %q", category)
	}
}

func TestClassifyByValuesBelowThreshold(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT "notes"::text FROM "customers"`).
		WillReturnRows(sqlmock.NewRows([]string{"notes"}).
			AddRow("a@example.com").
			AddRow("plain text").
			AddRow("more text").
			AddRow("even more"))

	category, err := svc.classifyByValues(context.Background(), db, "customers", "notes")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if category != "" {
		t.Fatalf("category = %q, want none", category)
	}
}

func TestScanTargetSkipsCataloged(t *testing.T) {
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

	mock.ExpectQuery(`SELECT table_schema, table_name, column_name`).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "column_name"}).
			AddRow("public", "customers", "email").
			AddRow("public", "customers", "phone_number").
			AddRow("public", "orders", "status"))
	mock.ExpectQuery(`SELECT "status"::text FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("shipped"))

	suggestions, err := svc.ScanTarget(ctx, target.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("suggestions = %+v", suggestions)
	}
	got := suggestions[0]
	if got.Dataset != "customers" || got.Column != "phone_number" || got.Category != pii.CategoryPhone || got.MatchedBy != "name" {
		t.Fatalf("suggestion = %+v", got)
	}
}
