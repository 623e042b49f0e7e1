package etl

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
)

type fakeConnector struct {
	dbs map[string]*sqlx.DB
}

func (f *fakeConnector) Connect(_ context.Context, target dq.Target) (*sqlx.DB, error) {
	return f.dbs[target.ID], nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeConnector) {
	t.Helper()
	store := memory.New()
	conn := &fakeConnector{dbs: make(map[string]*sqlx.DB)}
	svc := New(store, store, conn, nil)
	return svc, store, conn
}

func seedTargets(t *testing.T, store *memory.Store) (dq.Target, dq.Target) {
	t.Helper()
	ctx := context.Background()
	source, err := store.CreateTarget(ctx, dq.Target{Name: "source", Driver: "postgres", DSN: "dsn-a"})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	dest, err := store.CreateTarget(ctx, dq.Target{Name: "dest", Driver: "postgres", DSN: "dsn-b"})
	if err != nil {
		t.Fatalf("create dest: %v", err)
	}
	return source, dest
}

func basePipeline(source, dest dq.Target) etl.Pipeline {
	return etl.Pipeline{
		Name:      "orders-sync",
		SourceID:  source.ID,
		Query:     "SELECT id, payload FROM orders",
		DestID:    dest.ID,
		DestTable: "orders_copy",
		Mappings: []etl.Mapping{
			{Dest: "order_id", Source: "id"},
			{Dest: "customer", Source: "payload", Path: "customer.name"},
		},
	}
}

func TestCreatePipelineValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	source, dest := seedTargets(t, store)

	if _, err := svc.CreatePipeline(ctx, basePipeline(source, dest)); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := basePipeline(source, dest)
	dup.Name = "Orders-Sync"
	if _, err := svc.CreatePipeline(ctx, dup); err == nil {
		t.Fatal("expected duplicate name error")
	}

	bad := basePipeline(source, dest)
	bad.Name = "bad-query"
	bad.Query = "DROP TABLE orders"
	if _, err := svc.CreatePipeline(ctx, bad); err == nil {
		t.Fatal("expected rejection of non-SELECT query")
	}

	bad = basePipeline(source, dest)
	bad.Name = "bad-table"
	bad.DestTable = "orders; drop"
	if _, err := svc.CreatePipeline(ctx, bad); err == nil {
		t.Fatal("expected rejection of bad dest table")
	}

	bad = basePipeline(source, dest)
	bad.Name = "no-mappings"
	bad.Mappings = nil
	if _, err := svc.CreatePipeline(ctx, bad); err == nil {
		t.Fatal("expected rejection of empty mappings")
	}
}

func TestRunPipelineMovesRows(t *testing.T) {
	svc, store, conn := newTestService(t)
	ctx := context.Background()
	source, dest := seedTargets(t, store)

	p, err := svc.CreatePipeline(ctx, basePipeline(source, dest))
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}

	sourceDB, sourceMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sourceDB.Close()
	destDB, destMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer destDB.Close()

	conn.dbs[source.ID] = sqlx.NewDb(sourceDB, "postgres")
	conn.dbs[dest.ID] = sqlx.NewDb(destDB, "postgres")

	sourceMock.ExpectQuery(`SELECT id, payload FROM orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}).
			AddRow(1, []byte(`{"customer":{"name":"acme"}}`)).
			AddRow(2, []byte(`{"customer":{"name":"globex"}}`)))

	destMock.ExpectBegin()
	destMock.ExpectExec(`INSERT INTO "orders_copy"`).
		WithArgs(int64(1), "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectExec(`INSERT INTO "orders_copy"`).
		WithArgs(int64(2), "globex").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectCommit()

	run, err := svc.RunPipeline(ctx, p.ID, "manual")
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if run.Status != etl.RunSucceeded {
		t.Fatalf("status = %s: %s", run.Status, run.Error)
	}
	if run.RowsExtracted != 2 || run.RowsLoaded != 2 {
		t.Fatalf("run = %+v", run)
	}

	if err := destMock.ExpectationsWereMet(); err != nil {
		t.Fatalf("dest expectations: %v", err)
	}
}

func TestRunPipelineRecordsFailure(t *testing.T) {
	svc, store, conn := newTestService(t)
	ctx := context.Background()
	source, dest := seedTargets(t, store)

	p, err := svc.CreatePipeline(ctx, basePipeline(source, dest))
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}

	sourceDB, sourceMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sourceDB.Close()
	conn.dbs[source.ID] = sqlx.NewDb(sourceDB, "postgres")
	conn.dbs[dest.ID] = conn.dbs[source.ID]

	sourceMock.ExpectQuery(`SELECT id, payload FROM orders`).
		WillReturnError(context.DeadlineExceeded)

	run, err := svc.RunPipeline(ctx, p.ID, "manual")
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if run.Status != etl.RunFailed || run.Error == "" {
		t.Fatalf("run = %+v", run)
	}
}
