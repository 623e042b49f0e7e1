package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(context.Context) error { return f.err }

func TestCheckHealthy(t *testing.T) {
	checker := NewChecker("1.2.3", &fakePinger{})
	report := checker.Check(context.Background())

	if report.Status != "ok" {
		t.Fatalf("status = %s", report.Status)
	}
	if report.Version != "1.2.3" {
		t.Fatalf("version = %s", report.Version)
	}
	if report.Components["database"].Status != "ok" {
		t.Fatalf("database = %+v", report.Components["database"])
	}
	if report.Host == nil {
		t.Fatal("expected host info")
	}
}

func TestCheckDatabaseDown(t *testing.T) {
	checker := NewChecker("1.2.3", &fakePinger{err: errors.New("ping: connection refused")})
	report := checker.Check(context.Background())

	if report.Status != "degraded" {
		t.Fatalf("status = %s", report.Status)
	}
	db := report.Components["database"]
	if db.Status != "down" || db.Error == "" {
		t.Fatalf("database = %+v", db)
	}
}

func TestCheckWithoutDatabase(t *testing.T) {
	checker := NewChecker("dev", nil)
	report := checker.Check(context.Background())

	if report.Status != "ok" {
		t.Fatalf("status = %s", report.Status)
	}
}
