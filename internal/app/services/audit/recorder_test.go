package audit

import (
	"context"
	"errors"
	"testing"

	auditdomain "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
)

func TestRecorderKeepsBoundedHistory(t *testing.T) {
	rec := NewRecorder(3, nil, nil)
	ctx := context.Background()

	for _, action := range []string{"a", "b", "c", "d", "e"} {
		rec.Record(ctx, auditdomain.Event{Action: action})
	}

	recent := rec.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3", len(recent))
	}
	if recent[0].Action != "c" || recent[2].Action != "e" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRecorderForwardsToSink(t *testing.T) {
	store := memory.New()
	rec := NewRecorder(10, NewStoreSink(store), nil)
	ctx := context.Background()

	rec.Record(ctx, auditdomain.Event{Actor: "alice", Action: "rule.create"})

	events, err := store.ListAuditEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Action != "rule.create" {
		t.Fatalf("events = %+v", events)
	}
}

type failingSink struct{}

func (failingSink) Write(context.Context, auditdomain.Event) error {
	return errors.New("sink down")
}

func TestRecorderSurvivesSinkFailure(t *testing.T) {
	rec := NewRecorder(10, failingSink{}, nil)
	rec.Record(context.Background(), auditdomain.Event{Action: "login"})

	if got := rec.Recent(0); len(got) != 1 {
		t.Fatalf("recent = %+v", got)
	}
}
