package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/httputil"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []alert.Alert
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, a alert.Alert, _ dq.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, a)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testRule() dq.Rule {
	return dq.Rule{
		ID:       "r1",
		Name:     "orders-count",
		Dataset:  "orders",
		Check:    dq.CheckRowCount,
		Severity: dq.SeverityCritical,
	}
}

func TestRuleFailedPersistsAndNotifies(t *testing.T) {
	store := memory.New()
	sink := &recordingSink{}
	svc := New(store, []Sink{sink}, nil, nil, time.Minute, nil)

	ctx := context.Background()
	svc.RuleFailed(ctx, testRule(), dq.Run{ID: "run1"}, []dq.Violation{{Message: "row count 2 below minimum"}})

	if sink.count() != 1 {
		t.Fatalf("sent = %d, want 1", sink.count())
	}

	alerts, err := store.ListAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Severity != dq.SeverityCritical {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestRuleFailedSuppressesRepeats(t *testing.T) {
	store := memory.New()
	sink := &recordingSink{}
	svc := New(store, []Sink{sink}, nil, nil, time.Minute, nil)

	ctx := context.Background()
	svc.RuleFailed(ctx, testRule(), dq.Run{ID: "run1"}, nil)
	svc.RuleFailed(ctx, testRule(), dq.Run{ID: "run2"}, nil)

	if sink.count() != 1 {
		t.Fatalf("sent = %d, want 1 after suppression", sink.count())
	}

	// Both alerts are persisted regardless of suppression.
	alerts, _ := store.ListAlerts(ctx, 10)
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil, nil, time.Minute, nil)

	ch, cancel := svc.Bus().Subscribe()
	defer cancel()

	svc.RuleFailed(context.Background(), testRule(), dq.Run{ID: "run1"}, nil)

	select {
	case a := <-ch:
		if a.RuleID != "r1" {
			t.Fatalf("alert = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus delivery")
	}
}

func TestMemoryDeduperWindow(t *testing.T) {
	d := NewMemoryDeduper()
	ctx := context.Background()

	if !d.ShouldSend(ctx, "k", 50*time.Millisecond) {
		t.Fatal("first send must pass")
	}
	if d.ShouldSend(ctx, "k", 50*time.Millisecond) {
		t.Fatal("second send inside window must be suppressed")
	}

	time.Sleep(60 * time.Millisecond)
	if !d.ShouldSend(ctx, "k", 50*time.Millisecond) {
		t.Fatal("send after window must pass")
	}
}

func TestWebhookSinkPostsPayload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(httputil.NewClient(httputil.ClientConfig{BaseURL: server.URL}), "/alerts")
	err := sink.Send(context.Background(), alert.Alert{ID: "a1", RunID: "run1", Severity: dq.SeverityWarning, Message: "m"}, testRule())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.AlertID != "a1" || got.RuleName != "orders-count" {
		t.Fatalf("payload = %+v", got)
	}
}
