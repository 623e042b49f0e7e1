package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	events  *[]string
	failOn  string
	stopped bool
}

func (r *recordingService) Name() string { return r.name }

func (r *recordingService) Start(context.Context) error {
	if r.failOn == "start" {
		return errors.New("boom")
	}
	*r.events = append(*r.events, "start:"+r.name)
	return nil
}

func (r *recordingService) Stop(context.Context) error {
	r.stopped = true
	*r.events = append(*r.events, "stop:"+r.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "dup", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", events: &events}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	first := &recordingService{name: "first", events: &events}
	m := NewManager()
	if err := m.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "bad", events: &events, failOn: "start"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !first.stopped {
		t.Fatal("expected first service to be stopped after rollback")
	}
}
