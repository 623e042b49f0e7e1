package etl

import (
	"context"
	"testing"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
)

type fakePipelineRunner struct {
	ran []string
}

func (f *fakePipelineRunner) RunPipeline(_ context.Context, pipelineID, _ string) (etl.Run, error) {
	f.ran = append(f.ran, pipelineID)
	return etl.Run{ID: "run-" + pipelineID, PipelineID: pipelineID, Status: etl.RunSucceeded}, nil
}

func TestRunnerTickRunsOnlyDuePipelines(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	due, err := store.CreatePipeline(ctx, etl.Pipeline{
		Name: "due", Schedule: "* * * * *", Enabled: true,
		NextRun: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreatePipeline(ctx, etl.Pipeline{
		Name: "future", Schedule: "* * * * *", Enabled: true,
		NextRun: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreatePipeline(ctx, etl.Pipeline{
		Name: "disabled", Schedule: "* * * * *", Enabled: false,
		NextRun: now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fake := &fakePipelineRunner{}
	runner := NewRunner(store, fake, time.Second, nil)
	runner.tick(ctx)

	if len(fake.ran) != 1 || fake.ran[0] != due.ID {
		t.Fatalf("ran = %v, want only %s", fake.ran, due.ID)
	}
}

func TestRunnerStartStop(t *testing.T) {
	store := memory.New()
	runner := NewRunner(store, &fakePipelineRunner{}, time.Hour, nil)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := runner.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := runner.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
