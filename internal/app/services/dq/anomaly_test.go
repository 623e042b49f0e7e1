package dq

import (
	"math"
	"testing"
)

func steadyHistory(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i%3)
	}
	return out
}

func TestZScoreFlagsOutlier(t *testing.T) {
	history := steadyHistory(20, 100)

	anomalous, score, err := DetectAnomaly("zscore", history, 500, 3.0)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !anomalous {
		t.Fatalf("expected 500 to be anomalous, score %.2f", score)
	}

	anomalous, _, err = DetectAnomaly("zscore", history, 101, 3.0)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomalous {
		t.Fatal("expected in-band value to pass")
	}
}

func TestZScoreInsufficientHistoryPasses(t *testing.T) {
	anomalous, score, err := DetectAnomaly("zscore", []float64{1, 2, 3}, 1000, 3.0)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomalous || score != 0 {
		t.Fatalf("anomalous = %v score = %.2f, want pass with zero score", anomalous, score)
	}
}

func TestZScoreConstantHistory(t *testing.T) {
	history := make([]float64, 10)
	for i := range history {
		history[i] = 42
	}

	anomalous, _, err := DetectAnomaly("zscore", history, 42, 3.0)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomalous {
		t.Fatal("same value against constant history should pass")
	}

	anomalous, score, err := DetectAnomaly("zscore", history, 43, 3.0)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !anomalous || !math.IsInf(score, 1) {
		t.Fatalf("deviation from constant history should be anomalous, score %.2f", score)
	}
}

func TestIQRFlagsOutlier(t *testing.T) {
	history := []float64{10, 11, 12, 10, 11, 13, 12, 10, 11, 12}

	anomalous, _, err := DetectAnomaly("iqr", history, 100, 1.5)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !anomalous {
		t.Fatal("expected 100 to be outside the fences")
	}

	anomalous, _, err = DetectAnomaly("iqr", history, 11, 1.5)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomalous {
		t.Fatal("expected 11 to be inside the fences")
	}
}

func TestIsolationForestFlagsOutlier(t *testing.T) {
	history := steadyHistory(64, 1000)

	anomalous, score, err := DetectAnomaly("isolation_forest", history, 50000, 0.65)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !anomalous {
		t.Fatalf("expected isolated point to be anomalous, score %.3f", score)
	}

	anomalous, score, err = DetectAnomaly("isolation_forest", history, 1001, 0.65)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomalous {
		t.Fatalf("expected in-band point to pass, score %.3f", score)
	}
}

func TestIsolationForestInsufficientHistory(t *testing.T) {
	anomalous, _, err := DetectAnomaly("isolation_forest", steadyHistory(8, 10), 9000, 0.65)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomalous {
		t.Fatal("insufficient history must pass")
	}
}

func TestUnknownMethodErrors(t *testing.T) {
	if _, _, err := DetectAnomaly("dbscan", steadyHistory(20, 10), 10, 1); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if q := quantile(sorted, 0.5); q != 2.5 {
		t.Fatalf("median = %g, want 2.5", q)
	}
	if q := quantile(sorted, 0); q != 1 {
		t.Fatalf("q0 = %g, want 1", q)
	}
	if q := quantile(sorted, 1); q != 4 {
		t.Fatalf("q1 = %g, want 4", q)
	}
}
