package dq

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	minHistoryZScore = 8
	minHistoryIQR    = 8
	minHistoryForest = 16

	forestTrees      = 64
	forestSampleSize = 64
)

func defaultAnomalyThreshold(method string) float64 {
	switch method {
	case "iqr":
		return 1.5
	case "isolation_forest":
		return 0.65
	default:
		return 3.0
	}
}

// DetectAnomaly scores value against the metric history using the named
// method. With insufficient history the value is never anomalous, so new
// rules accumulate a baseline before they can fail.
func DetectAnomaly(method string, history []float64, value, threshold float64) (bool, float64, error) {
	switch method {
	case "zscore":
		return zScore(history, value, threshold)
	case "iqr":
		return iqrScore(history, value, threshold)
	case "isolation_forest":
		return isolationForestScore(history, value, threshold)
	default:
		return false, 0, fmt.Errorf("unknown anomaly method %q", method)
	}
}

func zScore(history []float64, value, threshold float64) (bool, float64, error) {
	if len(history) < minHistoryZScore {
		return false, 0, nil
	}

	mean := 0.0
	for _, v := range history {
		mean += v
	}
	mean /= float64(len(history))

	variance := 0.0
	for _, v := range history {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(history))
	stddev := math.Sqrt(variance)

	if stddev == 0 {
		if value == mean {
			return false, 0, nil
		}
		return true, math.Inf(1), nil
	}

	score := math.Abs(value-mean) / stddev
	return score > threshold, score, nil
}

func iqrScore(history []float64, value, threshold float64) (bool, float64, error) {
	if len(history) < minHistoryIQR {
		return false, 0, nil
	}

	sorted := append([]float64(nil), history...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1

	if iqr == 0 {
		if value >= q1 && value <= q3 {
			return false, 0, nil
		}
		return true, math.Inf(1), nil
	}

	lower := q1 - threshold*iqr
	upper := q3 + threshold*iqr

	// Score is the distance outside the fence in IQR units.
	score := 0.0
	switch {
	case value < lower:
		score = (lower - value) / iqr
	case value > upper:
		score = (value - upper) / iqr
	}
	return value < lower || value > upper, score, nil
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// isolationForestScore builds a small forest of isolation trees over the
// history and scores the value by its average path length. Scores approach
// 1.0 for points that isolate quickly.
func isolationForestScore(history []float64, value, threshold float64) (bool, float64, error) {
	if len(history) < minHistoryForest {
		return false, 0, nil
	}

	rng := rand.New(rand.NewSource(int64(len(history))*1315423911 + int64(value)))
	sampleSize := forestSampleSize
	if sampleSize > len(history) {
		sampleSize = len(history)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	totalPath := 0.0
	for t := 0; t < forestTrees; t++ {
		sample := make([]float64, sampleSize)
		for i := range sample {
			sample[i] = history[rng.Intn(len(history))]
		}
		totalPath += pathLength(sample, value, maxDepth, rng)
	}
	avgPath := totalPath / float64(forestTrees)

	// Normalized anomaly score per Liu et al.; c(n) is the average path
	// length of an unsuccessful BST search.
	c := averagePathLength(float64(sampleSize))
	score := math.Pow(2, -avgPath/c)
	return score > threshold, score, nil
}

func pathLength(sample []float64, value float64, maxDepth int, rng *rand.Rand) float64 {
	depth := 0
	current := sample
	for depth < maxDepth && len(current) > 1 {
		min, max := current[0], current[0]
		for _, v := range current {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		if min == max {
			break
		}

		split := min + rng.Float64()*(max-min)
		var next []float64
		if value < split {
			for _, v := range current {
				if v < split {
					next = append(next, v)
				}
			}
		} else {
			for _, v := range current {
				if v >= split {
					next = append(next, v)
				}
			}
		}
		current = next
		depth++
	}
	return float64(depth) + averagePathLength(float64(len(current)))
}

func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}
