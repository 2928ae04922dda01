package model

import (
	"math"
	"testing"
)

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name     string
		probs    []float64
		labels   []float64
		expected float64
	}{
		{
			name:     "perfect ranking",
			probs:    []float64{0.1, 0.2, 0.8, 0.9},
			labels:   []float64{0, 0, 1, 1},
			expected: 1,
		},
		{
			name:     "inverted ranking",
			probs:    []float64{0.9, 0.8, 0.2, 0.1},
			labels:   []float64{0, 0, 1, 1},
			expected: 0,
		},
		{
			name:     "all tied scores",
			probs:    []float64{0.5, 0.5, 0.5, 0.5},
			labels:   []float64{0, 0, 1, 1},
			expected: 0.5,
		},
		{
			name:     "single class degenerates",
			probs:    []float64{0.1, 0.9},
			labels:   []float64{1, 1},
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rocAUC(tt.probs, tt.labels)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestClassificationMetrics(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.6, 0.4, 0.2, 0.1}
	labels := []float64{1, 1, 0, 1, 0, 0}

	precision, recall, f1 := classificationMetrics(probs, labels)

	// Predicted positive: first three. TP=2, FP=1, FN=1.
	if math.Abs(precision-2.0/3.0) > 1e-9 {
		t.Errorf("precision: expected 2/3, got %v", precision)
	}
	if math.Abs(recall-2.0/3.0) > 1e-9 {
		t.Errorf("recall: expected 2/3, got %v", recall)
	}
	want := 2 * (2.0 / 3.0) * (2.0 / 3.0) / (2.0/3.0 + 2.0/3.0)
	if math.Abs(f1-want) > 1e-9 {
		t.Errorf("f1: expected %v, got %v", want, f1)
	}
}

func TestClassificationMetricsNoPositives(t *testing.T) {
	precision, recall, f1 := classificationMetrics([]float64{0.1, 0.2}, []float64{0, 0})
	if precision != 0 || recall != 0 || f1 != 0 {
		t.Errorf("expected zeros, got p=%v r=%v f1=%v", precision, recall, f1)
	}
}
