package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"churnguard/features"
)

// syntheticTable builds a separable two-feature dataset with roughly a 30%
// positive class
func syntheticTable(n int, seed int64) (*features.Table, []int) {
	rng := rand.New(rand.NewSource(seed))

	table := &features.Table{
		Columns:     []string{"spend_drop", "inactive_days"},
		CustomerIDs: make([]string, n),
		Rows:        make([][]float64, n),
		Stages:      make([]string, n),
	}
	y := make([]int, n)
	for i := 0; i < n; i++ {
		f1 := rng.Float64()
		f2 := rng.Float64()
		table.CustomerIDs[i] = fmt.Sprintf("C%04d", i)
		table.Rows[i] = []float64{f1, f2}
		if f1+f2 > 1.4 {
			y[i] = 1
		}
	}
	return table, y
}

// testConfig keeps the learners small so the tests run fast
func testConfig() Config {
	return Config{
		DepthWise: BoostConfig{
			Trees: 30, LearningRate: 0.1, MaxDepth: 3,
			MinChildWeight: 1, Lambda: 1, Subsample: 1, ColSample: 1, Seed: 1,
		},
		LeafWise: BoostConfig{
			Trees: 30, LearningRate: 0.1, NumLeaves: 7,
			MinChildWeight: 1, Lambda: 1, Subsample: 1, ColSample: 1, Seed: 2,
		},
		Forest: ForestConfig{
			Trees: 15, MaxDepth: 6, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 3,
		},
		VotingWeights: [3]float64{2, 2, 1},
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{0, RiskLow},
		{49, RiskLow},
		{50, RiskMedium},
		{69, RiskMedium},
		{70, RiskHigh},
		{89, RiskHigh},
		{90, RiskCritical},
		{100, RiskCritical},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			if got := RiskLevelForScore(tt.score); got != tt.expected {
				t.Errorf("score %d: expected %s, got %s", tt.score, tt.expected, got)
			}
		})
	}
}

func TestRiskScoreFromProba(t *testing.T) {
	tests := []struct {
		proba    float64
		expected int
	}{
		{0, 0},
		{0.654, 65},
		{0.656, 66},
		{0.5, 50},
		{1, 100},
	}
	for _, tt := range tests {
		if got := RiskScoreFromProba(tt.proba); got != tt.expected {
			t.Errorf("proba %v: expected %d, got %d", tt.proba, tt.expected, got)
		}
	}
}

func TestNotFittedErrors(t *testing.T) {
	m := New(testConfig())
	table, y := syntheticTable(10, 7)

	if _, err := m.PredictProba(table); !errors.Is(err, ErrNotFitted) {
		t.Errorf("PredictProba: expected ErrNotFitted, got %v", err)
	}
	if _, err := m.PredictWithScore(table); !errors.Is(err, ErrNotFitted) {
		t.Errorf("PredictWithScore: expected ErrNotFitted, got %v", err)
	}
	if _, err := m.Explain(table, 0, 5); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Explain: expected ErrNotFitted, got %v", err)
	}
	if _, err := m.Evaluate(table, y); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Evaluate: expected ErrNotFitted, got %v", err)
	}
	if err := m.Save(filepath.Join(t.TempDir(), "model.bin")); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Save: expected ErrNotFitted, got %v", err)
	}
}

func TestFitAndPredict(t *testing.T) {
	table, y := syntheticTable(300, 11)

	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !m.Fitted() {
		t.Fatal("model not marked fitted after Fit")
	}

	probs, err := m.PredictProba(table)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	for i, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("row %d: probability %v out of range", i, p)
		}
	}

	// A separable problem must be learnable well past chance level
	metrics, err := m.Evaluate(table, y)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if metrics.AUC < 0.85 {
		t.Errorf("training AUC %v, expected separable data to score above 0.85", metrics.AUC)
	}

	preds, err := m.PredictWithScore(table)
	if err != nil {
		t.Fatalf("PredictWithScore failed: %v", err)
	}
	for i, p := range preds {
		if p.CustomerID != table.CustomerIDs[i] {
			t.Fatalf("row %d: customer ID mismatch", i)
		}
		if p.RiskScore != RiskScoreFromProba(p.ChurnProbability) {
			t.Errorf("row %d: risk score %d does not match probability %v", i, p.RiskScore, p.ChurnProbability)
		}
		if p.RiskLevel != RiskLevelForScore(p.RiskScore) {
			t.Errorf("row %d: risk level %s does not match score %d", i, p.RiskLevel, p.RiskScore)
		}
		if p.PredictedChurn != (p.ChurnProbability >= 0.5) {
			t.Errorf("row %d: predicted label inconsistent with probability", i)
		}
	}
}

func TestSchemaMismatchRejected(t *testing.T) {
	table, y := syntheticTable(100, 13)
	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	reordered := &features.Table{
		Columns:     []string{"inactive_days", "spend_drop"},
		CustomerIDs: table.CustomerIDs,
		Rows:        table.Rows,
	}
	if _, err := m.PredictProba(reordered); err == nil {
		t.Error("expected schema mismatch error for reordered columns")
	}

	narrow := &features.Table{
		Columns: []string{"spend_drop"},
		Rows:    [][]float64{{0.5}},
	}
	if _, err := m.PredictProba(narrow); err == nil {
		t.Error("expected schema mismatch error for missing column")
	}
}

func TestNaNInputRejected(t *testing.T) {
	table, y := syntheticTable(100, 17)
	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	bad, _ := syntheticTable(5, 19)
	bad.Rows[2][1] = math.NaN()
	if _, err := m.PredictProba(bad); err == nil {
		t.Error("expected error for NaN input")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	table, y := syntheticTable(200, 23)
	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Fitted() {
		t.Fatal("loaded model not fitted")
	}

	want, err := m.PredictProba(table)
	if err != nil {
		t.Fatalf("PredictProba on original failed: %v", err)
	}
	got, err := loaded.PredictProba(table)
	if err != nil {
		t.Fatalf("PredictProba on loaded failed: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("row %d: original %v, loaded %v", i, want[i], got[i])
		}
	}

	// Explanations survive the round trip too
	if _, err := loaded.Explain(table, 0, 5); err != nil {
		t.Errorf("Explain on loaded model failed: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("expected error for missing artifact")
	}
}
