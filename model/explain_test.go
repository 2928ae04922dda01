package model

import (
	"math"
	"testing"
)

// Attribution must be exactly additive in the raw margin: base value plus the
// sum of all per-feature contributions reproduces the learner's output.
func TestExplainAdditivity(t *testing.T) {
	table, y := syntheticTable(300, 29)
	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	for row := 0; row < 20; row++ {
		exp, err := m.Explain(table, row, len(table.Columns))
		if err != nil {
			t.Fatalf("Explain row %d failed: %v", row, err)
		}

		sum := exp.BaseValue
		for _, c := range exp.TopFactors {
			sum += c.Attribution
		}
		if math.Abs(sum-exp.RawOutput) > 1e-9 {
			t.Errorf("row %d: base + contributions = %v, raw output = %v", row, sum, exp.RawOutput)
		}

		raw := m.depthWise.RawMargin(table.Rows[row])
		if math.Abs(exp.RawOutput-raw) > 1e-9 {
			t.Errorf("row %d: explanation raw output %v does not match learner margin %v", row, exp.RawOutput, raw)
		}
	}
}

func TestExplainTopNOrdering(t *testing.T) {
	table, y := syntheticTable(300, 31)
	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	exp, err := m.Explain(table, 0, 1)
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	if len(exp.TopFactors) != 1 {
		t.Fatalf("expected 1 factor, got %d", len(exp.TopFactors))
	}

	full, err := m.Explain(table, 0, len(table.Columns))
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	for i := 1; i < len(full.TopFactors); i++ {
		prev := math.Abs(full.TopFactors[i-1].Attribution)
		cur := math.Abs(full.TopFactors[i].Attribution)
		if cur > prev {
			t.Errorf("factors not sorted by magnitude at position %d", i)
		}
	}

	// The truncated view keeps the single largest factor
	if full.TopFactors[0].Feature != exp.TopFactors[0].Feature {
		t.Errorf("topN=1 kept %s, full ordering starts with %s",
			exp.TopFactors[0].Feature, full.TopFactors[0].Feature)
	}
}

func TestGlobalImportance(t *testing.T) {
	table, y := syntheticTable(300, 37)
	m := New(testConfig())
	if err := m.Fit(table, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	imp, err := m.Explainer().GlobalImportance(table)
	if err != nil {
		t.Fatalf("GlobalImportance failed: %v", err)
	}
	if len(imp) != len(table.Columns) {
		t.Fatalf("expected %d features, got %d", len(table.Columns), len(imp))
	}
	for i, fi := range imp {
		if fi.Importance < 0 {
			t.Errorf("feature %s: negative importance %v", fi.Feature, fi.Importance)
		}
		if i > 0 && imp[i].Importance > imp[i-1].Importance {
			t.Errorf("importances not sorted at position %d", i)
		}
	}
}
