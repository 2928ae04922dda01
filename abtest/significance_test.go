package abtest

import (
	"errors"
	"math"
	"testing"

	"churnguard/database"
)

func TestCompareIdenticalGroups(t *testing.T) {
	result, err := Compare(0.20, 1000, 0.20, 1000)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if result.ZStatistic != 0 {
		t.Errorf("z: expected 0, got %v", result.ZStatistic)
	}
	if result.PValue != 1 {
		t.Errorf("p: expected 1, got %v", result.PValue)
	}
	if result.IsSignificant {
		t.Error("identical groups must not be significant")
	}
	if result.Winner != WinnerNone {
		t.Errorf("winner: expected %s, got %s", WinnerNone, result.Winner)
	}
	if result.Lift != 0 {
		t.Errorf("lift: expected 0, got %v", result.Lift)
	}
}

func TestCompareClearWinner(t *testing.T) {
	result, err := Compare(0.10, 2500, 0.16, 2500)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if !result.IsSignificant {
		t.Errorf("expected significance, p=%v", result.PValue)
	}
	if result.Winner != WinnerB {
		t.Errorf("winner: expected %s, got %s", WinnerB, result.Winner)
	}
	if result.Lift != 60 {
		t.Errorf("lift: expected 60, got %v", result.Lift)
	}
	if result.ZStatistic <= 0 {
		t.Errorf("z: expected positive, got %v", result.ZStatistic)
	}
	if result.PValue >= 0.05 {
		t.Errorf("p: expected below 0.05, got %v", result.PValue)
	}
	if result.Conclusion == "" {
		t.Error("expected a conclusion")
	}
}

func TestCompareWinnerA(t *testing.T) {
	result, err := Compare(0.16, 2500, 0.10, 2500)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if result.Winner != WinnerA {
		t.Errorf("winner: expected %s, got %s", WinnerA, result.Winner)
	}
	if result.ZStatistic >= 0 {
		t.Errorf("z: expected negative, got %v", result.ZStatistic)
	}
	if result.Lift >= 0 {
		t.Errorf("lift: expected negative, got %v", result.Lift)
	}
}

func TestCompareSmallSampleNotSignificant(t *testing.T) {
	// The same effect size as the clear-winner case but far too few samples
	result, err := Compare(0.10, 50, 0.16, 50)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if result.IsSignificant {
		t.Errorf("expected no significance with n=50, p=%v", result.PValue)
	}
	if result.Winner != WinnerNone {
		t.Errorf("winner: expected %s, got %s", WinnerNone, result.Winner)
	}
}

func TestCompareDegenerateZeroRates(t *testing.T) {
	// Both groups at 0% pools to p=0 and a zero standard error
	result, err := Compare(0, 100, 0, 100)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result.ZStatistic != 0 || result.PValue != 1 {
		t.Errorf("degenerate case: expected z=0 p=1, got z=%v p=%v", result.ZStatistic, result.PValue)
	}

	// Zero control rate guards the lift division
	result, err = Compare(0, 100, 0.5, 100)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result.Lift != 0 {
		t.Errorf("lift with zero control rate: expected 0, got %v", result.Lift)
	}
	if math.IsNaN(result.ZStatistic) || math.IsInf(result.ZStatistic, 0) {
		t.Errorf("z must stay finite, got %v", result.ZStatistic)
	}
}

func TestCompareValidation(t *testing.T) {
	tests := []struct {
		name  string
		rateA float64
		nA    int
		rateB float64
		nB    int
	}{
		{"rate A above one", 1.2, 100, 0.5, 100},
		{"rate B negative", 0.5, 100, -0.1, 100},
		{"zero sample A", 0.5, 0, 0.5, 100},
		{"negative sample B", 0.5, 100, 0.5, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.rateA, tt.nA, tt.rateB, tt.nB)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var vErr *database.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestVerdictAppliesToRecord(t *testing.T) {
	result, err := Compare(0.10, 2500, 0.16, 2500)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	test := &database.ABTest{TestName: "coupon vs call"}
	result.Verdict(test)

	if test.Winner != WinnerB {
		t.Errorf("winner: expected %s, got %s", WinnerB, test.Winner)
	}
	if test.PValue == nil || *test.PValue != result.PValue {
		t.Error("p value not applied")
	}
	if test.IsSignificant == nil || !*test.IsSignificant {
		t.Error("significance not applied")
	}
	if test.Lift == nil || *test.Lift != 60 {
		t.Error("lift not applied")
	}
	if test.Conclusion == "" {
		t.Error("conclusion not applied")
	}
}
