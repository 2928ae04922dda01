// Package abtest decides whether the difference between two campaign groups
// is real or noise, using a pooled two-proportion z-test at the 95%
// confidence level.
package abtest

import (
	"fmt"
	"math"

	"churnguard/database"
)

// SignificanceLevel is the two-sided alpha used for the significance verdict
const SignificanceLevel = 0.05

// Winner labels
const (
	WinnerA    = "A"
	WinnerB    = "B"
	WinnerNone = "NONE"
)

// Result holds the full verdict of a two-proportion comparison
type Result struct {
	ZStatistic      float64 `json:"z_statistic"`
	PValue          float64 `json:"p_value"`
	Lift            float64 `json:"lift"`
	IsSignificant   bool    `json:"is_significant"`
	Winner          string  `json:"winner"`
	Conclusion      string  `json:"conclusion"`
	ConfidenceLevel float64 `json:"confidence_level"`
	GroupAMetric    float64 `json:"group_a_metric"`
	GroupBMetric    float64 `json:"group_b_metric"`
}

// Compare runs a pooled two-proportion z-test on conversion rates rateA and
// rateB (proportions in [0,1]) observed over nA and nB samples. The test is
// two-sided; direction only matters for picking the winner.
func Compare(rateA float64, nA int, rateB float64, nB int) (*Result, error) {
	if rateA < 0 || rateA > 1 {
		return nil, database.NewValidationErrorWithValue("group_a_rate", "must be in [0,1]", rateA)
	}
	if rateB < 0 || rateB > 1 {
		return nil, database.NewValidationErrorWithValue("group_b_rate", "must be in [0,1]", rateB)
	}
	if nA <= 0 {
		return nil, database.NewValidationErrorWithValue("group_a_size", "must be positive", nA)
	}
	if nB <= 0 {
		return nil, database.NewValidationErrorWithValue("group_b_size", "must be positive", nB)
	}

	z, pValue := zTestProportions(rateA, float64(nA), rateB, float64(nB))

	lift := 0.0
	if rateA > 0 {
		lift = (rateB - rateA) / rateA * 100
	}

	significant := pValue < SignificanceLevel

	winner := WinnerNone
	if significant {
		if rateB > rateA {
			winner = WinnerB
		} else {
			winner = WinnerA
		}
	}

	result := &Result{
		ZStatistic:      round4(z),
		PValue:          round4(pValue),
		Lift:            round2(lift),
		IsSignificant:   significant,
		Winner:          winner,
		Conclusion:      conclusion(winner, lift, pValue),
		ConfidenceLevel: 1 - SignificanceLevel,
		GroupAMetric:    rateA,
		GroupBMetric:    rateB,
	}
	return result, nil
}

// Verdict applies a comparison outcome onto an A/B test record
func (r *Result) Verdict(test *database.ABTest) {
	test.GroupAMetricValue = &r.GroupAMetric
	test.GroupBMetricValue = &r.GroupBMetric
	z := r.ZStatistic
	p := r.PValue
	lift := r.Lift
	sig := r.IsSignificant
	test.ZStatistic = &z
	test.PValue = &p
	test.Lift = &lift
	test.IsSignificant = &sig
	test.Winner = r.Winner
	test.Conclusion = r.Conclusion
}

// zTestProportions pools the two samples under the null hypothesis of equal
// proportions. A zero standard error means both pooled outcomes are
// degenerate, so there is no evidence either way.
func zTestProportions(p1, n1, p2, n2 float64) (z, pValue float64) {
	pPool := (p1*n1 + p2*n2) / (n1 + n2)
	se := math.Sqrt(pPool * (1 - pPool) * (1/n1 + 1/n2))
	if se == 0 {
		return 0, 1.0
	}
	z = (p2 - p1) / se
	pValue = 2 * (1 - normCDF(math.Abs(z)))
	return z, pValue
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func conclusion(winner string, lift, pValue float64) string {
	switch winner {
	case WinnerB:
		return fmt.Sprintf("B그룹이 A그룹보다 %.1f%% 더 좋은 성과를 보였으며, 통계적으로 유의미합니다(p=%.4f).", math.Abs(lift), pValue)
	case WinnerA:
		return fmt.Sprintf("A그룹이 B그룹보다 %.1f%% 더 좋은 성과를 보였으며, 통계적으로 유의미합니다(p=%.4f).", math.Abs(lift), pValue)
	default:
		return fmt.Sprintf("두 그룹 간의 차이(%.1f%%)는 통계적으로 유의미하지 않습니다(p=%.4f). 더 많은 샘플이 필요할 수 있습니다.", lift, pValue)
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
