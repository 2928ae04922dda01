package model

import "sort"

// Metrics holds hold-out evaluation results at the 0.5 decision threshold
type Metrics struct {
	AUC       float64 `json:"auc"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// rocAUC computes the area under the ROC curve via the rank statistic
// (Mann-Whitney U), with tied scores given averaged ranks
func rocAUC(probs []float64, labels []float64) float64 {
	n := len(probs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[idx[j]] == probs[idx[i]] {
			j++
		}
		// Average rank across the tie group (ranks are 1-based)
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var nPos, nNeg, rankSum float64
	for i, l := range labels {
		if l > 0.5 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
}

// classificationMetrics computes precision, recall and F1 at threshold 0.5
func classificationMetrics(probs []float64, labels []float64) (precision, recall, f1 float64) {
	var tp, fp, fn float64
	for i, p := range probs {
		pred := p >= 0.5
		actual := labels[i] > 0.5
		switch {
		case pred && actual:
			tp++
		case pred && !actual:
			fp++
		case !pred && actual:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return
}
