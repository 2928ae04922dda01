package model

import (
	"errors"
	"fmt"
	"sort"

	"churnguard/features"
)

// Explainer produces additive per-feature attributions for the depth-wise
// boosted learner. For every tree it attributes the change in expected value
// along the decision path to the split feature, so that
//
//	BaseValue + sum(contributions) == raw margin (log-odds)
//
// holds exactly for each row. Attributions live on the raw-margin scale, not
// the probability scale.
type Explainer struct {
	model        *GradientBoosting
	featureNames []string
}

// Contribution is one feature's attribution for a single row, paired with
// the feature's raw value
type Contribution struct {
	Feature      string  `json:"feature"`
	FeatureValue float64 `json:"feature_value"`
	Attribution  float64 `json:"attribution"`
}

// Explanation is the output of a per-row explanation
type Explanation struct {
	RowIndex   int            `json:"row_index"`
	BaseValue  float64        `json:"base_value"`
	RawOutput  float64        `json:"raw_output"`
	TopFactors []Contribution `json:"top_factors"`
}

// FeatureImportance is one feature's global importance (mean absolute
// attribution across all rows)
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

func newExplainer(gb *GradientBoosting, featureNames []string) *Explainer {
	return &Explainer{model: gb, featureNames: featureNames}
}

// attributions computes the raw per-feature contributions for one row.
// Returns the contributions and the base value.
func (e *Explainer) attributions(x []float64) ([]float64, float64) {
	contribs := make([]float64, len(e.featureNames))
	base := e.model.BaseScore
	for i := range e.model.Trees {
		base += e.model.Trees[i].PathContributions(x, contribs)
	}
	return contribs, base
}

// ExplainRow explains a single row: the topN features by absolute
// attribution, each paired with its raw feature value
func (e *Explainer) ExplainRow(t *features.Table, rowIndex int, topN int) (*Explanation, error) {
	if e.model == nil || !e.model.Fitted() {
		return nil, ErrNotFitted
	}
	if rowIndex < 0 || rowIndex >= len(t.Rows) {
		return nil, fmt.Errorf("row index %d out of range (%d rows)", rowIndex, len(t.Rows))
	}
	if topN <= 0 {
		topN = 10
	}

	x := t.Rows[rowIndex]
	contribs, base := e.attributions(x)

	factors := make([]Contribution, len(contribs))
	for i, c := range contribs {
		factors[i] = Contribution{
			Feature:      e.featureNames[i],
			FeatureValue: x[i],
			Attribution:  c,
		}
	}
	sort.Slice(factors, func(a, b int) bool {
		return abs(factors[a].Attribution) > abs(factors[b].Attribution)
	})
	if topN < len(factors) {
		factors = factors[:topN]
	}

	return &Explanation{
		RowIndex:   rowIndex,
		BaseValue:  base,
		RawOutput:  e.model.RawMargin(x),
		TopFactors: factors,
	}, nil
}

// GlobalImportance ranks features by mean absolute attribution across all
// rows of the table
func (e *Explainer) GlobalImportance(t *features.Table) ([]FeatureImportance, error) {
	if e.model == nil || !e.model.Fitted() {
		return nil, ErrNotFitted
	}
	if len(t.Rows) == 0 {
		return nil, errors.New("empty feature table")
	}

	sums := make([]float64, len(e.featureNames))
	for _, row := range t.Rows {
		contribs, _ := e.attributions(row)
		for i, c := range contribs {
			sums[i] += abs(c)
		}
	}

	importance := make([]FeatureImportance, len(sums))
	for i, s := range sums {
		importance[i] = FeatureImportance{
			Feature:    e.featureNames[i],
			Importance: s / float64(len(t.Rows)),
		}
	}
	sort.Slice(importance, func(a, b int) bool {
		return importance[a].Importance > importance[b].Importance
	})
	return importance, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
