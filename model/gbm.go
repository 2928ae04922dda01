package model

import (
	"math"
	"math/rand"
)

// BoostConfig holds the hyper-parameters of one gradient-boosted learner.
// MaxDepth > 0 selects depth-wise growth; NumLeaves > 0 selects leaf-wise
// growth (set exactly one of the two).
type BoostConfig struct {
	Trees          int
	LearningRate   float64
	MaxDepth       int
	NumLeaves      int
	MinChildWeight float64
	Lambda         float64
	Gamma          float64
	Subsample      float64
	ColSample      float64
	Seed           int64
}

// GradientBoosting is a binary-logistic gradient boosted tree model.
// Trees hold learning-rate-scaled values, so the raw margin is simply
// BaseScore plus the sum of tree outputs.
type GradientBoosting struct {
	Config    BoostConfig
	BaseScore float64
	Trees     []RegTree
}

// NewGradientBoosting creates an unfitted boosted model
func NewGradientBoosting(cfg BoostConfig) *GradientBoosting {
	return &GradientBoosting{Config: cfg}
}

// Fit trains the boosting chain on a numeric matrix and 0/1 labels
func (gb *GradientBoosting) Fit(X [][]float64, y []float64) {
	n := len(X)
	rng := rand.New(rand.NewSource(gb.Config.Seed))

	// Initial raw score: log-odds of the base rate
	var pos float64
	for _, v := range y {
		pos += v
	}
	rate := pos / float64(n)
	rate = math.Min(math.Max(rate, 1e-6), 1-1e-6)
	gb.BaseScore = math.Log(rate / (1 - rate))

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = gb.BaseScore
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	gb.Trees = make([]RegTree, 0, gb.Config.Trees)

	for m := 0; m < gb.Config.Trees; m++ {
		for i := 0; i < n; i++ {
			p := sigmoid(margin[i])
			grad[i] = p - y[i]
			hess[i] = p * (1 - p)
		}

		rows := gb.sampleRows(n, rng)
		tree := growTree(X, grad, hess, rows, &gb.Config, rng)
		tree.scale(gb.Config.LearningRate)
		gb.Trees = append(gb.Trees, *tree)

		for i := 0; i < n; i++ {
			margin[i] += tree.Predict(X[i])
		}
	}
}

// sampleRows draws the row subsample for one boosting round (without
// replacement, the usual stochastic gradient boosting scheme)
func (gb *GradientBoosting) sampleRows(n int, rng *rand.Rand) []int {
	if gb.Config.Subsample <= 0 || gb.Config.Subsample >= 1 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	k := int(math.Ceil(gb.Config.Subsample * float64(n)))
	if k < 2 {
		k = 2
	}
	return rng.Perm(n)[:k]
}

// RawMargin returns the additive raw output (log-odds scale) for one row
func (gb *GradientBoosting) RawMargin(x []float64) float64 {
	out := gb.BaseScore
	for i := range gb.Trees {
		out += gb.Trees[i].Predict(x)
	}
	return out
}

// PredictProba returns the churn probability for one row
func (gb *GradientBoosting) PredictProba(x []float64) float64 {
	return sigmoid(gb.RawMargin(x))
}

// Fitted reports whether Fit has run
func (gb *GradientBoosting) Fitted() bool {
	return len(gb.Trees) > 0
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
