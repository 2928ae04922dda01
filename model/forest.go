package model

import (
	"math"
	"math/rand"
	"sort"
)

// ForestConfig holds the hyper-parameters of the bagged-tree learner
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
}

// ClassNode is one node of a classification tree. Leaves carry the weighted
// positive-class probability.
type ClassNode struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Proba     float64
}

// ClassTree is a single tree of the random forest
type ClassTree struct {
	Nodes []ClassNode
}

// PredictProba walks the tree and returns the leaf probability
func (t *ClassTree) PredictProba(x []float64) float64 {
	i := int32(0)
	for t.Nodes[i].Left >= 0 {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Proba
}

// RandomForest is a bagged ensemble of gini-split classification trees.
// Class imbalance is handled with balanced class weights instead of
// resampling, so the forest sees the original distribution and contributes
// decorrelated variance reduction to the voting ensemble.
type RandomForest struct {
	Config       ForestConfig
	ClassWeights [2]float64
	Trees        []ClassTree
}

// NewRandomForest creates an unfitted forest
func NewRandomForest(cfg ForestConfig) *RandomForest {
	return &RandomForest{Config: cfg}
}

// Fit trains the forest on a numeric matrix and 0/1 labels
func (rf *RandomForest) Fit(X [][]float64, y []float64) {
	n := len(X)
	rng := rand.New(rand.NewSource(rf.Config.Seed))

	// "balanced": weight_c = n / (2 * n_c)
	var pos float64
	for _, v := range y {
		pos += v
	}
	neg := float64(n) - pos
	rf.ClassWeights = [2]float64{1, 1}
	if pos > 0 && neg > 0 {
		rf.ClassWeights[0] = float64(n) / (2 * neg)
		rf.ClassWeights[1] = float64(n) / (2 * pos)
	}

	rf.Trees = make([]ClassTree, 0, rf.Config.Trees)
	for m := 0; m < rf.Config.Trees; m++ {
		// Bootstrap sample
		rows := make([]int, n)
		for i := range rows {
			rows[i] = rng.Intn(n)
		}
		g := &forestGrower{
			X:       X,
			Y:       y,
			weights: rf.ClassWeights,
			cfg:     &rf.Config,
			rng:     rng,
			numCols: len(X[0]),
		}
		g.nodes = append(g.nodes, ClassNode{Left: -1, Right: -1, Proba: g.proba(rows)})
		g.grow(0, rows, 0)
		rf.Trees = append(rf.Trees, ClassTree{Nodes: g.nodes})
	}
}

// PredictProba averages the tree probabilities for one row
func (rf *RandomForest) PredictProba(x []float64) float64 {
	if len(rf.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range rf.Trees {
		sum += rf.Trees[i].PredictProba(x)
	}
	return sum / float64(len(rf.Trees))
}

// Fitted reports whether Fit has run
func (rf *RandomForest) Fitted() bool {
	return len(rf.Trees) > 0
}

type forestGrower struct {
	X       [][]float64
	Y       []float64
	weights [2]float64
	cfg     *ForestConfig
	rng     *rand.Rand
	nodes   []ClassNode
	numCols int
}

// proba is the weighted positive share at a node
func (g *forestGrower) proba(rows []int) float64 {
	var w0, w1 float64
	for _, r := range rows {
		if g.Y[r] > 0.5 {
			w1 += g.weights[1]
		} else {
			w0 += g.weights[0]
		}
	}
	if w0+w1 == 0 {
		return 0
	}
	return w1 / (w0 + w1)
}

func gini(w0, w1 float64) float64 {
	total := w0 + w1
	if total == 0 {
		return 0
	}
	p := w1 / total
	return 2 * p * (1 - p)
}

func (g *forestGrower) grow(nodeIdx int32, rows []int, depth int) {
	if depth >= g.cfg.MaxDepth || len(rows) < g.cfg.MinSamplesSplit {
		return
	}

	var w0, w1 float64
	for _, r := range rows {
		if g.Y[r] > 0.5 {
			w1 += g.weights[1]
		} else {
			w0 += g.weights[0]
		}
	}
	parentGini := gini(w0, w1)
	if parentGini == 0 {
		return
	}

	// sqrt(d) feature subsample per node
	k := int(math.Ceil(math.Sqrt(float64(g.numCols))))
	features := g.rng.Perm(g.numCols)[:k]

	bestGain := 0.0
	bestFeature := -1
	var bestThreshold float64
	var bestLeft, bestRight []int

	order := make([]int, len(rows))
	for _, f := range features {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool {
			return g.X[order[a]][f] < g.X[order[b]][f]
		})

		var l0, l1 float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			if g.Y[r] > 0.5 {
				l1 += g.weights[1]
			} else {
				l0 += g.weights[0]
			}
			if g.X[order[i]][f] == g.X[order[i+1]][f] {
				continue
			}
			if i+1 < g.cfg.MinSamplesLeaf || len(order)-i-1 < g.cfg.MinSamplesLeaf {
				continue
			}
			r0 := w0 - l0
			r1 := w1 - l1
			total := w0 + w1
			gain := parentGini - (l0+l1)/total*gini(l0, l1) - (r0+r1)/total*gini(r0, r1)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (g.X[order[i]][f] + g.X[order[i+1]][f]) / 2
				bestLeft = append(bestLeft[:0], order[:i+1]...)
				bestRight = append(bestRight[:0], order[i+1:]...)
			}
		}
	}

	if bestFeature < 0 {
		return
	}

	leftRows := append([]int(nil), bestLeft...)
	rightRows := append([]int(nil), bestRight...)

	left := int32(len(g.nodes))
	g.nodes = append(g.nodes, ClassNode{Left: -1, Right: -1, Proba: g.proba(leftRows)})
	right := int32(len(g.nodes))
	g.nodes = append(g.nodes, ClassNode{Left: -1, Right: -1, Proba: g.proba(rightRows)})

	n := &g.nodes[nodeIdx]
	n.Feature = bestFeature
	n.Threshold = bestThreshold
	n.Left = left
	n.Right = right

	g.grow(left, leftRows, depth+1)
	g.grow(right, rightRows, depth+1)
}
