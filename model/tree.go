package model

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one node of a regression tree. Leaf nodes have Left == -1.
// Value holds the would-be leaf output at every node, internal nodes
// included; the explainer attributes prediction changes along the decision
// path using these intermediate values.
type Node struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Value     float64
}

// RegTree is a single regression tree of a boosted ensemble. Samples with a
// feature value <= Threshold go left.
type RegTree struct {
	Nodes []Node
}

// Predict walks the tree and returns the leaf value
func (t *RegTree) Predict(x []float64) float64 {
	i := int32(0)
	for t.Nodes[i].Left >= 0 {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// PathContributions walks the decision path and adds the change in node value
// at every split to contribs[feature]. It returns the root value, so that
// root + sum(contribs added here) equals Predict(x) exactly.
func (t *RegTree) PathContributions(x []float64, contribs []float64) float64 {
	i := int32(0)
	root := t.Nodes[0].Value
	for t.Nodes[i].Left >= 0 {
		n := t.Nodes[i]
		var next int32
		if x[n.Feature] <= n.Threshold {
			next = n.Left
		} else {
			next = n.Right
		}
		contribs[n.Feature] += t.Nodes[next].Value - t.Nodes[i].Value
		i = next
	}
	return root
}

// scale multiplies every node value by the learning rate so that tree outputs
// can simply be summed
func (t *RegTree) scale(factor float64) {
	for i := range t.Nodes {
		t.Nodes[i].Value *= factor
	}
}

// treeGrower builds one regression tree from per-sample gradients and
// hessians, XGBoost-style: leaf value -G/(H+lambda), split gain from the
// regularized score improvement.
type treeGrower struct {
	X       [][]float64
	Grad    []float64
	Hess    []float64
	cfg     *BoostConfig
	rng     *rand.Rand
	nodes   []Node
	numCols int
}

// candidate is a growable leaf with its precomputed best split
type candidate struct {
	nodeIdx   int32
	rows      []int
	depth     int
	gain      float64
	feature   int
	threshold float64
	leftRows  []int
	rightRows []int
}

func growTree(X [][]float64, grad, hess []float64, rows []int, cfg *BoostConfig, rng *rand.Rand) *RegTree {
	g := &treeGrower{
		X:       X,
		Grad:    grad,
		Hess:    hess,
		cfg:     cfg,
		rng:     rng,
		numCols: len(X[0]),
	}

	rootValue := g.leafValue(rows)
	g.nodes = append(g.nodes, Node{Left: -1, Right: -1, Value: rootValue})

	if cfg.NumLeaves > 0 {
		g.growLeafWise(rows)
	} else {
		g.growDepthWise(0, rows, 0)
	}

	return &RegTree{Nodes: g.nodes}
}

// growDepthWise splits nodes recursively until MaxDepth
func (g *treeGrower) growDepthWise(nodeIdx int32, rows []int, depth int) {
	if depth >= g.cfg.MaxDepth {
		return
	}
	cand := g.bestSplit(nodeIdx, rows, depth)
	if cand == nil {
		return
	}
	left, right := g.applySplit(cand)
	g.growDepthWise(left, cand.leftRows, depth+1)
	g.growDepthWise(right, cand.rightRows, depth+1)
}

// growLeafWise repeatedly splits the highest-gain leaf until NumLeaves is
// reached, the LightGBM way
func (g *treeGrower) growLeafWise(rows []int) {
	leaves := 1
	var frontier []*candidate
	if c := g.bestSplit(0, rows, 0); c != nil {
		frontier = append(frontier, c)
	}

	for leaves < g.cfg.NumLeaves && len(frontier) > 0 {
		// Pick the candidate with maximum gain
		best := 0
		for i, c := range frontier {
			if c.gain > frontier[best].gain {
				best = i
			}
		}
		cand := frontier[best]
		frontier = append(frontier[:best], frontier[best+1:]...)

		left, right := g.applySplit(cand)
		leaves++

		if c := g.bestSplit(left, cand.leftRows, cand.depth+1); c != nil {
			frontier = append(frontier, c)
		}
		if c := g.bestSplit(right, cand.rightRows, cand.depth+1); c != nil {
			frontier = append(frontier, c)
		}
	}
}

// applySplit turns a leaf into an internal node and appends its two children
func (g *treeGrower) applySplit(cand *candidate) (int32, int32) {
	left := int32(len(g.nodes))
	g.nodes = append(g.nodes, Node{Left: -1, Right: -1, Value: g.leafValue(cand.leftRows)})
	right := int32(len(g.nodes))
	g.nodes = append(g.nodes, Node{Left: -1, Right: -1, Value: g.leafValue(cand.rightRows)})

	n := &g.nodes[cand.nodeIdx]
	n.Feature = cand.feature
	n.Threshold = cand.threshold
	n.Left = left
	n.Right = right
	return left, right
}

// leafValue is the regularized Newton step -G/(H+lambda)
func (g *treeGrower) leafValue(rows []int) float64 {
	var sumG, sumH float64
	for _, r := range rows {
		sumG += g.Grad[r]
		sumH += g.Hess[r]
	}
	return -sumG / (sumH + g.cfg.Lambda)
}

// bestSplit scans a column subsample for the best gain split of a leaf.
// Returns nil when no split improves the objective.
func (g *treeGrower) bestSplit(nodeIdx int32, rows []int, depth int) *candidate {
	if len(rows) < 2 {
		return nil
	}

	var sumG, sumH float64
	for _, r := range rows {
		sumG += g.Grad[r]
		sumH += g.Hess[r]
	}

	lambda := g.cfg.Lambda
	parentScore := sumG * sumG / (sumH + lambda)

	features := g.sampleColumns()

	best := candidate{nodeIdx: nodeIdx, depth: depth, gain: 0}
	found := false

	order := make([]int, len(rows))
	for _, f := range features {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool {
			return g.X[order[a]][f] < g.X[order[b]][f]
		})

		var gl, hl float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			gl += g.Grad[r]
			hl += g.Hess[r]
			// No split between equal feature values
			if g.X[order[i]][f] == g.X[order[i+1]][f] {
				continue
			}
			gr := sumG - gl
			hr := sumH - hl
			if hl < g.cfg.MinChildWeight || hr < g.cfg.MinChildWeight {
				continue
			}
			gain := 0.5*(gl*gl/(hl+lambda)+gr*gr/(hr+lambda)-parentScore) - g.cfg.Gamma
			if gain > best.gain {
				best.gain = gain
				best.feature = f
				best.threshold = (g.X[order[i]][f] + g.X[order[i+1]][f]) / 2
				best.leftRows = append(best.leftRows[:0], order[:i+1]...)
				best.rightRows = append(best.rightRows[:0], order[i+1:]...)
				found = true
			}
		}
	}

	if !found {
		return nil
	}
	// Own copies: the scan buffers above are reused across features
	best.leftRows = append([]int(nil), best.leftRows...)
	best.rightRows = append([]int(nil), best.rightRows...)
	return &best
}

// sampleColumns returns the column subsample for one split search
func (g *treeGrower) sampleColumns() []int {
	k := g.numCols
	if g.cfg.ColSample > 0 && g.cfg.ColSample < 1 {
		k = int(math.Ceil(g.cfg.ColSample * float64(g.numCols)))
		if k < 1 {
			k = 1
		}
	}
	if k >= g.numCols {
		cols := make([]int, g.numCols)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	return g.rng.Perm(g.numCols)[:k]
}
