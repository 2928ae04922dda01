package model

import (
	"log"
	"math"
	"math/rand"
	"sort"
)

// Resampling defaults mirroring the training pipeline: synthetic minority
// oversampling to half the majority count, then random undersampling of the
// majority until minority/majority reaches 0.8. Oversampling runs first so
// synthetic points are grown from the full minority set, not an already
// shrunken one.
const (
	smoteTargetRatio = 0.5
	underTargetRatio = 0.8
	smoteNeighbors   = 5
)

// resample applies the two-stage SMOTE + undersampling pipeline and returns
// the balanced training set. The input slices are not modified.
func resample(X [][]float64, y []float64, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))

	var minority, majority []int
	for i, v := range y {
		if v > 0.5 {
			minority = append(minority, i)
		} else {
			majority = append(majority, i)
		}
	}
	// The churn class is expected to be the minority; flip if it is not
	minLabel, majLabel := 1.0, 0.0
	if len(minority) > len(majority) {
		minority, majority = majority, minority
		minLabel, majLabel = 0.0, 1.0
	}

	if len(minority) == 0 || len(majority) == 0 {
		log.Println("⚠️  Single-class training data, resampling skipped")
		return X, y
	}

	// Stage 1: SMOTE the minority up to smoteTargetRatio of the majority
	minRows := make([][]float64, 0, len(minority))
	for _, i := range minority {
		minRows = append(minRows, X[i])
	}

	target := int(smoteTargetRatio * float64(len(majority)))
	synthetic := make([][]float64, 0)
	if len(minority) >= 2 && target > len(minority) {
		synthetic = smote(minRows, target-len(minority), rng)
	} else if len(minority) < 2 && target > len(minority) {
		log.Println("⚠️  Too few minority samples for SMOTE, oversampling skipped")
	}
	minorityCount := len(minority) + len(synthetic)

	// Stage 2: undersample the majority until minority/majority = underTargetRatio
	majTarget := int(math.Round(float64(minorityCount) / underTargetRatio))
	keptMajority := majority
	if majTarget < len(majority) {
		perm := rng.Perm(len(majority))[:majTarget]
		sort.Ints(perm)
		keptMajority = make([]int, 0, majTarget)
		for _, p := range perm {
			keptMajority = append(keptMajority, majority[p])
		}
	}

	outX := make([][]float64, 0, minorityCount+len(keptMajority))
	outY := make([]float64, 0, minorityCount+len(keptMajority))
	for _, i := range keptMajority {
		outX = append(outX, X[i])
		outY = append(outY, majLabel)
	}
	for _, i := range minority {
		outX = append(outX, X[i])
		outY = append(outY, minLabel)
	}
	for _, row := range synthetic {
		outX = append(outX, row)
		outY = append(outY, minLabel)
	}

	log.Printf("📊 Resampled training set: %d majority, %d minority (%d synthetic)",
		len(keptMajority), minorityCount, len(synthetic))
	return outX, outY
}

// smote generates count synthetic minority rows by interpolating between each
// seed row and one of its k nearest minority neighbors
func smote(rows [][]float64, count int, rng *rand.Rand) [][]float64 {
	k := smoteNeighbors
	if k > len(rows)-1 {
		k = len(rows) - 1
	}

	neighbors := nearestNeighbors(rows, k)

	synthetic := make([][]float64, 0, count)
	for len(synthetic) < count {
		i := rng.Intn(len(rows))
		nn := neighbors[i][rng.Intn(k)]
		u := rng.Float64()

		row := make([]float64, len(rows[i]))
		for j := range row {
			row[j] = rows[i][j] + u*(rows[nn][j]-rows[i][j])
		}
		synthetic = append(synthetic, row)
	}
	return synthetic
}

// nearestNeighbors returns, for each row, the indices of its k nearest rows
// by euclidean distance (brute force; minority sets are small)
func nearestNeighbors(rows [][]float64, k int) [][]int {
	n := len(rows)
	result := make([][]int, n)
	type distIdx struct {
		d   float64
		idx int
	}
	for i := 0; i < n; i++ {
		dists := make([]distIdx, 0, n-1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			var d float64
			for c := range rows[i] {
				diff := rows[i][c] - rows[j][c]
				d += diff * diff
			}
			dists = append(dists, distIdx{d, j})
		}
		sort.Slice(dists, func(a, b int) bool { return dists[a].d < dists[b].d })
		nn := make([]int, k)
		for j := 0; j < k; j++ {
			nn[j] = dists[j].idx
		}
		result[i] = nn
	}
	return result
}
