package features

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	models "churnguard/database/models_pkg"
)

// RecencySentinel marks customers with no transaction history at all.
// Downstream consumers must never treat it as a real recency.
const RecencySentinel = 9999

// Lifecycle stage labels derived from tenure and activity
const (
	StageOnboarding = "onboarding"
	StageGrowth     = "growth"
	StageMaturity   = "maturity"
	StageAtRisk     = "at_risk"
	StageInactive   = "inactive"
)

// stageCodes is the ordinal encoding of lifecycle stages used as a model feature
var stageCodes = map[string]float64{
	StageOnboarding: 0,
	StageGrowth:     1,
	StageMaturity:   2,
	StageAtRisk:     3,
	StageInactive:   4,
}

// Table is a model-ready feature matrix: one row per customer, columns in a
// fixed order. After Transform returns, no cell is NaN.
type Table struct {
	Columns     []string
	CustomerIDs []string
	Rows        [][]float64

	// Stages carries the derived lifecycle label per row, for writing back to
	// the customer profile. It is not part of the numeric matrix.
	Stages []string
}

// ColumnIndex returns the position of a named column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns one cell by row index and column name
func (t *Table) Value(row int, column string) (float64, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return 0, fmt.Errorf("unknown feature column: %s", column)
	}
	if row < 0 || row >= len(t.Rows) {
		return 0, fmt.Errorf("row index out of range: %d", row)
	}
	return t.Rows[row][idx], nil
}

// Engineer turns raw customer and transaction history into the feature table
// the churn model consumes.
//
// Category and payment-method vocabularies are fixed at construction so that
// every scoring run produces the same column set in the same order — the
// model rejects any mismatch with its training schema.
type Engineer struct {
	categories     []string
	paymentMethods []string
}

// DefaultCategories is the card spend category vocabulary
var DefaultCategories = []string{"식음료", "쇼핑", "교통", "문화", "의료", "통신", "기타"}

// DefaultPaymentMethods is the payment method vocabulary
var DefaultPaymentMethods = []string{"일시불", "할부", "리볼빙"}

// NewEngineer creates a feature engineer with the default vocabularies
func NewEngineer() *Engineer {
	return NewEngineerWithVocab(DefaultCategories, DefaultPaymentMethods)
}

// NewEngineerWithVocab creates a feature engineer with explicit vocabularies
func NewEngineerWithVocab(categories, paymentMethods []string) *Engineer {
	return &Engineer{
		categories:     categories,
		paymentMethods: paymentMethods,
	}
}

// ColumnNames returns the full ordered feature column list this engineer produces
func (e *Engineer) ColumnNames() []string {
	cols := []string{
		"age", "annual_income", "credit_score",
		"recency_days", "frequency_total", "monetary_total", "monetary_avg", "diversity_score",
		"r_score", "f_score", "m_score",
		"txn_count_90d", "amount_90d", "txn_count_180d", "amount_180d", "trend_ratio",
		"weekend_ratio", "monthly_txn_avg", "mom_change_rate",
		"months_since_join", "days_since_last_txn", "lifecycle_stage_code",
	}
	for _, c := range e.categories {
		cols = append(cols, "cat_"+c+"_amount")
	}
	for _, c := range e.categories {
		cols = append(cols, "cat_"+c+"_share")
	}
	for _, m := range e.paymentMethods {
		cols = append(cols, "pm_"+m+"_count")
	}
	return cols
}

// medianImputed lists the continuous columns imputed with the column median.
// Monetary fields are heavily right-skewed, so medians rather than means.
// Everything else is a count or ratio and imputes to zero.
var medianImputed = map[string]bool{
	"age":           true,
	"annual_income": true,
	"credit_score":  true,
}

// Transform builds the feature table: one row per customer, even customers
// with zero transactions. referenceDate anchors every recency/window
// computation so that scoring runs are reproducible.
func (e *Engineer) Transform(customers []models.Customer, transactions []models.Transaction, referenceDate time.Time) *Table {
	log.Printf("🚀 Feature engineering: %d customers, %d transactions", len(customers), len(transactions))

	byCustomer := make(map[string][]models.Transaction, len(customers))
	for _, txn := range transactions {
		byCustomer[txn.CustomerID] = append(byCustomer[txn.CustomerID], txn)
	}

	cols := e.ColumnNames()
	table := &Table{
		Columns:     cols,
		CustomerIDs: make([]string, 0, len(customers)),
		Rows:        make([][]float64, 0, len(customers)),
		Stages:      make([]string, 0, len(customers)),
	}

	// RFM raw values for the whole population, needed for quantile binning
	recencies := make([]float64, len(customers))
	frequencies := make([]float64, len(customers))
	monetaries := make([]float64, len(customers))

	rowMaps := make([]map[string]float64, len(customers))

	for i, customer := range customers {
		txns := byCustomer[customer.CustomerID]
		row := make(map[string]float64, len(cols))

		e.demographicFeatures(&customer, row)
		e.rfmFeatures(txns, referenceDate, row)
		e.trendFeatures(txns, referenceDate, row)
		e.mixFeatures(txns, row)
		e.patternFeatures(txns, referenceDate, row)
		stage := e.lifecycleFeatures(&customer, txns, referenceDate, row)

		recencies[i] = row["recency_days"]
		frequencies[i] = row["frequency_total"]
		monetaries[i] = row["monetary_total"]

		rowMaps[i] = row
		table.CustomerIDs = append(table.CustomerIDs, customer.CustomerID)
		table.Stages = append(table.Stages, stage)
	}

	// Population-level RFM tier scores (quantile-binned, recency inverted)
	rScores := quantileScores(recencies, true)
	fScores := quantileScores(frequencies, false)
	mScores := quantileScores(monetaries, false)
	for i := range rowMaps {
		rowMaps[i]["r_score"] = rScores[i]
		rowMaps[i]["f_score"] = fScores[i]
		rowMaps[i]["m_score"] = mScores[i]
	}

	for _, row := range rowMaps {
		vec := make([]float64, len(cols))
		for j, c := range cols {
			if v, ok := row[c]; ok {
				vec[j] = v
			} else {
				vec[j] = math.NaN()
			}
		}
		table.Rows = append(table.Rows, vec)
	}

	impute(table)

	log.Printf("✅ Feature table ready: %d rows x %d columns", len(table.Rows), len(table.Columns))
	return table
}

func (e *Engineer) demographicFeatures(customer *models.Customer, row map[string]float64) {
	if customer.Age != nil {
		row["age"] = float64(*customer.Age)
	}
	if customer.AnnualIncome != nil {
		row["annual_income"] = float64(*customer.AnnualIncome)
	}
	if customer.CreditScore != nil {
		row["credit_score"] = float64(*customer.CreditScore)
	}
}

func (e *Engineer) rfmFeatures(txns []models.Transaction, referenceDate time.Time, row map[string]float64) {
	if len(txns) == 0 {
		row["recency_days"] = RecencySentinel
		row["frequency_total"] = 0
		row["monetary_total"] = 0
		row["monetary_avg"] = 0
		row["diversity_score"] = 0
		return
	}

	var lastTxn time.Time
	var total int64
	categoryCounts := make(map[string]int)
	for _, txn := range txns {
		if txn.TransactionDate.After(lastTxn) {
			lastTxn = txn.TransactionDate
		}
		total += txn.Amount
		categoryCounts[txn.Category]++
	}

	row["recency_days"] = math.Floor(referenceDate.Sub(lastTxn).Hours() / 24)
	row["frequency_total"] = float64(len(txns))
	row["monetary_total"] = float64(total)
	row["monetary_avg"] = float64(total) / float64(len(txns))
	row["diversity_score"] = entropy(categoryCounts, len(txns))
}

func (e *Engineer) trendFeatures(txns []models.Transaction, referenceDate time.Time, row map[string]float64) {
	cut90 := referenceDate.AddDate(0, 0, -90)
	cut180 := referenceDate.AddDate(0, 0, -180)

	var count90, count180, countPrior90 float64
	var amount90, amount180 float64
	for _, txn := range txns {
		d := txn.TransactionDate
		if d.After(referenceDate) {
			continue
		}
		if d.After(cut180) {
			count180++
			amount180 += float64(txn.Amount)
			if d.After(cut90) {
				count90++
				amount90 += float64(txn.Amount)
			} else {
				countPrior90++
			}
		}
	}

	row["txn_count_90d"] = count90
	row["amount_90d"] = amount90
	row["txn_count_180d"] = count180
	row["amount_180d"] = amount180
	// +1 guards the empty prior window. The ratio is a heuristic signal and is
	// deliberately not clipped to [0,1].
	row["trend_ratio"] = count90 / (countPrior90 + 1)
}

func (e *Engineer) mixFeatures(txns []models.Transaction, row map[string]float64) {
	var total float64
	catAmounts := make(map[string]float64)
	pmCounts := make(map[string]float64)
	for _, txn := range txns {
		catAmounts[txn.Category] += float64(txn.Amount)
		pmCounts[txn.PaymentMethod]++
		total += float64(txn.Amount)
	}

	for _, c := range e.categories {
		amount := catAmounts[c]
		row["cat_"+c+"_amount"] = amount
		if total > 0 {
			row["cat_"+c+"_share"] = amount / total
		} else {
			row["cat_"+c+"_share"] = 0
		}
	}
	for _, m := range e.paymentMethods {
		row["pm_"+m+"_count"] = pmCounts[m]
	}
}

func (e *Engineer) patternFeatures(txns []models.Transaction, referenceDate time.Time, row map[string]float64) {
	if len(txns) == 0 {
		row["weekend_ratio"] = 0
		row["monthly_txn_avg"] = 0
		row["mom_change_rate"] = 0
		return
	}

	var weekend float64
	monthly := make(map[string]float64)
	cut30 := referenceDate.AddDate(0, 0, -30)
	cut60 := referenceDate.AddDate(0, 0, -60)
	var recent1m, prev1m float64

	for _, txn := range txns {
		wd := txn.TransactionDate.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		monthly[txn.TransactionDate.Format("2006-01")]++

		if txn.TransactionDate.After(cut30) && !txn.TransactionDate.After(referenceDate) {
			recent1m++
		} else if txn.TransactionDate.After(cut60) && !txn.TransactionDate.After(cut30) {
			prev1m++
		}
	}

	row["weekend_ratio"] = weekend / float64(len(txns))

	var sum float64
	for _, c := range monthly {
		sum += c
	}
	row["monthly_txn_avg"] = sum / float64(len(monthly))

	row["mom_change_rate"] = (recent1m - prev1m) / math.Max(1, prev1m)
}

func (e *Engineer) lifecycleFeatures(customer *models.Customer, txns []models.Transaction, referenceDate time.Time, row map[string]float64) string {
	monthsSinceJoin := referenceDate.Sub(customer.JoinDate).Hours() / 24 / 30
	row["months_since_join"] = monthsSinceJoin

	var stage string
	if len(txns) == 0 {
		stage = StageInactive
		row["days_since_last_txn"] = RecencySentinel
	} else {
		var lastTxn time.Time
		for _, txn := range txns {
			if txn.TransactionDate.After(lastTxn) {
				lastTxn = txn.TransactionDate
			}
		}
		daysSinceLast := math.Floor(referenceDate.Sub(lastTxn).Hours() / 24)
		row["days_since_last_txn"] = daysSinceLast

		switch {
		case monthsSinceJoin <= 3:
			stage = StageOnboarding
		case monthsSinceJoin <= 12:
			stage = StageGrowth
		case daysSinceLast > 60:
			stage = StageAtRisk
		default:
			stage = StageMaturity
		}
	}

	row["lifecycle_stage_code"] = stageCodes[stage]
	return stage
}

// entropy computes the Shannon entropy of a category count distribution
func entropy(counts map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log(p)
	}
	return h
}

// quantileScores bins values into up to 5 quantile buckets and returns a
// 1-based tier score per value. Bucket edges are deduplicated, so cohorts
// with many ties degrade to fewer buckets instead of failing; callers should
// rely only on score monotonicity, not on a fixed bucket count.
// invert flips the scale so that the smallest values (most recent) score best.
func quantileScores(values []float64, invert bool) []float64 {
	edges := quantileEdges(values, []float64{0.2, 0.4, 0.6, 0.8})
	maxScore := float64(len(edges) + 1)

	scores := make([]float64, len(values))
	for i, v := range values {
		score := 1.0
		for _, e := range edges {
			if v > e {
				score++
			}
		}
		if invert {
			score = maxScore + 1 - score
		}
		scores[i] = score
	}
	return scores
}

// quantileEdges returns deduplicated quantile boundaries for the given
// probabilities, using linear interpolation between order statistics
func quantileEdges(values []float64, probs []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var edges []float64
	for _, p := range probs {
		pos := p * float64(len(sorted)-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		q := sorted[lo]
		if hi > lo {
			q += (pos - float64(lo)) * (sorted[hi] - sorted[lo])
		}
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}
	return edges
}

// impute replaces every NaN cell: median for the continuous demographic
// columns, zero for counts and ratios. After this pass no NaN reaches the
// model.
func impute(t *Table) {
	for j, col := range t.Columns {
		hasNaN := false
		var present []float64
		for i := range t.Rows {
			if math.IsNaN(t.Rows[i][j]) {
				hasNaN = true
			} else {
				present = append(present, t.Rows[i][j])
			}
		}
		if !hasNaN {
			continue
		}

		fill := 0.0
		if medianImputed[col] && len(present) > 0 {
			fill = median(present)
		}
		for i := range t.Rows {
			if math.IsNaN(t.Rows[i][j]) {
				t.Rows[i][j] = fill
			}
		}
	}
}

// median returns the median of a non-empty slice (input is not modified)
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
