package app

import (
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"churnguard/database"
	"churnguard/features"
	"churnguard/model"
)

const holdoutFraction = 0.2

// Trainer builds a churn model from the customer and transaction tables and
// records how well it did
type Trainer struct {
	repo     *database.CustomerRepository
	engineer *features.Engineer
	config   model.Config
}

// NewTrainer creates a trainer over the given repository
func NewTrainer(repo *database.CustomerRepository, engineer *features.Engineer, cfg model.Config) *Trainer {
	return &Trainer{repo: repo, engineer: engineer, config: cfg}
}

// Train runs the full pipeline: feature engineering, a stratified holdout
// split, ensemble fitting and holdout evaluation. The returned model is fit
// on the training split only; callers decide whether the metrics justify
// persisting it.
func (t *Trainer) Train(now time.Time) (*model.ChurnModel, *model.Metrics, error) {
	customers, err := t.repo.GetAllCustomers()
	if err != nil {
		return nil, nil, err
	}
	if len(customers) == 0 {
		return nil, nil, fmt.Errorf("no customers to train on")
	}

	transactions, err := t.repo.GetAllTransactions()
	if err != nil {
		return nil, nil, err
	}

	log.Printf("📊 Training on %d customers, %d transactions", len(customers), len(transactions))

	table := t.engineer.Transform(customers, transactions, now)
	labels := make([]int, len(customers))
	churned := 0
	for i, c := range customers {
		labels[i] = c.Churned
		churned += c.Churned
	}

	trainIdx, testIdx := stratifiedSplit(labels, holdoutFraction, 42)
	trainTable, trainY := subset(table, labels, trainIdx)
	testTable, testY := subset(table, labels, testIdx)

	m := model.New(t.config)
	if err := m.Fit(trainTable, trainY); err != nil {
		return nil, nil, err
	}

	metrics, err := m.Evaluate(testTable, testY)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("📊 Holdout metrics: AUC=%.4f precision=%.4f recall=%.4f f1=%.4f",
		metrics.AUC, metrics.Precision, metrics.Recall, metrics.F1)

	perf := &database.ModelPerformance{
		ModelVersion: "v" + now.Format("20060102-150405"),
		AUC:          metrics.AUC,
		Precision:    metrics.Precision,
		Recall:       metrics.Recall,
		F1:           metrics.F1,
		TrainSize:    len(trainIdx),
		TestSize:     len(testIdx),
		ChurnRate:    float64(churned) / float64(len(customers)),
		TrainingDate: now,
	}
	if err := t.repo.SaveModelPerformance(perf); err != nil {
		log.Printf("⚠️ Failed to record model performance: %v", err)
	}

	return m, metrics, nil
}

// stratifiedSplit splits row indices into train and test sets, preserving the
// class balance in both. Deterministic for a given seed.
func stratifiedSplit(labels []int, testFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))

	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for y := range byClass {
		classes = append(classes, y)
	}
	sort.Ints(classes)

	for _, y := range classes {
		idx := byClass[y]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		cut := int(float64(len(idx)) * testFraction)
		test = append(test, idx[:cut]...)
		train = append(train, idx[cut:]...)
	}
	return train, test
}

// subset materializes a row subset of a feature table and its labels
func subset(t *features.Table, labels []int, idx []int) (*features.Table, []int) {
	sub := &features.Table{
		Columns:     t.Columns,
		CustomerIDs: make([]string, len(idx)),
		Rows:        make([][]float64, len(idx)),
		Stages:      make([]string, len(idx)),
	}
	y := make([]int, len(idx))
	for i, j := range idx {
		sub.CustomerIDs[i] = t.CustomerIDs[j]
		sub.Rows[i] = t.Rows[j]
		sub.Stages[i] = t.Stages[j]
		y[i] = labels[j]
	}
	return sub, y
}
