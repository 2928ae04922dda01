package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"churnguard/features"
)

// ErrNotFitted is returned when predict/explain/evaluate runs before Fit.
// The model never silently falls back to a default prediction.
var ErrNotFitted = errors.New("model is not fitted yet")

// Risk levels. These breakpoints are a fixed contract consumed by every
// downstream report; changing them is a breaking change.
const (
	RiskLow      = "LOW"      // score < 50
	RiskMedium   = "MEDIUM"   // 50 <= score < 70
	RiskHigh     = "HIGH"     // 70 <= score < 90
	RiskCritical = "CRITICAL" // score >= 90
)

// RiskScoreFromProba maps a churn probability in [0,1] to the 0-100 score
func RiskScoreFromProba(p float64) int {
	return int(math.Round(p * 100))
}

// RiskLevelForScore maps a 0-100 risk score to its level
func RiskLevelForScore(score int) string {
	switch {
	case score >= 90:
		return RiskCritical
	case score >= 70:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Config holds the ensemble configuration. The three learners carry
// different inductive biases: DepthWise is the depth-wise boosted model,
// LeafWise a leaf-wise boosted variant with different regularization, and
// Forest a bagged model with balanced class weighting.
type Config struct {
	DepthWise BoostConfig
	LeafWise  BoostConfig
	Forest    ForestConfig

	// Soft-voting weights for [DepthWise, LeafWise, Forest]. The boosted
	// learners outperform on this signal-to-noise profile, so they carry
	// double weight by default.
	VotingWeights [3]float64
}

// DefaultConfig returns the production ensemble configuration
func DefaultConfig() Config {
	return Config{
		DepthWise: BoostConfig{
			Trees:          200,
			LearningRate:   0.05,
			MaxDepth:       6,
			MinChildWeight: 1,
			Lambda:         1,
			Subsample:      0.8,
			ColSample:      0.8,
			Seed:           42,
		},
		LeafWise: BoostConfig{
			Trees:          200,
			LearningRate:   0.05,
			NumLeaves:      31,
			MinChildWeight: 1,
			Lambda:         5,
			Subsample:      0.8,
			ColSample:      0.8,
			Seed:           43,
		},
		Forest: ForestConfig{
			Trees:           100,
			MaxDepth:        12,
			MinSamplesSplit: 10,
			MinSamplesLeaf:  5,
			Seed:            44,
		},
		VotingWeights: [3]float64{2, 2, 1},
	}
}

// Prediction is the scored output for one customer row
type Prediction struct {
	CustomerID       string  `json:"customer_id"`
	ChurnProbability float64 `json:"churn_probability"`
	RiskScore        int     `json:"risk_score"`
	RiskLevel        string  `json:"risk_level"`
	PredictedChurn   bool    `json:"predicted_churn"`
}

// ChurnModel is the soft-voting ensemble of the three base learners.
// After Fit the model is immutable and safe for concurrent scoring.
type ChurnModel struct {
	config       Config
	featureNames []string

	depthWise *GradientBoosting
	leafWise  *GradientBoosting
	forest    *RandomForest
	explainer *Explainer

	fitted bool
}

// New creates an unfitted churn model
func New(cfg Config) *ChurnModel {
	return &ChurnModel{config: cfg}
}

// FeatureNames returns the feature ordering the model was trained on
func (m *ChurnModel) FeatureNames() []string {
	return m.featureNames
}

// Fitted reports whether Fit has run
func (m *ChurnModel) Fitted() bool {
	return m.fitted
}

// Explainer returns the fitted explainer, or nil before Fit
func (m *ChurnModel) Explainer() *Explainer {
	return m.explainer
}

// Fit trains the ensemble. Training data goes through the two-stage
// resampling pipeline first; the forest trains on the resampled set as well
// but additionally carries balanced class weights.
func (m *ChurnModel) Fit(t *features.Table, y []int) error {
	if len(t.Rows) == 0 {
		return errors.New("empty training set")
	}
	if len(t.Rows) != len(y) {
		return fmt.Errorf("feature table has %d rows but %d labels", len(t.Rows), len(y))
	}
	if err := checkNoNaN(t); err != nil {
		return err
	}

	m.featureNames = append([]string(nil), t.Columns...)

	labels := make([]float64, len(y))
	for i, v := range y {
		if v != 0 {
			labels[i] = 1
		}
	}

	X, yb := resample(t.Rows, labels, m.config.DepthWise.Seed)

	log.Println("🚀 Training churn ensemble...")

	log.Println("   [1/3] Training depth-wise boosted trees...")
	m.depthWise = NewGradientBoosting(m.config.DepthWise)
	m.depthWise.Fit(X, yb)

	log.Println("   [2/3] Training leaf-wise boosted trees...")
	m.leafWise = NewGradientBoosting(m.config.LeafWise)
	m.leafWise.Fit(X, yb)

	log.Println("   [3/3] Training random forest...")
	m.forest = NewRandomForest(m.config.Forest)
	m.forest.Fit(X, yb)

	m.explainer = newExplainer(m.depthWise, m.featureNames)
	m.fitted = true
	log.Println("✅ Ensemble training completed")
	return nil
}

// PredictProba returns the ensemble churn probability per row
func (m *ChurnModel) PredictProba(t *features.Table) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := m.checkSchema(t); err != nil {
		return nil, err
	}
	if err := checkNoNaN(t); err != nil {
		return nil, err
	}

	w := m.config.VotingWeights
	wSum := w[0] + w[1] + w[2]
	if wSum == 0 {
		return nil, errors.New("voting weights sum to zero")
	}

	probs := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		p := w[0]*m.depthWise.PredictProba(row) +
			w[1]*m.leafWise.PredictProba(row) +
			w[2]*m.forest.PredictProba(row)
		probs[i] = p / wSum
	}
	return probs, nil
}

// PredictWithScore returns probability, risk score, risk level and the
// predicted label per customer row
func (m *ChurnModel) PredictWithScore(t *features.Table) ([]Prediction, error) {
	probs, err := m.PredictProba(t)
	if err != nil {
		return nil, err
	}

	preds := make([]Prediction, len(probs))
	for i, p := range probs {
		score := RiskScoreFromProba(p)
		customerID := ""
		if i < len(t.CustomerIDs) {
			customerID = t.CustomerIDs[i]
		}
		preds[i] = Prediction{
			CustomerID:       customerID,
			ChurnProbability: p,
			RiskScore:        score,
			RiskLevel:        RiskLevelForScore(score),
			PredictedChurn:   p >= 0.5,
		}
	}
	return preds, nil
}

// Explain delegates to the fitted explainer (per-customer mode when
// rowIndex >= 0, global importance otherwise)
func (m *ChurnModel) Explain(t *features.Table, rowIndex int, topN int) (*Explanation, error) {
	if !m.fitted || m.explainer == nil {
		return nil, ErrNotFitted
	}
	if err := m.checkSchema(t); err != nil {
		return nil, err
	}
	return m.explainer.ExplainRow(t, rowIndex, topN)
}

// Evaluate computes AUC, precision, recall and F1 against held-out labels
func (m *ChurnModel) Evaluate(t *features.Table, y []int) (*Metrics, error) {
	if len(t.Rows) != len(y) {
		return nil, fmt.Errorf("feature table has %d rows but %d labels", len(t.Rows), len(y))
	}
	probs, err := m.PredictProba(t)
	if err != nil {
		return nil, err
	}

	labels := make([]float64, len(y))
	for i, v := range y {
		if v != 0 {
			labels[i] = 1
		}
	}

	metrics := &Metrics{AUC: rocAUC(probs, labels)}
	metrics.Precision, metrics.Recall, metrics.F1 = classificationMetrics(probs, labels)
	return metrics, nil
}

// checkSchema enforces the training feature contract: the exact column set
// in the exact order
func (m *ChurnModel) checkSchema(t *features.Table) error {
	if len(t.Columns) != len(m.featureNames) {
		return fmt.Errorf("feature count mismatch: model trained on %d features, got %d",
			len(m.featureNames), len(t.Columns))
	}
	for i, c := range t.Columns {
		if c != m.featureNames[i] {
			return fmt.Errorf("feature mismatch at position %d: trained on %q, got %q",
				i, m.featureNames[i], c)
		}
	}
	return nil
}

// checkNoNaN rejects un-imputed input before it can poison a prediction
func checkNoNaN(t *features.Table) error {
	for i, row := range t.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("non-finite value at row %d column %q: imputation must run before scoring", i, t.Columns[j])
			}
		}
	}
	return nil
}

// ============================================================================
// Persistence
// ============================================================================

// artifact is the single opaque blob the model serializes to: ensemble
// configuration, all three base learners, the feature ordering and the
// explainer state travel together so a reloaded model reproduces the original
// probabilities exactly.
type artifact struct {
	Config       Config
	FeatureNames []string
	DepthWise    *GradientBoosting
	LeafWise     *GradientBoosting
	Forest       *RandomForest
}

// Save writes the fitted model atomically (temp file + rename)
func (m *ChurnModel) Save(path string) error {
	if !m.fitted {
		return ErrNotFitted
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	err = enc.Encode(&artifact{
		Config:       m.config,
		FeatureNames: m.featureNames,
		DepthWise:    m.depthWise,
		LeafWise:     m.leafWise,
		Forest:       m.forest,
	})
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	log.Printf("✅ Model saved to %s", path)
	return nil
}

// Load reads a model artifact from disk. Errors are surfaced to the caller,
// never masked.
func Load(path string) (*ChurnModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	var a artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode model file %s: %w", path, err)
	}
	if a.DepthWise == nil || a.LeafWise == nil || a.Forest == nil || len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("model file %s is incomplete", path)
	}

	m := &ChurnModel{
		config:       a.Config,
		featureNames: a.FeatureNames,
		depthWise:    a.DepthWise,
		leafWise:     a.LeafWise,
		forest:       a.Forest,
		fitted:       true,
	}
	m.explainer = newExplainer(m.depthWise, m.featureNames)

	log.Printf("✅ Model loaded from %s (%d features)", path, len(a.FeatureNames))
	return m, nil
}
