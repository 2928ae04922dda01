package abtest

import (
	"log"
	"time"

	"churnguard/database"
)

// Test lifecycle statuses
const (
	StatusPreparing = "준비중"
	StatusRunning   = "진행중"
	StatusAnalyzing = "분석중"
	StatusCompleted = "완료"
)

// Store is the persistence boundary the evaluator drives. Implemented by
// database.CustomerRepository.
type Store interface {
	SaveABTest(test *database.ABTest) error
	GetABTestByID(id int64) (*database.ABTest, error)
	UpdateABTestVerdict(test *database.ABTest) error
}

// Evaluator manages the A/B test lifecycle: campaign tests are registered up
// front with a planned split, and once both groups have observed conversion
// rates the test is evaluated and sealed with a verdict.
type Evaluator struct {
	store Store
}

// NewEvaluator creates an evaluator over the given store
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// Create registers a new test in the preparing state. Group sizes are derived
// from the sample size and split ratio: the B group receives splitRatio of the
// sample.
func (e *Evaluator) Create(test *database.ABTest) error {
	if test.TestName == "" {
		return database.NewValidationError("test_name", "must not be empty")
	}
	if test.SampleSize <= 0 {
		return database.NewValidationErrorWithValue("sample_size", "must be positive", test.SampleSize)
	}
	if test.SplitRatio <= 0 || test.SplitRatio >= 1 {
		return database.NewValidationErrorWithValue("split_ratio", "must be in (0,1)", test.SplitRatio)
	}

	test.GroupASize = int(float64(test.SampleSize) * (1 - test.SplitRatio))
	test.GroupBSize = int(float64(test.SampleSize) * test.SplitRatio)
	test.Status = StatusPreparing

	if err := e.store.SaveABTest(test); err != nil {
		return err
	}

	log.Printf("📋 A/B test %d created: %s (%d/%d split)",
		test.ID, test.TestName, test.GroupASize, test.GroupBSize)
	return nil
}

// Evaluate runs the significance test on a registered test's observed group
// conversion rates, seals the verdict onto the record and marks it completed.
func (e *Evaluator) Evaluate(id int64, rateA, rateB float64, now time.Time) (*Result, error) {
	test, err := e.store.GetABTestByID(id)
	if err != nil {
		return nil, err
	}

	result, err := Compare(rateA, test.GroupASize, rateB, test.GroupBSize)
	if err != nil {
		return nil, err
	}

	result.Verdict(test)
	test.Status = StatusCompleted
	test.AnalyzedAt = &now

	if err := e.store.UpdateABTestVerdict(test); err != nil {
		return nil, err
	}

	log.Printf("📊 A/B test %d evaluated: winner=%s p=%.4f lift=%.2f%%",
		test.ID, result.Winner, result.PValue, result.Lift)
	return result, nil
}
