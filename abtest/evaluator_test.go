package abtest

import (
	"errors"
	"testing"
	"time"

	"churnguard/database"
)

var evalTime = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store
type fakeStore struct {
	tests  map[int64]*database.ABTest
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{tests: make(map[int64]*database.ABTest), nextID: 1}
}

func (s *fakeStore) SaveABTest(test *database.ABTest) error {
	if test.ID == 0 {
		test.ID = s.nextID
		s.nextID++
	}
	saved := *test
	s.tests[test.ID] = &saved
	return nil
}

func (s *fakeStore) GetABTestByID(id int64) (*database.ABTest, error) {
	stored, ok := s.tests[id]
	if !ok {
		return nil, database.NewNotFoundErrorWithID("ab test", id)
	}
	test := *stored
	return &test, nil
}

func (s *fakeStore) UpdateABTestVerdict(test *database.ABTest) error {
	if _, ok := s.tests[test.ID]; !ok {
		return database.NewNotFoundErrorWithID("ab test", test.ID)
	}
	saved := *test
	s.tests[test.ID] = &saved
	return nil
}

func TestCreateDerivesGroupSizes(t *testing.T) {
	store := newFakeStore()
	evaluator := NewEvaluator(store)

	test := &database.ABTest{
		TestName:   "리텐션 쿠폰 캠페인",
		SampleSize: 5000,
		SplitRatio: 0.5,
	}
	if err := evaluator.Create(test); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if test.GroupASize != 2500 || test.GroupBSize != 2500 {
		t.Errorf("group sizes: expected 2500/2500, got %d/%d", test.GroupASize, test.GroupBSize)
	}
	if test.Status != StatusPreparing {
		t.Errorf("status: expected %s, got %s", StatusPreparing, test.Status)
	}
	if test.ID == 0 {
		t.Error("Create must assign an ID")
	}
}

func TestCreateValidation(t *testing.T) {
	evaluator := NewEvaluator(newFakeStore())

	tests := []struct {
		name string
		test database.ABTest
	}{
		{"empty name", database.ABTest{SampleSize: 1000, SplitRatio: 0.5}},
		{"zero sample", database.ABTest{TestName: "t", SampleSize: 0, SplitRatio: 0.5}},
		{"split ratio zero", database.ABTest{TestName: "t", SampleSize: 1000, SplitRatio: 0}},
		{"split ratio one", database.ABTest{TestName: "t", SampleSize: 1000, SplitRatio: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *database.ValidationError
			if err := evaluator.Create(&tt.test); !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestEvaluateSealsVerdict(t *testing.T) {
	store := newFakeStore()
	evaluator := NewEvaluator(store)

	test := &database.ABTest{TestName: "t", SampleSize: 5000, SplitRatio: 0.5}
	if err := evaluator.Create(test); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := evaluator.Evaluate(test.ID, 0.10, 0.16, evalTime)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.IsSignificant || result.Winner != WinnerB {
		t.Errorf("expected significant B win, got significant=%v winner=%s",
			result.IsSignificant, result.Winner)
	}

	stored, err := store.GetABTestByID(test.ID)
	if err != nil {
		t.Fatalf("GetABTestByID failed: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("status: expected %s, got %s", StatusCompleted, stored.Status)
	}
	if stored.AnalyzedAt == nil || !stored.AnalyzedAt.Equal(evalTime) {
		t.Errorf("analyzed at: expected %v, got %v", evalTime, stored.AnalyzedAt)
	}
	if stored.Winner != WinnerB || stored.PValue == nil || stored.Lift == nil {
		t.Errorf("verdict not persisted: winner=%s p=%v lift=%v", stored.Winner, stored.PValue, stored.Lift)
	}
	if stored.GroupAMetricValue == nil || *stored.GroupAMetricValue != 0.10 {
		t.Errorf("group A metric not persisted: %v", stored.GroupAMetricValue)
	}
}

func TestEvaluateUnknownTest(t *testing.T) {
	evaluator := NewEvaluator(newFakeStore())

	var notFound *database.NotFoundError
	if _, err := evaluator.Evaluate(42, 0.1, 0.2, evalTime); !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestEvaluateRejectsBadRates(t *testing.T) {
	store := newFakeStore()
	evaluator := NewEvaluator(store)

	test := &database.ABTest{TestName: "t", SampleSize: 1000, SplitRatio: 0.5}
	if err := evaluator.Create(test); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var verr *database.ValidationError
	if _, err := evaluator.Evaluate(test.ID, 1.5, 0.2, evalTime); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	stored, _ := store.GetABTestByID(test.ID)
	if stored.Status != StatusPreparing {
		t.Errorf("failed evaluation must not change status, got %s", stored.Status)
	}
}
