package features

import (
	"fmt"
	"math"
	"testing"
	"time"

	models "churnguard/database/models_pkg"
)

var refDate = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func customer(id string, joinedMonthsAgo int) models.Customer {
	return models.Customer{
		CustomerID:   id,
		JoinDate:     refDate.AddDate(0, -joinedMonthsAgo, 0),
		Age:          intPtr(40),
		AnnualIncome: intPtr(50000000),
		CreditScore:  intPtr(700),
	}
}

func txn(customerID string, daysAgo int, amount int64, category, paymentMethod string) models.Transaction {
	return models.Transaction{
		TransactionID:   fmt.Sprintf("%s-%d", customerID, daysAgo),
		CustomerID:      customerID,
		TransactionDate: refDate.AddDate(0, 0, -daysAgo),
		Amount:          amount,
		Category:        category,
		PaymentMethod:   paymentMethod,
		Channel:         "online",
	}
}

func TestTransformZeroTransactions(t *testing.T) {
	e := NewEngineer()
	customers := []models.Customer{customer("C001", 24)}

	table := e.Transform(customers, nil, refDate)

	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	if table.Stages[0] != StageInactive {
		t.Errorf("expected stage %s, got %s", StageInactive, table.Stages[0])
	}

	checks := map[string]float64{
		"recency_days":        RecencySentinel,
		"frequency_total":     0,
		"monetary_total":      0,
		"monetary_avg":        0,
		"diversity_score":     0,
		"txn_count_90d":       0,
		"weekend_ratio":       0,
		"days_since_last_txn": RecencySentinel,
	}
	for col, want := range checks {
		got, err := table.Value(0, col)
		if err != nil {
			t.Fatalf("missing column %s: %v", col, err)
		}
		if got != want {
			t.Errorf("%s: expected %v, got %v", col, want, got)
		}
	}

	// Category shares of an empty history are zero, not NaN
	for _, c := range DefaultCategories {
		got, _ := table.Value(0, "cat_"+c+"_share")
		if got != 0 {
			t.Errorf("cat_%s_share: expected 0, got %v", c, got)
		}
	}
}

func TestTransformNoNaN(t *testing.T) {
	e := NewEngineer()

	// Missing demographics on the second customer must be imputed
	withMissing := customer("C002", 6)
	withMissing.Age = nil
	withMissing.AnnualIncome = nil
	withMissing.CreditScore = nil

	customers := []models.Customer{customer("C001", 24), withMissing, customer("C003", 1)}
	transactions := []models.Transaction{
		txn("C001", 5, 50000, "식음료", "일시불"),
		txn("C001", 40, 120000, "쇼핑", "할부"),
		txn("C003", 2, 30000, "교통", "일시불"),
	}

	table := e.Transform(customers, transactions, refDate)

	for i, row := range table.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("row %d column %s: got %v", i, table.Columns[j], v)
			}
		}
	}

	// Median imputation pulls from the remaining customers
	age, _ := table.Value(1, "age")
	if age != 40 {
		t.Errorf("imputed age: expected 40, got %v", age)
	}
}

func TestRFMScoreMonotonic(t *testing.T) {
	e := NewEngineer()

	// Five customers with strictly increasing spend and strictly worsening
	// recency. m_score must not decrease with spend, r_score must not
	// increase with staleness.
	var customers []models.Customer
	var transactions []models.Transaction
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("C%03d", i)
		customers = append(customers, customer(id, 24))
		transactions = append(transactions, txn(id, 1+i*30, int64(10000*(i+1)), "쇼핑", "일시불"))
	}

	table := e.Transform(customers, transactions, refDate)

	for i := 1; i < 5; i++ {
		mPrev, _ := table.Value(i-1, "m_score")
		mCur, _ := table.Value(i, "m_score")
		if mCur < mPrev {
			t.Errorf("m_score decreased with spend: row %d %v -> %v", i, mPrev, mCur)
		}

		rPrev, _ := table.Value(i-1, "r_score")
		rCur, _ := table.Value(i, "r_score")
		if rCur > rPrev {
			t.Errorf("r_score increased with staleness: row %d %v -> %v", i, rPrev, rCur)
		}
	}
}

func TestLifecycleStages(t *testing.T) {
	tests := []struct {
		name          string
		monthsAgo     int
		txnDaysAgo    int // -1 for no transactions
		expectedStage string
	}{
		{"new customer", 2, 5, StageOnboarding},
		{"first year", 6, 5, StageGrowth},
		{"tenured and active", 24, 10, StageMaturity},
		{"tenured but silent", 24, 90, StageAtRisk},
		{"no history", 24, -1, StageInactive},
	}

	e := NewEngineer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customers := []models.Customer{customer("C001", tt.monthsAgo)}
			var transactions []models.Transaction
			if tt.txnDaysAgo >= 0 {
				transactions = append(transactions, txn("C001", tt.txnDaysAgo, 10000, "식음료", "일시불"))
			}

			table := e.Transform(customers, transactions, refDate)
			if table.Stages[0] != tt.expectedStage {
				t.Errorf("expected stage %s, got %s", tt.expectedStage, table.Stages[0])
			}

			code, _ := table.Value(0, "lifecycle_stage_code")
			if code != stageCodes[tt.expectedStage] {
				t.Errorf("expected stage code %v, got %v", stageCodes[tt.expectedStage], code)
			}
		})
	}
}

func TestTrendRatio(t *testing.T) {
	e := NewEngineer()
	customers := []models.Customer{customer("C001", 24)}

	// 2 transactions in the last 90 days, 3 in the 90 days before that
	transactions := []models.Transaction{
		txn("C001", 10, 10000, "식음료", "일시불"),
		txn("C001", 80, 10000, "식음료", "일시불"),
		txn("C001", 100, 10000, "식음료", "일시불"),
		txn("C001", 130, 10000, "식음료", "일시불"),
		txn("C001", 170, 10000, "식음료", "일시불"),
	}

	table := e.Transform(customers, transactions, refDate)

	got, _ := table.Value(0, "trend_ratio")
	want := 2.0 / 4.0 // count90 / (countPrior90 + 1)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("trend_ratio: expected %v, got %v", want, got)
	}

	count180, _ := table.Value(0, "txn_count_180d")
	if count180 != 5 {
		t.Errorf("txn_count_180d: expected 5, got %v", count180)
	}
}

func TestColumnOrderStable(t *testing.T) {
	e := NewEngineer()
	table := e.Transform([]models.Customer{customer("C001", 12)}, nil, refDate)

	cols := e.ColumnNames()
	if len(table.Columns) != len(cols) {
		t.Fatalf("expected %d columns, got %d", len(cols), len(table.Columns))
	}
	for i, c := range cols {
		if table.Columns[i] != c {
			t.Errorf("column %d: expected %s, got %s", i, c, table.Columns[i])
		}
	}
	if len(table.Rows[0]) != len(cols) {
		t.Errorf("row width %d does not match column count %d", len(table.Rows[0]), len(cols))
	}

	if idx := table.ColumnIndex("recency_days"); idx != 3 {
		t.Errorf("recency_days: expected index 3, got %d", idx)
	}
	if idx := table.ColumnIndex("no_such_column"); idx != -1 {
		t.Errorf("unknown column: expected -1, got %d", idx)
	}
}
