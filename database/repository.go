package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CustomerRepository handles database operations for customers, transactions,
// retention records and A/B tests
type CustomerRepository struct {
	db *Database
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *Database) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// InitSchema performs auto-migration for all engine tables
func (r *CustomerRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&Customer{},
		&Transaction{},
		&RetentionRecord{},
		&ABTest{},
		&ModelPerformance{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Partial index backing the pending-measurement work queue
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_retention_pending
		ON retention_records (measurement_end_date)
		WHERE calculated_at IS NULL
	`)

	fmt.Println("✅ Database schema initialized")
	return nil
}

// ============================================================================
// Customers & Transactions
// ============================================================================

// GetAllCustomers returns every customer profile
func (r *CustomerRepository) GetAllCustomers() ([]Customer, error) {
	var customers []Customer
	if err := r.db.db.Order("customer_id").Find(&customers).Error; err != nil {
		return nil, WrapDBError("GetAllCustomers", err)
	}
	return customers, nil
}

// GetCustomerByID returns a single customer or NotFoundError
func (r *CustomerRepository) GetCustomerByID(customerID string) (*Customer, error) {
	var customer Customer
	err := r.db.db.Where("customer_id = ?", customerID).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("customer", customerID)
		}
		return nil, WrapDBError("GetCustomerByID", err)
	}
	return &customer, nil
}

// CustomerExists reports whether a customer row exists
func (r *CustomerRepository) CustomerExists(customerID string) (bool, error) {
	var count int64
	err := r.db.db.Model(&Customer{}).Where("customer_id = ?", customerID).Count(&count).Error
	if err != nil {
		return false, WrapDBError("CustomerExists", err)
	}
	return count > 0, nil
}

// GetAllTransactions returns the full transaction history, oldest first
func (r *CustomerRepository) GetAllTransactions() ([]Transaction, error) {
	var txns []Transaction
	if err := r.db.db.Order("transaction_date").Find(&txns).Error; err != nil {
		return nil, WrapDBError("GetAllTransactions", err)
	}
	return txns, nil
}

// GetTransactionsByCustomer returns one customer's transactions, oldest first
func (r *CustomerRepository) GetTransactionsByCustomer(customerID string) ([]Transaction, error) {
	var txns []Transaction
	err := r.db.db.Where("customer_id = ?", customerID).
		Order("transaction_date").Find(&txns).Error
	if err != nil {
		return nil, WrapDBError("GetTransactionsByCustomer", err)
	}
	return txns, nil
}

// SavePrediction writes a materialized prediction back onto the customer row.
// Only the fields the engine computes are touched.
func (r *CustomerRepository) SavePrediction(customerID string, prob float64, riskScore int, riskLevel, lifecycleStage string, at time.Time) error {
	result := r.db.db.Model(&Customer{}).
		Where("customer_id = ?", customerID).
		Updates(map[string]interface{}{
			"churn_probability":    prob,
			"risk_score":           riskScore,
			"risk_level":           riskLevel,
			"lifecycle_stage":      lifecycleStage,
			"last_prediction_date": at,
		})
	if result.Error != nil {
		return WrapDBError("SavePrediction", result.Error)
	}
	if result.RowsAffected == 0 {
		return NewNotFoundErrorWithID("customer", customerID)
	}
	return nil
}

// ============================================================================
// Retention Records
// ============================================================================

// SaveRetentionRecord persists a new PENDING retention record
func (r *CustomerRepository) SaveRetentionRecord(record *RetentionRecord) error {
	if err := r.db.db.Create(record).Error; err != nil {
		return WrapDBError("SaveRetentionRecord", err)
	}
	return nil
}

// GetRetentionRecordByID returns a single retention record or NotFoundError
func (r *CustomerRepository) GetRetentionRecordByID(id int64) (*RetentionRecord, error) {
	var record RetentionRecord
	err := r.db.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("retention record", id)
		}
		return nil, WrapDBError("GetRetentionRecordByID", err)
	}
	return &record, nil
}

// MarkRetentionMeasured persists the PENDING -> MEASURED transition.
// The UPDATE is guarded by calculated_at IS NULL so two closers racing on the
// same record resolve to exactly one winner; the loser gets (false, nil) and
// must treat the record as already measured.
func (r *CustomerRepository) MarkRetentionMeasured(record *RetentionRecord) (bool, error) {
	if record.CalculatedAt == nil {
		return false, NewValidationError("calculated_at", "record has not been closed")
	}

	result := r.db.db.Model(&RetentionRecord{}).
		Where("id = ? AND calculated_at IS NULL", record.ID).
		Updates(map[string]interface{}{
			"after_risk_score":     record.AfterRiskScore,
			"after_churn_prob":     record.AfterChurnProb,
			"after_monthly_amount": record.AfterMonthlyAmount,
			"has_churned":          record.HasChurned,
			"churn_date":           record.ChurnDate,
			"notes":                record.Notes,
			"risk_reduction":       record.RiskReduction,
			"amount_change_rate":   record.AmountChangeRate,
			"is_retention_success": record.IsRetentionSuccess,
			"calculated_at":        record.CalculatedAt,
		})
	if result.Error != nil {
		return false, WrapDBError("MarkRetentionMeasured", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetPendingRetentionRecords returns PENDING records whose measurement window
// has elapsed, oldest overdue first. This is the work queue the measurement
// tracker drains.
func (r *CustomerRepository) GetPendingRetentionRecords(now time.Time, limit int) ([]RetentionRecord, error) {
	var records []RetentionRecord
	q := r.db.db.Where("measurement_end_date <= ? AND calculated_at IS NULL", now).
		Order("measurement_end_date")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, WrapDBError("GetPendingRetentionRecords", err)
	}
	return records, nil
}

// GetMeasuredRetentionRecords returns measured records with action_date on or
// after the cutoff, optionally filtered by action type
func (r *CustomerRepository) GetMeasuredRetentionRecords(cutoff time.Time, actionType string) ([]RetentionRecord, error) {
	var records []RetentionRecord
	q := r.db.db.Where("action_date >= ? AND calculated_at IS NOT NULL", cutoff)
	if actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}
	if err := q.Order("action_date DESC").Find(&records).Error; err != nil {
		return nil, WrapDBError("GetMeasuredRetentionRecords", err)
	}
	return records, nil
}

// GetRetentionHistory returns every retention record for one customer,
// newest action first
func (r *CustomerRepository) GetRetentionHistory(customerID string) ([]RetentionRecord, error) {
	var records []RetentionRecord
	err := r.db.db.Where("customer_id = ?", customerID).
		Order("action_date DESC").Find(&records).Error
	if err != nil {
		return nil, WrapDBError("GetRetentionHistory", err)
	}
	return records, nil
}

// ============================================================================
// A/B Tests
// ============================================================================

// SaveABTest persists a new A/B test definition
func (r *CustomerRepository) SaveABTest(test *ABTest) error {
	if err := r.db.db.Create(test).Error; err != nil {
		return WrapDBError("SaveABTest", err)
	}
	return nil
}

// GetABTestByID returns a single A/B test or NotFoundError
func (r *CustomerRepository) GetABTestByID(id int64) (*ABTest, error) {
	var test ABTest
	err := r.db.db.Where("id = ?", id).First(&test).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("ab test", id)
		}
		return nil, WrapDBError("GetABTestByID", err)
	}
	return &test, nil
}

// UpdateABTestVerdict stores the analysis verdict on an existing test
func (r *CustomerRepository) UpdateABTestVerdict(test *ABTest) error {
	result := r.db.db.Model(&ABTest{}).
		Where("id = ?", test.ID).
		Updates(map[string]interface{}{
			"group_a_metric_value": test.GroupAMetricValue,
			"group_b_metric_value": test.GroupBMetricValue,
			"z_statistic":          test.ZStatistic,
			"p_value":              test.PValue,
			"lift":                 test.Lift,
			"is_significant":       test.IsSignificant,
			"winner":               test.Winner,
			"conclusion":           test.Conclusion,
			"status":               test.Status,
			"analyzed_at":          test.AnalyzedAt,
		})
	if result.Error != nil {
		return WrapDBError("UpdateABTestVerdict", result.Error)
	}
	if result.RowsAffected == 0 {
		return NewNotFoundErrorWithID("ab test", test.ID)
	}
	return nil
}

// ============================================================================
// Model Performance
// ============================================================================

// SaveModelPerformance records the metrics of one training run
func (r *CustomerRepository) SaveModelPerformance(perf *ModelPerformance) error {
	if err := r.db.db.Create(perf).Error; err != nil {
		return WrapDBError("SaveModelPerformance", err)
	}
	return nil
}
