package models

import "time"

// Customer represents a card customer profile.
// The engine reads the profile and transaction history, and writes back only
// the fields it computes: churn probability, risk score/level, lifecycle stage
// and the prediction timestamp.
//
// Key Fields:
//   - CustomerID: business identifier from the card system (primary key)
//   - JoinDate: card membership start, drives lifecycle staging
//   - Churned: ground-truth churn flag used as the training label
//   - ChurnProbability/RiskScore/RiskLevel: last materialized prediction
type Customer struct {
	CustomerID   string    `gorm:"size:50;primaryKey" json:"customer_id"`
	JoinDate     time.Time `gorm:"not null;index" json:"join_date"`
	Age          *int      `json:"age,omitempty"`
	Gender       string    `gorm:"size:1" json:"gender,omitempty"`
	Region       string    `gorm:"size:50" json:"region,omitempty"`
	Occupation   string    `gorm:"size:50" json:"occupation,omitempty"`
	AnnualIncome *int      `json:"annual_income,omitempty"`
	CreditScore  *int      `json:"credit_score,omitempty"`
	CardType     string    `gorm:"size:20" json:"card_type,omitempty"`

	LifecycleStage string `gorm:"size:20;index" json:"lifecycle_stage,omitempty"`
	Churned        int    `gorm:"default:0;index" json:"churned"`

	// Last materialized prediction
	ChurnProbability   *float64   `gorm:"type:decimal(6,5)" json:"churn_probability,omitempty"`
	RiskScore          *int       `json:"risk_score,omitempty"`
	RiskLevel          string     `gorm:"size:20;index" json:"risk_level,omitempty"`
	LastPredictionDate *time.Time `json:"last_prediction_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Customer
func (Customer) TableName() string {
	return "customers"
}

// Transaction represents a single card transaction. Transactions are
// append-only: the engine never updates or deletes them.
//
// Amount is stored in the smallest currency unit (whole won).
type Transaction struct {
	TransactionID   string    `gorm:"size:50;primaryKey" json:"transaction_id"`
	CustomerID      string    `gorm:"size:50;index;not null" json:"customer_id"`
	TransactionDate time.Time `gorm:"index;not null" json:"transaction_date"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Category        string    `gorm:"size:50;index" json:"category,omitempty"`
	PaymentMethod   string    `gorm:"size:20" json:"payment_method,omitempty"`
	Channel         string    `gorm:"size:20" json:"channel,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}

// RetentionRecord tracks whether a retention intervention actually worked.
//
// Lifecycle: created PENDING at intervention time with the "before" snapshot
// frozen in. It transitions to MEASURED exactly once, when the after-window
// observation arrives; the derived fields (RiskReduction, AmountChangeRate,
// IsRetentionSuccess, CalculatedAt) are written in that same update.
//
// Invariant: CalculatedAt is non-nil iff the after-fields are non-nil.
// A record is never re-measured; the close UPDATE is guarded by
// calculated_at IS NULL so concurrent closers resolve to exactly one winner.
type RetentionRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerID string    `gorm:"size:50;index;not null" json:"customer_id"`
	ActionType string    `gorm:"size:50;index;not null" json:"action_type"`
	ActionDate time.Time `gorm:"index;not null" json:"action_date"`

	// Snapshot captured at creation, immutable once measurement starts
	BeforeRiskScore     int     `gorm:"not null" json:"before_risk_score"`
	BeforeChurnProb     float64 `gorm:"type:decimal(6,5);not null" json:"before_churn_prob"`
	BeforeMonthlyAmount *int64  `json:"before_monthly_amount,omitempty"`

	MeasurementStartDate  time.Time `gorm:"not null" json:"measurement_start_date"`
	MeasurementEndDate    time.Time `gorm:"index;not null" json:"measurement_end_date"`
	MeasurementPeriodDays int       `gorm:"not null" json:"measurement_period_days"`

	// After-window observation, nil until measured
	AfterRiskScore     *int       `json:"after_risk_score,omitempty"`
	AfterChurnProb     *float64   `gorm:"type:decimal(6,5)" json:"after_churn_prob,omitempty"`
	AfterMonthlyAmount *int64     `json:"after_monthly_amount,omitempty"`
	HasChurned         bool       `gorm:"default:false" json:"has_churned"`
	ChurnDate          *time.Time `json:"churn_date,omitempty"`
	Notes              string     `gorm:"type:text" json:"notes,omitempty"`

	// Derived at the PENDING -> MEASURED transition
	RiskReduction      *int       `json:"risk_reduction,omitempty"`
	AmountChangeRate   *float64   `gorm:"type:decimal(10,2)" json:"amount_change_rate,omitempty"`
	IsRetentionSuccess *bool      `json:"is_retention_success,omitempty"`
	CalculatedAt       *time.Time `gorm:"index" json:"calculated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for RetentionRecord
func (RetentionRecord) TableName() string {
	return "retention_records"
}

// Measured reports whether the record has completed measurement
func (r *RetentionRecord) Measured() bool {
	return r.CalculatedAt != nil
}

// ABTest stores a two-variant campaign comparison and its analysis verdict.
// The statistical fields (ZStatistic, PValue, Lift, IsSignificant, Winner)
// are recomputed from the two group metrics on every analysis call; only the
// final verdict is persisted.
type ABTest struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TestName      string `gorm:"size:200;not null" json:"test_name"`
	Description   string `gorm:"type:text" json:"description,omitempty"`
	Hypothesis    string `gorm:"type:text" json:"hypothesis,omitempty"`
	TargetSegment string `gorm:"size:100" json:"target_segment,omitempty"`
	PrimaryMetric string `gorm:"size:50" json:"primary_metric,omitempty"`

	SampleSize int     `json:"sample_size"`
	SplitRatio float64 `gorm:"type:decimal(4,2)" json:"split_ratio"`

	GroupAName string `gorm:"size:100" json:"group_a_name,omitempty"`
	GroupBName string `gorm:"size:100" json:"group_b_name,omitempty"`
	GroupASize int    `json:"group_a_size"`
	GroupBSize int    `json:"group_b_size"`

	GroupAMetricValue *float64 `gorm:"type:decimal(10,4)" json:"group_a_metric_value,omitempty"`
	GroupBMetricValue *float64 `gorm:"type:decimal(10,4)" json:"group_b_metric_value,omitempty"`

	ZStatistic    *float64 `gorm:"type:decimal(10,4)" json:"z_statistic,omitempty"`
	PValue        *float64 `gorm:"type:decimal(10,4)" json:"p_value,omitempty"`
	Lift          *float64 `gorm:"type:decimal(10,2)" json:"lift,omitempty"`
	IsSignificant *bool    `json:"is_significant,omitempty"`
	Winner        string   `gorm:"size:10" json:"winner,omitempty"`
	Conclusion    string   `gorm:"type:text" json:"conclusion,omitempty"`

	Status     string     `gorm:"size:20" json:"status,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for ABTest
func (ABTest) TableName() string {
	return "ab_tests"
}

// ModelPerformance records the evaluation metrics of one training run,
// for monitoring model drift across retrains.
type ModelPerformance struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelVersion string `gorm:"size:50;not null" json:"model_version"`

	AUC       float64 `gorm:"type:decimal(6,4)" json:"auc"`
	Precision float64 `gorm:"column:precision_score;type:decimal(6,4)" json:"precision"`
	Recall    float64 `gorm:"type:decimal(6,4)" json:"recall"`
	F1        float64 `gorm:"column:f1_score;type:decimal(6,4)" json:"f1"`

	TrainSize int     `json:"train_size"`
	TestSize  int     `json:"test_size"`
	ChurnRate float64 `gorm:"type:decimal(6,4)" json:"churn_rate"`

	TrainingDate time.Time `json:"training_date"`
	Notes        string    `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for ModelPerformance
func (ModelPerformance) TableName() string {
	return "model_performance"
}
