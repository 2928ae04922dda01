// Package retention tracks whether risk-reduction interventions actually
// worked. Each intervention opens a PENDING record with a frozen "before"
// snapshot; once the measurement window has passed, an after-window
// observation closes the record into the terminal MEASURED state exactly
// once. The state machine itself is pure; the persistence boundary supplies
// compare-and-set semantics so racing closers cannot double-count.
package retention

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"churnguard/database"
)

// Measurement period bounds in days
const (
	MinPeriodDays     = 7
	MaxPeriodDays     = 180
	DefaultPeriodDays = 30
)

// ErrAlreadyMeasured is returned when closing a record that has already
// completed measurement. Double closes are rejected, never overwritten:
// re-measuring would double-count the record in aggregate statistics.
var ErrAlreadyMeasured = errors.New("retention record already measured")

// Observation is the after-window measurement an operator (or the
// measurement worker) supplies to close a record
type Observation struct {
	AfterRiskScore     int
	AfterChurnProb     float64
	AfterMonthlyAmount *int64
	HasChurned         bool
	ChurnDate          *time.Time
	Notes              string
}

// Store is the persistence boundary the tracker drives. Implemented by
// database.CustomerRepository.
type Store interface {
	CustomerExists(customerID string) (bool, error)
	SaveRetentionRecord(record *database.RetentionRecord) error
	GetRetentionRecordByID(id int64) (*database.RetentionRecord, error)
	GetRetentionHistory(customerID string) ([]database.RetentionRecord, error)
	MarkRetentionMeasured(record *database.RetentionRecord) (bool, error)
	GetPendingRetentionRecords(now time.Time, limit int) ([]database.RetentionRecord, error)
	GetMeasuredRetentionRecords(cutoff time.Time, actionType string) ([]database.RetentionRecord, error)
}

// Tracker manages the retention record lifecycle
type Tracker struct {
	store         Store
	defaultPeriod int
}

// NewTracker creates a retention tracker over the given store
func NewTracker(store Store) *Tracker {
	return NewTrackerWithPeriod(store, DefaultPeriodDays)
}

// NewTrackerWithPeriod creates a tracker whose default measurement window is
// defaultPeriodDays. Values outside the allowed bounds fall back to
// DefaultPeriodDays.
func NewTrackerWithPeriod(store Store, defaultPeriodDays int) *Tracker {
	if defaultPeriodDays < MinPeriodDays || defaultPeriodDays > MaxPeriodDays {
		defaultPeriodDays = DefaultPeriodDays
	}
	return &Tracker{store: store, defaultPeriod: defaultPeriodDays}
}

// Open creates a new PENDING record for an intervention that just happened.
// A non-positive periodDays selects the tracker's default window. All range
// validation runs before any state is written.
func (t *Tracker) Open(customerID, actionType string, beforeRiskScore int, beforeChurnProb float64, beforeMonthlyAmount *int64, periodDays int, now time.Time) (*database.RetentionRecord, error) {
	if periodDays <= 0 {
		periodDays = t.defaultPeriod
	}
	if beforeRiskScore < 0 || beforeRiskScore > 100 {
		return nil, database.NewValidationErrorWithValue("before_risk_score", "must be in [0,100]", beforeRiskScore)
	}
	if beforeChurnProb < 0 || beforeChurnProb > 1 {
		return nil, database.NewValidationErrorWithValue("before_churn_prob", "must be in [0,1]", beforeChurnProb)
	}
	if periodDays < MinPeriodDays || periodDays > MaxPeriodDays {
		return nil, database.NewValidationErrorWithValue("measurement_period_days",
			fmt.Sprintf("must be in [%d,%d]", MinPeriodDays, MaxPeriodDays), periodDays)
	}

	exists, err := t.store.CustomerExists(customerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, database.NewNotFoundErrorWithID("customer", customerID)
	}

	record := &database.RetentionRecord{
		CustomerID:            customerID,
		ActionType:            actionType,
		ActionDate:            now,
		BeforeRiskScore:       beforeRiskScore,
		BeforeChurnProb:       beforeChurnProb,
		BeforeMonthlyAmount:   beforeMonthlyAmount,
		MeasurementStartDate:  now,
		MeasurementEndDate:    now.AddDate(0, 0, periodDays),
		MeasurementPeriodDays: periodDays,
	}

	if err := t.store.SaveRetentionRecord(record); err != nil {
		return nil, err
	}

	log.Printf("📋 Retention record %d opened for %s (%s), measurement until %s",
		record.ID, customerID, actionType, record.MeasurementEndDate.Format("2006-01-02"))
	return record, nil
}

// Close transitions a record PENDING -> MEASURED and persists the transition
// through the store's compare-and-set update. Closing before the measurement
// window has elapsed is permitted — the window is advisory for the pending
// queue, not enforced here.
func (t *Tracker) Close(record *database.RetentionRecord, obs Observation, now time.Time) error {
	if err := CloseRecord(record, obs, now); err != nil {
		return err
	}

	applied, err := t.store.MarkRetentionMeasured(record)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent closer won the race; this record is already measured
		return ErrAlreadyMeasured
	}

	log.Printf("📋 Retention record %d measured: success=%v risk_reduction=%d",
		record.ID, *record.IsRetentionSuccess, *record.RiskReduction)
	return nil
}

// CloseByID loads a record by its identifier and closes it. Records that are
// already measured return ErrAlreadyMeasured without touching the store.
func (t *Tracker) CloseByID(id int64, obs Observation, now time.Time) (*database.RetentionRecord, error) {
	record, err := t.store.GetRetentionRecordByID(id)
	if err != nil {
		return nil, err
	}
	if err := t.Close(record, obs, now); err != nil {
		return nil, err
	}
	return record, nil
}

// History returns every retention record for a customer, newest first,
// measured or not
func (t *Tracker) History(customerID string) ([]database.RetentionRecord, error) {
	return t.store.GetRetentionHistory(customerID)
}

// CloseRecord derives the measurement outcome on the record in memory. It is
// the pure half of Close, usable without a store.
func CloseRecord(record *database.RetentionRecord, obs Observation, now time.Time) error {
	if record.Measured() {
		return ErrAlreadyMeasured
	}
	if obs.AfterRiskScore < 0 || obs.AfterRiskScore > 100 {
		return database.NewValidationErrorWithValue("after_risk_score", "must be in [0,100]", obs.AfterRiskScore)
	}
	if obs.AfterChurnProb < 0 || obs.AfterChurnProb > 1 {
		return database.NewValidationErrorWithValue("after_churn_prob", "must be in [0,1]", obs.AfterChurnProb)
	}

	record.AfterRiskScore = &obs.AfterRiskScore
	record.AfterChurnProb = &obs.AfterChurnProb
	record.AfterMonthlyAmount = obs.AfterMonthlyAmount
	record.HasChurned = obs.HasChurned
	record.ChurnDate = obs.ChurnDate
	if obs.Notes != "" {
		record.Notes = obs.Notes
	}

	riskReduction := record.BeforeRiskScore - obs.AfterRiskScore
	record.RiskReduction = &riskReduction

	// amount_change_rate stays nil when either monthly amount is missing, so
	// aggregate averages exclude the record instead of biasing toward zero
	record.AmountChangeRate = nil
	if record.BeforeMonthlyAmount != nil && *record.BeforeMonthlyAmount != 0 && obs.AfterMonthlyAmount != nil {
		rate := float64(*obs.AfterMonthlyAmount-*record.BeforeMonthlyAmount) /
			float64(*record.BeforeMonthlyAmount) * 100
		record.AmountChangeRate = &rate
	}

	// Success requires no churn AND (risk improved OR spend held within -10%).
	// The OR is deliberate: risk improvement and spend stability are
	// alternative signals of retained value. An undefined amount change counts
	// as stable spend.
	stableSpend := record.AmountChangeRate == nil || *record.AmountChangeRate >= -10
	success := !obs.HasChurned && (riskReduction > 0 || stableSpend)
	record.IsRetentionSuccess = &success

	calculatedAt := now
	record.CalculatedAt = &calculatedAt
	return nil
}

// Pending returns the PENDING records whose measurement window has elapsed,
// oldest overdue first — the work queue an external scheduler drains
func (t *Tracker) Pending(now time.Time, limit int) ([]database.RetentionRecord, error) {
	return t.store.GetPendingRetentionRecords(now, limit)
}

// ActionTypeStats aggregates outcomes for one action type
type ActionTypeStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
}

// StatsReport aggregates measured retention outcomes over a trailing window
type StatsReport struct {
	PeriodDays           int                        `json:"period_days"`
	TotalRecords         int                        `json:"total_records"`
	SuccessfulRetentions int                        `json:"successful_retentions"`
	ChurnedCustomers     int                        `json:"churned_customers"`
	SuccessRate          float64                    `json:"retention_success_rate"`
	ChurnRate            float64                    `json:"churn_rate"`
	AvgRiskReduction     float64                    `json:"average_risk_reduction"`
	AvgAmountChangeRate  float64                    `json:"average_amount_change_rate"`
	ByActionType         map[string]ActionTypeStats `json:"by_action_type"`
}

// Stats aggregates measured records with action dates inside the trailing
// window, optionally filtered by action type
func (t *Tracker) Stats(periodDays int, actionType string, now time.Time) (*StatsReport, error) {
	cutoff := now.AddDate(0, 0, -periodDays)
	records, err := t.store.GetMeasuredRetentionRecords(cutoff, actionType)
	if err != nil {
		return nil, err
	}
	report := Aggregate(records)
	report.PeriodDays = periodDays
	return report, nil
}

// Aggregate computes the stats report over a set of measured records. It is
// the pure half of Stats.
func Aggregate(records []database.RetentionRecord) *StatsReport {
	report := &StatsReport{ByActionType: make(map[string]ActionTypeStats)}
	if len(records) == 0 {
		return report
	}

	var riskSum float64
	var amountSum float64
	amountCount := 0

	for _, r := range records {
		report.TotalRecords++
		if r.IsRetentionSuccess != nil && *r.IsRetentionSuccess {
			report.SuccessfulRetentions++
		}
		if r.HasChurned {
			report.ChurnedCustomers++
		}
		if r.RiskReduction != nil {
			riskSum += float64(*r.RiskReduction)
		}
		// Only defined amount changes enter the average
		if r.AmountChangeRate != nil {
			amountSum += *r.AmountChangeRate
			amountCount++
		}

		stats := report.ByActionType[r.ActionType]
		stats.Total++
		if r.IsRetentionSuccess != nil && *r.IsRetentionSuccess {
			stats.Successful++
		}
		report.ByActionType[r.ActionType] = stats
	}

	total := float64(report.TotalRecords)
	report.SuccessRate = round1(float64(report.SuccessfulRetentions) / total * 100)
	report.ChurnRate = round1(float64(report.ChurnedCustomers) / total * 100)
	report.AvgRiskReduction = round1(riskSum / total)
	if amountCount > 0 {
		report.AvgAmountChangeRate = round1(amountSum / float64(amountCount))
	}

	for at, stats := range report.ByActionType {
		stats.SuccessRate = round1(float64(stats.Successful) / float64(stats.Total) * 100)
		report.ByActionType[at] = stats
	}
	return report
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
