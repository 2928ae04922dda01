package app

import (
	"errors"
	"log"
	"time"

	"churnguard/database"
	"churnguard/database/analytics"
	"churnguard/features"
	"churnguard/model"
	"churnguard/retention"
)

// MeasurementTracker sweeps retention records whose measurement window has
// elapsed and closes them with a fresh after-snapshot. The close goes through
// the tracker's compare-and-set, so running multiple instances is safe.
type MeasurementTracker struct {
	repo      *database.CustomerRepository
	analytics *analytics.Repository
	tracker   *retention.Tracker
	engineer  *features.Engineer
	model     *model.ChurnModel
	interval  time.Duration
	batchSize int
	done      chan bool
}

// NewMeasurementTracker creates a new measurement tracker
func NewMeasurementTracker(repo *database.CustomerRepository, analyticsRepo *analytics.Repository, tracker *retention.Tracker, engineer *features.Engineer, m *model.ChurnModel, interval time.Duration, batchSize int) *MeasurementTracker {
	return &MeasurementTracker{
		repo:      repo,
		analytics: analyticsRepo,
		tracker:   tracker,
		engineer:  engineer,
		model:     m,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan bool),
	}
}

// Start begins the sweep loop
func (mt *MeasurementTracker) Start() {
	log.Println("📋 Measurement Tracker started")

	ticker := time.NewTicker(mt.interval)
	defer ticker.Stop()

	// Initial run
	mt.sweep()

	for {
		select {
		case <-ticker.C:
			mt.sweep()
		case <-mt.done:
			log.Println("📋 Measurement Tracker stopped")
			return
		}
	}
}

// Stop stops the sweep loop
func (mt *MeasurementTracker) Stop() {
	mt.done <- true
}

// sweep drains one batch of overdue records
func (mt *MeasurementTracker) sweep() {
	now := time.Now()
	records, err := mt.tracker.Pending(now, mt.batchSize)
	if err != nil {
		log.Printf("⚠️ Measurement sweep failed to list pending records: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}

	log.Printf("📋 Measuring %d overdue retention records...", len(records))

	closed := 0
	skipped := 0
	for i := range records {
		record := &records[i]
		obs, err := mt.observe(record.CustomerID, now)
		if err != nil {
			log.Printf("⚠️ Failed to measure record %d (%s): %v", record.ID, record.CustomerID, err)
			continue
		}

		if err := mt.tracker.Close(record, *obs, now); err != nil {
			if errors.Is(err, retention.ErrAlreadyMeasured) {
				// Another instance closed it between our read and write
				skipped++
				continue
			}
			log.Printf("⚠️ Failed to close record %d: %v", record.ID, err)
			continue
		}
		closed++
	}

	log.Printf("✅ Measurement sweep complete: %d closed, %d raced, %d failed",
		closed, skipped, len(records)-closed-skipped)
}

// observe builds the after-window snapshot for one customer by re-scoring
// their current transaction history
func (mt *MeasurementTracker) observe(customerID string, now time.Time) (*retention.Observation, error) {
	customer, err := mt.repo.GetCustomerByID(customerID)
	if err != nil {
		return nil, err
	}

	transactions, err := mt.repo.GetTransactionsByCustomer(customerID)
	if err != nil {
		return nil, err
	}

	table := mt.engineer.Transform([]database.Customer{*customer}, transactions, now)
	predictions, err := mt.model.PredictWithScore(table)
	if err != nil {
		return nil, err
	}
	pred := predictions[0]

	afterAmount, err := mt.analytics.MonthlySpend(customerID, 30, now)
	if err != nil {
		return nil, err
	}

	obs := &retention.Observation{
		AfterRiskScore:     pred.RiskScore,
		AfterChurnProb:     pred.ChurnProbability,
		AfterMonthlyAmount: afterAmount,
		HasChurned:         customer.Churned == 1,
	}
	if obs.HasChurned {
		churnDate := now
		obs.ChurnDate = &churnDate
	}
	return obs, nil
}
