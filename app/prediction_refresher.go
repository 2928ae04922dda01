package app

import (
	"context"
	"log"
	"time"

	"churnguard/cache"
	"churnguard/database"
	"churnguard/database/analytics"
	"churnguard/features"
	"churnguard/helpers"
	"churnguard/model"
)

// PredictionRefresher periodically re-scores every customer so dashboard
// reads never depend on on-demand inference
type PredictionRefresher struct {
	repo             *database.CustomerRepository
	analytics        *analytics.Repository
	engineer         *features.Engineer
	model            *model.ChurnModel
	predCache        *cache.PredictionCache
	interval         time.Duration
	highRiskMinScore int
	highRiskLimit    int
	done             chan bool
}

// NewPredictionRefresher creates a new prediction refresher
func NewPredictionRefresher(repo *database.CustomerRepository, analyticsRepo *analytics.Repository, engineer *features.Engineer, m *model.ChurnModel, predCache *cache.PredictionCache, interval time.Duration, highRiskMinScore, highRiskLimit int) *PredictionRefresher {
	return &PredictionRefresher{
		repo:             repo,
		analytics:        analyticsRepo,
		engineer:         engineer,
		model:            m,
		predCache:        predCache,
		interval:         interval,
		highRiskMinScore: highRiskMinScore,
		highRiskLimit:    highRiskLimit,
		done:             make(chan bool),
	}
}

// Start begins the refresh loop
func (pr *PredictionRefresher) Start() {
	log.Println("🔄 Prediction Refresher started")

	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()

	// Initial run
	pr.refreshAll()

	for {
		select {
		case <-ticker.C:
			pr.refreshAll()
		case <-pr.done:
			log.Println("🔄 Prediction Refresher stopped")
			return
		}
	}
}

// Stop stops the refresh loop
func (pr *PredictionRefresher) Stop() {
	pr.done <- true
}

// refreshAll re-scores the full customer base in one batch
func (pr *PredictionRefresher) refreshAll() {
	if !pr.model.Fitted() {
		log.Println("⚠️ Prediction refresh skipped: model not fitted")
		return
	}

	now := time.Now()
	customers, err := pr.repo.GetAllCustomers()
	if err != nil {
		log.Printf("⚠️ Prediction refresh failed to load customers: %v", err)
		return
	}
	if len(customers) == 0 {
		return
	}

	transactions, err := pr.repo.GetAllTransactions()
	if err != nil {
		log.Printf("⚠️ Prediction refresh failed to load transactions: %v", err)
		return
	}

	table := pr.engineer.Transform(customers, transactions, now)
	predictions, err := pr.model.PredictWithScore(table)
	if err != nil {
		log.Printf("⚠️ Prediction refresh failed to score: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	saved := 0
	highRisk := 0
	for i := range predictions {
		p := &predictions[i]
		if err := pr.repo.SavePrediction(p.CustomerID, p.ChurnProbability, p.RiskScore, p.RiskLevel, table.Stages[i], now); err != nil {
			log.Printf("⚠️ Failed to save prediction for %s: %v", p.CustomerID, err)
			continue
		}
		saved++
		if p.RiskLevel == model.RiskHigh || p.RiskLevel == model.RiskCritical {
			highRisk++
		}
		if err := pr.predCache.Put(ctx, p); err != nil {
			// Cache write failures degrade to database reads
			continue
		}
	}

	log.Printf("✅ Prediction refresh complete: %d/%d customers scored, %d high risk, took %v",
		saved, len(customers), highRisk, time.Since(now).Round(time.Millisecond))

	pr.reportRiskSummary(now)
}

// reportRiskSummary logs the portfolio view after a refresh: risk-level
// distribution, churn rate per lifecycle stage, and the customers most in
// need of an intervention
func (pr *PredictionRefresher) reportRiskSummary(now time.Time) {
	buckets, err := pr.analytics.RiskDistribution()
	if err != nil {
		log.Printf("⚠️ Risk distribution query failed: %v", err)
		return
	}
	for _, b := range buckets {
		log.Printf("📊 Risk %s: %d customers", b.RiskLevel, b.Count)
	}

	stages, err := pr.analytics.ChurnRateByStage()
	if err != nil {
		log.Printf("⚠️ Stage churn query failed: %v", err)
		return
	}
	for _, s := range stages {
		log.Printf("📊 Stage %s: %d customers, %.1f%% churned", s.Stage, s.Total, s.ChurnRate)
	}

	ids, err := pr.analytics.HighRiskCustomerIDs(pr.highRiskMinScore, pr.highRiskLimit)
	if err != nil {
		log.Printf("⚠️ High-risk listing query failed: %v", err)
		return
	}
	for _, id := range ids {
		spend, err := pr.analytics.MonthlySpend(id, 30, now)
		if err != nil || spend == nil {
			log.Printf("🚨 High-risk customer %s (no recent spend)", id)
			continue
		}
		log.Printf("🚨 High-risk customer %s, monthly spend %s", id, helpers.FormatWon(*spend))
	}
}
