package analytics

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository runs the hand-written aggregation SQL backing dashboards and the
// measurement workers. It deliberately uses the raw connection pool instead of
// GORM: these are reporting queries, not entity access.
type Repository struct {
	conn *sql.DB
}

// NewRepository creates a new analytics repository
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{conn: conn}
}

// MonthlySpend returns a customer's average monthly card spend over the given
// trailing window. Returns (nil, nil) when the customer has no transactions in
// the window — callers must keep the distinction between "no spend data" and
// "zero spend", it drives the amount_change_rate null policy.
func (r *Repository) MonthlySpend(customerID string, windowDays int, now time.Time) (*int64, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	cutoff := now.AddDate(0, 0, -windowDays)

	var total sql.NullInt64
	var count int64
	err := r.conn.QueryRow(`
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM transactions
		WHERE customer_id = $1 AND transaction_date >= $2 AND transaction_date <= $3
	`, customerID, cutoff, now).Scan(&total, &count)
	if err != nil {
		return nil, fmt.Errorf("MonthlySpend: %w", err)
	}

	if count == 0 {
		return nil, nil
	}

	months := float64(windowDays) / 30.0
	monthly := int64(float64(total.Int64) / months)
	return &monthly, nil
}

// RiskBucket is one row of the risk-level distribution
type RiskBucket struct {
	RiskLevel string
	Count     int64
}

// RiskDistribution returns the customer count per materialized risk level
func (r *Repository) RiskDistribution() ([]RiskBucket, error) {
	rows, err := r.conn.Query(`
		SELECT risk_level, COUNT(*)
		FROM customers
		WHERE risk_level IS NOT NULL AND risk_level != ''
		GROUP BY risk_level
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("RiskDistribution: %w", err)
	}
	defer rows.Close()

	var buckets []RiskBucket
	for rows.Next() {
		var b RiskBucket
		if err := rows.Scan(&b.RiskLevel, &b.Count); err != nil {
			return nil, fmt.Errorf("RiskDistribution scan: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// StageChurn is churn statistics for one lifecycle stage
type StageChurn struct {
	Stage     string
	Total     int64
	Churned   int64
	ChurnRate float64
}

// ChurnRateByStage returns churn rates broken down by lifecycle stage
func (r *Repository) ChurnRateByStage() ([]StageChurn, error) {
	rows, err := r.conn.Query(`
		SELECT lifecycle_stage, COUNT(*), COUNT(*) FILTER (WHERE churned = 1)
		FROM customers
		WHERE lifecycle_stage IS NOT NULL AND lifecycle_stage != ''
		GROUP BY lifecycle_stage
		ORDER BY lifecycle_stage
	`)
	if err != nil {
		return nil, fmt.Errorf("ChurnRateByStage: %w", err)
	}
	defer rows.Close()

	var stats []StageChurn
	for rows.Next() {
		var s StageChurn
		if err := rows.Scan(&s.Stage, &s.Total, &s.Churned); err != nil {
			return nil, fmt.Errorf("ChurnRateByStage scan: %w", err)
		}
		if s.Total > 0 {
			s.ChurnRate = float64(s.Churned) / float64(s.Total) * 100
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// HighRiskCustomerIDs returns the IDs of customers at or above the given
// materialized risk score, highest risk first. Feeds the daily high-risk
// report job.
func (r *Repository) HighRiskCustomerIDs(minScore int, limit int) ([]string, error) {
	q := `
		SELECT customer_id
		FROM customers
		WHERE risk_score >= $1
		ORDER BY risk_score DESC`
	args := []interface{}{minScore}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("HighRiskCustomerIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("HighRiskCustomerIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
