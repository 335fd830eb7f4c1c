// Package storage implements the DynamoDB single-table layout holding cost
// snapshots, anomaly feedback, and acknowledged cost changes.
package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity mirrors analysis severity tiers for persisted anomaly summaries.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AnomalyInfo is the persisted summary of a detected anomaly, written back
// onto the snapshot that triggered it.
type AnomalyInfo struct {
	Service       string  `dynamodbav:"service"`
	Amount        float64 `dynamodbav:"amount"`
	PercentChange float64 `dynamodbav:"percent_change"`
	Severity      string  `dynamodbav:"severity"`
	BaselineCost  float64 `dynamodbav:"baseline_cost,omitempty"`
	Description   string  `dynamodbav:"description,omitempty"`
}

// BudgetStatus captures budget utilization at snapshot time.
type BudgetStatus struct {
	MonthlyBudget  float64 `dynamodbav:"monthly_budget"`
	MonthlySpent   float64 `dynamodbav:"monthly_spent"`
	MonthlyPercent float64 `dynamodbav:"monthly_percent"`
	DailyBudget    float64 `dynamodbav:"daily_budget,omitempty"`
	DailySpent     float64 `dynamodbav:"daily_spent,omitempty"`
	DailyPercent   float64 `dynamodbav:"daily_percent,omitempty"`
}

// CostForecast is the projected end-of-month spend.
type CostForecast struct {
	EndOfMonth float64 `dynamodbav:"end_of_month"`
	Confidence string  `dynamodbav:"confidence"` // low, medium, high
}

// AccountCost names the cost of one linked account.
type AccountCost struct {
	Name string  `dynamodbav:"name"`
	Cost float64 `dynamodbav:"cost"`
}

// CostSnapshot is one periodic cost record.
//
// Key layout:
//
//	PK: SNAPSHOT#{date}
//	SK: HOUR#{hour}#{account_id}
type CostSnapshot struct {
	SnapshotID string `dynamodbav:"snapshot_id"`
	Timestamp  string `dynamodbav:"timestamp"`
	AccountID  string `dynamodbav:"account_id"`
	Date       string `dynamodbav:"date"` // YYYY-MM-DD
	Hour       int    `dynamodbav:"hour"` // 0-23
	PeriodType string `dynamodbav:"period_type"` // hourly, daily, weekly

	// CostDataDate is the day the per-service costs actually represent; it
	// trails Date when the collector runs with a data lag.
	CostDataDate string `dynamodbav:"cost_data_date,omitempty"`

	TotalCost float64 `dynamodbav:"total_cost"`
	Currency  string  `dynamodbav:"currency"`

	CostByService map[string]float64     `dynamodbav:"cost_by_service"`
	CostByAccount map[string]AccountCost `dynamodbav:"cost_by_account,omitempty"`

	BudgetStatus      *BudgetStatus `dynamodbav:"budget_status,omitempty"`
	Forecast          *CostForecast `dynamodbav:"forecast,omitempty"`
	AnomaliesDetected []AnomalyInfo `dynamodbav:"anomalies_detected,omitempty"`

	TTL int64 `dynamodbav:"ttl,omitempty"` // Unix expiry for DynamoDB TTL.
}

// NewCostSnapshot builds a snapshot with identity and timestamp filled in.
func NewCostSnapshot(accountID string, at time.Time) CostSnapshot {
	return CostSnapshot{
		SnapshotID:    uuid.NewString(),
		Timestamp:     at.UTC().Format("2006-01-02T15:04:05") + "Z",
		AccountID:     accountID,
		Date:          at.UTC().Format("2006-01-02"),
		Hour:          at.UTC().Hour(),
		PeriodType:    "daily",
		Currency:      "USD",
		CostByService: map[string]float64{},
	}
}

// PK returns the partition key.
func (s CostSnapshot) PK() string { return "SNAPSHOT#" + s.Date }

// SK returns the sort key.
func (s CostSnapshot) SK() string { return fmt.Sprintf("HOUR#%02d#%s", s.Hour, s.AccountID) }

// Feedback types attached to an anomaly alert via Slack buttons.
const (
	FeedbackExpected      = "expected"
	FeedbackUnexpected    = "unexpected"
	FeedbackInvestigating = "investigating"
)

// Duration types for an acknowledged cost change.
const (
	DurationOneTime   = "one_time"
	DurationOngoing   = "ongoing"
	DurationTemporary = "temporary"
	DurationUnknown   = "unknown"
)

// AnomalyFeedback records a user's reaction to an anomaly alert.
//
// Key layout:
//
//	PK: FEEDBACK#{date}
//	SK: ALERT#{alert_id}
type AnomalyFeedback struct {
	FeedbackID string `dynamodbav:"feedback_id"`
	AlertID    string `dynamodbav:"alert_id"`
	Timestamp  string `dynamodbav:"timestamp"`
	Date       string `dynamodbav:"date"`

	UserID       string `dynamodbav:"user_id"`
	UserName     string `dynamodbav:"user_name"`
	FeedbackType string `dynamodbav:"feedback_type"`

	AffectedServices []string `dynamodbav:"affected_services,omitempty"`
	CostImpact       float64  `dynamodbav:"cost_impact"`

	Explanation          string `dynamodbav:"explanation,omitempty"`
	DurationType         string `dynamodbav:"duration_type"`
	ExpectedDurationDays int    `dynamodbav:"expected_duration_days,omitempty"`
	RelatedLink          string `dynamodbav:"related_link,omitempty"`

	TTL int64 `dynamodbav:"ttl,omitempty"`
}

// PK returns the partition key.
func (f AnomalyFeedback) PK() string { return "FEEDBACK#" + f.Date }

// SK returns the sort key.
func (f AnomalyFeedback) SK() string { return "ALERT#" + f.AlertID }

// Change lifecycle states.
const (
	ChangeStatusActive   = "active"
	ChangeStatusResolved = "resolved"
	ChangeStatusExpired  = "expired"
)

// Change classifications.
const (
	ChangeTypeNewService   = "new_service"
	ChangeTypeCostIncrease = "cost_increase"
	ChangeTypeCostDecrease = "cost_decrease"
	ChangeTypeUsagePattern = "usage_pattern"
)

// ChangeLog tracks a user-acknowledged cost change. While its status is
// active, anomalies for the named service are suppressed.
//
// Key layout:
//
//	PK: CHANGE#{service}
//	SK: DATE#{date}#{change_id}
type ChangeLog struct {
	ChangeID  string `dynamodbav:"change_id"`
	Service   string `dynamodbav:"service"`
	Timestamp string `dynamodbav:"timestamp"`
	Date      string `dynamodbav:"date"`

	ChangeType  string `dynamodbav:"change_type"`
	Status      string `dynamodbav:"status"`
	Description string `dynamodbav:"description"`

	BaselineCost  float64 `dynamodbav:"baseline_cost"`
	NewCost       float64 `dynamodbav:"new_cost"`
	PercentChange float64 `dynamodbav:"percent_change"`

	AcknowledgedBy string `dynamodbav:"acknowledged_by"`
	AcknowledgedAt string `dynamodbav:"acknowledged_at"`

	ExpectedEndDate string `dynamodbav:"expected_end_date,omitempty"`
	ResolutionNotes string `dynamodbav:"resolution_notes,omitempty"`

	TTL int64 `dynamodbav:"ttl,omitempty"`
}

// NewChangeLog builds an active change record for a service.
func NewChangeLog(service string, at time.Time) ChangeLog {
	ts := at.UTC().Format("2006-01-02T15:04:05") + "Z"
	return ChangeLog{
		ChangeID:  uuid.NewString(),
		Service:   service,
		Timestamp: ts,
		Date:      at.UTC().Format("2006-01-02"),
		Status:    ChangeStatusActive,
	}
}

// PK returns the partition key.
func (c ChangeLog) PK() string { return "CHANGE#" + c.Service }

// SK returns the sort key.
func (c ChangeLog) SK() string { return fmt.Sprintf("DATE#%s#%s", c.Date, c.ChangeID) }
