package guardian

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/DrSkyle/costguardian/pkg/storage"
)

// FeedbackRequest records a user's reaction to an anomaly alert, normally
// arriving through the Slack feedback buttons and relayed here.
type FeedbackRequest struct {
	AlertID      string
	UserID       string
	UserName     string
	FeedbackType string // expected, unexpected, investigating

	AffectedServices []string
	CostImpact       float64
	Explanation      string
	DurationType     string // one_time, ongoing, temporary, unknown
	ExpectedDays     int
}

// RecordFeedback persists the feedback and, when the alert was expected,
// opens an active change for each affected service so the detector stops
// re-alerting on it. A Slack confirmation goes to the alert's channel;
// its failure never fails the recording.
func (g *Guardian) RecordFeedback(ctx context.Context, req FeedbackRequest, opts RunOptions) (*storage.AnomalyFeedback, error) {
	ctx, span := g.Tracer.Start(ctx, "Guardian.RecordFeedback")
	defer span.End()

	if req.AlertID == "" {
		return nil, fmt.Errorf("feedback: alert id is required")
	}
	switch req.FeedbackType {
	case storage.FeedbackExpected, storage.FeedbackUnexpected, storage.FeedbackInvestigating:
	default:
		return nil, fmt.Errorf("feedback: unknown type %q", req.FeedbackType)
	}

	now := g.now().UTC()
	durationType := req.DurationType
	if durationType == "" {
		durationType = storage.DurationUnknown
	}

	fb := storage.AnomalyFeedback{
		FeedbackID:           uuid.NewString(),
		AlertID:              req.AlertID,
		Timestamp:            now.Format("2006-01-02T15:04:05") + "Z",
		Date:                 now.Format("2006-01-02"),
		UserID:               req.UserID,
		UserName:             req.UserName,
		FeedbackType:         req.FeedbackType,
		AffectedServices:     req.AffectedServices,
		CostImpact:           req.CostImpact,
		Explanation:          req.Explanation,
		DurationType:         durationType,
		ExpectedDurationDays: req.ExpectedDays,
		TTL:                  g.snapshotTTL(),
	}

	if !opts.skipStorage() {
		if err := g.store.PutFeedback(ctx, fb); err != nil {
			return nil, fmt.Errorf("record feedback: %w", err)
		}
		if req.FeedbackType == storage.FeedbackExpected {
			for _, service := range req.AffectedServices {
				change := g.changeFromFeedback(req, service)
				if err := g.store.PutChange(ctx, change); err != nil {
					return nil, fmt.Errorf("open change for %s: %w", service, err)
				}
				g.Logger.Info("opened change from feedback", "service", service, "change_id", change.ChangeID)
			}
		}
	}

	if g.notify != nil && !opts.skipSlack() {
		payload := g.formatter.FeedbackConfirmation(req.FeedbackType, req.UserName)
		channel := g.notify.AnomalyChannel("")
		if err := g.notify.SendTo(ctx, channel, payload); err != nil {
			g.Logger.Warn("failed to send feedback confirmation", "channel", channel, "error", err)
		}
	}

	g.Logger.Info("recorded feedback",
		"alert_id", req.AlertID, "type", req.FeedbackType, "user", req.UserName)
	return &fb, nil
}

func (g *Guardian) changeFromFeedback(req FeedbackRequest, service string) storage.ChangeLog {
	now := g.now().UTC()
	change := storage.NewChangeLog(service, now)
	change.ChangeType = storage.ChangeTypeCostIncrease
	change.Description = req.Explanation
	if change.Description == "" {
		change.Description = "Acknowledged via alert feedback"
	}
	change.NewCost = req.CostImpact
	change.AcknowledgedBy = req.UserName
	change.AcknowledgedAt = change.Timestamp
	if req.DurationType == storage.DurationTemporary && req.ExpectedDays > 0 {
		change.ExpectedEndDate = now.AddDate(0, 0, req.ExpectedDays).Format("2006-01-02")
	}
	change.TTL = g.snapshotTTL()
	return change
}

// AcknowledgeRequest registers a known cost change directly, without going
// through an alert.
type AcknowledgeRequest struct {
	Service        string
	Description    string
	AcknowledgedBy string
	ChangeType     string // defaults to cost_increase
	DurationType   string
	ExpectedDays   int
	BaselineCost   float64
	NewCost        float64
}

// AcknowledgeChange opens an active change record for a service. While the
// change stays active, anomalies for that service are suppressed.
func (g *Guardian) AcknowledgeChange(ctx context.Context, req AcknowledgeRequest, opts RunOptions) (*storage.ChangeLog, error) {
	ctx, span := g.Tracer.Start(ctx, "Guardian.AcknowledgeChange")
	defer span.End()

	if req.Service == "" {
		return nil, fmt.Errorf("acknowledge: service is required")
	}

	now := g.now().UTC()
	change := storage.NewChangeLog(req.Service, now)
	change.ChangeType = req.ChangeType
	if change.ChangeType == "" {
		change.ChangeType = storage.ChangeTypeCostIncrease
	}
	change.Description = req.Description
	change.BaselineCost = req.BaselineCost
	change.NewCost = req.NewCost
	change.AcknowledgedBy = req.AcknowledgedBy
	change.AcknowledgedAt = change.Timestamp
	if req.DurationType == storage.DurationTemporary && req.ExpectedDays > 0 {
		change.ExpectedEndDate = now.AddDate(0, 0, req.ExpectedDays).Format("2006-01-02")
	}
	change.TTL = g.snapshotTTL()

	if !opts.skipStorage() {
		if err := g.store.PutChange(ctx, change); err != nil {
			return nil, fmt.Errorf("acknowledge %s: %w", req.Service, err)
		}
	}

	g.Logger.Info("acknowledged cost change",
		"service", req.Service, "change_id", change.ChangeID, "by", req.AcknowledgedBy)
	return &change, nil
}

// ResolveChange closes an active change so the service's anomalies alert
// again.
func (g *Guardian) ResolveChange(ctx context.Context, service, changeID, notes string, opts RunOptions) error {
	ctx, span := g.Tracer.Start(ctx, "Guardian.ResolveChange")
	defer span.End()

	changes, err := g.store.ChangesForService(ctx, service)
	if err != nil {
		return fmt.Errorf("resolve change: %w", err)
	}
	for _, change := range changes {
		if change.ChangeID != changeID {
			continue
		}
		if opts.skipStorage() {
			return nil
		}
		if err := g.store.UpdateChangeStatus(ctx, change, storage.ChangeStatusResolved, notes); err != nil {
			return fmt.Errorf("resolve change %s: %w", changeID, err)
		}
		g.Logger.Info("resolved cost change", "service", service, "change_id", changeID)
		return nil
	}
	return fmt.Errorf("resolve change: no change %s for service %s", changeID, service)
}
