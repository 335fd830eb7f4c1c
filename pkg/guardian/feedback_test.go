package guardian

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/costguardian/pkg/storage"
)

func TestRecordFeedbackStoresAndConfirms(t *testing.T) {
	store := &fakeStore{}
	notify := &fakeNotifier{}
	g := newTestGuardian(store, &fakeCollector{}, WithNotifier(notify))

	fb, err := g.RecordFeedback(context.Background(), FeedbackRequest{
		AlertID:      "alert-1",
		UserName:     "jordan",
		FeedbackType: storage.FeedbackInvestigating,
	}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-15", fb.Date)
	assert.Equal(t, storage.DurationUnknown, fb.DurationType)
	require.Len(t, store.feedback, 1)
	assert.Equal(t, "alert-1", store.feedback[0].AlertID)
	// Investigating opens no change.
	assert.Empty(t, store.changes)
	require.Len(t, notify.sent, 1)
	assert.Equal(t, "heartbeat", notify.sent[0].channel)
}

func TestRecordExpectedFeedbackOpensChanges(t *testing.T) {
	store := &fakeStore{}
	g := newTestGuardian(store, &fakeCollector{})

	_, err := g.RecordFeedback(context.Background(), FeedbackRequest{
		AlertID:          "alert-2",
		UserName:         "jordan",
		FeedbackType:     storage.FeedbackExpected,
		AffectedServices: []string{"Amazon EC2", "Amazon RDS"},
		DurationType:     storage.DurationTemporary,
		ExpectedDays:     14,
		Explanation:      "Planned migration",
	}, RunOptions{})
	require.NoError(t, err)

	require.Len(t, store.changes, 2)
	change := store.changes[0]
	assert.Equal(t, "Amazon EC2", change.Service)
	assert.Equal(t, storage.ChangeStatusActive, change.Status)
	assert.Equal(t, "jordan", change.AcknowledgedBy)
	assert.Equal(t, "Planned migration", change.Description)
	assert.Equal(t, "2026-03-29", change.ExpectedEndDate)
}

func TestRecordedFeedbackSuppressesNextDetection(t *testing.T) {
	// The full loop: expected feedback opens a change, and the next collect
	// run no longer alerts on that service.
	store := &fakeStore{recent: historySnapshots("AmazonEC2", 100, 14)}
	coll := &fakeCollector{data: testCostData(map[string]float64{"AmazonEC2": 300})}
	notify := &fakeNotifier{}
	g := newTestGuardian(store, coll, WithNotifier(notify))

	_, err := g.RecordFeedback(context.Background(), FeedbackRequest{
		AlertID:          "alert-3",
		UserName:         "jordan",
		FeedbackType:     storage.FeedbackExpected,
		AffectedServices: []string{"AmazonEC2"},
	}, RunOptions{SkipSlack: true})
	require.NoError(t, err)

	result, err := g.Collect(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.AnomaliesDetected)
	assert.Empty(t, notify.sent)
}

func TestRecordFeedbackRejectsBadInput(t *testing.T) {
	g := newTestGuardian(&fakeStore{}, &fakeCollector{})

	_, err := g.RecordFeedback(context.Background(), FeedbackRequest{
		AlertID:      "alert-4",
		FeedbackType: "shrug",
	}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	_, err = g.RecordFeedback(context.Background(), FeedbackRequest{
		FeedbackType: storage.FeedbackExpected,
	}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert id")
}

func TestRecordFeedbackDryRunStoresNothing(t *testing.T) {
	store := &fakeStore{}
	g := newTestGuardian(store, &fakeCollector{})

	_, err := g.RecordFeedback(context.Background(), FeedbackRequest{
		AlertID:          "alert-5",
		FeedbackType:     storage.FeedbackExpected,
		AffectedServices: []string{"Amazon EC2"},
	}, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, store.feedback)
	assert.Empty(t, store.changes)
}

func TestAcknowledgeChange(t *testing.T) {
	store := &fakeStore{}
	g := newTestGuardian(store, &fakeCollector{})

	change, err := g.AcknowledgeChange(context.Background(), AcknowledgeRequest{
		Service:        "Amazon RDS",
		Description:    "Moved to larger instance class",
		AcknowledgedBy: "jordan",
		DurationType:   storage.DurationOngoing,
		BaselineCost:   200,
		NewCost:        350,
	}, RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, change.ChangeID)
	assert.Equal(t, storage.ChangeTypeCostIncrease, change.ChangeType)
	assert.Empty(t, change.ExpectedEndDate)
	require.Len(t, store.changes, 1)
	assert.Equal(t, storage.ChangeStatusActive, store.changes[0].Status)
}

func TestAcknowledgeRequiresService(t *testing.T) {
	g := newTestGuardian(&fakeStore{}, &fakeCollector{})

	_, err := g.AcknowledgeChange(context.Background(), AcknowledgeRequest{}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service is required")
}

func TestResolveChange(t *testing.T) {
	store := &fakeStore{}
	g := newTestGuardian(store, &fakeCollector{})

	change, err := g.AcknowledgeChange(context.Background(), AcknowledgeRequest{
		Service: "Amazon EC2",
	}, RunOptions{})
	require.NoError(t, err)

	err = g.ResolveChange(context.Background(), "Amazon EC2", change.ChangeID, "rollout finished", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, storage.ChangeStatusResolved, store.changes[0].Status)
	assert.Equal(t, "rollout finished", store.changes[0].ResolutionNotes)

	err = g.ResolveChange(context.Background(), "Amazon EC2", "missing-id", "", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no change")
}
