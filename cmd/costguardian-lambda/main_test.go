package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventForceBudgetAlertIsString(t *testing.T) {
	var event Event
	payload := []byte(`{"force_budget_alert": "critical", "dry_run": true}`)
	require.NoError(t, json.Unmarshal(payload, &event))

	assert.Equal(t, "critical", event.ForceBudgetAlert)
	assert.True(t, event.DryRun)
}

func TestHandleRejectsUnknownForceBudgetAlert(t *testing.T) {
	h := &handler{}

	// Validation runs before any guardian call.
	_, err := h.handle(context.Background(), Event{ForceBudgetAlert: "always"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "force_budget_alert")
}
