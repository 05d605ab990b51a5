package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesync/internal/audit"
	"cyclesync/internal/conflict"
	"cyclesync/pkg/types"
)

var engineBase = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	classifier := conflict.NewClassifier()
	return NewEngine(
		conflict.NewDetector(classifier),
		conflict.NewResolver(classifier, "device-test", nil),
		audit.NewTrail("device-test", audit.DefaultConfig(), nil),
		nil,
	)
}

func engineCycle(id string, version int64, mutate func(*types.CycleRecord)) *types.CycleRecord {
	r := &types.CycleRecord{
		ID:        id,
		UserID:    "user-1",
		Version:   version,
		DeviceID:  "device-a",
		CreatedAt: engineBase.Add(-48 * time.Hour),
		UpdatedAt: engineBase,
		SyncState: types.SyncStatusPending,
		Date:      "2026-03-09",
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func engineContext() types.ConflictDetectionContext {
	return types.ConflictDetectionContext{
		LastSyncTimestamp: engineBase.Add(-24 * time.Hour),
		DeviceTrustLevel:  1.0,
	}
}

func TestRunRound_NoConflicts(t *testing.T) {
	e := newTestEngine()
	rec := engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.Mood = "calm" })

	result := e.RunRound(context.Background(),
		[]types.ConflictableData{rec},
		[]types.ConflictableData{rec.Clone()},
		engineContext())

	assert.False(t, result.Detection.HasConflicts)
	assert.Empty(t, result.AutoResolved)
	assert.Empty(t, result.RequiresUserInput)
	assert.Equal(t, 0, e.Trail().GetConflictStatistics().TotalConflicts)
}

func TestRunRound_AuditsEveryLifecycleTransition(t *testing.T) {
	e := newTestEngine()
	local := []types.ConflictableData{
		// Competing critical edit: needs a human.
		engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.FlowIntensity = 4 }),
		// Disjoint edit: auto-merges.
		engineCycle("rec-2", 2, func(r *types.CycleRecord) { r.Mood = "calm" }),
	}
	remote := []types.ConflictableData{
		engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.FlowIntensity = 2 }),
		engineCycle("rec-2", 2, func(r *types.CycleRecord) { r.Activities = []string{"run"} }),
	}

	result := e.RunRound(context.Background(), local, remote, engineContext())

	require.Len(t, result.Detection.Conflicts, 2)
	require.Len(t, result.AutoResolved, 1)
	require.Len(t, result.RequiresUserInput, 1)

	stats := e.Trail().GetConflictStatistics()
	assert.Equal(t, 2, stats.TotalConflicts)
	assert.Equal(t, 1, stats.AutoResolved)
	assert.Equal(t, 1, stats.Pending)

	// The auto-resolved conflict's history carries the resolution.
	var autoID, userID string
	for _, c := range result.Detection.Conflicts {
		if c.AutoResolvable {
			autoID = c.ID
		} else {
			userID = c.ID
		}
	}
	hist := e.Trail().GetConflictHistory(autoID)
	require.NotNil(t, hist)
	assert.Equal(t, types.HistoryResolved, hist.Status)
	require.NotNil(t, hist.FinalResolution)
	assert.Equal(t, types.StrategyMergeAutomatic, hist.FinalResolution.Strategy)

	pending := e.Trail().GetConflictHistory(userID)
	require.NotNil(t, pending)
	assert.Equal(t, types.HistoryPending, pending.Status)
}

func TestRecordUserResolution(t *testing.T) {
	e := newTestEngine()
	local := []types.ConflictableData{
		engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.FlowIntensity = 4 }),
	}
	remote := []types.ConflictableData{
		engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.FlowIntensity = 2 }),
	}
	result := e.RunRound(context.Background(), local, remote, engineContext())
	require.Len(t, result.RequiresUserInput, 1)
	conflictID := result.RequiresUserInput[0].ID

	e.RecordUserResolution(conflictID, types.ConflictResolution{
		Strategy:     types.StrategyManualEdit,
		ResolvedData: engineCycle("rec-1", 3, func(r *types.CycleRecord) { r.FlowIntensity = 3 }),
		Metadata: types.ResolutionMetadata{
			ResolvedAt:        time.Now().UTC(),
			ResolvedBy:        types.ResolvedByUser,
			DeviceID:          "device-test",
			ResolutionVersion: 3,
		},
	})

	hist := e.Trail().GetConflictHistory(conflictID)
	require.NotNil(t, hist)
	assert.Equal(t, types.HistoryResolved, hist.Status)
	assert.Equal(t, 1, e.Trail().GetConflictStatistics().UserResolved)
}

func TestEscalateConflict(t *testing.T) {
	e := newTestEngine()
	local := []types.ConflictableData{
		engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.Deleted = true }),
	}
	remote := []types.ConflictableData{
		engineCycle("rec-1", 2, func(r *types.CycleRecord) { r.Notes = "edited after delete" }),
	}
	result := e.RunRound(context.Background(), local, remote, engineContext())
	require.Len(t, result.RequiresUserInput, 1)
	conflictID := result.RequiresUserInput[0].ID

	e.EscalateConflict(conflictID, "deletion race needs explicit confirmation")

	hist := e.Trail().GetConflictHistory(conflictID)
	require.NotNil(t, hist)
	assert.Equal(t, types.HistoryEscalated, hist.Status)
	assert.Equal(t, 1, e.Trail().GetConflictStatistics().Escalated)
}
