package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesync/pkg/types"
)

func newTestResolver() *Resolver {
	return NewResolver(NewClassifier(), "device-test", nil)
}

// detectOne runs detection over a single pair and returns its conflict.
func detectOne(t *testing.T, local, remote types.ConflictableData) types.DataConflict {
	t.Helper()
	d := NewDetector(NewClassifier())
	result := d.DetectConflicts(context.Background(),
		[]types.ConflictableData{local},
		[]types.ConflictableData{remote},
		testContext())
	require.Len(t, result.Conflicts, 1)
	return result.Conflicts[0]
}

func TestResolve_EmptyBatch(t *testing.T) {
	r := newTestResolver()

	auto, user := r.ResolveNonCompetingConflicts(context.Background(), nil)

	assert.NotNil(t, auto)
	assert.NotNil(t, user)
	assert.Empty(t, auto)
	assert.Empty(t, user)
}

func TestResolve_NonAutoResolvablePassesThrough(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 3, func(rec *types.CycleRecord) { rec.FlowIntensity = 4 })
	remote := cycleFixture("rec-1", 3, func(rec *types.CycleRecord) { rec.FlowIntensity = 2 })
	conflict := detectOne(t, local, remote)
	require.False(t, conflict.AutoResolvable)

	auto, user := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	assert.Empty(t, auto)
	require.Len(t, user, 1)
	assert.Equal(t, conflict.ID, user[0].ID)
}

func TestResolve_CriticalFieldGuardOverridesFlag(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.Medications = []string{"ibuprofen"} })
	remote := cycleFixture("rec-1", 2, nil)
	conflict := detectOne(t, local, remote)
	// Force the flag the wrong way; the resolver must still refuse.
	conflict.AutoResolvable = true
	conflict.Severity = types.SeverityMedium

	auto, user := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	assert.Empty(t, auto)
	require.Len(t, user, 1)
}

func TestResolve_DisjointMerge(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.Mood = "hopeful" })
	remote := cycleFixture("rec-1", 3, func(rec *types.CycleRecord) {
		rec.Activities = []string{"yoga", "walk"}
		rec.DeviceID = "device-b"
	})
	conflict := detectOne(t, local, remote)
	require.True(t, conflict.AutoResolvable)

	localBefore := local.Clone()
	remoteBefore := remote.Clone()

	auto, user := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	assert.Empty(t, user)
	res := auto[0]
	assert.Equal(t, types.StrategyMergeAutomatic, res.Strategy)

	merged, ok := res.ResolvedData.(*types.CycleRecord)
	require.True(t, ok)
	assert.Equal(t, "hopeful", merged.Mood, "locally changed field should survive the merge")
	assert.Equal(t, []string{"yoga", "walk"}, merged.Activities, "remotely changed field should survive the merge")
	assert.Equal(t, int64(4), merged.Version, "resolved version must be max(local, remote)+1")
	assert.Equal(t, "device-test", merged.DeviceID)
	assert.Equal(t, types.SyncStatusSynced, merged.SyncState)

	require.Len(t, res.AppliedChanges, 2)
	sources := map[string]types.ChangeSource{}
	for _, ch := range res.AppliedChanges {
		sources[ch.Field] = ch.Source
	}
	assert.Equal(t, types.SourceLocal, sources[FieldMood])
	assert.Equal(t, types.SourceRemote, sources[FieldActivities])

	assert.Equal(t, localBefore, local.Clone(), "input records must not be mutated")
	assert.Equal(t, remoteBefore, remote.Clone(), "input records must not be mutated")
}

func TestResolve_AppendLikeNotesAreConcatenated(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) {
		rec.Notes = "Cramps in the morning, took it easy. Nap at noon"
	})
	remote := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) {
		rec.Notes = "Cramps in the morning, took it easy. Short walk"
	})
	conflict := detectOne(t, local, remote)
	require.True(t, conflict.AutoResolvable)

	auto, _ := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	merged, ok := auto[0].ResolvedData.(*types.CycleRecord)
	require.True(t, ok)
	assert.Contains(t, merged.Notes, "Nap at noon")
	assert.Contains(t, merged.Notes, "Short walk")
	require.Len(t, auto[0].AppliedChanges, 1)
	assert.Equal(t, types.SourceMerged, auto[0].AppliedChanges[0].Source)
}

func TestResolve_NotesContainmentKeepsSuperset(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) {
		rec.Notes = "Felt tired"
	})
	remote := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) {
		rec.Notes = "Felt tired, better after lunch"
	})
	conflict := detectOne(t, local, remote)
	require.True(t, conflict.AutoResolvable)

	auto, _ := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	merged, ok := auto[0].ResolvedData.(*types.CycleRecord)
	require.True(t, ok)
	assert.Equal(t, "Felt tired, better after lunch", merged.Notes)
}

func TestResolve_ConcurrentCreationTakesLocal(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-local", 2, func(rec *types.CycleRecord) {
		rec.Mood = "tired"
		rec.CreatedAt = testBase
	})
	remote := cycleFixture("rec-remote", 1, func(rec *types.CycleRecord) {
		rec.Mood = "tired"
		rec.CreatedAt = testBase.Add(time.Second)
	})
	conflict := detectOne(t, local, remote)
	require.Equal(t, types.ConflictTypeConcurrentCreation, conflict.Type)

	auto, user := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	assert.Empty(t, user)
	res := auto[0]
	assert.Equal(t, types.StrategyTakeLocal, res.Strategy)
	resolved, ok := res.ResolvedData.(*types.CycleRecord)
	require.True(t, ok)
	assert.Equal(t, "rec-local", resolved.ID)
	assert.Equal(t, int64(3), resolved.Version)
}

func TestResolve_CompetingPreferencesTakeMostRecent(t *testing.T) {
	r := newTestResolver()
	local := prefsFixture("prefs-1", 4, func(p *types.PreferencesRecord) {
		p.Theme = "dark"
		p.UpdatedAt = testBase.Add(2 * time.Hour)
	})
	remote := prefsFixture("prefs-1", 4, func(p *types.PreferencesRecord) {
		p.Theme = "light"
		p.UpdatedAt = testBase
	})
	conflict := detectOne(t, local, remote)
	require.True(t, conflict.AutoResolvable)

	auto, _ := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	res := auto[0]
	assert.Equal(t, types.StrategyTakeLocal, res.Strategy)
	resolved, ok := res.ResolvedData.(*types.PreferencesRecord)
	require.True(t, ok)
	assert.Equal(t, "dark", resolved.Theme)
	assert.Equal(t, int64(5), resolved.Version)
}

func TestResolve_VersionMismatchTakesMostRecent(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 3, func(rec *types.CycleRecord) { rec.Mood = "calm" })
	remote := cycleFixture("rec-1", 5, func(rec *types.CycleRecord) {
		rec.Mood = "calm"
		rec.UpdatedAt = testBase.Add(time.Hour)
	})
	conflict := detectOne(t, local, remote)
	require.Equal(t, types.ConflictTypeVersionMismatch, conflict.Type)

	auto, _ := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	res := auto[0]
	assert.Equal(t, types.StrategyTakeRemote, res.Strategy)
	assert.Equal(t, int64(6), res.Metadata.ResolutionVersion)
}

func TestResolve_MetadataIsStamped(t *testing.T) {
	r := newTestResolver()
	local := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.Mood = "hopeful" })
	remote := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.Activities = []string{"yoga"} })
	conflict := detectOne(t, local, remote)

	auto, _ := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	meta := auto[0].Metadata
	assert.Equal(t, types.ResolvedBySystem, meta.ResolvedBy)
	assert.Equal(t, "device-test", meta.DeviceID)
	assert.Equal(t, int64(3), meta.ResolutionVersion)
	assert.NotEmpty(t, meta.ConflictHash)
	assert.NotEmpty(t, meta.Reason)
	assert.False(t, meta.ResolvedAt.IsZero())
}

func TestResolve_UpdatedAtNeverMovesBackwards(t *testing.T) {
	r := newTestResolver()
	// A device with a fast clock wrote the remote side in our future.
	ahead := time.Now().UTC().Add(2 * time.Hour)
	local := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.Mood = "hopeful" })
	remote := cycleFixture("rec-1", 2, func(rec *types.CycleRecord) {
		rec.Activities = []string{"yoga"}
		rec.UpdatedAt = ahead
	})
	conflict := detectOne(t, local, remote)
	require.True(t, conflict.AutoResolvable)

	auto, _ := r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})

	require.Len(t, auto, 1)
	resolvedAt := auto[0].ResolvedData.Updated()
	assert.False(t, resolvedAt.Before(local.UpdatedAt))
	assert.False(t, resolvedAt.Before(remote.UpdatedAt),
		"resolved updatedAt must not precede a clock-skewed input")
}

func TestResolve_MalformedConflictDegradesToUserPath(t *testing.T) {
	r := newTestResolver()
	conflict := types.DataConflict{
		ID:             "conflict-broken",
		Type:           types.ConflictTypeCycleDataEdit,
		AutoResolvable: true,
		// LocalData and RemoteData missing.
	}

	var auto []types.ConflictResolution
	var user []types.DataConflict
	require.NotPanics(t, func() {
		auto, user = r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})
	})
	assert.Empty(t, auto)
	require.Len(t, user, 1)
}

func TestResolve_PanicsOnUnknownConflictType(t *testing.T) {
	r := newTestResolver()
	conflict := types.DataConflict{
		ID:   "conflict-bad-type",
		Type: types.ConflictType("made-up"),
	}

	assert.Panics(t, func() {
		r.ResolveNonCompetingConflicts(context.Background(), []types.DataConflict{conflict})
	})
}

func TestResolve_PartitionIsComplete(t *testing.T) {
	r := newTestResolver()
	d := NewDetector(NewClassifier())
	local := []types.ConflictableData{
		cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.FlowIntensity = 4 }),
		cycleFixture("rec-2", 2, func(rec *types.CycleRecord) { rec.Mood = "calm" }),
		prefsFixture("prefs-1", 3, func(p *types.PreferencesRecord) {
			p.Theme = "dark"
			p.UpdatedAt = testBase.Add(time.Hour)
		}),
	}
	remote := []types.ConflictableData{
		cycleFixture("rec-1", 2, func(rec *types.CycleRecord) { rec.FlowIntensity = 2 }),
		cycleFixture("rec-2", 2, func(rec *types.CycleRecord) { rec.Activities = []string{"run"} }),
		prefsFixture("prefs-1", 3, func(p *types.PreferencesRecord) { p.Theme = "light" }),
	}
	detection := d.DetectConflicts(context.Background(), local, remote, testContext())
	require.Len(t, detection.Conflicts, 3)

	auto, user := r.ResolveNonCompetingConflicts(context.Background(), detection.Conflicts)

	assert.Equal(t, len(detection.Conflicts), len(auto)+len(user))
	assert.Len(t, user, 1, "only the competing critical edit should need a human")
}
