package conflict

import (
	"context"
	"time"

	"cyclesync/pkg/types"
)

// Detector pairs local and remote record sets, diffs their fields, and
// classifies what it finds. It holds no mutable state and is safe to share
// across concurrent sync rounds as long as each round supplies its own
// record snapshot.
type Detector struct {
	classifier *Classifier

	// Concurrent-creation heuristic tunables.
	creationWindow      time.Duration
	similarityThreshold float64
}

// DetectorConfig carries the concurrent-creation heuristic tunables.
type DetectorConfig struct {
	// CreationWindow bounds how far apart two createdAt timestamps may be
	// for two independently created records to count as the same entry.
	CreationWindow time.Duration
	// SimilarityThreshold is the minimum content similarity, in [0,1].
	SimilarityThreshold float64
}

// DefaultDetectorConfig returns the detection defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CreationWindow:      10 * time.Minute,
		SimilarityThreshold: 0.5,
	}
}

// NewDetector creates a detector with default heuristics.
func NewDetector(classifier *Classifier) *Detector {
	return NewDetectorWithConfig(classifier, DefaultDetectorConfig())
}

// NewDetectorWithConfig creates a detector with explicit heuristics.
func NewDetectorWithConfig(classifier *Classifier, cfg DetectorConfig) *Detector {
	if cfg.CreationWindow <= 0 {
		cfg.CreationWindow = 10 * time.Minute
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.5
	}
	return &Detector{
		classifier:          classifier,
		creationWindow:      cfg.CreationWindow,
		similarityThreshold: cfg.SimilarityThreshold,
	}
}

// DetectConflicts compares the two record sets under the given sync context
// and returns every conflict, partitioned by auto-resolvability.
//
// Detection never fails on malformed input: sparse or oddly-shaped records
// degrade to wider or narrower conflict field lists, and an empty input pair
// yields an empty result.
func (d *Detector) DetectConflicts(_ context.Context, local, remote []types.ConflictableData, detCtx types.ConflictDetectionContext) types.ConflictDetectionResult {
	result := types.ConflictDetectionResult{
		Conflicts:         []types.DataConflict{},
		AutoResolvable:    []types.DataConflict{},
		RequiresUserInput: []types.DataConflict{},
	}

	remoteByID := make(map[string]types.ConflictableData, len(remote))
	remoteOrder := make([]string, 0, len(remote))
	for _, r := range remote {
		if r == nil || r.RecordID() == "" {
			continue
		}
		if _, seen := remoteByID[r.RecordID()]; !seen {
			remoteOrder = append(remoteOrder, r.RecordID())
		}
		remoteByID[r.RecordID()] = r
	}

	matched := make(map[string]bool, len(remote))
	var localOnly []types.ConflictableData

	for _, l := range local {
		if l == nil || l.RecordID() == "" {
			continue
		}
		r, ok := remoteByID[l.RecordID()]
		if !ok {
			localOnly = append(localOnly, l)
			continue
		}
		matched[l.RecordID()] = true
		if c := d.compareEditPair(l, r, detCtx); c != nil {
			result.Conflicts = append(result.Conflicts, *c)
		}
	}

	// Unmatched records are new data, not conflicts, unless the
	// concurrent-creation heuristic pairs them across ids.
	var remoteOnly []types.ConflictableData
	for _, id := range remoteOrder {
		if !matched[id] {
			remoteOnly = append(remoteOnly, remoteByID[id])
		}
	}
	result.Conflicts = append(result.Conflicts, d.detectConcurrentCreations(localOnly, remoteOnly)...)

	for _, c := range result.Conflicts {
		if c.AutoResolvable {
			result.AutoResolvable = append(result.AutoResolvable, c)
		} else {
			result.RequiresUserInput = append(result.RequiresUserInput, c)
		}
	}
	result.HasConflicts = len(result.Conflicts) > 0
	return result
}

// compareEditPair classifies one id-matched pair, or returns nil when the
// two sides agree.
func (d *Detector) compareEditPair(local, remote types.ConflictableData, detCtx types.ConflictDetectionContext) *types.DataConflict {
	now := time.Now().UTC()

	// A record pair of diverging kinds under one id is a contract breach
	// upstream; report it rather than panic on it.
	if local.Kind() != remote.Kind() {
		return &types.DataConflict{
			ID:             conflictID(types.ConflictTypeVersionMismatch, local, remote),
			Type:           types.ConflictTypeVersionMismatch,
			LocalData:      local,
			RemoteData:     remote,
			ConflictFields: []string{FieldVersion},
			Severity:       types.SeverityHigh,
			Timestamp:      now,
			AutoResolvable: false,
		}
	}

	// Deletion racing an edit is irreconcilable without a human.
	if local.Tombstoned() != remote.Tombstoned() {
		diffs := diffPair(local, remote)
		fields := diffNames(diffs)
		if len(fields) == 0 {
			fields = []string{"deleted"}
		}
		suggested := types.StrategyMergeUserGuided
		return &types.DataConflict{
			ID:                  conflictID(types.ConflictTypeDeletionEdit, local, remote),
			Type:                types.ConflictTypeDeletionEdit,
			LocalData:           local,
			RemoteData:          remote,
			ConflictFields:      fields,
			Severity:            types.SeverityCritical,
			Timestamp:           now,
			AutoResolvable:      false,
			SuggestedResolution: &suggested,
		}
	}
	if local.Tombstoned() && remote.Tombstoned() {
		return nil // both deleted, nothing to disagree about
	}

	diffs := diffPair(local, remote)
	if len(diffs) == 0 {
		if local.RecordVersion() == remote.RecordVersion() {
			return nil
		}
		// Versions diverged but content did not (clock-only updates).
		suggested := d.recencyStrategy(local, remote, detCtx)
		return &types.DataConflict{
			ID:                  conflictID(types.ConflictTypeVersionMismatch, local, remote),
			Type:                types.ConflictTypeVersionMismatch,
			LocalData:           local,
			RemoteData:          remote,
			ConflictFields:      []string{FieldVersion},
			Severity:            types.SeverityLow,
			Timestamp:           now,
			AutoResolvable:      true,
			SuggestedResolution: &suggested,
		}
	}

	ct := types.ConflictTypeCycleDataEdit
	if local.Kind() == types.KindUserPreferences {
		ct = types.ConflictTypePreferencesEdit
	}

	severity := d.classifySeverity(local.Kind(), diffs)
	auto := severity != types.SeverityHigh && severity != types.SeverityCritical

	var suggested types.ResolutionStrategy
	if !auto {
		suggested = types.StrategyMergeUserGuided
	} else if hasCompeting(diffs) {
		suggested = d.recencyStrategy(local, remote, detCtx)
	} else {
		suggested = types.StrategyMergeAutomatic
	}

	return &types.DataConflict{
		ID:                  conflictID(ct, local, remote),
		Type:                ct,
		LocalData:           local,
		RemoteData:          remote,
		ConflictFields:      diffNames(diffs),
		Severity:            severity,
		Timestamp:           now,
		AutoResolvable:      auto,
		SuggestedResolution: &suggested,
	}
}

// classifySeverity applies the severity ladder:
//
//	high:   any critical field differs, or a competing edit on a cycle record
//	medium: auto-mergeable fields with disjoint change sets
//	low:    cosmetic-only disagreement
//
// Competing edits on preference records stay at medium: those aggregates
// resolve by recency, whichever device the user touched last expresses
// current intent.
func (d *Detector) classifySeverity(kind types.RecordKind, diffs []fieldDiff) types.ConflictSeverity {
	cosmeticOnly := true
	for _, fd := range diffs {
		cls := d.classifier.Classify(fd.name)
		if cls.Priority == PriorityCritical {
			return types.SeverityHigh
		}
		if cls.Priority != PriorityCosmetic {
			cosmeticOnly = false
		}
		if fd.competing() && kind == types.KindCycleData {
			return types.SeverityHigh
		}
	}
	if cosmeticOnly {
		return types.SeverityLow
	}
	return types.SeverityMedium
}

// detectConcurrentCreations pairs unmatched local and remote records that
// fill the same logical slot with near-identical content created within the
// tolerance window. The conflict is the duplicate existence itself, so the
// conflict field list may be empty.
func (d *Detector) detectConcurrentCreations(localOnly, remoteOnly []types.ConflictableData) []types.DataConflict {
	var conflicts []types.DataConflict
	used := make(map[int]bool, len(remoteOnly))

	for _, l := range localOnly {
		for j, r := range remoteOnly {
			if used[j] || l.Kind() != r.Kind() || !sameSlot(l, r) {
				continue
			}
			delta := l.Created().Sub(r.Created())
			if delta < 0 {
				delta = -delta
			}
			if delta > d.creationWindow {
				continue
			}
			if contentSimilarity(l, r) < d.similarityThreshold {
				continue
			}

			used[j] = true

			// The duplicate existence itself is at least medium, and the
			// pair's field diff goes through the same severity ladder as an
			// edit pair: a differing critical field can never auto-resolve,
			// however the records came to exist.
			diffs := diffPair(l, r)
			severity := types.SeverityMedium
			if s := d.classifySeverity(l.Kind(), diffs); s.Weight() > severity.Weight() {
				severity = s
			}
			auto := severity != types.SeverityHigh && severity != types.SeverityCritical
			suggested := types.StrategyTakeLocal
			if !auto {
				suggested = types.StrategyMergeUserGuided
			}
			conflicts = append(conflicts, types.DataConflict{
				ID:                  conflictID(types.ConflictTypeConcurrentCreation, l, r),
				Type:                types.ConflictTypeConcurrentCreation,
				LocalData:           l,
				RemoteData:          r,
				ConflictFields:      diffNames(diffs),
				Severity:            severity,
				Timestamp:           time.Now().UTC(),
				AutoResolvable:      auto,
				SuggestedResolution: &suggested,
			})
			break
		}
	}
	return conflicts
}

// recencyStrategy picks the side the user touched most recently. Updates
// closer together than the observed network latency are treated as ties:
// clock skew between devices makes sub-latency ordering meaningless. Ties
// fall back to the higher version, then to device trust.
func (d *Detector) recencyStrategy(local, remote types.ConflictableData, detCtx types.ConflictDetectionContext) types.ResolutionStrategy {
	skew := time.Duration(detCtx.NetworkLatencyMs) * time.Millisecond
	gap := local.Updated().Sub(remote.Updated())
	if gap < 0 {
		gap = -gap
	}
	if gap > skew {
		if local.Updated().After(remote.Updated()) {
			return types.StrategyTakeLocal
		}
		return types.StrategyTakeRemote
	}
	if local.RecordVersion() != remote.RecordVersion() {
		if local.RecordVersion() > remote.RecordVersion() {
			return types.StrategyTakeLocal
		}
		return types.StrategyTakeRemote
	}
	if detCtx.DeviceTrustLevel >= 0.5 {
		return types.StrategyTakeLocal
	}
	return types.StrategyTakeRemote
}

// sameSlot reports whether two records occupy the same logical position: one
// calendar date for cycle entries, one owning user for preference aggregates.
func sameSlot(a, b types.ConflictableData) bool {
	switch l := a.(type) {
	case *types.CycleRecord:
		r, ok := b.(*types.CycleRecord)
		return ok && l.Date != "" && l.Date == r.Date
	case *types.PreferencesRecord:
		r, ok := b.(*types.PreferencesRecord)
		return ok && l.UserID != "" && l.UserID == r.UserID
	}
	return false
}

func diffNames(diffs []fieldDiff) []string {
	names := make([]string, 0, len(diffs))
	for _, fd := range diffs {
		names = append(names, fd.name)
	}
	return names
}

func hasCompeting(diffs []fieldDiff) bool {
	for _, fd := range diffs {
		if fd.competing() {
			return true
		}
	}
	return false
}
