package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cyclesync/internal/logging"
	"cyclesync/pkg/types"
)

// Resolver computes concrete resolutions for auto-resolvable conflicts and
// passes the rest through untouched. It consults the same field classifier
// as the detector, so "looks auto-resolvable" and "actually got auto-resolved"
// can never diverge.
type Resolver struct {
	classifier *Classifier
	deviceID   string
	logger     logging.Logger
	now        func() time.Time
}

// NewResolver creates a resolver stamping resolutions with the given device id.
func NewResolver(classifier *Classifier, deviceID string, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Resolver{
		classifier: classifier,
		deviceID:   deviceID,
		logger:     logger.WithComponent("resolver"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ResolveNonCompetingConflicts partitions a conflict batch into computed
// resolutions and conflicts that need a human. Input conflicts are never
// mutated; an empty batch returns two empty slices.
//
// The work is strictly linear in conflicts x conflict fields: no conflict is
// ever compared against another conflict.
//
// A conflict whose type is outside the closed enum indicates a contract
// breach between components and panics.
func (r *Resolver) ResolveNonCompetingConflicts(_ context.Context, conflicts []types.DataConflict) (autoResolved []types.ConflictResolution, requiresUserInput []types.DataConflict) {
	autoResolved = []types.ConflictResolution{}
	requiresUserInput = []types.DataConflict{}

	for i := range conflicts {
		c := conflicts[i]
		if !c.Type.Valid() {
			panic(fmt.Sprintf("conflict %s has type %q outside the closed set", c.ID, c.Type))
		}
		if !c.AutoResolvable {
			requiresUserInput = append(requiresUserInput, c)
			continue
		}
		if c.LocalData == nil || c.RemoteData == nil {
			// Malformed pair: degrade to the user path, never fail.
			requiresUserInput = append(requiresUserInput, c)
			continue
		}
		if r.touchesCriticalField(c.ConflictFields) {
			// Hard rule: a critical field never auto-resolves, whatever the
			// flag says.
			requiresUserInput = append(requiresUserInput, c)
			continue
		}

		res := r.resolve(&c)
		r.logger.Debug("conflict auto-resolved",
			"conflict_id", c.ID,
			"type", string(c.Type),
			"strategy", string(res.Strategy),
			"fields", len(res.AppliedChanges))
		autoResolved = append(autoResolved, res)
	}
	return autoResolved, requiresUserInput
}

func (r *Resolver) touchesCriticalField(fields []string) bool {
	for _, f := range fields {
		if r.classifier.IsCritical(f) {
			return true
		}
	}
	return false
}

func (r *Resolver) resolve(c *types.DataConflict) types.ConflictResolution {
	switch c.Type {
	case types.ConflictTypeConcurrentCreation:
		// Device-local precedence avoids duplicate-entry ambiguity without
		// needing a tie-break authority.
		return r.takeSide(c, true, "concurrent creation resolved by local precedence")
	case types.ConflictTypeVersionMismatch:
		return r.takeMostRecent(c, "version mismatch resolved by recency")
	case types.ConflictTypeCycleDataEdit, types.ConflictTypePreferencesEdit:
		diffs := diffPair(c.LocalData, c.RemoteData)
		if !hasCompeting(diffs) {
			return r.merge(c, diffs)
		}
		return r.takeMostRecent(c, "same-field divergence resolved by recency")
	case types.ConflictTypeDeletionEdit:
		// Deletion races are never auto-resolvable; the detector guarantees
		// the flag, so reaching here is a programmer error.
		panic(fmt.Sprintf("conflict %s: deletion-edit conflicts cannot be auto-resolved", c.ID))
	default:
		panic(fmt.Sprintf("conflict %s has unhandled type %q", c.ID, c.Type))
	}
}

// merge implements merge-automatic: the resolved record starts from the
// remote side and every field the local side changed is overwritten with the
// local value. Notes-like text changed by both sides is concatenated, never
// silently discarded.
func (r *Resolver) merge(c *types.DataConflict, diffs []fieldDiff) types.ConflictResolution {
	now := r.now()
	resolved := c.RemoteData.Clone()
	changes := make([]types.FieldChange, 0, len(diffs))

	for _, fd := range diffs {
		switch {
		case !fd.localZero && !fd.remoteZero:
			// Non-competing by construction: append-like free text.
			ls, _ := fd.localValue.(string)
			rs, _ := fd.remoteValue.(string)
			merged := mergeText(ls, rs)
			applyField(resolved, fd.name, merged)
			changes = append(changes, types.FieldChange{
				Field:     fd.name,
				OldValue:  fd.remoteValue,
				NewValue:  merged,
				Source:    types.SourceMerged,
				Timestamp: now,
			})
		case fd.changedLocally():
			applyField(resolved, fd.name, cloneValue(fd.localValue))
			changes = append(changes, types.FieldChange{
				Field:     fd.name,
				OldValue:  fd.remoteValue,
				NewValue:  fd.localValue,
				Source:    types.SourceLocal,
				Timestamp: now,
			})
		default:
			// Remote authored the change; the value is already in the base.
			changes = append(changes, types.FieldChange{
				Field:     fd.name,
				OldValue:  fd.localValue,
				NewValue:  fd.remoteValue,
				Source:    types.SourceRemote,
				Timestamp: now,
			})
		}
	}

	return r.finish(c, types.StrategyMergeAutomatic, resolved, changes, now,
		"disjoint changes merged automatically")
}

// takeMostRecent compares updatedAt and keeps the later side. Recency is the
// correct tie-break for preference-style aggregates: whichever device the
// user touched last expresses current intent.
func (r *Resolver) takeMostRecent(c *types.DataConflict, reason string) types.ConflictResolution {
	local := !c.RemoteData.Updated().After(c.LocalData.Updated())
	return r.takeSide(c, local, reason)
}

func (r *Resolver) takeSide(c *types.DataConflict, local bool, reason string) types.ConflictResolution {
	now := r.now()
	winner, loser := c.RemoteData, c.LocalData
	strategy := types.StrategyTakeRemote
	source := types.SourceRemote
	if local {
		winner, loser = c.LocalData, c.RemoteData
		strategy = types.StrategyTakeLocal
		source = types.SourceLocal
	}

	resolved := winner.Clone()
	changes := make([]types.FieldChange, 0, len(c.ConflictFields))
	winDiffs := fieldValues(winner, c.ConflictFields)
	loseDiffs := fieldValues(loser, c.ConflictFields)
	for i, field := range c.ConflictFields {
		if field == FieldVersion {
			changes = append(changes, types.FieldChange{
				Field:     field,
				OldValue:  loser.RecordVersion(),
				NewValue:  winner.RecordVersion(),
				Source:    source,
				Timestamp: now,
			})
			continue
		}
		changes = append(changes, types.FieldChange{
			Field:     field,
			OldValue:  loseDiffs[i],
			NewValue:  winDiffs[i],
			Source:    source,
			Timestamp: now,
		})
	}

	return r.finish(c, strategy, resolved, changes, now, reason)
}

// finish stamps the resolved record's envelope and builds the metadata.
func (r *Resolver) finish(c *types.DataConflict, strategy types.ResolutionStrategy, resolved types.ConflictableData, changes []types.FieldChange, now time.Time, reason string) types.ConflictResolution {
	version := maxVersion(c.LocalData, c.RemoteData) + 1

	// An input written by a device with a fast clock can carry an updatedAt
	// ahead of our own wall time; the resolved record must never move
	// backwards relative to either side.
	stamp := now
	if lu := c.LocalData.Updated(); lu.After(stamp) {
		stamp = lu
	}
	if ru := c.RemoteData.Updated(); ru.After(stamp) {
		stamp = ru
	}
	stampEnvelope(resolved, version, stamp, r.deviceID)

	return types.ConflictResolution{
		Strategy:       strategy,
		ResolvedData:   resolved,
		AppliedChanges: changes,
		Metadata: types.ResolutionMetadata{
			ResolvedAt:        now,
			ResolvedBy:        types.ResolvedBySystem,
			DeviceID:          r.deviceID,
			ResolutionVersion: version,
			ConflictHash: conflictHash(c.LocalData.RecordID(),
				c.LocalData.RecordVersion(), c.RemoteData.RecordVersion(), c.Timestamp),
			Reason: reason,
		},
	}
}

// mergeText combines two free-text values without losing either author's
// words: containment keeps the superset, otherwise the remote suffix past
// the shared base is appended to the local text.
func mergeText(local, remote string) string {
	switch {
	case local == remote, strings.Contains(local, remote):
		return local
	case strings.Contains(remote, local):
		return remote
	default:
		p := commonPrefixLen(local, remote)
		return local + "\n" + strings.TrimSpace(remote[p:])
	}
}

func maxVersion(a, b types.ConflictableData) int64 {
	if a.RecordVersion() > b.RecordVersion() {
		return a.RecordVersion()
	}
	return b.RecordVersion()
}

// stampEnvelope sets the resolved record's metadata: the next version past
// both inputs, a fresh updatedAt, the resolving device, and synced status.
func stampEnvelope(rec types.ConflictableData, version int64, now time.Time, deviceID string) {
	switch r := rec.(type) {
	case *types.CycleRecord:
		r.Version = version
		r.UpdatedAt = now
		r.DeviceID = deviceID
		r.SyncState = types.SyncStatusSynced
	case *types.PreferencesRecord:
		r.Version = version
		r.UpdatedAt = now
		r.DeviceID = deviceID
		r.SyncState = types.SyncStatusSynced
	}
}

// fieldValues reads the named fields off a record, in order; unknown fields
// read as nil.
func fieldValues(rec types.ConflictableData, fields []string) []any {
	values := make([]any, len(fields))
	for i, name := range fields {
		values[i] = readField(rec, name)
	}
	return values
}

func readField(rec types.ConflictableData, field string) any {
	switch r := rec.(type) {
	case *types.CycleRecord:
		for _, f := range cycleFields {
			if f.name == field {
				return f.get(r)
			}
		}
	case *types.PreferencesRecord:
		for _, f := range prefFields {
			if f.name == field {
				return f.get(r)
			}
		}
	}
	return nil
}
