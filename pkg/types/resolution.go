package types

import (
	"time"
)

// ResolutionStrategy is the closed set of ways a conflict can be resolved.
type ResolutionStrategy string

const (
	// StrategyTakeLocal keeps the local record as the resolved state.
	StrategyTakeLocal ResolutionStrategy = "take-local"
	// StrategyTakeRemote keeps the remote record as the resolved state.
	StrategyTakeRemote ResolutionStrategy = "take-remote"
	// StrategyMergeAutomatic merges disjoint changes without losing either side.
	StrategyMergeAutomatic ResolutionStrategy = "merge-automatic"
	// StrategyMergeUserGuided is a merge with per-field choices made by the user.
	StrategyMergeUserGuided ResolutionStrategy = "merge-user-guided"
	// StrategyCreateBoth keeps both records as separate entries.
	StrategyCreateBoth ResolutionStrategy = "create-both"
	// StrategyManualEdit is a resolution typed in by the user from scratch.
	StrategyManualEdit ResolutionStrategy = "manual-edit"
)

// Valid returns true if the strategy is valid.
func (rs ResolutionStrategy) Valid() bool {
	switch rs {
	case StrategyTakeLocal, StrategyTakeRemote, StrategyMergeAutomatic,
		StrategyMergeUserGuided, StrategyCreateBoth, StrategyManualEdit:
		return true
	}
	return false
}

// ChangeSource tags which side a resolved field value came from.
type ChangeSource string

const (
	// SourceLocal means the value came from the local record.
	SourceLocal ChangeSource = "local"
	// SourceRemote means the value came from the remote record.
	SourceRemote ChangeSource = "remote"
	// SourceMerged means the value combines both sides.
	SourceMerged ChangeSource = "merged"
)

// Valid returns true if the change source is valid.
func (s ChangeSource) Valid() bool {
	switch s {
	case SourceLocal, SourceRemote, SourceMerged:
		return true
	}
	return false
}

// Resolver identifies who produced a resolution.
type Resolver string

const (
	// ResolvedBySystem marks an automatic resolution.
	ResolvedBySystem Resolver = "system"
	// ResolvedByUser marks a user-chosen resolution.
	ResolvedByUser Resolver = "user"
)

// Valid returns true if the resolver tag is valid.
func (r Resolver) Valid() bool {
	return r == ResolvedBySystem || r == ResolvedByUser
}

// FieldChange records one field-level decision inside a resolution.
type FieldChange struct {
	Field     string       `json:"field"`
	OldValue  any          `json:"old_value"`
	NewValue  any          `json:"new_value"`
	Source    ChangeSource `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
}

// ResolutionMetadata describes how and when a resolution was produced.
type ResolutionMetadata struct {
	ResolvedAt        time.Time `json:"resolved_at"`
	ResolvedBy        Resolver  `json:"resolved_by"`
	DeviceID          string    `json:"device_id"`
	ResolutionVersion int64     `json:"resolution_version"`

	// ConflictHash is a short deterministic digest of the conflicting pair;
	// re-applying the same resolution is detectable as a no-op by comparing it.
	ConflictHash string `json:"conflict_hash"`

	Reason string `json:"reason,omitempty"`
}

// ConflictResolution is the concrete outcome computed for one conflict.
type ConflictResolution struct {
	Strategy       ResolutionStrategy `json:"strategy"`
	ResolvedData   ConflictableData   `json:"resolved_data"`
	AppliedChanges []FieldChange      `json:"applied_changes"`
	Metadata       ResolutionMetadata `json:"metadata"`
}
