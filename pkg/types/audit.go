package types

import (
	"time"
)

// AuditAction is the closed set of conflict lifecycle events the trail records.
type AuditAction string

const (
	// ActionConflictDetected is logged when the detector reports a conflict.
	ActionConflictDetected AuditAction = "conflict-detected"
	// ActionAutoResolved is logged when the resolver computes a resolution.
	ActionAutoResolved AuditAction = "auto-resolved"
	// ActionUserResolved is logged when the user chooses a resolution.
	ActionUserResolved AuditAction = "user-resolved"
	// ActionResolutionApplied is logged when the scheduler persists a resolution.
	ActionResolutionApplied AuditAction = "resolution-applied"
	// ActionConflictEscalated is logged when a conflict is escalated past the UI.
	ActionConflictEscalated AuditAction = "conflict-escalated"
)

// Valid returns true if the audit action is valid.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionConflictDetected, ActionAutoResolved, ActionUserResolved,
		ActionResolutionApplied, ActionConflictEscalated:
		return true
	}
	return false
}

// AuditEntryMetadata carries the conflict context captured with each entry.
type AuditEntryMetadata struct {
	ConflictType            ConflictType       `json:"conflict_type,omitempty"`
	ResolutionStrategy      ResolutionStrategy `json:"resolution_strategy,omitempty"`
	FieldsAffected          []string           `json:"fields_affected,omitempty"`
	UserInteractionRequired bool               `json:"user_interaction_required"`
	Reason                  string             `json:"reason,omitempty"`
}

// ConflictAuditEntry is one immutable line in a conflict's history.
type ConflictAuditEntry struct {
	ID         string             `json:"id"`
	ConflictID string             `json:"conflict_id"`
	Timestamp  time.Time          `json:"timestamp"`
	Action     AuditAction        `json:"action"`
	DeviceID   string             `json:"device_id"`
	Metadata   AuditEntryMetadata `json:"metadata"`
}

// HistoryStatus is the per-conflict lifecycle state.
type HistoryStatus string

const (
	// HistoryPending means the conflict is detected but not yet resolved.
	HistoryPending HistoryStatus = "pending"
	// HistoryResolved means a resolution (auto or user) was recorded.
	HistoryResolved HistoryStatus = "resolved"
	// HistoryEscalated means the conflict left the automatic path.
	HistoryEscalated HistoryStatus = "escalated"
)

// Valid returns true if the history status is valid.
func (hs HistoryStatus) Valid() bool {
	switch hs {
	case HistoryPending, HistoryResolved, HistoryEscalated:
		return true
	}
	return false
}

// ConflictHistory is the append-ordered lifecycle of one conflict id.
// Append order is chronological.
type ConflictHistory struct {
	ConflictID      string               `json:"conflict_id"`
	Entries         []ConflictAuditEntry `json:"entries"`
	FinalResolution *ConflictResolution  `json:"final_resolution,omitempty"`
	Status          HistoryStatus        `json:"status"`
}
