package types

import (
	"time"
)

// VersionVector describes one side of a comparison: which device wrote it,
// at what version, when, and an opaque content checksum.
type VersionVector struct {
	DeviceID  string    `json:"device_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checksum  string    `json:"checksum"`
}

// ConflictDetectionContext is supplied once per sync round and applies to
// every pair compared in that round.
type ConflictDetectionContext struct {
	LocalVersion      VersionVector `json:"local_version"`
	RemoteVersion     VersionVector `json:"remote_version"`
	LastSyncTimestamp time.Time     `json:"last_sync_timestamp"`
	DeviceTrustLevel  float64       `json:"device_trust_level"` // [0,1]
	NetworkLatencyMs  int           `json:"network_latency_ms"`
}

// ConflictType classifies what kind of disagreement was detected.
type ConflictType string

const (
	// ConflictTypeCycleDataEdit is an edit pair of cycle records with differing fields.
	ConflictTypeCycleDataEdit ConflictType = "cycle-data-edit"
	// ConflictTypePreferencesEdit is an edit pair of preferences records with differing fields.
	ConflictTypePreferencesEdit ConflictType = "user-preferences-edit"
	// ConflictTypeConcurrentCreation is two independently created records filling the same logical slot.
	ConflictTypeConcurrentCreation ConflictType = "concurrent-creation"
	// ConflictTypeDeletionEdit is a deletion racing an edit.
	ConflictTypeDeletionEdit ConflictType = "deletion-edit-conflict"
	// ConflictTypeVersionMismatch is diverged versions without content differences.
	ConflictTypeVersionMismatch ConflictType = "version-mismatch"
)

// Valid returns true if the conflict type is valid.
func (ct ConflictType) Valid() bool {
	switch ct {
	case ConflictTypeCycleDataEdit, ConflictTypePreferencesEdit,
		ConflictTypeConcurrentCreation, ConflictTypeDeletionEdit,
		ConflictTypeVersionMismatch:
		return true
	}
	return false
}

// ConflictSeverity is the ordered severity scale: low < medium < high < critical.
type ConflictSeverity string

const (
	// SeverityLow is reserved for cosmetic-only disagreements.
	SeverityLow ConflictSeverity = "low"
	// SeverityMedium is disjoint auto-mergeable changes, the common case.
	SeverityMedium ConflictSeverity = "medium"
	// SeverityHigh is a critical field or a competing edit; needs a human.
	SeverityHigh ConflictSeverity = "high"
	// SeverityCritical is an unrecoverable state such as a deletion-edit race.
	SeverityCritical ConflictSeverity = "critical"
)

// Valid returns true if the severity is valid.
func (cs ConflictSeverity) Valid() bool {
	switch cs {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Weight returns the ordering weight of the severity.
func (cs ConflictSeverity) Weight() int {
	switch cs {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// DataConflict is the detector's output unit for one record pair.
type DataConflict struct {
	ID             string           `json:"id"`
	Type           ConflictType     `json:"type"`
	LocalData      ConflictableData `json:"local_data"`
	RemoteData     ConflictableData `json:"remote_data"`
	ConflictFields []string         `json:"conflict_fields"`
	Severity       ConflictSeverity `json:"severity"`
	Timestamp      time.Time        `json:"timestamp"`
	AutoResolvable bool             `json:"auto_resolvable"`

	SuggestedResolution *ResolutionStrategy `json:"suggested_resolution,omitempty"`
}

// ConflictDetectionResult is what one detection round returns.
type ConflictDetectionResult struct {
	HasConflicts      bool           `json:"has_conflicts"`
	Conflicts         []DataConflict `json:"conflicts"`
	AutoResolvable    []DataConflict `json:"auto_resolvable"`
	RequiresUserInput []DataConflict `json:"requires_user_input"`
}
