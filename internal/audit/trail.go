// Package audit implements the append-only conflict audit trail: a
// size/age-bounded, per-device log of conflict lifecycle events that answers
// history and aggregate-statistics queries.
package audit

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cyclesync/internal/logging"
	"cyclesync/pkg/types"
)

// Config bounds the trail by age and size.
type Config struct {
	// RetentionDays is the age horizon: a history whose earliest entry is
	// older than this is removed by CleanupOldEntries.
	RetentionDays int `json:"retention_days"`
	// MaxHistories caps how many conflict histories are kept; beyond it the
	// histories with the oldest first entry are evicted first.
	MaxHistories int `json:"max_histories"`
}

// DefaultConfig returns the retention defaults.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 90,
		MaxHistories:  10000,
	}
}

// Sink receives every appended entry for external persistence. Persistence
// is fire-and-forget from the trail's perspective: failures are logged and
// otherwise ignored, the in-memory log stays canonical.
type Sink interface {
	PersistEntry(entry types.ConflictAuditEntry) error
}

// Statistics are the aggregate counts over all retained histories.
// AutoResolved + UserResolved + Escalated never exceeds TotalConflicts,
// since a conflict may still be pending.
type Statistics struct {
	TotalConflicts int `json:"total_conflicts"`
	AutoResolved   int `json:"auto_resolved"`
	UserResolved   int `json:"user_resolved"`
	Escalated      int `json:"escalated"`
	Pending        int `json:"pending"`
}

// Trail is the per-device audit log. Appends and reads are serialized by a
// mutex so statistics and history reads always reflect a consistent,
// non-interleaved sequence of appends. The trail owns deep copies of every
// payload it stores; entries are immutable once written.
type Trail struct {
	deviceID  string
	retention time.Duration
	maxSize   int
	logger    logging.Logger
	now       func() time.Time

	mu        sync.Mutex
	histories map[string]*types.ConflictHistory
	sink      Sink
}

// NewTrail creates an audit trail for one device.
func NewTrail(deviceID string, cfg Config, logger logging.Logger) *Trail {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultConfig().RetentionDays
	}
	if cfg.MaxHistories <= 0 {
		cfg.MaxHistories = DefaultConfig().MaxHistories
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Trail{
		deviceID:  deviceID,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		maxSize:   cfg.MaxHistories,
		logger:    logger.WithComponent("audit"),
		now:       func() time.Time { return time.Now().UTC() },
		histories: make(map[string]*types.ConflictHistory),
	}
}

// SetSink attaches a persistence sink notified on every append.
func (t *Trail) SetSink(sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// LogConflictDetected creates or appends to the history for the conflict's
// id. The entry carries the conflict's own timestamp so retention reasons
// about when the conflict happened, not when it was logged.
func (t *Trail) LogConflictDetected(conflict types.DataConflict) {
	ts := conflict.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}
	t.append(conflict.ID, types.ConflictAuditEntry{
		ID:         uuid.New().String(),
		ConflictID: conflict.ID,
		Timestamp:  ts,
		Action:     types.ActionConflictDetected,
		DeviceID:   t.deviceID,
		Metadata: types.AuditEntryMetadata{
			ConflictType:            conflict.Type,
			FieldsAffected:          append([]string(nil), conflict.ConflictFields...),
			UserInteractionRequired: !conflict.AutoResolvable,
		},
	}, nil)
}

// LogAutoResolution appends an auto-resolved entry and marks the history
// resolved with the given resolution.
func (t *Trail) LogAutoResolution(conflictID string, resolution types.ConflictResolution) {
	t.logResolution(conflictID, types.ActionAutoResolved, resolution)
}

// LogUserResolution appends a user-resolved entry and marks the history
// resolved with the given resolution.
func (t *Trail) LogUserResolution(conflictID string, resolution types.ConflictResolution) {
	t.logResolution(conflictID, types.ActionUserResolved, resolution)
}

func (t *Trail) logResolution(conflictID string, action types.AuditAction, resolution types.ConflictResolution) {
	res := copyResolution(resolution)
	t.append(conflictID, types.ConflictAuditEntry{
		ID:         uuid.New().String(),
		ConflictID: conflictID,
		Timestamp:  t.now(),
		Action:     action,
		DeviceID:   t.deviceID,
		Metadata: types.AuditEntryMetadata{
			ResolutionStrategy:      resolution.Strategy,
			FieldsAffected:          changedFields(resolution.AppliedChanges),
			UserInteractionRequired: action == types.ActionUserResolved,
		},
	}, &res)
}

// LogEscalation appends a conflict-escalated entry and marks the history
// escalated.
func (t *Trail) LogEscalation(conflictID, reason string) {
	t.append(conflictID, types.ConflictAuditEntry{
		ID:         uuid.New().String(),
		ConflictID: conflictID,
		Timestamp:  t.now(),
		Action:     types.ActionConflictEscalated,
		DeviceID:   t.deviceID,
		Metadata: types.AuditEntryMetadata{
			UserInteractionRequired: true,
			Reason:                  reason,
		},
	}, nil)
}

// LogResolutionApplied records that the scheduler persisted a resolution.
func (t *Trail) LogResolutionApplied(conflictID string) {
	t.append(conflictID, types.ConflictAuditEntry{
		ID:         uuid.New().String(),
		ConflictID: conflictID,
		Timestamp:  t.now(),
		Action:     types.ActionResolutionApplied,
		DeviceID:   t.deviceID,
	}, nil)
}

// append is the single write path. Appends never dedup: logging the same
// event twice yields two entries, though statistics count the conflict id
// once. Resolved and escalated are terminal states for a history; later
// appends are recorded without changing status.
func (t *Trail) append(conflictID string, entry types.ConflictAuditEntry, resolution *types.ConflictResolution) {
	t.mu.Lock()
	hist, ok := t.histories[conflictID]
	if !ok {
		hist = &types.ConflictHistory{
			ConflictID: conflictID,
			Status:     types.HistoryPending,
		}
		t.histories[conflictID] = hist
	}
	hist.Entries = append(hist.Entries, entry)
	t.evictOverCapLocked()

	if hist.Status == types.HistoryPending {
		switch entry.Action {
		case types.ActionAutoResolved, types.ActionUserResolved:
			hist.Status = types.HistoryResolved
			hist.FinalResolution = resolution
		case types.ActionConflictEscalated:
			hist.Status = types.HistoryEscalated
		}
	}
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		if err := sink.PersistEntry(entry); err != nil {
			t.logger.Warn("audit sink persist failed",
				"conflict_id", conflictID, "entry_id", entry.ID, "error", err.Error())
		}
	}
}

// GetConflictHistory returns a copy of the history for a conflict id, or nil
// if the id was never logged or was purged by retention.
func (t *Trail) GetConflictHistory(conflictID string) *types.ConflictHistory {
	t.mu.Lock()
	defer t.mu.Unlock()

	hist, ok := t.histories[conflictID]
	if !ok {
		return nil
	}
	return copyHistory(hist)
}

// GetConflictStatistics returns aggregate counts over retained histories.
func (t *Trail) GetConflictStatistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Statistics{TotalConflicts: len(t.histories)}
	for _, hist := range t.histories {
		switch hist.Status {
		case types.HistoryResolved:
			if hist.FinalResolution != nil && hist.FinalResolution.Metadata.ResolvedBy == types.ResolvedByUser {
				stats.UserResolved++
			} else {
				stats.AutoResolved++
			}
		case types.HistoryEscalated:
			stats.Escalated++
		default:
			stats.Pending++
		}
	}
	return stats
}

// CleanupOldEntries removes every history whose earliest entry is older than
// the retention horizon. Returns the number of histories purged.
func (t *Trail) CleanupOldEntries() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.retention)
	purged := 0
	for id, hist := range t.histories {
		if len(hist.Entries) == 0 {
			continue
		}
		if hist.Entries[0].Timestamp.Before(cutoff) {
			delete(t.histories, id)
			purged++
		}
	}
	if purged > 0 {
		t.logger.Info("audit retention cleanup", "purged", purged, "retained", len(t.histories))
	}
	return purged
}

// ExportJSON serializes every retained history, ordered by first-entry time
// then conflict id, for the persistence collaborator.
func (t *Trail) ExportJSON() ([]byte, error) {
	t.mu.Lock()
	out := make([]*types.ConflictHistory, 0, len(t.histories))
	for _, hist := range t.histories {
		out = append(out, copyHistory(hist))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := firstEntryTime(out[i]), firstEntryTime(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ConflictID < out[j].ConflictID
	})
	return json.MarshalIndent(out, "", "  ")
}

// evictOverCapLocked drops the histories with the oldest first entry until
// the size bound holds. Caller holds the mutex.
func (t *Trail) evictOverCapLocked() {
	for len(t.histories) > t.maxSize {
		oldestID := ""
		var oldest time.Time
		for id, hist := range t.histories {
			ft := firstEntryTime(hist)
			if oldestID == "" || ft.Before(oldest) || (ft.Equal(oldest) && id < oldestID) {
				oldestID, oldest = id, ft
			}
		}
		delete(t.histories, oldestID)
		t.logger.Warn("audit size bound exceeded, evicted oldest history", "conflict_id", oldestID)
	}
}

func firstEntryTime(hist *types.ConflictHistory) time.Time {
	if len(hist.Entries) == 0 {
		return time.Time{}
	}
	return hist.Entries[0].Timestamp
}

func copyHistory(hist *types.ConflictHistory) *types.ConflictHistory {
	out := &types.ConflictHistory{
		ConflictID: hist.ConflictID,
		Entries:    make([]types.ConflictAuditEntry, len(hist.Entries)),
		Status:     hist.Status,
	}
	copy(out.Entries, hist.Entries)
	for i := range out.Entries {
		out.Entries[i].Metadata.FieldsAffected = append([]string(nil), hist.Entries[i].Metadata.FieldsAffected...)
	}
	if hist.FinalResolution != nil {
		res := copyResolution(*hist.FinalResolution)
		out.FinalResolution = &res
	}
	return out
}

// copyResolution deep-copies a resolution so the trail never aliases
// caller-mutable data.
func copyResolution(res types.ConflictResolution) types.ConflictResolution {
	out := res
	if res.ResolvedData != nil {
		out.ResolvedData = res.ResolvedData.Clone()
	}
	out.AppliedChanges = append([]types.FieldChange(nil), res.AppliedChanges...)
	return out
}

func changedFields(changes []types.FieldChange) []string {
	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, ch.Field)
	}
	return fields
}
