// Package types provides the core data structures shared by the conflict
// detection, resolution, and audit components: the two mergeable record
// kinds, version vectors, conflicts, resolutions, and audit entries.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// RecordKind identifies which variant of ConflictableData a record is.
type RecordKind string

const (
	// KindCycleData is a cycle-tracking entry.
	KindCycleData RecordKind = "cycle-data"
	// KindUserPreferences is a per-user preferences record.
	KindUserPreferences RecordKind = "user-preferences"
)

// Valid returns true if the record kind is valid.
func (rk RecordKind) Valid() bool {
	switch rk {
	case KindCycleData, KindUserPreferences:
		return true
	}
	return false
}

// SyncStatus tracks where a record stands in the sync lifecycle.
type SyncStatus string

const (
	// SyncStatusPending means the record has local changes not yet synced.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced means the record matches the last synced state.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusConflict means the record is part of an unresolved conflict.
	SyncStatusConflict SyncStatus = "conflict"
)

// Valid returns true if the sync status is valid.
func (ss SyncStatus) Valid() bool {
	switch ss {
	case SyncStatusPending, SyncStatusSynced, SyncStatusConflict:
		return true
	}
	return false
}

// ConflictableData is the closed set of record kinds the engine can compare
// and merge. Only CycleRecord and PreferencesRecord implement it.
type ConflictableData interface {
	Kind() RecordKind
	RecordID() string
	Owner() string
	RecordVersion() int64
	WriterDevice() string
	Created() time.Time
	Updated() time.Time
	Status() SyncStatus
	Tombstoned() bool

	// Clone returns a deep copy. The audit trail stores clones so that
	// entries stay immutable even if the caller mutates its records.
	Clone() ConflictableData

	// Checksum is an opaque content hash over domain fields only. It is
	// used for equality short-circuiting and never interpreted.
	Checksum() string
}

// CycleRecord is a single cycle-tracking entry.
type CycleRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Version   int64      `json:"version"`
	DeviceID  string     `json:"device_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncState SyncStatus `json:"sync_status"`
	Deleted   bool       `json:"deleted,omitempty"`

	Date               string   `json:"date"` // YYYY-MM-DD logical slot
	FlowIntensity      int      `json:"flow_intensity,omitempty"`
	Symptoms           []string `json:"symptoms,omitempty"`
	Mood               string   `json:"mood,omitempty"`
	Notes              string   `json:"notes,omitempty"`
	Medications        []string `json:"medications,omitempty"`
	TemperatureCelsius float64  `json:"temperature_celsius,omitempty"`
	Activities         []string `json:"activities,omitempty"`
}

// Kind returns KindCycleData.
func (r *CycleRecord) Kind() RecordKind { return KindCycleData }

// RecordID returns the stable record identifier.
func (r *CycleRecord) RecordID() string { return r.ID }

// Owner returns the owning user identifier.
func (r *CycleRecord) Owner() string { return r.UserID }

// RecordVersion returns the monotonically increasing version.
func (r *CycleRecord) RecordVersion() int64 { return r.Version }

// WriterDevice returns the device that last wrote the record.
func (r *CycleRecord) WriterDevice() string { return r.DeviceID }

// Created returns the creation timestamp.
func (r *CycleRecord) Created() time.Time { return r.CreatedAt }

// Updated returns the last-write timestamp.
func (r *CycleRecord) Updated() time.Time { return r.UpdatedAt }

// Status returns the sync status tag.
func (r *CycleRecord) Status() SyncStatus { return r.SyncState }

// Tombstoned returns true if the record is marked deleted.
func (r *CycleRecord) Tombstoned() bool { return r.Deleted }

// Clone returns a deep copy of the record.
func (r *CycleRecord) Clone() ConflictableData {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Symptoms = cloneStrings(r.Symptoms)
	clone.Medications = cloneStrings(r.Medications)
	clone.Activities = cloneStrings(r.Activities)
	return &clone
}

// Checksum hashes the domain fields only, so two records with identical
// content but diverged metadata (version, updatedAt) compare equal.
func (r *CycleRecord) Checksum() string {
	var b strings.Builder
	b.WriteString(r.Date)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.FlowIntensity))
	b.WriteByte('|')
	b.WriteString(strings.Join(r.Symptoms, ","))
	b.WriteByte('|')
	b.WriteString(r.Mood)
	b.WriteByte('|')
	b.WriteString(r.Notes)
	b.WriteByte('|')
	b.WriteString(strings.Join(r.Medications, ","))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.TemperatureCelsius, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strings.Join(r.Activities, ","))
	if r.Deleted {
		b.WriteString("|tombstone")
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// Validate checks the record envelope. Domain fields are intentionally not
// validated here: detection must degrade, not fail, on sparse records.
func (r *CycleRecord) Validate() error {
	if r.ID == "" {
		return errors.New("cycle record id is required")
	}
	if r.Version < 1 {
		return fmt.Errorf("cycle record version must be >= 1, got %d", r.Version)
	}
	if r.SyncState != "" && !r.SyncState.Valid() {
		return fmt.Errorf("invalid sync status: %s", r.SyncState)
	}
	return nil
}

// PreferencesRecord is a per-user preferences aggregate.
type PreferencesRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Version   int64      `json:"version"`
	DeviceID  string     `json:"device_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncState SyncStatus `json:"sync_status"`
	Deleted   bool       `json:"deleted,omitempty"`

	Theme                string `json:"theme,omitempty"`
	Language             string `json:"language,omitempty"`
	NotificationsEnabled bool   `json:"notifications_enabled,omitempty"`
	ReminderTime         string `json:"reminder_time,omitempty"` // HH:MM
	DiscreetMode         bool   `json:"discreet_mode,omitempty"`
}

// Kind returns KindUserPreferences.
func (p *PreferencesRecord) Kind() RecordKind { return KindUserPreferences }

// RecordID returns the stable record identifier.
func (p *PreferencesRecord) RecordID() string { return p.ID }

// Owner returns the owning user identifier.
func (p *PreferencesRecord) Owner() string { return p.UserID }

// RecordVersion returns the monotonically increasing version.
func (p *PreferencesRecord) RecordVersion() int64 { return p.Version }

// WriterDevice returns the device that last wrote the record.
func (p *PreferencesRecord) WriterDevice() string { return p.DeviceID }

// Created returns the creation timestamp.
func (p *PreferencesRecord) Created() time.Time { return p.CreatedAt }

// Updated returns the last-write timestamp.
func (p *PreferencesRecord) Updated() time.Time { return p.UpdatedAt }

// Status returns the sync status tag.
func (p *PreferencesRecord) Status() SyncStatus { return p.SyncState }

// Tombstoned returns true if the record is marked deleted.
func (p *PreferencesRecord) Tombstoned() bool { return p.Deleted }

// Clone returns a deep copy of the record.
func (p *PreferencesRecord) Clone() ConflictableData {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Checksum hashes the domain fields only.
func (p *PreferencesRecord) Checksum() string {
	var b strings.Builder
	b.WriteString(p.Theme)
	b.WriteByte('|')
	b.WriteString(p.Language)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(p.NotificationsEnabled))
	b.WriteByte('|')
	b.WriteString(p.ReminderTime)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(p.DiscreetMode))
	if p.Deleted {
		b.WriteString("|tombstone")
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// Validate checks the record envelope.
func (p *PreferencesRecord) Validate() error {
	if p.ID == "" {
		return errors.New("preferences record id is required")
	}
	if p.Version < 1 {
		return fmt.Errorf("preferences record version must be >= 1, got %d", p.Version)
	}
	if p.SyncState != "" && !p.SyncState.Valid() {
		return fmt.Errorf("invalid sync status: %s", p.SyncState)
	}
	return nil
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
