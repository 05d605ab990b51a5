package conflict

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"cyclesync/pkg/types"
)

// Field names reported in DataConflict.ConflictFields. Metadata fields
// (id, version, deviceId, createdAt, updatedAt, syncStatus) are excluded
// from the tables entirely and are never reported as conflict fields.
const (
	FieldDate          = "date"
	FieldFlowIntensity = "flowIntensity"
	FieldSymptoms      = "symptoms"
	FieldMood          = "mood"
	FieldNotes         = "notes"
	FieldMedications   = "medications"
	FieldTemperature   = "temperature"
	FieldActivities    = "activities"

	FieldTheme         = "theme"
	FieldLanguage      = "language"
	FieldNotifications = "notificationsEnabled"
	FieldReminderTime  = "reminderTime"
	FieldDiscreetMode  = "discreetMode"

	// FieldVersion is the synthetic field reported by version-mismatch
	// conflicts, where versions diverged without a content difference.
	FieldVersion = "version"
)

type cycleField struct {
	name string
	get  func(*types.CycleRecord) any
	set  func(*types.CycleRecord, any)
}

type prefField struct {
	name string
	get  func(*types.PreferencesRecord) any
	set  func(*types.PreferencesRecord, any)
}

// The per-kind field tables are the compile-time-known diffing surface.
// Order here is the order conflict fields are reported in.
var cycleFields = []cycleField{
	{FieldDate,
		func(r *types.CycleRecord) any { return r.Date },
		func(r *types.CycleRecord, v any) { r.Date, _ = v.(string) }},
	{FieldFlowIntensity,
		func(r *types.CycleRecord) any { return r.FlowIntensity },
		func(r *types.CycleRecord, v any) { r.FlowIntensity, _ = v.(int) }},
	{FieldSymptoms,
		func(r *types.CycleRecord) any { return r.Symptoms },
		func(r *types.CycleRecord, v any) { r.Symptoms, _ = v.([]string) }},
	{FieldMood,
		func(r *types.CycleRecord) any { return r.Mood },
		func(r *types.CycleRecord, v any) { r.Mood, _ = v.(string) }},
	{FieldNotes,
		func(r *types.CycleRecord) any { return r.Notes },
		func(r *types.CycleRecord, v any) { r.Notes, _ = v.(string) }},
	{FieldMedications,
		func(r *types.CycleRecord) any { return r.Medications },
		func(r *types.CycleRecord, v any) { r.Medications, _ = v.([]string) }},
	{FieldTemperature,
		func(r *types.CycleRecord) any { return r.TemperatureCelsius },
		func(r *types.CycleRecord, v any) { r.TemperatureCelsius, _ = v.(float64) }},
	{FieldActivities,
		func(r *types.CycleRecord) any { return r.Activities },
		func(r *types.CycleRecord, v any) { r.Activities, _ = v.([]string) }},
}

var prefFields = []prefField{
	{FieldTheme,
		func(r *types.PreferencesRecord) any { return r.Theme },
		func(r *types.PreferencesRecord, v any) { r.Theme, _ = v.(string) }},
	{FieldLanguage,
		func(r *types.PreferencesRecord) any { return r.Language },
		func(r *types.PreferencesRecord, v any) { r.Language, _ = v.(string) }},
	{FieldNotifications,
		func(r *types.PreferencesRecord) any { return r.NotificationsEnabled },
		func(r *types.PreferencesRecord, v any) { r.NotificationsEnabled, _ = v.(bool) }},
	{FieldReminderTime,
		func(r *types.PreferencesRecord) any { return r.ReminderTime },
		func(r *types.PreferencesRecord, v any) { r.ReminderTime, _ = v.(string) }},
	{FieldDiscreetMode,
		func(r *types.PreferencesRecord) any { return r.DiscreetMode },
		func(r *types.PreferencesRecord, v any) { r.DiscreetMode, _ = v.(bool) }},
}

// fieldDiff is one differing field in an edit pair, with change attribution.
//
// Attribution uses value presence: a differing field with exactly one
// populated side was authored by that side (a disjoint change); a field
// populated differently on both sides is a competing edit.
type fieldDiff struct {
	name        string
	localValue  any
	remoteValue any
	localZero   bool
	remoteZero  bool
}

// competing reports whether both sides hold a populated, differing value.
// Free-text notes that look append-only (both sides extended a shared base
// rather than replacing it) are not competing: they merge by concatenation.
func (fd fieldDiff) competing() bool {
	if fd.localZero || fd.remoteZero {
		return false
	}
	if fd.name == FieldNotes {
		l, lok := fd.localValue.(string)
		r, rok := fd.remoteValue.(string)
		if lok && rok && appendLike(l, r) {
			return false
		}
	}
	return true
}

// appendLike reports whether two texts plausibly grew from a shared base:
// one contains the other, or they share a prefix covering at least half of
// the shorter text.
func appendLike(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	short := len(a)
	if len(b) < short {
		short = len(b)
	}
	return short > 0 && commonPrefixLen(a, b)*2 >= short
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// changedLocally reports whether the local side authored the difference.
func (fd fieldDiff) changedLocally() bool {
	return !fd.localZero
}

// diffPair walks the field table for the records' kind and returns every
// non-metadata field where the two sides structurally differ. Records with
// mismatched kinds or nil sides yield no diffs; the caller handles those
// shapes separately. Sparse records simply compare their zero values, so
// malformed input degrades instead of failing.
func diffPair(local, remote types.ConflictableData) []fieldDiff {
	if local == nil || remote == nil || local.Kind() != remote.Kind() {
		return nil
	}

	var diffs []fieldDiff
	switch l := local.(type) {
	case *types.CycleRecord:
		r, ok := remote.(*types.CycleRecord)
		if !ok {
			return nil
		}
		for _, f := range cycleFields {
			lv, rv := f.get(l), f.get(r)
			if !valuesEqual(lv, rv) {
				diffs = append(diffs, fieldDiff{f.name, lv, rv, isZeroValue(lv), isZeroValue(rv)})
			}
		}
	case *types.PreferencesRecord:
		r, ok := remote.(*types.PreferencesRecord)
		if !ok {
			return nil
		}
		for _, f := range prefFields {
			lv, rv := f.get(l), f.get(r)
			if !valuesEqual(lv, rv) {
				diffs = append(diffs, fieldDiff{f.name, lv, rv, isZeroValue(lv), isZeroValue(rv)})
			}
		}
	}
	return diffs
}

// applyField writes a value onto a record by field name. Unknown fields and
// kind mismatches are ignored: resolution degrades the same way detection does.
func applyField(rec types.ConflictableData, field string, value any) {
	switch r := rec.(type) {
	case *types.CycleRecord:
		for _, f := range cycleFields {
			if f.name == field {
				f.set(r, value)
				return
			}
		}
	case *types.PreferencesRecord:
		for _, f := range prefFields {
			if f.name == field {
				f.set(r, value)
				return
			}
		}
	}
}

// contentSimilarity scores how alike two records' domain fields are, in
// [0,1]. Used only by the concurrent-creation heuristic.
func contentSimilarity(a, b types.ConflictableData) float64 {
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return 0
	}
	if a.Checksum() == b.Checksum() {
		return 1
	}

	total, matching := 0, 0
	count := func(lv, rv any) {
		if isZeroValue(lv) && isZeroValue(rv) {
			return
		}
		total++
		if valuesEqual(lv, rv) {
			matching++
		}
	}
	switch l := a.(type) {
	case *types.CycleRecord:
		r := b.(*types.CycleRecord)
		for _, f := range cycleFields {
			count(f.get(l), f.get(r))
		}
	case *types.PreferencesRecord:
		r := b.(*types.PreferencesRecord)
		for _, f := range prefFields {
			count(f.get(l), f.get(r))
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matching) / float64(total)
}

// valuesEqual is structural equality: slices and nested values compare by
// content, and a nil slice equals an empty one.
func valuesEqual(a, b any) bool {
	if isZeroValue(a) && isZeroValue(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// isZeroValue reports whether a field value counts as absent. Missing fields
// on partially-populated records surface as zero values and are treated as
// undefined rather than an error.
func isZeroValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case bool:
		return !x
	case []string:
		return len(x) == 0
	default:
		rv := reflect.ValueOf(v)
		return !rv.IsValid() || rv.IsZero()
	}
}

// cloneValue deep-copies a field value so a resolved record never aliases
// slices owned by an input record.
func cloneValue(v any) any {
	if s, ok := v.([]string); ok {
		if s == nil {
			return nil
		}
		c := make([]string, len(s))
		copy(c, s)
		return c
	}
	return v
}

// conflictID derives a stable identifier for a record pair, so repeated
// detection over the same snapshots reports the same conflict.
func conflictID(ct types.ConflictType, local, remote types.ConflictableData) string {
	key := fmt.Sprintf("%s|%s|%s|%d|%d",
		ct, local.RecordID(), remote.RecordID(), local.RecordVersion(), remote.RecordVersion())
	return fmt.Sprintf("conflict_%016x", xxhash.Sum64String(key))
}

// conflictHash is the short digest stamped into resolution metadata; it lets
// callers detect re-application of the same resolution as a no-op.
func conflictHash(localID string, localVersion, remoteVersion int64, detectedAt time.Time) string {
	key := fmt.Sprintf("%s|%d|%d|%d", localID, localVersion, remoteVersion, detectedAt.UnixNano())
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}
