// Package conflict implements the conflict detection, classification, and
// automatic resolution engine for multi-device record sync. The field
// classifier is the single policy table consulted by both the detector
// (severity) and the resolver (merge eligibility), so the two can never
// disagree about what is auto-resolvable.
package conflict

import (
	"cyclesync/pkg/types"
)

// FieldPriority is the policy class of a record field.
type FieldPriority string

const (
	// PriorityCritical fields are health-safety sensitive; both sides
	// changing one always requires human confirmation.
	PriorityCritical FieldPriority = "critical"
	// PriorityAutoMergeable fields can be merged without a human.
	PriorityAutoMergeable FieldPriority = "auto-mergeable"
	// PriorityCosmetic fields carry no health meaning at all.
	PriorityCosmetic FieldPriority = "cosmetic"
)

// Valid returns true if the field priority is valid.
func (fp FieldPriority) Valid() bool {
	switch fp {
	case PriorityCritical, PriorityAutoMergeable, PriorityCosmetic:
		return true
	}
	return false
}

// Classification is the classifier's answer for one field.
type Classification struct {
	Priority          FieldPriority            `json:"priority"`
	DefaultResolution types.ResolutionStrategy `json:"default_resolution"`
}

// Classifier maps field names to priority classes. It is a pure lookup
// table with no state; construct once and share by reference.
type Classifier struct {
	table map[string]Classification
}

// NewClassifier builds the static field policy table.
func NewClassifier() *Classifier {
	table := map[string]Classification{
		// Ambiguity-sensitive health fields.
		FieldFlowIntensity: {PriorityCritical, types.StrategyMergeUserGuided},
		FieldMedications:   {PriorityCritical, types.StrategyMergeUserGuided},
		FieldTemperature:   {PriorityCritical, types.StrategyMergeUserGuided},

		// Purely presentational preferences.
		FieldTheme:    {PriorityCosmetic, types.StrategyTakeLocal},
		FieldLanguage: {PriorityCosmetic, types.StrategyTakeLocal},
	}
	return &Classifier{table: table}
}

// Classify returns the classification for a field. Fields not named in the
// table are auto-mergeable, which is the default for domain fields; metadata
// fields never reach the classifier because the diff tables exclude them.
func (c *Classifier) Classify(field string) Classification {
	if cls, ok := c.table[field]; ok {
		return cls
	}
	return Classification{PriorityAutoMergeable, types.StrategyMergeAutomatic}
}

// IsCritical reports whether a field is in the critical class.
func (c *Classifier) IsCritical(field string) bool {
	return c.Classify(field).Priority == PriorityCritical
}
