// Package sync wires the conflict detector, auto resolver, and audit trail
// into a per-round engine. Callers supply decrypted record snapshots and a
// detection context per round; the engine hands back resolutions to persist
// and conflicts to surface to the user.
package sync

import (
	"context"

	"cyclesync/internal/audit"
	"cyclesync/internal/conflict"
	"cyclesync/internal/logging"
	"cyclesync/pkg/types"
)

// Engine orchestrates one detect-resolve-audit pass per sync round. It holds
// no round state of its own, so concurrent rounds over distinct snapshots
// are safe; the audit trail serializes its own appends.
type Engine struct {
	detector *conflict.Detector
	resolver *conflict.Resolver
	trail    *audit.Trail
	logger   logging.Logger
}

// RoundResult is everything one sync round produced.
type RoundResult struct {
	Detection         types.ConflictDetectionResult `json:"detection"`
	AutoResolved      []types.ConflictResolution    `json:"auto_resolved"`
	RequiresUserInput []types.DataConflict          `json:"requires_user_input"`
}

// NewEngine builds an engine from explicitly constructed parts.
func NewEngine(detector *conflict.Detector, resolver *conflict.Resolver, trail *audit.Trail, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{
		detector: detector,
		resolver: resolver,
		trail:    trail,
		logger:   logger.WithComponent("engine"),
	}
}

// RunRound detects conflicts between the two snapshots, auto-resolves what
// it safely can, and records every transition in the audit trail. The
// caller persists the resolved records and routes the rest to the UI.
func (e *Engine) RunRound(ctx context.Context, local, remote []types.ConflictableData, detCtx types.ConflictDetectionContext) RoundResult {
	detection := e.detector.DetectConflicts(ctx, local, remote, detCtx)
	for _, c := range detection.Conflicts {
		e.trail.LogConflictDetected(c)
	}

	autoResolved, requiresUserInput := e.resolver.ResolveNonCompetingConflicts(ctx, detection.Conflicts)

	// The resolver preserves batch order in both outputs, so resolutions
	// line up with the conflicts that are not in the user partition.
	userBound := make(map[string]bool, len(requiresUserInput))
	for _, c := range requiresUserInput {
		userBound[c.ID] = true
	}
	j := 0
	for _, c := range detection.Conflicts {
		if userBound[c.ID] || j >= len(autoResolved) {
			continue
		}
		e.trail.LogAutoResolution(c.ID, autoResolved[j])
		j++
	}

	e.logger.Info("sync round complete",
		"conflicts", len(detection.Conflicts),
		"auto_resolved", len(autoResolved),
		"requires_user_input", len(requiresUserInput))

	return RoundResult{
		Detection:         detection,
		AutoResolved:      autoResolved,
		RequiresUserInput: requiresUserInput,
	}
}

// RecordUserResolution logs a resolution chosen by the user through the UI
// collaborator.
func (e *Engine) RecordUserResolution(conflictID string, resolution types.ConflictResolution) {
	e.trail.LogUserResolution(conflictID, resolution)
	e.logger.Info("user resolution recorded",
		"conflict_id", conflictID, "strategy", string(resolution.Strategy))
}

// EscalateConflict logs that a conflict left the automatic path.
func (e *Engine) EscalateConflict(conflictID, reason string) {
	e.trail.LogEscalation(conflictID, reason)
	e.logger.Warn("conflict escalated", "conflict_id", conflictID, "reason", reason)
}

// Trail exposes the audit trail for history and statistics queries.
func (e *Engine) Trail() *audit.Trail {
	return e.trail
}

