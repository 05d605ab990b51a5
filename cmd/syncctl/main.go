// Command syncctl runs one conflict detection and resolution round over two
// record snapshots and prints the outcome. It is an operator tool for
// inspecting what the engine would do with a given pair of change sets.
//
// Usage:
//
//	syncctl -local local.json -remote remote.json [-config cyclesync.yaml]
//	        [-last-sync 2026-01-02T15:04:05Z] [-latency-ms 250] [-export-audit]
//
// Snapshot files hold already-decrypted records:
//
//	{"cycle_records": [...], "preferences": [...]}
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cyclesync/internal/audit"
	"cyclesync/internal/config"
	"cyclesync/internal/conflict"
	"cyclesync/internal/logging"
	syncengine "cyclesync/internal/sync"
	"cyclesync/pkg/types"
)

type snapshot struct {
	CycleRecords []*types.CycleRecord       `json:"cycle_records"`
	Preferences  []*types.PreferencesRecord `json:"preferences"`
}

func (s *snapshot) records() []types.ConflictableData {
	out := make([]types.ConflictableData, 0, len(s.CycleRecords)+len(s.Preferences))
	for _, r := range s.CycleRecords {
		out = append(out, r)
	}
	for _, p := range s.Preferences {
		out = append(out, p)
	}
	return out
}

func main() {
	var (
		localPath   = flag.String("local", "", "path to the local record snapshot (JSON)")
		remotePath  = flag.String("remote", "", "path to the remote record snapshot (JSON)")
		configPath  = flag.String("config", "", "optional YAML config file")
		lastSync    = flag.String("last-sync", "", "last successful sync time (RFC3339); defaults to 24h ago")
		latencyMs   = flag.Int("latency-ms", 0, "observed network latency in milliseconds")
		exportAudit = flag.Bool("export-audit", false, "print the audit trail export after the round")
	)
	flag.Parse()

	if *localPath == "" || *remotePath == "" {
		fmt.Fprintln(os.Stderr, "syncctl: -local and -remote snapshots are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syncctl: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format).
		WithTraceID(logging.GenerateTraceID())

	local, err := readSnapshot(*localPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syncctl: %v\n", err)
		os.Exit(1)
	}
	remote, err := readSnapshot(*remotePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syncctl: %v\n", err)
		os.Exit(1)
	}

	lastSyncAt := time.Now().UTC().Add(-24 * time.Hour)
	if *lastSync != "" {
		lastSyncAt, err = time.Parse(time.RFC3339, *lastSync)
		if err != nil {
			fmt.Fprintf(os.Stderr, "syncctl: invalid -last-sync: %v\n", err)
			os.Exit(2)
		}
	}

	classifier := conflict.NewClassifier()
	detector := conflict.NewDetectorWithConfig(classifier, conflict.DetectorConfig{
		CreationWindow:      time.Duration(cfg.Detection.CreationWindowMinutes) * time.Minute,
		SimilarityThreshold: cfg.Detection.SimilarityThreshold,
	})
	resolver := conflict.NewResolver(classifier, cfg.Device.ID, logger)
	trail := audit.NewTrail(cfg.Device.ID, audit.Config{
		RetentionDays: cfg.Audit.RetentionDays,
		MaxHistories:  cfg.Audit.MaxHistories,
	}, logger)
	engine := syncengine.NewEngine(detector, resolver, trail, logger)

	detCtx := types.ConflictDetectionContext{
		LastSyncTimestamp: lastSyncAt,
		DeviceTrustLevel:  cfg.Device.TrustLevel,
		NetworkLatencyMs:  *latencyMs,
	}

	result := engine.RunRound(context.Background(), local.records(), remote.records(), detCtx)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "syncctl: failed to encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if *exportAudit {
		export, err := trail.ExportJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "syncctl: failed to export audit trail: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(export))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFile(path)
	}
	return config.LoadConfig()
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &s, nil
}
