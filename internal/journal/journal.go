// Package journal persists topology change events to on-disk files for
// later inspection. Each UTC day gets one JSON-lines file; every
// reconciler event becomes one line.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/whaletop/whaletop/internal/reconcile"
)

// Journal appends reconciler events to JSON-lines files.
type Journal struct {
	baseDir string
	enabled bool
}

// Entry is the on-disk representation of one topology event.
type Entry struct {
	Time time.Time `json:"time"`
	Tick uint64    `json:"tick"`
	Type string    `json:"type"`
	Key  string    `json:"key"`
	Kind string    `json:"kind"`
	Old  string    `json:"old,omitempty"`
	New  string    `json:"new,omitempty"`
}

// NewJournal creates a new Journal instance.
// If enabled is false, all journaling operations become no-ops.
func NewJournal(baseDir string, enabled bool) *Journal {
	return &Journal{
		baseDir: baseDir,
		enabled: enabled,
	}
}

// IsEnabled returns whether journaling is enabled.
func (j *Journal) IsEnabled() bool {
	return j != nil && j.enabled
}

// Record appends the given events to the current day's journal file.
// Returns nil if journaling is disabled or the journal is nil.
func (j *Journal) Record(tick uint64, events []reconcile.Event) error {
	if !j.IsEnabled() || len(events) == 0 {
		return nil
	}

	if err := os.MkdirAll(j.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create journal directory %s: %w", j.baseDir, err)
	}

	now := time.Now().UTC()
	path := filepath.Join(j.baseDir, fmt.Sprintf("events-%s.jsonl", now.Format("2006-01-02")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	enc := json.NewEncoder(f)
	for _, ev := range events {
		entry := Entry{
			Time: now,
			Tick: tick,
			Type: eventTypeName(ev.Type),
			Key:  ev.Key,
			Kind: ev.Kind.String(),
		}
		if ev.Type == reconcile.EventStateChanged {
			entry.Old = ev.Old.String()
			entry.New = ev.New.String()
		}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to write journal entry to %s: %w", path, err)
		}
	}

	return nil
}

func eventTypeName(t reconcile.EventType) string {
	switch t {
	case reconcile.EventAdded:
		return "added"
	case reconcile.EventRemoved:
		return "removed"
	case reconcile.EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}
