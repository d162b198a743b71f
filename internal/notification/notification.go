// Package notification handles sending notifications to external services.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/whaletop/whaletop/internal/config"
	"github.com/whaletop/whaletop/internal/reconcile"
	"github.com/whaletop/whaletop/internal/topology"
)

// Notifier handles sending notifications via Shoutrrr
type Notifier struct {
	enabled     bool
	shoutrrrURL string
}

// NewNotifier initializes a Shoutrrr-based notification client from config.
func NewNotifier(cfg *config.Config) (*Notifier, error) {
	if !cfg.Notification.Enabled {
		return &Notifier{enabled: false}, nil
	}

	url := strings.TrimSpace(cfg.Notification.ShoutrrURL)
	if url == "" {
		return &Notifier{enabled: false}, fmt.Errorf("notification enabled but shoutrrr_url not configured: provide URL in format 'service://credentials' (e.g., slack://token@channel, discord://token@webhookid)")
	}

	return &Notifier{
		enabled:     true,
		shoutrrrURL: url,
	}, nil
}

// IsEnabled reports whether notifications are configured and active.
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// NotifyEvents sends an alert for topology events that affect top-level
// workloads: a stack, project or standalone container that degraded,
// stopped or disappeared. Per-instance churn inside a healthy group is
// deliberately not alerted on.
func (n *Notifier) NotifyEvents(events []reconcile.Event) error {
	if !n.enabled {
		return nil // Notifications disabled
	}

	alerts := alertLines(events)
	if len(alerts) == 0 {
		return nil
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	var sb strings.Builder
	sb.WriteString("🐳 whaletop topology alert\n")
	sb.WriteString(fmt.Sprintf("📅 Time: %s\n\n", timestamp))
	for _, line := range alerts {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	// Send notification using shoutrrr
	err := shoutrrr.Send(n.shoutrrrURL, sb.String())
	if err != nil {
		// Extract service type from URL (e.g., "slack://..." -> "slack")
		serviceType := "unknown"
		if idx := strings.Index(n.shoutrrrURL, "://"); idx > 0 {
			serviceType = n.shoutrrrURL[:idx]
		}
		return fmt.Errorf("notification failed to send via %s (%d alerts): %w", serviceType, len(alerts), err)
	}

	return nil
}

// alertLines filters events down to the ones worth a notification and
// formats each as one message line.
func alertLines(events []reconcile.Event) []string {
	var lines []string
	for _, ev := range events {
		if !isRootKey(ev.Key) {
			continue
		}
		switch ev.Type {
		case reconcile.EventRemoved:
			lines = append(lines, fmt.Sprintf("🗑️ %s %s removed", ev.Kind, ev.Key))
		case reconcile.EventStateChanged:
			switch ev.New {
			case topology.StateDegraded:
				lines = append(lines, fmt.Sprintf("⚠️ %s %s degraded (was %s)", ev.Kind, ev.Key, ev.Old))
			case topology.StateStopped, topology.StateExited, topology.StateDead:
				lines = append(lines, fmt.Sprintf("🛑 %s %s stopped (was %s)", ev.Kind, ev.Key, ev.Old))
			}
		}
	}
	return lines
}

// isRootKey reports whether a topology key names a top-level node.
// Root keys have exactly one separator: "stack/X", "project/p",
// "service/s" or "container/name".
func isRootKey(key string) bool {
	return strings.Count(key, "/") == 1
}
