package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/whaletop/whaletop/internal/dashboard"
	"github.com/whaletop/whaletop/internal/docker"
	"github.com/whaletop/whaletop/internal/journal"
	"github.com/whaletop/whaletop/internal/notification"
	"github.com/whaletop/whaletop/internal/reconcile"
	"github.com/whaletop/whaletop/internal/session"
	"github.com/whaletop/whaletop/internal/topology"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Run the interactive dashboard",
	Long: `Dash starts the full-screen terminal dashboard. The topology tree is
polled and reconciled in the background while you navigate, read logs
and open shell sessions.`,
	Example: `  # Run against the local daemon
  whaletop dash

  # Run with a custom config
  whaletop dash --config /etc/whaletop/config.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := validateConfigOrExit()
		if err != nil {
			return err
		}

		client, err := docker.NewClient(cfg.Docker.SocketPath, docker.Options{
			IncludeStopped: cfg.Docker.IncludeStopped,
			SampleStats:    cfg.Docker.SampleStats,
		})
		if err != nil {
			return fmt.Errorf("failed to create Docker client: %w", err)
		}
		defer client.Close() // nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("cannot reach Docker daemon at %s: %w", cfg.Docker.SocketPath, err)
		}

		classifier := topology.NewClassifier(topology.ParsePrecedence(cfg.Classification.Prefer))
		poller := reconcile.NewPoller(client, classifier, cfg.Poll.Interval, cfg.Poll.Timeout)
		bridge := session.NewBridge(client, session.NewStdioTerminal())

		go poller.Run(ctx) // nolint:errcheck

		// The bridge force-closes sessions whose container disappears.
		bridgeEvents, unsubBridge := poller.Subscribe(64)
		defer unsubBridge()
		go bridge.Watch(ctx, bridgeEvents)

		// Journal and notifications run on their own subscription so a slow
		// sink never delays session force-close.
		j := journal.NewJournal(cfg.Journal.Dir, cfg.Journal.Enabled)
		notifier, err := notification.NewNotifier(cfg)
		if err != nil {
			return err
		}
		if j.IsEnabled() || notifier.IsEnabled() {
			sinkEvents, unsubSink := poller.Subscribe(256)
			defer unsubSink()
			go consumeEvents(ctx, poller, j, notifier, sinkEvents)
		}

		model := dashboard.New(poller, bridge, client, dashboard.Options{
			ShowStats:       cfg.Docker.SampleStats,
			LogTail:         cfg.Logs.Tail,
			ExecCommand:     cfg.Exec.Command,
			RefreshInterval: cfg.Poll.Interval,
			OpenTimeout:     cfg.Poll.Timeout,
		})

		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("dashboard terminated: %w", err)
		}
		return nil
	},
}

// consumeEvents feeds reconciler events to the journal and the notifier
// until the context ends or the subscription closes.
func consumeEvents(ctx context.Context, poller *reconcile.Poller, j *journal.Journal, notifier *notification.Notifier, events <-chan reconcile.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			batch := []reconcile.Event{ev}
			if err := j.Record(poller.Snapshot().Tick, batch); err != nil && verbose {
				fmt.Fprintf(os.Stderr, "Warning: journal write failed: %v\n", err)
			}
			if err := notifier.NotifyEvents(batch); err != nil && verbose {
				fmt.Fprintf(os.Stderr, "Warning: notification failed: %v\n", err)
			}
		}
	}
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(dashCmd)
}
