package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whaletop/whaletop/internal/docker"
	"github.com/whaletop/whaletop/internal/topology"
)

var snapshotJSON bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print a one-shot topology snapshot and exit",
	Long: `Snapshot performs a single poll against the Docker daemon, classifies
the result into the topology tree and prints it to stdout. Useful for
scripting and for checking classification without starting the full
dashboard.`,
	Example: `  # Human-readable tree
  whaletop snapshot

  # Machine-readable output
  whaletop snapshot --json`,
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

		objects, err := client.ListObjects(ctx)
		if err != nil {
			return fmt.Errorf("failed to list workloads: %w", err)
		}

		classifier := topology.NewClassifier(topology.ParsePrecedence(cfg.Classification.Prefer))
		forest, conflicts := classifier.Classify(objects)

		if snapshotJSON {
			return writeSnapshotJSON(os.Stdout, forest, conflicts)
		}

		printForest(forest)
		for _, c := range conflicts {
			fmt.Fprintf(os.Stderr, "Warning: %s carries both stack %q and project %q labels, classified as %s\n",
				c.ObjectName, c.Stack, c.Project, c.Key)
		}
		return nil
	},
}

// snapshotNode is the JSON shape of one topology node.
type snapshotNode struct {
	Key      string         `json:"key"`
	Kind     string         `json:"kind"`
	Name     string         `json:"name"`
	State    string         `json:"state"`
	Image    string         `json:"image,omitempty"`
	Children []snapshotNode `json:"children,omitempty"`
}

func writeSnapshotJSON(w *os.File, forest topology.Forest, conflicts []topology.Conflict) error {
	var toJSON func(n *topology.Node) snapshotNode
	toJSON = func(n *topology.Node) snapshotNode {
		out := snapshotNode{
			Key:   n.Key,
			Kind:  n.Kind.String(),
			Name:  n.DisplayName,
			State: n.State.String(),
		}
		if n.Object != nil {
			out.Image = n.Object.Image
		}
		for _, c := range n.Children {
			out.Children = append(out.Children, toJSON(c))
		}
		return out
	}

	payload := struct {
		Workloads []snapshotNode      `json:"workloads"`
		Conflicts []topology.Conflict `json:"conflicts,omitempty"`
	}{Conflicts: conflicts}
	for _, n := range forest {
		payload.Workloads = append(payload.Workloads, toJSON(n))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func printForest(forest topology.Forest) {
	if len(forest) == 0 {
		fmt.Println("No workloads found.")
		return
	}
	var rec func(n *topology.Node, depth int)
	rec = func(n *topology.Node, depth int) {
		kind := ""
		if n.Kind.IsGroup() {
			kind = " (" + n.Kind.String() + ")"
		}
		fmt.Printf("%s%s%s [%s]\n", strings.Repeat("  ", depth), n.DisplayName, kind, n.State)
		for _, c := range n.Children {
			rec(c, depth+1)
		}
	}
	for _, n := range forest {
		rec(n, 0)
	}
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "emit machine-readable JSON")
}
