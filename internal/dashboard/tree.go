package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/whaletop/whaletop/internal/topology"
)

// row is one visible line of the topology tree.
type row struct {
	node  *topology.Node
	depth int
}

// flatten turns the forest into the visible row list, honoring collapse
// state. Groups are expanded unless the user collapsed them.
func flatten(f topology.Forest, collapsed map[string]bool) []row {
	var rows []row
	var rec func(n *topology.Node, depth int)
	rec = func(n *topology.Node, depth int) {
		rows = append(rows, row{node: n, depth: depth})
		if n.Kind.IsGroup() && collapsed[n.Key] {
			return
		}
		for _, c := range n.Children {
			rec(c, depth+1)
		}
	}
	for _, n := range f {
		rec(n, 0)
	}
	return rows
}

// stateStyle picks the badge style for a node state.
func stateStyle(s topology.State) lipgloss.Style {
	switch s {
	case topology.StateRunning:
		return runningStyle
	case topology.StateDegraded, topology.StateRestarting:
		return degradedStyle
	case topology.StateStopped, topology.StateExited, topology.StateDead:
		return stoppedStyle
	case topology.StatePaused:
		return pausedStyle
	default:
		return otherStateStyle
	}
}

// renderRow renders one tree line. Stats columns appear only for
// container nodes that carry sampled usage.
func (m *Model) renderRow(r row, selected bool) string {
	n := r.node

	glyph := "•"
	if n.Kind.IsGroup() {
		if m.collapsed[n.Key] {
			glyph = "▸"
		} else {
			glyph = "▾"
		}
	}

	badge := stateStyle(n.State).Render(fmt.Sprintf("[%s]", n.State))

	var stats string
	if m.showStats && n.IsContainer() && n.Object != nil && n.Object.MemoryLimit > 0 {
		stats = mutedStyle.Render(fmt.Sprintf("  %5.1f%%  %s", n.Object.CPUPercent, formatBytes(n.Object.MemoryUsage)))
	}

	var kind string
	if n.Kind.IsGroup() {
		kind = faintStyle.Render(" (" + n.Kind.String() + ")")
	}

	line := strings.Repeat("  ", r.depth) + glyph + " " + n.DisplayName + kind + " " + badge + stats
	if selected {
		return selectedStyle.Render(line)
	}
	return line
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
