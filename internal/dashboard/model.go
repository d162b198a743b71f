// Package dashboard is the interactive terminal UI: a live topology
// tree over the reconciler's snapshots, with per-container log views
// and interactive shell sessions.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/whaletop/whaletop/internal/docker"
	"github.com/whaletop/whaletop/internal/reconcile"
	"github.com/whaletop/whaletop/internal/session"
	"github.com/whaletop/whaletop/internal/topology"
)

// Controller is the slice of the runtime client the dashboard needs for
// container lifecycle actions.
type Controller interface {
	StopContainer(ctx context.Context, containerID string) error
	PauseContainer(ctx context.Context, containerID string) error
	UnpauseContainer(ctx context.Context, containerID string) error
}

// focus identifies which pane receives key input.
type focus int

const (
	focusTree focus = iota
	focusLog
	focusSearch
)

// Options tune the dashboard.
type Options struct {
	ShowStats       bool
	LogTail         string
	ExecCommand     []string
	RefreshInterval time.Duration
	// OpenTimeout bounds the daemon round trips when opening a log
	// stream. Defaults to 10s.
	OpenTimeout time.Duration
}

// Model is the root bubbletea model.
type Model struct {
	poller     *reconcile.Poller
	bridge     *session.Bridge
	controller Controller

	snapshot *reconcile.Snapshot
	rows     []row
	cursor   int
	// collapsed records groups the user folded; everything else renders
	// expanded.
	collapsed map[string]bool

	focus       focus
	logView     *logView
	searchInput textinput.Model

	showStats       bool
	logTail         string
	execCommandLine []string
	refreshInterval time.Duration
	openTimeout     time.Duration

	width  int
	height int
	status string
}

// New builds the dashboard model. Run the poller and the bridge watcher
// before starting the program; the model only consumes their output.
func New(poller *reconcile.Poller, bridge *session.Bridge, controller Controller, opts Options) *Model {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if len(opts.ExecCommand) == 0 {
		opts.ExecCommand = []string{"/bin/bash"}
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 10 * time.Second
	}

	ti := textinput.New()
	ti.Prompt = "/"
	ti.CharLimit = 128

	return &Model{
		poller:          poller,
		bridge:          bridge,
		controller:      controller,
		collapsed:       make(map[string]bool),
		searchInput:     ti,
		showStats:       opts.ShowStats,
		logTail:         opts.LogTail,
		execCommandLine: opts.ExecCommand,
		refreshInterval: opts.RefreshInterval,
		openTimeout:     opts.OpenTimeout,
		width:           80,
		height:          24,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), func() tea.Msg {
		return snapshotMsg{snapshot: m.poller.Snapshot()}
	})
}

func (m *Model) refreshCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.logView != nil {
			m.logView.viewport.Width = msg.Width
			m.logView.viewport.Height = m.logPaneHeight()
		}
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.refreshCmd(), func() tea.Msg {
			return snapshotMsg{snapshot: m.poller.Snapshot()}
		})

	case snapshotMsg:
		m.applySnapshot(msg.snapshot)
		return m, nil

	case logOpenedMsg:
		if msg.err != nil {
			m.status = stoppedStyle.Render(fmt.Sprintf("logs %s: %v", msg.key, msg.err))
			return m, nil
		}
		m.closeLog()
		m.logView = newLogView(msg.key, msg.stream, m.width, m.logPaneHeight())
		m.focus = focusLog
		return m, m.readLogCmd(msg.stream)

	case logLineMsg:
		if m.logView != nil {
			m.logView.append(msg.line)
			return m, m.readLogCmd(m.logView.stream)
		}
		return m, nil

	case logClosedMsg:
		if m.logView != nil {
			m.logView.closed = true
			m.logView.err = msg.err
		}
		return m, nil

	case execFinishedMsg:
		if msg.err != nil {
			m.status = stoppedStyle.Render(fmt.Sprintf("exec %s: %v", msg.key, msg.err))
		} else {
			m.status = fmt.Sprintf("exec %s exited (%d)", msg.key, msg.exitCode)
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.status = stoppedStyle.Render(fmt.Sprintf("%s %s: %v", msg.action, msg.key, msg.err))
		} else {
			m.status = fmt.Sprintf("%s %s: ok", msg.action, msg.key)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// applySnapshot installs a new topology snapshot, reflattens the tree
// and keeps the cursor on the same node when it survived.
func (m *Model) applySnapshot(s *reconcile.Snapshot) {
	if s == nil {
		return
	}
	var selectedKey string
	if m.cursor < len(m.rows) {
		selectedKey = m.rows[m.cursor].node.Key
	}

	m.snapshot = s
	m.rows = flatten(s.Tree, m.collapsed)

	if selectedKey != "" {
		for i, r := range m.rows {
			if r.node.Key == selectedKey {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = max(0, len(m.rows)-1)
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys.
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	}

	switch m.focus {
	case focusSearch:
		return m.handleSearchKey(msg)
	case focusLog:
		return m.handleLogKey(msg)
	default:
		return m.handleTreeKey(msg)
	}
}

func (m *Model) handleTreeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case "enter", " ":
		if n := m.selectedNode(); n != nil && n.Kind.IsGroup() {
			m.collapsed[n.Key] = !m.collapsed[n.Key]
			m.rows = flatten(m.snapshot.Tree, m.collapsed)
			if m.cursor >= len(m.rows) {
				m.cursor = len(m.rows) - 1
			}
		}

	case "l":
		if n := m.selectedNode(); n != nil && n.IsContainer() {
			return m, m.openLogCmd(n.Key, n.ContainerID())
		}

	case "e":
		if n := m.selectedNode(); n != nil && n.IsContainer() {
			if m.bridge.ActiveExec(n.Key) {
				m.status = stoppedStyle.Render("a session is already open for " + n.DisplayName)
				return m, nil
			}
			return m, m.execCmd(n.Key, n.ContainerID())
		}

	case "s":
		return m, m.actionCmd("stop", m.controller.StopContainer)

	case "p":
		return m, m.actionCmd("pause", m.controller.PauseContainer)

	case "u":
		return m, m.actionCmd("unpause", m.controller.UnpauseContainer)

	case "tab":
		if m.logView != nil {
			m.focus = focusLog
		}
	}
	return m, nil
}

func (m *Model) handleLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.closeLog()
		return m, nil

	case "tab":
		m.focus = focusTree
		return m, nil

	case "f":
		m.logView.follow = !m.logView.follow
		if m.logView.follow {
			m.logView.viewport.GotoBottom()
		}
		return m, nil

	case "/":
		m.focus = focusSearch
		m.searchInput.SetValue("")
		m.searchInput.Focus()
		return m, textinput.Blink

	case "n":
		m.logView.nextMatch(1)
		return m, nil

	case "N":
		m.logView.nextMatch(-1)
		return m, nil
	}

	// Scrolling keys go to the viewport. Manual scrolling suspends follow.
	var cmd tea.Cmd
	m.logView.viewport, cmd = m.logView.viewport.Update(msg)
	switch msg.String() {
	case "up", "down", "pgup", "pgdown", "home", "end":
		m.logView.follow = false
	}
	return m, cmd
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.focus = focusLog
		m.searchInput.Blur()
		m.logView.search(m.searchInput.Value())
		return m, nil
	case "esc":
		m.focus = focusLog
		m.searchInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// selectedNode returns the node under the cursor, or nil.
func (m *Model) selectedNode() *topology.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

// actionCmd runs a container lifecycle action against the selected node.
func (m *Model) actionCmd(name string, fn func(context.Context, string) error) tea.Cmd {
	n := m.selectedNode()
	if n == nil || !n.IsContainer() {
		return nil
	}
	key, id := n.Key, n.ContainerID()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return actionDoneMsg{action: name, key: key, err: fn(ctx, id)}
	}
}

// openLogCmd dials the log stream off the Update loop and reports the
// outcome as a logOpenedMsg. The dial is bounded by openTimeout; an
// established stream lives until closed, not until the timeout.
func (m *Model) openLogCmd(key, containerID string) tea.Cmd {
	bridge, tail, timeout := m.bridge, m.logTail, m.openTimeout
	return func() tea.Msg {
		type opened struct {
			stream *session.LogStream
			err    error
		}
		ch := make(chan opened, 1)
		go func() {
			stream, err := bridge.OpenLog(context.Background(), key, containerID, docker.LogOptions{
				Follow: true,
				Tail:   tail,
			})
			ch <- opened{stream: stream, err: err}
		}()
		select {
		case r := <-ch:
			return logOpenedMsg{key: key, stream: r.stream, err: r.err}
		case <-time.After(timeout):
			// Reap the stream if the dial eventually lands.
			go func() {
				if r := <-ch; r.stream != nil {
					r.stream.Close()
				}
			}()
			return logOpenedMsg{key: key, err: fmt.Errorf("no response from daemon after %s", timeout)}
		}
	}
}

// readLogCmd blocks on the next log line off the Update loop.
func (m *Model) readLogCmd(stream *session.LogStream) tea.Cmd {
	return func() tea.Msg {
		line, ok := stream.Next(context.Background())
		if !ok {
			return logClosedMsg{err: stream.Err()}
		}
		return logLineMsg{line: line}
	}
}

func (m *Model) closeLog() {
	if m.logView != nil {
		m.logView.stream.Close()
		m.logView = nil
	}
	m.focus = focusTree
}

func (m *Model) logPaneHeight() int {
	// Header, tree pane and status bar share the screen with the log pane.
	h := m.height - m.treePaneHeight() - 4
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) treePaneHeight() int {
	if m.logView == nil {
		return m.height - 3
	}
	return m.height / 3
}

// View implements tea.Model.
func (m *Model) View() string {
	var sections []string

	sections = append(sections, m.headerView())
	sections = append(sections, m.treeView())

	if m.logView != nil {
		title := titleStyle.Render("logs: "+m.logView.target) + "\n"
		sections = append(sections, title+m.logView.viewport.View())
		if m.focus == focusSearch {
			sections = append(sections, m.searchInput.View())
		} else {
			sections = append(sections, m.logView.status())
		}
	}

	sections = append(sections, m.statusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) headerView() string {
	title := titleStyle.Render("whaletop")
	if m.snapshot == nil {
		return title + mutedStyle.Render("  waiting for first poll")
	}
	info := mutedStyle.Render(fmt.Sprintf("  tick %d", m.snapshot.Tick))
	if m.snapshot.Degraded {
		banner := degradedBar.Render(" DAEMON UNREACHABLE ")
		return title + info + "  " + banner + mutedStyle.Render("  showing last known topology")
	}
	return title + info
}

func (m *Model) treeView() string {
	if m.snapshot == nil || len(m.rows) == 0 {
		return mutedStyle.Render("  no workloads")
	}

	height := m.treePaneHeight()
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := start + height
	if end > len(m.rows) {
		end = len(m.rows)
	}

	var sb []string
	for i := start; i < end; i++ {
		sb = append(sb, m.renderRow(m.rows[i], i == m.cursor && m.focus == focusTree))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sb...)
}

func (m *Model) statusBar() string {
	if m.status != "" {
		return m.status
	}
	if m.logView != nil {
		return statusStyle.Render("tab switch pane  f follow  / search  n/N match  esc close  ctrl+c quit")
	}
	return statusStyle.Render("↑/↓ move  enter fold  l logs  e shell  s stop  p pause  u unpause  q quit")
}
