package dashboard

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/whaletop/whaletop/internal/session"
)

// execCommand adapts an interactive container session to tea.Exec.
// The session is opened inside Run, after bubbletea has released the
// terminal, so raw mode handoff is clean in both directions.
type execCommand struct {
	bridge      *session.Bridge
	key         string
	containerID string
	cmd         []string

	stdin  io.Reader
	stdout io.Writer

	exitCode int
}

var _ tea.ExecCommand = (*execCommand)(nil)

func (c *execCommand) SetStdin(r io.Reader)  { c.stdin = r }
func (c *execCommand) SetStdout(w io.Writer) { c.stdout = w }
func (c *execCommand) SetStderr(io.Writer)   {} // exec output is multiplexed onto stdout

func (c *execCommand) Run() error {
	s, err := c.bridge.OpenExec(context.Background(), c.key, c.containerID, c.cmd)
	if err != nil {
		c.exitCode = -1
		return err
	}
	err = s.Run(context.Background(), c.stdin, c.stdout)
	c.exitCode = s.ExitCode()
	return err
}

// execCmd launches the session through bubbletea's terminal handoff.
func (m *Model) execCmd(key, containerID string) tea.Cmd {
	c := &execCommand{
		bridge:      m.bridge,
		key:         key,
		containerID: containerID,
		cmd:         m.execCommandLine,
	}
	return tea.Exec(c, func(err error) tea.Msg {
		return execFinishedMsg{key: key, exitCode: c.exitCode, err: err}
	})
}
