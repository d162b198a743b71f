package dashboard

import (
	"time"

	"github.com/whaletop/whaletop/internal/docker"
	"github.com/whaletop/whaletop/internal/reconcile"
	"github.com/whaletop/whaletop/internal/session"
)

// snapshotMsg carries a freshly published topology snapshot.
type snapshotMsg struct {
	snapshot *reconcile.Snapshot
}

// refreshTickMsg asks the model to pick up the latest snapshot.
type refreshTickMsg time.Time

// logOpenedMsg carries the outcome of a log stream dial.
type logOpenedMsg struct {
	key    string
	stream *session.LogStream
	err    error
}

// logLineMsg carries one log line from the open stream.
type logLineMsg struct {
	line docker.LogLine
}

// logClosedMsg signals that the open log stream terminated.
type logClosedMsg struct {
	err error
}

// execFinishedMsg signals that an interactive session ended.
type execFinishedMsg struct {
	key      string
	exitCode int
	err      error
}

// actionDoneMsg reports the outcome of a container lifecycle action
// (stop, pause, unpause).
type actionDoneMsg struct {
	action string
	key    string
	err    error
}
