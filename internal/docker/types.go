package docker

import (
	"io"
	"time"
)

// LogLine is a single log line read from a container, tagged with the
// engine-assigned timestamp and the stream it came from.
type LogLine struct {
	Timestamp time.Time
	Source    string // stdout or stderr
	Text      string
}

// LogOptions controls a log stream.
type LogOptions struct {
	Since  time.Time // only lines at or after this instant; zero means full backlog
	Follow bool      // keep the stream open for new lines
	Tail   string    // engine tail selector, e.g. "all" or "500"
}

// ExecConn is an open interactive exec channel: a raw bidirectional byte
// stream plus the exec ID needed for resize and exit-code inspection.
type ExecConn struct {
	ID     string
	Stream io.ReadWriteCloser
}

// Options tunes what ListObjects reports.
type Options struct {
	IncludeStopped bool // list exited/created containers too
	SampleStats    bool // sample one-shot CPU/memory per running container
}
