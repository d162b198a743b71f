// Package session bridges interactive channels between the dashboard and
// running containers: passive log streams (replayable, seekable) and
// interactive exec sessions (raw bidirectional byte streams with
// terminal raw-mode coupling).
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/whaletop/whaletop/internal/docker"
	apperrors "github.com/whaletop/whaletop/internal/errors"
	"github.com/whaletop/whaletop/internal/reconcile"
)

// Mode distinguishes the two session flavors.
type Mode string

// Session modes.
const (
	ModeLog  Mode = "log"
	ModeExec Mode = "exec"
)

// Handle identifies an open session.
type Handle struct {
	Target string // topology key of the bound container
	Mode   Mode
}

// Streamer is the slice of the runtime client the bridge needs.
type Streamer interface {
	StreamLogs(ctx context.Context, containerID string, opts docker.LogOptions) (<-chan docker.LogLine, <-chan error, error)
	OpenExec(ctx context.Context, containerID string, cmd []string) (*docker.ExecConn, error)
	ResizeExec(ctx context.Context, execID string, height, width uint) error
	InspectExec(ctx context.Context, execID string) (int, bool, error)
}

// Bridge manages all open sessions. It enforces exec exclusivity (at
// most one interactive session per container) and force-closes sessions
// whose container is removed from the topology.
type Bridge struct {
	client   Streamer
	terminal Terminal

	mu    sync.Mutex
	execs map[string]*ExecSession
	logs  map[string]map[*LogStream]struct{}
}

// NewBridge creates a session bridge over the given runtime client.
func NewBridge(client Streamer, terminal Terminal) *Bridge {
	return &Bridge{
		client:   client,
		terminal: terminal,
		execs:    make(map[string]*ExecSession),
		logs:     make(map[string]map[*LogStream]struct{}),
	}
}

// Watch consumes reconciler events and force-closes every session bound
// to a removed container. It returns when ctx is cancelled or the event
// channel closes. Run it on its own goroutine.
func (b *Bridge) Watch(ctx context.Context, events <-chan reconcile.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == reconcile.EventRemoved {
				b.CloseTarget(ev.Key)
			}
		}
	}
}

// CloseTarget force-closes all sessions bound to the given container key.
// For exec sessions the terminal is restored before this call returns.
func (b *Bridge) CloseTarget(key string) {
	b.mu.Lock()
	exec := b.execs[key]
	var streams []*LogStream
	for s := range b.logs[key] {
		streams = append(streams, s)
	}
	b.mu.Unlock()

	if exec != nil {
		exec.Close()
	}
	for _, s := range streams {
		s.Close()
	}
}

// OpenExec opens the single interactive session allowed for a container.
// A second open while one is active fails synchronously with
// SessionConflictError.
func (b *Bridge) OpenExec(ctx context.Context, key, containerID string, cmd []string) (*ExecSession, error) {
	b.mu.Lock()
	if _, busy := b.execs[key]; busy {
		b.mu.Unlock()
		return nil, &apperrors.SessionConflictError{ContainerKey: key}
	}
	// Reserve the slot before dialing so two concurrent opens cannot both
	// pass the check.
	placeholder := newExecSession(b, Handle{Target: key, Mode: ModeExec}, nil, nil)
	b.execs[key] = placeholder
	b.mu.Unlock()

	conn, err := b.client.OpenExec(ctx, containerID, cmd)
	if err != nil {
		placeholder.Close()
		return nil, err
	}

	// Raw mode is acquired here, not in Run, so that a force-close at any
	// point after this call returns can restore the terminal synchronously.
	restore, err := b.terminal.MakeRaw()
	if err != nil {
		_ = conn.Stream.Close()
		placeholder.Close()
		return nil, err
	}

	s := newExecSession(b, Handle{Target: key, Mode: ModeExec}, conn, restore)
	b.mu.Lock()
	select {
	case <-placeholder.done:
		// Force-closed while dialing: the container is gone. Close the
		// fresh session so the terminal restore and transport teardown
		// happen before this call returns.
		b.mu.Unlock()
		s.Close()
		return nil, &apperrors.TransportError{
			ContainerKey: key,
			Mode:         string(ModeExec),
			Err:          errors.New("container removed while opening session"),
		}
	default:
		b.execs[key] = s
	}
	b.mu.Unlock()
	return s, nil
}

// OpenLog opens a log stream for a container. Any number of log streams
// may be open concurrently, including for the same container.
func (b *Bridge) OpenLog(ctx context.Context, key, containerID string, opts docker.LogOptions) (*LogStream, error) {
	cctx, cancel := context.WithCancel(ctx)
	lines, errs, err := b.client.StreamLogs(cctx, containerID, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	s := newLogStream(b, Handle{Target: key, Mode: ModeLog}, cancel)

	b.mu.Lock()
	if b.logs[key] == nil {
		b.logs[key] = make(map[*LogStream]struct{})
	}
	b.logs[key][s] = struct{}{}
	b.mu.Unlock()

	go s.pump(lines, errs)
	return s, nil
}

// releaseExec removes an exec session from the registry. Only the session
// that holds the slot may release it.
func (b *Bridge) releaseExec(s *ExecSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.execs[s.handle.Target] == s {
		delete(b.execs, s.handle.Target)
	}
}

func (b *Bridge) releaseLog(s *LogStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set := b.logs[s.handle.Target]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(b.logs, s.handle.Target)
		}
	}
}

// ActiveExec reports whether an exec session is open for the container key.
func (b *Bridge) ActiveExec(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.execs[key]
	return ok
}
