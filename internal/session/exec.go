package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/whaletop/whaletop/internal/docker"
	apperrors "github.com/whaletop/whaletop/internal/errors"
)

// ExecSession is one interactive command channel into a container. The
// local terminal is in raw mode for the whole lifetime of Run, and is
// restored unconditionally on every exit path (normal close, remote
// exit, transport error, force-close on container removal) before
// the closing call returns. Failing to restore would corrupt the entire
// dashboard's input handling.
type ExecSession struct {
	bridge *Bridge
	handle Handle
	conn   *docker.ExecConn

	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool

	mu        sync.Mutex
	restoreFn func() error

	exitCode atomic.Int64
}

func newExecSession(b *Bridge, handle Handle, conn *docker.ExecConn, restore func() error) *ExecSession {
	s := &ExecSession{
		bridge:    b,
		handle:    handle,
		conn:      conn,
		done:      make(chan struct{}),
		restoreFn: restore,
	}
	s.exitCode.Store(-1)
	return s
}

// Handle returns the session identity.
func (s *ExecSession) Handle() Handle {
	return s.handle
}

// Done is closed when the session has fully terminated.
func (s *ExecSession) Done() <-chan struct{} {
	return s.done
}

// ExitCode returns the remote command's exit code, or -1 if unknown.
func (s *ExecSession) ExitCode() int {
	return int(s.exitCode.Load())
}

// Run drives the session to completion: stdin forwarded byte-for-byte
// with no local echo or line buffering (the terminal has been in raw
// mode since OpenExec), remote output streamed back unreordered. It
// returns after the terminal has been restored.
func (s *ExecSession) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if s.conn == nil {
		return errors.New("exec session has no transport")
	}
	defer s.Close()

	// Tell the remote TTY how big we are. Best-effort: a failed resize
	// only costs rendering fidelity.
	if width, height, serr := s.bridge.terminal.Size(); serr == nil {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.bridge.client.ResizeExec(rctx, s.conn.ID, uint(height), uint(width))
		cancel()
	}

	// External cancellation closes the transport, which unblocks the
	// output copy below.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	go func() {
		_, _ = io.Copy(s.conn.Stream, stdin)
	}()

	_, copyErr := io.Copy(stdout, s.conn.Stream)

	wasForced := s.closing.Load()
	s.Close()

	if copyErr != nil && !wasForced && ctx.Err() == nil {
		return &apperrors.TransportError{
			ContainerKey: s.handle.Target,
			Mode:         string(ModeExec),
			Err:          copyErr,
		}
	}

	ictx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if code, running, ierr := s.bridge.client.InspectExec(ictx, s.conn.ID); ierr == nil && !running {
		s.exitCode.Store(int64(code))
	}
	return nil
}

// Close terminates the session. The terminal is restored synchronously
// before Close returns, on every path including force-close from the
// reconciler watcher. Idempotent.
func (s *ExecSession) Close() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.restoreTerminal()
		if s.conn != nil {
			_ = s.conn.Stream.Close()
		}
		close(s.done)
		if s.bridge != nil {
			s.bridge.releaseExec(s)
		}
	})
}

func (s *ExecSession) restoreTerminal() {
	s.mu.Lock()
	fn := s.restoreFn
	s.restoreFn = nil
	s.mu.Unlock()
	if fn != nil {
		_ = fn()
	}
}
