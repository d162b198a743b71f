package session

import (
	"context"
	"sync"
	"time"

	"github.com/whaletop/whaletop/internal/docker"
	apperrors "github.com/whaletop/whaletop/internal/errors"
)

// LogStream is a lazy, cancellable sequence of log lines for one
// container, ordered by source timestamp. The backlog is delivered
// first; with follow the stream then stays open for new lines. The
// stream applies backpressure: when the consumer stops calling Next,
// the underlying transport read stalls rather than buffering without
// bound.
//
// LogStream is built for a single consumer; Next and Seek must be
// called from the same goroutine.
type LogStream struct {
	bridge *Bridge
	handle Handle
	cancel context.CancelFunc

	out  chan docker.LogLine
	done chan struct{}

	closeOnce sync.Once

	mu      sync.Mutex
	seekTo  time.Time
	pending *docker.LogLine
	cursor  time.Time
	err     error
}

func newLogStream(b *Bridge, handle Handle, cancel context.CancelFunc) *LogStream {
	return &LogStream{
		bridge: b,
		handle: handle,
		cancel: cancel,
		out:    make(chan docker.LogLine, 512),
		done:   make(chan struct{}),
	}
}

// Handle returns the session identity.
func (s *LogStream) Handle() Handle {
	return s.handle
}

// Next delivers the next log line. ok is false when the stream has
// terminated (backlog exhausted without follow, stream closed, context
// cancelled, or transport failure; check Err for the latter).
func (s *LogStream) Next(ctx context.Context) (line docker.LogLine, ok bool) {
	s.mu.Lock()
	if p := s.pending; p != nil {
		s.pending = nil
		s.cursor = p.Timestamp
		s.mu.Unlock()
		return *p, true
	}
	s.mu.Unlock()

	select {
	case line, ok = <-s.out:
		if ok {
			s.mu.Lock()
			s.cursor = line.Timestamp
			s.mu.Unlock()
		}
		return line, ok
	case <-s.done:
		return docker.LogLine{}, false
	case <-ctx.Done():
		return docker.LogLine{}, false
	}
}

// Cursor returns the timestamp of the last delivered line.
func (s *LogStream) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Seek discards buffered lines older than the target and resumes
// delivery from there. Used for line-jump and search: the consumer
// re-opens the backlog without follow, seeks, and reads forward.
func (s *LogStream) Seek(cursor time.Time) {
	s.mu.Lock()
	s.seekTo = cursor
	s.pending = nil
	s.mu.Unlock()

	for {
		select {
		case line, ok := <-s.out:
			if !ok {
				return
			}
			if !line.Timestamp.Before(cursor) {
				// First line at or past the target: hold it for the next
				// Next call.
				s.mu.Lock()
				s.pending = &line
				s.mu.Unlock()
				return
			}
		default:
			return
		}
	}
}

// Err returns the transport error that terminated the stream, if any.
// Surfaced once; a cleanly exhausted or closed stream returns nil.
func (s *LogStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the stream. Idempotent; safe from any goroutine.
func (s *LogStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// pump copies adapter lines into the consumer channel, applying the
// seek filter, until the adapter closes the stream or the session is
// closed.
func (s *LogStream) pump(lines <-chan docker.LogLine, errs <-chan error) {
	defer func() {
		close(s.out)
		s.bridge.releaseLog(s)
	}()

	for line := range lines {
		s.mu.Lock()
		skip := !line.Timestamp.IsZero() && line.Timestamp.Before(s.seekTo)
		s.mu.Unlock()
		if skip {
			continue
		}
		select {
		case s.out <- line:
		case <-s.done:
			return
		}
	}

	// Adapter closed the line channel: either clean EOF or a transport
	// failure waiting on the error channel.
	select {
	case err := <-errs:
		if err != nil {
			s.mu.Lock()
			s.err = &apperrors.TransportError{
				ContainerKey: s.handle.Target,
				Mode:         string(ModeLog),
				Err:          err,
			}
			s.mu.Unlock()
		}
	default:
	}
}
