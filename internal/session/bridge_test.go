package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whaletop/whaletop/internal/docker"
	apperrors "github.com/whaletop/whaletop/internal/errors"
	"github.com/whaletop/whaletop/internal/reconcile"
)

// fakeTerminal tracks raw-mode state without touching a real TTY.
type fakeTerminal struct {
	raw      atomic.Bool
	rawCount atomic.Int32
	entered  chan struct{} // signalled on MakeRaw
}

func newFakeTerminal() *fakeTerminal {
	return &fakeTerminal{entered: make(chan struct{}, 8)}
}

func (t *fakeTerminal) MakeRaw() (func() error, error) {
	t.raw.Store(true)
	t.rawCount.Add(1)
	t.entered <- struct{}{}
	return func() error {
		t.raw.Store(false)
		return nil
	}, nil
}

func (t *fakeTerminal) Size() (int, int, error) {
	return 120, 40, nil
}

// pipeConn is an in-memory duplex stream. The test side writes to feed
// the session's reads and reads what the session wrote.
type pipeConn struct {
	readSide  *io.PipeReader
	writeSide *io.PipeWriter
	closeOnce sync.Once
}

func newPipePair() (session *pipeConn, remoteIn *io.PipeWriter, remoteOut *io.PipeReader) {
	// remote -> session
	inR, inW := io.Pipe()
	// session -> remote
	outR, outW := io.Pipe()
	return &pipeConn{readSide: inR, writeSide: outW}, inW, outR
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.readSide.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.writeSide.Write(b) }
func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() {
		_ = p.readSide.Close()
		_ = p.writeSide.Close()
	})
	return nil
}

// fakeStreamer scripts the adapter side of the bridge.
type fakeStreamer struct {
	mu         sync.Mutex
	execConns  []*docker.ExecConn
	execErr    error
	onOpenExec func() // runs while the exec dial is in flight
	logLines   chan docker.LogLine
	logErrs    chan error
	logErr     error
	resizes    int
}

func (f *fakeStreamer) StreamLogs(_ context.Context, _ string, _ docker.LogOptions) (<-chan docker.LogLine, <-chan error, error) {
	if f.logErr != nil {
		return nil, nil, f.logErr
	}
	return f.logLines, f.logErrs, nil
}

func (f *fakeStreamer) OpenExec(_ context.Context, _ string, _ []string) (*docker.ExecConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onOpenExec != nil {
		f.onOpenExec()
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	if len(f.execConns) == 0 {
		return nil, errors.New("no scripted exec conn")
	}
	conn := f.execConns[0]
	f.execConns = f.execConns[1:]
	return conn, nil
}

func (f *fakeStreamer) ResizeExec(_ context.Context, _ string, _, _ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes++
	return nil
}

func (f *fakeStreamer) InspectExec(_ context.Context, _ string) (int, bool, error) {
	return 0, false, nil
}

// syncWriter lets concurrent copies write into one buffer safely.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestOpenExecExclusivity(t *testing.T) {
	conn, _, _ := newPipePair()
	streamer := &fakeStreamer{execConns: []*docker.ExecConn{{ID: "e1", Stream: conn}}}
	b := NewBridge(streamer, newFakeTerminal())

	first, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"/bin/bash"})
	require.NoError(t, err)

	_, err = b.OpenExec(context.Background(), "container/web", "c1", []string{"/bin/bash"})
	var conflict *apperrors.SessionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "container/web", conflict.ContainerKey)

	// Closing the first frees the slot.
	first.Close()
	conn2, _, _ := newPipePair()
	streamer.mu.Lock()
	streamer.execConns = []*docker.ExecConn{{ID: "e2", Stream: conn2}}
	streamer.mu.Unlock()
	second, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"/bin/bash"})
	require.NoError(t, err)
	second.Close()
}

func TestOpenExecDialFailureFreesSlot(t *testing.T) {
	streamer := &fakeStreamer{execErr: errors.New("daemon hiccup")}
	b := NewBridge(streamer, newFakeTerminal())

	_, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"sh"})
	require.Error(t, err)
	assert.False(t, b.ActiveExec("container/web"))
}

func TestOpenExecForceClosedWhileDialingRestoresTerminal(t *testing.T) {
	conn, _, _ := newPipePair()
	term := newFakeTerminal()
	streamer := &fakeStreamer{execConns: []*docker.ExecConn{{ID: "e1", Stream: conn}}}
	b := NewBridge(streamer, term)

	// The container is removed while the exec dial is still in flight.
	streamer.onOpenExec = func() { b.CloseTarget("container/web") }

	_, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"sh"})
	var transport *apperrors.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "container/web", transport.ContainerKey)

	assert.False(t, term.raw.Load(), "terminal restored before the failed open returns")
	assert.Equal(t, int32(1), term.rawCount.Load())
	assert.False(t, b.ActiveExec("container/web"))
}

func TestExecRunForwardsBytes(t *testing.T) {
	conn, remoteIn, remoteOut := newPipePair()
	streamer := &fakeStreamer{execConns: []*docker.ExecConn{{ID: "e1", Stream: conn}}}
	term := newFakeTerminal()
	b := NewBridge(streamer, term)

	s, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"sh"})
	require.NoError(t, err)

	stdinR, stdinW := io.Pipe()
	stdout := &syncWriter{}

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background(), stdinR, stdout) }()

	<-term.entered
	assert.True(t, term.raw.Load(), "raw mode held while session is live")

	// User keystrokes reach the remote byte-for-byte.
	_, err = stdinW.Write([]byte("ls -la\r"))
	require.NoError(t, err)
	got := make([]byte, 7)
	_, err = io.ReadFull(remoteOut, got)
	require.NoError(t, err)
	assert.Equal(t, "ls -la\r", string(got))

	// Remote output streams back as it arrives.
	_, err = remoteIn.Write([]byte("total 0\r\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return stdout.String() == "total 0\r\n"
	}, time.Second, 5*time.Millisecond)

	// Remote process exit ends the session and restores the terminal.
	require.NoError(t, remoteIn.Close())
	require.NoError(t, <-runDone)
	assert.False(t, term.raw.Load(), "terminal restored after remote exit")
	assert.Equal(t, int32(1), term.rawCount.Load())
	assert.False(t, b.ActiveExec("container/web"))
	_ = stdinW.Close()
}

func TestExecForceCloseRestoresTerminalSynchronously(t *testing.T) {
	conn, _, _ := newPipePair()
	streamer := &fakeStreamer{execConns: []*docker.ExecConn{{ID: "e1", Stream: conn}}}
	term := newFakeTerminal()
	b := NewBridge(streamer, term)

	s, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"sh"})
	require.NoError(t, err)

	stdinR, stdinW := io.Pipe()
	defer func() { _ = stdinW.Close() }()
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background(), stdinR, &syncWriter{}) }()
	<-term.entered

	// Simulated container removal mid-session: by the time CloseTarget
	// returns, raw mode must already be off.
	b.CloseTarget("container/web")
	assert.False(t, term.raw.Load(), "raw mode disabled before force-close returns")

	require.NoError(t, <-runDone)
	assert.False(t, b.ActiveExec("container/web"))
}

func TestBridgeWatchForceClosesOnRemovedEvent(t *testing.T) {
	conn, _, _ := newPipePair()
	streamer := &fakeStreamer{execConns: []*docker.ExecConn{{ID: "e1", Stream: conn}}}
	term := newFakeTerminal()
	b := NewBridge(streamer, term)

	s, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"sh"})
	require.NoError(t, err)

	events := make(chan reconcile.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		b.Watch(ctx, events)
		close(watchDone)
	}()

	events <- reconcile.Event{Type: reconcile.EventRemoved, Key: "container/web"}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after Removed event")
	}

	close(events)
	<-watchDone
}

func TestExecCloseIsIdempotent(t *testing.T) {
	conn, _, _ := newPipePair()
	streamer := &fakeStreamer{execConns: []*docker.ExecConn{{ID: "e1", Stream: conn}}}
	b := NewBridge(streamer, newFakeTerminal())

	s, err := b.OpenExec(context.Background(), "container/web", "c1", []string{"sh"})
	require.NoError(t, err)

	s.Close()
	s.Close()
	b.CloseTarget("container/web")
}
