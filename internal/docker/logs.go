package docker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

func (w *engineClient) StreamLogs(ctx context.Context, containerID string, opts LogOptions) (<-chan LogLine, <-chan error, error) {
	inspect, err := w.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, nil, w.wrap("StreamLogs", err)
	}
	tty := inspect.Config != nil && inspect.Config.Tty

	tail := opts.Tail
	if tail == "" {
		tail = "all"
	}
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Follow:     opts.Follow,
		Tail:       tail,
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339Nano)
	}

	reader, err := w.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		return nil, nil, w.wrap("StreamLogs", err)
	}

	lines := make(chan LogLine, 256)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		defer func() { _ = reader.Close() }()

		var readErr error
		if tty {
			// TTY containers produce a single raw stream, no multiplexing
			// headers to strip.
			readErr = scanLines(ctx, reader, "stdout", lines)
		} else {
			// Non-TTY log streams are stdout/stderr multiplexed with
			// 8-byte frame headers; stdcopy demuxes them. Frames arrive
			// sequentially off one connection, so the channel preserves
			// engine order across both streams.
			stdout := &lineWriter{ctx: ctx, source: "stdout", out: lines}
			stderr := &lineWriter{ctx: ctx, source: "stderr", out: lines}
			_, readErr = stdcopy.StdCopy(stdout, stderr, reader)
			stdout.flush()
			stderr.flush()
		}

		if readErr != nil && ctx.Err() == nil && readErr != io.EOF {
			errc <- w.wrap("StreamLogs", readErr)
		}
	}()

	return lines, errc, nil
}

// scanLines reads newline-delimited log lines and delivers them until EOF
// or context cancellation.
func scanLines(ctx context.Context, r io.Reader, source string, out chan<- LogLine) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case out <- parseLogLine(scanner.Text(), source):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// parseLogLine splits the engine's "RFC3339Nano<space>message" format. A
// line that does not start with a parsable timestamp is delivered whole.
func parseLogLine(line, source string) LogLine {
	entry := LogLine{Source: source, Text: line}
	spaceIdx := strings.IndexByte(line, ' ')
	if spaceIdx <= 0 {
		return entry
	}
	ts, err := time.Parse(time.RFC3339Nano, line[:spaceIdx])
	if err != nil {
		return entry
	}
	entry.Timestamp = ts
	entry.Text = strings.TrimSuffix(line[spaceIdx+1:], "\r")
	return entry
}

// lineWriter adapts stdcopy's demuxed byte writes back into log lines.
// stdcopy writes from a single goroutine, so no locking is needed.
type lineWriter struct {
	ctx    context.Context
	source string
	out    chan<- LogLine
	buf    bytes.Buffer
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Partial line: put it back and wait for more bytes.
			l.buf.WriteString(line)
			break
		}
		select {
		case l.out <- parseLogLine(strings.TrimSuffix(line, "\n"), l.source):
		case <-l.ctx.Done():
			return 0, l.ctx.Err()
		}
	}
	return len(p), nil
}

// flush delivers a trailing unterminated line at end of stream.
func (l *lineWriter) flush() {
	if l.buf.Len() == 0 {
		return
	}
	select {
	case l.out <- parseLogLine(l.buf.String(), l.source):
	case <-l.ctx.Done():
	}
	l.buf.Reset()
}
