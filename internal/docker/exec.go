package docker

import (
	"context"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

func (w *engineClient) OpenExec(ctx context.Context, containerID string, cmd []string) (*ExecConn, error) {
	resp, err := w.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
		Cmd:          cmd,
	})
	if err != nil {
		return nil, w.wrap("OpenExec", err)
	}

	attach, err := w.cli.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, w.wrap("OpenExec", err)
	}

	return &ExecConn{ID: resp.ID, Stream: &hijackStream{resp: attach}}, nil
}

func (w *engineClient) ResizeExec(ctx context.Context, execID string, height, width uint) error {
	return w.wrap("ResizeExec", w.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{
		Height: height,
		Width:  width,
	}))
}

func (w *engineClient) InspectExec(ctx context.Context, execID string) (int, bool, error) {
	insp, err := w.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		return 0, false, w.wrap("InspectExec", err)
	}
	return insp.ExitCode, insp.Running, nil
}

// hijackStream adapts the engine's hijacked attach response to an
// io.ReadWriteCloser. Reads come from the buffered response reader,
// writes go straight to the underlying connection.
type hijackStream struct {
	resp types.HijackedResponse
}

func (h *hijackStream) Read(p []byte) (int, error) {
	return h.resp.Reader.Read(p)
}

func (h *hijackStream) Write(p []byte) (int, error) {
	return h.resp.Conn.Write(p)
}

func (h *hijackStream) Close() error {
	h.resp.Close()
	return nil
}
