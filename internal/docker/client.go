// Package docker provides the runtime client adapter: a thin polling and
// streaming façade over the Docker engine API. It is the only package
// that talks to the daemon; everything above consumes topology objects
// and streams.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	apperrors "github.com/whaletop/whaletop/internal/errors"
	"github.com/whaletop/whaletop/internal/topology"
)

// Client defines the interface for Docker operations the dashboard core
// consumes. Implementations must classify failures into AdapterError so
// the poll loop can distinguish "daemon down" from "object gone".
// All methods accept context.Context for cancellation and timeout support.
type Client interface {
	// Ping verifies the Docker daemon is accessible. Returns error if connection fails.
	Ping(ctx context.Context) error
	// Close closes the Docker client connection and releases resources.
	Close() error

	// ListObjects returns one poll's raw runtime objects: all containers
	// (optionally including stopped ones) plus swarm services when the
	// daemon is a swarm manager.
	//
	// Example:
	//   objects, err := cli.ListObjects(ctx)
	//   if err != nil {
	//       if apperrors.IsUnreachable(err) {
	//           // keep the previous topology, retry next tick
	//       }
	//       return err
	//   }
	//   forest, _ := classifier.Classify(objects)
	ListObjects(ctx context.Context) ([]topology.RuntimeObject, error)

	// StreamLogs opens a log stream for a container. Lines arrive on the
	// returned channel in engine order with parsed timestamps; the channel
	// closes when the backlog is exhausted (follow=false), the context is
	// cancelled, or the transport fails. At most one error is delivered
	// on the error channel.
	StreamLogs(ctx context.Context, containerID string, opts LogOptions) (<-chan LogLine, <-chan error, error)

	// OpenExec starts an interactive command in a container with a TTY
	// attached and returns the raw bidirectional stream.
	OpenExec(ctx context.Context, containerID string, cmd []string) (*ExecConn, error)
	// ResizeExec propagates a terminal size change to a running exec.
	ResizeExec(ctx context.Context, execID string, height, width uint) error
	// InspectExec returns the exit code of an exec and whether it is
	// still running.
	InspectExec(ctx context.Context, execID string) (exitCode int, running bool, err error)

	// StopContainer stops a running container using the engine's default grace period.
	StopContainer(ctx context.Context, containerID string) error
	// PauseContainer freezes a running container.
	PauseContainer(ctx context.Context, containerID string) error
	// UnpauseContainer unfreezes a paused container.
	UnpauseContainer(ctx context.Context, containerID string) error
}

// engineClient is the production implementation over the engine API.
type engineClient struct {
	cli        *client.Client
	socketPath string
	opts       Options
}

// Compile-time verification that engineClient implements Client
var _ Client = (*engineClient)(nil)

// NewClient connects to the Docker daemon at socketPath (or default if empty).
func NewClient(socketPath string, opts Options) (Client, error) {
	clientOpts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if socketPath != "" {
		clientOpts = append(clientOpts, client.WithHost(socketPath))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, &apperrors.AdapterError{
			Kind:       apperrors.AdapterUnreachable,
			SocketPath: socketPath,
			Operation:  "NewClient",
			Err:        err,
		}
	}

	return &engineClient{cli: cli, socketPath: socketPath, opts: opts}, nil
}

// wrap classifies an engine error into an AdapterError.
func (w *engineClient) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := apperrors.AdapterUnreachable
	switch {
	case errdefs.IsNotFound(err):
		kind = apperrors.AdapterNotFound
	case errors.Is(err, context.DeadlineExceeded) || errdefs.IsDeadlineExceeded(err):
		kind = apperrors.AdapterTimeout
	}
	return &apperrors.AdapterError{Kind: kind, SocketPath: w.socketPath, Operation: op, Err: err}
}

func (w *engineClient) Ping(ctx context.Context) error {
	if _, err := w.cli.Ping(ctx); err != nil {
		return w.wrap("Ping", err)
	}
	return nil
}

func (w *engineClient) Close() error {
	return w.cli.Close()
}

func (w *engineClient) ListObjects(ctx context.Context) ([]topology.RuntimeObject, error) {
	summaries, err := w.cli.ContainerList(ctx, container.ListOptions{All: w.opts.IncludeStopped})
	if err != nil {
		return nil, w.wrap("ListObjects", err)
	}

	now := time.Now()
	objects := make([]topology.RuntimeObject, 0, len(summaries))
	for _, ctr := range summaries {
		objects = append(objects, topology.RuntimeObject{
			ID:        ctr.ID,
			Kind:      topology.ObjectContainer,
			Name:      containerName(ctr.Names),
			Image:     ctr.Image,
			Labels:    ctr.Labels,
			State:     ctr.State,
			UpdatedAt: now,
		})
	}

	if w.opts.SampleStats {
		w.sampleStats(ctx, objects)
	}

	// Swarm services show up as their own objects so a service with zero
	// running tasks is still visible. Only a swarm manager can answer;
	// on any other daemon the call errors and is deliberately ignored.
	if services, serr := w.cli.ServiceList(ctx, types.ServiceListOptions{}); serr == nil {
		for _, svc := range services {
			objects = append(objects, topology.RuntimeObject{
				ID:        svc.ID,
				Kind:      topology.ObjectService,
				Name:      svc.Spec.Name,
				Labels:    svc.Spec.Labels,
				UpdatedAt: now,
			})
		}
	}

	return objects, nil
}

// containerName extracts the primary name, stripping the engine's leading slash.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

// sampleStats fills CPU and memory usage for running containers with a
// one-shot stats read per container, in parallel. Failures leave the
// fields zero; stats are decoration, not topology.
func (w *engineClient) sampleStats(ctx context.Context, objects []topology.RuntimeObject) {
	var wg sync.WaitGroup
	for i := range objects {
		if objects[i].State != "running" {
			continue
		}
		wg.Add(1)
		go func(obj *topology.RuntimeObject) {
			defer wg.Done()
			cpu, usage, limit, err := w.readStats(ctx, obj.ID)
			if err != nil {
				return
			}
			obj.CPUPercent = cpu
			obj.MemoryUsage = usage
			obj.MemoryLimit = limit
		}(&objects[i])
	}
	wg.Wait()
}

func (w *engineClient) readStats(ctx context.Context, containerID string) (cpu float64, usage, limit uint64, err error) {
	resp, err := w.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, 0, 0, w.wrap("ContainerStats", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, 0, 0, w.wrap("ContainerStats", err)
	}

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage)
	if sysDelta > 0 && cpuDelta >= 0 {
		cpus := float64(stats.CPUStats.OnlineCPUs)
		if cpus == 0 {
			cpus = 1
		}
		cpu = cpuDelta / sysDelta * 100.0 * cpus
	}
	return cpu, stats.MemoryStats.Usage, stats.MemoryStats.Limit, nil
}

func (w *engineClient) StopContainer(ctx context.Context, containerID string) error {
	return w.wrap("StopContainer", w.cli.ContainerStop(ctx, containerID, container.StopOptions{}))
}

func (w *engineClient) PauseContainer(ctx context.Context, containerID string) error {
	return w.wrap("PauseContainer", w.cli.ContainerPause(ctx, containerID))
}

func (w *engineClient) UnpauseContainer(ctx context.Context, containerID string) error {
	return w.wrap("UnpauseContainer", w.cli.ContainerUnpause(ctx, containerID))
}
