package docker

import (
	"context"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
)

// API is the slice of the engine client the facade depends on.
// *client.Client satisfies it; tests substitute a fake.
type API interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStatsOneShot(ctx context.Context, containerID string) (types.ContainerStats, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRename(ctx context.Context, containerID, newName string) error
	ImageList(ctx context.Context, options types.ImageListOptions) ([]image.Summary, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	Info(ctx context.Context) (system.Info, error)
	ServerVersion(ctx context.Context) (types.Version, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Connect opens an engine client against the configured socket or TCP
// address and verifies it with a ping.
func Connect(ctx context.Context, host string) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, errs.New(errs.CodeConnection, "create engine client", err, "host", host)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, errs.New(errs.CodeConnection, "ping engine", err, "host", host)
	}
	return cli, nil
}
