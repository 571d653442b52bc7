package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	dtypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
)

const (
	idNginx = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	idRedis = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	containers   []dtypes.Container
	listErr      error
	inspect      map[string]dtypes.ContainerJSON
	inspectErr   map[string]error
	inspectSeen  map[string]int
	runningAfter map[string]int

	stats    map[string]dtypes.StatsJSON
	statsErr error

	logs    map[string][]byte
	logsErr error

	images          []image.Summary
	imageInspect    map[string]dtypes.ImageInspect
	imageInspectErr map[string]error

	startErr   error
	stopErr    error
	restartErr error
	renameErr  error

	info    system.Info
	version dtypes.Version
	pingErr error
}

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ContainerList(ctx context.Context, _ container.ListOptions) ([]dtypes.Container, error) {
	f.record("list")
	return f.containers, f.listErr
}

func (f *fakeAPI) ContainerInspect(ctx context.Context, id string) (dtypes.ContainerJSON, error) {
	f.record("inspect " + shorten(id))
	f.mu.Lock()
	if f.inspectSeen == nil {
		f.inspectSeen = make(map[string]int)
	}
	f.inspectSeen[id]++
	seen := f.inspectSeen[id]
	f.mu.Unlock()

	if err, ok := f.inspectErr[id]; ok {
		return dtypes.ContainerJSON{}, err
	}
	detail, ok := f.inspect[id]
	if !ok {
		return dtypes.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
	}
	if after, ok := f.runningAfter[id]; ok && detail.State != nil {
		state := *detail.State
		state.Running = seen > after
		detail.State = &state
	}
	return detail, nil
}

func (f *fakeAPI) ContainerStatsOneShot(ctx context.Context, id string) (dtypes.ContainerStats, error) {
	f.record("stats " + shorten(id))
	if f.statsErr != nil {
		return dtypes.ContainerStats{}, f.statsErr
	}
	sj, ok := f.stats[id]
	if !ok {
		return dtypes.ContainerStats{}, errdefs.NotFound(errors.New("no such container"))
	}
	raw, err := json.Marshal(sj)
	if err != nil {
		return dtypes.ContainerStats{}, err
	}
	return dtypes.ContainerStats{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, id string, _ container.LogsOptions) (io.ReadCloser, error) {
	f.record("logs " + shorten(id))
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return io.NopCloser(bytes.NewReader(f.logs[id])), nil
}

func (f *fakeAPI) ContainerStart(ctx context.Context, id string, _ container.StartOptions) error {
	f.record("start " + shorten(id))
	return f.startErr
}

func (f *fakeAPI) ContainerStop(ctx context.Context, id string, _ container.StopOptions) error {
	f.record("stop " + shorten(id))
	return f.stopErr
}

func (f *fakeAPI) ContainerRestart(ctx context.Context, id string, _ container.StopOptions) error {
	f.record("restart " + shorten(id))
	return f.restartErr
}

func (f *fakeAPI) ContainerRename(ctx context.Context, id, newName string) error {
	f.record("rename " + shorten(id) + " " + newName)
	return f.renameErr
}

func (f *fakeAPI) ImageList(ctx context.Context, _ dtypes.ImageListOptions) ([]image.Summary, error) {
	f.record("image-list")
	return f.images, nil
}

func (f *fakeAPI) ImageInspectWithRaw(ctx context.Context, id string) (dtypes.ImageInspect, []byte, error) {
	f.record("image-inspect")
	if err, ok := f.imageInspectErr[id]; ok {
		return dtypes.ImageInspect{}, nil, err
	}
	return f.imageInspect[id], nil, nil
}

func (f *fakeAPI) Info(ctx context.Context) (system.Info, error) {
	f.record("info")
	return f.info, nil
}

func (f *fakeAPI) ServerVersion(ctx context.Context) (dtypes.Version, error) {
	f.record("version")
	return f.version, nil
}

func (f *fakeAPI) Ping(ctx context.Context) (dtypes.Ping, error) {
	f.record("ping")
	return dtypes.Ping{}, f.pingErr
}

func (f *fakeAPI) Close() error {
	f.record("close")
	return nil
}

func runningContainer(id, name, imageRef string) dtypes.ContainerJSON {
	return dtypes.ContainerJSON{
		ContainerJSONBase: &dtypes.ContainerJSONBase{
			ID:           id,
			Name:         "/" + name,
			RestartCount: 2,
			Args:         []string{"-g", "daemon off;"},
			State: &dtypes.ContainerState{
				Status:    "running",
				Running:   true,
				StartedAt: "2025-06-01T10:00:00.000000000Z",
			},
		},
		Config: &container.Config{
			Image: imageRef,
			Env:   []string{"PATH=/usr/bin"},
			Cmd:   strslice.StrSlice{"nginx"},
		},
	}
}

func newTestService(f *fakeAPI) *Service {
	s := NewService(f, Options{
		Sanitizer:       sanitize.New(),
		IsAdmin:         func(id int64) bool { return id == 1 },
		IsAuthenticated: func(id int64) bool { return id == 1 || id == 2 },
	})
	s.restartPollInterval = 0
	return s
}

func TestListContainersSkipsFailedInspect(t *testing.T) {
	f := &fakeAPI{
		containers: []dtypes.Container{
			{ID: idNginx, Names: []string{"/nginx"}, Image: "nginx:latest", Created: 1717200000, Status: "Up 3 hours"},
			{ID: idRedis, Names: []string{"/redis"}, Image: "redis:7", Created: 1717200000, Status: "Up 1 hour"},
		},
		inspect: map[string]dtypes.ContainerJSON{
			idNginx: runningContainer(idNginx, "nginx", "nginx:latest"),
		},
		inspectErr: map[string]error{
			idRedis: errors.New("engine hiccup"),
		},
	}
	s := newTestService(f)

	list, err := s.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "nginx", list[0].Name)
	assert.Equal(t, shorten(idNginx), list[0].ShortID)
	assert.Equal(t, "nginx:latest", list[0].Image)
	assert.Equal(t, "Up 3 hours", list[0].Status)
	assert.NotEqual(t, "-", list[0].RunAt)
}

func TestListContainersPropagatesListError(t *testing.T) {
	f := &fakeAPI{listErr: errors.New("engine down")}
	s := newTestService(f)

	_, err := s.ListContainers(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.CodeContainerOp, errs.CodeOf(err))
}

func TestContainerStats(t *testing.T) {
	sj := dtypes.StatsJSON{}
	sj.MemoryStats = dtypes.MemoryStats{Usage: 52428800, Limit: 104857600}
	sj.CPUStats = dtypes.CPUStats{
		ThrottlingData: dtypes.ThrottlingData{Periods: 100, ThrottledPeriods: 5, ThrottledTime: 1234},
	}
	sj.Networks = map[string]dtypes.NetworkStats{
		"eth0": {RxBytes: 1000, TxBytes: 2000, RxErrors: 1, TxDropped: 3},
		"eth1": {RxBytes: 9999, TxBytes: 9999},
	}
	f := &fakeAPI{
		inspect: map[string]dtypes.ContainerJSON{idNginx: runningContainer(idNginx, "nginx", "nginx:latest")},
		stats:   map[string]dtypes.StatsJSON{idNginx: sj},
	}
	s := newTestService(f)

	full, err := s.ContainerStats(context.Background(), idNginx)
	require.NoError(t, err)
	assert.Equal(t, "nginx", full.Name)
	assert.Equal(t, uint64(52428800), full.Memory.Usage)
	assert.InDelta(t, 50.0, full.Memory.Percent, 0.001)
	assert.Equal(t, uint64(5), full.CPU.ThrottledPeriods)
	assert.Equal(t, "eth0", full.Network.Interface)
	assert.Equal(t, uint64(1000), full.Network.RxBytes)
	assert.True(t, full.Attrs.Running)
	assert.Equal(t, 2, full.Attrs.RestartCount)
	assert.Equal(t, []string{"nginx"}, full.Attrs.Cmd)
	assert.Equal(t, []string{"-g", "daemon off;"}, full.Attrs.Args)
}

func TestContainerStatsZeroLimit(t *testing.T) {
	sj := dtypes.StatsJSON{}
	sj.MemoryStats = dtypes.MemoryStats{Usage: 12345, Limit: 0}
	f := &fakeAPI{
		inspect: map[string]dtypes.ContainerJSON{idNginx: runningContainer(idNginx, "nginx", "nginx:latest")},
		stats:   map[string]dtypes.StatsJSON{idNginx: sj},
	}
	s := newTestService(f)

	full, err := s.ContainerStats(context.Background(), idNginx)
	require.NoError(t, err)
	assert.Zero(t, full.Memory.Percent)
	assert.Empty(t, full.Network.Interface, "no network block means a zero interface")
}

func TestContainerStatsFallbackInterface(t *testing.T) {
	sj := dtypes.StatsJSON{}
	sj.Networks = map[string]dtypes.NetworkStats{
		"veth9": {RxBytes: 7},
		"br0":   {RxBytes: 5},
	}
	f := &fakeAPI{
		inspect: map[string]dtypes.ContainerJSON{idNginx: runningContainer(idNginx, "nginx", "nginx:latest")},
		stats:   map[string]dtypes.StatsJSON{idNginx: sj},
	}
	s := newTestService(f)

	full, err := s.ContainerStats(context.Background(), idNginx)
	require.NoError(t, err)
	assert.Equal(t, "br0", full.Network.Interface)
	assert.Equal(t, uint64(5), full.Network.RxBytes)
}

func TestContainerStatsNotFound(t *testing.T) {
	f := &fakeAPI{}
	s := newTestService(f)

	_, err := s.ContainerStats(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestFetchLogsSanitizes(t *testing.T) {
	var raw bytes.Buffer
	stdout := stdcopy.NewStdWriter(&raw, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&raw, stdcopy.Stderr)
	stdout.Write([]byte("GET / 200 user=admin_user\n"))
	stderr.Write([]byte("\x1b[31mupstream error\x1b[0m token=tok-123456\n"))

	f := &fakeAPI{
		inspect: map[string]dtypes.ContainerJSON{idNginx: runningContainer(idNginx, "nginx", "nginx:latest")},
		logs:    map[string][]byte{idNginx: raw.Bytes()},
	}
	s := NewService(f, Options{Sanitizer: sanitize.New("tok-123456")})

	out, err := s.FetchLogs(context.Background(), idNginx, sanitize.Caller{UserID: 42, Username: "admin_user"})
	require.NoError(t, err)
	assert.NotContains(t, out, "admin_user")
	assert.NotContains(t, out, "tok-123456")
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "upstream error")
	assert.Contains(t, out, "**********")
}

func TestFetchLogsTruncatesToTailChars(t *testing.T) {
	var raw bytes.Buffer
	w := stdcopy.NewStdWriter(&raw, stdcopy.Stdout)
	w.Write([]byte(strings.Repeat("x", logsMaxChars+500) + "END"))

	f := &fakeAPI{
		inspect: map[string]dtypes.ContainerJSON{idNginx: runningContainer(idNginx, "nginx", "nginx:latest")},
		logs:    map[string][]byte{idNginx: raw.Bytes()},
	}
	s := newTestService(f)

	out, err := s.FetchLogs(context.Background(), idNginx, sanitize.Caller{})
	require.NoError(t, err)
	assert.Len(t, []rune(out), logsMaxChars)
	assert.True(t, strings.HasSuffix(out, "END"))
}

func TestFetchLogsTTYStream(t *testing.T) {
	detail := runningContainer(idNginx, "nginx", "nginx:latest")
	detail.Config.Tty = true

	f := &fakeAPI{
		inspect: map[string]dtypes.ContainerJSON{idNginx: detail},
		logs:    map[string][]byte{idNginx: []byte("plain tty output\n")},
	}
	s := newTestService(f)

	out, err := s.FetchLogs(context.Background(), idNginx, sanitize.Caller{})
	require.NoError(t, err)
	assert.Equal(t, "plain tty output\n", out)
}

func TestListImages(t *testing.T) {
	f := &fakeAPI{
		images: []image.Summary{
			{ID: "sha256:" + idNginx, RepoTags: []string{"nginx:latest", "nginx:1.27"}, Size: 187000000, Created: 1717200000},
			{ID: "sha256:" + idRedis, RepoTags: nil, Size: 45000000, Created: 1717200000},
		},
		imageInspect: map[string]dtypes.ImageInspect{
			"sha256:" + idNginx: {
				Architecture: "amd64",
				Os:           "linux",
				Author:       "NGINX Docker Maintainers",
				Config: &container.Config{
					Env:          []string{"NGINX_VERSION=1.27"},
					Entrypoint:   strslice.StrSlice{"/docker-entrypoint.sh"},
					Cmd:          strslice.StrSlice{"nginx", "-g", "daemon off;"},
					ExposedPorts: nat.PortSet{"80/tcp": struct{}{}, "443/tcp": struct{}{}},
				},
			},
		},
		imageInspectErr: map[string]error{
			"sha256:" + idRedis: errors.New("layer store busy"),
		},
	}
	s := newTestService(f)

	images, err := s.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 2)

	assert.Equal(t, "nginx:latest", images[0].Name)
	assert.Equal(t, shorten(idNginx), images[0].ID)
	assert.Equal(t, "amd64", images[0].Architecture)
	assert.Equal(t, []string{"443/tcp", "80/tcp"}, images[0].ExposedPorts)
	assert.Contains(t, images[0].Size, "MB")

	// inspect failed: listing fields survive, details stay empty
	assert.Equal(t, "<none>:<none>", images[1].Name)
	assert.Empty(t, images[1].Architecture)
}

func TestEngineSummary(t *testing.T) {
	f := &fakeAPI{
		info: system.Info{
			Containers:        5,
			ContainersRunning: 3,
			ContainersStopped: 2,
			Images:            10,
			KernelVersion:     "6.8.0",
			OperatingSystem:   "Ubuntu 24.04",
			Architecture:      "x86_64",
			NCPU:              8,
			MemTotal:          16777216000,
			Name:              "ops-host",
		},
		version: dtypes.Version{Version: "25.0.3", APIVersion: "1.44"},
	}
	s := newTestService(f)

	sum, err := s.EngineSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "25.0.3", sum.Version)
	assert.Equal(t, 3, sum.ContainersRunning)
	assert.Equal(t, "ops-host", sum.Name)
	assert.Contains(t, sum.MemTotal, "GB")
}

func TestIsAvailable(t *testing.T) {
	f := &fakeAPI{}
	s := newTestService(f)
	assert.NoError(t, s.IsAvailable(context.Background()))

	f.pingErr = errors.New("connection refused")
	err := s.IsAvailable(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.CodeConnection, errs.CodeOf(err))
}
