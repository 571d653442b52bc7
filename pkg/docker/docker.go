package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	dtypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

const (
	// inspectWorkers bounds the parallel inspect fan-out of a listing.
	inspectWorkers = 4

	// logsTailLines and logsMaxChars cap what a log view returns.
	logsTailLines = "50"
	logsMaxChars  = 3800

	// primaryInterface is the network block picked from stats when present.
	primaryInterface = "eth0"

	shortIDLen = 12
)

// Options carries the facade's collaborators.
type Options struct {
	Sanitizer       *sanitize.Sanitizer
	Broker          *events.Broker
	IsAdmin         func(userID int64) bool
	IsAuthenticated func(userID int64) bool
	Logger          zerolog.Logger
}

// Service exposes the container engine to the handlers: listings, stats,
// logs, images, engine summary, and the guarded manage operations.
type Service struct {
	api    API
	san    *sanitize.Sanitizer
	broker *events.Broker
	log    zerolog.Logger

	isAdmin         func(int64) bool
	isAuthenticated func(int64) bool

	restartPollAttempts int
	restartPollInterval time.Duration
}

// NewService wires a facade over an engine client.
func NewService(api API, opts Options) *Service {
	s := &Service{
		api:                 api,
		san:                 opts.Sanitizer,
		broker:              opts.Broker,
		log:                 opts.Logger,
		isAdmin:             opts.IsAdmin,
		isAuthenticated:     opts.IsAuthenticated,
		restartPollAttempts: 3,
		restartPollInterval: 1500 * time.Millisecond,
	}
	if s.san == nil {
		s.san = sanitize.New()
	}
	if s.isAdmin == nil {
		s.isAdmin = func(int64) bool { return false }
	}
	if s.isAuthenticated == nil {
		s.isAuthenticated = func(int64) bool { return false }
	}
	return s
}

// ListContainers returns one summary per container, running or not.
// Inspects run on a bounded worker pool; a container that fails to
// inspect is logged and skipped rather than failing the listing.
func (s *Service) ListContainers(ctx context.Context) ([]types.ContainerSummary, error) {
	list, err := s.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, errs.New(errs.CodeContainerOp, "list containers", err)
	}

	results := make([]*types.ContainerSummary, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectWorkers)
	for i, c := range list {
		i, c := i, c
		g.Go(func() error {
			detail, err := s.api.ContainerInspect(gctx, c.ID)
			if err != nil {
				s.log.Warn().Str("container_id", shorten(c.ID)).
					Str("error", s.san.MaskError(err)).
					Msg("inspect failed, skipping container")
				return nil
			}
			results[i] = summarize(c, detail)
			return nil
		})
	}
	g.Wait()

	summaries := make([]types.ContainerSummary, 0, len(results))
	for _, r := range results {
		if r != nil {
			summaries = append(summaries, *r)
		}
	}
	return summaries, nil
}

// ContainerStats pulls a one-shot stats sample plus inspect attributes
// for a single container. Missing engine fields come back as zeros.
func (s *Service) ContainerStats(ctx context.Context, id string) (*types.ContainerFullStats, error) {
	detail, err := s.api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, s.opError("inspect container", id, err)
	}

	resp, err := s.api.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return nil, s.opError("read container stats", id, err)
	}
	defer resp.Body.Close()

	var raw dtypes.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errs.New(errs.CodeContainerOp, "decode container stats", err, "container_id", shorten(id))
	}

	full := &types.ContainerFullStats{
		Name: containerName(detail),
		Memory: types.MemoryStats{
			Usage:   raw.MemoryStats.Usage,
			Limit:   raw.MemoryStats.Limit,
			Percent: memoryPercent(raw.MemoryStats.Usage, raw.MemoryStats.Limit),
		},
		CPU: types.CPUStats{
			Periods:          raw.CPUStats.ThrottlingData.Periods,
			ThrottledPeriods: raw.CPUStats.ThrottlingData.ThrottledPeriods,
			ThrottledTime:    raw.CPUStats.ThrottlingData.ThrottledTime,
		},
		Network: primaryNetwork(raw.Networks),
	}
	if detail.State != nil {
		full.Attrs.Running = detail.State.Running
		full.Attrs.Paused = detail.State.Paused
		full.Attrs.Restarting = detail.State.Restarting
		full.Attrs.Dead = detail.State.Dead
		full.Attrs.ExitCode = detail.State.ExitCode
	}
	if detail.ContainerJSONBase != nil {
		full.Attrs.RestartCount = detail.RestartCount
		full.Attrs.Args = detail.Args
	}
	if detail.Config != nil {
		full.Attrs.Env = detail.Config.Env
		full.Attrs.Cmd = []string(detail.Config.Cmd)
	}
	return full, nil
}

// FetchLogs returns the last lines of a container's stdout and stderr,
// UTF-8-repaired, capped to the final characters of the tail, and
// sanitized for the given caller before anything leaves the facade.
func (s *Service) FetchLogs(ctx context.Context, id string, caller sanitize.Caller) (string, error) {
	detail, err := s.api.ContainerInspect(ctx, id)
	if err != nil {
		return "", s.opError("inspect container", id, err)
	}

	rc, err := s.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       logsTailLines,
	})
	if err != nil {
		return "", s.opError("fetch container logs", id, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if detail.Config != nil && detail.Config.Tty {
		_, err = io.Copy(&buf, rc)
	} else {
		// without a TTY the engine multiplexes both streams
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		return "", errs.New(errs.CodeContainerOp, "read container logs", err, "container_id", shorten(id))
	}

	text := strings.ToValidUTF8(buf.String(), "�")
	if runes := []rune(text); len(runes) > logsMaxChars {
		text = string(runes[len(runes)-logsMaxChars:])
	}
	return s.san.ContainerLogs(text, caller), nil
}

// ListImages returns one record per local image. Per-image inspect
// failures degrade the record to listing fields instead of failing the
// whole view.
func (s *Service) ListImages(ctx context.Context) ([]types.ImageSummary, error) {
	list, err := s.api.ImageList(ctx, dtypes.ImageListOptions{})
	if err != nil {
		return nil, errs.New(errs.CodeImageOp, "list images", err)
	}

	images := make([]types.ImageSummary, 0, len(list))
	for _, im := range list {
		row := types.ImageSummary{
			ID:      shortImageID(im.ID),
			Name:    primaryTag(im.RepoTags),
			Tags:    im.RepoTags,
			Size:    units.HumanSize(float64(im.Size)),
			Created: relativeSince(time.Unix(im.Created, 0)),
			Labels:  im.Labels,
		}
		detail, _, err := s.api.ImageInspectWithRaw(ctx, im.ID)
		if err != nil {
			s.log.Warn().Str("image_id", row.ID).
				Str("error", s.san.MaskError(err)).
				Msg("image inspect failed, returning listing fields only")
			images = append(images, row)
			continue
		}
		row.Architecture = detail.Architecture
		row.OS = detail.Os
		row.Author = detail.Author
		if detail.Config != nil {
			row.Env = detail.Config.Env
			row.Entrypoint = []string(detail.Config.Entrypoint)
			row.Cmd = []string(detail.Config.Cmd)
			row.ExposedPorts = portStrings(detail.Config.ExposedPorts)
			if len(row.Labels) == 0 {
				row.Labels = detail.Config.Labels
			}
		}
		images = append(images, row)
	}
	return images, nil
}

// EngineSummary aggregates engine-wide counters and identity.
func (s *Service) EngineSummary(ctx context.Context) (*types.EngineSummary, error) {
	info, err := s.api.Info(ctx)
	if err != nil {
		return nil, errs.New(errs.CodeConnection, "read engine info", err)
	}
	ver, err := s.api.ServerVersion(ctx)
	if err != nil {
		return nil, errs.New(errs.CodeConnection, "read engine version", err)
	}
	return &types.EngineSummary{
		Version:           ver.Version,
		APIVersion:        ver.APIVersion,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
		KernelVersion:     info.KernelVersion,
		OperatingSystem:   info.OperatingSystem,
		Architecture:      info.Architecture,
		NCPU:              info.NCPU,
		MemTotal:          units.HumanSize(float64(info.MemTotal)),
		Name:              info.Name,
	}, nil
}

// IsAvailable pings the engine.
func (s *Service) IsAvailable(ctx context.Context) error {
	if _, err := s.api.Ping(ctx); err != nil {
		return errs.New(errs.CodeConnection, "ping engine", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Service) Close() error {
	return s.api.Close()
}

func (s *Service) opError(op, id string, err error) error {
	code := errs.CodeContainerOp
	if errdefs.IsNotFound(err) {
		code = errs.CodeNotFound
	}
	return errs.New(code, op, err, "container_id", shorten(id))
}

func summarize(row dtypes.Container, detail dtypes.ContainerJSON) *types.ContainerSummary {
	sum := &types.ContainerSummary{
		ShortID: shorten(row.ID),
		Name:    containerName(detail),
		Image:   row.Image,
		Created: time.Unix(row.Created, 0).Format("2006-01-02 15:04:05"),
		RunAt:   "-",
		Status:  row.Status,
	}
	if sum.Name == "" && len(row.Names) > 0 {
		sum.Name = strings.TrimPrefix(row.Names[0], "/")
	}
	if sum.Status == "" && detail.State != nil {
		sum.Status = detail.State.Status
	}
	if detail.State != nil && detail.State.Running {
		if started, err := time.Parse(time.RFC3339Nano, detail.State.StartedAt); err == nil {
			sum.RunAt = relativeSince(started)
		}
	}
	return sum
}

func containerName(detail dtypes.ContainerJSON) string {
	if detail.ContainerJSONBase == nil {
		return ""
	}
	return strings.TrimPrefix(detail.Name, "/")
}

func memoryPercent(usage, limit uint64) float64 {
	if limit == 0 {
		return 0
	}
	return math.Round(float64(usage)/float64(limit)*100*100) / 100
}

// primaryNetwork picks eth0 when present, otherwise the first interface
// in name order, otherwise a zero block.
func primaryNetwork(networks map[string]dtypes.NetworkStats) types.NetworkStats {
	if len(networks) == 0 {
		return types.NetworkStats{}
	}
	name := primaryInterface
	if _, ok := networks[name]; !ok {
		names := make([]string, 0, len(networks))
		for n := range networks {
			names = append(names, n)
		}
		sort.Strings(names)
		name = names[0]
	}
	n := networks[name]
	return types.NetworkStats{
		Interface: name,
		RxBytes:   n.RxBytes,
		TxBytes:   n.TxBytes,
		RxErrors:  n.RxErrors,
		TxErrors:  n.TxErrors,
		RxDropped: n.RxDropped,
		TxDropped: n.TxDropped,
	}
}

func shorten(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func shortImageID(id string) string {
	return shorten(strings.TrimPrefix(id, "sha256:"))
}

func primaryTag(tags []string) string {
	if len(tags) == 0 {
		return "<none>:<none>"
	}
	return tags[0]
}

func relativeSince(t time.Time) string {
	if t.IsZero() || t.Unix() <= 0 {
		return "-"
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}

func portStrings(ports nat.PortSet) []string {
	out := make([]string, 0, len(ports))
	for p := range ports {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
