package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	dtypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/errdefs"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/auth"
	"github.com/orenlab/pytmbot-sub000/pkg/callback"
	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/docker"
	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
	"github.com/orenlab/pytmbot-sub000/pkg/session"
	"github.com/orenlab/pytmbot-sub000/pkg/sysmon"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
	"github.com/orenlab/pytmbot-sub000/pkg/version"
)

// Fixed cast: user 1 is an authenticated-capable admin, user 2 is on the
// allow-list without admin rights.
const (
	adminID = int64(1)
	plainID = int64(2)
)

const (
	idNginx = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	idRedis = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// apiCall is one captured Bot API request: the method name from the URL
// path plus the request fields, flattened to strings.
type apiCall struct {
	Method string
	Data   map[string]string
}

// recordingTransport stands in for the Bot API. Every request is
// captured and answered with a fixed successful message envelope, which
// is enough for telebot to hand a usable *Message back to the handler.
type recordingTransport struct {
	mu    sync.Mutex
	calls []apiCall
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	call := apiCall{Method: path.Base(req.URL.Path), Data: map[string]string{}}
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		mediaType, params, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if strings.HasPrefix(mediaType, "multipart/") {
			mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
			for {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				value, _ := io.ReadAll(part)
				if part.FileName() != "" {
					call.Data[part.FormName()] = "<file:" + part.FileName() + ">"
					continue
				}
				call.Data[part.FormName()] = string(value)
			}
		} else {
			var fields map[string]any
			if json.Unmarshal(body, &fields) == nil {
				for k, v := range fields {
					call.Data[k] = fmt.Sprint(v)
				}
			}
		}
	}

	rt.mu.Lock()
	rt.calls = append(rt.calls, call)
	rt.mu.Unlock()

	result := `{"ok":true,"result":{"message_id":7,"chat":{"id":1,"type":"private"}}}`
	if call.Method == "sendPhoto" {
		// telebot's Photo.Send dereferences msg.Photo from the response,
		// so the canned envelope must carry a photo array like the real API.
		result = `{"ok":true,"result":{"message_id":7,"chat":{"id":1,"type":"private"},` +
			`"photo":[{"file_id":"f","file_unique_id":"u","width":1,"height":1}]}}`
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(result)),
	}, nil
}

func (rt *recordingTransport) all() []apiCall {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]apiCall(nil), rt.calls...)
}

func (rt *recordingTransport) to(method string) []apiCall {
	var out []apiCall
	for _, c := range rt.all() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (rt *recordingTransport) lastTo(t *testing.T, method string) apiCall {
	t.Helper()
	calls := rt.to(method)
	require.NotEmpty(t, calls, "expected at least one %s call", method)
	return calls[len(calls)-1]
}

// sentTexts collects the outgoing text of every sendMessage and
// editMessageText, in order.
func (rt *recordingTransport) sentTexts() []string {
	var out []string
	for _, c := range rt.all() {
		if c.Method == "sendMessage" || c.Method == "editMessageText" {
			out = append(out, c.Data["text"])
		}
	}
	return out
}

func (rt *recordingTransport) reset() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.calls = nil
}

// fakeEngine is a canned container engine behind the docker facade: an
// nginx container that is up and a redis container that has exited.
type fakeEngine struct {
	mu  sync.Mutex
	ops []string

	containers []dtypes.Container
	inspect    map[string]dtypes.ContainerJSON
	stats      map[string]dtypes.StatsJSON
	logs       map[string][]byte
	images     []image.Summary
	imageMeta  map[string]dtypes.ImageInspect
	info       system.Info
	version    dtypes.Version

	listErr    error
	statsErr   error
	logsErr    error
	startErr   error
	stopErr    error
	restartErr error
	renameErr  error
}

func newFakeEngine() *fakeEngine {
	nginx := dtypes.ContainerJSON{
		ContainerJSONBase: &dtypes.ContainerJSONBase{
			ID:           idNginx,
			Name:         "/nginx",
			RestartCount: 1,
			State: &dtypes.ContainerState{
				Status:    "running",
				Running:   true,
				StartedAt: "2025-06-01T10:00:00.000000000Z",
			},
		},
		Config: &container.Config{
			Image: "nginx:latest",
			Cmd:   strslice.StrSlice{"nginx", "-g", "daemon off;"},
			Tty:   true,
		},
	}
	redis := dtypes.ContainerJSON{
		ContainerJSONBase: &dtypes.ContainerJSONBase{
			ID:   idRedis,
			Name: "/redis",
			State: &dtypes.ContainerState{
				Status:   "exited",
				ExitCode: 137,
			},
		},
		Config: &container.Config{Image: "redis:7"},
	}

	nginxStats := dtypes.StatsJSON{}
	nginxStats.MemoryStats = dtypes.MemoryStats{Usage: 52428800, Limit: 104857600}
	nginxStats.Networks = map[string]dtypes.NetworkStats{
		"eth0": {RxBytes: 1000, TxBytes: 2000},
	}

	return &fakeEngine{
		containers: []dtypes.Container{
			{ID: idNginx, Names: []string{"/nginx"}, Image: "nginx:latest", Created: 1717200000, Status: "Up 3 hours"},
			{ID: idRedis, Names: []string{"/redis"}, Image: "redis:7", Created: 1717100000, Status: "Exited (137) 2 hours ago"},
		},
		inspect: map[string]dtypes.ContainerJSON{
			idNginx: nginx, "nginx": nginx,
			idRedis: redis, "redis": redis,
		},
		stats: map[string]dtypes.StatsJSON{idNginx: nginxStats, "nginx": nginxStats},
		logs: map[string][]byte{
			idNginx: []byte("GET / 200\nGET /health 200\n"),
			"nginx": []byte("GET / 200\nGET /health 200\n"),
		},
		images: []image.Summary{
			{ID: "sha256:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc",
				RepoTags: []string{"nginx:latest"}, Size: 187000000, Created: 1717000000},
		},
		imageMeta: map[string]dtypes.ImageInspect{
			"sha256:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc": {
				Architecture: "amd64", Os: "linux",
			},
		},
		info: system.Info{
			Containers: 2, ContainersRunning: 1, ContainersStopped: 1,
			Images: 1, NCPU: 8, MemTotal: 16 << 30,
			Name: "dockerhost", KernelVersion: "6.8.0", OperatingSystem: "Ubuntu 24.04", Architecture: "x86_64",
		},
		version: dtypes.Version{Version: "25.0.3", APIVersion: "1.44"},
	}
}

func (f *fakeEngine) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeEngine) ContainerList(ctx context.Context, _ container.ListOptions) ([]dtypes.Container, error) {
	f.record("list")
	return f.containers, f.listErr
}

func (f *fakeEngine) ContainerInspect(ctx context.Context, id string) (dtypes.ContainerJSON, error) {
	f.record("inspect " + id)
	detail, ok := f.inspect[id]
	if !ok {
		return dtypes.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
	}
	return detail, nil
}

func (f *fakeEngine) ContainerStatsOneShot(ctx context.Context, id string) (dtypes.ContainerStats, error) {
	f.record("stats " + id)
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

func (f *fakeEngine) ContainerLogs(ctx context.Context, id string, _ container.LogsOptions) (io.ReadCloser, error) {
	f.record("logs " + id)
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return io.NopCloser(bytes.NewReader(f.logs[id])), nil
}

func (f *fakeEngine) ContainerStart(ctx context.Context, id string, _ container.StartOptions) error {
	f.record("start " + id)
	return f.startErr
}

func (f *fakeEngine) ContainerStop(ctx context.Context, id string, _ container.StopOptions) error {
	f.record("stop " + id)
	return f.stopErr
}

func (f *fakeEngine) ContainerRestart(ctx context.Context, id string, _ container.StopOptions) error {
	f.record("restart " + id)
	return f.restartErr
}

func (f *fakeEngine) ContainerRename(ctx context.Context, id, newName string) error {
	f.record("rename " + id + " " + newName)
	return f.renameErr
}

func (f *fakeEngine) ImageList(ctx context.Context, _ dtypes.ImageListOptions) ([]image.Summary, error) {
	f.record("image-list")
	return f.images, nil
}

func (f *fakeEngine) ImageInspectWithRaw(ctx context.Context, id string) (dtypes.ImageInspect, []byte, error) {
	f.record("image-inspect")
	return f.imageMeta[id], nil, nil
}

func (f *fakeEngine) Info(ctx context.Context) (system.Info, error) {
	f.record("info")
	return f.info, nil
}

func (f *fakeEngine) ServerVersion(ctx context.Context) (dtypes.Version, error) {
	f.record("version")
	return f.version, nil
}

func (f *fakeEngine) Ping(ctx context.Context) (dtypes.Ping, error) {
	f.record("ping")
	return dtypes.Ping{}, nil
}

func (f *fakeEngine) Close() error {
	f.record("close")
	return nil
}

// stubHost serves fixed host metrics. Setting loadErr fails the views
// that read the load average.
type stubHost struct {
	loadErr error
}

func (s *stubHost) LoadAverage() (*sysmon.LoadInfo, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return &sysmon.LoadInfo{
		Load1: 0.42, Load5: 0.3, Load15: 0.2,
		CPUCount: 8, ProcsTotal: 210, ProcsRunning: 3, ProcsBlocked: 1,
	}, nil
}

func (s *stubHost) Memory() (*sysmon.MemoryInfo, error) {
	return &sysmon.MemoryInfo{
		Total: 16 << 30, Available: 10 << 30, Used: 6 << 30, Percent: 37.5,
		Free: 4 << 30, Cached: 5 << 30, Buffers: 1 << 30,
	}, nil
}

func (s *stubHost) Swap() (*sysmon.SwapInfo, error) {
	return &sysmon.SwapInfo{Total: 2 << 30, Used: 1 << 29, Free: 3 << 29, Percent: 25}, nil
}

func (s *stubHost) Disks() ([]sysmon.DiskUsage, error) {
	return []sysmon.DiskUsage{
		{Device: "/dev/sda1", MountPoint: "/", FSType: "ext4", Total: 100 << 30, Used: 40 << 30, Free: 60 << 30, Percent: 40},
	}, nil
}

func (s *stubHost) Sensors() ([]sysmon.Temperature, error) {
	return []sysmon.Temperature{{SensorKey: "coretemp", Current: 48.5, Critical: 100}}, nil
}

func (s *stubHost) Uptime() (time.Duration, error) {
	return 73*time.Hour + 15*time.Minute, nil
}

func (s *stubHost) Network() ([]sysmon.InterfaceIO, error) {
	return []sysmon.InterfaceIO{{Name: "eth0", BytesRecv: 1 << 20, BytesSent: 2 << 20, PacketsRecv: 900, PacketsSent: 700}}, nil
}

func (s *stubHost) Host() (*sysmon.HostInfo, error) {
	return &sysmon.HostInfo{
		Hostname: "testhost", OS: "linux", Platform: "debian", PlatformVer: "12",
		KernelVersion: "6.8.0", KernelArch: "x86_64",
	}, nil
}

func (s *stubHost) Self() (*sysmon.SelfUsage, error) {
	return &sysmon.SelfUsage{CPUPercent: 1.5, RSSBytes: 40 << 20, MemoryPercent: 0.3}, nil
}

// stubReleases serves a canned release lookup.
type stubReleases struct {
	rel *version.Release
	err error
}

func (s stubReleases) Latest(context.Context) (*version.Release, error) {
	return s.rel, s.err
}

// stubPlugins serves a canned plugin catalog.
type stubPlugins struct {
	loaded []types.PluginInfo
}

func (s stubPlugins) Loaded() []types.PluginInfo { return s.loaded }

// harness wires a registry from real session, auth, codec, keyboard and
// template components around the fake engine and the recording wire.
type harness struct {
	bot      *tele.Bot
	reg      *Registry
	wire     *recordingTransport
	engine   *fakeEngine
	host     *stubHost
	sessions *session.Store
	codec    *callback.Codec
	cfg      *config.Config
	totp     *auth.Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	wire := &recordingTransport{}
	bot, err := tele.NewBot(tele.Settings{
		Token:   "42:TEST",
		Offline: true,
		Client:  &http.Client{Transport: wire},
	})
	require.NoError(t, err)

	cfg := &config.Config{
		BotToken: config.BotTokenSection{ProdToken: []string{"42:TEST"}},
		AccessControl: config.AccessControlSection{
			AllowedUserIDs:  []int64{adminID, plainID},
			AllowedAdminIDs: []int64{adminID},
			AuthSalt:        []string{"salt"},
		},
	}

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	sessions := session.NewStore()
	codec := callback.New([]byte("callback-secret"))
	engine := newFakeEngine()
	host := &stubHost{}
	svc := docker.NewService(engine, docker.Options{
		Sanitizer:       sanitize.New(),
		IsAdmin:         cfg.IsAdmin,
		IsAuthenticated: sessions.IsAuthenticated,
	})
	totp := auth.NewAuthenticator(cfg.AuthSalt())

	reg := NewRegistry(Options{
		Config:     cfg,
		Renderer:   renderer,
		Sessions:   sessions,
		Gate:       auth.NewGate(sessions),
		TOTP:       totp,
		Docker:     svc,
		Sysmon:     host,
		Codec:      codec,
		Keyboards:  keyboards.NewBuilder(codec),
		Releases:   stubReleases{rel: &version.Release{TagName: "v1.2.3", HTMLURL: "https://example.invalid/rel"}},
		Plugins:    stubPlugins{},
		Sanitizer:  sanitize.New(),
		BotName:    "tmbot",
		BotVersion: "1.2.3",
		BotCommit:  "abc1234",
	})
	reg.Attach(bot)

	return &harness{
		bot:      bot,
		reg:      reg,
		wire:     wire,
		engine:   engine,
		host:     host,
		sessions: sessions,
		codec:    codec,
		cfg:      cfg,
		totp:     totp,
	}
}

func (h *harness) message(userID int64, text string) tele.Context {
	return h.bot.NewContext(tele.Update{
		ID: 1,
		Message: &tele.Message{
			ID:     10,
			Text:   text,
			Sender: &tele.User{ID: userID, Username: "alice", FirstName: "Alice"},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		},
	})
}

func (h *harness) callbackData(userID int64, data string) tele.Context {
	return h.bot.NewContext(tele.Update{
		ID: 2,
		Callback: &tele.Callback{
			ID:     "cb1",
			Data:   data,
			Sender: &tele.User{ID: userID, Username: "alice", FirstName: "Alice"},
			Message: &tele.Message{
				ID:     11,
				Sender: &tele.User{ID: userID, Username: "alice"},
				Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			},
		},
	})
}

// press builds a callback context carrying a freshly signed payload for
// (action, container) bound to userID.
func (h *harness) press(t *testing.T, userID int64, action, ref string) tele.Context {
	t.Helper()
	data, err := h.codec.Encode(action, map[string]string{keyboards.ParamContainer: ref}, userID)
	require.NoError(t, err)
	return h.callbackData(userID, data)
}

// verify grants userID an authenticated session, as a successful TOTP
// exchange would.
func (h *harness) verify(userID int64) {
	h.sessions.Authenticate(userID)
}

var codeOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// validCode returns the current one-time code for userID.
func (h *harness) validCode(t *testing.T, userID int64, username string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(h.totp.Secret(userID, username), time.Now(), codeOpts)
	require.NoError(t, err)
	return code
}

// wrongCode returns a six-digit string the verifier cannot accept in any
// window near now, so a failure test never races the clock.
func (h *harness) wrongCode(t *testing.T, userID int64, username string) string {
	t.Helper()
	secret := h.totp.Secret(userID, username)
	avoid := make(map[string]bool)
	now := time.Now()
	for off := -2; off <= 2; off++ {
		code, err := totp.GenerateCodeCustom(secret, now.Add(time.Duration(off)*30*time.Second), codeOpts)
		require.NoError(t, err)
		avoid[code] = true
	}
	for i := 0; i < 10; i++ {
		candidate := fmt.Sprintf("%06d", i)
		if !avoid[candidate] {
			return candidate
		}
	}
	t.Fatal("no invalid code candidate found")
	return ""
}
