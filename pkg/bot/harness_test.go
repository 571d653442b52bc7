package bot

import (
	"bytes"
	"encoding/json"
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

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/access"
	"github.com/orenlab/pytmbot-sub000/pkg/auth"
	"github.com/orenlab/pytmbot-sub000/pkg/callback"
	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/handlers"
	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
	"github.com/orenlab/pytmbot-sub000/pkg/session"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
)

// allowedID is on the allow-list; strangerID is not.
const (
	allowedID  = int64(1)
	strangerID = int64(9)
)

// apiCall is one captured Bot API request: the method name from the URL
// path plus the request fields, flattened to strings.
type apiCall struct {
	Method string
	Data   map[string]string
}

// recordingTransport stands in for the Bot API: every request is
// captured and answered with a fixed successful message envelope.
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

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body: io.NopCloser(strings.NewReader(
			`{"ok":true,"result":{"message_id":7,"chat":{"id":1,"type":"private"}}}`)),
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

// sentTexts collects the outgoing text of every sendMessage, in order.
func (rt *recordingTransport) sentTexts() []string {
	var out []string
	for _, c := range rt.to("sendMessage") {
		out = append(out, c.Data["text"])
	}
	return out
}

// newOfflineBot builds a bot against the recording transport. poller
// may be nil for tests that never launch the runtime.
func newOfflineBot(t *testing.T, poller tele.Poller) (*tele.Bot, *recordingTransport) {
	t.Helper()

	wire := &recordingTransport{}
	b, err := tele.NewBot(tele.Settings{
		Token:   "42:TEST",
		Offline: true,
		Poller:  poller,
		Client:  &http.Client{Transport: wire},
	})
	require.NoError(t, err)
	return b, wire
}

// runtimeHarness is a Runtime around an offline bot with a minimal but
// real registry, no engine and no host monitor.
type runtimeHarness struct {
	r        *Runtime
	bot      *tele.Bot
	wire     *recordingTransport
	reg      *handlers.Registry
	broker   *events.Broker
	sessions *session.Store
}

func newRuntime(t *testing.T, poller tele.Poller) *runtimeHarness {
	t.Helper()

	b, wire := newOfflineBot(t, poller)

	cfg := &config.Config{
		BotToken: config.BotTokenSection{ProdToken: []string{"42:TEST"}},
		AccessControl: config.AccessControlSection{
			AllowedUserIDs:  []int64{allowedID},
			AllowedAdminIDs: []int64{allowedID},
			AuthSalt:        []string{"salt"},
		},
	}

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	sessions := session.NewStore()
	codec := callback.New([]byte("callback-secret"))

	reg := handlers.NewRegistry(handlers.Options{
		Config:    cfg,
		Renderer:  renderer,
		Sessions:  sessions,
		Gate:      auth.NewGate(sessions),
		TOTP:      auth.NewAuthenticator(cfg.AuthSalt()),
		Codec:     codec,
		Keyboards: keyboards.NewBuilder(codec),
		Sanitizer: sanitize.New(),
		BotName:   "tmbot",
	})

	broker := events.NewBroker()
	r := New(Options{
		Bot:       b,
		Config:    cfg,
		Access:    access.NewController(cfg.IsAllowedUser, broker),
		Rate:      access.NewRateLimiter(100, 10*time.Second),
		Registry:  reg,
		Broker:    broker,
		Collector: metrics.NewCollector(metrics.Sources{ActiveSessions: sessions.ActiveSessions}),
		OpsAddr:   "127.0.0.1:0",
		Version:   "test",
	})
	t.Cleanup(func() { _ = r.Shutdown("test cleanup") })

	return &runtimeHarness{r: r, bot: b, wire: wire, reg: reg, broker: broker, sessions: sessions}
}

func messageUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			ID:     id * 10,
			Text:   text,
			Sender: &tele.User{ID: userID, Username: "alice"},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		},
	}
}

// waitEvent drains sub until an event of the wanted type arrives.
func waitEvent(t *testing.T, sub events.Subscriber, want events.EventType) *events.Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
			return nil
		}
	}
}

// parkedPoller blocks until the runtime closes the stop channel, like a
// healthy long poller with no traffic.
type parkedPoller struct{}

func (parkedPoller) Poll(_ *tele.Bot, _ chan tele.Update, stop chan struct{}) { <-stop }

// droppingPoller exits immediately on every call, like an ingress that
// keeps dying.
type droppingPoller struct {
	mu    sync.Mutex
	calls int
}

func (p *droppingPoller) Poll(*tele.Bot, chan tele.Update, chan struct{}) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func (p *droppingPoller) polled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
