package bot

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
)

func TestLaunchRejectsSecondLaunch(t *testing.T) {
	h := newRuntime(t, parkedPoller{})

	require.NoError(t, h.r.Launch())

	err := h.r.Launch()
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInit))

	require.NoError(t, h.r.Shutdown("test over"))
}

func TestIsHealthyFollowsLifecycle(t *testing.T) {
	h := newRuntime(t, parkedPoller{})

	assert.False(t, h.r.IsHealthy())

	require.NoError(t, h.r.Launch())
	assert.True(t, h.r.IsHealthy())

	require.NoError(t, h.r.Shutdown("done"))
	assert.False(t, h.r.IsHealthy())
}

func TestLaunchStartsStateCollector(t *testing.T) {
	h := newRuntime(t, parkedPoller{})
	h.sessions.Authenticate(allowedID)

	require.NoError(t, h.r.Launch())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SessionsActive) == 1
	}, 2*time.Second, 10*time.Millisecond,
		"the sessions gauge must be refreshed once the runtime is up")

	require.NoError(t, h.r.Shutdown("done"))
}

func TestShutdownDrainsInflightHandlers(t *testing.T) {
	h := newRuntime(t, parkedPoller{})

	started := make(chan struct{}, 1)
	h.reg.Command("/slow", func(c tele.Context) error {
		started <- struct{}{}
		time.Sleep(150 * time.Millisecond)
		return c.Send("done")
	})

	require.NoError(t, h.r.Launch())
	h.bot.Updates <- messageUpdate(1, allowedID, "/slow")

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}

	require.NoError(t, h.r.Shutdown("drain test"))
	assert.Contains(t, h.wire.sentTexts(), "done",
		"shutdown must wait for handlers already in flight")
}

func TestHandleDispatchesMessage(t *testing.T) {
	h := newRuntime(t, nil)

	got := make(chan string, 1)
	h.reg.Command("/ping", func(c tele.Context) error {
		got <- c.Text()
		return nil
	})

	before := testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("message"))
	h.r.handle(messageUpdate(2, allowedID, "/ping"))

	select {
	case text := <-got:
		assert.Equal(t, "/ping", text)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not dispatched")
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("message")))
}

func TestHandleDropsUnknownUpdateKinds(t *testing.T) {
	h := newRuntime(t, nil)

	before := testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("unknown"))
	h.r.handle(tele.Update{ID: 99, EditedMessage: &tele.Message{ID: 1, Text: "edited"}})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UpdatesTotal.WithLabelValues("unknown")))
	assert.Empty(t, h.wire.all(), "dropped updates must not reach the Bot API")
}

func TestHandleRecoversFromPanickingHandler(t *testing.T) {
	h := newRuntime(t, nil)

	h.reg.Command("/boom", func(tele.Context) error { panic("kaboom") })
	h.r.handle(messageUpdate(3, allowedID, "/boom"))

	require.Eventually(t, func() bool {
		for _, text := range h.wire.sentTexts() {
			if text == templates.GenericError {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "a recovered panic must still answer the chat")
}

func TestRecoverBudget(t *testing.T) {
	h := newRuntime(t, nil)

	for i := 0; i < maxIngressRestarts; i++ {
		assert.True(t, h.r.Recover(), "restart %d is within budget", i+1)
	}
	assert.False(t, h.r.Recover())
}

func TestIngressFailuresExhaustBudgetAndShutDown(t *testing.T) {
	poller := &droppingPoller{}
	h := newRuntime(t, poller)
	h.r.ingressBackoff = time.Millisecond

	require.NoError(t, h.r.Launch())

	require.Eventually(t, func() bool {
		h.r.mu.Lock()
		defer h.r.mu.Unlock()
		return !h.r.running
	}, 3*time.Second, 10*time.Millisecond, "runtime must shut down once the restart budget is spent")

	assert.Equal(t, 1+maxIngressRestarts, poller.polled())
}
