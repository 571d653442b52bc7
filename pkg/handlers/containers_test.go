package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
)

func TestContainersListView(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.commands["/containers"](h.message(plainID, "/containers")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Contains(t, last.Data["text"], "Containers</b> (2)")
	assert.Contains(t, last.Data["text"], "nginx")
	assert.Contains(t, last.Data["text"], "redis")
	assert.Contains(t, last.Data["reply_markup"], "🐳 nginx",
		"every container gets a detail button")
	assert.Contains(t, h.engine.recorded(), "list")
}

func TestContainersListEngineFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.listErr = errors.New("engine down")

	require.NoError(t, h.reg.commands["/containers"](h.message(plainID, "/containers")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Equal(t, genericErrorText, last.Data["text"])
}

func TestImagesView(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.commands["/images"](h.message(plainID, "/images")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Contains(t, last.Data["text"], "nginx:latest")
	assert.Contains(t, last.Data["text"], "linux/amd64")
}

func TestEngineView(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.commands["/docker"](h.message(plainID, "/docker")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Contains(t, last.Data["text"], "Docker engine")
	assert.Contains(t, last.Data["text"], "25.0.3")
	assert.Contains(t, last.Data["text"], "dockerhost")
	assert.Contains(t, last.Data["text"], "2 total, 1 running")
}

func TestContainerDetailView(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.onCallback(h.press(t, plainID, keyboards.ActionContainerFull, "nginx")))

	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["text"], "<b>nginx</b>")
	assert.Contains(t, last.Data["text"], "(50%)")
	assert.Contains(t, last.Data["text"], "running")
	assert.Contains(t, last.Data["reply_markup"], "📜 Logs")
	assert.NotContains(t, last.Data["reply_markup"], "🛠 Manage",
		"no manage row for a non-admin")
	assert.NotEmpty(t, h.wire.to("answerCallbackQuery"), "the press is answered")
}

func TestContainerDetailOffersManageToAdmins(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.onCallback(h.press(t, adminID, keyboards.ActionContainerFull, "nginx")))

	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["reply_markup"], "🛠 Manage")
}

func TestContainerDetailMissingRefIsRejected(t *testing.T) {
	h := newHarness(t)
	data, err := h.codec.Encode(keyboards.ActionContainerFull, nil, plainID)
	require.NoError(t, err)

	require.NoError(t, h.reg.onCallback(h.callbackData(plainID, data)))

	last := h.wire.lastTo(t, "answerCallbackQuery")
	assert.Contains(t, last.Data["text"], "stale or invalid")
	assert.Empty(t, h.engine.recorded())
}

func TestContainerDetailUnknownContainer(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.onCallback(h.press(t, plainID, keyboards.ActionContainerFull, "ghost")))

	last := h.wire.lastTo(t, "answerCallbackQuery")
	assert.Equal(t, notFoundText, last.Data["text"])
}

func TestLogsView(t *testing.T) {
	h := newHarness(t)
	h.verify(plainID)

	require.NoError(t, h.reg.onCallback(h.press(t, plainID, keyboards.ActionContainerLogs, "nginx")))

	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["text"], "Logs: nginx")
	assert.Contains(t, last.Data["text"], "GET / 200")
	assert.Contains(t, last.Data["reply_markup"], keyboards.NavContainers)
}

func TestManageMenuRefusesNonAdmin(t *testing.T) {
	h := newHarness(t)
	h.verify(plainID)

	require.NoError(t, h.reg.onCallback(h.press(t, plainID, keyboards.ActionManageMenu, "nginx")))

	last := h.wire.lastTo(t, "answerCallbackQuery")
	assert.Equal(t, adminsOnlyText, last.Data["text"])
	assert.Empty(t, h.wire.to("editMessageText"), "no manage menu for a non-admin")
}

func TestManageMenuShowsActions(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)

	require.NoError(t, h.reg.onCallback(h.press(t, adminID, keyboards.ActionManageMenu, "nginx")))

	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["text"], "Managing <b>nginx</b>")
	for _, label := range []string{"▶️ Start", "⏹ Stop", "🔄 Restart", "✏️ Rename"} {
		assert.Contains(t, last.Data["reply_markup"], label)
	}
}

func TestManageActionStart(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)
	before := testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("start", "success"))

	require.NoError(t, h.reg.onCallback(h.press(t, adminID, keyboards.ActionStart, "redis")))

	assert.Contains(t, h.engine.recorded(), "start redis")
	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["text"], "<b>redis</b>: start completed")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("start", "success")))
}

func TestManageActionDeniedByFacade(t *testing.T) {
	h := newHarness(t)
	h.verify(plainID)
	before := testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("start", "denied"))

	require.NoError(t, h.reg.onCallback(h.press(t, plainID, keyboards.ActionStart, "redis")))

	assert.NotContains(t, h.engine.recorded(), "start redis",
		"a refused action never reaches the engine")
	last := h.wire.lastTo(t, "answerCallbackQuery")
	assert.Equal(t, deniedActionText, last.Data["text"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("start", "denied")))
}

func TestManageActionEngineFailure(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)
	h.engine.stopErr = errors.New("engine hiccup")
	before := testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("stop", "error"))

	require.NoError(t, h.reg.onCallback(h.press(t, adminID, keyboards.ActionStop, "nginx")))

	last := h.wire.lastTo(t, "answerCallbackQuery")
	assert.Equal(t, genericErrorText, last.Data["text"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("stop", "error")))
}

func TestRestartConfirmsRunningState(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)

	require.NoError(t, h.reg.onCallback(h.press(t, adminID, keyboards.ActionRestart, "nginx")))

	ops := h.engine.recorded()
	assert.Contains(t, ops, "restart nginx")
	assert.Contains(t, ops, "inspect nginx", "the restart is confirmed by polling")
	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["text"], "restart completed")
}

func TestRenameTwoStepFlow(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)

	require.NoError(t, h.reg.onCallback(h.press(t, adminID, keyboards.ActionRenameInfo, "nginx")))

	last := h.wire.lastTo(t, "editMessageText")
	assert.Contains(t, last.Data["text"], "Send the new name for <b>nginx</b>")
	assert.True(t, h.reg.hasRename(adminID))

	h.wire.reset()
	require.NoError(t, h.reg.onText(h.message(adminID, "web-frontend")))

	assert.Contains(t, h.engine.recorded(), "rename nginx web-frontend")
	last = h.wire.lastTo(t, "sendMessage")
	assert.Contains(t, last.Data["text"], "<b>nginx</b> renamed to <b>web-frontend</b>")
	assert.False(t, h.reg.hasRename(adminID), "the prompt is consumed")
}

func TestRenameSlashMessageCancels(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)
	h.reg.setRename(adminID, "nginx")

	require.NoError(t, h.reg.onText(h.message(adminID, "/oops")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Equal(t, renameCancelledText, last.Data["text"])
	assert.False(t, h.reg.hasRename(adminID))
	assert.Empty(t, h.engine.recorded())
}

func TestRenameInvalidNameReArms(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)
	h.reg.setRename(adminID, "nginx")
	before := testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("rename", "invalid"))

	require.NoError(t, h.reg.onText(h.message(adminID, "   ")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Equal(t, invalidNameText, last.Data["text"])
	assert.True(t, h.reg.hasRename(adminID), "a rejected name keeps the prompt armed")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ContainerActions.WithLabelValues("rename", "invalid")))

	h.wire.reset()
	require.NoError(t, h.reg.onText(h.message(adminID, "web")))
	assert.Contains(t, h.engine.recorded(), "rename nginx web")
}

func TestRenamePromptExpires(t *testing.T) {
	h := newHarness(t)
	h.verify(adminID)
	h.reg.renames[adminID] = pendingRename{ref: "nginx", at: time.Now().Add(-renameWindow - time.Minute)}

	require.NoError(t, h.reg.onText(h.message(adminID, "too-late")))

	last := h.wire.lastTo(t, "sendMessage")
	assert.Contains(t, last.Data["text"], "I don't know the command",
		"an expired prompt falls through to the echo")
	assert.Empty(t, h.engine.recorded())
}
