package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/auth"
	"github.com/orenlab/pytmbot-sub000/pkg/callback"
	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/docker"
	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
	"github.com/orenlab/pytmbot-sub000/pkg/session"
	"github.com/orenlab/pytmbot-sub000/pkg/sysmon"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
	"github.com/orenlab/pytmbot-sub000/pkg/version"
)

const (
	// opTimeout bounds every engine and host metrics call a handler makes.
	opTimeout = 15 * time.Second

	// qrLifetime is how long an enrolment QR code stays in the chat.
	qrLifetime = 60 * time.Second

	// renameWindow is how long a rename prompt waits for the new name.
	renameWindow = 2 * time.Minute
)

// User-facing lines that never go through the template engine, so a
// render failure cannot swallow them.
const (
	mainMenuText           = "🏠 Main menu. Pick a section below."
	staleButtonText        = "⏳ This button is stale or invalid. Reopen the menu."
	adminsOnlyText         = "🚫 This action is for admins only."
	alreadyVerifiedText    = "✅ You are already verified. Your session is active."
	releaseCheckFailedText = "🌐 Could not reach the release service. Try again later."
	genericErrorText       = templates.GenericError
	engineDownText         = "🚧 The container engine is unreachable right now."
	notFoundText           = "🔍 Container not found. It may have been removed."
	deniedActionText       = "🚫 You are not allowed to do that."
	invalidNameText        = "🚫 Invalid name: 1-64 characters, not only whitespace. Send another one."
	renameCancelledText    = "✖️ Rename cancelled."
	qrDeleteManuallyText   = "⚠️ Could not delete the QR code automatically. Please delete it from this chat yourself."

	howUpdateText = `🛠 <b>How to update</b>

1. Pull the new image or download the release binary.
2. Stop the bot.
3. Start the new version. Sessions live in memory and will reset.`
)

// ReleaseSource looks up the newest published release.
type ReleaseSource interface {
	Latest(ctx context.Context) (*version.Release, error)
}

// PluginLister exposes the loaded plugin catalog.
type PluginLister interface {
	Loaded() []types.PluginInfo
}

// Options carries every dependency of the handler registry. All fields
// except Plugins, Releases and Broker are required.
type Options struct {
	Config     *config.Config
	Renderer   *templates.Renderer
	Sessions   *session.Store
	Gate       *auth.Gate
	TOTP       *auth.Authenticator
	Docker     *docker.Service
	Sysmon     sysmon.Provider
	Codec      *callback.Codec
	Keyboards  *keyboards.Builder
	Plugins    PluginLister
	Releases   ReleaseSource
	Sanitizer  *sanitize.Sanitizer
	Broker     *events.Broker
	BotName    string
	BotVersion string
	BotCommit  string
}

// pendingRename is a rename prompt waiting for the new name.
type pendingRename struct {
	ref string
	at  time.Time
}

// Registry is the explicit trigger table: commands, keyboard labels,
// signed callback actions, plain navigation data, and the fallback
// chain for free-form text. Plugins extend it through Command and
// TextRoute; the echo fallback always stays last.
type Registry struct {
	cfg      *config.Config
	view     *templates.Renderer
	sessions *session.Store
	gate     *auth.Gate
	totp     *auth.Authenticator
	engine   *docker.Service
	host     sysmon.Provider
	codec    *callback.Codec
	kb       *keyboards.Builder
	plugins  PluginLister
	releases ReleaseSource
	san      *sanitize.Sanitizer
	broker   *events.Broker
	logger   zerolog.Logger

	botName    string
	botVersion string
	botCommit  string

	qrLifetime time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	bot       *tele.Bot
	commands  map[string]tele.HandlerFunc
	texts     map[string]tele.HandlerFunc
	callbacks map[string]tele.HandlerFunc
	navs      map[string]tele.HandlerFunc
	renames   map[int64]pendingRename

	codeInput   tele.HandlerFunc
	renameInput tele.HandlerFunc
	echo        tele.HandlerFunc
}

// NewRegistry builds the registry and its route tables.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		cfg:        opts.Config,
		view:       opts.Renderer,
		sessions:   opts.Sessions,
		gate:       opts.Gate,
		totp:       opts.TOTP,
		engine:     opts.Docker,
		host:       opts.Sysmon,
		codec:      opts.Codec,
		kb:         opts.Keyboards,
		plugins:    opts.Plugins,
		releases:   opts.Releases,
		san:        opts.Sanitizer,
		broker:     opts.Broker,
		logger:     log.WithComponent("handlers"),
		botName:    opts.BotName,
		botVersion: opts.BotVersion,
		botCommit:  opts.BotCommit,
		qrLifetime: qrLifetime,
		now:        time.Now,
		renames:    make(map[int64]pendingRename),
	}
	if r.san == nil {
		r.san = sanitize.New()
	}
	r.routes()
	return r
}

// SetPlugins late-binds the plugin catalog. The plugin manager needs
// the registry to hand plugins their command hooks, so it is built
// second and wired back here before the bot launches.
func (r *Registry) SetPlugins(p PluginLister) {
	r.mu.Lock()
	r.plugins = p
	r.mu.Unlock()
}

// routes builds the static trigger tables. Privileged callbacks are
// wrapped by the two-factor gate here, at registration time, so the
// gate always runs before payload decoding and a refused click keeps
// its nonce.
func (r *Registry) routes() {
	gated := r.gate.Wrap

	r.commands = map[string]tele.HandlerFunc{
		"/start":             r.instrument("start", r.handleStart),
		"/help":              r.instrument("help", r.handleHelp),
		"/back":              r.instrument("back", r.handleBack),
		"/docker":            r.instrument("engine", r.handleEngine),
		"/containers":        r.instrument("containers", r.handleContainers),
		"/images":            r.instrument("images", r.handleImages),
		"/qrcode":            r.instrument("qrcode", r.handleQR),
		"/check_bot_updates": r.instrument("check_updates", r.handleUpdates),
		"/plugins":           r.instrument("plugins", r.handlePlugins),
	}

	r.texts = map[string]tele.HandlerFunc{
		keyboards.BtnContainers:  r.commands["/containers"],
		keyboards.BtnImages:      r.commands["/images"],
		keyboards.BtnEngine:      r.commands["/docker"],
		keyboards.BtnLoadAverage: r.instrument("load_average", r.handleLoadAverage),
		keyboards.BtnMemory:      r.instrument("memory", r.handleMemory),
		keyboards.BtnSwap:        r.instrument("swap", r.handleSwap),
		keyboards.BtnDisk:        r.instrument("disk", r.handleDisk),
		keyboards.BtnSensors:     r.instrument("sensors", r.handleSensors),
		keyboards.BtnUptime:      r.instrument("uptime", r.handleUptime),
		keyboards.BtnNetwork:     r.instrument("network", r.handleNetwork),
		keyboards.BtnProcess:     r.instrument("process", r.handleProcess),
		keyboards.BtnAbout:       r.instrument("about", r.handleAbout),
		keyboards.BtnBack:        r.commands["/back"],
		keyboards.BtnEnterCode:   r.instrument("enter_code", r.handleEnterCode),
		keyboards.BtnQRCode:      r.commands["/qrcode"],
	}

	r.callbacks = map[string]tele.HandlerFunc{
		keyboards.ActionContainerFull: r.instrument("container_full", r.handleContainerFull),
		keyboards.ActionContainerLogs: gated(r.instrument("container_logs", r.handleContainerLogs)),
		keyboards.ActionManageMenu:    gated(r.instrument("manage_menu", r.handleManageMenu)),
		keyboards.ActionStart:         gated(r.instrument("manage_action", r.handleManageAction)),
		keyboards.ActionStop:          gated(r.instrument("manage_action", r.handleManageAction)),
		keyboards.ActionRestart:       gated(r.instrument("manage_action", r.handleManageAction)),
		keyboards.ActionRenameInfo:    gated(r.instrument("rename_info", r.handleRenameInfo)),
	}

	r.navs = map[string]tele.HandlerFunc{
		keyboards.NavMain:       r.instrument("nav_main", r.handleBack),
		keyboards.NavContainers: r.commands["/containers"],
		keyboards.NavSwap:       r.instrument("swap", r.handleSwap),
		keyboards.NavHowUpdate:  r.instrument("how_update", r.handleHowUpdate),
	}

	r.codeInput = r.instrument("totp_input", r.handleCode)
	r.renameInput = r.instrument("rename_input", r.handleRenameInput)
	r.echo = r.instrument("echo", r.handleEcho)
}

// Attach registers every route on the bot. The echo fallback is part of
// the OnText dispatcher and therefore can never shadow a specific match.
func (r *Registry) Attach(b *tele.Bot) {
	r.mu.Lock()
	r.bot = b
	commands := make(map[string]tele.HandlerFunc, len(r.commands))
	for cmd, h := range r.commands {
		commands[cmd] = h
	}
	r.mu.Unlock()

	for cmd, h := range commands {
		b.Handle(cmd, h)
	}
	b.Handle(tele.OnText, r.onText)
	b.Handle(tele.OnCallback, r.onCallback)
}

// Command registers a plugin command. Safe before and after Attach.
func (r *Registry) Command(command string, h tele.HandlerFunc) {
	wrapped := r.instrument(strings.TrimPrefix(command, "/"), h)

	r.mu.Lock()
	r.commands[command] = wrapped
	bot := r.bot
	r.mu.Unlock()

	if bot != nil {
		bot.Handle(command, wrapped)
	}
}

// TextRoute registers a plugin keyboard-label route.
func (r *Registry) TextRoute(label string, h tele.HandlerFunc) {
	wrapped := r.instrument("text_"+label, h)

	r.mu.Lock()
	r.texts[label] = wrapped
	r.mu.Unlock()
}

// onText dispatches free-form text: keyboard labels first, then TOTP
// input while the sender is verifying, then a pending rename reply, and
// the echo fallback last.
func (r *Registry) onText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	text := strings.TrimSpace(c.Text())

	if h, ok := r.textRoute(text); ok {
		if r.clearRename(sender.ID) {
			// Navigating away abandons the rename prompt.
			r.logger.Debug().Int64("user_id", sender.ID).Msg("pending rename cancelled")
		}
		return h(c)
	}

	if _, ok := auth.ExtractCode(text); ok &&
		r.sessions.State(sender.ID) == types.AuthStateProcessing {
		return r.codeInput(c)
	}

	if r.hasRename(sender.ID) {
		return r.renameInput(c)
	}

	return r.echo(c)
}

// onCallback routes callback presses. Data without a dot is plain
// navigation; everything else must carry a valid signed payload.
func (r *Registry) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Sender() == nil {
		return nil
	}
	data := strings.TrimSpace(cb.Data)

	if !strings.Contains(data, ".") {
		if h, ok := r.navRoute(data); ok {
			return h(c)
		}
		return r.rejectCallback(c, "unknown")
	}

	action, ok := r.codec.PeekAction(data)
	if !ok {
		return r.rejectCallback(c, "malformed")
	}
	h, ok := r.callbackRoute(action)
	if !ok {
		return r.rejectCallback(c, "unknown")
	}
	return h(c)
}

// decodeCallback validates the pressed payload against the sender. A
// rejection answers the callback and reports false; handlers just
// return nil then.
func (r *Registry) decodeCallback(c tele.Context) (*callback.Payload, bool) {
	p, err := r.codec.Decode(c.Callback().Data, c.Sender().ID)
	if err != nil {
		_ = r.rejectCallback(c, rejectReason(err))
		return nil, false
	}
	return p, true
}

func (r *Registry) rejectCallback(c tele.Context, reason string) error {
	metrics.CallbacksRejected.WithLabelValues(reason).Inc()
	r.logger.Warn().
		Int64("user_id", c.Sender().ID).
		Str("reason", reason).
		Msg("callback rejected")
	if r.broker != nil {
		r.broker.Emit(events.EventCallbackRejected, c.Sender().ID, "callback rejected",
			map[string]string{"reason": reason})
	}
	if err := c.Respond(&tele.CallbackResponse{Text: staleButtonText, ShowAlert: true}); err != nil {
		r.logger.Debug().Err(err).Msg("rejection alert not delivered")
	}
	return nil
}

// rejectReason maps a codec error to a metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, callback.ErrExpired):
		return "expired"
	case errors.Is(err, callback.ErrNonceConsumed):
		return "replayed"
	case errors.Is(err, callback.ErrSignature):
		return "signature"
	case errors.Is(err, callback.ErrUserMismatch):
		return "user_mismatch"
	case errors.Is(err, callback.ErrCharset):
		return "charset"
	default:
		return "malformed"
	}
}

// instrument wraps a handler with duration and error accounting. A
// returned error is logged sanitized, answered with a friendly line
// picked by error code, and swallowed so the dispatch loop never sees
// handler-level failures twice.
func (r *Registry) instrument(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		t := metrics.NewTimer()
		err := h(c)
		t.ObserveDurationVec(metrics.HandlerDuration, name)
		if err == nil {
			return nil
		}

		metrics.HandlerErrors.WithLabelValues(name).Inc()
		logger := r.logger.With().Str("handler", name).Logger()
		if sender := c.Sender(); sender != nil {
			logger = logger.With().Int64("user_id", sender.ID).Logger()
		}
		logger.Error().Str("error", r.san.MaskError(err)).Msg("handler failed")

		r.replyFailure(c, err)
		return nil
	}
}

func (r *Registry) replyFailure(c tele.Context, err error) {
	text := genericErrorText
	switch errs.CodeOf(err) {
	case errs.CodeConnection:
		text = engineDownText
	case errs.CodeNotFound:
		text = notFoundText
	case errs.CodeUnauthorized:
		text = deniedActionText
	}

	if c.Callback() != nil {
		if respErr := c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true}); respErr != nil {
			r.logger.Debug().Err(respErr).Msg("failure alert not delivered")
		}
		return
	}
	if sendErr := c.Send(text); sendErr != nil {
		r.logger.Debug().Err(sendErr).Msg("failure reply not delivered")
	}
}

// respond delivers a rendered view: editing in place for callback
// presses (and answering the query), sending a fresh message otherwise.
func (r *Registry) respond(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := []interface{}{tele.ModeHTML}
	if markup != nil {
		opts = append(opts, markup)
	}

	if cb := c.Callback(); cb != nil {
		defer func() {
			if err := c.Respond(&tele.CallbackResponse{}); err != nil {
				r.logger.Debug().Err(err).Msg("callback not answered")
			}
		}()
		if cb.Message != nil {
			if err := c.Edit(text, opts...); err == nil {
				return nil
			}
			// Editing can fail on identical content or deleted messages;
			// fall back to a fresh message.
		}
	}
	return c.Send(text, opts...)
}

func (r *Registry) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (r *Registry) textRoute(text string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.texts[text]
	return h, ok
}

func (r *Registry) navRoute(data string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.navs[data]
	return h, ok
}

func (r *Registry) callbackRoute(action string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[action]
	return h, ok
}

// setRename arms the rename prompt for userID.
func (r *Registry) setRename(userID int64, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renames[userID] = pendingRename{ref: ref, at: r.now()}
}

// hasRename reports whether a live rename prompt exists; an expired
// prompt is dropped on the way.
func (r *Registry) hasRename(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.renames[userID]
	if !ok {
		return false
	}
	if r.now().Sub(p.at) > renameWindow {
		delete(r.renames, userID)
		return false
	}
	return true
}

// takeRename consumes the pending prompt.
func (r *Registry) takeRename(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.renames[userID]
	if !ok {
		return "", false
	}
	delete(r.renames, userID)
	if r.now().Sub(p.at) > renameWindow {
		return "", false
	}
	return p.ref, true
}

func (r *Registry) clearRename(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.renames[userID]; !ok {
		return false
	}
	delete(r.renames, userID)
	return true
}

func (r *Registry) emit(t events.EventType, userID int64, msg string, meta map[string]string) {
	if r.broker != nil {
		r.broker.Emit(t, userID, msg, meta)
	}
}

// displayName picks something to address the user by.
func displayName(u *tele.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "there"
}

func callerOf(u *tele.User) sanitize.Caller {
	return sanitize.Caller{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
