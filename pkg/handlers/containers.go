package handlers

import (
	"errors"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/callback"
	"github.com/orenlab/pytmbot-sub000/pkg/docker"
	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

func (r *Registry) handleContainers(c tele.Context) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	list, err := r.engine.ListContainers(ctx)
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplContainers, list)
	if err != nil {
		return err
	}
	markup, err := r.kb.Containers(c.Sender().ID, list)
	if err != nil {
		return err
	}
	return r.respond(c, text, markup)
}

func (r *Registry) handleImages(c tele.Context) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	images, err := r.engine.ListImages(ctx)
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplImages, images)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleEngine(c tele.Context) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	summary, err := r.engine.EngineSummary(ctx)
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplEngine, summary)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

// containerRef pulls the container reference out of a decoded payload.
func (r *Registry) containerRef(c tele.Context, p *callback.Payload) (string, bool) {
	ref := p.Params[keyboards.ParamContainer]
	if ref == "" {
		_ = r.rejectCallback(c, "malformed")
		return "", false
	}
	return ref, true
}

func (r *Registry) handleContainerFull(c tele.Context) error {
	p, ok := r.decodeCallback(c)
	if !ok {
		return nil
	}
	ref, ok := r.containerRef(c, p)
	if !ok {
		return nil
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	stats, err := r.engine.ContainerStats(ctx, ref)
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplContainer, stats)
	if err != nil {
		return err
	}

	sender := c.Sender()
	markup, err := r.kb.ContainerActions(sender.ID, stats.Name, ref, r.cfg.IsAdmin(sender.ID))
	if err != nil {
		return err
	}
	return r.respond(c, text, markup)
}

func (r *Registry) handleContainerLogs(c tele.Context) error {
	p, ok := r.decodeCallback(c)
	if !ok {
		return nil
	}
	ref, ok := r.containerRef(c, p)
	if !ok {
		return nil
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	logs, err := r.engine.FetchLogs(ctx, ref, callerOf(c.Sender()))
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplLogs, templates.LogsView{Name: ref, Text: logs})
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.BackToContainers())
}

func (r *Registry) handleManageMenu(c tele.Context) error {
	p, ok := r.decodeCallback(c)
	if !ok {
		return nil
	}
	ref, ok := r.containerRef(c, p)
	if !ok {
		return nil
	}
	if !r.requireAdmin(c) {
		return nil
	}

	text := fmt.Sprintf("🛠 Managing <b>%s</b>. Choose an action:", html.EscapeString(ref))
	markup, err := r.kb.ManageActions(c.Sender().ID, ref, ref)
	if err != nil {
		return err
	}
	return r.respond(c, text, markup)
}

func (r *Registry) handleManageAction(c tele.Context) error {
	p, ok := r.decodeCallback(c)
	if !ok {
		return nil
	}
	ref, ok := r.containerRef(c, p)
	if !ok {
		return nil
	}
	action, known := types.ParseContainerAction(p.Action)
	if !known {
		return r.rejectCallback(c, "unknown")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	if err := r.engine.Manage(ctx, c.Sender().ID, ref, action, ""); err != nil {
		outcome := "error"
		if errs.HasCode(err, errs.CodeUnauthorized) {
			outcome = "denied"
		}
		metrics.ContainerActions.WithLabelValues(string(action), outcome).Inc()
		return err
	}
	metrics.ContainerActions.WithLabelValues(string(action), "success").Inc()

	text := fmt.Sprintf("✅ <b>%s</b>: %s completed.", html.EscapeString(ref), action)
	return r.respond(c, text, keyboards.BackToContainers())
}

// handleRenameInfo arms the two-step rename: the button stores the
// target and the next plain message from the same admin is the name.
func (r *Registry) handleRenameInfo(c tele.Context) error {
	p, ok := r.decodeCallback(c)
	if !ok {
		return nil
	}
	ref, ok := r.containerRef(c, p)
	if !ok {
		return nil
	}
	if !r.requireAdmin(c) {
		return nil
	}

	r.setRename(c.Sender().ID, ref)
	text := fmt.Sprintf(
		"✏️ Send the new name for <b>%s</b> as a plain message (1-64 characters, not only whitespace). Any menu button cancels.",
		html.EscapeString(ref))
	return r.respond(c, text, keyboards.BackToContainers())
}

// handleRenameInput consumes the armed rename. A slash-prefixed message
// is read as a command attempt and cancels instead.
func (r *Registry) handleRenameInput(c tele.Context) error {
	sender := c.Sender()
	ref, ok := r.takeRename(sender.ID)
	if !ok {
		return nil
	}

	newName := strings.TrimSpace(c.Text())
	if strings.HasPrefix(newName, "/") {
		return r.respond(c, renameCancelledText, nil)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	if err := r.engine.Manage(ctx, sender.ID, ref, types.ActionRename, newName); err != nil {
		if errors.Is(err, docker.ErrInvalidName) {
			metrics.ContainerActions.WithLabelValues(string(types.ActionRename), "invalid").Inc()
			r.setRename(sender.ID, ref) // let the admin try another name
			return r.respond(c, invalidNameText, nil)
		}
		outcome := "error"
		if errs.HasCode(err, errs.CodeUnauthorized) {
			outcome = "denied"
		}
		metrics.ContainerActions.WithLabelValues(string(types.ActionRename), outcome).Inc()
		return err
	}
	metrics.ContainerActions.WithLabelValues(string(types.ActionRename), "success").Inc()

	text := fmt.Sprintf("✅ <b>%s</b> renamed to <b>%s</b>.",
		html.EscapeString(ref), html.EscapeString(newName))
	return r.respond(c, text, keyboards.BackToContainers())
}

// requireAdmin refuses the press when the sender is not an admin. The
// facade re-checks on every mutation regardless.
func (r *Registry) requireAdmin(c tele.Context) bool {
	sender := c.Sender()
	if r.cfg.IsAdmin(sender.ID) {
		return true
	}
	r.logger.Warn().
		Int64("user_id", sender.ID).
		Msg("manage menu refused: not an admin")
	if err := c.Respond(&tele.CallbackResponse{Text: adminsOnlyText, ShowAlert: true}); err != nil {
		r.logger.Debug().Err(err).Msg("refusal alert not delivered")
	}
	return false
}
