package handlers

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
	"github.com/orenlab/pytmbot-sub000/pkg/version"
)

// releaseNotesMax bounds the notes quoted in the update answer.
const releaseNotesMax = 400

func (r *Registry) handleStart(c tele.Context) error {
	text, err := r.view.Render(templates.TplStart, templates.StartView{
		FirstName: displayName(c.Sender()),
		BotName:   r.botName,
	})
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.Main())
}

func (r *Registry) handleHelp(c tele.Context) error {
	text, err := r.view.Render(templates.TplHelp, nil)
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.Main())
}

// handleBack serves both the reply-keyboard button and the inline
// navigation press. An inline message cannot carry a reply keyboard, so
// the pressed message is removed and the menu arrives fresh.
func (r *Registry) handleBack(c tele.Context) error {
	if cb := c.Callback(); cb != nil {
		if cb.Message != nil {
			if err := c.Delete(); err != nil {
				r.logger.Debug().Err(err).Msg("inline message not deleted")
			}
		}
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			r.logger.Debug().Err(err).Msg("callback not answered")
		}
	}
	return c.Send(mainMenuText, keyboards.Main(), tele.ModeHTML)
}

func (r *Registry) handleLoadAverage(c tele.Context) error {
	load, err := r.host.LoadAverage()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplLoadAvg, load)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleMemory(c tele.Context) error {
	mem, err := r.host.Memory()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplMemory, mem)
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.SwapLink())
}

func (r *Registry) handleSwap(c tele.Context) error {
	swap, err := r.host.Swap()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplSwap, swap)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleDisk(c tele.Context) error {
	disks, err := r.host.Disks()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplDisk, disks)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleSensors(c tele.Context) error {
	sensors, err := r.host.Sensors()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplSensors, sensors)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleUptime(c tele.Context) error {
	up, err := r.host.Uptime()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplUptime, templates.UptimeView{Uptime: up})
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleNetwork(c tele.Context) error {
	ifaces, err := r.host.Network()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplNetwork, ifaces)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleProcess(c tele.Context) error {
	load, err := r.host.LoadAverage()
	if err != nil {
		return err
	}
	self, err := r.host.Self()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplProcess, templates.ProcessView{
		ProcsTotal:   load.ProcsTotal,
		ProcsRunning: load.ProcsRunning,
		ProcsBlocked: load.ProcsBlocked,
		SelfRSS:      self.RSSBytes,
	})
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleAbout(c tele.Context) error {
	info, err := r.host.Host()
	if err != nil {
		return err
	}
	text, err := r.view.Render(templates.TplAbout, templates.AboutView{
		BotName:       r.botName,
		Version:       r.botVersion,
		Commit:        r.botCommit,
		Hostname:      info.Hostname,
		Platform:      info.Platform,
		PlatformVer:   info.PlatformVer,
		KernelArch:    info.KernelArch,
		KernelVersion: info.KernelVersion,
	})
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleUpdates(c tele.Context) error {
	if r.releases == nil {
		return r.respond(c, releaseCheckFailedText, nil)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	rel, err := r.releases.Latest(ctx)
	if err != nil {
		r.logger.Warn().Str("error", r.san.MaskError(err)).Msg("release check failed")
		return r.respond(c, releaseCheckFailedText, nil)
	}

	dev := version.IsDev(r.botVersion)
	newer := !dev && version.IsNewer(r.botVersion, rel.TagName)
	text, err := r.view.Render(templates.TplBotUpdates, templates.UpdatesView{
		DevBuild: dev,
		UpToDate: !dev && !newer,
		Current:  r.botVersion,
		Latest:   rel.TagName,
		URL:      rel.HTMLURL,
		Notes:    trimNotes(rel.Body, releaseNotesMax),
	})
	if err != nil {
		return err
	}

	var markup *tele.ReplyMarkup
	if newer {
		markup = keyboards.UpdateHelp()
	}
	return r.respond(c, text, markup)
}

// trimNotes bounds release notes to one screen of chat text.
func trimNotes(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func (r *Registry) handleHowUpdate(c tele.Context) error {
	return r.respond(c, howUpdateText, nil)
}

func (r *Registry) handlePlugins(c tele.Context) error {
	var loaded []types.PluginInfo
	if r.plugins != nil {
		loaded = r.plugins.Loaded()
	}
	text, err := r.view.Render(templates.TplPlugins, loaded)
	if err != nil {
		return err
	}
	return r.respond(c, text, nil)
}

func (r *Registry) handleEcho(c tele.Context) error {
	text, err := r.view.Render(templates.TplEcho, templates.EchoView{Text: c.Text()})
	if err != nil {
		return err
	}
	return c.Send(text, tele.ModeHTML)
}
