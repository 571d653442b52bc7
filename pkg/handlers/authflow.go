package handlers

import (
	"bytes"
	"math"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/auth"
	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/session"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
)

// handleEnterCode starts (or resumes) two-factor verification.
func (r *Registry) handleEnterCode(c tele.Context) error {
	sender := c.Sender()
	if r.sessions.IsAuthenticated(sender.ID) {
		return r.respond(c, alreadyVerifiedText, keyboards.Main())
	}

	if err := r.sessions.BeginAuth(sender.ID); err != nil {
		if errs.HasCode(err, errs.CodeAuthBlocked) {
			return r.replyBlocked(c)
		}
		return err
	}

	left := session.MaxTOTPAttempts - r.sessions.Attempts(sender.ID)
	text, err := r.view.Render(templates.TplAuthPrompt, templates.AttemptsView{AttemptsLeft: left})
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.Auth())
}

// handleCode consumes a 6-digit message while the sender is verifying.
func (r *Registry) handleCode(c tele.Context) error {
	sender := c.Sender()
	code, ok := auth.ExtractCode(c.Text())
	if !ok {
		return nil
	}

	if r.totp.Verify(code, sender.ID, sender.Username, r.now()) {
		r.sessions.Authenticate(sender.ID)
		metrics.AuthAttempts.WithLabelValues("success").Inc()
		r.emit(events.EventAuthSucceeded, sender.ID, "two-factor verification succeeded", nil)

		ref, has := r.sessions.TakeReferer(sender.ID)
		text, err := r.view.Render(templates.TplAuthSuccess, templates.SuccessView{
			Minutes:    int(session.TTL.Minutes()),
			HasReferer: has,
		})
		if err != nil {
			return err
		}
		markup := keyboards.Main()
		if has {
			markup = keyboards.Referer(ref)
		}
		return r.respond(c, text, markup)
	}

	attempts, blocked, until := r.sessions.RecordFailure(sender.ID)
	if blocked {
		metrics.AuthAttempts.WithLabelValues("blocked").Inc()
		r.emit(events.EventAuthBlocked, sender.ID, "TOTP attempt limit reached", nil)
		text, err := r.view.Render(templates.TplAuthBlocked, templates.BlockedView{
			Minutes: ceilMinutes(until.Sub(r.now())),
		})
		if err != nil {
			return err
		}
		return r.respond(c, text, keyboards.BackOnly())
	}

	metrics.AuthAttempts.WithLabelValues("invalid").Inc()
	r.emit(events.EventAuthFailed, sender.ID, "invalid TOTP code",
		map[string]string{"attempts": strconv.Itoa(attempts)})

	text, err := r.view.Render(templates.TplAuthWrong, templates.AttemptsView{
		AttemptsLeft: session.MaxTOTPAttempts - attempts,
	})
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.Auth())
}

// handleQR sends the enrolment QR code and schedules its deletion.
func (r *Registry) handleQR(c tele.Context) error {
	sender := c.Sender()

	png, err := r.totp.QRCode(sender.ID, sender.Username)
	if err != nil {
		return err
	}
	caption, err := r.view.Render(templates.TplQRCaption, templates.QRView{
		Seconds: int(r.qrLifetime.Seconds()),
	})
	if err != nil {
		return err
	}

	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
	msg, err := c.Bot().Send(c.Recipient(), photo, tele.ModeHTML, tele.Protected)
	if err != nil {
		return err
	}

	r.scheduleQRDelete(c.Bot(), msg)
	r.logger.Info().Int64("user_id", sender.ID).Msg("enrolment QR sent")
	return nil
}

func (r *Registry) scheduleQRDelete(b *tele.Bot, msg *tele.Message) {
	time.AfterFunc(r.qrLifetime, func() {
		err := b.Delete(msg)
		if err == nil {
			return
		}
		r.logger.Warn().Err(err).Msg("QR code not auto-deleted")
		if _, err := b.Send(msg.Chat, qrDeleteManuallyText); err != nil {
			r.logger.Debug().Err(err).Msg("manual deletion notice not delivered")
		}
	})
}

func (r *Registry) replyBlocked(c tele.Context) error {
	minutes := 1
	if until, ok := r.sessions.BlockedUntil(c.Sender().ID); ok {
		minutes = ceilMinutes(until.Sub(r.now()))
	}
	text, err := r.view.Render(templates.TplAuthBlocked, templates.BlockedView{Minutes: minutes})
	if err != nil {
		return err
	}
	return r.respond(c, text, keyboards.BackOnly())
}

func ceilMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
