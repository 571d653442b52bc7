package auth

import (
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
	"github.com/orenlab/pytmbot-sub000/pkg/session"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

// DeniedText is the generic refusal shown when a privileged handler is
// invoked without a live session.
const DeniedText = "🔐 Authentication required. Tap «Enter 2FA code» and send your one-time code."

// ExpiredText replaces the generic refusal when a previously live
// session lapsed.
const ExpiredText = "⌛ Your session expired. Tap «Enter 2FA code» to verify again."

// Gate wraps privileged handlers with the two-factor check. An
// unauthenticated caller is refused, the trigger is stored as the user's
// referer, and the session store later offers to replay it once the user
// verifies.
type Gate struct {
	sessions *session.Store
}

// NewGate creates a Gate over the session store.
func NewGate(sessions *session.Store) *Gate {
	return &Gate{sessions: sessions}
}

// Wrap returns h guarded by the gate. The gate runs before any callback
// payload validation, so a refused click never consumes its nonce and the
// stored data replays verbatim after authentication.
func (g *Gate) Wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		checkErr := g.sessions.RequireLive(sender.ID)
		if checkErr == nil {
			return h(c)
		}

		ref, ok := triggerOf(c)
		if ok {
			g.sessions.SetReferer(sender.ID, ref)
		}

		text := refusalText(checkErr)

		logger := log.WithUser(sender.ID, sender.Username)
		logger.Warn().
			Err(checkErr).
			Str("trigger", ref.Data).
			Msg("privileged handler refused")

		// Reply failures must not fail the update; the refusal itself
		// already happened.
		if c.Callback() != nil {
			if err := c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true}); err != nil {
				logger.Debug().Err(err).Msg("callback refusal alert not delivered")
			}
			return nil
		}
		if err := c.Send(text); err != nil {
			logger.Debug().Err(err).Msg("refusal message not delivered")
		}
		return nil
	}
}

// refusalText picks the refusal line for a failed session check.
func refusalText(err error) string {
	if errs.HasCode(err, errs.CodeSessionExpired) {
		return ExpiredText
	}
	return DeniedText
}

// triggerOf captures the raw trigger for referer replay.
func triggerOf(c tele.Context) (types.Referer, bool) {
	if cb := c.Callback(); cb != nil {
		return types.Referer{Kind: types.UpdateKindCallbackQuery, Data: cb.Data}, true
	}
	if m := c.Message(); m != nil {
		return types.Referer{Kind: types.UpdateKindMessage, Data: m.Text}, true
	}
	return types.Referer{}, false
}
