package bot

import (
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/access"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
)

// AccessControl refuses updates from senders outside the allow-list.
// The controller decides: first refusal terse, repeat refusals final,
// an active block drops the update without a reply. Updates without a
// sender (channel posts, service messages) are dropped outright.
func AccessControl(ctrl *access.Controller) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			switch ctrl.Check(sender.ID) {
			case access.Allow:
				return next(c)
			case access.RefuseTerse:
				metrics.AccessDenied.Inc()
				return c.Send(templates.RefusalTerse)
			case access.RefuseFinal:
				metrics.AccessDenied.Inc()
				metrics.AccessBlocked.Inc()
				return c.Send(templates.RefusalFinal)
			default: // access.Drop
				return nil
			}
		}
	}
}

// RateLimit enforces the per-user sliding window. It runs after access
// control, so only allow-listed users ever consume window slots.
func RateLimit(limiter *access.RateLimiter, broker *events.Broker) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !limiter.Allow(sender.ID) {
				metrics.RateLimited.Inc()
				if broker != nil {
					broker.Emit(events.EventRateLimited, sender.ID, "rate limit exceeded", nil)
				}
				return c.Send(templates.RateLimited)
			}
			return next(c)
		}
	}
}
