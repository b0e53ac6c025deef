package notify

import (
	"context"
	"log/slog"

	"time-planner/internal/model"
)

// Dispatcher routes a notification to the channel matching its configured
// type, falling back down a priority list on failure. Delivery is
// best-effort: Dispatch never returns an error and never panics into the
// scheduler.
type Dispatcher struct {
	push  Channel // may be nil: notifications-disabled mode
	alert Channel
	email Channel
	log   *slog.Logger
}

func NewDispatcher(push, alert, email Channel, log *slog.Logger) *Dispatcher {
	return &Dispatcher{push: push, alert: alert, email: email, log: log}
}

// Disabled reports whether no push channel is configured.
func (d *Dispatcher) Disabled() bool {
	return d.push == nil
}

// Dispatch delivers n according to typ: system tries push first and falls
// back to the in-app alert, alert goes straight to the in-app alert, email
// is delegated fire-and-forget. The final fallback is a log line.
func (d *Dispatcher) Dispatch(ctx context.Context, typ model.NotificationType, n Notification) {
	switch typ {
	case model.NotifyEmail:
		d.try(ctx, n, d.email)
	case model.NotifyAlert:
		d.try(ctx, n, d.alert)
	default: // system and anything unrecognized
		d.try(ctx, n, d.push, d.alert)
	}
}

func (d *Dispatcher) try(ctx context.Context, n Notification, channels ...Channel) {
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		if err := ch.Deliver(ctx, n); err != nil {
			d.log.Warn("delivery failed, trying next channel", "tag", n.Tag, "error", err)
			continue
		}
		return
	}
	d.log.Info("notification (no channel available)", "tag", n.Tag, "title", n.Title, "body", n.Body)
}
