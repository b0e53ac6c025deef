package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Notification is one reminder as handed to a delivery channel.
type Notification struct {
	TargetID           string
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
}

// Channel presents a notification to the user. Implementations are
// best-effort; a returned error means the dispatcher should try the next
// channel in its priority list.
type Channel interface {
	Deliver(ctx context.Context, n Notification) error
}

// AlertChannel writes a prominent in-app banner to an io.Writer. It is the
// fallback when no push channel is available.
type AlertChannel struct {
	mu  sync.Mutex
	out io.Writer
}

func NewAlertChannel(out io.Writer) *AlertChannel {
	return &AlertChannel{out: out}
}

func (c *AlertChannel) Deliver(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.out, "\n*** %s ***\n%s\n\n", n.Title, n.Body); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}

// EmailChannel is a fire-and-forget stub: sending is delegated to a backend
// that does not exist here, so delivery is logged, not guaranteed.
type EmailChannel struct {
	log *slog.Logger
}

func NewEmailChannel(log *slog.Logger) *EmailChannel {
	return &EmailChannel{log: log}
}

func (c *EmailChannel) Deliver(_ context.Context, n Notification) error {
	c.log.Info("would send email", "tag", n.Tag, "title", n.Title, "body", n.Body)
	return nil
}
