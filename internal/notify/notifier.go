// Package notify delivers detection events to alert channels. Channels are
// composed with Composite for fan-out and RateLimited for per-channel cooldowns.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"gatewatch/internal/domain/gate"
)

// Notifier delivers one event to one destination.
type Notifier interface {
	Send(ctx context.Context, event gate.DetectionEvent) error
}

// Named is implemented by notifiers that report a channel name for logs
// and metrics.
type Named interface {
	Name() string
}

func nameOf(n Notifier) string {
	if named, ok := n.(Named); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", n)
}

// Composite sends every event to each member in order. A failing or
// panicking member is logged and never keeps the others from receiving the
// event. Send always returns nil.
type Composite struct {
	notifiers []Notifier
	log       zerolog.Logger
}

func NewComposite(log zerolog.Logger, notifiers ...Notifier) *Composite {
	return &Composite{
		notifiers: notifiers,
		log:       log.With().Str("component", "notify").Logger(),
	}
}

func (c *Composite) Name() string { return "composite" }

// Channels lists member names in invocation order.
func (c *Composite) Channels() []string {
	names := make([]string, 0, len(c.notifiers))
	for _, n := range c.notifiers {
		names = append(names, nameOf(n))
	}
	return names
}

func (c *Composite) Send(ctx context.Context, event gate.DetectionEvent) error {
	for _, n := range c.notifiers {
		name := nameOf(n)
		if err := safeSend(ctx, n, event); err != nil {
			notificationsTotal.WithLabelValues(name, "failed").Inc()
			c.log.Error().
				Err(err).
				Str("channel", name).
				Str("subject", string(event.Subject)).
				Str("camera_id", event.CameraID).
				Msg("notifier failed")
			continue
		}
		notificationsTotal.WithLabelValues(name, "sent").Inc()
	}
	return nil
}

// Close closes every member that holds resources and joins their errors.
func (c *Composite) Close() error {
	var errs []error
	for _, n := range c.notifiers {
		if closer, ok := n.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", nameOf(n), err))
			}
		}
	}
	return errors.Join(errs...)
}

func safeSend(ctx context.Context, n Notifier, event gate.DetectionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Send(ctx, event)
}

// shortMessage renders the one-line text used by chat style channels.
func shortMessage(event gate.DetectionEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GateWatch: %s %s/%s", event.CameraID, event.Subject, event.Arrival)
	if event.HasPlate() {
		fmt.Fprintf(&b, " plate=%s", event.Plate())
	}
	return b.String()
}
