package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gatewatch/internal/domain/gate"
)

// RateLimited forwards at most one event per cooldown to its inner notifier.
// Events inside the cooldown are dropped, not queued. A forwarded event starts
// the cooldown whether or not the inner send succeeds. State is in memory
// and per instance.
type RateLimited struct {
	inner    Notifier
	cooldown time.Duration
	limiter  *rate.Limiter
	now      func() time.Time
	log      zerolog.Logger
}

// NewRateLimited wraps inner with a cooldown. Negative cooldowns count as zero,
// which disables limiting.
func NewRateLimited(inner Notifier, cooldown time.Duration, log zerolog.Logger) *RateLimited {
	cooldown = max(cooldown, 0)
	rl := &RateLimited{
		inner:    inner,
		cooldown: cooldown,
		now:      time.Now,
		log:      log,
	}
	if cooldown > 0 {
		// One token refilled per cooldown; the bucket starts full so the
		// first event goes through.
		rl.limiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}
	return rl
}

func (r *RateLimited) Name() string { return nameOf(r.inner) }

func (r *RateLimited) Cooldown() time.Duration { return r.cooldown }

func (r *RateLimited) Send(ctx context.Context, event gate.DetectionEvent) error {
	if r.limiter != nil && !r.limiter.AllowN(r.now(), 1) {
		notificationsSuppressed.WithLabelValues(r.Name()).Inc()
		r.log.Debug().
			Str("channel", r.Name()).
			Dur("cooldown", r.cooldown).
			Msg("notification suppressed by cooldown")
		return nil
	}
	return r.inner.Send(ctx, event)
}

func (r *RateLimited) Close() error {
	if closer, ok := r.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
