package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gatewatch/internal/domain/gate"
)

// recorder captures every event it receives.
type recorder struct {
	name string
	err  error

	mu     sync.Mutex
	events []gate.DetectionEvent
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Send(_ context.Context, event gate.DetectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type panicker struct{}

func (panicker) Send(context.Context, gate.DetectionEvent) error { panic("boom") }

var errChannelDown = errors.New("channel down")

func testEvent() gate.DetectionEvent {
	return gate.DetectionEvent{
		Timestamp:  time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
		Subject:    gate.SubjectVehicle,
		Arrival:    gate.ArrivalOwner,
		PlateText:  gate.StringPtr("XYZ999"),
		Confidence: gate.Float64Ptr(0.7),
		CameraID:   "gate-1",
	}
}

// fakeClock is advanced manually by tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimited(inner Notifier, cooldown time.Duration, clock *fakeClock) *RateLimited {
	rl := NewRateLimited(inner, cooldown, zerolog.Nop())
	rl.now = clock.now
	return rl
}
