// Package scheduler drives the tick processor on a fixed interval in its own
// goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"gatewatch/internal/domain/gate"
)

var tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "gatewatch_tick_duration_seconds",
	Help:    "Wall time of one scheduler iteration including delivery.",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
})

var ErrStopTimeout = errors.New("scheduler did not stop in time")

// Processor produces at most one event per call.
type Processor interface {
	ProcessOneTick(ctx context.Context) *gate.DetectionEvent
	Close()
}

// Emitter persists and delivers an event.
type Emitter interface {
	Emit(ctx context.Context, event gate.DetectionEvent) (int64, error)
}

// Scheduler calls the processor every interval and hands produced events to
// the emitter. Stop is observed between ticks only.
type Scheduler struct {
	proc     Processor
	emitter  Emitter
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func New(proc Processor, emitter Emitter, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		proc:     proc,
		emitter:  emitter,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the loop. It stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	// Ticks must not be interrupted mid-flight, so the loop context only
	// carries the stop signal and collaborators get a detached one.
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, context.WithoutCancel(ctx))
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) loop(loopCtx, workCtx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
		}
		// A stop requested while the ticker fired wins over another tick.
		if loopCtx.Err() != nil {
			return
		}
		s.runOnce(workCtx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("tick panicked")
		}
	}()

	event := s.proc.ProcessOneTick(ctx)
	if event == nil {
		return
	}
	if _, err := s.emitter.Emit(ctx, *event); err != nil {
		s.log.Error().Err(err).Msg("tick event not stored")
	}
}

// Stop signals the loop, waits up to timeout for it to exit, then releases
// the processor. It is safe to call more than once.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.done == nil {
		s.proc.Close()
		return nil
	}

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(timeout):
		// The loop still owns the processor; leave it to avoid racing on it.
		s.log.Warn().Dur("timeout", timeout).Msg("scheduler stop timed out")
		return ErrStopTimeout
	}
	s.proc.Close()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// Done is closed when the loop has exited. It is nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
