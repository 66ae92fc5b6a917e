package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"gatewatch/internal/domain/gate"
	"gatewatch/internal/notify"
	"gatewatch/internal/utils"
	"gatewatch/internal/whitelist"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

const simulatedConfidence = 0.99

var eventsStored = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatewatch_events_stored_total",
		Help: "Event store inserts by outcome.",
	},
	[]string{"outcome"},
)

// EventStore is the append-only event log.
type EventStore interface {
	Insert(ctx context.Context, event gate.DetectionEvent) (int64, error)
	Get(ctx context.Context, id int64) (*gate.Record, error)
	ListRecent(ctx context.Context, limit int) ([]gate.Record, error)
}

type GateService struct {
	store     EventStore
	notifier  notify.Notifier
	whitelist whitelist.Whitelist
	cameraID  string
	log       zerolog.Logger
	now       func() time.Time
}

func NewGateService(
	store EventStore,
	notifier notify.Notifier,
	wl whitelist.Whitelist,
	cameraID string,
	log zerolog.Logger,
) *GateService {
	return &GateService{
		store:     store,
		notifier:  notifier,
		whitelist: wl,
		cameraID:  cameraID,
		log:       log.With().Str("component", "service").Logger(),
		now:       time.Now,
	}
}

// Emit stores the event and then notifies. The two effects are independent:
// a failed insert does not suppress the alert, and delivery problems never
// reach the caller. The returned error is the storage error, if any.
func (s *GateService) Emit(ctx context.Context, event gate.DetectionEvent) (int64, error) {
	id, storeErr := s.store.Insert(ctx, event)
	if storeErr != nil {
		eventsStored.WithLabelValues("error").Inc()
		s.log.Error().
			Err(storeErr).
			Str("camera_id", event.CameraID).
			Str("subject", string(event.Subject)).
			Msg("failed to store event")
	} else {
		eventsStored.WithLabelValues("ok").Inc()
		s.log.Info().
			Int64("event_id", id).
			Str("camera_id", event.CameraID).
			Str("subject", string(event.Subject)).
			Str("arrival", string(event.Arrival)).
			Str("plate", event.Plate()).
			Msg("event stored")
	}

	// The record may already exist, so a caller going away must not cancel
	// delivery. Channels bound sends with their own timeouts.
	if err := s.notifier.Send(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn().Err(err).Msg("notification failed")
	}

	if storeErr != nil {
		return 0, fmt.Errorf("failed to store event: %w", storeErr)
	}
	return id, nil
}

// Simulate synthesizes an event as if the camera had produced it. Plates are
// normalized and only kept for vehicles, where they drive the arrival role.
func (s *GateService) Simulate(ctx context.Context, subject, plate string) (int64, gate.DetectionEvent, error) {
	if strings.TrimSpace(subject) == "" {
		subject = string(gate.SubjectVehicle)
	}
	st, err := gate.ParseSubject(subject)
	if err != nil {
		return 0, gate.DetectionEvent{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	event := gate.DetectionEvent{
		Timestamp:  s.now().UTC(),
		Subject:    st,
		Arrival:    gate.ArrivalUnknown,
		Confidence: gate.Float64Ptr(simulatedConfidence),
		CameraID:   s.cameraID,
	}
	if normalized := utils.NormalizePlate(plate); st == gate.SubjectVehicle && normalized != "" {
		event.PlateText = gate.StringPtr(normalized)
		event.Arrival = s.whitelist.Classify(normalized)
	}

	id, err := s.Emit(ctx, event)
	if err != nil {
		return 0, event, err
	}
	return id, event, nil
}

func (s *GateService) ListRecent(ctx context.Context, limit int) ([]gate.Record, error) {
	records, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return records, nil
}

func (s *GateService) GetEvent(ctx context.Context, id int64) (*gate.Record, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: event id must be positive", ErrNotFound)
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: event %d", ErrNotFound, id)
	}
	return record, nil
}
