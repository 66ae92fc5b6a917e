package notify

import (
	"context"

	"github.com/rs/zerolog"

	"gatewatch/internal/domain/gate"
)

// Console logs every event as an ALERT line.
type Console struct {
	log zerolog.Logger
}

func NewConsole(log zerolog.Logger) *Console {
	return &Console{log: log.With().Str("component", "alert").Logger()}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Send(_ context.Context, event gate.DetectionEvent) error {
	e := c.log.Info().
		Time("ts_utc", event.Timestamp).
		Str("camera_id", event.CameraID).
		Str("subject", string(event.Subject)).
		Str("arrival", string(event.Arrival))
	if event.HasPlate() {
		e = e.Str("plate", event.Plate())
	}
	if event.Confidence != nil {
		e = e.Float64("confidence", *event.Confidence)
	}
	e.Msg("ALERT")
	return nil
}
