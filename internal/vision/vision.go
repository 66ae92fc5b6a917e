// Package vision holds the contracts of the capture, detection and plate
// reading collaborators along with thin adapters for sidecar services.
package vision

import (
	"context"
	"time"

	"gatewatch/internal/domain/gate"
)

// Frame is one captured image.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	// Format is the MIME type of Data, e.g. "image/jpeg".
	Format string
	Data   []byte
	Source string
}

// FrameSource yields frames from one camera. Read returns a nil frame when
// none is available. A FrameSource is owned by a single goroutine.
type FrameSource interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// Detector finds labelled objects in a frame.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]gate.Detection, error)
}

// PlateRecognizer reads a normalized plate from a frame, or "" when none.
type PlateRecognizer interface {
	Recognize(ctx context.Context, frame *Frame) (string, error)
}

// NopRecognizer is the recognizer used when plate reading is disabled.
type NopRecognizer struct{}

func (NopRecognizer) Recognize(context.Context, *Frame) (string, error) { return "", nil }
