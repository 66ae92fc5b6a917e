package gate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SubjectType string

const (
	SubjectVehicle SubjectType = "vehicle"
	SubjectPerson  SubjectType = "person"
	SubjectObject  SubjectType = "object"
)

// ParseSubject accepts the subject names case-insensitively.
func ParseSubject(s string) (SubjectType, error) {
	switch SubjectType(strings.ToLower(strings.TrimSpace(s))) {
	case SubjectVehicle:
		return SubjectVehicle, nil
	case SubjectPerson:
		return SubjectPerson, nil
	case SubjectObject:
		return SubjectObject, nil
	}
	return "", fmt.Errorf("unknown subject %q", s)
}

type ArrivalType string

const (
	ArrivalOwner   ArrivalType = "owner"
	ArrivalBoss    ArrivalType = "boss"
	ArrivalVisitor ArrivalType = "visitor"
	ArrivalUnknown ArrivalType = "unknown"
)

// DetectionEvent is the outbound alert produced by one tick or by a simulation.
// Values are never mutated once built.
type DetectionEvent struct {
	Timestamp  time.Time   `json:"ts_utc"`
	Subject    SubjectType `json:"subject"`
	Arrival    ArrivalType `json:"arrival"`
	PlateText  *string     `json:"plate_text"`
	Confidence *float64    `json:"confidence"`
	CameraID   string      `json:"camera_id"`
}

// HasPlate reports whether a non-empty plate is attached.
func (e DetectionEvent) HasPlate() bool {
	return e.PlateText != nil && *e.PlateText != ""
}

// Plate returns the plate text or "" when absent.
func (e DetectionEvent) Plate() string {
	if e.PlateText == nil {
		return ""
	}
	return *e.PlateText
}

// Detection is a single detector hit within one frame. Not persisted.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}

// Record is a stored event as read back from the event store.
type Record struct {
	ID         int64           `json:"id"`
	Timestamp  string          `json:"-"`
	CameraID   string          `json:"-"`
	Subject    SubjectType     `json:"-"`
	Arrival    ArrivalType     `json:"-"`
	PlateText  *string         `json:"-"`
	Confidence *float64        `json:"-"`
	Payload    json.RawMessage `json:"payload"`
}

// Event decodes the stored payload back into a DetectionEvent.
func (r Record) Event() (DetectionEvent, error) {
	var ev DetectionEvent
	if err := json.Unmarshal(r.Payload, &ev); err != nil {
		return DetectionEvent{}, fmt.Errorf("decode payload of event %d: %w", r.ID, err)
	}
	return ev, nil
}

func StringPtr(s string) *string { return &s }

func Float64Ptr(f float64) *float64 { return &f }
