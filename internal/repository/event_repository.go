package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gatewatch/internal/domain/gate"
)

const (
	MinListLimit = 1
	MaxListLimit = 1000
)

type EventRepository struct {
	db *gorm.DB
	// writeMu serializes inserts so ids are handed out in commit order.
	writeMu sync.Mutex
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

type EventRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	TsUTC       string `gorm:"column:ts_utc;not null"`
	CameraID    string `gorm:"not null"`
	Subject     string `gorm:"not null"`
	Arrival     string `gorm:"not null"`
	PlateText   *string
	Confidence  *float64
	PayloadJSON datatypes.JSON `gorm:"column:payload_json;not null"`
}

func (EventRow) TableName() string { return "events" }

// Insert appends one event and returns the id assigned by the database.
func (r *EventRepository) Insert(ctx context.Context, event gate.DetectionEvent) (int64, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encode event payload: %w", err)
	}

	row := EventRow{
		TsUTC:       event.Timestamp.UTC().Format(time.RFC3339Nano),
		CameraID:    event.CameraID,
		Subject:     string(event.Subject),
		Arrival:     string(event.Arrival),
		PlateText:   event.PlateText,
		Confidence:  event.Confidence,
		PayloadJSON: datatypes.JSON(payload),
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// Get returns the event with the given id, or nil when it does not exist.
func (r *EventRepository) Get(ctx context.Context, id int64) (*gate.Record, error) {
	var row EventRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := row.toRecord()
	return &rec, nil
}

// ListRecent returns the newest events first. The limit is clamped to
// [MinListLimit, MaxListLimit].
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]gate.Record, error) {
	limit = ClampLimit(limit)

	var rows []EventRow
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]gate.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func ClampLimit(limit int) int {
	return max(MinListLimit, min(limit, MaxListLimit))
}

func (row EventRow) toRecord() gate.Record {
	return gate.Record{
		ID:         row.ID,
		Timestamp:  row.TsUTC,
		CameraID:   row.CameraID,
		Subject:    gate.SubjectType(row.Subject),
		Arrival:    gate.ArrivalType(row.Arrival),
		PlateText:  row.PlateText,
		Confidence: row.Confidence,
		Payload:    json.RawMessage(row.PayloadJSON),
	}
}
