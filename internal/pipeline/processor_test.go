package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatewatch/internal/config"
	"gatewatch/internal/domain/gate"
	"gatewatch/internal/vision"
	"gatewatch/internal/whitelist"
)

type fakeSource struct {
	frames int
	err    error
	closed bool
}

func (s *fakeSource) Read(context.Context) (*vision.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.frames++
	return &vision.Frame{Seq: uint64(s.frames), Data: []byte("img")}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeDetector struct {
	dets  []gate.Detection
	err   error
	panic bool
}

func (d fakeDetector) Detect(context.Context, *vision.Frame) ([]gate.Detection, error) {
	if d.panic {
		panic("model crashed")
	}
	return d.dets, d.err
}

type fakePlates struct {
	plate string
	err   error
	calls int
}

func (p *fakePlates) Recognize(context.Context, *vision.Frame) (string, error) {
	p.calls++
	return p.plate, p.err
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestProcessor(det vision.Detector, plates vision.PlateRecognizer, src *fakeSource) *Processor {
	p := NewProcessor(Options{
		CameraID:      "gate-1",
		Source:        "test",
		Detector:      det,
		Plates:        plates,
		Whitelist:     whitelist.New(map[string]string{"XYZ999": "owner", "boss-1": "boss"}),
		PersonLabels:  config.SplitLabels("person"),
		VehicleLabels: config.SplitLabels("car,truck,bus,motorcycle"),
		Open: func(string) (vision.FrameSource, error) {
			return src, nil
		},
	}, zerolog.Nop())
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestProcessOneTick_PersonBeatsVehicle(t *testing.T) {
	plates := &fakePlates{plate: "XYZ999"}
	det := fakeDetector{dets: []gate.Detection{
		{Label: "person", Confidence: 0.8},
		{Label: "car", Confidence: 0.6},
		{Label: "person", Confidence: 0.5},
	}}
	p := newTestProcessor(det, plates, &fakeSource{})

	ev := p.ProcessOneTick(context.Background())
	require.NotNil(t, ev)
	assert.Equal(t, gate.SubjectPerson, ev.Subject)
	assert.Equal(t, gate.ArrivalUnknown, ev.Arrival)
	require.NotNil(t, ev.Confidence)
	assert.Equal(t, 0.8, *ev.Confidence)
	assert.Nil(t, ev.PlateText)
	assert.Equal(t, "gate-1", ev.CameraID)
	assert.Equal(t, fixedNow, ev.Timestamp)
	assert.Zero(t, plates.calls, "plate reading must not run for person events")
}

func TestProcessOneTick_WhitelistedVehicle(t *testing.T) {
	plates := &fakePlates{plate: "XYZ999"}
	p := newTestProcessor(fakeDetector{dets: []gate.Detection{{Label: "car", Confidence: 0.7}}}, plates, &fakeSource{})

	ev := p.ProcessOneTick(context.Background())
	require.NotNil(t, ev)
	assert.Equal(t, gate.SubjectVehicle, ev.Subject)
	assert.Equal(t, gate.ArrivalOwner, ev.Arrival)
	assert.Equal(t, "XYZ999", ev.Plate())
	assert.Equal(t, 0.7, *ev.Confidence)
}

func TestProcessOneTick_VehicleMaxConfidenceAndCaseInsensitiveLabels(t *testing.T) {
	plates := &fakePlates{plate: "BOSS1"}
	p := newTestProcessor(fakeDetector{dets: []gate.Detection{
		{Label: "Truck", Confidence: 0.4},
		{Label: "CAR", Confidence: 0.9},
	}}, plates, &fakeSource{})

	ev := p.ProcessOneTick(context.Background())
	require.NotNil(t, ev)
	assert.Equal(t, 0.9, *ev.Confidence)
	assert.Equal(t, gate.ArrivalBoss, ev.Arrival)
}

func TestProcessOneTick_UnknownPlateIsVisitor(t *testing.T) {
	p := newTestProcessor(fakeDetector{dets: []gate.Detection{{Label: "bus", Confidence: 0.5}}},
		&fakePlates{plate: "AAA111"}, &fakeSource{})

	ev := p.ProcessOneTick(context.Background())
	require.NotNil(t, ev)
	assert.Equal(t, gate.ArrivalVisitor, ev.Arrival)
}

func TestProcessOneTick_NoPlate(t *testing.T) {
	tests := []struct {
		name   string
		plates vision.PlateRecognizer
	}{
		{"disabled", vision.NopRecognizer{}},
		{"empty reading", &fakePlates{}},
		{"ocr error", &fakePlates{plate: "XYZ999", err: errors.New("ocr down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(fakeDetector{dets: []gate.Detection{{Label: "car", Confidence: 0.7}}}, tt.plates, &fakeSource{})

			ev := p.ProcessOneTick(context.Background())
			require.NotNil(t, ev)
			assert.Equal(t, gate.SubjectVehicle, ev.Subject)
			assert.Equal(t, gate.ArrivalUnknown, ev.Arrival)
			assert.Nil(t, ev.PlateText)
		})
	}
}

func TestProcessOneTick_NothingToReport(t *testing.T) {
	tests := []struct {
		name string
		det  vision.Detector
	}{
		{"no detections", fakeDetector{}},
		{"unrelated labels", fakeDetector{dets: []gate.Detection{{Label: "dog", Confidence: 0.99}}}},
		{"detector error", fakeDetector{err: errors.New("inference failed")}},
		{"detector panic", fakeDetector{panic: true}},
		{"detection disabled", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(tt.det, &fakePlates{plate: "XYZ999"}, &fakeSource{})
			assert.Nil(t, p.ProcessOneTick(context.Background()))
			// The next tick still runs normally.
			assert.Nil(t, p.ProcessOneTick(context.Background()))
		})
	}
}

func TestProcessOneTick_SourceOpenFailureIsRetried(t *testing.T) {
	src := &fakeSource{}
	attempts := 0
	p := newTestProcessor(fakeDetector{dets: []gate.Detection{{Label: "person", Confidence: 0.5}}}, nil, src)
	p.opts.Open = func(string) (vision.FrameSource, error) {
		attempts++
		if attempts == 1 {
			return nil, vision.ErrLocalDevice
		}
		return src, nil
	}

	assert.Nil(t, p.ProcessOneTick(context.Background()))
	require.NotNil(t, p.ProcessOneTick(context.Background()))
	require.NotNil(t, p.ProcessOneTick(context.Background()))
	assert.Equal(t, 2, attempts, "source is opened once and then reused")
	assert.Equal(t, 2, src.frames)
}

func TestProcessOneTick_ReadFailureYieldsNothing(t *testing.T) {
	src := &fakeSource{err: errors.New("camera unplugged")}
	p := newTestProcessor(fakeDetector{dets: []gate.Detection{{Label: "person", Confidence: 0.5}}}, nil, src)

	assert.Nil(t, p.ProcessOneTick(context.Background()))
}

func TestClose_ReleasesSource(t *testing.T) {
	src := &fakeSource{}
	p := newTestProcessor(fakeDetector{}, nil, src)

	p.Close()
	assert.False(t, src.closed, "never opened")

	p.ProcessOneTick(context.Background())
	p.Close()
	assert.True(t, src.closed)
}

func TestFromConfig_DetectionDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Camera.ID = "gate-9"
	cfg.Pipeline.EnableDetection = false

	p := FromConfig(cfg, whitelist.Whitelist{}, zerolog.Nop())
	assert.Nil(t, p.opts.Detector)
	assert.IsType(t, vision.NopRecognizer{}, p.opts.Plates)
	assert.Nil(t, p.ProcessOneTick(context.Background()))
}
