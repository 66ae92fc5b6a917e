// Package pipeline turns captured frames into at most one gate event per tick.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gatewatch/internal/config"
	"gatewatch/internal/domain/gate"
	"gatewatch/internal/vision"
	"gatewatch/internal/whitelist"
)

// SourceOpener opens the camera named by a source string.
type SourceOpener func(source string) (vision.FrameSource, error)

type Options struct {
	CameraID string
	Source   string
	// Detector is nil when detection is disabled; every tick then yields nothing.
	Detector      vision.Detector
	Plates        vision.PlateRecognizer
	Whitelist     whitelist.Whitelist
	PersonLabels  map[string]struct{}
	VehicleLabels map[string]struct{}
	Open          SourceOpener
}

// Processor runs one capture, detect, classify iteration at a time. It owns
// the frame source and must be driven from a single goroutine.
type Processor struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	src           vision.FrameSource
	openFailed    bool
	lastSourceErr string
}

func NewProcessor(opts Options, log zerolog.Logger) *Processor {
	if opts.Open == nil {
		opts.Open = vision.OpenSource
	}
	if opts.Plates == nil {
		opts.Plates = vision.NopRecognizer{}
	}
	return &Processor{
		opts: opts,
		log:  log.With().Str("component", "processor").Str("camera_id", opts.CameraID).Logger(),
		now:  time.Now,
	}
}

// FromConfig wires the HTTP collaborators described by cfg.
func FromConfig(cfg *config.Config, wl whitelist.Whitelist, log zerolog.Logger) *Processor {
	p := cfg.Pipeline
	opts := Options{
		CameraID:      cfg.Camera.ID,
		Source:        cfg.Camera.Source,
		Whitelist:     wl,
		PersonLabels:  config.SplitLabels(p.PersonLabels),
		VehicleLabels: config.SplitLabels(p.VehicleLabels),
		Plates: vision.NewPlateRecognizer(vision.PlateConfig{
			Endpoint: p.OCRURL,
			Weights:  p.PlateWeights,
			MinConf:  p.PlateConf,
			Langs:    p.OCRLangs,
		}),
	}
	if p.EnableDetection {
		opts.Detector = vision.NewHTTPDetector(p.DetectorURL, p.DetectorConf, config.SplitLabels(p.DetectorLabels))
	}
	return NewProcessor(opts, log)
}

// ProcessOneTick returns the event for the current frame or nil. Collaborator
// errors and panics are logged and never escape.
func (p *Processor) ProcessOneTick(ctx context.Context) *gate.DetectionEvent {
	if p.opts.Detector == nil {
		ticksTotal.WithLabelValues("disabled").Inc()
		return nil
	}

	frame := p.readFrame(ctx)
	if frame == nil {
		ticksTotal.WithLabelValues("no_frame").Inc()
		return nil
	}

	var dets []gate.Detection
	err := guard(func() (err error) {
		dets, err = p.opts.Detector.Detect(ctx, frame)
		return err
	})
	if err != nil {
		stageFaults.WithLabelValues("detect").Inc()
		p.log.Error().Err(err).Msg("detector failed")
		ticksTotal.WithLabelValues("fault").Inc()
		return nil
	}

	event := p.decide(ctx, frame, dets)
	if event == nil {
		ticksTotal.WithLabelValues("idle").Inc()
		return nil
	}
	ticksTotal.WithLabelValues(string(event.Subject)).Inc()
	return event
}

// decide applies the subject priority: any person wins over any vehicle and
// at most one event is produced.
func (p *Processor) decide(ctx context.Context, frame *vision.Frame, dets []gate.Detection) *gate.DetectionEvent {
	if len(dets) == 0 {
		return nil
	}

	if conf, ok := maxConfidence(dets, p.opts.PersonLabels); ok {
		return &gate.DetectionEvent{
			Timestamp:  p.now().UTC(),
			Subject:    gate.SubjectPerson,
			Arrival:    gate.ArrivalUnknown,
			Confidence: gate.Float64Ptr(conf),
			CameraID:   p.opts.CameraID,
		}
	}

	conf, ok := maxConfidence(dets, p.opts.VehicleLabels)
	if !ok {
		return nil
	}
	event := &gate.DetectionEvent{
		Timestamp:  p.now().UTC(),
		Subject:    gate.SubjectVehicle,
		Arrival:    gate.ArrivalUnknown,
		Confidence: gate.Float64Ptr(conf),
		CameraID:   p.opts.CameraID,
	}

	var plate string
	err := guard(func() (err error) {
		plate, err = p.opts.Plates.Recognize(ctx, frame)
		return err
	})
	if err != nil {
		stageFaults.WithLabelValues("ocr").Inc()
		p.log.Warn().Err(err).Msg("plate recognition failed")
		return event
	}
	if plate != "" {
		event.PlateText = gate.StringPtr(plate)
		event.Arrival = p.opts.Whitelist.Classify(plate)
	}
	return event
}

func (p *Processor) readFrame(ctx context.Context) *vision.Frame {
	if p.src == nil {
		var src vision.FrameSource
		err := guard(func() (err error) {
			src, err = p.opts.Open(p.opts.Source)
			return err
		})
		if err != nil {
			stageFaults.WithLabelValues("open").Inc()
			// Retried every tick; only the first failure is worth a warning.
			if !p.openFailed {
				p.log.Warn().Err(err).Str("source", p.opts.Source).Msg("cannot open frame source")
				p.openFailed = true
			}
			return nil
		}
		p.src = src
		p.openFailed = false
		p.log.Info().Str("source", p.opts.Source).Msg("frame source opened")
	}

	var frame *vision.Frame
	err := guard(func() (err error) {
		frame, err = p.src.Read(ctx)
		return err
	})
	if err != nil {
		stageFaults.WithLabelValues("read").Inc()
		if msg := err.Error(); msg != p.lastSourceErr {
			p.log.Warn().Err(err).Msg("frame read failed")
			p.lastSourceErr = msg
		}
		return nil
	}
	p.lastSourceErr = ""
	return frame
}

// Close releases the frame source. Release failures are logged only.
func (p *Processor) Close() {
	if p.src == nil {
		return
	}
	if err := p.src.Close(); err != nil {
		p.log.Warn().Err(err).Msg("failed to release frame source")
	}
	p.src = nil
}

func maxConfidence(dets []gate.Detection, labels map[string]struct{}) (float64, bool) {
	best, found := 0.0, false
	for _, d := range dets {
		if _, ok := labels[strings.ToLower(d.Label)]; !ok {
			continue
		}
		if !found || d.Confidence > best {
			best, found = d.Confidence, true
		}
	}
	return best, found
}

// guard turns a panic in fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
