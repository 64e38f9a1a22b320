// Package overlay is the control plane of the fusion pipeline: it owns
// the active calibration artifacts, the single calibration session, the
// overlay options, and the projection of the latest point cloud into the
// live frame.
package overlay

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aquasight/sonarcam/internal/calib"
	"github.com/aquasight/sonarcam/internal/camera"
	"github.com/aquasight/sonarcam/internal/pointcloud"
	"github.com/aquasight/sonarcam/internal/store"
)

// Options controls how the overlay is rendered. Values outside the legal
// ranges are clamped on set.
type Options struct {
	Enabled   bool   `json:"enabled"`
	PointSize int    `json:"point_size"` // 1..10
	Decimate  int    `json:"decimate"`   // 1..32
	ColorMode string `json:"color_mode"` // "range" or "intensity"
}

// DefaultOptions returns the overlay defaults.
func DefaultOptions() Options {
	return Options{Enabled: true, PointSize: 2, Decimate: 4, ColorMode: "range"}
}

func (o Options) clamped() Options {
	if o.PointSize < 1 {
		o.PointSize = 1
	} else if o.PointSize > 10 {
		o.PointSize = 10
	}
	if o.Decimate < 1 {
		o.Decimate = 1
	} else if o.Decimate > 32 {
		o.Decimate = 32
	}
	if o.ColorMode != "range" && o.ColorMode != "intensity" {
		o.ColorMode = "range"
	}
	return o
}

// activeIntrinsics pairs the intrinsic model with its solve quality so
// both swap atomically.
type activeIntrinsics struct {
	model camera.Intrinsics
	rmsPx float64
}

// Frame is the projected overlay for one rendered video frame.
type Frame struct {
	Points    []camera.PixelPoint
	PointSize int
	ColorMode string
}

// Service wires calibration, persistence and projection together and
// exposes the operator-facing operations.
type Service struct {
	engine *calib.Engine
	store  *store.Store
	clouds *pointcloud.Snapshot

	intr atomic.Pointer[activeIntrinsics]
	pose atomic.Pointer[camera.Pose]

	mu   sync.Mutex
	opts Options
}

// NewService creates the control plane and loads any persisted
// calibration artifacts so the overlay works immediately after restart.
func NewService(st *store.Store, clouds *pointcloud.Snapshot, detector calib.CornerDetector) (*Service, error) {
	s := &Service{
		engine: calib.NewEngine(detector),
		store:  st,
		clouds: clouds,
		opts:   DefaultOptions(),
	}
	if in, rms, ok, err := st.LoadIntrinsics(); err != nil {
		return nil, fmt.Errorf("load intrinsics: %w", err)
	} else if ok {
		s.intr.Store(&activeIntrinsics{model: *in, rmsPx: rms})
		log.Printf("Loaded intrinsics (%dx%d, rms=%.4fpx)", in.Width, in.Height, rms)
	}
	if p, ok, err := st.LoadExtrinsics(); err != nil {
		return nil, fmt.Errorf("load extrinsics: %w", err)
	} else if ok {
		s.pose.Store(p)
		log.Printf("Loaded extrinsics rvec=%v tvec=%v", p.Rotation, p.Translation)
	}
	return s, nil
}

// StartCalibration begins a checkerboard capture session.
func (s *Service) StartCalibration(rows, cols int, squareSize float64) (uuid.UUID, error) {
	return s.engine.Start(rows, cols, squareSize)
}

// CaptureCalibrationFrame feeds one camera frame to the session. Returns
// the number of samples captured so far.
func (s *Service) CaptureCalibrationFrame(frame image.Image) (int, error) {
	return s.engine.Capture(frame)
}

// CalibrationState reports the session state and sample count.
func (s *Service) CalibrationState() (calib.State, int) {
	return s.engine.State(), s.engine.SampleCount()
}

// SolveCalibration solves the active session. The model is persisted
// before activation: if the write fails, the previous model (persisted
// and active) is untouched and the error is returned.
func (s *Service) SolveCalibration(ctx context.Context) (*calib.Result, error) {
	res, err := s.engine.Solve(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveIntrinsics(res.Intrinsics, res.RMSError); err != nil {
		return nil, fmt.Errorf("solved but failed to persist intrinsics: %w", err)
	}
	s.intr.Store(&activeIntrinsics{model: *res.Intrinsics, rmsPx: res.RMSError})
	return res, nil
}

// Intrinsics returns the active intrinsic model, if any.
func (s *Service) Intrinsics() (*camera.Intrinsics, float64, bool) {
	act := s.intr.Load()
	if act == nil {
		return nil, 0, false
	}
	model := act.model
	return &model, act.rmsPx, true
}

// SaveExtrinsics validates, persists and activates a sonar-to-camera
// pose. The new pose takes effect for the next projection.
func (s *Service) SaveExtrinsics(rotation, translation [3]float64) error {
	p := &camera.Pose{Rotation: rotation, Translation: translation}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveExtrinsics(p); err != nil {
		return err
	}
	s.pose.Store(p)
	return nil
}

// Extrinsics returns the active pose, if any.
func (s *Service) Extrinsics() (*camera.Pose, bool) {
	p := s.pose.Load()
	if p == nil {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// SetOptions replaces the overlay options, clamping out-of-range values.
func (s *Service) SetOptions(o Options) Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = o.clamped()
	return s.opts
}

// Options returns the current overlay options.
func (s *Service) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// ProjectLatest projects the most recent point cloud into pixel space for
// the frame described by bounds. When the overlay is disabled it returns
// an empty frame. When the cloud, intrinsics or extrinsics are missing it
// returns a NotConfiguredError; the overlay simply shows nothing.
func (s *Service) ProjectLatest(bounds *camera.Bounds) (*Frame, error) {
	opts := s.Options()
	if !opts.Enabled {
		return &Frame{PointSize: opts.PointSize, ColorMode: opts.ColorMode}, nil
	}

	cloud := s.clouds.Latest()
	if cloud == nil {
		return nil, &camera.NotConfiguredError{What: "point cloud"}
	}
	act := s.intr.Load()
	var intr *camera.Intrinsics
	if act != nil {
		model := act.model
		intr = &model
	}
	pts, err := camera.Project(cloud.Points, s.pose.Load(), intr, opts.Decimate, bounds)
	if err != nil {
		return nil, err
	}
	return &Frame{Points: pts, PointSize: opts.PointSize, ColorMode: opts.ColorMode}, nil
}
