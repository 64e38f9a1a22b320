package camera

import (
	"fmt"

	"github.com/aquasight/sonarcam/internal/pointcloud"
)

// NotConfiguredError signals that projection is impossible because the
// intrinsic model or the extrinsic pose has not been supplied yet. The
// overlay simply shows nothing until both are configured.
type NotConfiguredError struct {
	What string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s not configured", e.What)
}

// IsNotConfigured reports whether err is a NotConfiguredError.
func IsNotConfigured(err error) bool {
	_, ok := err.(*NotConfiguredError)
	return ok
}

// Bounds is an optional pixel-space clip window supplied by the caller
// when it knows the live frame resolution.
type Bounds struct {
	Width  int
	Height int
}

// PixelPoint is a projected sonar point: pixel coordinates plus the
// camera-frame depth and original intensity, kept together so the
// renderer can size and colour points.
type PixelPoint struct {
	U         float64
	V         float64
	Depth     float64 // camera-frame z in meters
	Intensity uint8
}

// Project transforms sonar-frame points into the camera frame with the
// given pose and projects them to pixels with the intrinsic model.
//
// Decimation keeps every Nth point (decimate >= 1) in input order, so the
// same input and factor always yield the same subset. Points with
// non-positive camera-frame depth are dropped. If bounds is non-nil,
// pixels outside [0,w) x [0,h) are dropped and the bounds must match the
// resolution the intrinsics were solved for.
//
// Project is stateless; it is safe to call once per rendered frame.
func Project(points []pointcloud.Point, pose *Pose, intr *Intrinsics, decimate int, bounds *Bounds) ([]PixelPoint, error) {
	if intr == nil {
		return nil, &NotConfiguredError{What: "intrinsics"}
	}
	if pose == nil {
		return nil, &NotConfiguredError{What: "extrinsics"}
	}
	if err := intr.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid intrinsics: %w", err)
	}
	if bounds != nil && (bounds.Width != intr.Width || bounds.Height != intr.Height) {
		return nil, fmt.Errorf("frame resolution %dx%d does not match calibrated resolution %dx%d",
			bounds.Width, bounds.Height, intr.Width, intr.Height)
	}
	if decimate < 1 {
		decimate = 1
	}

	r := pose.RotationMatrix()
	t := pose.Translation

	out := make([]PixelPoint, 0, (len(points)+decimate-1)/decimate)
	for i := 0; i < len(points); i += decimate {
		p := points[i]
		cx := r[0]*p.X + r[1]*p.Y + r[2]*p.Z + t[0]
		cy := r[3]*p.X + r[4]*p.Y + r[5]*p.Z + t[1]
		cz := r[6]*p.X + r[7]*p.Y + r[8]*p.Z + t[2]
		if cz <= 0 {
			continue // behind the camera
		}
		u, v := intr.Project(cx, cy, cz)
		if bounds != nil && (u < 0 || v < 0 || u >= float64(bounds.Width) || v >= float64(bounds.Height)) {
			continue
		}
		out = append(out, PixelPoint{U: u, V: v, Depth: cz, Intensity: p.Intensity})
	}
	return out, nil
}
