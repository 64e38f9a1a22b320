package camera

import (
	"fmt"
	"math"
)

// Distortion holds Brown-Conrady lens distortion coefficients in the
// OpenCV ordering (k1, k2, p1, p2, k3).
type Distortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	P1 float64 `json:"p1"`
	P2 float64 `json:"p2"`
	K3 float64 `json:"k3"`
}

// IsZero reports whether all coefficients are zero (pure pinhole model).
func (d Distortion) IsZero() bool {
	return d.K1 == 0 && d.K2 == 0 && d.P1 == 0 && d.P2 == 0 && d.K3 == 0
}

// Transform distorts normalised image coordinates (x, y) according to the
// Brown-Conrady model as described by OpenCV.
func (d Distortion) Transform(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	radial := 1 + d.K1*r2 + d.K2*r2*r2 + d.K3*r2*r2*r2
	dx := x*radial + 2*d.P1*x*y + d.P2*(r2+2*x*x)
	dy := y*radial + 2*d.P2*x*y + d.P1*(r2+2*y*y)
	return dx, dy
}

// Intrinsics describes a pinhole camera: focal lengths and principal point
// in pixels, lens distortion, and the image resolution the model was solved
// for. A solved model is immutable; re-solving replaces it wholesale.
type Intrinsics struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Fx         float64    `json:"fx"`
	Fy         float64    `json:"fy"`
	Cx         float64    `json:"cx"`
	Cy         float64    `json:"cy"`
	Distortion Distortion `json:"distortion"`
}

// CheckValid reports whether the model can be used for projection.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return fmt.Errorf("intrinsics are nil")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("invalid resolution (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("invalid focal lengths (%f, %f)", in.Fx, in.Fy)
	}
	for _, v := range []float64{in.Fx, in.Fy, in.Cx, in.Cy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite intrinsic parameter")
		}
	}
	return nil
}

// Project maps a camera-frame point to pixel coordinates. The caller must
// ensure z > 0; points at or behind the image plane cannot be projected.
func (in *Intrinsics) Project(x, y, z float64) (u, v float64) {
	nx := x / z
	ny := y / z
	nx, ny = in.Distortion.Transform(nx, ny)
	u = nx*in.Fx + in.Cx
	v = ny*in.Fy + in.Cy
	return u, v
}
