// Package calib estimates camera intrinsics from checkerboard
// observations: corner detection, Zhang-style closed-form initialization
// from per-view homographies, and joint non-linear refinement of the
// intrinsics, distortion and per-view poses.
package calib

import "fmt"

// Board describes the checkerboard target: the inner-corner grid
// dimensions and the physical square size in meters.
type Board struct {
	Rows       int
	Cols       int
	SquareSize float64
}

// Validate rejects geometries that cannot form a calibration target.
func (b Board) Validate() error {
	if b.Rows < 2 || b.Cols < 2 {
		return &ConfigError{Msg: fmt.Sprintf("board must have at least 2x2 inner corners, got %dx%d", b.Rows, b.Cols)}
	}
	if b.SquareSize <= 0 {
		return &ConfigError{Msg: fmt.Sprintf("square size must be positive, got %f", b.SquareSize)}
	}
	return nil
}

// Corners returns the number of inner corners.
func (b Board) Corners() int { return b.Rows * b.Cols }

// ObjectPoints returns the board-frame 3D coordinates of each inner
// corner in row-major order, z = 0 on the board plane.
func (b Board) ObjectPoints() [][3]float64 {
	pts := make([][3]float64, 0, b.Corners())
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			pts = append(pts, [3]float64{float64(c) * b.SquareSize, float64(r) * b.SquareSize, 0})
		}
	}
	return pts
}
