// Package pointcloud converts decoded sonar range images into 3D point
// clouds and holds the most recent cloud for the render path.
package pointcloud

import "time"

// Frame identifies the coordinate frame a point is expressed in.
type Frame string

const (
	FrameSonar  Frame = "sonar"
	FrameCamera Frame = "camera"
)

// Point is a single sonar return in Cartesian coordinates (meters).
// Coordinate convention: X=forward, Y=right, Z=up relative to the sensor.
type Point struct {
	X         float64
	Y         float64
	Z         float64
	Range     float64 // original slant range in meters
	Intensity uint8
	Frame     Frame
}

// Cloud is an immutable snapshot of points extracted from one range image.
// Once published it must not be mutated; readers share the backing slice.
type Cloud struct {
	SensorID  string
	Timestamp time.Time
	Points    []Point
}
