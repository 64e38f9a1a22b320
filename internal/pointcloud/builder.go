package pointcloud

import (
	"math"

	"github.com/aquasight/sonarcam/internal/rip2"
)

// Geometry describes the sonar's beam-forming geometry used when lifting
// fan-plane samples into 3D. A 2D multibeam sonar reports range along each
// beam azimuth within its scanning plane; ElevationRad is the assumed
// out-of-plane angle of that plane (0 for a level fan).
type Geometry struct {
	ElevationRad float64
	MaxRange     float64 // meters; samples beyond this are dropped. 0 falls back to the range image's own bound.
	MinIntensity uint8   // samples weaker than this are dropped
}

// Build converts a decoded range image into sonar-frame points. Samples
// with non-positive range, range beyond the sensor bound, or intensity
// below the threshold are dropped, so the output may be shorter than the
// input sample count. Build is a pure function and safe to call
// concurrently on independent range images.
func Build(ri *rip2.RangeImage, geom Geometry) []Point {
	if ri == nil {
		return nil
	}
	maxRange := geom.MaxRange
	if maxRange <= 0 {
		maxRange = ri.MaxRange
	}

	cosElev := math.Cos(geom.ElevationRad)
	sinElev := math.Sin(geom.ElevationRad)

	points := make([]Point, 0, ri.SampleCount())
	for _, beam := range ri.Beams {
		cosAz := math.Cos(beam.Angle)
		sinAz := math.Sin(beam.Angle)
		for i, r := range beam.Ranges {
			if r <= 0 {
				continue
			}
			if maxRange > 0 && r > maxRange {
				continue
			}
			var intensity uint8 = 255
			if i < len(beam.Intensities) {
				intensity = beam.Intensities[i]
			}
			if intensity < geom.MinIntensity {
				continue
			}
			points = append(points, Point{
				X:         r * cosElev * cosAz,
				Y:         r * cosElev * sinAz,
				Z:         r * sinElev,
				Range:     r,
				Intensity: intensity,
				Frame:     FrameSonar,
			})
		}
	}
	return points
}

// BuildCloud wraps Build with the range image's identity and timestamp.
func BuildCloud(ri *rip2.RangeImage, geom Geometry) *Cloud {
	if ri == nil {
		return nil
	}
	return &Cloud{
		SensorID:  ri.SensorID,
		Timestamp: ri.Timestamp,
		Points:    Build(ri, geom),
	}
}
