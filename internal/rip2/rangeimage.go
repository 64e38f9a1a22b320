// Package rip2 decodes Water Linked RIP2 range-image datagrams: an outer
// frame (magic, length, snappy payload, CRC-32) around a protobuf message
// whose schema is provided externally and loaded on demand.
package rip2

import "time"

// Beam is one sonar beam: its azimuth within the scanning plane and the
// ordered range samples observed along it.
type Beam struct {
	Angle       float64   // radians
	Ranges      []float64 // meters; 0 means no return at that sample
	Intensities []uint8
}

// RangeImage is the decoded form of one RIP2 packet. It is immutable once
// decoded and discarded after point extraction.
type RangeImage struct {
	SensorID  string
	Timestamp time.Time
	MaxRange  float64 // meters
	Beams     []Beam
}

// SampleCount returns the total number of range samples across all beams.
func (ri *RangeImage) SampleCount() int {
	n := 0
	for _, b := range ri.Beams {
		n += len(b.Ranges)
	}
	return n
}
