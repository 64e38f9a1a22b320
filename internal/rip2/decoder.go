package rip2

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Decoder turns raw RIP2 datagrams into range images. Decoding is
// stateless per packet: a failed packet is dropped with no partial state,
// and the next packet is decoded independently. The only shared state is
// the lazily loaded schema.
type Decoder struct {
	schema *SchemaProvider
}

// NewDecoder creates a decoder using the given schema provider.
func NewDecoder(schema *SchemaProvider) *Decoder {
	return &Decoder{schema: schema}
}

// Schema exposes the underlying provider (for state reporting and
// operator-triggered reloads).
func (d *Decoder) Schema() *SchemaProvider { return d.schema }

// Decode parses one datagram. Failures are reported as *DecodeError with
// a kind of Malformed, CompressionFailure or SchemaUnavailable.
func (d *Decoder) Decode(pkt []byte) (*RangeImage, error) {
	payload, compressed, err := unwrapFrame(pkt)
	if err != nil {
		return nil, err
	}

	mt, err := d.schema.RangeImageType()
	if err != nil {
		return nil, err
	}

	msg := mt.New()
	if err := proto.Unmarshal(payload, msg.Interface()); err != nil {
		if !compressed {
			// Well-formed frames carry snappy payloads; a payload that is
			// neither valid snappy nor a valid message is broken compression.
			return nil, &DecodeError{Kind: KindCompressionFailure, Msg: "payload is neither valid snappy nor a valid message", Err: err}
		}
		return nil, &DecodeError{Kind: KindMalformed, Msg: "message parse failed", Err: err}
	}
	return rangeImageFromMessage(msg)
}

func rangeImageFromMessage(msg protoreflect.Message) (*RangeImage, error) {
	fields := msg.Descriptor().Fields()
	get := func(name string) protoreflect.Value {
		return msg.Get(fields.ByName(protoreflect.Name(name)))
	}

	beamCount := int(get("beam_count").Uint())
	sampleCount := int(get("sample_count").Uint())
	if beamCount <= 0 || sampleCount <= 0 {
		return nil, malformedf("invalid dimensions: %d beams x %d samples", beamCount, sampleCount)
	}

	angles := get("beam_angles").List()
	if angles.Len() != beamCount {
		return nil, malformedf("beam_angles has %d entries, want %d", angles.Len(), beamCount)
	}
	ranges := get("ranges").List()
	if ranges.Len() != beamCount*sampleCount {
		return nil, malformedf("ranges has %d entries, want %d", ranges.Len(), beamCount*sampleCount)
	}
	intensities := get("intensities").List()
	if intensities.Len() != 0 && intensities.Len() != ranges.Len() {
		return nil, malformedf("intensities has %d entries, want 0 or %d", intensities.Len(), ranges.Len())
	}

	ri := &RangeImage{
		SensorID: get("sensor_id").String(),
		MaxRange: get("max_range").Float(),
		Beams:    make([]Beam, beamCount),
	}
	if usec := get("timestamp_usec").Uint(); usec > 0 {
		ri.Timestamp = time.UnixMicro(int64(usec)).UTC()
	} else {
		ri.Timestamp = time.Now().UTC()
	}

	for b := 0; b < beamCount; b++ {
		beam := Beam{
			Angle:  angles.Get(b).Float(),
			Ranges: make([]float64, sampleCount),
		}
		if intensities.Len() > 0 {
			beam.Intensities = make([]uint8, sampleCount)
		}
		for s := 0; s < sampleCount; s++ {
			idx := b*sampleCount + s
			beam.Ranges[s] = ranges.Get(idx).Float()
			if intensities.Len() > 0 {
				v := intensities.Get(idx).Uint()
				if v > 255 {
					v = 255
				}
				beam.Intensities[s] = uint8(v)
			}
		}
		ri.Beams[b] = beam
	}
	return ri, nil
}
