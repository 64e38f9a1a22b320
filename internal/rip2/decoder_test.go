package rip2

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/snappy"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// writeSchemaFile serializes the canonical descriptor set into a temp
// file, the same artifact the rip2-schema tool produces.
func writeSchemaFile(t *testing.T) string {
	t.Helper()
	raw, err := MarshalCanonicalSchema()
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	path := filepath.Join(t.TempDir(), "waterlinked_rip2.pb")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return path
}

func testDecoder(t *testing.T) *Decoder {
	t.Helper()
	return NewDecoder(NewSchemaProvider(writeSchemaFile(t)))
}

// payloadSpec describes the field values to encode into a RangeImage
// message; zero-valued fields are left unset.
type payloadSpec struct {
	sensorID    string
	usec        uint64
	beamCount   uint32
	sampleCount uint32
	angles      []float64
	ranges      []float32
	intensities []uint32
	maxRange    float64
}

func encodePayload(t *testing.T, spec payloadSpec) []byte {
	t.Helper()
	files, err := protodesc.NewFiles(CanonicalSchema())
	if err != nil {
		t.Fatalf("build descriptors: %v", err)
	}
	desc, err := files.FindDescriptorByName(rangeImageFullName)
	if err != nil {
		t.Fatalf("find message: %v", err)
	}
	msg := dynamicpb.NewMessage(desc.(protoreflect.MessageDescriptor))
	fields := msg.Descriptor().Fields()
	set := func(name string, v protoreflect.Value) {
		msg.Set(fields.ByName(protoreflect.Name(name)), v)
	}

	if spec.sensorID != "" {
		set("sensor_id", protoreflect.ValueOfString(spec.sensorID))
	}
	if spec.usec != 0 {
		set("timestamp_usec", protoreflect.ValueOfUint64(spec.usec))
	}
	set("beam_count", protoreflect.ValueOfUint32(spec.beamCount))
	set("sample_count", protoreflect.ValueOfUint32(spec.sampleCount))
	angles := msg.Mutable(fields.ByName("beam_angles")).List()
	for _, a := range spec.angles {
		angles.Append(protoreflect.ValueOfFloat64(a))
	}
	ranges := msg.Mutable(fields.ByName("ranges")).List()
	for _, r := range spec.ranges {
		ranges.Append(protoreflect.ValueOfFloat32(r))
	}
	if len(spec.intensities) > 0 {
		ints := msg.Mutable(fields.ByName("intensities")).List()
		for _, v := range spec.intensities {
			ints.Append(protoreflect.ValueOfUint32(v))
		}
	}
	if spec.maxRange != 0 {
		set("max_range", protoreflect.ValueOfFloat64(spec.maxRange))
	}

	raw, err := proto.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func validSpec() payloadSpec {
	return payloadSpec{
		sensorID:    "sonar-1",
		usec:        1_700_000_000_000_000,
		beamCount:   2,
		sampleCount: 3,
		angles:      []float64{-0.5, 0.5},
		ranges:      []float32{1.5, 2.25, 3.5, 4.5, 0, 6.25},
		intensities: []uint32{10, 20, 30, 40, 50, 300},
		maxRange:    50,
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	d := testDecoder(t)
	pkt := WrapFrame(encodePayload(t, validSpec()), true)

	ri, err := d.Decode(pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := &RangeImage{
		SensorID:  "sonar-1",
		Timestamp: time.UnixMicro(1_700_000_000_000_000).UTC(),
		MaxRange:  50,
		Beams: []Beam{
			{Angle: -0.5, Ranges: []float64{1.5, 2.25, 3.5}, Intensities: []uint8{10, 20, 30}},
			{Angle: 0.5, Ranges: []float64{4.5, 0, 6.25}, Intensities: []uint8{40, 50, 255}},
		},
	}
	if diff := cmp.Diff(want, ri); diff != "" {
		t.Errorf("decoded range image mismatch (-want +got):\n%s", diff)
	}
	if ri.SampleCount() != 6 {
		t.Errorf("SampleCount() = %d, want 6", ri.SampleCount())
	}
}

func TestDecodeUncompressedPayload(t *testing.T) {
	d := testDecoder(t)
	payload := encodePayload(t, validSpec())
	// Protobuf bytes could in principle also parse as snappy, which would
	// route this packet down the compressed path instead.
	if _, err := snappy.Decode(nil, payload); err == nil {
		t.Skip("payload coincidentally valid snappy")
	}
	pkt := WrapFrame(payload, false)
	ri, err := d.Decode(pkt)
	if err != nil {
		t.Fatalf("decode uncompressed: %v", err)
	}
	if ri.SensorID != "sonar-1" {
		t.Errorf("sensor id = %q", ri.SensorID)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	d := testDecoder(t)
	valid := WrapFrame(encodePayload(t, validSpec()), true)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0x00

	badLength := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(badLength[4:8], uint32(len(badLength)+1))

	badCRC := append([]byte(nil), valid...)
	badCRC[len(badCRC)-1] ^= 0xFF

	tests := []struct {
		name string
		pkt  []byte
	}{
		{"empty packet", nil},
		{"zero byte", []byte{0}},
		{"truncated header", valid[:8]},
		{"bad magic", badMagic},
		{"length mismatch", badLength},
		{"crc mismatch", badCRC},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode(tc.pkt)
			kind, ok := DecodeKindOf(err)
			if !ok || kind != KindMalformed {
				t.Errorf("got %v, want malformed decode error", err)
			}
		})
	}
}

func TestDecodeGarbagePayloadIsCompressionFailure(t *testing.T) {
	d := testDecoder(t)
	// Not valid snappy and not a valid message either.
	pkt := WrapFrame([]byte{0xFF, 0xFF, 0xFF, 0xFF}, false)
	_, err := d.Decode(pkt)
	kind, ok := DecodeKindOf(err)
	if !ok || kind != KindCompressionFailure {
		t.Errorf("got %v, want compression-failure decode error", err)
	}
}

func TestDecodeDimensionMismatches(t *testing.T) {
	d := testDecoder(t)

	tests := []struct {
		name   string
		mutate func(*payloadSpec)
	}{
		{"zero beams", func(s *payloadSpec) { s.beamCount = 0 }},
		{"zero samples", func(s *payloadSpec) { s.sampleCount = 0 }},
		{"missing angle", func(s *payloadSpec) { s.angles = s.angles[:1] }},
		{"short ranges", func(s *payloadSpec) { s.ranges = s.ranges[:5] }},
		{"short intensities", func(s *payloadSpec) { s.intensities = s.intensities[:2] }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)
			pkt := WrapFrame(encodePayload(t, spec), true)
			_, err := d.Decode(pkt)
			kind, ok := DecodeKindOf(err)
			if !ok || kind != KindMalformed {
				t.Errorf("got %v, want malformed decode error", err)
			}
		})
	}
}

func TestDecodeOmittedIntensities(t *testing.T) {
	d := testDecoder(t)
	spec := validSpec()
	spec.intensities = nil
	ri, err := d.Decode(WrapFrame(encodePayload(t, spec), true))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, b := range ri.Beams {
		if b.Intensities != nil {
			t.Errorf("expected no intensities, got %v", b.Intensities)
		}
	}
}

func TestDecodeMissingTimestampUsesWallClock(t *testing.T) {
	d := testDecoder(t)
	spec := validSpec()
	spec.usec = 0
	before := time.Now().Add(-time.Second)
	ri, err := d.Decode(WrapFrame(encodePayload(t, spec), true))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ri.Timestamp.Before(before) || ri.Timestamp.After(time.Now().Add(time.Second)) {
		t.Errorf("fallback timestamp %v is not near now", ri.Timestamp)
	}
}

func TestDecodeFailureLeavesDecoderUsable(t *testing.T) {
	d := testDecoder(t)
	if _, err := d.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected decode failure")
	}
	if _, err := d.Decode(WrapFrame(encodePayload(t, validSpec()), true)); err != nil {
		t.Fatalf("decoder unusable after failure: %v", err)
	}
}
