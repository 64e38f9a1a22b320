package rip2

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// CanonicalSchema returns the descriptor set for the RIP2 range-image
// message as this decoder understands it. The sonar vendor ships the
// schema out of band; the rip2-schema tool serializes this set so a
// deployment always has a descriptor file matching the decoder.
//
// waterlinked.RangeImage fields:
//
//	1 sensor_id      string
//	2 timestamp_usec uint64   microseconds since the Unix epoch
//	3 beam_count     uint32
//	4 sample_count   uint32   samples per beam
//	5 beam_angles    repeated double, radians, one per beam
//	6 ranges         repeated float, meters, beam-major (beam_count x sample_count)
//	7 intensities    repeated uint32, same layout as ranges (optional)
//	8 max_range      double, meters
func CanonicalSchema() *descriptorpb.FileDescriptorSet {
	str := func(s string) *string { return &s }
	num := func(n int32) *int32 { return &n }
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	typ := func(t descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto_Type { return &t }

	msg := &descriptorpb.DescriptorProto{
		Name: str("RangeImage"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{Name: str("sensor_id"), Number: num(1), Label: optional,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_STRING), JsonName: str("sensorId")},
			{Name: str("timestamp_usec"), Number: num(2), Label: optional,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_UINT64), JsonName: str("timestampUsec")},
			{Name: str("beam_count"), Number: num(3), Label: optional,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_UINT32), JsonName: str("beamCount")},
			{Name: str("sample_count"), Number: num(4), Label: optional,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_UINT32), JsonName: str("sampleCount")},
			{Name: str("beam_angles"), Number: num(5), Label: repeated,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_DOUBLE), JsonName: str("beamAngles")},
			{Name: str("ranges"), Number: num(6), Label: repeated,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_FLOAT), JsonName: str("ranges")},
			{Name: str("intensities"), Number: num(7), Label: repeated,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_UINT32), JsonName: str("intensities")},
			{Name: str("max_range"), Number: num(8), Label: optional,
				Type: typ(descriptorpb.FieldDescriptorProto_TYPE_DOUBLE), JsonName: str("maxRange")},
		},
	}

	file := &descriptorpb.FileDescriptorProto{
		Name:        str("waterlinked_rip2.proto"),
		Package:     str("waterlinked"),
		Syntax:      str("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{msg},
	}
	return &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}}
}

// MarshalCanonicalSchema serializes the canonical descriptor set to the
// wire form the SchemaProvider loads from disk.
func MarshalCanonicalSchema() ([]byte, error) {
	return proto.Marshal(CanonicalSchema())
}
