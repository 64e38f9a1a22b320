package rip2

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/klauspost/compress/snappy"
)

// RIP2 outer frame layout:
//
//	magic (4 bytes) | total length (4 bytes, big-endian) | payload | CRC-32 (4 bytes, big-endian)
//
// The length covers the whole datagram including magic and CRC. The CRC
// is IEEE 802.3 over everything before the trailer. Payloads are normally
// snappy block-compressed; uncompressed payloads are accepted as well.
var frameMagic = [4]byte{0x82, 0x73, 0x80, 0x50} // "RIP2"

const frameOverhead = 12 // magic + length + crc

// unwrapFrame validates the outer frame and returns the decompressed
// payload. The second return value reports whether the payload was
// snappy-compressed; callers that fail to parse an apparently
// uncompressed payload should classify the failure as a compression
// problem, since well-formed frames carry compressed payloads.
func unwrapFrame(pkt []byte) (payload []byte, compressed bool, err error) {
	if len(pkt) < frameOverhead {
		return nil, false, malformedf("packet too short: %d bytes", len(pkt))
	}
	if pkt[0] != frameMagic[0] || pkt[1] != frameMagic[1] || pkt[2] != frameMagic[2] || pkt[3] != frameMagic[3] {
		return nil, false, malformedf("bad magic 0x%02x%02x%02x%02x", pkt[0], pkt[1], pkt[2], pkt[3])
	}
	length := binary.BigEndian.Uint32(pkt[4:8])
	if int(length) != len(pkt) {
		return nil, false, malformedf("length field %d does not match packet size %d", length, len(pkt))
	}
	body := pkt[:len(pkt)-4]
	want := binary.BigEndian.Uint32(pkt[len(pkt)-4:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, false, malformedf("crc mismatch: got 0x%08x want 0x%08x", got, want)
	}

	raw := pkt[8 : len(pkt)-4]
	decoded, derr := snappy.Decode(nil, raw)
	if derr != nil {
		// Not valid snappy; pass the payload through uncompressed.
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, false, nil
	}
	return decoded, true, nil
}

// WrapFrame builds a RIP2 frame around payload, optionally compressing it.
// Used by the replay tooling and tests; the live decoder only unwraps.
func WrapFrame(payload []byte, compress bool) []byte {
	body := payload
	if compress {
		body = snappy.Encode(nil, payload)
	}
	total := len(body) + frameOverhead
	out := make([]byte, 0, total)
	out = append(out, frameMagic[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(total))
	out = append(out, body...)
	crc := crc32.ChecksumIEEE(out)
	out = binary.BigEndian.AppendUint32(out, crc)
	return out
}
