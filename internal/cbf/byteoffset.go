package cbf

import (
	"encoding/binary"

	"github.com/jfolker/bigpicture/internal/domain"
)

// Byte-offset encoding stores each pixel as a delta from its predecessor.
// Deltas within [-127,127] take one byte; the escape values 0x80, 0x8000
// and 0x80000000 widen the next delta to 16, 32 and 64 bits.

// byteOffsetEncode encodes little-endian signed 32-bit elements.
func byteOffsetEncode(data []byte, elemSize int, signed bool) ([]byte, error) {
	if elemSize != 4 || !signed {
		return nil, domain.Encodef("byte-offset: only signed 32-bit elements are supported, got elemSize=%d signed=%t", elemSize, signed)
	}
	if len(data)%4 != 0 {
		return nil, domain.Encodef("byte-offset: data length %d is not a multiple of 4", len(data))
	}

	out := make([]byte, 0, len(data)/2)
	var prev int64
	for off := 0; off < len(data); off += 4 {
		cur := int64(int32(binary.LittleEndian.Uint32(data[off:])))
		delta := cur - prev
		prev = cur
		switch {
		case delta >= -127 && delta <= 127:
			out = append(out, byte(int8(delta)))
		case delta >= -32767 && delta <= 32767:
			out = append(out, 0x80)
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(delta)))
		case delta >= -2147483647 && delta <= 2147483647:
			out = append(out, 0x80, 0x00, 0x80)
			out = binary.LittleEndian.AppendUint32(out, uint32(int32(delta)))
		default:
			out = append(out, 0x80, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80)
			out = binary.LittleEndian.AppendUint64(out, uint64(delta))
		}
	}
	return out, nil
}

// byteOffsetDecode reverses byteOffsetEncode into nelem little-endian
// signed 32-bit elements.
func byteOffsetDecode(enc []byte, nelem int) ([]byte, error) {
	out := make([]byte, 0, nelem*4)
	var prev int64
	pos := 0
	for i := 0; i < nelem; i++ {
		if pos >= len(enc) {
			return nil, domain.Decodef("byte-offset: truncated stream at element %d", i)
		}
		var delta int64
		switch {
		case enc[pos] != 0x80:
			delta = int64(int8(enc[pos]))
			pos++
		case pos+3 <= len(enc) && binary.LittleEndian.Uint16(enc[pos+1:]) != 0x8000:
			delta = int64(int16(binary.LittleEndian.Uint16(enc[pos+1:])))
			pos += 3
		case pos+7 <= len(enc) && binary.LittleEndian.Uint32(enc[pos+3:]) != 0x80000000:
			delta = int64(int32(binary.LittleEndian.Uint32(enc[pos+3:])))
			pos += 7
		case pos+15 <= len(enc):
			delta = int64(binary.LittleEndian.Uint64(enc[pos+7:]))
			pos += 15
		default:
			return nil, domain.Decodef("byte-offset: truncated escape sequence at element %d", i)
		}
		prev += delta
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(prev)))
	}
	return out, nil
}
