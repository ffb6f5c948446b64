package codec

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// pixels returns n little-endian 32-bit elements with a repeating ramp,
// compressible but not degenerate.
func pixels(n int) []byte {
	out := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		out = binary.LittleEndian.AppendUint32(out, uint32(i%97))
	}
	return out
}

func TestShuffleBitsRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		elemSize int
	}{
		{"16 elements of 4", 16, 4},
		{"8 elements of 4", 8, 4},
		{"64 elements of 2", 64, 2},
		{"24 elements of 8", 24, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := pixels(tt.count * tt.elemSize / 4)
			src = src[:tt.count*tt.elemSize]
			shuf := make([]byte, len(src))
			back := make([]byte, len(src))
			shuffleBits(src, shuf, tt.count, tt.elemSize)
			unshuffleBits(shuf, back, tt.count, tt.elemSize)
			if !bytes.Equal(src, back) {
				t.Errorf("round trip mismatch for %d x %d", tt.count, tt.elemSize)
			}
		})
	}
}

func TestShuffleBitsPlanes(t *testing.T) {
	// Eight elements whose value is 1 puts a fully set byte in plane 0 and
	// nothing anywhere else.
	src := make([]byte, 32)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(src[i*4:], 1)
	}
	dst := make([]byte, 32)
	shuffleBits(src, dst, 8, 4)
	if dst[0] != 0xff {
		t.Errorf("plane 0 = %#x, want 0xff", dst[0])
	}
	for i, b := range dst[1:] {
		if b != 0 {
			t.Errorf("plane byte %d = %#x, want 0", i+1, b)
		}
	}
}

func TestBSLZ4RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		elems int
	}{
		{"single small block", 16},
		{"exactly one full block", 2048},
		{"full block plus remainder", 2048 + 40},
		{"remainder not multiple of 8", 2048 + 13},
		{"tail only", 5},
		{"multiple full blocks", 3 * 2048},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := pixels(tt.elems)
			dst := make([]byte, BSLZ4EncodeBound(len(src), 4))
			n, err := BSLZ4Encode(src, dst, 4)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			back := make([]byte, len(src))
			consumed, err := BSLZ4Decode(dst[:n], back, 4)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if consumed != n {
				t.Errorf("decode consumed %d of %d bytes", consumed, n)
			}
			if !bytes.Equal(src, back) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestBSLZ4EncodeBadLength(t *testing.T) {
	if _, err := BSLZ4Encode(make([]byte, 10), make([]byte, 64), 4); err == nil {
		t.Error("encode accepted length not a multiple of element size")
	}
	if bound := BSLZ4EncodeBound(10, 4); bound != 0 {
		t.Errorf("bound = %d for malformed input, want 0", bound)
	}
}

func TestBSLZ4DecodeTruncated(t *testing.T) {
	src := pixels(64)
	dst := make([]byte, BSLZ4EncodeBound(len(src), 4))
	n, err := BSLZ4Encode(src, dst, 4)
	if err != nil {
		t.Fatal(err)
	}
	back := make([]byte, len(src))
	if _, err := BSLZ4Decode(dst[:n-1], back, 4); err == nil {
		t.Error("decode accepted truncated stream")
	}
	if _, err := BSLZ4Decode(dst[:2], back, 4); err == nil {
		t.Error("decode accepted truncated block header")
	}
}
