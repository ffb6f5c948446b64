package codec

import (
	"github.com/jfolker/bigpicture/internal/domain"
)

// Buffer is an owning byte region sized to the decoded payload it holds.
// One Buffer is reused for every frame in a series; it is resized once per
// series to bit_depth/8 * x_pixels * y_pixels.
type Buffer struct {
	data []byte
}

// NewBuffer returns a Buffer of n bytes. Contents are indeterminate.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// Bytes exposes the underlying region. After a successful Decode the first
// Size() bytes hold the decompressed payload.
func (b *Buffer) Bytes() []byte { return b.data }

// Size returns the buffer length in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Resize sets the buffer length to n bytes. Resizing to the current length
// is a no-op, resizing to 0 releases the storage, and any other length
// allocates a fresh region with indeterminate contents.
func (b *Buffer) Resize(n int) {
	switch {
	case n == len(b.data):
	case n == 0:
		b.data = nil
	default:
		b.data = make([]byte, n)
	}
}

// Decode decompresses src into the buffer. The buffer must already be sized
// to the exact decoded length; the codecs verify their byte counts against
// it and report a DecodeError on any disagreement.
func (b *Buffer) Decode(c Compressor, src []byte, elemSize int) error {
	switch c {
	case BSLZ4:
		n, err := BSLZ4Decode(src, b.data, elemSize)
		if err != nil {
			return err
		}
		if n != len(src) {
			return domain.Decodef("bslz4: processed %d of %d compressed bytes", n, len(src))
		}
		return nil
	case LZ4:
		return LZ4Decode(src, b.data)
	case None:
		if len(src) != len(b.data) {
			return domain.Decodef("raw payload is %d bytes, expected %d", len(src), len(b.data))
		}
		copy(b.data, src)
		return nil
	}
	return domain.Decodef("codec %s unsupported", c)
}

// Encode compresses src into the buffer, growing it to the codec's upper
// bound first if needed, and returns the compressed byte count.
func (b *Buffer) Encode(c Compressor, src []byte, elemSize int) (int, error) {
	switch c {
	case BSLZ4:
		bound := BSLZ4EncodeBound(len(src), elemSize)
		if bound == 0 {
			return 0, domain.Encodef("bslz4: input length %d is not a multiple of element size %d", len(src), elemSize)
		}
		if len(b.data) < bound {
			b.Resize(bound)
		}
		return BSLZ4Encode(src, b.data, elemSize)
	case LZ4:
		bound := LZ4EncodeBound(len(src))
		if bound == 0 {
			return 0, domain.Encodef("lz4: compress bound rejected %d input bytes", len(src))
		}
		if len(b.data) < bound {
			b.Resize(bound)
		}
		return LZ4Encode(src, b.data)
	case None:
		if len(b.data) < len(src) {
			b.Resize(len(src))
		}
		copy(b.data, src)
		return len(src), nil
	}
	return 0, domain.Encodef("codec %s unsupported", c)
}
