package dectris

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/jfolker/bigpicture/internal/domain"
)

// MaskElement constrains the element types carried by calibration masks:
// float32 for the flatfield and countrate table, uint32 for the pixel mask.
type MaskElement interface {
	~uint32 | ~float32
}

// Mask is a 2D calibration array announced by a JSON shape header and
// populated by the raw blob that follows it.
type Mask[T MaskElement] struct {
	Width    int64
	Height   int64
	Elements []T
}

// Alloc sizes the mask for a w by h detector, discarding prior contents.
func (m *Mask[T]) Alloc(w, h int64) {
	m.Width = w
	m.Height = h
	m.Elements = make([]T, w*h)
}

// Reset returns the mask to its unpopulated state.
func (m *Mask[T]) Reset() {
	m.Width = 0
	m.Height = 0
	m.Elements = nil
}

// ElementSize returns the width of one element in bytes.
func (m *Mask[T]) ElementSize() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// NBytes returns the expected blob length in bytes.
func (m *Mask[T]) NBytes() int {
	return int(m.Width) * int(m.Height) * m.ElementSize()
}

// Fill copies a little-endian raw blob into the mask. The blob length must
// equal width*height*element_size; a mismatch is fatal for the series.
func (m *Mask[T]) Fill(name string, blob []byte) error {
	if len(blob) != m.NBytes() {
		return domain.Protocolf("expected %s size (bytes): %d actual: %d", name, m.NBytes(), len(blob))
	}
	for i := range m.Elements {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		m.Elements[i] = fromBits[T](bits)
	}
	return nil
}

func fromBits[T MaskElement](bits uint32) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return T(math.Float32frombits(bits))
	default:
		return T(bits)
	}
}
