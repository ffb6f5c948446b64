// Package cbf writes single-image CBF (crystallographic binary file)
// containers. It covers the subset of the imgCIF contract the archiver
// needs: data blocks, categories, columns, text values, and a byte-offset
// encoded integer array emitted as a base64 MIME binary section.
package cbf

import (
	"crypto/md5"
	"encoding/base64"

	"github.com/jfolker/bigpicture/internal/domain"
)

// Compression selects the binary-section encoding scheme.
type Compression int

const (
	// ByteOffset is the delta encoding used by miniCBF pixel arrays.
	ByteOffset Compression = iota
)

// WriteFlags control the on-disk shape of the binary sections.
type WriteFlags uint

const (
	// MsgDigest emits a Content-MD5 header over the encoded binary data.
	MsgDigest WriteFlags = 1 << iota
	// MIMEHeaders wraps binary sections in MIME boundary markers.
	MIMEHeaders
	// Pad4K pads each binary section with zero bytes to a 4 KiB boundary.
	Pad4K
)

// Encoding selects the byte-level transfer encoding of binary sections.
type Encoding int

const (
	// Base64 transfer encoding, 76-column lines.
	Base64 Encoding = iota
)

type binarySection struct {
	id        int
	data      []byte // byte-offset encoded
	elemSize  int
	signed    bool
	nelem     int
	byteOrder string
	dimFast   int
	dimMid    int
	dimSlow   int
}

type column struct {
	name   string
	text   string
	binary *binarySection
}

type category struct {
	name    string
	columns []*column
}

type dataBlock struct {
	name       string
	categories []*category
}

// Handle accumulates one container in memory. The call order mirrors the
// imgCIF API: NewDataBlock, NewCategory, NewColumn, then SetValue or
// SetIntegerArray against the current column.
type Handle struct {
	blocks []*dataBlock
	block  *dataBlock
	cat    *category
	col    *column
}

// NewHandle returns an empty container.
func NewHandle() *Handle {
	return &Handle{}
}

// NewDataBlock appends a data block and makes it current.
func (h *Handle) NewDataBlock(name string) {
	b := &dataBlock{name: name}
	h.blocks = append(h.blocks, b)
	h.block = b
	h.cat = nil
	h.col = nil
}

// NewCategory makes the named category of the current block current,
// creating it if it does not exist yet.
func (h *Handle) NewCategory(name string) error {
	if h.block == nil {
		return domain.Encodef("cbf: no current data block")
	}
	for _, c := range h.block.categories {
		if c.name == name {
			h.cat = c
			h.col = nil
			return nil
		}
	}
	c := &category{name: name}
	h.block.categories = append(h.block.categories, c)
	h.cat = c
	h.col = nil
	return nil
}

// NewColumn appends a column to the current category and makes it current.
func (h *Handle) NewColumn(name string) error {
	if h.cat == nil {
		return domain.Encodef("cbf: no current category")
	}
	c := &column{name: name}
	h.cat.columns = append(h.cat.columns, c)
	h.col = c
	return nil
}

// SetValue sets the text value of the current column.
func (h *Handle) SetValue(value string) error {
	if h.col == nil {
		return domain.Encodef("cbf: no current column")
	}
	h.col.text = value
	return nil
}

// SetIntegerArray encodes data (nelem little-endian elements of elemSize
// bytes) under the given compression and attaches it to the current column.
// Dimensions are fastest-first; dimSlow of 0 marks a 2D array.
func (h *Handle) SetIntegerArray(comp Compression, binaryID int, data []byte, elemSize int, signed bool,
	nelem int, byteOrder string, dimFast, dimMid, dimSlow int) error {
	if h.col == nil {
		return domain.Encodef("cbf: no current column")
	}
	if comp != ByteOffset {
		return domain.Encodef("cbf: compression %d unsupported", comp)
	}
	if len(data) != nelem*elemSize {
		return domain.Encodef("cbf: array is %d bytes, expected %d elements of %d bytes", len(data), nelem, elemSize)
	}
	enc, err := byteOffsetEncode(data, elemSize, signed)
	if err != nil {
		return err
	}
	h.col.binary = &binarySection{
		id:        binaryID,
		data:      enc,
		elemSize:  elemSize,
		signed:    signed,
		nelem:     nelem,
		byteOrder: byteOrder,
		dimFast:   dimFast,
		dimMid:    dimMid,
		dimSlow:   dimSlow,
	}
	return nil
}

// Reset discards all accumulated content.
func (h *Handle) Reset() {
	h.blocks = nil
	h.block = nil
	h.cat = nil
	h.col = nil
}

func contentMD5(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
