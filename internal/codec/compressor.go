// Package codec implements the pixel-payload compression schemes spoken by
// the Dectris stream interface: passthrough, LZ4 block compression, and
// bitshuffle+LZ4 ("bslz4").
package codec

import (
	"github.com/jfolker/bigpicture/internal/domain"
)

// Compressor identifies the compression scheme of an image payload. The
// zero value is None.
type Compressor int

const (
	// Unknown is the value of a Compressor that has not been populated.
	Unknown Compressor = iota - 1
	// None passes payloads through uncompressed.
	None
	// LZ4 is plain LZ4 block compression, byte oriented.
	LZ4
	// BSLZ4 is bitshuffle followed by blocked LZ4. Element size matters:
	// bits are transposed across equal-width elements before compression.
	BSLZ4
)

var compressorNames = map[Compressor]string{
	Unknown: "unknown",
	None:    "none",
	LZ4:     "lz4",
	BSLZ4:   "bslz4",
}

func (c Compressor) String() string {
	if s, ok := compressorNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseCompressor maps a canonical name ("none", "lz4", "bslz4") to its
// Compressor. Unrecognized names are a ConfigError.
func ParseCompressor(name string) (Compressor, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "bslz4":
		return BSLZ4, nil
	}
	return Unknown, domain.Configf("compression=%q, supported values are \"none\", \"lz4\", and \"bslz4\"", name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Compressor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compressor) UnmarshalText(text []byte) error {
	v, err := ParseCompressor(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
