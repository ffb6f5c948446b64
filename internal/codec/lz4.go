package codec

import (
	"github.com/pierrec/lz4/v4"

	"github.com/jfolker/bigpicture/internal/domain"
)

// LZ4Decode decompresses src into dst. dst must be sized to the exact
// decompressed length; a shorter or longer result is a DecodeError.
func LZ4Decode(src, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return domain.Decodef("lz4: %v", err)
	}
	if n != len(dst) {
		return domain.Decodef("lz4: decompressed %d bytes, expected %d", n, len(dst))
	}
	return nil
}

// LZ4EncodeBound returns the worst-case compressed size of n input bytes.
func LZ4EncodeBound(n int) int {
	return lz4.CompressBlockBound(n)
}

// LZ4Encode compresses src into dst and returns the compressed byte count.
// dst must hold at least LZ4EncodeBound(len(src)) bytes.
func LZ4Encode(src, dst []byte) (int, error) {
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return 0, domain.Encodef("lz4: %v", err)
	}
	if n == 0 {
		return 0, domain.Encodef("lz4: input is incompressible")
	}
	return n, nil
}
