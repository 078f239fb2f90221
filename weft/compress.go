package weft

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/snappy"
)

// Compressor is the pluggable bytes-to-bytes transform behind !!snappy
// payloads. The codec treats it as opaque.
type Compressor interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// SnappyCompressor implements Compressor with snappy block encoding.
type SnappyCompressor struct{}

var _ Compressor = SnappyCompressor{}

func (SnappyCompressor) Compress(p []byte) ([]byte, error) {
	return snappy.Encode(nil, p), nil
}

func (SnappyCompressor) Decompress(p []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, p)
	if err != nil {
		return nil, errors.Wrap(err, "weft: snappy decompress")
	}
	return out, nil
}

// NopCompressor passes bytes through unchanged.
type NopCompressor struct{}

var _ Compressor = NopCompressor{}

func (NopCompressor) Compress(p []byte) ([]byte, error) { return p, nil }
func (NopCompressor) Decompress(p []byte) ([]byte, error) { return p, nil }
