package kdbx

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// defaultMaxDecompressedSize is the default ceiling on the decompressed
// payload (256MB). It stops a small gzip stream from expanding to consume
// all available memory.
const defaultMaxDecompressedSize = 256 * 1024 * 1024

// decompress inflates the payload according to the header compression
// flags. Any codec failure is reported as ErrDecompression.
func decompress(data []byte, flags uint32, limit int64) ([]byte, error) {
	switch flags {
	case compressionNone:
		return data, nil
	case compressionGzip:
		return gunzip(data, limit)
	}
	return nil, NewInvalidCompressionSuite(flags)
}

func gunzip(data []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ErrDecompression
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, ErrDecompression
	}
	if int64(len(out)) > limit {
		return nil, ErrDecompression
	}
	return out, nil
}
