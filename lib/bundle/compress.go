// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a
// stored blob. Tags are recorded in the bundle index — changing the
// values breaks store compatibility.
type CompressionTag uint8

const (
	// CompressionNone stores the blob uncompressed. Used when
	// compression does not pay for itself (tiny or already-dense
	// content).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is the fast path for blobs of unknown shape
	// (~1.5-2x ratio, very cheap decode).
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd (level 3) is the default for lockfiles. They
	// are highly repetitive text (pinned package lists), where zstd
	// reaches 3-5x.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// zstd encoder/decoder are stateless for our use and safe for
// concurrent EncodeAll/DecodeAll calls, so package-level instances
// are shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bundle: zstd encoder init: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("bundle: zstd decoder init: " + err.Error())
	}
}

// compress encodes data with the given algorithm.
func compress(tag CompressionTag, data []byte) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		buffer := make([]byte, lz4.CompressBlockBound(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, buffer)
		if err != nil {
			return nil, fmt.Errorf("bundle: lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible; lz4 signals this with a zero length.
			return nil, fmt.Errorf("bundle: lz4 compress: incompressible input")
		}
		return buffer[:n], nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("bundle: unknown compression tag %d", tag)
	}
}

// decompress decodes data with the given algorithm. originalSize is
// required for LZ4 block decoding (the block format does not carry
// the decompressed length).
func decompress(tag CompressionTag, data []byte, originalSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		buffer := make([]byte, originalSize)
		n, err := lz4.UncompressBlock(data, buffer)
		if err != nil {
			return nil, fmt.Errorf("bundle: lz4 decompress: %w", err)
		}
		return buffer[:n], nil
	case CompressionZstd:
		decoded, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("bundle: zstd decompress: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("bundle: unknown compression tag %d", tag)
	}
}
