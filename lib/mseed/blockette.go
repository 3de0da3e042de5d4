// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mseed

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Blockette types the header parser extracts values from.
const (
	BlocketteSampleRate = 100
	BlocketteDataOnly   = 1000
	BlocketteDataExt    = 1001
)

// maxBlockettes bounds the chain walk. Records of 512 bytes cannot
// hold more than this many 4-byte blockette headers after the fixed
// section.
const maxBlockettes = 128

// readBlockettes walks the chain starting at the first-blockette
// offset. It returns the blockette 1001 microsecond offset.
func (h *Header) readBlockettes(record []byte, order binary.ByteOrder) (int, error) {
	microseconds := 0
	offset := int(order.Uint16(record[offsetFirstBlockette:]))
	if offset == 0 {
		return 0, nil
	}
	if offset < FixedHeaderSize {
		return 0, fmt.Errorf("%w: first blockette at offset %d inside fixed header", ErrBlockette, offset)
	}

	for offset != 0 {
		if len(h.Blockettes) >= maxBlockettes {
			return 0, fmt.Errorf("%w: more than %d blockettes", ErrBlockette, maxBlockettes)
		}
		if offset+4 > len(record) {
			return 0, fmt.Errorf("%w: blockette at offset %d beyond record end", ErrBlockette, offset)
		}
		kind := order.Uint16(record[offset:])
		next := int(order.Uint16(record[offset+2:]))
		if next != 0 && next <= offset+3 {
			return 0, fmt.Errorf("%w: blockette %d at offset %d points back to %d",
				ErrBlockette, kind, offset, next)
		}
		h.Blockettes = append(h.Blockettes, kind)

		body := record[offset:]
		switch kind {
		case BlocketteSampleRate:
			if len(body) < 12 {
				return 0, fmt.Errorf("%w: truncated blockette 100", ErrBlockette)
			}
			rate := math.Float32frombits(order.Uint32(body[4:]))
			if rate > 0 {
				h.SampleRate = float64(rate)
			}
		case BlocketteDataOnly:
			if len(body) < 8 {
				return 0, fmt.Errorf("%w: truncated blockette 1000", ErrBlockette)
			}
			h.Encoding = body[4]
			exponent := body[6]
			if exponent < 7 || exponent > 20 {
				return 0, fmt.Errorf("%w: record length exponent %d", ErrBlockette, exponent)
			}
			h.RecordLength = 1 << exponent
		case BlocketteDataExt:
			if len(body) < 8 {
				return 0, fmt.Errorf("%w: truncated blockette 1001", ErrBlockette)
			}
			h.TimingQuality = int(body[4])
			microseconds = int(int8(body[5]))
		}
		offset = next
	}
	return microseconds, nil
}

// NominalRate converts the fixed header sample rate factor and
// multiplier into samples per second. Zero in either yields zero.
func NominalRate(factor, multiplier int16) float64 {
	f, m := float64(factor), float64(multiplier)
	switch {
	case factor > 0 && multiplier > 0:
		return f * m
	case factor > 0 && multiplier < 0:
		return -f / m
	case factor < 0 && multiplier > 0:
		return -m / f
	case factor < 0 && multiplier < 0:
		return 1 / (f * m)
	default:
		return 0
	}
}
