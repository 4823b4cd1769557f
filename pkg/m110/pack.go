// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package m110

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow is returned when an X offset would push dots past the right edge.
	ErrOverflow = errors.New("raster overflow")
	// ErrInvalidSource is returned for a source whose length and shape disagree.
	ErrInvalidSource = errors.New("invalid source bitmap")
)

// PackOptions positions a bitmap on the printed line.
type PackOptions struct {
	XOffsetBits int // zero dots prepended to every row
	YOffsetRows int // >0 prepends blank rows, <0 drops rows from the top
	ByteWidth   int // output row width, PrintheadBytes when zero
}

// Pack converts src into a Raster of opts.ByteWidth bytes per row.
// Rows narrower than the line are padded on the right with zero bits.
func Pack(src *Bitmap, opts PackOptions) (*Raster, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	bw := opts.ByteWidth
	if bw == 0 {
		bw = PrintheadBytes
	}
	if bw < 0 || bw > MaxRasterByteWidth {
		return nil, fmt.Errorf("%w: line width %d bytes", ErrInvalidDim, bw)
	}
	if opts.XOffsetBits < 0 {
		return nil, fmt.Errorf("%w: negative x offset %d", ErrInvalidSource, opts.XOffsetBits)
	}
	if src.Width+opts.XOffsetBits > bw*8 {
		return nil, fmt.Errorf("%w: %d dots at x offset %d exceed %d-dot line",
			ErrOverflow, src.Width, opts.XOffsetBits, bw*8)
	}

	lead, skip := 0, 0
	if opts.YOffsetRows > 0 {
		lead = opts.YOffsetRows
	} else {
		skip = -opts.YOffsetRows
	}
	if skip >= src.Height {
		return nil, fmt.Errorf("%w: y offset %d removes all %d rows", ErrInvalidSource, opts.YOffsetRows, src.Height)
	}

	rows := lead + src.Height - skip
	if rows > MaxRasterRows*maxSegments {
		return nil, fmt.Errorf("%w: %d rows", ErrInvalidSource, rows)
	}

	out := make([]byte, bw*rows)
	stride := src.Stride()
	for y := skip; y < src.Height; y++ {
		dst := out[(lead+y-skip)*bw : (lead+y-skip+1)*bw]
		shiftRow(dst, src.Data[y*stride:(y+1)*stride], src.Width, opts.XOffsetBits)
	}

	return &Raster{ByteWidth: bw, Rows: rows, Data: out}, nil
}

// maxSegments bounds a single raster to a sane number of framed segments.
const maxSegments = 64

// shiftRow ORs row (width dots, MSB-first) into dst starting at dot offset.
// Padding bits past width are masked off. dst must be zeroed.
func shiftRow(dst, row []byte, width, offset int) {
	shift := uint(offset % 8)
	base := offset / 8
	last := len(row) - 1
	for i, b := range row {
		if i == last && width%8 != 0 {
			b &= 0xFF << (8 - uint(width%8))
		}
		if b == 0 {
			continue
		}
		dst[base+i] |= b >> shift
		if shift > 0 && base+i+1 < len(dst) {
			dst[base+i+1] |= b << (8 - shift)
		}
	}
}
