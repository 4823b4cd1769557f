// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package m110

import (
	"fmt"
	"math/bits"
)

// Bitmap is a 1-bit image, rows packed MSB-first and padded to whole bytes.
// A set bit is a black dot.
type Bitmap struct {
	Width  int
	Height int
	Data   []byte
}

// NewBitmap allocates a blank bitmap.
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{
		Width:  width,
		Height: height,
		Data:   make([]byte, (width+7)/8*height),
	}
}

// Stride returns the number of bytes per row.
func (b *Bitmap) Stride() int {
	return (b.Width + 7) / 8
}

// Clone returns a copy that shares no memory with b.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{
		Width:  b.Width,
		Height: b.Height,
		Data:   append([]byte(nil), b.Data...),
	}
}

// Validate checks that the data length matches the dimensions.
func (b *Bitmap) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bitmap", ErrInvalidSource)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSource, b.Width, b.Height)
	}
	if want := b.Stride() * b.Height; len(b.Data) != want {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d", ErrInvalidSource, b.Width, b.Height, want, len(b.Data))
	}
	return nil
}

func (b *Bitmap) Bit(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Data[y*b.Stride()+x/8]&(0x80>>(x%8)) != 0
}

func (b *Bitmap) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	i := y*b.Stride() + x/8
	mask := byte(0x80 >> (x % 8))
	if on {
		b.Data[i] |= mask
	} else {
		b.Data[i] &^= mask
	}
}

// Raster is packed print data ready for framing. Every row is exactly
// ByteWidth bytes.
type Raster struct {
	ByteWidth int
	Rows      int
	Data      []byte
}

// NewRaster wraps data without copying.
func NewRaster(byteWidth, rows int, data []byte) (*Raster, error) {
	r := &Raster{ByteWidth: byteWidth, Rows: rows, Data: data}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks len(Data) == ByteWidth*Rows.
func (r *Raster) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil raster", ErrInvalidSource)
	}
	if r.ByteWidth <= 0 || r.ByteWidth > MaxRasterByteWidth || r.Rows <= 0 {
		return fmt.Errorf("%w: raster %d bytes x %d rows", ErrInvalidSource, r.ByteWidth, r.Rows)
	}
	if want := r.ByteWidth * r.Rows; len(r.Data) != want {
		return fmt.Errorf("%w: raster %d bytes x %d rows needs %d bytes, got %d",
			ErrInvalidSource, r.ByteWidth, r.Rows, want, len(r.Data))
	}
	return nil
}

// Row returns row y as a subslice.
func (r *Raster) Row(y int) []byte {
	return r.Data[y*r.ByteWidth : (y+1)*r.ByteWidth]
}

func (r *Raster) Bit(x, y int) bool {
	if x < 0 || y < 0 || x >= r.ByteWidth*8 || y >= r.Rows {
		return false
	}
	return r.Data[y*r.ByteWidth+x/8]&(0x80>>(x%8)) != 0
}

// Density returns the fraction of set bits.
func (r *Raster) Density() float64 {
	if len(r.Data) == 0 {
		return 0
	}
	on := 0
	for _, b := range r.Data {
		on += bits.OnesCount8(b)
	}
	return float64(on) / float64(len(r.Data)*8)
}
