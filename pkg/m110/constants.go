// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package m110 implements the wire format of the Phomemo M110 family of
// thermal label printers.
//
// The package is pure: it converts label dimensions to dot geometry, packs
// 1-bit bitmaps into the printer's line format and encodes the ESC/POS-like
// command set, including the GS v 0 raster header. It performs no I/O.
package m110

// Printhead geometry
const (
	DPI            = 203
	PrintheadDots  = 384
	PrintheadBytes = PrintheadDots / 8
	mmPerInch      = 25.4
)

// Raster header limits (16-bit little-endian fields)
const (
	MaxRasterRows      = 0xFFFF
	MaxRasterByteWidth = 0xFFFF
)

// Control bytes
const (
	ESC = 0x1B
	GS  = 0x1D
	US  = 0x1F
)

// Parameter ranges
const (
	MaxDensity = 15
	MaxSpeed   = 13
	MaxFeed    = 0xFF
)

// Sub-function selectors for ESC N
const (
	escNDensity = 0x04
	escNSpeed   = 0x0D
)

// RasterHeaderSize is the length of the GS v 0 header.
const RasterHeaderSize = 8
