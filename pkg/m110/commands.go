// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package m110

import (
	"errors"
	"fmt"
)

// Op identifies a printer control command.
type Op uint8

const (
	OpInit Op = iota
	OpLeftAlign
	OpDensity
	OpSpeed
	OpMediaLabelGaps
	OpFeed
	OpResetHorizontalPosition
)

var opNames = map[Op]string{
	OpInit:                    "INIT",
	OpLeftAlign:               "LEFT_ALIGN",
	OpDensity:                 "DENSITY",
	OpSpeed:                   "SPEED",
	OpMediaLabelGaps:          "MEDIA_LABEL_GAPS",
	OpFeed:                    "FEED",
	OpResetHorizontalPosition: "RESET_HORIZONTAL_POSITION",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(o))
}

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArgument       = errors.New("command argument out of range")
	ErrRowsOutOfRange = errors.New("raster row count out of range")
)

// Command is a control command with its single-byte argument, if any.
type Command struct {
	Op  Op
	Arg uint8
}

func (c Command) String() string {
	switch c.Op {
	case OpDensity, OpSpeed, OpFeed:
		return fmt.Sprintf("%s(%d)", c.Op, c.Arg)
	}
	return c.Op.String()
}

// Init creates an ESC @ command (1B 40).
// Resets the printer's command state. Also used as the heartbeat probe.
func Init() Command { return Command{Op: OpInit} }

// LeftAlign creates an ESC a 0 command (1B 61 00).
func LeftAlign() Command { return Command{Op: OpLeftAlign} }

// Density creates an ESC N 04 d command (1B 4E 04 d).
// Valid range 0..15; higher values burn darker.
func Density(d uint8) Command { return Command{Op: OpDensity, Arg: d} }

// Speed creates an ESC N 0D s command (1B 4E 0D s).
// Valid range 0..13; lower values print slower.
func Speed(s uint8) Command { return Command{Op: OpSpeed, Arg: s} }

// MediaLabelGaps creates a US 11 0A command (1F 11 0A).
// Selects gap-separated label stock.
func MediaLabelGaps() Command { return Command{Op: OpMediaLabelGaps} }

// Feed creates an ESC d n command (1B 64 n) that feeds n lines.
func Feed(n uint8) Command { return Command{Op: OpFeed, Arg: n} }

// ResetHorizontalPosition creates ESC d 0 (1B 64 00).
// A zero-line feed that returns the print position to the left margin.
func ResetHorizontalPosition() Command { return Command{Op: OpResetHorizontalPosition} }

// Encode returns the wire bytes for c.
func Encode(c Command) ([]byte, error) {
	switch c.Op {
	case OpInit:
		return []byte{ESC, '@'}, nil
	case OpLeftAlign:
		return []byte{ESC, 'a', 0x00}, nil
	case OpDensity:
		if c.Arg > MaxDensity {
			return nil, fmt.Errorf("%w: density %d (max %d)", ErrArgument, c.Arg, MaxDensity)
		}
		return []byte{ESC, 'N', escNDensity, c.Arg}, nil
	case OpSpeed:
		if c.Arg > MaxSpeed {
			return nil, fmt.Errorf("%w: speed %d (max %d)", ErrArgument, c.Arg, MaxSpeed)
		}
		return []byte{ESC, 'N', escNSpeed, c.Arg}, nil
	case OpMediaLabelGaps:
		return []byte{US, 0x11, 0x0A}, nil
	case OpFeed:
		return []byte{ESC, 'd', c.Arg}, nil
	case OpResetHorizontalPosition:
		return []byte{ESC, 'd', 0x00}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, c.Op)
}

// MustEncode is like Encode but panics on error.
// Use for commands built from constants.
func MustEncode(c Command) []byte {
	b, err := Encode(c)
	if err != nil {
		panic(fmt.Sprintf("m110: %v", err))
	}
	return b
}

// EncodeRasterHeader builds a GS v 0 header: 1D 76 30 00 xL xH yL yH.
// Width is in bytes per row; both dimensions are little-endian 16-bit.
func EncodeRasterHeader(byteWidth, rows int) ([]byte, error) {
	if byteWidth <= 0 || byteWidth > MaxRasterByteWidth {
		return nil, fmt.Errorf("%w: raster width %d bytes", ErrInvalidDim, byteWidth)
	}
	if rows < 0 || rows > MaxRasterRows {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrRowsOutOfRange, rows, MaxRasterRows)
	}
	return []byte{
		GS, 'v', '0', 0x00,
		byte(byteWidth), byte(byteWidth >> 8),
		byte(rows), byte(rows >> 8),
	}, nil
}
