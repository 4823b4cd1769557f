// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is ignored by RFCOMM ttys but required by serial.Open.
const DefaultBaudRate = 115200

// SerialOpener opens a tty, typically a bound /dev/rfcommN node.
type SerialOpener struct {
	Path     string
	BaudRate int
}

func (s SerialOpener) String() string {
	return s.Path
}

// Open opens the port 8N1. The returned serial.Port supports Drain.
func (s SerialOpener) Open(ctx context.Context) (Port, error) {
	baud := s.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", s.Path, err)
	}
	if ctx.Err() != nil {
		port.Close()
		return nil, ctx.Err()
	}
	return port, nil
}
