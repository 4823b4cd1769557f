// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"go.bug.st/serial"
)

// classifyOpen maps an opener error onto ErrUnavailable or ErrTimeout.
func classifyOpen(err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return fmt.Errorf("%w: %s", ErrUnavailable, portErrorReason(portErr))
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func portErrorReason(e *serial.PortError) string {
	switch e.Code() {
	case serial.PortNotFound:
		return "port not found"
	case serial.PortBusy:
		return "port busy"
	case serial.PermissionDenied:
		return "permission denied"
	case serial.InvalidSerialPort:
		return "not a serial port"
	case serial.PortClosed:
		return "port closed"
	}
	return e.Error()
}

// classifyWrite maps a write error onto ErrUnavailable, ErrTimeout or ErrIO.
func classifyWrite(err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrIO) {
		return err
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ETIMEDOUT) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %s", ErrUnavailable, portErrorReason(portErr))
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENOTCONN) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// IsTransient reports whether err is a link error worth retrying after a reconnect.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrIO)
}
