// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package link

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open connects the socket and sets SO_SNDTIMEO from WriteTimeout.
// Cancelling ctx closes the socket, which aborts a pending connect.
func (r RFCOMMOpener) Open(ctx context.Context) (Port, error) {
	addr, err := bdaddr(r.Address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { unix.Shutdown(fd, unix.SHUT_RDWR) })
	defer stop()

	sa := &unix.SockaddrRFCOMM{Addr: addr, Channel: r.channel()}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to connect %s: %w", r, err)
	}

	if r.WriteTimeout > 0 {
		tv := unix.NsecToTimeval(r.WriteTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set send timeout: %w", err)
		}
	}

	return os.NewFile(uintptr(fd), r.String()), nil
}
