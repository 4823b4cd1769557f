// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"net"
	"time"
)

// DefaultRFCOMMChannel is the serial port profile channel used by M110 printers.
const DefaultRFCOMMChannel = 1

// RFCOMMOpener connects a raw Bluetooth RFCOMM socket. The printer must
// already be paired. Only supported on Linux.
type RFCOMMOpener struct {
	Address      string
	Channel      uint8
	WriteTimeout time.Duration
}

func (r RFCOMMOpener) String() string {
	return fmt.Sprintf("rfcomm://%s/%d", r.Address, r.channel())
}

func (r RFCOMMOpener) channel() uint8 {
	if r.Channel == 0 {
		return DefaultRFCOMMChannel
	}
	return r.Channel
}

// bdaddr converts a MAC string to the little-endian order the kernel expects.
func bdaddr(mac string) ([6]byte, error) {
	var addr [6]byte
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return addr, fmt.Errorf("invalid MAC address %s: %v", mac, err)
	}
	if len(hw) != 6 {
		return addr, fmt.Errorf("MAC address must be 6 bytes, got %d", len(hw))
	}
	for i := 0; i < 6; i++ {
		addr[i] = hw[5-i]
	}
	return addr, nil
}
