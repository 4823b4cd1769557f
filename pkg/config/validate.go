// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/rs/zerolog"
)

// Validate checks a normalized configuration. It does not mutate cfg.
func Validate(cfg *Config) error {
	d := cfg.Device

	set := 0
	for _, v := range []string{d.Port, d.RFCOMM, d.Capture} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("device: only one of port, rfcomm and capture may be set")
	}

	if d.Baud <= 0 {
		return fmt.Errorf("device: baud must be positive, got %d", d.Baud)
	}
	if d.RFCOMM != "" {
		hw, err := net.ParseMAC(d.RFCOMM)
		if err != nil || len(hw) != 6 {
			return fmt.Errorf("device: rfcomm %q is not a Bluetooth address", d.RFCOMM)
		}
	}
	// RFCOMM channels are 1..30.
	if d.Channel < 1 || d.Channel > 30 {
		return fmt.Errorf("device: channel must be 1..30, got %d", d.Channel)
	}
	if d.WriteTimeoutMs < 0 || d.OpenTimeoutMs < 0 {
		return fmt.Errorf("device: timeouts must not be negative")
	}

	if cfg.Queue.Bound < 1 {
		return fmt.Errorf("queue: bound must be at least 1, got %d", cfg.Queue.Bound)
	}
	if cfg.Queue.History < 1 {
		return fmt.Errorf("queue: history must be at least 1, got %d", cfg.Queue.History)
	}

	if cfg.Label != "" {
		if _, err := m110.ParseLabel(cfg.Label, m110.DPI); err != nil {
			return fmt.Errorf("label: %w", err)
		}
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
