// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"github.com/Thermoquad/m110/pkg/link"
	"github.com/Thermoquad/m110/pkg/printer"
	"github.com/Thermoquad/m110/pkg/settings"
)

// Normalize fills empty fields with their defaults. Explicit values,
// including invalid ones, are left for Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	d := &cfg.Device
	if d.Baud == 0 {
		d.Baud = link.DefaultBaudRate
	}
	if d.Channel == 0 {
		d.Channel = link.DefaultRFCOMMChannel
	}
	if d.WriteTimeoutMs == 0 {
		d.WriteTimeoutMs = int(link.DefaultWriteTimeout.Milliseconds())
	}
	if d.OpenTimeoutMs == 0 {
		d.OpenTimeoutMs = int(link.DefaultOpenTimeout.Milliseconds())
	}

	q := &cfg.Queue
	if q.Bound == 0 {
		q.Bound = printer.DefaultQueueBound
	}
	if q.History == 0 {
		q.History = printer.DefaultHistorySize
	}
	if q.HeartbeatMs == 0 {
		q.HeartbeatMs = int(printer.DefaultHeartbeatInterval.Milliseconds())
	}

	if cfg.Settings.Path == "" {
		cfg.Settings.Path = settings.DefaultPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
