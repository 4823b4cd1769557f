// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config reads the daemon configuration file.
//
// The file is YAML. Load decodes it over the defaults, Normalize fills in
// anything left empty, and Validate checks the result. Command line flags
// are applied by the caller between Normalize and Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/m110/pkg/link"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Queue    QueueConfig    `yaml:"queue"`
	Settings SettingsConfig `yaml:"settings"`

	// Label is a preset name ("40x30") or WxH in millimetres. Empty uses
	// the label size from the printer settings.
	Label    string `yaml:"label"`
	LogLevel string `yaml:"log_level"`
}

// ---- DEVICE ----

// DeviceConfig selects the printer connection. At most one of Port,
// RFCOMM and Capture may be set.
type DeviceConfig struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	RFCOMM  string `yaml:"rfcomm"`
	Channel int    `yaml:"channel"`
	Capture string `yaml:"capture"`

	WriteTimeoutMs int `yaml:"write_timeout_ms"`
	OpenTimeoutMs  int `yaml:"open_timeout_ms"`
}

// ---- QUEUE ----

type QueueConfig struct {
	Bound       int `yaml:"bound"`
	History     int `yaml:"history"`
	HeartbeatMs int `yaml:"heartbeat_ms"` // <0 disables
}

// ---- SETTINGS ----

type SettingsConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at path. An empty path returns an empty Config.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Decode(bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (d DeviceConfig) WriteTimeout() time.Duration {
	return time.Duration(d.WriteTimeoutMs) * time.Millisecond
}

func (d DeviceConfig) OpenTimeout() time.Duration {
	return time.Duration(d.OpenTimeoutMs) * time.Millisecond
}

// Opener builds the link.Opener for the configured device.
func (d DeviceConfig) Opener() (link.Opener, error) {
	switch {
	case d.Capture != "":
		return link.FileOpener{Path: d.Capture}, nil
	case d.RFCOMM != "":
		return link.RFCOMMOpener{
			Address:      d.RFCOMM,
			Channel:      uint8(d.Channel),
			WriteTimeout: d.WriteTimeout(),
		}, nil
	case d.Port != "":
		return link.SerialOpener{Path: d.Port, BaudRate: d.Baud}, nil
	}
	return nil, errors.New("no printer device configured (use --port, --rfcomm or --capture)")
}

// Heartbeat returns the idle probe interval; negative disables it.
func (q QueueConfig) Heartbeat() time.Duration {
	return time.Duration(q.HeartbeatMs) * time.Millisecond
}
