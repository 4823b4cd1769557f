// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/m110/pkg/config"
	"github.com/Thermoquad/m110/pkg/link"
	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/printer"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// loadConfig reads --config and applies the flags given on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	config.Normalize(cfg)

	flags := cmd.Flags()
	// A device flag replaces the device from the file.
	if flags.Changed("port") || flags.Changed("rfcomm") || flags.Changed("capture") {
		cfg.Device.Port = portName
		cfg.Device.RFCOMM = rfcommAddr
		cfg.Device.Capture = capturePath
	}
	if flags.Changed("baud") {
		cfg.Device.Baud = baudRate
	}
	if flags.Changed("channel") {
		cfg.Device.Channel = rfcommChannel
	}
	if flags.Changed("settings") {
		cfg.Settings.Path = settingsPath
	}
	if flags.Changed("label") {
		cfg.Label = labelName
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes human-readable logs to w.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// loadSettings reads the settings file, warning about keys it does not know.
func loadSettings(store *settings.Store, log zerolog.Logger) (settings.Settings, error) {
	s, unknown, err := store.Load()
	for _, key := range unknown {
		log.Warn().Str("event", "settings_unknown_key").Str("key", key).Str("path", store.Path()).Msg("ignoring unknown setting")
	}
	return s, err
}

// session is one printer connection with its controller.
type session struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *settings.Store
	settings settings.Settings
	link     *link.Link
	ctrl     *printer.Controller
}

// openSession wires config, settings, link and controller. Nothing is
// opened until the first job runs. quiet sends logs to a discard writer,
// for use under the TUI.
func openSession(cmd *cobra.Command, quiet bool, onEvent func(printer.Event)) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	var logOut io.Writer = os.Stderr
	if quiet {
		logOut = io.Discard
	}
	log := newLogger(logOut, cfg.LogLevel)

	store := settings.NewStore(cfg.Settings.Path)
	s, err := loadSettings(store, log)
	if err != nil {
		return nil, err
	}

	opener, err := cfg.Device.Opener()
	if err != nil {
		return nil, err
	}
	l := link.New(opener, link.Options{
		WriteTimeout: cfg.Device.WriteTimeout(),
		OpenTimeout:  cfg.Device.OpenTimeout(),
	}, log)

	ctrl := printer.New(printer.Config{
		Link:              l,
		Settings:          s,
		Store:             store,
		QueueBound:        cfg.Queue.Bound,
		HistorySize:       cfg.Queue.History,
		HeartbeatInterval: cfg.Queue.Heartbeat(),
		OnEvent:           onEvent,
		Log:               log,
	})

	return &session{
		cfg:      cfg,
		log:      log,
		store:    store,
		settings: s,
		link:     l,
		ctrl:     ctrl,
	}, nil
}

// label returns the label size to render for: --label or the config file
// when set, the settings otherwise.
func (s *session) label() (m110.LabelSize, error) {
	if s.cfg.Label != "" {
		return m110.ParseLabel(s.cfg.Label, m110.DPI)
	}
	return s.settings.Label()
}

// close drains buffered output and closes the link.
func (s *session) close() {
	if s.link.IsOpen() {
		if err := s.link.Flush(); err != nil {
			s.log.Warn().Str("event", "flush_failed").Err(err).Msg("flush failed")
		}
	}
	s.link.Close()
}
