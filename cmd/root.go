// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/m110/pkg/link"
	"github.com/spf13/cobra"
)

var (
	// Device flags
	portName      string
	baudRate      int
	rfcommAddr    string
	rfcommChannel int
	capturePath   string

	configPath   string
	settingsPath string
	labelName    string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "m110",
	Short: "Phomemo M110 label printer driver",
	Long: `m110 - print images and text on a Phomemo M110 thermal label printer.

Jobs are queued, packed into 384-dot raster lines and streamed to the printer
in paced chunks. Transient link failures reconnect and retry the job.

Device selection:
  Serial:    --port /dev/rfcomm0 [--baud 115200]
  Bluetooth: --rfcomm DC:0D:30:AA:BB:CC [--channel 1]   (Linux only)
  Dry run:   --capture out.bin   (append the command stream to a file)

Static options can be kept in a YAML file passed with --config; flags given
on the command line win. Tunable printer settings (offsets, density, pacing)
live in the settings file and are changed with 'm110 settings set'.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial device (e.g. /dev/rfcomm0)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", link.DefaultBaudRate, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&rfcommAddr, "rfcomm", "", "Bluetooth address for a direct RFCOMM socket")
	rootCmd.PersistentFlags().IntVar(&rfcommChannel, "channel", link.DefaultRFCOMMChannel, "RFCOMM channel")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Write the command stream to a file instead of a printer")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Printer settings file (.json or .cbor)")
	rootCmd.PersistentFlags().StringVar(&labelName, "label", "", "Label size: preset name or WxH in mm")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
