// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// m110 - Phomemo M110 label printer driver
//
// Queues images and text, packs them into printer raster lines and streams
// them to the printer over a serial or RFCOMM link.

package main

import (
	"os"

	"github.com/Thermoquad/m110/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
