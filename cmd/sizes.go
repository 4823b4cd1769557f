// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/spf13/cobra"
)

var sizesCmd = &cobra.Command{
	Use:   "sizes [WxH...]",
	Short: "List label sizes and their dot geometry",
	Long: `List the stock label presets, or the geometry of the sizes given.

Widths are rounded up to whole bytes. Labels wider than the printhead print
only the first 384 dots.`,
	RunE: runSizes,
}

func init() {
	rootCmd.AddCommand(sizesCmd)
}

func runSizes(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		for _, p := range m110.Presets() {
			names = append(names, p.Name)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %8s %8s %8s %10s\n", "Label", "Dots", "Bytes", "Rows", "Printable")
	for _, name := range names {
		l, err := m110.ParseLabel(name, m110.DPI)
		if err != nil {
			return err
		}
		marker := ""
		if name == m110.DefaultPreset {
			marker = "  (default)"
		}
		fmt.Fprintf(out, "%-10s %8d %8d %8d %10d%s\n",
			name, l.DotWidth(), l.ByteWidth(), l.DotHeight(), l.PrintableWidth(), marker)
	}
	return nil
}
