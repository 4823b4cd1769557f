// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Thermoquad/m110/pkg/imagesource"
	"github.com/Thermoquad/m110/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	textSize        float64
	textFont        string
	textFixed       bool
	textAlign       string
	textLineSpacing float64
	textCopies      int
	textTUI         bool
)

var textCmd = &cobra.Command{
	Use:   "text [TEXT...]",
	Short: "Print a text label",
	Long: `Render text and print it as a label.

Arguments are joined with spaces. Use '-' or no arguments to read the text
from stdin. Long lines wrap at word boundaries; newlines start a new line.

The default font is Go Mono. --font loads a TrueType or OpenType file and
--fixed uses a small built-in bitmap font that stays sharp at any density.`,
	RunE: runText,
}

func init() {
	rootCmd.AddCommand(textCmd)
	textCmd.Flags().Float64VarP(&textSize, "size", "s", imagesource.DefaultTextSize, "Font size in points")
	textCmd.Flags().StringVar(&textFont, "font", "", "TrueType/OpenType font file")
	textCmd.Flags().BoolVar(&textFixed, "fixed", false, "Use the built-in 7x13 bitmap font")
	textCmd.Flags().StringVar(&textAlign, "align", "left", "Alignment: left, center or right")
	textCmd.Flags().Float64Var(&textLineSpacing, "line-spacing", 1.0, "Line spacing as a multiple of the font height")
	textCmd.Flags().IntVarP(&textCopies, "copies", "n", 1, "Number of copies")
	textCmd.Flags().BoolVar(&textTUI, "tui", defaultTUI(), "Use terminal UI (false for text mode)")
}

func runText(cmd *cobra.Command, args []string) error {
	if textCopies < 1 {
		return fmt.Errorf("--copies must be at least 1")
	}
	align, err := imagesource.ParseAlign(textAlign)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	if len(args) == 0 || text == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %v", err)
		}
		text = string(data)
	}

	opts := imagesource.TextOptions{
		Size:        textSize,
		Fixed:       textFixed,
		Align:       align,
		LineSpacing: textLineSpacing,
	}
	if textFont != "" {
		opts.Font, err = os.ReadFile(textFont)
		if err != nil {
			return err
		}
	}

	return runJobs(cmd, textTUI, func(s *session) ([]submitted, error) {
		label, err := s.label()
		if err != nil {
			return nil, err
		}
		opts.Width = label.FitWidth(s.settings.XOffsetBits)

		bm, err := imagesource.RenderText(text, opts)
		if err != nil {
			return nil, err
		}

		name := []rune(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
		if len(name) > 24 {
			name = append(name[:24], '…')
		}
		return submitAll(s.ctrl, copiesOf(fmt.Sprintf("%q", string(name)), bm, printer.KindText, textCopies))
	})
}
