// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/Thermoquad/m110/pkg/imagesource"
	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/printer"
	"github.com/spf13/cobra"
)

var (
	printCopies    int
	printThreshold bool
	printGamma     float64
	printInvert    bool
	printUpscale   bool
	printTUI       bool
)

var printCmd = &cobra.Command{
	Use:   "print FILE...",
	Short: "Print image files",
	Long: `Print one or more images (PNG, JPEG, GIF, BMP or WebP).

Each image is scaled to fit the label, dithered to black and white and
queued as a separate job. Jobs print in the order given. The X and Y offsets
from the printer settings are applied when each job starts printing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrint,
}

func init() {
	rootCmd.AddCommand(printCmd)
	printCmd.Flags().IntVarP(&printCopies, "copies", "n", 1, "Copies of each image")
	printCmd.Flags().BoolVar(&printThreshold, "threshold", false, "Threshold at 50% instead of dithering")
	printCmd.Flags().Float64Var(&printGamma, "gamma", 1.0, "Gamma correction (<1 lightens)")
	printCmd.Flags().BoolVar(&printInvert, "invert", false, "Invert black and white")
	printCmd.Flags().BoolVar(&printUpscale, "upscale", false, "Enlarge small images to the label width")
	printCmd.Flags().BoolVar(&printTUI, "tui", defaultTUI(), "Use terminal UI (false for text mode)")
}

func runPrint(cmd *cobra.Command, args []string) error {
	if printCopies < 1 {
		return fmt.Errorf("--copies must be at least 1")
	}

	return runJobs(cmd, printTUI, func(s *session) ([]submitted, error) {
		label, err := s.label()
		if err != nil {
			return nil, err
		}
		opts := imagesource.ForLabel(label)
		// Leave room for the X offset so wide labels do not overflow.
		opts.MaxWidth = label.FitWidth(s.settings.XOffsetBits)
		opts.Threshold = printThreshold
		opts.Gamma = printGamma
		opts.Invert = printInvert
		opts.Upscale = printUpscale

		// Render everything before queueing so a bad file prints nothing.
		var pending []queued
		for _, path := range args {
			img, err := imagesource.Load(path)
			if err != nil {
				return nil, err
			}
			bm, err := imagesource.FromImage(img, opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			s.log.Debug().Str("event", "image_rendered").Str("path", path).
				Int("width", bm.Width).Int("height", bm.Height).Msg("image ready")

			pending = append(pending, copiesOf(filepath.Base(path), bm, printer.KindImage, printCopies)...)
		}
		return submitAll(s.ctrl, pending)
	})
}

// queued is a rendered bitmap waiting to be submitted.
type queued struct {
	name   string
	bitmap *m110.Bitmap
	kind   printer.Kind
}

// copyNames labels each copy of name for display.
func copyNames(name string, copies int) []string {
	if copies <= 1 {
		return []string{name}
	}
	out := make([]string, copies)
	for i := range out {
		out[i] = fmt.Sprintf("%s #%d", name, i+1)
	}
	return out
}

// copiesOf expands one rendered bitmap into copies jobs. Each job owns its
// own bitmap.
func copiesOf(name string, bm *m110.Bitmap, kind printer.Kind, copies int) []queued {
	names := copyNames(name, copies)
	out := make([]queued, len(names))
	for i, n := range names {
		b := bm
		if i > 0 {
			b = bm.Clone()
		}
		out[i] = queued{name: n, bitmap: b, kind: kind}
	}
	return out
}

// submitAll queues jobs in order. A rejection stops the run before any job
// prints.
func submitAll(ctrl *printer.Controller, jobs []queued) ([]submitted, error) {
	out := make([]submitted, 0, len(jobs))
	for _, j := range jobs {
		id, err := ctrl.SubmitBitmap(j.bitmap, j.kind)
		if err != nil {
			ctrl.ClearQueue()
			return nil, fmt.Errorf("%s: %w", j.name, err)
		}
		out = append(out, submitted{id: id, name: j.name})
	}
	return out, nil
}
