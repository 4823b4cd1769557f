// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package m110

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidDim is returned for label dimensions that produce an empty raster.
var ErrInvalidDim = errors.New("invalid label dimensions")

// LabelSize is an immutable label geometry. Dot width is always a multiple of 8.
type LabelSize struct {
	widthMM   float64
	heightMM  float64
	dpi       int
	dotWidth  int
	byteWidth int
	dotHeight int
}

// NewLabelSize converts a physical label size to printer dots.
// The dot width is rounded up to a whole byte.
func NewLabelSize(widthMM, heightMM float64, dpi int) (LabelSize, error) {
	if dpi <= 0 || !finite(widthMM) || !finite(heightMM) {
		return LabelSize{}, fmt.Errorf("%w: %gx%gmm at %d dpi", ErrInvalidDim, widthMM, heightMM, dpi)
	}

	dotWidth := int(math.Round(widthMM * float64(dpi) / mmPerInch))
	if rem := dotWidth % 8; rem > 0 {
		dotWidth += 8 - rem
	}
	dotHeight := int(math.Round(heightMM * float64(dpi) / mmPerInch))

	if dotWidth < 8 || dotHeight < 1 {
		return LabelSize{}, fmt.Errorf("%w: %gx%gmm at %d dpi gives %dx%d dots",
			ErrInvalidDim, widthMM, heightMM, dpi, dotWidth, dotHeight)
	}

	return LabelSize{
		widthMM:   widthMM,
		heightMM:  heightMM,
		dpi:       dpi,
		dotWidth:  dotWidth,
		byteWidth: dotWidth / 8,
		dotHeight: dotHeight,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (l LabelSize) WidthMM() float64  { return l.widthMM }
func (l LabelSize) HeightMM() float64 { return l.heightMM }
func (l LabelSize) DPI() int          { return l.dpi }
func (l LabelSize) DotWidth() int     { return l.dotWidth }
func (l LabelSize) ByteWidth() int    { return l.byteWidth }
func (l LabelSize) DotHeight() int    { return l.dotHeight }

// PrintableWidth returns the dot width clipped to the printhead.
func (l LabelSize) PrintableWidth() int {
	if l.dotWidth > PrintheadDots {
		return PrintheadDots
	}
	return l.dotWidth
}

// FitWidth returns the widest source, in dots, that still fits the
// printhead after a right shift of xOffsetBits.
func (l LabelSize) FitWidth(xOffsetBits int) int {
	w := l.PrintableWidth()
	if room := PrintheadDots - xOffsetBits; room < w {
		w = room
	}
	if w < 0 {
		return 0
	}
	return w
}

func (l LabelSize) String() string {
	return fmt.Sprintf("%gx%gmm @ %d dpi (%dx%d dots, %d bytes/line)",
		l.widthMM, l.heightMM, l.dpi, l.dotWidth, l.dotHeight, l.byteWidth)
}

// Preset is a named stock label size.
type Preset struct {
	Name     string
	WidthMM  float64
	HeightMM float64
}

var presets = []Preset{
	{Name: "25x25", WidthMM: 25, HeightMM: 25},
	{Name: "40x30", WidthMM: 40, HeightMM: 30},
	{Name: "50x30", WidthMM: 50, HeightMM: 30},
	{Name: "30x50", WidthMM: 30, HeightMM: 50},
	{Name: "50x80", WidthMM: 50, HeightMM: 80},
	{Name: "80x50", WidthMM: 80, HeightMM: 50},
}

// DefaultPreset names the stock label loaded in the printer by default.
const DefaultPreset = "40x30"

// Presets returns a copy of the stock label sizes.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ParseLabel resolves a preset name or a custom "WxH" size in millimetres.
func ParseLabel(s string, dpi int) (LabelSize, error) {
	s = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "mm")))
	for _, p := range presets {
		if p.Name == s {
			return NewLabelSize(p.WidthMM, p.HeightMM, dpi)
		}
	}

	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return LabelSize{}, fmt.Errorf("%w: %q is not WIDTHxHEIGHT", ErrInvalidDim, s)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return LabelSize{}, fmt.Errorf("%w: width %q: %v", ErrInvalidDim, w, err)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return LabelSize{}, fmt.Errorf("%w: height %q: %v", ErrInvalidDim, h, err)
	}
	return NewLabelSize(width, height, dpi)
}
