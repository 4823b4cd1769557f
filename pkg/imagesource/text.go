// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imagesource

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/Thermoquad/m110/pkg/m110"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Align is horizontal text alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

func (a Align) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	}
	return "left"
}

// ParseAlign accepts left, center (or centre) and right.
func ParseAlign(s string) (Align, error) {
	switch strings.ToLower(s) {
	case "", "left":
		return AlignLeft, nil
	case "center", "centre":
		return AlignCenter, nil
	case "right":
		return AlignRight, nil
	}
	return AlignLeft, fmt.Errorf("unknown alignment %q", s)
}

// DefaultTextSize is the font size in points.
const DefaultTextSize = 12

// TextOptions controls RenderText. Zero values select the defaults.
type TextOptions struct {
	Width int     // dots, defaults to the printhead width
	Size  float64 // points at the printer's resolution

	// Font is TrueType or OpenType data. nil uses Go Mono.
	Font []byte

	// Fixed selects the built-in 7x13 bitmap font. Size and Font are ignored.
	Fixed bool

	Align       Align
	LineSpacing float64 // multiple of the font height, 0 means 1
}

// RenderText rasterises text, wrapping words to the width. Newlines start
// a new line.
func RenderText(text string, opts TextOptions) (*m110.Bitmap, error) {
	if opts.Width <= 0 || opts.Width > m110.PrintheadDots {
		opts.Width = m110.PrintheadDots
	}
	if opts.LineSpacing <= 0 {
		opts.LineSpacing = 1
	}

	face, err := newFace(opts)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	lines := wrap(strings.TrimRight(text, "\n"), face, opts.Width)
	if strings.TrimSpace(strings.Join(lines, "")) == "" {
		return nil, fmt.Errorf("%w: empty text", m110.ErrInvalidSource)
	}

	metrics := face.Metrics()
	lineHeight := int(math.Ceil(float64(metrics.Height.Ceil()) * opts.LineSpacing))
	height := lineHeight*(len(lines)-1) + metrics.Height.Ceil()

	img := image.NewGray(image.Rect(0, 0, opts.Width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	for i, line := range lines {
		advance := font.MeasureString(face, line).Ceil()
		x := 0
		switch opts.Align {
		case AlignCenter:
			x = (opts.Width - advance) / 2
		case AlignRight:
			x = opts.Width - advance
		}
		d.Dot = fixed.Point26_6{
			X: fixed.I(max(x, 0)),
			Y: fixed.I(i*lineHeight) + metrics.Ascent,
		}
		d.DrawString(line)
	}

	return threshold(img, 0x80, false), nil
}

func newFace(opts TextOptions) (font.Face, error) {
	if opts.Fixed {
		return basicfont.Face7x13, nil
	}

	data := opts.Font
	if data == nil {
		data = gomono.TTF
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	size := opts.Size
	if size <= 0 {
		size = DefaultTextSize
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     m110.DPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// wrap breaks text into lines no wider than width. Words wider than a
// whole line are split between characters.
func wrap(text string, face font.Face, width int) []string {
	fits := func(s string) bool {
		return font.MeasureString(face, s).Ceil() <= width
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		line := ""
		for _, word := range words {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if fits(candidate) {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			for !fits(word) {
				cut := splitAt(word, fits)
				lines = append(lines, word[:cut])
				word = word[cut:]
			}
			line = word
		}
		lines = append(lines, line)
	}
	return lines
}

// splitAt returns the byte length of the longest prefix of word that fits,
// and at least one character.
func splitAt(word string, fits func(string) bool) int {
	cut := 0
	for i := range word {
		if i > 0 && !fits(word[:i]) {
			break
		}
		cut = i
	}
	if cut == 0 {
		for i := range word {
			if i > 0 {
				return i
			}
		}
		return len(word)
	}
	return cut
}
