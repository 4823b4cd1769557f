// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package imagesource turns pictures and text into 1-bit bitmaps for the
// packer. Dark pixels become set bits.
package imagesource

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/makeworld-the-better-one/dither/v2"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageOptions controls FromImage. Zero values select the defaults.
type ImageOptions struct {
	// MaxWidth and MaxHeight bound the output in dots. MaxWidth defaults to
	// the printhead width; MaxHeight 0 means unbounded.
	MaxWidth  int
	MaxHeight int

	// Upscale enlarges images smaller than MaxWidth.
	Upscale bool

	// Threshold disables dithering; pixels darker than 50% grey are black.
	Threshold bool

	// Gamma is applied to grey levels before dithering. 0 means 1.0.
	// Values below 1 lighten the print.
	Gamma float64

	Invert bool
}

// ForLabel returns options that fit an image to the printable area of l.
func ForLabel(l m110.LabelSize) ImageOptions {
	return ImageOptions{MaxWidth: l.PrintableWidth(), MaxHeight: l.DotHeight()}
}

// Decode reads a PNG, JPEG, GIF, BMP or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Load decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// FromImage scales img to fit the options, converts it to grey over a white
// background and reduces it to one bit per pixel.
func FromImage(img image.Image, opts ImageOptions) (*m110.Bitmap, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", m110.ErrInvalidSource)
	}
	if opts.MaxWidth <= 0 || opts.MaxWidth > m110.PrintheadDots {
		opts.MaxWidth = m110.PrintheadDots
	}

	w, h := fit(img.Bounds().Dx(), img.Bounds().Dy(), opts)

	// Transparent areas print as paper.
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, img.Bounds(), draw.Over, nil)

	gray := toGray(canvas, opts.Gamma)

	if opts.Threshold {
		return threshold(gray, 0x80, opts.Invert), nil
	}

	ditherer := dither.NewDitherer([]color.Color{color.Black, color.White})
	ditherer.Matrix = dither.FloydSteinberg
	ditherer.Serpentine = true
	return fromPaletted(ditherer.DitherPaletted(gray), opts.Invert), nil
}

// fit returns the output size, preserving the aspect ratio.
func fit(w, h int, opts ImageOptions) (int, int) {
	scale := 1.0
	if w > opts.MaxWidth || opts.Upscale {
		scale = float64(opts.MaxWidth) / float64(w)
	}
	if opts.MaxHeight > 0 && float64(h)*scale > float64(opts.MaxHeight) {
		scale = float64(opts.MaxHeight) / float64(h)
	}

	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	return max(sw, 1), max(sh, 1)
}

func toGray(src image.Image, gamma float64) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	if gamma <= 0 {
		gamma = 1
	}

	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(math.Round(math.Pow(float64(i)/255, gamma) * 255))
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			out.SetGray(x, y, color.Gray{Y: lut[g.Y]})
		}
	}
	return out
}

func threshold(g *image.Gray, level uint8, invert bool) *m110.Bitmap {
	b := g.Bounds()
	bm := m110.NewBitmap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dark := g.GrayAt(b.Min.X+x, b.Min.Y+y).Y < level
			bm.Set(x, y, dark != invert)
		}
	}
	return bm
}

func fromPaletted(p *image.Paletted, invert bool) *m110.Bitmap {
	black := uint8(p.Palette.Index(color.Black))
	b := p.Bounds()
	bm := m110.NewBitmap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dark := p.ColorIndexAt(b.Min.X+x, b.Min.Y+y) == black
			bm.Set(x, y, dark != invert)
		}
	}
	return bm
}
