// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package m110

import (
	"errors"
	"math"
	"testing"
)

func TestNewLabelSize(t *testing.T) {
	tests := []struct {
		name          string
		widthMM       float64
		heightMM      float64
		dpi           int
		wantDotWidth  int
		wantByteWidth int
		wantDotHeight int
	}{
		{name: "printhead width", widthMM: 48, heightMM: 30, dpi: 203, wantDotWidth: 384, wantByteWidth: 48, wantDotHeight: 240},
		{name: "40x30 stock", widthMM: 40, heightMM: 30, dpi: 203, wantDotWidth: 320, wantByteWidth: 40, wantDotHeight: 240},
		{name: "25x25 rounds up to byte", widthMM: 25, heightMM: 25, dpi: 203, wantDotWidth: 200, wantByteWidth: 25, wantDotHeight: 200},
		{name: "30mm rounds up to byte", widthMM: 30, heightMM: 50, dpi: 203, wantDotWidth: 240, wantByteWidth: 30, wantDotHeight: 400},
		{name: "odd width", widthMM: 10, heightMM: 1, dpi: 203, wantDotWidth: 80, wantByteWidth: 10, wantDotHeight: 8},
		{name: "one dot rounds to one byte", widthMM: 0.2, heightMM: 0.2, dpi: 203, wantDotWidth: 8, wantByteWidth: 1, wantDotHeight: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLabelSize(tt.widthMM, tt.heightMM, tt.dpi)
			if err != nil {
				t.Fatalf("NewLabelSize() error = %v", err)
			}
			if l.DotWidth() != tt.wantDotWidth {
				t.Errorf("DotWidth() = %d, want %d", l.DotWidth(), tt.wantDotWidth)
			}
			if l.ByteWidth() != tt.wantByteWidth {
				t.Errorf("ByteWidth() = %d, want %d", l.ByteWidth(), tt.wantByteWidth)
			}
			if l.DotHeight() != tt.wantDotHeight {
				t.Errorf("DotHeight() = %d, want %d", l.DotHeight(), tt.wantDotHeight)
			}
			if l.DotWidth()%8 != 0 {
				t.Errorf("DotWidth() = %d, not a multiple of 8", l.DotWidth())
			}
		})
	}
}

func TestNewLabelSize_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		widthMM  float64
		heightMM float64
		dpi      int
	}{
		{name: "zero width", widthMM: 0, heightMM: 30, dpi: 203},
		{name: "zero height", widthMM: 40, heightMM: 0, dpi: 203},
		{name: "height rounds to zero", widthMM: 40, heightMM: 0.05, dpi: 203},
		{name: "negative width", widthMM: -40, heightMM: 30, dpi: 203},
		{name: "zero dpi", widthMM: 40, heightMM: 30, dpi: 0},
		{name: "nan width", widthMM: math.NaN(), heightMM: 30, dpi: 203},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLabelSize(tt.widthMM, tt.heightMM, tt.dpi)
			if !errors.Is(err, ErrInvalidDim) {
				t.Errorf("NewLabelSize() error = %v, want ErrInvalidDim", err)
			}
		})
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		wantDotWidth int
		wantErr      bool
	}{
		{name: "preset", in: "40x30", wantDotWidth: 320},
		{name: "preset with suffix", in: " 25x25mm ", wantDotWidth: 200},
		{name: "custom", in: "48x12.5", wantDotWidth: 384},
		{name: "garbage", in: "large", wantErr: true},
		{name: "bad height", in: "40xabc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ParseLabel(tt.in, DPI)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDim) {
					t.Errorf("ParseLabel(%q) error = %v, want ErrInvalidDim", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLabel(%q) error = %v", tt.in, err)
			}
			if l.DotWidth() != tt.wantDotWidth {
				t.Errorf("DotWidth() = %d, want %d", l.DotWidth(), tt.wantDotWidth)
			}
		})
	}
}

func TestPrintableWidth(t *testing.T) {
	wide, err := NewLabelSize(80, 50, DPI)
	if err != nil {
		t.Fatal(err)
	}
	if got := wide.PrintableWidth(); got != PrintheadDots {
		t.Errorf("PrintableWidth() = %d, want %d", got, PrintheadDots)
	}

	narrow, err := NewLabelSize(25, 25, DPI)
	if err != nil {
		t.Fatal(err)
	}
	if got := narrow.PrintableWidth(); got != 200 {
		t.Errorf("PrintableWidth() = %d, want 200", got)
	}
}

func TestFitWidth(t *testing.T) {
	wide, err := NewLabelSize(50, 30, DPI)
	if err != nil {
		t.Fatal(err)
	}
	narrow, err := NewLabelSize(25, 25, DPI)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		label   LabelSize
		xOffset int
		want    int
	}{
		{"wide no offset", wide, 0, 384},
		{"wide shifted", wide, 8, 376},
		{"wide odd shift", wide, 3, 381},
		{"narrow shifted within room", narrow, 100, 200},
		{"narrow shifted past room", narrow, 250, 134},
		{"full shift", wide, PrintheadDots, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.label.FitWidth(tt.xOffset)
			if got != tt.want {
				t.Fatalf("FitWidth(%d) = %d, want %d", tt.xOffset, got, tt.want)
			}
			if got == 0 {
				return
			}
			// A source of that width packs without overflow.
			src := NewBitmap(got, 1)
			for i := range src.Data {
				src.Data[i] = 0xFF
			}
			if _, err := Pack(src, PackOptions{XOffsetBits: tt.xOffset, ByteWidth: PrintheadBytes}); err != nil {
				t.Errorf("Pack(width %d, x %d) error = %v", got, tt.xOffset, err)
			}
		})
	}
}

func TestBitmapClone(t *testing.T) {
	b := NewBitmap(16, 2)
	b.Data[0] = 0xF0
	c := b.Clone()
	c.Data[0] = 0x0F
	if b.Data[0] != 0xF0 {
		t.Errorf("Clone() shares data with the original")
	}
	if c.Width != 16 || c.Height != 2 || len(c.Data) != len(b.Data) {
		t.Errorf("Clone() = %dx%d (%d bytes), want 16x2 (%d bytes)", c.Width, c.Height, len(c.Data), len(b.Data))
	}
}
