// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package m110

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{name: "init", cmd: Init(), want: []byte{0x1B, 0x40}},
		{name: "left align", cmd: LeftAlign(), want: []byte{0x1B, 0x61, 0x00}},
		{name: "density min", cmd: Density(0), want: []byte{0x1B, 0x4E, 0x04, 0x00}},
		{name: "density max", cmd: Density(15), want: []byte{0x1B, 0x4E, 0x04, 0x0F}},
		{name: "speed", cmd: Speed(13), want: []byte{0x1B, 0x4E, 0x0D, 0x0D}},
		{name: "media label gaps", cmd: MediaLabelGaps(), want: []byte{0x1F, 0x11, 0x0A}},
		{name: "feed 2", cmd: Feed(2), want: []byte{0x1B, 0x64, 0x02}},
		{name: "feed 255", cmd: Feed(255), want: []byte{0x1B, 0x64, 0xFF}},
		{name: "reset horizontal position", cmd: ResetHorizontalPosition(), want: []byte{0x1B, 0x64, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode(%s) error = %v", tt.cmd, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%s) = % X, want % X", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestEncode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{name: "density too high", cmd: Density(16), wantErr: ErrArgument},
		{name: "speed too high", cmd: Speed(14), wantErr: ErrArgument},
		{name: "unknown op", cmd: Command{Op: Op(200)}, wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Encode(%s) error = %v, want %v", tt.cmd, err, tt.wantErr)
			}
		})
	}
}

func TestMustEncode_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustEncode(Density(99)) did not panic")
		}
	}()
	MustEncode(Density(99))
}

func TestEncodeRasterHeader(t *testing.T) {
	tests := []struct {
		name      string
		byteWidth int
		rows      int
		want      []byte
	}{
		{name: "single row", byteWidth: 48, rows: 1, want: []byte{0x1D, 0x76, 0x30, 0x00, 0x30, 0x00, 0x01, 0x00}},
		{name: "500 rows", byteWidth: 48, rows: 500, want: []byte{0x1D, 0x76, 0x30, 0x00, 0x30, 0x00, 0xF4, 0x01}},
		{name: "max rows", byteWidth: 48, rows: 0xFFFF, want: []byte{0x1D, 0x76, 0x30, 0x00, 0x30, 0x00, 0xFF, 0xFF}},
		{name: "wide", byteWidth: 0x0102, rows: 0x0304, want: []byte{0x1D, 0x76, 0x30, 0x00, 0x02, 0x01, 0x04, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRasterHeader(tt.byteWidth, tt.rows)
			if err != nil {
				t.Fatalf("EncodeRasterHeader() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeRasterHeader(%d, %d) = % X, want % X", tt.byteWidth, tt.rows, got, tt.want)
			}
		})
	}
}

func TestEncodeRasterHeader_Law(t *testing.T) {
	rng := newFuzzRng(t)
	for round := 0; round < getFuzzRounds(); round++ {
		bw := 1 + rng.Intn(MaxRasterByteWidth)
		rc := rng.Intn(MaxRasterRows + 1)
		got, err := EncodeRasterHeader(bw, rc)
		if err != nil {
			t.Fatalf("EncodeRasterHeader(%d, %d) error = %v", bw, rc, err)
		}
		want := []byte{0x1D, 0x76, 0x30, 0x00, byte(bw & 0xFF), byte(bw >> 8), byte(rc & 0xFF), byte(rc >> 8)}
		if !bytes.Equal(got, want) {
			t.Fatalf("EncodeRasterHeader(%d, %d) = % X, want % X", bw, rc, got, want)
		}
	}
}

func TestEncodeRasterHeader_RejectsTallRaster(t *testing.T) {
	_, err := EncodeRasterHeader(48, 0x10000)
	if !errors.Is(err, ErrRowsOutOfRange) {
		t.Errorf("EncodeRasterHeader(48, 0x10000) error = %v, want ErrRowsOutOfRange", err)
	}
}
