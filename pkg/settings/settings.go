// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings holds the runtime-tunable print parameters.
//
// Settings are a typed struct persisted as a single blob. Every pause the
// transmitter makes is a named field here so it can be tuned on hardware
// without a rebuild.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/m110/pkg/m110"
)

// Limits
const (
	MaxYOffsetRows    = 50
	MinChunkSizeBytes = 32
	MinStabilisation  = 200
	MaxFeedLines      = m110.MaxFeed
)

// Settings are the runtime-tunable print parameters.
type Settings struct {
	// Placement
	XOffsetBits int `json:"x_offset_bits"`
	YOffsetRows int `json:"y_offset_rows"`

	// Sent to the printer on connect and when changed
	Density int `json:"density"`
	Speed   int `json:"speed"`

	// Minimum gap between the end of one print and the start of the next.
	// Shorter gaps let the paper drift right on the following label.
	AntiDriftIntervalMs int `json:"anti_drift_interval_ms"`

	// Payload pacing. Smaller chunks are slower but survive dense rasters.
	ChunkSizeBytes      int `json:"chunk_size_bytes"`
	DenseChunkSizeBytes int `json:"dense_chunk_size_bytes"`
	PerChunkRetries     int `json:"per_chunk_retries"`
	InterChunkPauseMs   int `json:"inter_chunk_pause_ms"`

	// Every BurstEveryChunks chunks the printer flushes its input buffer to
	// the head; the extra pause stops a row straddling the flush from
	// printing twice.
	BurstEveryChunks int `json:"burst_every_chunks"`
	BurstPauseMs     int `json:"burst_pause_ms"`

	// Settle time after ESC @ and after the final position reset.
	StabilisationPauseMs int `json:"stabilisation_pause_ms"`
	// Payload written in the same firmware tick as the header is dropped.
	HeaderSettleMs int `json:"header_settle_ms"`

	JobMaxRetries   int `json:"job_max_retries"`
	ConnectAttempts int `json:"connect_attempts"`
	FeedLines       int `json:"feed_lines"`

	LabelWidthMM  float64 `json:"label_width_mm"`
	LabelHeightMM float64 `json:"label_height_mm"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		XOffsetBits:          0,
		YOffsetRows:          0,
		Density:              8,
		Speed:                1,
		AntiDriftIntervalMs:  2000,
		ChunkSizeBytes:       256,
		DenseChunkSizeBytes:  64,
		PerChunkRetries:      7,
		InterChunkPauseMs:    30,
		BurstEveryChunks:     10,
		BurstPauseMs:         100,
		StabilisationPauseMs: 200,
		HeaderSettleMs:       100,
		JobMaxRetries:        3,
		ConnectAttempts:      5,
		FeedLines:            2,
		LabelWidthMM:         40,
		LabelHeightMM:        30,
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (s Settings) AntiDriftInterval() time.Duration  { return ms(s.AntiDriftIntervalMs) }
func (s Settings) InterChunkPause() time.Duration    { return ms(s.InterChunkPauseMs) }
func (s Settings) BurstPause() time.Duration         { return ms(s.BurstPauseMs) }
func (s Settings) StabilisationPause() time.Duration { return ms(s.StabilisationPauseMs) }
func (s Settings) HeaderSettle() time.Duration       { return ms(s.HeaderSettleMs) }

// Label returns the configured label geometry.
func (s Settings) Label() (m110.LabelSize, error) {
	return m110.NewLabelSize(s.LabelWidthMM, s.LabelHeightMM, m110.DPI)
}

// DeviceConfigChanged reports whether density or speed differ, which means
// the printer must be reconfigured before the next print.
func DeviceConfigChanged(a, b Settings) bool {
	return a.Density != b.Density || a.Speed != b.Speed
}

// ErrInvalid matches any *InvalidError.
var ErrInvalid = errors.New("invalid setting")

// InvalidError names the offending field.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Reason)
}

func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, format string, args ...any) error {
	return &InvalidError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid(field, "%d not in %d..%d", v, lo, hi)
	}
	return nil
}

func checkMin(field string, v, lo int) error {
	if v < lo {
		return invalid(field, "%d is below %d", v, lo)
	}
	return nil
}

// Validate returns an *InvalidError for the first out-of-range field.
func (s Settings) Validate() error {
	checks := []error{
		checkRange("x_offset_bits", s.XOffsetBits, 0, m110.PrintheadDots),
		checkRange("y_offset_rows", s.YOffsetRows, -MaxYOffsetRows, MaxYOffsetRows),
		checkRange("density", s.Density, 0, m110.MaxDensity),
		checkRange("speed", s.Speed, 0, m110.MaxSpeed),
		checkMin("anti_drift_interval_ms", s.AntiDriftIntervalMs, 0),
		checkMin("chunk_size_bytes", s.ChunkSizeBytes, MinChunkSizeBytes),
		checkMin("per_chunk_retries", s.PerChunkRetries, 1),
		checkMin("inter_chunk_pause_ms", s.InterChunkPauseMs, 0),
		checkMin("burst_every_chunks", s.BurstEveryChunks, 1),
		checkMin("burst_pause_ms", s.BurstPauseMs, 0),
		checkMin("stabilisation_pause_ms", s.StabilisationPauseMs, MinStabilisation),
		checkMin("header_settle_ms", s.HeaderSettleMs, 0),
		checkMin("job_max_retries", s.JobMaxRetries, 1),
		checkMin("connect_attempts", s.ConnectAttempts, 1),
		checkRange("feed_lines", s.FeedLines, 0, MaxFeedLines),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if s.DenseChunkSizeBytes != 0 && s.DenseChunkSizeBytes < MinChunkSizeBytes {
		return invalid("dense_chunk_size_bytes", "%d is below %d (0 disables)", s.DenseChunkSizeBytes, MinChunkSizeBytes)
	}
	if _, err := s.Label(); err != nil {
		return invalid("label_width_mm", "%v", err)
	}
	return nil
}

// Patch is a partial update keyed by JSON field name.
type Patch map[string]json.RawMessage

// Apply overlays p onto s and validates the result. Unknown keys are
// skipped and returned so the caller can warn about them.
func (s Settings) Apply(p Patch) (Settings, []string, error) {
	fields, err := s.fields()
	if err != nil {
		return s, nil, err
	}

	var unknown []string
	for k, v := range p {
		if _, ok := fields[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		fields[k] = v
	}
	sort.Strings(unknown)

	merged, err := json.Marshal(fields)
	if err != nil {
		return s, unknown, err
	}
	var out Settings
	if err := json.Unmarshal(merged, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return s, unknown, invalid(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return s, unknown, err
	}
	if err := out.Validate(); err != nil {
		return s, unknown, err
	}
	return out, unknown, nil
}

func (s Settings) fields() (map[string]json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Keys returns the field names in sorted order.
func Keys() []string {
	m, _ := Default().fields()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseAssignments builds a Patch from key=value arguments.
func ParseAssignments(args []string) (Patch, error) {
	p := make(Patch, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if !json.Valid([]byte(value)) {
			return nil, invalid(key, "%q is not a number", value)
		}
		p[key] = json.RawMessage(value)
	}
	return p, nil
}
