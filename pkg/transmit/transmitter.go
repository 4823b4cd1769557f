// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transmit sends one raster to the printer.
//
// A print is a fixed sequence: wait out the anti-drift interval, reset the
// printer, frame each segment of at most 65535 rows with a GS v 0 header,
// stream the payload in paced chunks with per-chunk retry, then reset the
// horizontal position. All pauses come from settings.Settings.
package transmit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/rs/zerolog"
)

// Fixed firmware timings
const (
	// ResetSettle follows each horizontal position reset.
	ResetSettle = 100 * time.Millisecond
	// RetryStep is multiplied by the attempt number between chunk retries.
	RetryStep = 10 * time.Millisecond
	// ConfigSettle follows each density, speed and media command.
	ConfigSettle = 100 * time.Millisecond
)

// DenseThreshold is the on-bit fraction above which chunks shrink to
// Settings.DenseChunkSizeBytes.
const DenseThreshold = 0.6

// Writer is the byte sink, normally a *link.Link. Write returns the number
// of bytes accepted, also on error.
type Writer interface {
	Write(p []byte) (int, error)
}

// Reconnector is implemented by writers that close themselves on a hard
// error. A chunk retry reopens such a writer before writing again.
type Reconnector interface {
	IsOpen() bool
	Reconnect(ctx context.Context) error
}

// Job is one raster to print.
type Job struct {
	ID       string
	Raster   *m110.Raster
	Progress func(sent, total int) // optional, called after each chunk
}

// Result summarises a completed print.
type Result struct {
	Segments  int
	Chunks    int
	ChunkSize int
	BytesSent int
	Retries   int
	// Reconnects counts link reopens during chunk retries.
	Reconnects int
	Started    time.Time
	Finished   time.Time
}

// Transmitter executes prints and remembers when the last one finished.
type Transmitter struct {
	clock Clock
	log   zerolog.Logger

	mu          sync.Mutex
	lastPrintAt time.Time
}

// New creates a Transmitter. A nil clock selects SystemClock.
func New(clock Clock, log zerolog.Logger) *Transmitter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Transmitter{clock: clock, log: log}
}

// LastPrintAt returns when the last print finished, zero before the first.
func (t *Transmitter) LastPrintAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPrintAt
}

func (t *Transmitter) markPrinted() {
	now := t.clock.Now()
	t.mu.Lock()
	t.lastPrintAt = now
	t.mu.Unlock()
}

// ChunkSize returns the chunk size used for r under s.
func ChunkSize(r *m110.Raster, s settings.Settings) int {
	size := s.ChunkSizeBytes
	if size < settings.MinChunkSizeBytes {
		size = settings.MinChunkSizeBytes
	}
	if s.DenseChunkSizeBytes > 0 && s.DenseChunkSizeBytes < size && r.Density() > DenseThreshold {
		size = s.DenseChunkSizeBytes
	}
	return size
}

func (t *Transmitter) command(w Writer, c m110.Command) error {
	b, err := m110.Encode(c)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return &CommandWriteError{Command: c, Err: err}
	}
	return nil
}

// Configure sends density, speed and media type. Call after opening the
// link and after these settings change, never per job.
func (t *Transmitter) Configure(w Writer, s settings.Settings) error {
	cmds := []m110.Command{
		m110.Density(uint8(s.Density)),
		m110.Speed(uint8(s.Speed)),
		m110.MediaLabelGaps(),
	}
	for _, c := range cmds {
		if err := t.command(w, c); err != nil {
			return err
		}
		t.clock.Sleep(ConfigSettle)
	}
	t.log.Info().Str("event", "printer_configured").
		Int("density", s.Density).Int("speed", s.Speed).Msg("printer configured")
	return nil
}

// Transmit prints job.Raster. Settings are used as given; callers pass a
// snapshot. No paper feed is emitted.
func (t *Transmitter) Transmit(w Writer, job Job, s settings.Settings) (Result, error) {
	log := t.log.With().Str("job_id", job.ID).Logger()
	r := job.Raster

	if err := r.Validate(); err != nil {
		if r != nil && r.ByteWidth > 0 && r.Rows > 0 && len(r.Data) != r.ByteWidth*r.Rows {
			return Result{}, fmt.Errorf("%w: %v", ErrByteCountMismatch, err)
		}
		return Result{}, err
	}

	t.antiDriftWait(log, s.AntiDriftInterval())

	res := Result{Started: t.clock.Now(), ChunkSize: ChunkSize(r, s)}

	// From here on the printer has been touched, so the anti-drift clock
	// restarts even if the print fails.
	defer t.markPrinted()

	if err := t.prelude(w, s); err != nil {
		return res, err
	}

	total := len(r.Data)
	chunkIndex := 0
	for start := 0; start < r.Rows; start += m110.MaxRasterRows {
		rows := r.Rows - start
		if rows > m110.MaxRasterRows {
			rows = m110.MaxRasterRows
		}
		payload := r.Data[start*r.ByteWidth : (start+rows)*r.ByteWidth]

		header, err := m110.EncodeRasterHeader(r.ByteWidth, rows)
		if err != nil {
			return res, err
		}
		if _, err := w.Write(header); err != nil {
			log.Error().Str("event", "header_failed").Int("segment", res.Segments).Err(err).Msg("header write failed")
			return res, &HeaderWriteError{Segment: res.Segments, Err: err}
		}
		res.Segments++
		t.clock.Sleep(s.HeaderSettle())

		sent, err := t.sendPayload(w, log, payload, &chunkIndex, &res, s, func(n int) {
			if job.Progress != nil {
				job.Progress(res.BytesSent+n, total)
			}
		})
		res.BytesSent += sent
		if err != nil {
			return res, err
		}
		if sent != len(payload) {
			return res, fmt.Errorf("%w: segment %d declared %d bytes, sent %d",
				ErrByteCountMismatch, res.Segments-1, len(payload), sent)
		}
	}

	if res.BytesSent != r.ByteWidth*r.Rows {
		return res, fmt.Errorf("%w: raster declared %d bytes, sent %d",
			ErrByteCountMismatch, r.ByteWidth*r.Rows, res.BytesSent)
	}

	if err := t.postlude(w, s); err != nil {
		return res, err
	}
	res.Finished = t.clock.Now()

	log.Info().Str("event", "transmit_done").
		Int("bytes_sent", res.BytesSent).
		Int("chunks", res.Chunks).
		Int("chunk_size", res.ChunkSize).
		Int("retries", res.Retries).
		Dur("elapsed", res.Finished.Sub(res.Started)).
		Msg("raster sent")
	return res, nil
}

// antiDriftWait sleeps until interval has passed since the last print.
// Before the first print the full interval is waited.
func (t *Transmitter) antiDriftWait(log zerolog.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	wait := interval
	if last := t.LastPrintAt(); !last.IsZero() {
		wait = interval - t.clock.Now().Sub(last)
	}
	if wait <= 0 {
		return
	}
	log.Debug().Str("event", "anti_drift_wait").Dur("wait", wait).Msg("waiting for printer to settle")
	t.clock.Sleep(wait)
}

func (t *Transmitter) prelude(w Writer, s settings.Settings) error {
	if err := t.command(w, m110.Init()); err != nil {
		return err
	}
	t.clock.Sleep(s.StabilisationPause())
	if err := t.command(w, m110.ResetHorizontalPosition()); err != nil {
		return err
	}
	t.clock.Sleep(ResetSettle)
	return t.command(w, m110.LeftAlign())
}

func (t *Transmitter) postlude(w Writer, s settings.Settings) error {
	t.clock.Sleep(s.StabilisationPause())
	if err := t.command(w, m110.ResetHorizontalPosition()); err != nil {
		return err
	}
	t.clock.Sleep(ResetSettle)
	return nil
}

// sendPayload writes payload in chunks and returns the bytes written.
// chunkIndex is shared across segments.
func (t *Transmitter) sendPayload(w Writer, log zerolog.Logger, payload []byte, chunkIndex *int,
	res *Result, s settings.Settings, progress func(sent int)) (int, error) {

	size := res.ChunkSize
	retries := s.PerChunkRetries
	if retries < 1 {
		retries = 1
	}
	burst := s.BurstEveryChunks
	if burst < 1 {
		burst = 1
	}

	sent := 0
	for off := 0; off < len(payload); off += size {
		end := off + size
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[off:end]

		// A failed attempt resumes after the bytes the device already took,
		// so the payload on the wire matches the header.
		done := 0
		for attempt := 1; ; attempt++ {
			n, err := w.Write(chunk[done:])
			done += n
			if err == nil {
				break
			}
			if attempt >= retries {
				log.Error().Str("event", "chunk_failed").
					Int("chunk_index", *chunkIndex).
					Int("attempt", attempt).
					Int("bytes_sent", res.BytesSent+sent+done).
					Err(err).Msg("chunk write failed")
				return sent + done, &ChunkWriteError{ChunkIndex: *chunkIndex, Attempts: attempt, Err: err}
			}
			res.Retries++
			log.Warn().Str("event", "chunk_retry").
				Int("chunk_index", *chunkIndex).
				Int("attempt", attempt).
				Int("bytes_sent", res.BytesSent+sent+done).
				Err(err).Msg("chunk write failed, retrying")
			t.clock.Sleep(time.Duration(attempt) * RetryStep)

			if rc, ok := w.(Reconnector); ok && !rc.IsOpen() {
				// A started job runs to the end, so no caller context here.
				if rerr := rc.Reconnect(context.Background()); rerr != nil {
					log.Error().Str("event", "chunk_failed").
						Int("chunk_index", *chunkIndex).
						Int("attempt", attempt).
						Err(rerr).Msg("reconnect during chunk retry failed")
					return sent + done, &ChunkWriteError{ChunkIndex: *chunkIndex, Attempts: attempt, Err: rerr}
				}
				res.Reconnects++
			}
		}

		sent += len(chunk)
		*chunkIndex++
		res.Chunks++
		progress(sent)

		if end < len(payload) {
			t.clock.Sleep(s.InterChunkPause())
			if *chunkIndex%burst == 0 {
				t.clock.Sleep(s.BurstPause())
			}
		}
	}
	return sent, nil
}
