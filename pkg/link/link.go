// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the byte-stream channel to the printer.
//
// A Link opens a device through an Opener, writes with a timeout, and
// reconnects with exponential backoff. It knows nothing about frames or
// chunks.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/rs/zerolog"
)

// Error kinds
var (
	ErrUnavailable = errors.New("device unavailable")
	ErrTimeout     = errors.New("device timeout")
	ErrIO          = errors.New("device i/o error")
)

// Defaults
const (
	DefaultWriteTimeout = 2 * time.Second
	DefaultOpenTimeout  = 10 * time.Second
	DefaultBackoffBase  = 2 * time.Second
	DefaultBackoffMax   = 30 * time.Second

	// maxZeroWrites bounds consecutive writes that accept no bytes.
	maxZeroWrites = 8
)

// Port is an open byte-stream device.
type Port interface {
	io.Writer
	io.Closer
}

// Opener opens the underlying device.
type Opener interface {
	Open(ctx context.Context) (Port, error)
	String() string
}

// State is the connection state of a Link.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures a Link. Zero values select the defaults.
type Options struct {
	WriteTimeout time.Duration
	OpenTimeout  time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

func (o *Options) normalize() {
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.OpenTimeout == 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
}

// Info is a point-in-time view of a Link.
type Info struct {
	Device    string
	State     State
	LastError error
	LastIOAt  time.Time
	Backoff   time.Duration
}

// Link is a single printer connection. Writes are serialised by an internal
// mutex, so Close waits for an in-flight write to return.
type Link struct {
	opener Opener
	opts   Options
	log    zerolog.Logger

	// wait sleeps for the backoff; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex // guards port
	port Port

	infoMu   sync.Mutex
	state    State
	lastErr  error
	lastIOAt time.Time
	backoff  time.Duration
}

// New creates a closed Link. Nothing is opened until Open is called.
func New(opener Opener, opts Options, log zerolog.Logger) *Link {
	opts.normalize()
	return &Link{
		opener:  opener,
		opts:    opts,
		log:     log.With().Str("device", opener.String()).Logger(),
		wait:    sleepContext,
		backoff: opts.BackoffBase,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Device describes the opener, e.g. a tty path or RFCOMM address.
func (l *Link) Device() string {
	return l.opener.String()
}

// Info returns the current state without blocking on I/O.
func (l *Link) Info() Info {
	l.infoMu.Lock()
	defer l.infoMu.Unlock()
	return Info{
		Device:    l.opener.String(),
		State:     l.state,
		LastError: l.lastErr,
		LastIOAt:  l.lastIOAt,
		Backoff:   l.backoff,
	}
}

// IsOpen reports whether the last open succeeded and no error has occurred since.
func (l *Link) IsOpen() bool {
	return l.Info().State == StateOpen
}

func (l *Link) setState(s State, err error) {
	l.infoMu.Lock()
	l.state = s
	if err != nil {
		l.lastErr = err
	}
	l.infoMu.Unlock()
}

// Open opens the device if it is not already open.
// It returns an error wrapping ErrUnavailable or ErrTimeout.
func (l *Link) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port != nil {
		return nil
	}

	l.setState(StateOpening, nil)

	ctx, cancel := context.WithTimeout(ctx, l.opts.OpenTimeout)
	defer cancel()

	type result struct {
		port Port
		err  error
	}
	done := make(chan result, 1)
	go func() {
		port, err := l.opener.Open(ctx)
		done <- result{port, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			err := classifyOpen(r.err)
			l.setState(StateFailed, err)
			l.log.Warn().Str("event", "link_open_failed").Err(err).Msg("open failed")
			return err
		}
		l.port = r.port
	case <-ctx.Done():
		// Close the port if the opener eventually succeeds.
		go func() {
			if r := <-done; r.port != nil {
				r.port.Close()
			}
		}()
		err := fmt.Errorf("%w: open %s: %v", ErrTimeout, l.opener, ctx.Err())
		l.setState(StateFailed, err)
		l.log.Warn().Str("event", "link_open_failed").Err(err).Msg("open timed out")
		return err
	}

	l.setState(StateOpen, nil)
	l.log.Info().Str("event", "link_open").Msg("link open")
	return nil
}

// Write writes all of p, retrying short writes, and returns the number of
// bytes the device accepted. Each underlying write is bounded by the write
// timeout. A stalled write or an unavailable device closes the port; other
// errors leave it open so the caller can resume from p[n:].
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return 0, fmt.Errorf("%w: %s is not open", ErrUnavailable, l.opener)
	}

	written := 0
	zero := 0
	for written < len(p) {
		n, err := l.writeWithTimeout(p[written:])
		written += n
		if err != nil {
			if l.port == nil || errors.Is(err, ErrUnavailable) {
				l.failLocked(err)
			} else {
				l.setState(StateOpen, err)
			}
			l.log.Debug().Str("event", "link_write_failed").Int("bytes_sent", written).Err(err).Msg("write failed")
			return written, err
		}
		if n == 0 {
			zero++
			if zero >= maxZeroWrites {
				err := fmt.Errorf("%w: device accepted no bytes after %d writes", ErrIO, zero)
				l.failLocked(err)
				return written, err
			}
			continue
		}
		zero = 0
	}

	l.infoMu.Lock()
	l.state = StateOpen
	l.lastErr = nil
	l.lastIOAt = time.Now()
	l.backoff = l.opts.BackoffBase
	l.infoMu.Unlock()
	return written, nil
}

// writeWithTimeout performs one underlying write. On timeout the port is
// closed, which releases the stuck write. Callers hold l.mu.
func (l *Link) writeWithTimeout(p []byte) (int, error) {
	port := l.port
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := port.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(l.opts.WriteTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return r.n, classifyWrite(r.err)
		}
		return r.n, nil
	case <-timer.C:
		err := fmt.Errorf("%w: write of %d bytes exceeded %v", ErrTimeout, len(p), l.opts.WriteTimeout)
		l.failLocked(err)
		return 0, err
	}
}

// failLocked closes the port after a hard error. Callers hold l.mu.
func (l *Link) failLocked(err error) {
	if l.port != nil {
		l.port.Close()
		l.port = nil
	}
	l.setState(StateFailed, err)
}

// Flush waits for buffered output to reach the device where the port supports it.
func (l *Link) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return fmt.Errorf("%w: %s is not open", ErrUnavailable, l.opener)
	}

	var err error
	switch p := l.port.(type) {
	case interface{ Drain() error }:
		err = p.Drain()
	case interface{ Sync() error }:
		err = p.Sync()
	}
	if err != nil {
		err = classifyWrite(err)
		l.failLocked(err)
		return err
	}
	return nil
}

// Heartbeat writes ESC @ as a liveness probe.
func (l *Link) Heartbeat() error {
	if _, err := l.Write(m110.MustEncode(m110.Init())); err != nil {
		l.log.Warn().Str("event", "heartbeat_failed").Err(err).Msg("heartbeat failed")
		return err
	}
	l.log.Debug().Str("event", "heartbeat").Msg("heartbeat ok")
	return nil
}

// Close closes the port. It is safe to call on a closed Link.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.setState(StateClosed, nil)
	l.log.Info().Str("event", "link_closed").Msg("link closed")
	return err
}

// Reconnect closes the port, waits for the current backoff, and reopens.
// The backoff doubles on each failed open up to the configured cap and
// resets after a successful write.
func (l *Link) Reconnect(ctx context.Context) error {
	l.Close()

	l.infoMu.Lock()
	backoff := l.backoff
	l.infoMu.Unlock()

	l.log.Info().Str("event", "link_reconnect").Dur("backoff", backoff).Msg("reconnecting")
	if err := l.wait(ctx, backoff); err != nil {
		return err
	}

	err := l.Open(ctx)
	if err != nil {
		l.infoMu.Lock()
		l.backoff *= 2
		if l.backoff > l.opts.BackoffMax {
			l.backoff = l.opts.BackoffMax
		}
		l.infoMu.Unlock()
	}
	return err
}
