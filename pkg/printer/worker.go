// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/Thermoquad/m110/pkg/transmit"
)

// Run processes jobs until ctx is cancelled. A job that is printing when
// ctx is cancelled runs to completion; there is no abort frame.
func (c *Controller) Run(ctx context.Context) error {
	if c.heartbeat > 0 {
		go c.heartbeatLoop(ctx)
	}

	c.log.Info().Str("event", "worker_started").Msg("print worker started")
	defer c.log.Info().Str("event", "worker_stopped").Msg("print worker stopped")

	for {
		j := c.next(ctx)
		if j == nil {
			return ctx.Err()
		}
		c.process(ctx, j)
	}
}

// next blocks until a job is available or ctx is done.
func (c *Controller) next(ctx context.Context) *job {
	for {
		c.mu.Lock()
		if j := c.queue.PopFront(); j != nil {
			c.mu.Unlock()
			return j
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		}
	}
}

func (c *Controller) process(ctx context.Context, j *job) {
	c.linkMu.Lock()
	defer c.linkMu.Unlock()

	c.mu.Lock()
	snap := c.settings
	j.attempts++
	j.state = StatePrinting
	started := c.eventLocked("job_started", j)
	c.notifyLocked()
	c.mu.Unlock()

	log := c.log.With().Str("job_id", j.id).Int("attempt", j.attempts).Logger()
	log.Info().Str("event", "job_started").Msg("printing")
	c.emit(started)

	if err := c.ensureOpen(ctx, snap); err != nil {
		c.fail(j, fmt.Errorf("%w: %v", ErrUnreachable, err))
		return
	}

	r, err := c.rasterFor(j, snap)
	if err != nil {
		c.fail(j, err)
		return
	}

	err = c.configureIfNeeded(snap)
	if err == nil {
		var res transmit.Result
		res, err = c.tx.Transmit(c.link, transmit.Job{ID: j.id, Raster: r, Progress: c.progress(j)}, snap)
		if res.Reconnects > 0 {
			// The printer may have reset while the link was down.
			c.mu.Lock()
			c.stats.Reconnections += uint64(res.Reconnects)
			c.needsConfig = true
			c.mu.Unlock()
		}
	}
	if err == nil {
		c.feed(snap)
		c.succeed(j, r)
		return
	}

	if isTransient(err) && j.attempts < snap.JobMaxRetries {
		c.requeue(j, err)
		return
	}
	c.fail(j, err)
}

// ensureOpen opens the link, retrying with the link's backoff up to
// ConnectAttempts times in total.
func (c *Controller) ensureOpen(ctx context.Context, snap settings.Settings) error {
	if c.link.IsOpen() {
		return nil
	}

	attempts := snap.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	err := c.link.Open(ctx)
	for i := 1; err != nil && i < attempts && ctx.Err() == nil; i++ {
		c.log.Warn().Str("event", "connect_retry").Int("attempt", i).Err(err).Msg("printer not reachable, retrying")
		err = c.link.Reconnect(ctx)
	}
	if err != nil {
		c.log.Error().Str("event", "connect_failed").Int("attempts", attempts).Err(err).Msg("printer unreachable")
		return err
	}

	c.mu.Lock()
	if c.connected {
		c.stats.Reconnections++
	}
	c.connected = true
	c.needsConfig = true
	c.mu.Unlock()
	return nil
}

// configureIfNeeded sends density, speed and media after a (re)connect or
// a settings change.
func (c *Controller) configureIfNeeded(snap settings.Settings) error {
	c.mu.Lock()
	needed := c.needsConfig
	c.mu.Unlock()
	if !needed {
		return nil
	}

	if err := c.tx.Configure(c.link, snap); err != nil {
		return err
	}

	c.mu.Lock()
	// A settings change during Configure keeps the flag set.
	if !settings.DeviceConfigChanged(snap, c.settings) {
		c.needsConfig = false
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) rasterFor(j *job, snap settings.Settings) (*m110.Raster, error) {
	c.mu.Lock()
	r, b := j.raster, j.bitmap
	c.mu.Unlock()

	if r != nil {
		return r, nil
	}
	r, err := m110.Pack(b, m110.PackOptions{
		XOffsetBits: snap.XOffsetBits,
		YOffsetRows: snap.YOffsetRows,
		ByteWidth:   m110.PrintheadBytes,
	})
	if err != nil {
		return nil, err
	}

	// Keep the packed raster so a retry does not repack with newer offsets.
	c.mu.Lock()
	j.raster, j.bitmap = r, nil
	c.mu.Unlock()
	return r, nil
}

func (c *Controller) progress(j *job) func(sent, total int) {
	if c.onEvent == nil {
		return nil
	}
	return func(sent, total int) {
		c.emit(Event{
			Name:      "job_progress",
			JobID:     j.id,
			Kind:      j.kind,
			State:     StatePrinting,
			Attempt:   j.attempts,
			BytesSent: sent,
			Total:     total,
			At:        c.clock.Now(),
		})
	}
}

// feed advances the paper after a successful print. A failure here does not
// fail the job; the label is already printed.
func (c *Controller) feed(snap settings.Settings) {
	if snap.FeedLines <= 0 {
		return
	}
	if _, err := c.link.Write(m110.MustEncode(m110.Feed(uint8(snap.FeedLines)))); err != nil {
		c.log.Warn().Str("event", "feed_failed").Err(err).Msg("paper feed failed")
	}
}

func (c *Controller) succeed(j *job, r *m110.Raster) {
	c.mu.Lock()
	c.stats.BytesSent += uint64(len(r.Data))
	c.finishLocked(j, StateDone, nil)
	ev := c.eventLocked("job_done", j)
	ev.BytesSent = len(r.Data)
	c.notifyLocked()
	c.mu.Unlock()

	c.log.Info().Str("event", "job_done").Str("job_id", j.id).
		Int("attempt", j.attempts).Int("bytes_sent", ev.BytesSent).Msg("job done")
	c.emit(ev)
}

func (c *Controller) fail(j *job, err error) {
	c.mu.Lock()
	c.finishLocked(j, StateFailed, err)
	ev := c.eventLocked("job_failed", j)
	c.notifyLocked()
	c.mu.Unlock()

	c.log.Error().Str("event", "job_failed").Str("job_id", j.id).
		Int("attempt", j.attempts).Str("kind", ErrorKind(err)).Err(err).Msg("job failed")
	c.emit(ev)
}

// requeue puts j back at the head of the queue and drops the link so the
// next attempt starts on a fresh connection.
func (c *Controller) requeue(j *job, err error) {
	c.link.Close()

	c.mu.Lock()
	j.state = StateQueued
	j.err = err
	c.queue.PushFront(j)
	c.needsConfig = true
	c.stats.Requeued++
	ev := c.eventLocked("job_requeued", j)
	c.notifyLocked()
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}

	c.log.Warn().Str("event", "job_requeued").Str("job_id", j.id).
		Int("attempt", j.attempts).Err(err).Msg("transient failure, job requeued")
	c.emit(ev)
}

// heartbeatLoop probes the link while idle. A tick is skipped when the
// worker holds the link.
func (c *Controller) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.heartbeatOnce()
		}
	}
}

func (c *Controller) heartbeatOnce() bool {
	if !c.linkMu.TryLock() {
		c.log.Debug().Str("event", "heartbeat_skipped").Msg("link busy")
		return false
	}
	defer c.linkMu.Unlock()

	if !c.link.IsOpen() {
		return false
	}
	if err := c.link.Heartbeat(); err != nil {
		c.mu.Lock()
		c.needsConfig = true
		c.mu.Unlock()
		return false
	}
	return true
}
