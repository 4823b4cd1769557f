// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package printer serialises print jobs onto a single printer link.
//
// The Controller owns the queue, the link and the settings. One worker
// goroutine (Run) takes jobs in FIFO order, makes sure the link is open,
// hands the raster to the transmitter and records the outcome. Transient
// failures put the job back at the head of the queue after a reconnect;
// fatal ones fail the job immediately.
package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/Thermoquad/m110/pkg/transmit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults
const (
	DefaultQueueBound        = 256
	DefaultHistorySize       = 1024
	DefaultHeartbeatInterval = 30 * time.Second
)

// Link is the printer connection as used by the controller. *link.Link
// implements it.
type Link interface {
	Open(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Write(p []byte) (int, error)
	Heartbeat() error
	Close() error
	IsOpen() bool
}

// SettingsStore persists settings after a change.
type SettingsStore interface {
	Save(s settings.Settings) error
}

// Config wires a Controller.
type Config struct {
	Link        Link
	Transmitter *transmit.Transmitter
	Settings    settings.Settings
	Store       SettingsStore // optional
	Clock       transmit.Clock

	QueueBound        int
	HistorySize       int
	HeartbeatInterval time.Duration // <0 disables

	// OnEvent receives lifecycle events. Called from the worker goroutine
	// without controller locks held.
	OnEvent func(Event)
	Log     zerolog.Logger
}

// Controller is safe for concurrent use. Only Run drives the printer.
type Controller struct {
	link  Link
	tx    *transmit.Transmitter
	store SettingsStore
	clock transmit.Clock
	log   zerolog.Logger

	bound       int
	historySize int
	heartbeat   time.Duration
	onEvent     func(Event)

	// linkMu is held by the worker for a whole job and tried by the heartbeat.
	linkMu sync.Mutex

	mu          sync.Mutex
	queue       jobQueue
	jobs        map[string]*job
	history     []string
	settings    settings.Settings
	needsConfig bool
	connected   bool
	stats       *Statistics
	changed     chan struct{}
	wake        chan struct{}
}

// New creates a Controller. Call Run to start printing.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = transmit.SystemClock{}
	}
	if cfg.Transmitter == nil {
		cfg.Transmitter = transmit.New(cfg.Clock, cfg.Log)
	}
	if cfg.QueueBound <= 0 {
		cfg.QueueBound = DefaultQueueBound
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return &Controller{
		link:        cfg.Link,
		tx:          cfg.Transmitter,
		store:       cfg.Store,
		clock:       cfg.Clock,
		log:         cfg.Log,
		bound:       cfg.QueueBound,
		historySize: cfg.HistorySize,
		heartbeat:   cfg.HeartbeatInterval,
		onEvent:     cfg.OnEvent,
		jobs:        make(map[string]*job),
		settings:    cfg.Settings,
		needsConfig: true,
		stats:       NewStatistics(cfg.Clock.Now()),
		changed:     make(chan struct{}),
		wake:        make(chan struct{}, 1),
	}
}

// Submit queues a packed raster. The controller takes ownership of r.
func (c *Controller) Submit(r *m110.Raster, kind Kind) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return c.enqueue(&job{kind: kind, raster: r})
}

// SubmitBitmap queues an unpacked bitmap. It is packed when printing starts,
// using the X and Y offsets in effect at that time.
func (c *Controller) SubmitBitmap(b *m110.Bitmap, kind Kind) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	return c.enqueue(&job{kind: kind, bitmap: b})
}

func (c *Controller) enqueue(j *job) (string, error) {
	c.mu.Lock()
	if c.queue.Len() >= c.bound {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %d jobs queued", ErrBackpressure, c.bound)
	}

	j.id = uuid.NewString()
	j.state = StateQueued
	j.submittedAt = c.clock.Now()
	c.jobs[j.id] = j
	c.queue.PushBack(j)
	c.stats.recordSubmit(j.kind)
	ev := c.eventLocked("job_queued", j)
	c.notifyLocked()
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}

	c.log.Info().Str("event", "job_queued").Str("job_id", j.id).Str("kind", string(j.kind)).Msg("job queued")
	c.emit(ev)
	return j.id, nil
}

// Status returns the job's state. Unknown IDs, including jobs evicted from
// history, report StateUnknown.
func (c *Controller) Status(id string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return Status{ID: id, State: StateUnknown}
	}
	return j.status()
}

// Jobs returns every queued, printing and remembered job, oldest first.
func (c *Controller) Jobs() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(c.jobs))
	for _, id := range c.history {
		out = append(out, c.jobs[id].status())
	}
	for _, j := range c.jobs {
		if j.state == StatePrinting {
			out = append(out, j.status())
		}
	}
	for _, j := range c.queue.items {
		out = append(out, j.status())
	}
	return out
}

// ClearQueue drops every queued job and returns how many were dropped.
// A job already printing is not affected.
func (c *Controller) ClearQueue() int {
	c.mu.Lock()
	dropped := c.queue.Drain()
	events := make([]Event, 0, len(dropped))
	for _, j := range dropped {
		c.finishLocked(j, StateFailed, ErrCleared)
		events = append(events, c.eventLocked("job_cleared", j))
	}
	c.notifyLocked()
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.log.Info().Str("event", "queue_cleared").Int("count", len(dropped)).Msg("queue cleared")
	}
	for _, ev := range events {
		c.emit(ev)
	}
	return len(dropped)
}

// ForceReconnect closes the link. An in-flight write completes first; the
// next job reopens the link and reconfigures the printer.
func (c *Controller) ForceReconnect() {
	c.mu.Lock()
	c.needsConfig = true
	c.mu.Unlock()

	c.log.Info().Str("event", "force_reconnect").Msg("closing link on request")
	if err := c.link.Close(); err != nil {
		c.log.Warn().Str("event", "force_reconnect").Err(err).Msg("close failed")
	}
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.QueueLen = c.queue.Len()
	c.stats.LastPrintAt = c.tx.LastPrintAt()
	c.stats.CalculateRates(c.clock.Now())
	return *c.stats
}

// Settings returns the current settings.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings applies a partial update, persists it and returns the new
// settings. Invalid values return a *settings.InvalidError and change
// nothing. A job already printing keeps the settings it started with.
func (c *Controller) UpdateSettings(p settings.Patch) (settings.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, unknown, err := c.settings.Apply(p)
	for _, key := range unknown {
		c.log.Warn().Str("event", "settings_unknown_key").Str("key", key).Msg("ignoring unknown setting")
	}
	if err != nil {
		return c.settings, err
	}

	if c.store != nil {
		if err := c.store.Save(next); err != nil {
			return c.settings, fmt.Errorf("failed to persist settings: %w", err)
		}
	}
	if settings.DeviceConfigChanged(c.settings, next) {
		c.needsConfig = true
	}
	c.settings = next
	c.log.Info().Str("event", "settings_applied").Interface("settings", next).Msg("settings updated")
	return next, nil
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (c *Controller) Wait(ctx context.Context, id string) (Status, error) {
	for {
		c.mu.Lock()
		st := Status{ID: id, State: StateUnknown}
		if j, ok := c.jobs[id]; ok {
			st = j.status()
		}
		changed := c.changed
		c.mu.Unlock()

		if st.State == StateUnknown || st.State.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-changed:
		}
	}
}

// notifyLocked wakes every Wait call. Callers hold c.mu.
func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// finishLocked moves j to a terminal state and forgets its data. Callers hold c.mu.
func (c *Controller) finishLocked(j *job, state State, err error) {
	j.state = state
	j.err = err
	j.finishedAt = c.clock.Now()
	j.raster = nil
	j.bitmap = nil
	c.stats.recordOutcome(state, err)

	c.history = append(c.history, j.id)
	for len(c.history) > c.historySize {
		delete(c.jobs, c.history[0])
		c.history = c.history[1:]
	}
}
