// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/m110/pkg/link"
	"github.com/Thermoquad/m110/pkg/m110"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLink struct {
	mu           sync.Mutex
	open         bool
	openFailures int
	failWrite    func(p []byte) error
	writes       [][]byte
	opens        int
	reconnects   int
	closes       int
	heartbeats   int
}

func (l *fakeLink) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opens++
	return l.openLocked()
}

func (l *fakeLink) openLocked() error {
	if l.openFailures > 0 {
		l.openFailures--
		return link.ErrUnavailable
	}
	l.open = true
	return nil
}

func (l *fakeLink) Reconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reconnects++
	l.open = false
	return l.openLocked()
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return 0, link.ErrUnavailable
	}
	if l.failWrite != nil {
		if err := l.failWrite(p); err != nil {
			return 0, err
		}
	}
	l.writes = append(l.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (l *fakeLink) Heartbeat() error {
	l.mu.Lock()
	l.heartbeats++
	l.mu.Unlock()
	_, err := l.Write([]byte{0x1B, 0x40})
	return err
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	l.open = false
	return nil
}

func (l *fakeLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *fakeLink) count(want []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.writes {
		if bytes.Equal(w, want) {
			n++
		}
	}
	return n
}

type memStore struct {
	saved []settings.Settings
}

func (m *memStore) Save(s settings.Settings) error {
	m.saved = append(m.saved, s)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) record(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) named(name string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func newTestController(t *testing.T, l *fakeLink, s settings.Settings) (*Controller, *eventLog, *memStore) {
	t.Helper()
	events := &eventLog{}
	store := &memStore{}
	c := New(Config{
		Link:              l,
		Settings:          s,
		Store:             store,
		Clock:             &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		HeartbeatInterval: -1,
		OnEvent:           events.record,
		Log:               zerolog.Nop(),
	})
	return c, events, store
}

func run(t *testing.T, c *Controller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func wait(t *testing.T, c *Controller, id string) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := c.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s) error = %v (state %v)", id, err, st.State)
	}
	return st
}

func blankRaster(t *testing.T, rows int) *m110.Raster {
	t.Helper()
	r, err := m110.NewRaster(m110.PrintheadBytes, rows, make([]byte, m110.PrintheadBytes*rows))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func isPayload(p []byte) bool {
	return len(p) > m110.RasterHeaderSize
}

func TestController_Ordering(t *testing.T) {
	l := &fakeLink{}
	c, events, _ := newTestController(t, l, settings.Default())

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := c.Submit(blankRaster(t, 2), KindRaw)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		ids = append(ids, id)
	}

	run(t, c)
	for _, id := range ids {
		if st := wait(t, c, id); st.State != StateDone {
			t.Fatalf("job %s = %v, want done", id, st)
		}
	}

	done := events.named("job_done")
	if len(done) != len(ids) {
		t.Fatalf("done events = %d, want %d", len(done), len(ids))
	}
	for i, ev := range done {
		if ev.JobID != ids[i] {
			t.Errorf("done[%d] = %s, want %s", i, ev.JobID, ids[i])
		}
	}

	stats := c.Stats()
	if stats.Total != 5 || stats.Succeeded != 5 || stats.Failed != 0 || stats.QueueLen != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.LastPrintAt.IsZero() {
		t.Error("LastPrintAt not recorded")
	}
}

func TestController_Backpressure(t *testing.T) {
	l := &fakeLink{}
	events := &eventLog{}
	c := New(Config{
		Link:              l,
		Settings:          settings.Default(),
		Clock:             &fakeClock{},
		QueueBound:        3,
		HeartbeatInterval: -1,
		OnEvent:           events.record,
		Log:               zerolog.Nop(),
	})

	for i := 0; i < 3; i++ {
		if _, err := c.Submit(blankRaster(t, 1), KindRaw); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	before := c.Jobs()

	_, err := c.Submit(blankRaster(t, 1), KindRaw)
	if !errors.Is(err, ErrBackpressure) {
		t.Fatalf("Submit() error = %v, want ErrBackpressure", err)
	}
	if got := c.Stats().QueueLen; got != 3 {
		t.Errorf("QueueLen = %d, want 3", got)
	}
	if after := c.Jobs(); len(after) != len(before) {
		t.Errorf("Jobs() = %d, want %d", len(after), len(before))
	}
	if got := c.Stats().Total; got != 3 {
		t.Errorf("Total = %d, want 3", got)
	}
}

func TestController_TransientRequeue(t *testing.T) {
	s := settings.Default()
	s.PerChunkRetries = 1

	failed := false
	l := &fakeLink{failWrite: func(p []byte) error {
		if isPayload(p) && !failed {
			failed = true
			return link.ErrIO
		}
		return nil
	}}
	c, events, _ := newTestController(t, l, s)

	id, err := c.Submit(blankRaster(t, 1), KindRaw)
	if err != nil {
		t.Fatal(err)
	}
	run(t, c)

	st := wait(t, c, id)
	if st.State != StateDone {
		t.Fatalf("Status = %v (%v), want done", st, st.Err)
	}
	if st.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", st.Attempts)
	}
	if len(events.named("job_requeued")) != 1 {
		t.Errorf("requeued events = %d, want 1", len(events.named("job_requeued")))
	}
	if c.Stats().Requeued != 1 {
		t.Errorf("Requeued = %d, want 1", c.Stats().Requeued)
	}
	if c.Stats().Reconnections != 1 {
		t.Errorf("Reconnections = %d, want 1", c.Stats().Reconnections)
	}
	// Reconnect re-sends density, speed and media.
	if got := l.count([]byte{0x1F, 0x11, 0x0A}); got != 2 {
		t.Errorf("media commands = %d, want 2", got)
	}
}

func TestController_RetriesExhausted(t *testing.T) {
	s := settings.Default()
	s.PerChunkRetries = 2
	s.JobMaxRetries = 3

	l := &fakeLink{failWrite: func(p []byte) error {
		if isPayload(p) {
			return link.ErrTimeout
		}
		return nil
	}}
	c, _, _ := newTestController(t, l, s)

	id, _ := c.Submit(blankRaster(t, 1), KindRaw)
	run(t, c)

	st := wait(t, c, id)
	if st.State != StateFailed {
		t.Fatalf("Status = %v, want failed", st)
	}
	if st.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", st.Attempts)
	}
	if st.FailureKind() != "chunk_write_failed" {
		t.Errorf("FailureKind() = %q, want chunk_write_failed", st.FailureKind())
	}
	if stats := c.Stats(); stats.Failed != 1 || stats.Succeeded != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestController_Unreachable(t *testing.T) {
	s := settings.Default()
	s.ConnectAttempts = 5

	l := &fakeLink{openFailures: 5}
	c, _, _ := newTestController(t, l, s)

	id, _ := c.Submit(blankRaster(t, 1), KindRaw)
	run(t, c)

	st := wait(t, c, id)
	if st.State != StateFailed || !errors.Is(st.Err, ErrUnreachable) {
		t.Fatalf("Status = %v (%v), want failed{unreachable}", st, st.Err)
	}
	if st.String() != "failed{unreachable}" {
		t.Errorf("String() = %q", st.String())
	}
	l.mu.Lock()
	tries := l.opens + l.reconnects
	l.mu.Unlock()
	if tries != 5 {
		t.Errorf("open attempts = %d, want 5", tries)
	}

	// The controller is still usable once the printer comes back.
	id2, _ := c.Submit(blankRaster(t, 1), KindRaw)
	if st := wait(t, c, id2); st.State != StateDone {
		t.Errorf("second job = %v (%v), want done", st, st.Err)
	}
}

func TestController_FatalOverflow(t *testing.T) {
	s := settings.Default()
	s.XOffsetBits = 8

	l := &fakeLink{}
	c, _, _ := newTestController(t, l, s)

	id, err := c.SubmitBitmap(m110.NewBitmap(m110.PrintheadDots, 4), KindImage)
	if err != nil {
		t.Fatalf("SubmitBitmap() error = %v", err)
	}
	run(t, c)

	st := wait(t, c, id)
	if st.State != StateFailed || st.FailureKind() != "overflow" {
		t.Fatalf("Status = %v (%v), want failed{overflow}", st, st.Err)
	}
	if st.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", st.Attempts)
	}
}

func TestController_SubmitBitmapUsesOffsets(t *testing.T) {
	s := settings.Default()
	s.XOffsetBits = 8
	s.YOffsetRows = 1

	l := &fakeLink{}
	c, _, _ := newTestController(t, l, s)

	b := m110.NewBitmap(8, 1)
	b.Data[0] = 0xFF
	id, _ := c.SubmitBitmap(b, KindImage)
	run(t, c)
	if st := wait(t, c, id); st.State != StateDone {
		t.Fatalf("Status = %v (%v), want done", st, st.Err)
	}

	want := make([]byte, 96)
	want[48+1] = 0xFF
	if l.count(want) != 1 {
		t.Error("payload does not reflect x/y offsets")
	}
	if got := c.Stats().ImageJobs; got != 1 {
		t.Errorf("ImageJobs = %d, want 1", got)
	}
}

func TestController_FeedAfterPrint(t *testing.T) {
	s := settings.Default()
	s.FeedLines = 2
	l := &fakeLink{}
	c, _, _ := newTestController(t, l, s)

	id, _ := c.Submit(blankRaster(t, 1), KindRaw)
	run(t, c)
	wait(t, c, id)

	l.mu.Lock()
	last := l.writes[len(l.writes)-1]
	l.mu.Unlock()
	if !bytes.Equal(last, []byte{0x1B, 0x64, 0x02}) {
		t.Errorf("last write = % X, want 1B 64 02", last)
	}
}

func TestController_ClearQueue(t *testing.T) {
	c, _, _ := newTestController(t, &fakeLink{}, settings.Default())

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := c.Submit(blankRaster(t, 1), KindText)
		ids = append(ids, id)
	}

	if got := c.ClearQueue(); got != 3 {
		t.Fatalf("ClearQueue() = %d, want 3", got)
	}
	for _, id := range ids {
		if st := c.Status(id); st.String() != "failed{cleared}" {
			t.Errorf("Status(%s) = %v, want failed{cleared}", id, st)
		}
	}
	stats := c.Stats()
	if stats.QueueLen != 0 || stats.Cleared != 3 || stats.Failed != 0 || stats.TextJobs != 3 {
		t.Errorf("Stats() = %+v", stats)
	}
	if got := c.ClearQueue(); got != 0 {
		t.Errorf("second ClearQueue() = %d, want 0", got)
	}
}

func TestController_StatusUnknown(t *testing.T) {
	c, _, _ := newTestController(t, &fakeLink{}, settings.Default())
	if st := c.Status("no-such-job"); st.State != StateUnknown {
		t.Errorf("Status() = %v, want unknown", st)
	}
}

func TestController_UpdateSettings(t *testing.T) {
	l := &fakeLink{}
	c, _, store := newTestController(t, l, settings.Default())

	_, err := c.UpdateSettings(settings.Patch{"density": []byte("99")})
	var invalidErr *settings.InvalidError
	if !errors.As(err, &invalidErr) || invalidErr.Field != "density" {
		t.Fatalf("UpdateSettings() error = %v, want invalid density", err)
	}
	if len(store.saved) != 0 {
		t.Error("invalid settings were persisted")
	}
	if c.Settings() != settings.Default() {
		t.Error("invalid update changed settings")
	}

	got, err := c.UpdateSettings(settings.Patch{"density": []byte("12"), "bogus": []byte("1")})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got.Density != 12 || c.Settings().Density != 12 {
		t.Errorf("Density = %d, want 12", got.Density)
	}
	if len(store.saved) != 1 || store.saved[0].Density != 12 {
		t.Errorf("saved = %+v, want density 12", store.saved)
	}
}

func TestController_SettingsChangeReconfigures(t *testing.T) {
	l := &fakeLink{}
	c, _, _ := newTestController(t, l, settings.Default())
	run(t, c)

	id, _ := c.Submit(blankRaster(t, 1), KindRaw)
	wait(t, c, id)

	// Same connection, no settings change: no reconfiguration.
	id, _ = c.Submit(blankRaster(t, 1), KindRaw)
	wait(t, c, id)
	if got := l.count([]byte{0x1B, 0x4E, 0x04, 0x08}); got != 1 {
		t.Fatalf("density 8 commands = %d, want 1", got)
	}

	if _, err := c.UpdateSettings(settings.Patch{"density": []byte("10")}); err != nil {
		t.Fatal(err)
	}
	id, _ = c.Submit(blankRaster(t, 1), KindRaw)
	wait(t, c, id)
	if got := l.count([]byte{0x1B, 0x4E, 0x04, 0x0A}); got != 1 {
		t.Errorf("density 10 commands = %d, want 1", got)
	}
}

func TestController_ForceReconnect(t *testing.T) {
	l := &fakeLink{}
	c, _, _ := newTestController(t, l, settings.Default())
	run(t, c)

	id, _ := c.Submit(blankRaster(t, 1), KindRaw)
	wait(t, c, id)

	c.ForceReconnect()
	if l.IsOpen() {
		t.Fatal("link still open after ForceReconnect")
	}

	id, _ = c.Submit(blankRaster(t, 1), KindRaw)
	if st := wait(t, c, id); st.State != StateDone {
		t.Fatalf("Status = %v, want done", st)
	}
	l.mu.Lock()
	opens := l.opens
	l.mu.Unlock()
	if opens != 2 {
		t.Errorf("opens = %d, want 2", opens)
	}
	if got := c.Stats().Reconnections; got != 1 {
		t.Errorf("Reconnections = %d, want 1", got)
	}
}

func TestController_HeartbeatSkippedWhileBusy(t *testing.T) {
	l := &fakeLink{open: true}
	c, _, _ := newTestController(t, l, settings.Default())

	c.linkMu.Lock()
	if c.heartbeatOnce() {
		t.Error("heartbeatOnce() ran while link held")
	}
	c.linkMu.Unlock()

	if !c.heartbeatOnce() {
		t.Error("heartbeatOnce() skipped on idle link")
	}
	if l.heartbeats != 1 {
		t.Errorf("heartbeats = %d, want 1", l.heartbeats)
	}

	l.Close()
	if c.heartbeatOnce() {
		t.Error("heartbeatOnce() probed a closed link")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err       error
		want      string
		transient bool
	}{
		{err: link.ErrIO, want: "io", transient: true},
		{err: link.ErrTimeout, want: "timeout", transient: true},
		{err: link.ErrUnavailable, want: "unavailable", transient: true},
		{err: m110.ErrOverflow, want: "overflow", transient: false},
		{err: m110.ErrInvalidSource, want: "invalid_source", transient: false},
		{err: ErrUnreachable, want: "unreachable", transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
			}
			if got := isTransient(tt.err); got != tt.transient {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.transient)
			}
		})
	}
}
