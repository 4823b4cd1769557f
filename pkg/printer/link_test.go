// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/m110/pkg/link"
	"github.com/Thermoquad/m110/pkg/settings"
	"github.com/rs/zerolog"
)

// memPort is an in-memory device behind a real link.Link. Underlying
// writes listed in failAt (1-based) fail once with the mapped error.
type memPort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	failAt map[int]error
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	if err, ok := p.failAt[p.writes]; ok {
		return 0, err
	}
	return p.buf.Write(b)
}

func (p *memPort) Close() error { return nil }

func (p *memPort) bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf.Bytes()...)
}

type memOpener struct {
	port  *memPort
	mu    sync.Mutex
	opens int
}

func (o *memOpener) String() string { return "mem" }

func (o *memOpener) Open(ctx context.Context) (link.Port, error) {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()
	return o.port, nil
}

func newLinkController(t *testing.T, port *memPort) (*Controller, *memOpener) {
	t.Helper()
	opener := &memOpener{port: port}
	l := link.New(opener, link.Options{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}, zerolog.Nop())
	c := New(Config{
		Link:              l,
		Settings:          settings.Default(),
		Clock:             &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		HeartbeatInterval: -1,
		Log:               zerolog.Nop(),
	})
	return c, opener
}

// Underlying writes: 1-3 configuration, 4-6 prelude, 7 header, 8 first payload chunk.
const firstPayloadWrite = 8

func TestController_LinkChunkRetry(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantOpens      int
		wantReconnects uint64
	}{
		{"io error keeps link open", errors.New("input/output error"), 1, 0},
		{"device gone reopens link", fs.ErrClosed, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &memPort{failAt: map[int]error{firstPayloadWrite: tt.err}}
			c, opener := newLinkController(t, port)
			run(t, c)

			id, err := c.Submit(blankRaster(t, 10), KindRaw)
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			st := wait(t, c, id)
			if st.State != StateDone || st.Attempts != 1 {
				t.Fatalf("Status = %v after %d attempts, want done after 1", st, st.Attempts)
			}

			stats := c.Stats()
			if stats.Requeued != 0 || stats.Reconnections != tt.wantReconnects {
				t.Errorf("Requeued = %d, Reconnections = %d, want 0 and %d",
					stats.Requeued, stats.Reconnections, tt.wantReconnects)
			}
			opener.mu.Lock()
			opens := opener.opens
			opener.mu.Unlock()
			if opens != tt.wantOpens {
				t.Errorf("opens = %d, want %d", opens, tt.wantOpens)
			}

			// Each payload byte reaches the device once: 480 bytes of payload
			// between the header and the trailing reset and feed.
			got := port.bytes()
			header := []byte{0x1D, 0x76, 0x30, 0x00, 0x30, 0x00, 0x0A, 0x00}
			i := bytes.Index(got, header)
			if i < 0 {
				t.Fatalf("stream % X has no raster header", got)
			}
			want := append(make([]byte, 480), 0x1B, 0x64, 0x00, 0x1B, 0x64, 0x02)
			if rest := got[i+len(header):]; !bytes.Equal(rest, want) {
				t.Errorf("after header got %d bytes, want %d", len(rest), len(want))
			}
		})
	}
}
