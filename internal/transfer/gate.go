package transfer

import (
	"io"
	"sync"

	"github.com/dmitrijs2005/securedrive/internal/common"
)

// gate is the cooperative pause/cancel point for a running batch. Workers
// call wait at chunk and job boundaries; a paused gate parks them on a
// condition variable until resume or cancel, so pausing burns no CPU.
type gate struct {
	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	cancelled bool
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// wait blocks while the gate is paused. It returns common.ErrCancelled once
// the gate is cancelled, whether or not it was paused at the time.
func (g *gate) wait() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.paused && !g.cancelled {
		g.cond.Wait()
	}
	if g.cancelled {
		return common.ErrCancelled
	}
	return nil
}

// pause suspends the gate; reports whether the state changed.
func (g *gate) pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.cancelled {
		return false
	}
	g.paused = true
	return true
}

// resume releases paused waiters; reports whether the state changed.
func (g *gate) resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused || g.cancelled {
		return false
	}
	g.paused = false
	g.cond.Broadcast()
	return true
}

// cancel marks the gate cancelled and wakes every waiter, including ones
// parked in a pause.
func (g *gate) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return
	}
	g.cancelled = true
	g.cond.Broadcast()
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *gate) isCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}

// meteredReader wraps a stream with per-read accounting and an optional
// pause/cancel checkpoint. With a gate attached, every chunk read first
// passes the gate, bounding pause latency by one chunk.
type meteredReader struct {
	r      io.Reader
	g      *gate
	onRead func(n int)
}

func (m *meteredReader) Read(p []byte) (int, error) {
	if m.g != nil {
		if err := m.g.wait(); err != nil {
			return 0, err
		}
	}
	n, err := m.r.Read(p)
	if n > 0 && m.onRead != nil {
		m.onRead(n)
	}
	return n, err
}
