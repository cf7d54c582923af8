// Package conn owns per-connection state (C2) and the send pipeline (C3):
// the connection table, the FIFO send queue with backpressure, and the
// reference-counted deferred-close discipline that replaces the source's
// sleep-based race workaround (SPEC_FULL §5.5).
package conn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/kestrelnet/wsresp/api"
)

// Decoder is the uniform per-connection protocol state machine contract
// (spec §4.6, spec §9 "tagged variant"): OnData consumes as many
// complete frames as the buffer holds and returns the number of bytes it
// consumed. Unconsumed bytes remain for the next call.
type Decoder interface {
	OnData(data []byte) (consumed int, err error)
	// HeartbeatEnabled reports whether the raw in-band heartbeat magic may
	// be enqueued for this connection (spec §3: WebSocket disables it).
	HeartbeatEnabled() bool
	Close()
}

// Connection is the per-connection state of spec §3: socket, send queue,
// last-activity timestamp, per-connection send lock, bound decoder and a
// reference count protecting against close racing an in-flight operation.
type Connection struct {
	Handle api.Handle
	Fd     int

	lastActive atomic.Int64 // UnixNano

	sendMu       sync.Mutex
	sendQueue    *queue.Queue
	interestMask api.EventMask

	decoder atomic.Pointer[Decoder]

	refs    atomic.Int32
	closing atomic.Bool
	closed  atomic.Bool

	OnClosed func(*Connection) // invoked exactly once when refs reach zero post-closing
}

// NewConnection constructs a Connection bound to fd, interest starting at
// Read only (spec §3: writable interest is armed iff the send queue is
// non-empty, and it starts empty).
func NewConnection(h api.Handle, fd int) *Connection {
	c := &Connection{
		Handle:       h,
		Fd:           fd,
		sendQueue:    queue.New(),
		interestMask: api.Read,
	}
	c.Touch()
	return c
}

// Touch updates last-activity on every successful non-zero-byte read,
// including heartbeat-only reads (spec §3).
func (c *Connection) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the last-activity timestamp.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// SetDecoder binds the protocol decoder exactly once; lifecycle = connection
// lifetime (spec §3: "once bound, does not change"). Calls after the first
// leave the bound decoder in place.
func (c *Connection) SetDecoder(d Decoder) {
	c.decoder.CompareAndSwap(nil, &d)
}

// Decoder returns the bound decoder, or nil if no protocol has been
// selected yet (spec §4.6: late selection).
func (c *Connection) Decoder() Decoder {
	p := c.decoder.Load()
	if p == nil {
		return nil
	}
	return *p
}

// InterestMask returns the current readiness subscription.
func (c *Connection) InterestMask() api.EventMask {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.interestMask
}

// Acquire increments the reference count; callers (application callbacks,
// the send pipeline) must hold a reference for the duration of any
// operation that touches the connection, so Close can defer teardown
// instead of sleeping (SPEC_FULL §5.5).
func (c *Connection) Acquire() bool {
	if c.closed.Load() {
		return false
	}
	c.refs.Add(1)
	if c.closed.Load() {
		c.release()
		return false
	}
	return true
}

// Release drops a reference taken by Acquire, finalizing close if the
// connection is marked closing and this was the last reference.
func (c *Connection) Release() {
	c.release()
}

func (c *Connection) release() {
	if c.refs.Add(-1) == 0 && c.closing.Load() {
		c.finalize()
	}
}

// MarkClosing flags the connection for teardown. Finalization happens
// immediately if no references are outstanding, otherwise it is deferred
// to the last Release.
func (c *Connection) MarkClosing() {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	if c.refs.Load() == 0 {
		c.finalize()
	}
}

func (c *Connection) finalize() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if d := c.Decoder(); d != nil {
		d.Close()
	}
	if c.OnClosed != nil {
		c.OnClosed(c)
	}
}

// Closed reports whether the connection has been finalized.
func (c *Connection) Closed() bool { return c.closed.Load() }
