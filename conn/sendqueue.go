package conn

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/wsresp/api"
)

// ErrClosed is returned when Send/Drain operate against a connection past
// the point a fatal I/O error or peer close was observed.
var ErrClosed = errors.New("conn: connection closed")

// chunk is one unsent tail of a Send call; Payload shrinks in place as the
// drain loop writes partial chunks (spec §4.3 invariant).
type chunk struct {
	payload []byte
}

// Send enqueues bytes for handle h, per spec §4.3's numbered algorithm:
// attempt an immediate non-blocking write when the queue is empty, buffer
// the unsent tail otherwise, and arm WRITE interest whenever the queue is
// left non-empty. Always non-blocking; success only means the bytes are
// durably queued, not that they reached the wire.
//
// mux is consulted to (re)arm interest; it may be nil in tests that only
// exercise queue semantics.
func (c *Connection) Send(mux interface{ Modify(fd int, mask api.EventMask) error }, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	if c.sendQueue.Length() > 0 {
		c.sendQueue.Add(chunk{payload: data})
		return c.armWriteLocked(mux)
	}

	n, err := unix.Write(c.Fd, data)
	switch {
	case err == nil && n == len(data):
		return nil
	case err == nil:
		// Partial write: buffer the unsent tail.
		c.sendQueue.Add(chunk{payload: data[n:]})
		return c.armWriteLocked(mux)
	case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
		c.sendQueue.Add(chunk{payload: data})
		return c.armWriteLocked(mux)
	default:
		return err
	}
}

// armWriteLocked arms WRITE interest; caller holds sendMu.
func (c *Connection) armWriteLocked(mux interface{ Modify(fd int, mask api.EventMask) error }) error {
	c.interestMask |= api.Write
	if mux == nil {
		return nil
	}
	return mux.Modify(c.Fd, c.interestMask)
}

// Drain writes as much of the queue as the socket will currently accept,
// triggered by a WRITE readiness event from C1 (Send performs its own
// immediate write and does not call Drain). Clears WRITE interest once the
// queue empties (spec §4.3 step 3).
func (c *Connection) Drain(mux interface{ Modify(fd int, mask api.EventMask) error }) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	for c.sendQueue.Length() > 0 {
		head := c.sendQueue.Peek().(chunk)
		n, err := unix.Write(c.Fd, head.payload)
		switch {
		case err == nil && n == len(head.payload):
			c.sendQueue.Remove()
		case err == nil:
			// Replace the head with its unsent tail: re-add the tail, then
			// rotate the chunks behind it so the tail is at the front again.
			c.sendQueue.Remove()
			rest := c.sendQueue.Length()
			c.sendQueue.Add(chunk{payload: head.payload[n:]})
			for i := 0; i < rest; i++ {
				next := c.sendQueue.Peek()
				c.sendQueue.Remove()
				c.sendQueue.Add(next)
			}
			// Not all written; the socket buffer is full, stop for now.
			return c.rearmLocked(mux)
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			return c.rearmLocked(mux)
		default:
			return err
		}
	}
	return c.rearmLocked(mux)
}

// rearmLocked reconciles WRITE interest with queue occupancy (invariant
// P2: WRITE ∈ interest_mask ⇔ send_queue non-empty). Caller holds sendMu.
func (c *Connection) rearmLocked(mux interface{ Modify(fd int, mask api.EventMask) error }) error {
	if c.sendQueue.Length() > 0 {
		c.interestMask |= api.Write
	} else {
		c.interestMask &^= api.Write
	}
	if mux == nil {
		return nil
	}
	return mux.Modify(c.Fd, c.interestMask)
}

// QueueLength reports the number of unsent chunks, for backpressure tests
// and metrics (spec §8 scenario 6).
func (c *Connection) QueueLength() int {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sendQueue.Length()
}
