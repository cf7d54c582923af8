package resp

import (
	"bytes"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/conn"
	"github.com/kestrelnet/wsresp/heartbeat"
)

// sender is the minimal send-pipeline contract Conn needs.
type sender interface {
	Send(mux interface{ Modify(fd int, mask api.EventMask) error }, data []byte) error
}

// Conn is the conn.Decoder implementation for RESP connections (C8): it
// filters the in-band heartbeat magic, accumulates bytes in a streaming
// buffer, decodes commands greedily and writes replies back through the
// send pipeline so broadcast/heartbeat/replies interleave at chunk
// boundaries, never mid-reply (spec §4.8).
type Conn struct {
	store *Store
	send  sender
	mux   interface{ Modify(fd int, mask api.EventMask) error }
	buf   []byte
}

// NewConn constructs a RESP decoder bound to c, replying through send/mux.
func NewConn(store *Store, c sender, mux interface{ Modify(fd int, mask api.EventMask) error }) *Conn {
	return &Conn{store: store, send: c, mux: mux}
}

// OnData implements conn.Decoder. It always incorporates the full input
// into its internal buffer and returns len(data): leftover partial
// commands remain in that internal buffer for the next call, per spec
// §4.6's "unconsumed bytes remain in the decoder's internal buffer".
func (c *Conn) OnData(data []byte) (int, error) {
	c.buf = append(c.buf, data...)

	for {
		c.buf = stripHeartbeatMagic(c.buf)

		args, n, err := Decode(c.buf)
		if err != nil {
			return len(data), err
		}
		if n == 0 {
			break
		}
		c.buf = c.buf[n:]

		if len(args) > 0 {
			reply := Execute(c.store, args)
			if sendErr := c.send.Send(c.mux, reply); sendErr != nil {
				return len(data), sendErr
			}
		}
	}
	return len(data), nil
}

// HeartbeatEnabled is true for RESP connections: the in-band magic marker
// is the default liveness mechanism (spec §4.5).
func (c *Conn) HeartbeatEnabled() bool { return true }

// Close releases decoder-owned resources. The RESP decoder owns none
// beyond its buffer, so this is a no-op.
func (c *Conn) Close() {}

var _ conn.Decoder = (*Conn)(nil)

// stripHeartbeatMagic repeatedly removes a leading heartbeat marker from
// buf's head before RESP parsing resumes (spec §4.8).
func stripHeartbeatMagic(buf []byte) []byte {
	for len(buf) >= len(heartbeat.Magic) && bytes.Equal(buf[:len(heartbeat.Magic)], heartbeat.Magic) {
		buf = buf[len(heartbeat.Magic):]
	}
	return buf
}
