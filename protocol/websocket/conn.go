package websocket

import (
	"unicode/utf8"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/conn"
)

// State is the WebSocket connection state machine of spec §4.7:
// CONNECTING -> OPEN -> CLOSING -> CLOSED, monotonic, CLOSED terminal.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// sender is the minimal send-pipeline contract Conn needs.
type sender interface {
	Send(mux interface{ Modify(fd int, mask api.EventMask) error }, data []byte) error
}

// PacketCallback delivers a fully decoded/reassembled TEXT or BINARY
// message payload to the application (spec §4.7 "deliver payload to the
// application packet callback").
type PacketCallback func(h api.Handle, payload []byte)

// Conn is the conn.Decoder implementation for WebSocket connections (C7):
// it owns the handshake, the per-connection decode buffer, the state
// machine and continuation-frame reassembly.
type Conn struct {
	handle api.Handle
	send   sender
	mux    interface{ Modify(fd int, mask api.EventMask) error }
	onMsg  PacketCallback

	state State
	buf   []byte

	// reassembly holds the in-progress fragmented message, started by a
	// TEXT/BINARY frame with Fin=false and continued by OpContinuation
	// frames until one arrives with Fin=true (SPEC_FULL §5.4).
	reassembling bool
	reassembleOp byte
	reassembled  []byte
}

// NewConn constructs a WebSocket decoder bound to handle, replying through
// send/mux and delivering decoded messages to onMsg.
func NewConn(handle api.Handle, c sender, mux interface{ Modify(fd int, mask api.EventMask) error }, onMsg PacketCallback) *Conn {
	return &Conn{handle: handle, send: c, mux: mux, onMsg: onMsg, state: StateConnecting}
}

// State returns the current connection state.
func (c *Conn) State() State { return c.state }

// OnData implements conn.Decoder. It always incorporates the full input
// into its internal buffer and returns len(data); complete frames/
// handshake bytes are consumed from that buffer as they arrive.
func (c *Conn) OnData(data []byte) (int, error) {
	c.buf = append(c.buf, data...)

	if c.state == StateConnecting {
		if err := c.tryHandshake(); err != nil {
			c.state = StateClosed
			return len(data), err
		}
		if c.state == StateConnecting {
			// Still waiting on more header bytes.
			return len(data), nil
		}
	}

	for c.state == StateOpen {
		frame, n, err := DecodeFrame(c.buf)
		if err != nil {
			c.protocolError(err)
			return len(data), err
		}
		if n == 0 {
			break
		}
		c.buf = c.buf[n:]
		if err := c.handleFrame(frame); err != nil {
			return len(data), err
		}
	}
	return len(data), nil
}

func (c *Conn) tryHandshake() error {
	accept, n, err := ParseHandshake(c.buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	c.buf = c.buf[n:]
	if err := c.send.Send(c.mux, HandshakeResponse(accept)); err != nil {
		return err
	}
	c.state = StateOpen
	return nil
}

// handleFrame applies spec §4.7's decoding rules to one decoded frame.
func (c *Conn) handleFrame(f *Frame) error {
	switch f.Opcode {
	case OpPing:
		return c.send.Send(c.mux, EncodeFrame(OpPong, f.Payload))

	case OpPong:
		return nil

	case OpClose:
		c.state = StateClosed
		return nil

	case OpText, OpBinary, OpContinuation:
		return c.handleDataFrame(f)

	default:
		c.protocolError(ErrBadOpcode)
		return ErrBadOpcode
	}
}

// handleDataFrame reassembles continuation frames (SPEC_FULL §5.4: the
// original does not reassemble; this implementation does) and validates
// UTF-8 on the complete TEXT payload before delivery.
func (c *Conn) handleDataFrame(f *Frame) error {
	switch {
	case f.Opcode == OpContinuation:
		if !c.reassembling {
			c.protocolError(ErrBadOpcode)
			return ErrBadOpcode
		}
		c.reassembled = append(c.reassembled, f.Payload...)
	case c.reassembling:
		// RFC 6455 §5.4 forbids starting a new data frame before the
		// previous fragmented message completes.
		c.protocolError(ErrBadOpcode)
		return ErrBadOpcode
	case !f.Fin:
		c.reassembling = true
		c.reassembleOp = f.Opcode
		c.reassembled = append([]byte(nil), f.Payload...)
		return nil
	default:
		// Single-frame message: deliver directly without touching the
		// reassembly buffer.
		return c.deliver(f.Opcode, f.Payload)
	}

	if !f.Fin {
		return nil
	}
	c.reassembling = false
	op := c.reassembleOp
	payload := c.reassembled
	c.reassembled = nil
	return c.deliver(op, payload)
}

func (c *Conn) deliver(opcode byte, payload []byte) error {
	if opcode == OpText && !utf8.Valid(payload) {
		return c.closeWith(CloseInvalidPayload, "Invalid UTF-8 in TEXT frame")
	}
	if c.onMsg != nil {
		c.onMsg(c.handle, payload)
	}
	return nil
}

// protocolError sends CLOSE(1003) and transitions to CLOSED, per spec
// §4.7 "Any other opcode -> protocol error -> send CLOSE(1003) -> CLOSED".
func (c *Conn) protocolError(_ error) {
	_ = c.closeWith(CloseUnsupportedData, "protocol error")
}

// closeWith sends a CLOSE frame with the given code/reason and transitions
// to CLOSED, used for invalid UTF-8 (1007) and protocol errors (1003).
func (c *Conn) closeWith(code uint16, reason string) error {
	err := c.send.Send(c.mux, EncodeFrame(OpClose, PackClose(code, reason)))
	c.state = StateClosed
	return err
}

// SendText validates UTF-8 and, if valid, frames and sends a TEXT message.
// Invalid payloads are rejected (not sent), per spec §4.7 encoding rules.
func (c *Conn) SendText(payload []byte) error {
	if !utf8.Valid(payload) {
		return ErrInvalidOutboundUTF8
	}
	return c.send.Send(c.mux, EncodeFrame(OpText, payload))
}

// SendBinary frames and sends a BINARY message.
func (c *Conn) SendBinary(payload []byte) error {
	return c.send.Send(c.mux, EncodeFrame(OpBinary, payload))
}

// HeartbeatEnabled is false for WebSocket connections: raw in-band
// heartbeat bytes would be parsed as a malformed frame by the peer.
// Liveness is by PING/PONG instead (spec §3, §4.5).
func (c *Conn) HeartbeatEnabled() bool { return false }

// Close transitions to CLOSED without sending a frame (application-
// initiated close, spec §4.7 transition table).
func (c *Conn) Close() { c.state = StateClosed }

var _ conn.Decoder = (*Conn)(nil)
