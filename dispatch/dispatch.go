// Package dispatch implements protocol dispatch (C6): routing a
// connection's freshly-read bytes to its bound decoder, and late protocol
// selection from the first bytes read on a connection (spec §4.6).
package dispatch

import (
	"bytes"
	"strings"

	"github.com/kestrelnet/wsresp/conn"
)

// Protocol names the decoder family selected by sniffing.
type Protocol int

const (
	ProtocolDefault Protocol = iota
	ProtocolRESP
	ProtocolWebSocket
)

// Sniff inspects the first bytes read on a connection with no decoder yet
// bound and reports which protocol family to instantiate, per spec §4.6:
//   - first byte '*'                         -> RESP
//   - "GET " line plus Upgrade: websocket     -> WebSocket
//   - otherwise                                -> defaultProtocol
func Sniff(data []byte, defaultProtocol Protocol) Protocol {
	if len(data) == 0 {
		return defaultProtocol
	}
	if data[0] == '*' {
		return ProtocolRESP
	}
	if bytes.HasPrefix(data, []byte("GET ")) {
		lower := strings.ToLower(string(data))
		if strings.Contains(lower, "upgrade:") && strings.Contains(lower, "websocket") {
			return ProtocolWebSocket
		}
	}
	return defaultProtocol
}

// DecoderFactory constructs the Decoder for a sniffed protocol, bound to
// the connection it will decode for. Supplied by the server package, which
// owns the concrete websocket/resp decoder constructors and their shared
// dependencies (application callbacks, RESP store, send pipeline access).
type DecoderFactory func(p Protocol, c *conn.Connection) conn.Decoder

// Dispatch routes newly-read bytes to c's decoder, binding one via factory
// on first call if none is bound yet, and makes a single decoder.OnData
// call, matching spec §4.6 "on decoded frames... returns the number of
// bytes consumed; unconsumed bytes remain in the decoder's internal
// buffer" — each OnData call already decodes every complete frame it
// holds, so Dispatch does not loop across buffer boundaries itself.
func Dispatch(c *conn.Connection, data []byte, defaultProtocol Protocol, factory DecoderFactory) (int, error) {
	d := c.Decoder()
	if d == nil {
		p := Sniff(data, defaultProtocol)
		d = factory(p, c)
		c.SetDecoder(d)
	}
	return d.OnData(data)
}
