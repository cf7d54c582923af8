package websocket

import (
	"bytes"
	"testing"

	"github.com/kestrelnet/wsresp/api"
)

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) Send(_ interface{ Modify(fd int, mask api.EventMask) error }, data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func handshakeRequest() []byte {
	return []byte("GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n")
}

func TestConnHandshakeThenMessage(t *testing.T) {
	sender := &fakeSender{}
	var received []byte
	c := NewConn(api.Handle(1), sender, nil, func(h api.Handle, payload []byte) {
		received = payload
	})

	if _, err := c.OnData(handshakeRequest()); err != nil {
		t.Fatalf("handshake OnData: %v", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("state = %v, want StateOpen", c.State())
	}
	if len(sender.sent) != 1 || !bytes.HasPrefix(sender.sent[0], []byte("HTTP/1.1 101")) {
		t.Fatalf("expected 101 response, got %v", sender.sent)
	}

	frame := buildClientFrame(OpText, []byte("hello"), true)
	if _, err := c.OnData(frame); err != nil {
		t.Fatalf("frame OnData: %v", err)
	}
	if string(received) != "hello" {
		t.Errorf("received = %q, want hello", received)
	}
}

func TestConnPingAutoPong(t *testing.T) {
	sender := &fakeSender{}
	c := NewConn(api.Handle(1), sender, nil, nil)
	c.OnData(handshakeRequest())
	sender.sent = nil

	ping := buildClientFrame(OpPing, []byte("ping-body"), true)
	if _, err := c.OnData(ping); err != nil {
		t.Fatalf("OnData: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one pong reply, got %d", len(sender.sent))
	}
	want := EncodeFrame(OpPong, []byte("ping-body"))
	if !bytes.Equal(sender.sent[0], want) {
		t.Errorf("pong = %v, want %v", sender.sent[0], want)
	}
}

func TestConnContinuationReassembly(t *testing.T) {
	sender := &fakeSender{}
	var received []byte
	c := NewConn(api.Handle(1), sender, nil, func(h api.Handle, payload []byte) {
		received = payload
	})
	c.OnData(handshakeRequest())

	first := buildClientFrame(OpText, []byte("hello "), false)
	cont := buildClientFrame(OpContinuation, []byte("world"), true)

	if _, err := c.OnData(first); err != nil {
		t.Fatalf("OnData(first): %v", err)
	}
	if received != nil {
		t.Fatalf("message delivered before final continuation frame: %q", received)
	}
	if _, err := c.OnData(cont); err != nil {
		t.Fatalf("OnData(cont): %v", err)
	}
	if string(received) != "hello world" {
		t.Errorf("reassembled payload = %q, want %q", received, "hello world")
	}
}

func TestConnRejectsInterleavedDataFrameDuringReassembly(t *testing.T) {
	sender := &fakeSender{}
	c := NewConn(api.Handle(1), sender, nil, func(api.Handle, []byte) {
		t.Fatal("onMsg should not be called for an interleaved message")
	})
	c.OnData(handshakeRequest())
	sender.sent = nil

	first := buildClientFrame(OpText, []byte("hello "), false)
	if _, err := c.OnData(first); err != nil {
		t.Fatalf("OnData(first): %v", err)
	}

	interleaved := buildClientFrame(OpText, []byte("intruder"), true)
	if _, err := c.OnData(interleaved); err == nil {
		t.Fatal("expected a protocol error for a new data frame mid-reassembly")
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want StateClosed", c.State())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one close frame, got %d", len(sender.sent))
	}
	if sender.sent[0][0]&0x0F != OpClose {
		t.Errorf("expected CLOSE opcode, got %x", sender.sent[0][0])
	}
}

func TestConnInvalidUTF8ClosesWithInvalidPayload(t *testing.T) {
	sender := &fakeSender{}
	c := NewConn(api.Handle(1), sender, nil, func(api.Handle, []byte) {
		t.Fatal("onMsg should not be called for invalid UTF-8")
	})
	c.OnData(handshakeRequest())
	sender.sent = nil

	invalid := []byte{0xFF, 0xFE, 0xFD}
	frame := buildClientFrame(OpText, invalid, true)
	if _, err := c.OnData(frame); err != nil {
		t.Fatalf("OnData: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want StateClosed", c.State())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one close frame, got %d", len(sender.sent))
	}
	closed := sender.sent[0]
	if closed[0]&0x0F != OpClose {
		t.Errorf("expected CLOSE opcode, got %x", closed[0])
	}
	code := uint16(closed[2])<<8 | uint16(closed[3])
	if code != CloseInvalidPayload {
		t.Errorf("close code = %d, want %d", code, CloseInvalidPayload)
	}
}

func TestConnSendTextRejectsInvalidUTF8(t *testing.T) {
	sender := &fakeSender{}
	c := NewConn(api.Handle(1), sender, nil, nil)
	c.OnData(handshakeRequest())

	err := c.SendText([]byte{0xFF, 0xFE})
	if err != ErrInvalidOutboundUTF8 {
		t.Errorf("err = %v, want ErrInvalidOutboundUTF8", err)
	}
}

func TestConnHeartbeatDisabled(t *testing.T) {
	c := NewConn(api.Handle(1), &fakeSender{}, nil, nil)
	if c.HeartbeatEnabled() {
		t.Error("websocket connections must disable the raw heartbeat marker")
	}
}
