package dispatch

import "testing"

func TestSniff(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Protocol
	}{
		{"resp array", "*2\r\n$4\r\nPING\r\n", ProtocolRESP},
		{"websocket upgrade", "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n", ProtocolWebSocket},
		{"websocket upgrade case-insensitive", "GET /ws HTTP/1.1\r\nhost: x\r\nUPGRADE: WebSocket\r\n\r\n", ProtocolWebSocket},
		{"plain get, no upgrade", "GET /health HTTP/1.1\r\n\r\n", ProtocolDefault},
		{"empty", "", ProtocolDefault},
		{"garbage", "xyz", ProtocolDefault},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Sniff([]byte(c.data), ProtocolDefault)
			if got != c.want {
				t.Errorf("Sniff(%q) = %v, want %v", c.data, got, c.want)
			}
		})
	}
}

func TestSniffDefaultPropagates(t *testing.T) {
	if got := Sniff([]byte("hello"), ProtocolWebSocket); got != ProtocolWebSocket {
		t.Errorf("got %v, want ProtocolWebSocket", got)
	}
}
