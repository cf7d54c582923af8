package server_test

import (
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/config"
	"github.com/kestrelnet/wsresp/server"
)

// freePort asks the OS for an ephemeral TCP port and releases it
// immediately, the standard (slightly racy but broadly used) trick for
// giving a raw-socket server under test a concrete port number ahead of
// time.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startServer(t *testing.T, app api.Application, port int) *server.Server {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.Set("network.port", strconv.Itoa(port))

	srv, err := server.NewServer(server.WithConfig(cfg), server.WithApplication(app))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	// give the event loop a moment to start accepting.
	time.Sleep(20 * time.Millisecond)
	return srv
}

type echoApp struct {
	srv *server.Server
}

func (a *echoApp) Start() error         { return nil }
func (a *echoApp) Stop() error          { return nil }
func (a *echoApp) OnConnect(api.Handle) {}
func (a *echoApp) OnClose(api.Handle)   {}
func (a *echoApp) OnMessage(h api.Handle, payload []byte) {
	a.srv.SendMessage(h, payload, true)
}

// TestWebSocketEchoEndToEnd exercises spec §8 scenario 1: a real RFC 6455
// client connects, sends a TEXT frame and receives the same payload back.
func TestWebSocketEchoEndToEnd(t *testing.T) {
	app := &echoApp{}
	port := freePort(t)
	srv := startServer(t, app, port)
	app.srv = srv

	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg := "hello wsresp"
	if err := conn.WriteMessage(gorilla.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(got) != msg {
		t.Errorf("echo = %q, want %q", got, msg)
	}
}

// TestWebSocketPingPong exercises spec §8's liveness scenario: the server
// answers a client PING with a PONG carrying the same payload.
func TestWebSocketPingPong(t *testing.T) {
	app := &echoApp{}
	port := freePort(t)
	srv := startServer(t, app, port)
	app.srv = srv

	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	pongCh := make(chan string, 1)
	conn.SetPongHandler(func(appData string) error {
		pongCh <- appData
		return nil
	})
	if err := conn.WriteControl(gorilla.PingMessage, []byte("ping-data"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	// gorilla only invokes the pong handler while inside ReadMessage.
	go conn.ReadMessage()

	select {
	case data := <-pongCh:
		if data != "ping-data" {
			t.Errorf("pong payload = %q, want %q", data, "ping-data")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

type broadcastApp struct {
	srv *server.Server
}

func (a *broadcastApp) Start() error         { return nil }
func (a *broadcastApp) Stop() error          { return nil }
func (a *broadcastApp) OnConnect(api.Handle) {}
func (a *broadcastApp) OnClose(api.Handle)   {}
func (a *broadcastApp) OnMessage(h api.Handle, payload []byte) {
	a.srv.Broadcast(h, payload, true)
}

// TestBroadcastFansOutToOtherPeers exercises spec §8 scenario 2: a message
// from one client is delivered to every other connected peer, not back to
// the sender.
func TestBroadcastFansOutToOtherPeers(t *testing.T) {
	app := &broadcastApp{}
	port := freePort(t)
	srv := startServer(t, app, port)
	app.srv = srv

	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	c1, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial c1: %v", err)
	}
	defer c1.Close()
	c2, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial c2: %v", err)
	}
	defer c2.Close()
	time.Sleep(20 * time.Millisecond)

	if err := c1.WriteMessage(gorilla.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := c2.ReadMessage()
	if err != nil {
		t.Fatalf("c2 ReadMessage: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("broadcast payload = %q, want %q", got, "hi")
	}

	c1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := c1.ReadMessage(); err == nil {
		t.Error("sender should not receive its own broadcast")
	}
}

// TestRESPCommandsOverPlainTCP exercises spec §8 scenario for RESP: a plain
// TCP client that never upgrades gets served the RESP command set.
func TestRESPCommandsOverPlainTCP(t *testing.T) {
	port := freePort(t)
	startServer(t, api.ApplicationFunc{}, port)

	c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := c.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")); err != nil {
		t.Fatalf("write SET: %v", err)
	}
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("read SET reply: %v", err)
	}
	if string(buf[:n]) != "+OK\r\n" {
		t.Fatalf("SET reply = %q, want +OK", buf[:n])
	}

	if _, err := c.Write([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")); err != nil {
		t.Fatalf("write GET: %v", err)
	}
	n, err = c.Read(buf)
	if err != nil {
		t.Fatalf("read GET reply: %v", err)
	}
	if string(buf[:n]) != "$3\r\nbar\r\n" {
		t.Fatalf("GET reply = %q, want $3\\r\\nbar\\r\\n", buf[:n])
	}
}
