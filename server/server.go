package server

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/conn"
	"github.com/kestrelnet/wsresp/dispatch"
	"github.com/kestrelnet/wsresp/heartbeat"
	"github.com/kestrelnet/wsresp/logging"
	"github.com/kestrelnet/wsresp/pool"
	"github.com/kestrelnet/wsresp/protocol/resp"
	"github.com/kestrelnet/wsresp/protocol/websocket"
	"github.com/kestrelnet/wsresp/reactor"
)

// ErrNotWebSocket is returned by SendMessage/Broadcast when the target
// handle's bound decoder is not a WebSocket connection; RESP replies are
// generated by the protocol itself and have no independent send surface.
var ErrNotWebSocket = errors.New("server: handle is not a websocket connection")

// NewServer builds a Server from options, resolving network.io_type from
// cfg (default epoll) to pick the C1 backend. It also binds the listening
// socket and registers it with the multiplexer; Start launches the event
// loop that accepts on it.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		table:           conn.NewTable(),
		store:           resp.NewStore(),
		bufPool:         pool.New(readBufSize, 256),
		pool:            api.InlineWorkerPool{},
		defaultProtocol: dispatch.ProtocolWebSocket,
		heartbeatEvery:  10 * time.Second,
		heartbeatIdle:   60 * time.Second,
		stopCh:          make(chan struct{}),
		loopWG:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.New(logging.LevelInfo)
	}
	if s.app == nil {
		s.app = api.ApplicationFunc{}
	}

	ioType := reactor.Epoll
	ip, port := "127.0.0.1", 8888
	if s.cfg != nil {
		ioType = reactor.Kind(s.cfg.GetString("network.io_type", string(reactor.Epoll)))
		ip = s.cfg.GetString("network.ip", ip)
		port = s.cfg.GetInt("network.port", port)
	}

	mux, err := reactor.New(ioType)
	if err != nil {
		return nil, fmt.Errorf("server: reactor init: %w", err)
	}
	s.mux = mux

	fd, err := listen(ip, port)
	if err != nil {
		mux.Close()
		return nil, err
	}
	s.listenFd = fd
	if err := s.mux.Add(s.listenFd, api.Read); err != nil {
		mux.Close()
		return nil, fmt.Errorf("server: register listener: %w", err)
	}
	return s, nil
}

// Start launches the event loop and heartbeat service on their own
// goroutines and returns immediately.
func (s *Server) Start() error {
	if err := s.app.Start(); err != nil {
		return fmt.Errorf("server: application start: %w", err)
	}
	s.logger.Infof("server: listening fd=%d", s.listenFd)
	go s.runLoop()
	hb := heartbeat.New(s.table, s.mux, s.closeConn, s.heartbeatEvery, s.heartbeatIdle, s.logger)
	s.heartbeatSvc = hb
	hb.Start()
	return nil
}

// Stop signals the event loop to exit, waits for it, then tears down the
// heartbeat service, every remaining connection and the listening socket
// (spec §7: "no exceptions propagate out of the event loop").
func (s *Server) Stop() error {
	close(s.stopCh)
	<-s.loopWG
	if s.heartbeatSvc != nil {
		s.heartbeatSvc.Stop()
	}
	s.table.ForEachSnapshot(func(c *conn.Connection) {
		s.closeConn(c.Fd)
	})
	s.mux.Remove(s.listenFd)
	unix.Close(s.listenFd)
	s.mux.Close()
	return s.app.Stop()
}

// decoderFactory implements dispatch.DecoderFactory, constructing the
// concrete C7/C8 decoder selected by Sniff and binding it to this
// server's send pipeline, multiplexer and application callback.
func (s *Server) decoderFactory(p dispatch.Protocol, c *conn.Connection) conn.Decoder {
	switch p {
	case dispatch.ProtocolRESP:
		return resp.NewConn(s.store, c, s.mux)
	default:
		return websocket.NewConn(c.Handle, c, s.mux, s.deliverMessage)
	}
}

// deliverMessage wraps the application's OnMessage callback with panic
// recovery and routes it through the worker pool, per spec §7:
// "Application callbacks that fail must not crash the loop."
func (s *Server) deliverMessage(h api.Handle, payload []byte) {
	s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorf("server: application panic on message: %v", r)
			}
		}()
		s.app.OnMessage(h, payload)
	})
}

// SendMessage delivers payload to the WebSocket connection identified by
// h, as a TEXT frame if text is true, otherwise BINARY (spec §8 scenario
// 2's "application... formulates a response"). Applications obtain a
// *Server reference after construction to call this from OnMessage.
func (s *Server) SendMessage(h api.Handle, payload []byte, text bool) error {
	c, ok := s.table.Lookup(int(h))
	if !ok {
		return conn.ErrClosed
	}
	if !c.Acquire() {
		return conn.ErrClosed
	}
	defer c.Release()

	ws, ok := c.Decoder().(*websocket.Conn)
	if !ok {
		return ErrNotWebSocket
	}
	if text {
		return ws.SendText(payload)
	}
	return ws.SendBinary(payload)
}

// Broadcast fans payload out to every WebSocket connection except except,
// without holding the table lock across the sends (spec §4.2 invariant,
// §8 scenario 2). Broadcast provides no cross-connection ordering
// guarantee (spec §5).
func (s *Server) Broadcast(except api.Handle, payload []byte, text bool) {
	s.table.ForEachSnapshot(func(c *conn.Connection) {
		if c.Handle == except || !c.Acquire() {
			return
		}
		defer c.Release()
		ws, ok := c.Decoder().(*websocket.Conn)
		if !ok {
			return
		}
		if text {
			_ = ws.SendText(payload)
		} else {
			_ = ws.SendBinary(payload)
		}
	})
}
