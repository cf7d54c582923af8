package server

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/conn"
	"github.com/kestrelnet/wsresp/dispatch"
	"github.com/kestrelnet/wsresp/protocol/websocket"
	"github.com/kestrelnet/wsresp/reactor"
)

// waitTimeoutMs is the multiplexer poll timeout of spec §4.4 step 1.
const waitTimeoutMs = 100

// readBufSize is the fixed buffer each READ event drains into (spec §4.4
// "recv into a fixed buffer").
const readBufSize = 64 * 1024

// runLoop is the single event-loop thread of spec §5: it owns the
// multiplexer and all decoder state and never blocks on socket I/O.
func (s *Server) runLoop() {
	defer close(s.loopWG)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		events, err := s.mux.Wait(waitTimeoutMs)
		if err != nil {
			s.logger.Errorf("server: multiplexer wait: %v", err)
			continue
		}
		for _, ev := range events {
			s.dispatchEvent(ev)
		}
	}
}

// dispatchEvent routes one readiness event to accept handling (listener
// fd) or read/write/error handling (connection fd), per spec §4.4 step 2.
func (s *Server) dispatchEvent(ev reactor.Event) {
	if ev.Fd == s.listenFd {
		if ev.Ready.Has(api.Error) {
			s.logger.Errorf("server: listener error")
			return
		}
		s.handleAccept()
		return
	}

	c, ok := s.table.Lookup(ev.Fd)
	if !ok {
		return
	}
	if !c.Acquire() {
		return
	}
	defer c.Release()

	if ev.Ready.Has(api.Error) {
		s.closeConn(ev.Fd)
		return
	}
	if ev.Ready.Has(api.Read) {
		s.handleRead(c)
	}
	if ev.Ready.Has(api.Write) && !c.Closed() {
		s.handleWrite(c)
	}
}

// handleAccept accepts up to acceptBatch new connections per spec §4.4
// step 2, to bound the latency imposed on other fds' events.
func (s *Server) handleAccept() {
	for i := 0; i < acceptBatch; i++ {
		fd, _, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			// Resource exhaustion: log and keep serving other connections
			// (spec §7 "accept failure not due to EAGAIN").
			s.logger.Warnf("server: accept: %v", err)
			return
		}

		c := conn.NewConnection(api.Handle(fd), fd)
		c.OnClosed = s.finalizeClose
		s.table.Insert(c)
		if err := s.mux.Add(fd, api.Read); err != nil {
			s.logger.Errorf("server: register accepted fd=%d: %v", fd, err)
			s.closeConn(fd)
			continue
		}
		s.safeOnConnect(c.Handle)
	}
}

// handleRead implements spec §4.4's READ handling: recv into a fixed
// buffer, 0 bytes => peer close, EAGAIN => ignore, negative error =>
// close, otherwise touch last-activity and dispatch to C6.
func (s *Server) handleRead(c *conn.Connection) {
	buf := s.bufPool.Get()
	defer s.bufPool.Put(buf)

	n, err := unix.Read(c.Fd, buf)
	switch {
	case n == 0 && err == nil:
		s.closeConn(c.Fd)
		return
	case err != nil:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return
		}
		s.closeConn(c.Fd)
		return
	}

	c.Touch()
	if _, derr := dispatch.Dispatch(c, buf[:n], s.defaultProtocol, s.decoderFactory); derr != nil {
		s.logger.Warnf("server: protocol error fd=%d: %v", c.Fd, derr)
		s.closeConn(c.Fd)
		return
	}
	if ws, ok := c.Decoder().(*websocket.Conn); ok && ws.State() == websocket.StateClosed {
		s.closeConn(c.Fd)
	}
}

// handleWrite drains the send queue on WRITE readiness (spec §4.3 drain).
func (s *Server) handleWrite(c *conn.Connection) {
	if err := c.Drain(s.mux); err != nil {
		s.closeConn(c.Fd)
	}
}

// closeConn implements the close path of spec §4.4: remove from the
// connection table and deregister from the multiplexer under the table
// lock, then mark the connection closing; idempotent under concurrent
// callers (spec §5). The actual socket close and application OnClose
// callback are deferred to finalizeClose, invoked by MarkClosing only once
// every outstanding Acquire()'d reference has Release()'d (SPEC_FULL §5.5)
// — this is what prevents a concurrent SendMessage/Broadcast write from
// landing on an fd the OS has already reassigned to a new connection.
func (s *Server) closeConn(fd int) {
	s.table.RemoveWithCleanup(fd, func(c *conn.Connection) {
		s.mux.Remove(fd)
		c.MarkClosing()
	})
}

// finalizeClose performs the real teardown of spec §4.4's close path once
// a connection has no outstanding references: close the socket exactly
// once and fire the application's OnClose callback. Set as every
// Connection's OnClosed in handleAccept.
func (s *Server) finalizeClose(c *conn.Connection) {
	unix.Close(c.Fd)
	s.safeOnClose(c.Handle)
}

// safeOnConnect and safeOnClose wrap application lifecycle callbacks with
// panic recovery, per spec §7.
func (s *Server) safeOnConnect(h api.Handle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("server: application panic on connect: %v", r)
		}
	}()
	s.app.OnConnect(h)
}

func (s *Server) safeOnClose(h api.Handle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("server: application panic on close: %v", r)
		}
	}()
	s.app.OnClose(h)
}
