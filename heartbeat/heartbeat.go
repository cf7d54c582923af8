// Package heartbeat implements the liveness service (C5): a periodic scan
// of the connection table that closes idle connections and enqueues an
// in-band magic marker for the rest, per spec §4.5.
package heartbeat

import (
	"encoding/binary"
	"time"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/conn"
)

// Magic is the 4-byte heartbeat marker, network byte order, spec §4.5 /
// GLOSSARY. It collides with any protocol whose payload may legitimately
// begin with these bytes; WebSocket connections opt out via
// Decoder.HeartbeatEnabled (spec §3).
var Magic = func() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, 0xFAFBFCFD)
	return b
}()

// Sender is the minimal send-pipeline contract the heartbeat service needs,
// satisfied by *conn.Connection.
type Sender interface {
	Send(mux interface{ Modify(fd int, mask api.EventMask) error }, data []byte) error
}

// Closer is invoked to tear down an idle connection; supplied by the
// server package, which owns the table-lock/deregister/close critical
// section (spec §4.4's close path).
type Closer func(fd int)

// Service runs the periodic scan described in spec §4.5.
type Service struct {
	table    *conn.Table
	mux      interface{ Modify(fd int, mask api.EventMask) error }
	close    Closer
	interval time.Duration
	timeout  time.Duration
	logger   api.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs a heartbeat Service. interval is the scan cadence
// (default 10s), timeout the idle threshold (default 60s) per spec §4.5.
func New(table *conn.Table, mux interface{ Modify(fd int, mask api.EventMask) error }, closeFn Closer, interval, timeout time.Duration, logger api.Logger) *Service {
	return &Service{
		table:    table,
		mux:      mux,
		close:    closeFn,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the scan loop on its own goroutine until Stop is called.
func (s *Service) Start() {
	go s.run()
}

// Stop signals the scan loop to exit and waits for it to finish.
func (s *Service) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Service) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

func (s *Service) scan() {
	now := time.Now()
	s.table.ForEachSnapshot(func(c *conn.Connection) {
		// Hold a reference so a concurrent close defers the socket close
		// until this scan is done with the connection.
		if !c.Acquire() {
			return
		}
		defer c.Release()
		if now.Sub(c.LastActive()) > s.timeout {
			s.logger.Infof("heartbeat: closing idle connection fd=%d", c.Fd)
			s.close(c.Fd)
			return
		}
		d := c.Decoder()
		if d != nil && !d.HeartbeatEnabled() {
			return
		}
		if err := c.Send(s.mux, Magic); err != nil {
			s.logger.Warnf("heartbeat: send failed fd=%d: %v", c.Fd, err)
		}
	})
}
