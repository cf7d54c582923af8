package server

import (
	"time"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/conn"
	"github.com/kestrelnet/wsresp/dispatch"
	"github.com/kestrelnet/wsresp/heartbeat"
	"github.com/kestrelnet/wsresp/pool"
	"github.com/kestrelnet/wsresp/protocol/resp"
	"github.com/kestrelnet/wsresp/reactor"
)

// Server is the accept-and-event-loop facade (C4): it owns the listening
// socket, the multiplexer, the connection table, protocol dispatch and the
// heartbeat service, and drives them from a single dedicated goroutine
// (spec §5 "Single event-loop thread owns C1/C4 and all decoder state").
type Server struct {
	cfg    api.Config
	logger api.Logger
	app    api.Application
	pool   api.WorkerPool

	mux     reactor.Multiplexer
	table   *conn.Table
	store   *resp.Store
	bufPool *pool.BufferPool

	listenFd        int
	defaultProtocol dispatch.Protocol

	heartbeatEvery time.Duration
	heartbeatIdle  time.Duration
	heartbeatSvc   *heartbeat.Service

	stopCh chan struct{}
	loopWG chan struct{}
}
