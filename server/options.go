package server

import (
	"time"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/dispatch"
)

// Option customizes Server construction, in the teacher's functional-
// options style (server/options.go).
type Option func(*Server)

// WithConfig overrides the api.Config used to resolve the network.ip,
// network.port and network.io_type keys (spec §6); the threading.* and
// websocket.* keys are not read by the server.
func WithConfig(cfg api.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithLogger overrides the four-level logger collaborator.
func WithLogger(l api.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithApplication sets the application callbacks (OnConnect/OnMessage/
// OnClose) the core dispatches to.
func WithApplication(app api.Application) Option {
	return func(s *Server) { s.app = app }
}

// WithWorkerPool overrides the pool application callbacks are submitted
// to; defaults to api.InlineWorkerPool{}.
func WithWorkerPool(p api.WorkerPool) Option {
	return func(s *Server) { s.pool = p }
}

// WithDefaultProtocol overrides the protocol chosen when first-byte
// sniffing (spec §4.6) is inconclusive. Defaults to WebSocket, matching
// the reference build.
func WithDefaultProtocol(p dispatch.Protocol) Option {
	return func(s *Server) { s.defaultProtocol = p }
}

// WithHeartbeat overrides the heartbeat scan cadence and idle threshold
// (spec §4.5 defaults: 10s cadence, 60s timeout).
func WithHeartbeat(every, idle time.Duration) Option {
	return func(s *Server) {
		s.heartbeatEvery = every
		s.heartbeatIdle = idle
	}
}
