// Command wsresp-server is the process entrypoint: it wires config,
// logger and the connection runtime together, serving both the WebSocket
// application selected by -app and the built-in RESP command set (spec
// §4.6 protocol dispatch selects per-connection, so both are always
// reachable on the same listening socket).
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kestrelnet/wsresp/api"
	"github.com/kestrelnet/wsresp/config"
	"github.com/kestrelnet/wsresp/logging"
	"github.com/kestrelnet/wsresp/server"
)

func main() {
	ip := flag.String("ip", "127.0.0.1", "bind address")
	port := flag.Int("port", 8888, "bind port")
	ioType := flag.String("io-type", "epoll", "multiplexer backend: select, poll, epoll")
	app := flag.String("app", "echo", "websocket application: echo, broadcast")
	heartbeatEvery := flag.Duration("heartbeat-interval", 10*time.Second, "heartbeat scan cadence")
	heartbeatIdle := flag.Duration("heartbeat-timeout", 60*time.Second, "idle threshold before closing a connection")
	logLevel := flag.String("log-level", "info", "debug, info, warn, error")
	flag.Parse()

	cfg := config.DefaultServerConfig()
	cfg.Set("network.ip", *ip)
	cfg.Set("network.port", strconv.Itoa(*port))
	cfg.Set("network.io_type", *ioType)

	logger := logging.New(parseLevel(*logLevel))

	application := newApplication(*app)
	srv, err := server.NewServer(
		server.WithConfig(cfg),
		server.WithLogger(logger),
		server.WithApplication(application),
		server.WithHeartbeat(*heartbeatEvery, *heartbeatIdle),
	)
	if err != nil {
		log.Fatalf("wsresp-server: %v", err)
	}
	application.bind(srv)

	if err := srv.Start(); err != nil {
		log.Fatalf("wsresp-server: start: %v", err)
	}
	logger.Infof("listening on %s:%d (io_type=%s, app=%s)", *ip, *port, *ioType, *app)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("shutdown signal received")
	if err := srv.Stop(); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// boundApplication is the common shape of the selectable reference
// applications: each needs a late-bound *server.Server to originate
// outbound bytes through (spec §6's Application contract has no send
// surface of its own).
type boundApplication interface {
	api.Application
	bind(*server.Server)
}

func newApplication(name string) boundApplication {
	switch name {
	case "broadcast":
		return &broadcastApp{handleID: make(map[api.Handle]int64)}
	default:
		return &echoApp{}
	}
}

type echoApp struct {
	srv *server.Server
}

func (a *echoApp) bind(s *server.Server) { a.srv = s }
func (a *echoApp) Start() error          { return nil }
func (a *echoApp) Stop() error           { return nil }
func (a *echoApp) OnConnect(api.Handle)   {}
func (a *echoApp) OnClose(api.Handle)     {}
func (a *echoApp) OnMessage(h api.Handle, payload []byte) {
	_ = a.srv.SendMessage(h, payload, true)
}

type broadcastApp struct {
	srv      *server.Server
	nextID   int64
	handleID map[api.Handle]int64
}

func (a *broadcastApp) bind(s *server.Server) { a.srv = s }
func (a *broadcastApp) Start() error          { return nil }
func (a *broadcastApp) Stop() error           { return nil }

func (a *broadcastApp) OnConnect(h api.Handle) {
	a.nextID++
	a.handleID[h] = a.nextID
}

func (a *broadcastApp) OnClose(h api.Handle) {
	delete(a.handleID, h)
}

func (a *broadcastApp) OnMessage(h api.Handle, payload []byte) {
	a.srv.Broadcast(h, payload, true)
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
