package api

// Logger is the four-level collaborator contract of spec §6. It must be
// safe to call concurrently from any goroutine: the event loop, the
// heartbeat task and application callbacks all log through the same
// instance.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
