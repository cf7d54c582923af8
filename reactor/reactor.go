// Package reactor implements the I/O multiplexer (C1): registering,
// modifying and removing readiness interest for file descriptors, and
// blocking up to a timeout for the ready set. Backends are select(2),
// poll(2) and epoll(7), chosen at construction by network.io_type.
package reactor

import "github.com/kestrelnet/wsresp/api"

// Event is one readiness notification returned from Wait.
type Event struct {
	Fd    int
	Ready api.EventMask
}

// Multiplexer is the C1 contract: add/modify/remove an fd's interest mask,
// and Wait blocks up to timeoutMs for at least one ready fd (or returns an
// empty slice on timeout). Implementations must behave identically at this
// contract regardless of backend (spec §4.1).
type Multiplexer interface {
	Add(fd int, mask api.EventMask) error
	Modify(fd int, mask api.EventMask) error
	Remove(fd int) error
	Wait(timeoutMs int) ([]Event, error)
	Close() error
}

// Kind selects a Multiplexer backend by the network.io_type config key.
type Kind string

const (
	Select Kind = "select"
	Poll   Kind = "poll"
	Epoll  Kind = "epoll"
)

// New constructs the requested backend. epoll is only available on Linux;
// requesting it elsewhere falls back to poll.
func New(kind Kind) (Multiplexer, error) {
	switch kind {
	case Epoll:
		return newEpoll()
	case Poll:
		return newPoll()
	case Select:
		return newSelect()
	default:
		return newEpoll()
	}
}
