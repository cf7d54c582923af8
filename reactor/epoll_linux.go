//go:build linux

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/wsresp/api"
)

// epollMultiplexer implements Multiplexer over Linux epoll(7) in
// level-triggered mode, per spec §4.1/§9: partial reads and writes must
// re-fire readiness naturally, so EPOLLET is never set.
type epollMultiplexer struct {
	epfd int

	mu    sync.Mutex
	masks map[int]api.EventMask
}

func newEpoll() (Multiplexer, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollMultiplexer{epfd: fd, masks: make(map[int]api.EventMask)}, nil
}

func toEpollEvents(mask api.EventMask) uint32 {
	var ev uint32
	if mask.Has(api.Read) {
		ev |= unix.EPOLLIN
	}
	if mask.Has(api.Write) {
		ev |= unix.EPOLLOUT
	}
	// EPOLLERR/EPOLLHUP are always reported by the kernel regardless of
	// the requested mask; no explicit bit is needed to arm them.
	return ev
}

func (m *epollMultiplexer) Add(fd int, mask api.EventMask) error {
	m.mu.Lock()
	m.masks[fd] = mask
	m.mu.Unlock()
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (m *epollMultiplexer) Modify(fd int, mask api.EventMask) error {
	m.mu.Lock()
	m.masks[fd] = mask
	m.mu.Unlock()
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (m *epollMultiplexer) Remove(fd int) error {
	m.mu.Lock()
	delete(m.masks, fd)
	m.mu.Unlock()
	// EpollCtl with DEL ignores the event argument but unix requires a
	// non-nil pointer on some kernels; pass a zero value defensively.
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (m *epollMultiplexer) Wait(timeoutMs int) ([]Event, error) {
	raw := make([]unix.EpollEvent, 128)
	n, err := unix.EpollWait(m.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		var ready api.EventMask
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP) != 0 {
			ready |= api.Read
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ready |= api.Write
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ready |= api.Error
		}
		out = append(out, Event{Fd: int(raw[i].Fd), Ready: ready})
	}
	return out, nil
}

func (m *epollMultiplexer) Close() error {
	return unix.Close(m.epfd)
}
