package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/wsresp/api"
)

// pollMultiplexer implements Multiplexer over poll(2), via
// golang.org/x/sys/unix.Poll — the same dependency the epoll backend uses,
// rather than hand-rolling a raw syscall wrapper.
type pollMultiplexer struct {
	mu  sync.Mutex
	fds map[int]api.EventMask
}

func newPoll() (Multiplexer, error) {
	return &pollMultiplexer{fds: make(map[int]api.EventMask)}, nil
}

func (m *pollMultiplexer) Add(fd int, mask api.EventMask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fds[fd] = mask
	return nil
}

func (m *pollMultiplexer) Modify(fd int, mask api.EventMask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fds[fd]; !ok {
		return fmt.Errorf("reactor: modify on unregistered fd %d", fd)
	}
	m.fds[fd] = mask
	return nil
}

func (m *pollMultiplexer) Remove(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fds, fd)
	return nil
}

func toPollEvents(mask api.EventMask) int16 {
	var ev int16
	if mask.Has(api.Read) {
		ev |= unix.POLLIN
	}
	if mask.Has(api.Write) {
		ev |= unix.POLLOUT
	}
	return ev
}

func (m *pollMultiplexer) Wait(timeoutMs int) ([]Event, error) {
	m.mu.Lock()
	fds := make([]unix.PollFd, 0, len(m.fds))
	for fd, mask := range m.fds {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(mask)})
	}
	m.mu.Unlock()

	if len(fds) == 0 {
		return nil, nil
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		var ready api.EventMask
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			ready |= api.Read
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			ready |= api.Write
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			ready |= api.Error
		}
		out = append(out, Event{Fd: int(pfd.Fd), Ready: ready})
	}
	return out, nil
}

func (m *pollMultiplexer) Close() error { return nil }
