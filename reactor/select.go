package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/wsresp/api"
)

// selectMultiplexer implements Multiplexer over select(2). Intended for
// small connection counts / portability testing; the FD_SETSIZE limit of
// the underlying syscall applies.
type selectMultiplexer struct {
	mu  sync.Mutex
	fds map[int]api.EventMask
}

func newSelect() (Multiplexer, error) {
	return &selectMultiplexer{fds: make(map[int]api.EventMask)}, nil
}

func (m *selectMultiplexer) Add(fd int, mask api.EventMask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fds[fd] = mask
	return nil
}

func (m *selectMultiplexer) Modify(fd int, mask api.EventMask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fds[fd]; !ok {
		return fmt.Errorf("reactor: modify on unregistered fd %d", fd)
	}
	m.fds[fd] = mask
	return nil
}

func (m *selectMultiplexer) Remove(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fds, fd)
	return nil
}

func setFd(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func isSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

func (m *selectMultiplexer) Wait(timeoutMs int) ([]Event, error) {
	m.mu.Lock()
	fds := make([]int, 0, len(m.fds))
	var readSet, writeSet unix.FdSet
	nfd := 0
	for fd, mask := range m.fds {
		fds = append(fds, fd)
		if mask.Has(api.Read) {
			setFd(&readSet, fd)
		}
		if mask.Has(api.Write) {
			setFd(&writeSet, fd)
		}
		if fd >= nfd {
			nfd = fd + 1
		}
	}
	m.mu.Unlock()

	if len(fds) == 0 {
		return nil, nil
	}

	tv := unix.NsecToTimeval(int64(timeoutMs) * 1_000_000)
	n, err := unix.Select(nfd, &readSet, &writeSet, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: select: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for _, fd := range fds {
		var ready api.EventMask
		if isSet(&readSet, fd) {
			ready |= api.Read
		}
		if isSet(&writeSet, fd) {
			ready |= api.Write
		}
		if ready != 0 {
			out = append(out, Event{Fd: fd, Ready: ready})
		}
	}
	return out, nil
}

func (m *selectMultiplexer) Close() error { return nil }
