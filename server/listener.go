package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sendRecvBufBytes is the 512 KiB socket buffer size of spec §6.
const sendRecvBufBytes = 512 * 1024

// listen opens the listening socket per spec §6: TCP/IPv4, SO_REUSEADDR,
// 512 KiB send/recv buffers, SOMAXCONN backlog, non-blocking.
func listen(ip string, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("server: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendRecvBufBytes); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: setsockopt SO_SNDBUF: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, sendRecvBufBytes); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: setsockopt SO_RCVBUF: %w", err)
	}

	addr, err := resolveIPv4(ip)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: bind %s:%d: %w", ip, port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: listen: %w", err)
	}
	return fd, nil
}

func resolveIPv4(ip string) ([4]byte, error) {
	var out [4]byte
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return out, fmt.Errorf("server: invalid bind address %q", ip)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return out, fmt.Errorf("server: bind address %q is not IPv4", ip)
	}
	copy(out[:], v4)
	return out, nil
}

// acceptBatch bounds how many connections a single READ event on the
// listener may consume (spec §4.4 "accept batch"), so one busy listener
// doesn't starve other fds' events.
const acceptBatch = 32
