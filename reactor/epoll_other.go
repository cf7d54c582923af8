//go:build !linux

package reactor

// epoll is Linux-only; other platforms fall back to poll(2), which the
// x/sys/unix package also provides on darwin/bsd.
func newEpoll() (Multiplexer, error) {
	return newPoll()
}
