package conn

import "sync"

// Table is the connection table of spec §4.2: Insert/Remove/Lookup plus
// ForEachSnapshot, which copies the handle set under the lock and releases
// it before iteration so broadcast never holds the table lock across I/O.
type Table struct {
	mu    sync.Mutex
	byFd  map[int]*Connection
	count int
}

// NewTable constructs an empty connection table.
func NewTable() *Table {
	return &Table{byFd: make(map[int]*Connection)}
}

// Insert adds a connection under the table lock.
func (t *Table) Insert(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byFd[c.Fd] = c
	t.count++
}

// Remove deletes a connection under the table lock. Removal from the
// table, deregistration from the multiplexer and close() happen under the
// same critical section at the call site (spec §3); Remove itself only
// covers the table half of that invariant.
func (t *Table) Remove(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byFd[fd]; ok {
		delete(t.byFd, fd)
		t.count--
	}
}

// RemoveWithCleanup atomically removes fd from the table and invokes
// cleanup on its Connection, all under the table lock, per spec §3:
// "removal from the table, deregistration, and close() happen under the
// same critical section." Returns false if fd was already absent, making
// concurrent close attempts idempotent (spec §5).
func (t *Table) RemoveWithCleanup(fd int, cleanup func(*Connection)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byFd[fd]
	if !ok {
		return false
	}
	delete(t.byFd, fd)
	t.count--
	cleanup(c)
	return true
}

// Lookup returns the connection for fd, if present.
func (t *Table) Lookup(fd int) (*Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byFd[fd]
	return c, ok
}

// ForEachSnapshot copies the current connection set under the lock, releases
// it, then invokes fn for each connection — so callers (heartbeat,
// broadcast) never hold the table lock across I/O.
func (t *Table) ForEachSnapshot(fn func(*Connection)) {
	t.mu.Lock()
	snapshot := make([]*Connection, 0, len(t.byFd))
	for _, c := range t.byFd {
		snapshot = append(snapshot, c)
	}
	t.mu.Unlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// Len returns the number of connections currently in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
