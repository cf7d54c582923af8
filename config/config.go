// Package config implements the api.Config collaborator contract: typed
// getters over a thread-safe map with reload listeners, generalized from
// the teacher's control.ConfigStore.
package config

import (
	"strconv"
	"sync"

	"github.com/kestrelnet/wsresp/api"
)

// Config is a sync.RWMutex-guarded map[string]string with defaults
// resolved at read time, plus reload-listener propagation in the
// teacher's ConfigStore.SetConfig/OnReload style.
type Config struct {
	mu        sync.RWMutex
	values    map[string]string
	listeners []func()
}

// New constructs an empty Config; callers set keys with Set before serving.
func New() *Config {
	return &Config{values: make(map[string]string)}
}

// Set stores a raw string value and notifies reload listeners.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	c.values[key] = value
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		go fn()
	}
}

// OnReload registers a listener invoked (on its own goroutine) after
// every Set call.
func (c *Config) OnReload(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Config) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Config) GetString(key, def string) string {
	if v, ok := c.get(key); ok {
		return v
	}
	return def
}

func (c *Config) GetInt(key string, def int) int {
	if v, ok := c.get(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (c *Config) GetBool(key string, def bool) bool {
	if v, ok := c.get(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

var _ api.Config = (*Config)(nil)

// DefaultServerConfig returns a Config pre-populated with the defaults of
// spec §6's configuration key table.
func DefaultServerConfig() *Config {
	c := New()
	c.Set("network.ip", "127.0.0.1")
	c.Set("network.port", "8888")
	c.Set("network.io_type", "epoll")
	c.Set("threading.worker_threads", "10")
	c.Set("websocket.enable_ping", "true")
	c.Set("websocket.ping_interval", "30")
	c.Set("websocket.max_frame_size", "65536")
	return c
}
