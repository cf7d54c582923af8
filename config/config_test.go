package config

import (
	"sync"
	"testing"
)

func TestGetStringDefault(t *testing.T) {
	c := New()
	if got := c.GetString("missing", "fallback"); got != "fallback" {
		t.Errorf("GetString = %q, want fallback", got)
	}
	c.Set("present", "value")
	if got := c.GetString("present", "fallback"); got != "value" {
		t.Errorf("GetString = %q, want value", got)
	}
}

func TestGetIntParsesOrFallsBack(t *testing.T) {
	c := New()
	c.Set("port", "8888")
	if got := c.GetInt("port", 0); got != 8888 {
		t.Errorf("GetInt = %d, want 8888", got)
	}
	c.Set("garbage", "not-a-number")
	if got := c.GetInt("garbage", -1); got != -1 {
		t.Errorf("GetInt fallback = %d, want -1", got)
	}
}

func TestGetBoolParsesOrFallsBack(t *testing.T) {
	c := New()
	c.Set("flag", "true")
	if got := c.GetBool("flag", false); !got {
		t.Error("GetBool = false, want true")
	}
	if got := c.GetBool("absent", true); !got {
		t.Error("GetBool default = false, want true")
	}
}

func TestOnReloadNotifiesListeners(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	wg.Add(1)
	c.OnReload(func() { wg.Done() })
	c.Set("k", "v")
	wg.Wait()
}

func TestDefaultServerConfigKeys(t *testing.T) {
	c := DefaultServerConfig()
	if c.GetString("network.ip", "") != "127.0.0.1" {
		t.Error("unexpected default network.ip")
	}
	if c.GetInt("network.port", 0) != 8888 {
		t.Error("unexpected default network.port")
	}
	if c.GetString("network.io_type", "") != "epoll" {
		t.Error("unexpected default network.io_type")
	}
	if !c.GetBool("websocket.enable_ping", false) {
		t.Error("unexpected default websocket.enable_ping")
	}
}
