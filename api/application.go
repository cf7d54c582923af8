package api

// Application is the collaborator contract the core dispatches decoded
// frames and connection lifecycle events to (spec §6, "Application
// factory"). The plugin/registry that selects and constructs an
// Application is out of scope here (spec §1); only the shape it must
// expose to the core is specified.
type Application interface {
	Start() error
	Stop() error

	OnConnect(h Handle)
	OnMessage(h Handle, payload []byte)
	OnClose(h Handle)
}

// ApplicationFunc adapts three callbacks plus no-op Start/Stop into an
// Application, for small applications that have no startup/shutdown work
// of their own. Its zero value is the server's default Application.
type ApplicationFunc struct {
	ConnectFunc func(h Handle)
	MessageFunc func(h Handle, payload []byte)
	CloseFunc   func(h Handle)
}

func (f ApplicationFunc) Start() error { return nil }
func (f ApplicationFunc) Stop() error  { return nil }

func (f ApplicationFunc) OnConnect(h Handle) {
	if f.ConnectFunc != nil {
		f.ConnectFunc(h)
	}
}

func (f ApplicationFunc) OnMessage(h Handle, payload []byte) {
	if f.MessageFunc != nil {
		f.MessageFunc(h, payload)
	}
}

func (f ApplicationFunc) OnClose(h Handle) {
	if f.CloseFunc != nil {
		f.CloseFunc(h)
	}
}
