package core

import "io"

// Conn is the core's handle to one client's bidirectional channel. The
// transport layer implements it over the real connection; receiving stays on
// the transport side because only the owning supervisor reads.
//
// Send must be safe to call from multiple goroutines: during a fan-out every
// other connection's goroutine may write to the same handle. It must also
// return within a bounded time when the peer has stalled, so that one slow
// reader cannot hold up a fan-out pass.
type Conn interface {
	io.Closer

	// Send delivers one discrete message to the peer.
	Send(data []byte) error
}
