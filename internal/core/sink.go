package core

import "github.com/Arnovii/Webchat/internal/proto"

// Sink receives registry snapshots and membership notices for display. The
// core only calls into it and never depends on its output.
type Sink interface {
	ClientConnected(info proto.ClientInfo)
	ClientDisconnected(info proto.ClientInfo)
	RegistrySnapshot(clients []proto.ClientInfo)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) ClientConnected(proto.ClientInfo)    {}
func (NopSink) ClientDisconnected(proto.ClientInfo) {}
func (NopSink) RegistrySnapshot([]proto.ClientInfo) {}
