package core

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Arnovii/Webchat/internal/proto"
)

// Router interprets inbound envelopes from registered clients and performs
// the resulting fan-out. It keeps no per-client state of its own; everything
// lives in the Registry.
type Router struct {
	reg  *Registry
	sink Sink
	log  *zerolog.Logger
}

// NewRouter builds a router over the given registry. A nil sink is replaced
// with NopSink.
func NewRouter(reg *Registry, sink Sink, logger *zerolog.Logger) *Router {
	if sink == nil {
		sink = NopSink{}
	}
	return &Router{reg: reg, sink: sink, log: logger}
}

// HandleInbound routes one decoded envelope from a registered client. A
// non-nil error means the sender's own channel is broken and the supervisor
// should terminate that connection; recipient failures are handled
// internally and never propagate.
func (rt *Router) HandleInbound(senderID string, env proto.Inbound) error {
	sender, ok := rt.reg.Get(senderID)
	if !ok {
		// Unregistered concurrently; the sender's read loop is about to die.
		return nil
	}

	switch env.Type {
	case proto.InboundTypeListRequest:
		return rt.handleListRequest(sender)
	case proto.InboundTypeGroup:
		return rt.handleGroup(sender, env)
	case proto.InboundTypePrivate:
		return rt.handlePrivate(sender, env)
	default:
		rt.log.Warn().
			Str("client_id", senderID).
			Str("msg_type", env.Type).
			Msg("unknown message type")
		return rt.sendError(sender, proto.ErrTextUnknownType)
	}
}

// ClientJoined announces a completed registration: notifies the sink and
// rebroadcasts the member list.
func (rt *Router) ClientJoined(rec *ClientRecord) {
	rt.sink.ClientConnected(rec.Info())
	rt.BroadcastList()
}

// ClientLeft unregisters id if still present, closes its channel and
// rebroadcasts the member list. Safe to call on an already-removed id.
func (rt *Router) ClientLeft(id string) {
	rec, ok := rt.reg.Unregister(id)
	if !ok {
		return
	}
	_ = rec.Conn.Close()
	rt.sink.ClientDisconnected(rec.Info())
	rt.BroadcastList()
}

func (rt *Router) handleListRequest(sender *ClientRecord) error {
	data, err := json.Marshal(proto.NewList(rt.reg.InfoSnapshot()))
	if err != nil {
		return err
	}
	rt.log.Debug().Str("client_id", sender.ID).Str("name", sender.Name).Msg("list requested")
	return sender.Conn.Send(data)
}

func (rt *Router) handleGroup(sender *ClientRecord, env proto.Inbound) error {
	out := proto.Message{
		Type:  proto.OutboundTypeMessage,
		From:  sender.ID,
		Name:  sender.Name,
		Group: true,
	}

	if env.HasFile() {
		out.File = env.File
		rt.log.Info().
			Str("from", sender.Name).
			Str("file", env.FileName()).
			Msg("group file")
	} else {
		text := strings.TrimSpace(env.Text)
		if text == "" {
			return nil
		}
		out.Text = text
		rt.log.Info().Str("from", sender.Name).Msg("group message")
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	// The sender is a regular recipient here: if its channel fails it gets
	// removed like anyone else, and its read loop winds down on its own.
	rt.fanOut(data)
	return nil
}

func (rt *Router) handlePrivate(sender *ClientRecord, env proto.Inbound) error {
	if env.To == "" {
		return rt.sendError(sender, proto.ErrTextPrivateNeedsTo)
	}

	out := proto.Message{
		Type: proto.OutboundTypeMessage,
		From: sender.ID,
		Name: sender.Name,
		To:   env.To,
	}

	if env.HasFile() {
		if !env.FileUsable() {
			return rt.sendError(sender, proto.ErrTextInvalidFile)
		}
		out.File = env.File
	} else {
		text := strings.TrimSpace(env.Text)
		if text == "" {
			return rt.sendError(sender, proto.ErrTextPrivateNeedsBody)
		}
		out.Text = text
	}

	target, ok := rt.reg.Get(env.To)
	if !ok {
		rt.log.Info().
			Str("from", sender.Name).
			Str("to", env.To).
			Msg("private target not connected")
		return rt.sendError(sender, proto.ErrTextTargetOffline)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}

	rt.log.Info().
		Str("from", sender.Name).
		Str("to", target.Name).
		Bool("file", out.File != nil).
		Msg("private message")

	// The sender sees its own private message too.
	sendErr := target.Conn.Send(data)
	if sendErr == nil {
		sendErr = sender.Conn.Send(data)
	}
	if sendErr != nil {
		rt.log.Warn().
			Err(sendErr).
			Str("from", sender.ID).
			Str("to", target.ID).
			Msg("private delivery failed")
		notifyErr := rt.sendError(sender, proto.ErrTextDeliverFailed)
		// The target, not the sender, is presumed dead; a broken sender is
		// discovered by its own read loop moments later.
		rt.removeClients([]string{target.ID})
		return notifyErr
	}
	return nil
}

// fanOut attempts one delivery to every client in the current snapshot.
// Failed recipients are collected and removed only after the full pass, so a
// dead peer cannot block delivery to the rest.
func (rt *Router) fanOut(data []byte) {
	var failed []string
	for _, rec := range rt.reg.Snapshot() {
		if err := rec.Conn.Send(data); err != nil {
			rt.log.Warn().
				Err(err).
				Str("client_id", rec.ID).
				Msg("send failed during fan-out")
			failed = append(failed, rec.ID)
		}
	}
	rt.removeClients(failed)
}

// removeClients unregisters the given ids and, if any were still present,
// rebroadcasts the updated list.
func (rt *Router) removeClients(ids []string) {
	removed := false
	for _, id := range ids {
		rec, ok := rt.reg.Unregister(id)
		if !ok {
			continue
		}
		removed = true
		_ = rec.Conn.Close()
		rt.sink.ClientDisconnected(rec.Info())
		rt.log.Info().
			Str("client_id", rec.ID).
			Str("name", rec.Name).
			Msg("client removed after failed delivery")
	}
	if removed {
		rt.BroadcastList()
	}
}

// BroadcastList sends a fresh list envelope to every registered client.
// Clients whose send fails are removed and the broadcast repeats with a new
// snapshot; the loop terminates because the registry only shrinks.
func (rt *Router) BroadcastList() {
	for {
		records := rt.reg.Snapshot()
		infos := make([]proto.ClientInfo, 0, len(records))
		for _, rec := range records {
			infos = append(infos, rec.Info())
		}
		data, err := json.Marshal(proto.NewList(infos))
		if err != nil {
			rt.log.Error().Err(err).Msg("marshal list envelope")
			return
		}

		var failed []string
		for _, rec := range records {
			if err := rec.Conn.Send(data); err != nil {
				failed = append(failed, rec.ID)
			}
		}
		if len(failed) == 0 {
			rt.sink.RegistrySnapshot(infos)
			return
		}
		for _, id := range failed {
			if rec, ok := rt.reg.Unregister(id); ok {
				_ = rec.Conn.Close()
				rt.sink.ClientDisconnected(rec.Info())
			}
		}
	}
}

func (rt *Router) sendError(rec *ClientRecord, msg string) error {
	data, err := json.Marshal(proto.NewError(msg))
	if err != nil {
		return err
	}
	return rec.Conn.Send(data)
}
