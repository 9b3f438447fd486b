package http

import (
	"encoding/json"
	"net"
	stdhttp "net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/Arnovii/Webchat/internal/config"
	"github.com/Arnovii/Webchat/internal/core"
	"github.com/Arnovii/Webchat/internal/proto"
)

// WSHandler upgrades HTTP connections and supervises each resulting client:
// registration handshake, steady-state read loop, unregistration on exit.
type WSHandler struct {
	reg *core.Registry
	rt  *core.Router
	cfg config.Config
	log *zerolog.Logger
}

// NewWSHandler builds the websocket endpoint handler.
func NewWSHandler(reg *core.Registry, rt *core.Router, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{reg: reg, rt: rt, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	ch := newWSConn(conn, h.cfg.WriteTimeout)
	rec, ok := h.handshake(r, conn, ch)
	if !ok {
		_ = conn.Close(websocket.StatusPolicyViolation, "registration failed")
		return
	}

	h.rt.ClientJoined(rec)
	h.readLoop(r, conn, ch, rec)

	// Single recovery point: whatever ended the loop, the client leaves the
	// registry and everyone else gets a fresh list.
	h.rt.ClientLeft(rec.ID)
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
}

// handshake reads exactly one inbound message and requires it to be a
// register envelope with a name. On any failure it sends a single error
// envelope and reports false without ever creating a client id.
func (h *WSHandler) handshake(r *stdhttp.Request, conn *websocket.Conn, ch *wsConn) (*core.ClientRecord, bool) {
	_, data, err := conn.Read(r.Context())
	if err != nil {
		h.log.Debug().Err(err).Msg("connection closed before registration")
		return nil, false
	}

	var env proto.Inbound
	if err := json.Unmarshal(data, &env); err != nil {
		h.sendError(ch, proto.ErrTextRegisterJSON)
		return nil, false
	}
	if env.Type != proto.InboundTypeRegister || env.Name == "" {
		h.sendError(ch, proto.ErrTextRegisterFirst)
		return nil, false
	}

	rec := h.reg.Register(ch, remoteAddr(r), env.Name)

	out, err := json.Marshal(proto.NewRegistered(rec.ID))
	if err == nil {
		err = ch.Send(out)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", rec.ID).Msg("failed to confirm registration")
		h.reg.Unregister(rec.ID)
		return nil, false
	}
	return rec, true
}

// readLoop pulls inbound messages until the channel closes or the sender's
// channel proves broken. Decode failures get an error reply and the loop
// continues; they are not grounds for disconnection.
func (h *WSHandler) readLoop(r *stdhttp.Request, conn *websocket.Conn, ch *wsConn, rec *core.ClientRecord) {
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
				h.log.Debug().Str("client_id", rec.ID).Msg("connection closed")
			} else {
				h.log.Debug().Err(err).Str("client_id", rec.ID).Msg("read failed")
			}
			return
		}

		var env proto.Inbound
		if err := json.Unmarshal(data, &env); err != nil {
			if serr := ch.Send(mustErrorEnvelope(proto.ErrTextInvalidJSON)); serr != nil {
				return
			}
			continue
		}

		if err := h.rt.HandleInbound(rec.ID, env); err != nil {
			h.log.Warn().Err(err).Str("client_id", rec.ID).Msg("sender channel broken")
			return
		}
	}
}

func (h *WSHandler) sendError(ch *wsConn, msg string) {
	if err := ch.Send(mustErrorEnvelope(msg)); err != nil {
		h.log.Debug().Err(err).Msg("failed to send error envelope")
	}
}

func mustErrorEnvelope(msg string) []byte {
	data, err := json.Marshal(proto.NewError(msg))
	if err != nil {
		panic(err)
	}
	return data
}

func remoteAddr(r *stdhttp.Request) core.Addr {
	host, portStr, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return core.UnknownAddr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return core.Addr{Host: host}
	}
	return core.Addr{Host: host, Port: port}
}
