package proto

import (
	"bytes"
	"encoding/json"
)

// Message type discriminators. Inbound and outbound share one flat envelope
// shape with a top-level "type" field.
const (
	InboundTypeRegister    = "register"
	InboundTypeListRequest = "list_request"
	InboundTypeGroup       = "group"
	InboundTypePrivate     = "private"

	OutboundTypeRegistered = "registered"
	OutboundTypeList       = "list"
	OutboundTypeMessage    = "message"
	OutboundTypeError      = "error"
)

// Error texts sent to clients. The wording is part of the wire contract.
const (
	ErrTextRegisterJSON     = "first message must be valid JSON register"
	ErrTextRegisterFirst    = "first message must be register with name"
	ErrTextInvalidJSON      = "invalid json"
	ErrTextUnknownType      = "unknown message type"
	ErrTextPrivateNeedsTo   = "private requires 'to'"
	ErrTextPrivateNeedsBody = "private requires 'text' or 'file'"
	ErrTextInvalidFile      = "invalid file data"
	ErrTextTargetOffline    = "target not connected"
	ErrTextDeliverFailed    = "failed to deliver"
)

// Inbound is the envelope for client-to-server messages. Field presence is
// significant: group and private messages carry either text or a file.
type Inbound struct {
	Type string          `json:"type"`
	Name string          `json:"name,omitempty"`
	To   string          `json:"to,omitempty"`
	Text string          `json:"text,omitempty"`
	File json.RawMessage `json:"file,omitempty"`
}

// HasFile reports whether the envelope carried a file field at all.
func (in Inbound) HasFile() bool {
	return len(in.File) > 0
}

// FileUsable reports whether the file payload actually holds attachment data.
// A missing, null or empty value does not count.
func (in Inbound) FileUsable() bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, in.File); err != nil {
		return false
	}
	switch buf.String() {
	case "", "null", "{}", `""`, "[]":
		return false
	}
	return true
}

// FileName extracts the attachment name for log lines.
func (in Inbound) FileName() string {
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(in.File, &meta); err != nil || meta.Name == "" {
		return "unknown"
	}
	return meta.Name
}

// ClientInfo is one registry entry as rendered in list envelopes.
type ClientInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Registered confirms a successful handshake and carries the assigned id.
type Registered struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// List is a point-in-time snapshot of all connected clients.
type List struct {
	Type    string       `json:"type"`
	Clients []ClientInfo `json:"clients"`
}

// Message is a relayed chat payload. Every recipient of one inbound message
// receives identical bytes.
type Message struct {
	Type  string          `json:"type"`
	From  string          `json:"from"`
	Name  string          `json:"name"`
	Group bool            `json:"group"`
	To    string          `json:"to,omitempty"`
	Text  string          `json:"text,omitempty"`
	File  json.RawMessage `json:"file,omitempty"`
}

// Error reports a protocol-level failure to the offending sender.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRegistered(id string) Registered {
	return Registered{Type: OutboundTypeRegistered, ID: id}
}

func NewList(clients []ClientInfo) List {
	return List{Type: OutboundTypeList, Clients: clients}
}

func NewError(msg string) Error {
	return Error{Type: OutboundTypeError, Message: msg}
}
