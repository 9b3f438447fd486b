package core

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Arnovii/Webchat/internal/proto"
)

// maxNameLen caps client display names; longer names are truncated.
const maxNameLen = 32

// Addr is a client's remote endpoint as reported by the transport.
type Addr struct {
	Host string
	Port int
}

// UnknownAddr is the sentinel for transports that report no peer address.
var UnknownAddr = Addr{Host: "-"}

// ClientRecord is one registered connection. Records are immutable after
// creation and owned by the Registry; other components obtain them only
// through Registry operations.
type ClientRecord struct {
	ID   string
	Name string
	Conn Conn
	Addr Addr
}

// Info converts the record to its wire representation.
func (r *ClientRecord) Info() proto.ClientInfo {
	return proto.ClientInfo{
		ID:   r.ID,
		Name: r.Name,
		IP:   r.Addr.Host,
		Port: r.Addr.Port,
	}
}

// Registry is the authoritative mapping from client id to connection
// metadata. An id is present iff the server considers that connection live.
// All operations are linearizable with respect to each other.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*ClientRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*ClientRecord),
	}
}

// Register assigns a fresh id, inserts a record and returns it. Ids are
// never reused for the lifetime of the process and never chosen by clients.
func (reg *Registry) Register(conn Conn, addr Addr, name string) *ClientRecord {
	if runes := []rune(name); len(runes) > maxNameLen {
		name = string(runes[:maxNameLen])
	}

	rec := &ClientRecord{
		ID:   uuid.NewString(),
		Name: name,
		Conn: conn,
		Addr: addr,
	}

	reg.mu.Lock()
	reg.clients[rec.ID] = rec
	reg.mu.Unlock()

	return rec
}

// Unregister removes and returns the record for id. Removing an absent id is
// a no-op, so the termination path may call it any number of times.
func (reg *Registry) Unregister(id string) (*ClientRecord, bool) {
	reg.mu.Lock()
	rec, ok := reg.clients[id]
	if ok {
		delete(reg.clients, id)
	}
	reg.mu.Unlock()
	return rec, ok
}

// Get returns the record for id if it is currently registered.
func (reg *Registry) Get(id string) (*ClientRecord, bool) {
	reg.mu.RLock()
	rec, ok := reg.clients[id]
	reg.mu.RUnlock()
	return rec, ok
}

// Snapshot returns a point-in-time copy of all records, safe to iterate
// without holding any lock.
func (reg *Registry) Snapshot() []*ClientRecord {
	reg.mu.RLock()
	records := make([]*ClientRecord, 0, len(reg.clients))
	for _, rec := range reg.clients {
		records = append(records, rec)
	}
	reg.mu.RUnlock()
	return records
}

// Len reports the number of registered clients.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	n := len(reg.clients)
	reg.mu.RUnlock()
	return n
}

// InfoSnapshot returns the wire representation of Snapshot.
func (reg *Registry) InfoSnapshot() []proto.ClientInfo {
	records := reg.Snapshot()
	infos := make([]proto.ClientInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, rec.Info())
	}
	return infos
}
