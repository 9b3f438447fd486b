package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Arnovii/Webchat/internal/proto"
)

// fakeConn records everything sent to it and can be flipped into a failing
// state to simulate a dead peer.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	broken bool
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("peer gone")
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// envelope is a loose decoding of any outbound payload for assertions.
type envelope struct {
	Type    string             `json:"type"`
	ID      string             `json:"id"`
	Message string             `json:"message"`
	From    string             `json:"from"`
	Name    string             `json:"name"`
	Group   bool               `json:"group"`
	To      string             `json:"to"`
	Text    string             `json:"text"`
	File    json.RawMessage    `json:"file"`
	Clients []proto.ClientInfo `json:"clients"`
}

func (c *fakeConn) envelopes(t *testing.T) []envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	envs := make([]envelope, 0, len(c.sent))
	for _, data := range c.sent {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("sent payload is not valid JSON: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

// ofType filters envelopes by their type discriminator.
func ofType(envs []envelope, typ string) []envelope {
	var out []envelope
	for _, env := range envs {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func lastList(t *testing.T, c *fakeConn) envelope {
	t.Helper()
	lists := ofType(c.envelopes(t), proto.OutboundTypeList)
	if len(lists) == 0 {
		t.Fatalf("no list envelope received")
	}
	return lists[len(lists)-1]
}

func listHas(env envelope, id string) bool {
	for _, cl := range env.Clients {
		if cl.ID == id {
			return true
		}
	}
	return false
}

func newTestRouter() (*Registry, *Router) {
	reg := NewRegistry()
	logger := zerolog.Nop()
	return reg, NewRouter(reg, nil, &logger)
}
