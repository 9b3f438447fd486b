// Package console renders registry state for the server operator. It is the
// only consumer of membership notices; the core never reads anything back.
package console

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/Arnovii/Webchat/internal/proto"
)

// Console logs connect/disconnect notices and prints a table of connected
// clients after every membership change.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	log *zerolog.Logger
}

// New builds a console sink writing its table to out.
func New(logger *zerolog.Logger, out io.Writer) *Console {
	return &Console{out: out, log: logger}
}

func (c *Console) ClientConnected(info proto.ClientInfo) {
	c.log.Info().
		Str("client_id", info.ID).
		Str("name", info.Name).
		Str("addr", fmt.Sprintf("%s:%d", info.IP, info.Port)).
		Msg("client connected")
}

func (c *Console) ClientDisconnected(info proto.ClientInfo) {
	c.log.Info().
		Str("client_id", info.ID).
		Str("name", info.Name).
		Str("addr", fmt.Sprintf("%s:%d", info.IP, info.Port)).
		Msg("client disconnected")
}

func (c *Console) RegistrySnapshot(clients []proto.ClientInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := tabwriter.NewWriter(c.out, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "connected clients (%d)\n", len(clients))
	fmt.Fprintln(w, "ID\tNAME\tIP\tPORT")
	for _, cl := range clients {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cl.ID, cl.Name, cl.IP, strconv.Itoa(cl.Port))
	}
	_ = w.Flush()
}
