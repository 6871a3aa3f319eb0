// Package admin is the Admin Channel: reads newline-terminated commands
// from a control stream and acts on the running server. RESET truncates
// every table and then behaves as SHUTDOWN; SHUTDOWN stops the accept loop.
package admin

import (
	"bufio"
	"io"
	"net"
	"strings"

	"github.com/VictorNagibator/Messenger/server/internal/pkg/helpers"
	"github.com/VictorNagibator/Messenger/server/internal/storage"
)

// Channel reads admin commands from in and acts on store and listener.
// Already-connected sessions are left to run to their own EOF; only the
// accept loop is stopped.
type Channel struct {
	in       io.Reader
	store    *storage.Store
	listener net.Listener
	log      *helpers.Logger
}

// New returns a Channel reading from in.
func New(in io.Reader, store *storage.Store, listener net.Listener) *Channel {
	return &Channel{in: in, store: store, listener: listener, log: helpers.NewLogger("admin")}
}

// Run blocks, processing commands until in is closed or a SHUTDOWN/RESET is
// received. Intended to run on its own goroutine.
func (c *Channel) Run() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "RESET":
			c.log.Info("admin RESET received")
			if err := c.store.DeleteEverything(); err != nil {
				c.log.Error("admin RESET: delete everything", err)
			}
			c.shutdown()
			return
		case "SHUTDOWN":
			c.log.Info("admin SHUTDOWN received")
			c.shutdown()
			return
		case "":
			continue
		default:
			c.log.Warn("admin: unrecognised command", "cmd", cmd)
		}
	}
}

func (c *Channel) shutdown() {
	if err := c.listener.Close(); err != nil {
		c.log.Error("admin shutdown: close listener", err)
	}
}
