// Package fanout is the Fan-out Engine: given an audience derived from the
// Session Registry, deliver one notification line to every member of it.
// It never holds a registry lock while writing — callers already get a
// snapshot from the registry, and this package only iterates and writes.
package fanout

import (
	"github.com/VictorNagibator/Messenger/server/internal/pkg/helpers"
	"github.com/VictorNagibator/Messenger/server/internal/session"
)

// Engine delivers notifications to audiences resolved by a Registry.
type Engine struct {
	registry *session.Registry
	log      *helpers.Logger
}

// New returns an Engine backed by registry.
func New(registry *session.Registry) *Engine {
	return &Engine{registry: registry, log: helpers.NewLogger("fanout")}
}

// ToUser delivers line to every connection currently bound to userID. Used
// for NEW_CHAT notifications to an explicit member list.
func (e *Engine) ToUser(userID int64, line string) {
	for _, c := range e.registry.SocketsOf(userID) {
		e.deliver(c, line)
	}
}

// ToChat delivers line to every connection subscribed to chatID, optionally
// excluding the originating connection. Used for NEW_HISTORY, MSG_DELETED,
// and USER_LEFT.
func (e *Engine) ToChat(chatID int64, line string, except session.Conn) {
	for _, c := range e.registry.SubscribersOf(chatID) {
		if except != nil && c == except {
			continue
		}
		e.deliver(c, line)
	}
}

// deliver writes to a single recipient. A failed write means the
// connection is effectively gone; its own reader loop will discover the
// same thing on its next read and tear the session down. Fan-out must
// never block or abort because one recipient is dead.
func (e *Engine) deliver(c session.Conn, line string) {
	if err := c.WriteLine(line); err != nil {
		e.log.Error("fan-out write failed, recipient likely disconnected", err)
	}
}
