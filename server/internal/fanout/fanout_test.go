package fanout

import (
	"errors"
	"testing"

	"github.com/VictorNagibator/Messenger/server/internal/session"
)

// recordingConn records every line it was asked to write; it can be made
// to fail writes to simulate a dead recipient.
type recordingConn struct {
	lines []string
	fail  bool
}

func (c *recordingConn) WriteLine(line string) error {
	if c.fail {
		return errors.New("write failed")
	}
	c.lines = append(c.lines, line)
	return nil
}

func TestToUserDeliversToEverySocketOfThatUser(t *testing.T) {
	r := session.New()
	a, b, other := &recordingConn{}, &recordingConn{}, &recordingConn{}
	r.Bind(a, 1)
	r.Bind(b, 1)
	r.Bind(other, 2)

	e := New(r)
	e.ToUser(1, "NEW_CHAT")

	if len(a.lines) != 1 || a.lines[0] != "NEW_CHAT" {
		t.Errorf("a did not receive the notification: %#v", a.lines)
	}
	if len(b.lines) != 1 || b.lines[0] != "NEW_CHAT" {
		t.Errorf("b did not receive the notification: %#v", b.lines)
	}
	if len(other.lines) != 0 {
		t.Errorf("other user's socket should not receive the notification")
	}
}

func TestToChatExcludesOriginator(t *testing.T) {
	r := session.New()
	origin, other := &recordingConn{}, &recordingConn{}
	r.SetSubscriptions(origin, []int64{5})
	r.SetSubscriptions(other, []int64{5})

	e := New(r)
	e.ToChat(5, "NEW_HISTORY 5", origin)

	if len(origin.lines) != 0 {
		t.Errorf("originator should not receive its own fan-out, got %#v", origin.lines)
	}
	if len(other.lines) != 1 {
		t.Errorf("other subscriber should receive exactly one line, got %#v", other.lines)
	}
}

func TestToChatWithoutExclusionReachesOriginatorToo(t *testing.T) {
	r := session.New()
	origin, other := &recordingConn{}, &recordingConn{}
	r.SetSubscriptions(origin, []int64{5})
	r.SetSubscriptions(other, []int64{5})

	e := New(r)
	e.ToChat(5, "MSG_DELETED 9", nil)

	if len(origin.lines) != 1 || len(other.lines) != 1 {
		t.Errorf("both subscribers should receive the line when except is nil")
	}
}

func TestDeliveryToDeadSocketDoesNotBlockOthers(t *testing.T) {
	r := session.New()
	dead, alive := &recordingConn{fail: true}, &recordingConn{}
	r.SetSubscriptions(dead, []int64{1})
	r.SetSubscriptions(alive, []int64{1})

	e := New(r)
	e.ToChat(1, "MSG_DELETED 1", nil)

	if len(alive.lines) != 1 {
		t.Errorf("alive recipient should still receive the line despite dead.WriteLine failing")
	}
}
