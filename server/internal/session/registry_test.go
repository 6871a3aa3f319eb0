package session

import "testing"

// fakeConn is a minimal session.Conn for registry tests; it records
// nothing and never errors, since the registry never calls WriteLine
// itself.
type fakeConn struct{ id int }

func (f *fakeConn) WriteLine(line string) error { return nil }

func TestBindAndUserOf(t *testing.T) {
	r := New()
	c := &fakeConn{1}

	if _, ok := r.UserOf(c); ok {
		t.Fatalf("unbound connection should not resolve to a user")
	}

	r.Bind(c, 7)
	id, ok := r.UserOf(c)
	if !ok || id != 7 {
		t.Fatalf("UserOf = (%d, %v), want (7, true)", id, ok)
	}
}

func TestSocketsOfReturnsAllConnectionsForUser(t *testing.T) {
	r := New()
	a, b := &fakeConn{1}, &fakeConn{2}

	r.Bind(a, 9)
	r.Bind(b, 9)

	socks := r.SocketsOf(9)
	if len(socks) != 2 {
		t.Fatalf("len(SocketsOf) = %d, want 2", len(socks))
	}
}

func TestSetSubscriptionsReplacesAtomically(t *testing.T) {
	r := New()
	c := &fakeConn{1}

	r.SetSubscriptions(c, []int64{1, 2, 3})
	for _, chatID := range []int64{1, 2, 3} {
		if subs := r.SubscribersOf(chatID); len(subs) != 1 {
			t.Fatalf("chat %d: len(SubscribersOf) = %d, want 1", chatID, len(subs))
		}
	}

	r.SetSubscriptions(c, []int64{3, 4})
	if subs := r.SubscribersOf(1); len(subs) != 0 {
		t.Errorf("chat 1 should have no subscribers after replacement, got %d", len(subs))
	}
	if subs := r.SubscribersOf(3); len(subs) != 1 {
		t.Errorf("chat 3 should still have the subscriber, got %d", len(subs))
	}
	if subs := r.SubscribersOf(4); len(subs) != 1 {
		t.Errorf("chat 4 should have the new subscriber, got %d", len(subs))
	}
}

func TestUnsubscribeRemovesSingleChat(t *testing.T) {
	r := New()
	c := &fakeConn{1}
	r.SetSubscriptions(c, []int64{1, 2})

	r.Unsubscribe(c, 1)

	if subs := r.SubscribersOf(1); len(subs) != 0 {
		t.Errorf("chat 1 should be empty after Unsubscribe")
	}
	if subs := r.SubscribersOf(2); len(subs) != 1 {
		t.Errorf("chat 2 should be unaffected")
	}
}

func TestUnbindClearsEverything(t *testing.T) {
	r := New()
	c := &fakeConn{1}

	r.Bind(c, 5)
	r.SetSubscriptions(c, []int64{10, 20})

	r.Unbind(c)

	if _, ok := r.UserOf(c); ok {
		t.Errorf("UserOf should fail after Unbind")
	}
	if socks := r.SocketsOf(5); len(socks) != 0 {
		t.Errorf("SocketsOf(5) should be empty after Unbind")
	}
	for _, chatID := range []int64{10, 20} {
		if subs := r.SubscribersOf(chatID); len(subs) != 0 {
			t.Errorf("chat %d should have no subscribers after Unbind", chatID)
		}
	}
}

func TestMultipleUsersIndependentSubscriptions(t *testing.T) {
	r := New()
	a, b := &fakeConn{1}, &fakeConn{2}

	r.Bind(a, 1)
	r.Bind(b, 2)
	r.SetSubscriptions(a, []int64{100})
	r.SetSubscriptions(b, []int64{100})

	subs := r.SubscribersOf(100)
	if len(subs) != 2 {
		t.Fatalf("len(SubscribersOf(100)) = %d, want 2", len(subs))
	}
}
