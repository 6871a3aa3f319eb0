package protocol

import "testing"

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		line    string
		wantCmd string
		wantRest string
	}{
		{"LOGIN alice p1", "LOGIN", "alice p1"},
		{"LIST_CHATS", "LIST_CHATS", ""},
		{"SEND 3 hello world\r\n", "SEND", "3 hello world"},
		{"", "", ""},
	}
	for _, c := range cases {
		cmd, rest := SplitCommand(c.line)
		if cmd != c.wantCmd || rest != c.wantRest {
			t.Errorf("SplitCommand(%q) = (%q, %q), want (%q, %q)", c.line, cmd, rest, c.wantCmd, c.wantRest)
		}
	}
}

func TestSplitNKeepsTrailingText(t *testing.T) {
	parts := SplitN("42 hello there world", 2)
	if len(parts) != 2 {
		t.Fatalf("len = %d, want 2", len(parts))
	}
	if parts[0] != "42" || parts[1] != "hello there world" {
		t.Errorf("got %#v", parts)
	}
}

func TestRenderChats(t *testing.T) {
	got := RenderChats([]ChatSummary{
		{ChatID: 1, IsGroup: false, Name: "", Members: []string{"alice", "bob"}},
		{ChatID: 2, IsGroup: true, Name: "team", Members: []string{"alice", "bob", "carol"}},
	})
	want := "1:0::alice,bob;2:1:team:alice,bob,carol"
	if got != want {
		t.Errorf("RenderChats = %q, want %q", got, want)
	}
}

func TestRenderChatsEmpty(t *testing.T) {
	if got := RenderChats(nil); got != "" {
		t.Errorf("RenderChats(nil) = %q, want empty", got)
	}
}

func TestMergeHistoryOrdersByTimestampMessageWinsTies(t *testing.T) {
	msgs := []HistoryEntry{
		NewMessageEntry("2024-01-01 10:00", "alice", "hi", 1),
		NewMessageEntry("2024-01-01 10:05", "bob", "yo", 2),
	}
	events := []HistoryEntry{
		NewEventEntry("2024-01-01 10:00", "carol", "LEFT"),
	}
	merged := MergeHistory(msgs, events)
	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	if merged[0].Rendered != msgs[0].Rendered {
		t.Errorf("first entry = %q, want %q (message wins the tie)", merged[0].Rendered, msgs[0].Rendered)
	}
	if merged[1].Rendered != events[0].Rendered {
		t.Errorf("second entry = %q, want event", merged[1].Rendered)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Timestamp < merged[i-1].Timestamp {
			t.Errorf("entries not monotonic: %q before %q", merged[i-1].Timestamp, merged[i].Timestamp)
		}
	}
}

func TestEventPhraseUnknownFallsBackToRawType(t *testing.T) {
	if got := EventPhrase("JOINED"); got != "JOINED" {
		t.Errorf("EventPhrase(unregistered) = %q, want the raw type back", got)
	}
	if got := EventPhrase("LEFT"); got == "LEFT" {
		t.Errorf("EventPhrase(LEFT) should be translated, got raw token back")
	}
}

func TestParseInt64(t *testing.T) {
	if v, ok := ParseInt64("42"); !ok || v != 42 {
		t.Errorf("ParseInt64(42) = (%d, %v), want (42, true)", v, ok)
	}
	if _, ok := ParseInt64("not-a-number"); ok {
		t.Errorf("ParseInt64(garbage) should fail")
	}
}
