// Package protocol implements the line-oriented wire grammar spoken by the
// chat server: command tokens, response/notification rendering, and the
// error vocabulary. Nothing in this package touches a socket or the store —
// it only turns values into wire lines and back.
package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Command tokens recognised by the dispatcher.
const (
	CmdRegister     = "REGISTER"
	CmdLogin        = "LOGIN"
	CmdListChats    = "LIST_CHATS"
	CmdCreateChat   = "CREATE_CHAT"
	CmdSend         = "SEND"
	CmdHistory      = "HISTORY"
	CmdDelete       = "DELETE"
	CmdDeleteGlobal = "DELETE_GLOBAL"
	CmdLeaveChat    = "LEAVE_CHAT"
	CmdGetUserID    = "GET_USER_ID"
)

// Error replies, written to the wire verbatim; each already carries the
// "ERROR" prefix.
const (
	ErrUserExists   = "ERROR USER_EXISTS"
	ErrNotCorrect   = "ERROR NOT_CORRECT"
	ErrNotLogged    = "ERROR NOT_LOGGED"
	ErrChatExists   = "ERROR CHAT_EXISTS"
	ErrNoChatAccess = "ERROR NO_CHAT_ACCESS"
	ErrNoRights     = "ERROR NO_RIGHTS"
	ErrNoSuchUser   = "ERROR NO_SUCH_USER"
	ErrUnknown      = "ERROR UNKNOWN"
	ErrGeneric      = "ERROR"
)

// Success line prefixes.
const (
	OKReg  = "OK REG"
	OKLog  = "OK LOGIN"
	OKLeft = "OK LEFT"
)

// Notification tokens pushed by the fan-out engine.
const (
	NotifyNewChat    = "NEW_CHAT"
	NotifyNewHistory = "NEW_HISTORY"
	NotifyMsgDeleted = "MSG_DELETED"
	NotifyUserLeft   = "USER_LEFT"
)

// eventPhrases maps a chat_events.event_type to the fixed phrase HISTORY
// renders for it. Externalised per the open question on event-phrase
// locale: a new locale or event type is one entry here, not a call-site
// change.
var eventPhrases = map[string]string{
	"LEFT": "покинул(а) чат",
}

// EventPhrase returns the rendered phrase for a chat event type, or the raw
// type itself if no phrase has been registered for it.
func EventPhrase(eventType string) string {
	if p, ok := eventPhrases[eventType]; ok {
		return p
	}
	return eventType
}

// SplitCommand separates the leading command token from the remainder of a
// line. The remainder is left unparsed since several commands (SEND) carry
// free text that must not be tokenised further than their fixed prefix.
func SplitCommand(line string) (cmd string, rest string) {
	line = strings.TrimRight(line, "\r\n")
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return line, ""
	}
	return line[:i], line[i+1:]
}

// SplitN behaves like strings.SplitN(s, " ", n), for commands whose final
// argument is free text that must not be tokenised further (SEND's message
// body).
func SplitN(s string, n int) []string {
	if s == "" {
		return nil
	}
	return strings.SplitN(s, " ", n)
}

// Fields tokenises a command remainder on single spaces, for commands whose
// arguments are all fixed tokens (no free text).
func Fields(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}

// ChatSummary is one row of a CHATS response.
type ChatSummary struct {
	ChatID  int64
	IsGroup bool
	Name    string
	Members []string
}

// RenderChats renders the LIST_CHATS response body (without the leading
// "CHATS " token or trailing newline), per spec: entries are ';'-separated,
// each entry is chat_id:isGroup(0|1):name:member1,member2,….
func RenderChats(chats []ChatSummary) string {
	entries := make([]string, 0, len(chats))
	for _, c := range chats {
		isGroup := "0"
		if c.IsGroup {
			isGroup = "1"
		}
		entries = append(entries, fmt.Sprintf("%d:%s:%s:%s",
			c.ChatID, isGroup, c.Name, strings.Join(c.Members, ",")))
	}
	return strings.Join(entries, ";")
}

// HistoryEntry is a single rendered row of a HISTORY response, carrying its
// sort timestamp ("YYYY-MM-DD HH:MM", lexicographically comparable)
// alongside the rendered text.
type HistoryEntry struct {
	Timestamp string
	Rendered  string
	// isMessage breaks ties in favor of messages over events, per the
	// HISTORY merge rule.
	isMessage bool
}

// NewMessageEntry renders a message row for a HISTORY response.
func NewMessageEntry(ts, username, content string, msgID int64) HistoryEntry {
	return HistoryEntry{
		Timestamp: ts,
		Rendered:  fmt.Sprintf("[%s] %s: %s (id=%d)", ts, username, content, msgID),
		isMessage: true,
	}
}

// NewEventEntry renders a chat-event row for a HISTORY response.
func NewEventEntry(ts, username, eventType string) HistoryEntry {
	return HistoryEntry{
		Timestamp: ts,
		Rendered:  fmt.Sprintf("[%s] * %s %s", ts, username, EventPhrase(eventType)),
		isMessage: false,
	}
}

// MergeHistory interleaves messages and events by timestamp, ties resolved
// in favor of messages. Both inputs must already be individually sorted by
// timestamp ascending.
func MergeHistory(messages, events []HistoryEntry) []HistoryEntry {
	merged := make([]HistoryEntry, 0, len(messages)+len(events))
	merged = append(merged, messages...)
	merged = append(merged, events...)
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.isMessage && !b.isMessage
	})
	return merged
}

// RenderHistory joins rendered entries into the wire body (no leading
// "HISTORY " token, no trailing newline): ';'-separated, no trailing ';'.
func RenderHistory(entries []HistoryEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Rendered
	}
	return strings.Join(parts, ";")
}

// ParseInt64 parses a decimal wire argument; ok is false on malformed input.
func ParseInt64(s string) (v int64, ok bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
