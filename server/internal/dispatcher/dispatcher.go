// Package dispatcher is the Command Dispatcher: one instance per
// connection, running a blocking read loop that parses one line into a
// command, validates session state, invokes the Persistence Store and
// Session Registry, emits a reply, and triggers fan-out where the protocol
// requires it.
package dispatcher

import (
	"fmt"
	"strings"

	"github.com/VictorNagibator/Messenger/server/internal/fanout"
	"github.com/VictorNagibator/Messenger/server/internal/pkg/helpers"
	"github.com/VictorNagibator/Messenger/server/internal/protocol"
	"github.com/VictorNagibator/Messenger/server/internal/session"
	"github.com/VictorNagibator/Messenger/server/internal/storage"
	"github.com/VictorNagibator/Messenger/server/internal/transport"
)

// notLoggedIn is the sentinel user id before LOGIN succeeds.
const notLoggedIn int64 = -1

// Store is the subset of the Persistence Store the dispatcher needs.
// Declared here, satisfied by *storage.Store, so unit tests can exercise
// command handling against a fake without a database.
type Store interface {
	RegisterUser(username, pwHash string) bool
	AuthenticateUser(username, pwHash string) int64
	CreatePrivateChat(u1, u2 int64) (chatID int64, created bool)
	CreateChat(isGroup bool, name string) int64
	AddUserToChat(chatID, userID int64) bool
	IsUserInChat(chatID, userID int64) bool
	StoreMessage(chatID, senderID int64, content string) int64
	GetChatHistory(chatID, userID int64) ([]storage.HistoryMessage, error)
	GetChatEvents(chatID int64) ([]storage.HistoryEvent, error)
	DeleteMessageForUser(msgID, userID int64) bool
	DeleteMessageGlobal(msgID int64) bool
	GetMessageSender(msgID int64) int64
	GetChatIDByMessage(msgID int64) int64
	RemoveUserFromChat(chatID, userID int64) (ok bool, eventTS string)
	ChatMembers(chatID int64) ([]string, error)
	ListUserChats(userID int64) ([]storage.UserChat, error)
	GetUserIDByName(name string) int64
	GetUsername(userID int64) string
}

// Dispatcher owns the per-connection command loop state.
type Dispatcher struct {
	conn     *transport.Conn
	store    Store
	registry *session.Registry
	fan      *fanout.Engine
	log      *helpers.Logger

	userID int64
}

// New returns a Dispatcher for a freshly accepted connection. Its loop has
// not started; call Run to begin processing lines.
func New(conn *transport.Conn, store Store, registry *session.Registry, fan *fanout.Engine) *Dispatcher {
	return &Dispatcher{
		conn:     conn,
		store:    store,
		registry: registry,
		fan:      fan,
		log:      helpers.NewLogger("dispatcher").With("conn_id", conn.ID()),
		userID:   notLoggedIn,
	}
}

// Run processes lines until the peer disconnects or a write fails fatally,
// then tears the session down. It is meant to be invoked as "go d.Run()"
// once per accepted connection.
func (d *Dispatcher) Run() {
	defer d.teardown()

	for {
		line, err := d.conn.ReadLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		reply := d.handle(line)
		if reply == "" {
			continue
		}
		if err := d.conn.WriteLine(reply); err != nil {
			return
		}
	}
}

func (d *Dispatcher) teardown() {
	d.registry.Unbind(d.conn)
	d.conn.Close()
	d.log.Debug("connection closed")
}

func (d *Dispatcher) loggedIn() bool {
	return d.userID != notLoggedIn
}

// handle dispatches a single parsed line to its command handler, returning
// the full reply line (without trailing newline).
func (d *Dispatcher) handle(line string) string {
	cmd, rest := protocol.SplitCommand(line)
	d.log.Debug("dispatch command", "cmd", cmd)

	switch cmd {
	case protocol.CmdRegister:
		return d.handleRegister(rest)
	case protocol.CmdLogin:
		return d.handleLogin(rest)
	case protocol.CmdGetUserID:
		return d.handleGetUserID(rest)
	case protocol.CmdListChats:
		return d.requireLogin(d.handleListChats)
	case protocol.CmdCreateChat:
		return d.requireLoginArg(rest, d.handleCreateChat)
	case protocol.CmdSend:
		return d.requireLoginArg(rest, d.handleSend)
	case protocol.CmdHistory:
		return d.requireLoginArg(rest, d.handleHistory)
	case protocol.CmdDelete:
		return d.requireLoginArg(rest, d.handleDelete)
	case protocol.CmdDeleteGlobal:
		return d.requireLoginArg(rest, d.handleDeleteGlobal)
	case protocol.CmdLeaveChat:
		return d.requireLoginArg(rest, d.handleLeaveChat)
	default:
		d.log.Warn("unknown command", "cmd", cmd)
		return protocol.ErrUnknown
	}
}

func (d *Dispatcher) requireLogin(fn func() string) string {
	if !d.loggedIn() {
		return protocol.ErrNotLogged
	}
	return fn()
}

func (d *Dispatcher) requireLoginArg(rest string, fn func(string) string) string {
	if !d.loggedIn() {
		return protocol.ErrNotLogged
	}
	return fn(rest)
}

func (d *Dispatcher) handleRegister(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 2 {
		return protocol.ErrGeneric
	}
	username, pwHash := args[0], args[1]
	if !d.store.RegisterUser(username, pwHash) {
		return protocol.ErrUserExists
	}
	return protocol.OKReg
}

func (d *Dispatcher) handleLogin(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 2 {
		return protocol.ErrGeneric
	}
	username, pwHash := args[0], args[1]
	userID := d.store.AuthenticateUser(username, pwHash)
	if userID == -1 {
		return protocol.ErrNotCorrect
	}
	d.userID = userID
	d.log = d.log.With("user_id", userID)
	d.registry.Bind(d.conn, userID)
	d.log.Info("login")
	return protocol.OKLog
}

func (d *Dispatcher) handleGetUserID(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 1 || args[0] == "" {
		return protocol.ErrGeneric
	}
	userID := d.store.GetUserIDByName(args[0])
	if userID == -1 {
		return protocol.ErrNoSuchUser
	}
	return fmt.Sprintf("%d", userID)
}

func (d *Dispatcher) handleListChats() string {
	chats, err := d.store.ListUserChats(d.userID)
	if err != nil {
		d.log.Error("list chats", err)
		return protocol.ErrGeneric
	}

	summaries := make([]protocol.ChatSummary, 0, len(chats))
	chatIDs := make([]int64, 0, len(chats))
	for _, c := range chats {
		members, err := d.store.ChatMembers(c.ChatID)
		if err != nil {
			d.log.Error("chat members", err, "chat_id", c.ChatID)
			return protocol.ErrGeneric
		}
		summaries = append(summaries, protocol.ChatSummary{
			ChatID:  c.ChatID,
			IsGroup: c.IsGroup,
			Name:    c.Name,
			Members: members,
		})
		chatIDs = append(chatIDs, c.ChatID)
	}

	d.registry.SetSubscriptions(d.conn, chatIDs)
	return "CHATS " + protocol.RenderChats(summaries)
}

func (d *Dispatcher) handleCreateChat(rest string) string {
	args := protocol.Fields(rest)
	if len(args) < 2 {
		return protocol.ErrGeneric
	}

	switch args[0] {
	case "0":
		return d.handleCreatePrivateChat(args[1:])
	case "1":
		return d.handleCreateGroupChat(args[1:])
	default:
		return protocol.ErrGeneric
	}
}

func (d *Dispatcher) handleCreatePrivateChat(args []string) string {
	if len(args) != 1 {
		return protocol.ErrGeneric
	}
	peerID, ok := protocol.ParseInt64(args[0])
	if !ok {
		return protocol.ErrGeneric
	}

	chatID, created := d.store.CreatePrivateChat(d.userID, peerID)
	if chatID == -1 {
		d.log.Error("create private chat", fmt.Errorf("store returned -1"), "peer_id", peerID)
		return protocol.ErrGeneric
	}
	if !created {
		return protocol.ErrChatExists
	}

	d.fan.ToUser(d.userID, protocol.NotifyNewChat)
	d.fan.ToUser(peerID, protocol.NotifyNewChat)
	return fmt.Sprintf("%d", chatID)
}

func (d *Dispatcher) handleCreateGroupChat(args []string) string {
	if len(args) < 2 {
		return protocol.ErrGeneric
	}
	groupName := args[0]

	members := make(map[int64]struct{}, len(args))
	members[d.userID] = struct{}{}
	for _, a := range args[1:] {
		id, ok := protocol.ParseInt64(a)
		if !ok {
			return protocol.ErrGeneric
		}
		members[id] = struct{}{}
	}

	chatID := d.store.CreateChat(true, groupName)
	if chatID == -1 {
		d.log.Error("create group chat", fmt.Errorf("store returned -1"), "name", groupName)
		return protocol.ErrGeneric
	}
	for memberID := range members {
		d.store.AddUserToChat(chatID, memberID)
	}
	for memberID := range members {
		d.fan.ToUser(memberID, protocol.NotifyNewChat)
	}
	return fmt.Sprintf("%d", chatID)
}

func (d *Dispatcher) handleSend(rest string) string {
	parts := protocol.SplitN(rest, 2)
	if len(parts) != 2 {
		return protocol.ErrGeneric
	}
	chatID, ok := protocol.ParseInt64(parts[0])
	if !ok {
		return protocol.ErrGeneric
	}
	text := parts[1]

	if !d.store.IsUserInChat(chatID, d.userID) {
		return protocol.ErrNoChatAccess
	}

	msgID := d.store.StoreMessage(chatID, d.userID, text)
	if msgID == -1 {
		d.log.Error("store message", fmt.Errorf("store returned -1"), "chat_id", chatID)
		return protocol.ErrGeneric
	}

	d.fan.ToChat(chatID, fmt.Sprintf("%s %d", protocol.NotifyNewHistory, chatID), d.conn)
	return fmt.Sprintf("OK SENT %d", msgID)
}

func (d *Dispatcher) handleHistory(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 1 {
		return protocol.ErrGeneric
	}
	chatID, ok := protocol.ParseInt64(args[0])
	if !ok {
		return protocol.ErrGeneric
	}

	if !d.store.IsUserInChat(chatID, d.userID) {
		return protocol.ErrNoChatAccess
	}

	messages, err := d.store.GetChatHistory(chatID, d.userID)
	if err != nil {
		d.log.Error("get chat history", err, "chat_id", chatID)
		return protocol.ErrGeneric
	}
	events, err := d.store.GetChatEvents(chatID)
	if err != nil {
		d.log.Error("get chat events", err, "chat_id", chatID)
		return protocol.ErrGeneric
	}

	msgEntries := make([]protocol.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		msgEntries = append(msgEntries, protocol.NewMessageEntry(m.Timestamp, m.SenderName, m.Content, m.MsgID))
	}
	eventEntries := make([]protocol.HistoryEntry, 0, len(events))
	for _, e := range events {
		eventEntries = append(eventEntries, protocol.NewEventEntry(e.Timestamp, e.Username, e.EventType))
	}

	merged := protocol.MergeHistory(msgEntries, eventEntries)
	return "HISTORY " + protocol.RenderHistory(merged)
}

func (d *Dispatcher) handleDelete(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 1 {
		return protocol.ErrGeneric
	}
	msgID, ok := protocol.ParseInt64(args[0])
	if !ok {
		return protocol.ErrGeneric
	}

	if d.store.GetMessageSender(msgID) != d.userID {
		return protocol.ErrNoRights
	}

	d.store.DeleteMessageForUser(msgID, d.userID)
	return fmt.Sprintf("%s %d", protocol.NotifyMsgDeleted, msgID)
}

func (d *Dispatcher) handleDeleteGlobal(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 1 {
		return protocol.ErrGeneric
	}
	msgID, ok := protocol.ParseInt64(args[0])
	if !ok {
		return protocol.ErrGeneric
	}

	if d.store.GetMessageSender(msgID) != d.userID {
		return protocol.ErrNoRights
	}

	chatID := d.store.GetChatIDByMessage(msgID)
	if !d.store.DeleteMessageGlobal(msgID) {
		d.log.Error("delete message global", fmt.Errorf("store returned false"), "msg_id", msgID)
		return protocol.ErrGeneric
	}

	line := fmt.Sprintf("%s %d", protocol.NotifyMsgDeleted, msgID)
	if chatID != -1 {
		d.fan.ToChat(chatID, line, nil)
	}
	return line
}

func (d *Dispatcher) handleLeaveChat(rest string) string {
	args := protocol.Fields(rest)
	if len(args) != 1 {
		return protocol.ErrGeneric
	}
	chatID, ok := protocol.ParseInt64(args[0])
	if !ok {
		return protocol.ErrGeneric
	}

	if !d.store.IsUserInChat(chatID, d.userID) {
		return protocol.ErrGeneric
	}

	ok, eventTS := d.store.RemoveUserFromChat(chatID, d.userID)
	if !ok {
		d.log.Error("remove user from chat", fmt.Errorf("store returned false"), "chat_id", chatID)
		return protocol.ErrGeneric
	}

	username := d.store.GetUsername(d.userID)
	d.registry.Unsubscribe(d.conn, chatID)

	dateTime := strings.SplitN(eventTS, " ", 2)
	date, clock := eventTS, ""
	if len(dateTime) == 2 {
		date, clock = dateTime[0], dateTime[1]
	}
	d.fan.ToChat(chatID, fmt.Sprintf("%s %d %s %s %s", protocol.NotifyUserLeft, chatID, username, date, clock), nil)

	return protocol.OKLeft
}
