// Package storage is the Persistence Store: typed, serialised operations
// over six tables (users, chats, chat_members, messages,
// user_deleted_messages, chat_events). Every exported method acquires the
// store's mutex for its full duration, so callers never need to
// synchronise around it themselves.
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/VictorNagibator/Messenger/server/internal/config"
	"github.com/VictorNagibator/Messenger/server/internal/pkg/helpers"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id       SERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
	chat_id   SERIAL PRIMARY KEY,
	is_group  BOOLEAN NOT NULL DEFAULT FALSE,
	chat_name TEXT
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
	user_id INTEGER NOT NULL REFERENCES users(user_id),
	PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	msg_id     SERIAL PRIMARY KEY,
	chat_id    INTEGER NOT NULL REFERENCES chats(chat_id),
	sender_id  INTEGER NOT NULL REFERENCES users(user_id),
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS user_deleted_messages (
	msg_id  INTEGER NOT NULL REFERENCES messages(msg_id),
	user_id INTEGER NOT NULL REFERENCES users(user_id),
	PRIMARY KEY (msg_id, user_id)
);

CREATE TABLE IF NOT EXISTS chat_events (
	chat_id    INTEGER NOT NULL REFERENCES chats(chat_id),
	user_id    INTEGER NOT NULL REFERENCES users(user_id),
	event_type TEXT NOT NULL,
	event_ts   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id);
CREATE INDEX IF NOT EXISTS idx_chat_events_chat ON chat_events(chat_id);
CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
`

// tsLayout is the wire timestamp format: "YYYY-MM-DD HH:MM", no seconds.
// Formatted in UTC (the open question on timestamp zone, resolved: UTC).
const tsLayout = "2006-01-02 15:04"

// Store is the Persistence Store.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *helpers.Logger
}

// New opens the store's database connection and verifies it is reachable.
func New(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, log: helpers.NewLogger("storage")}, nil
}

// Close releases the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema idempotently creates all six tables and their indexes.
func (s *Store) InitSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// RegisterUser inserts a new user row if the username is free. Returns
// false (not an error) if the username already exists.
func (s *Store) RegisterUser(username, pwHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`,
		username, pwHash,
	)
	if err != nil {
		s.log.Error("register user", err, "username", username)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.log.Error("register user rows affected", err, "username", username)
		return false
	}
	return n == 1
}

// AuthenticateUser matches username and password hash exactly, returning
// the user id or -1 if no row matches.
func (s *Store) AuthenticateUser(username, pwHash string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var userID int64
	err := s.db.QueryRow(
		`SELECT user_id FROM users WHERE username = $1 AND password_hash = $2`,
		username, pwHash,
	).Scan(&userID)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Error("authenticate user", err, "username", username)
		}
		return -1
	}
	return userID
}

// FindPrivateChat returns the chat id of an existing non-group chat that
// has both u1 and u2 as members, or -1 if none exists. Other members of
// that chat are not checked.
func (s *Store) FindPrivateChat(u1, u2 int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findPrivateChatLocked(u1, u2)
}

func (s *Store) findPrivateChatLocked(u1, u2 int64) int64 {
	var chatID int64
	err := s.db.QueryRow(`
		SELECT c.chat_id
		FROM chats c
		JOIN chat_members m1 ON m1.chat_id = c.chat_id AND m1.user_id = $1
		JOIN chat_members m2 ON m2.chat_id = c.chat_id AND m2.user_id = $2
		WHERE c.is_group = FALSE
		GROUP BY c.chat_id
		LIMIT 1`,
		u1, u2,
	).Scan(&chatID)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Error("find private chat", err, "u1", u1, "u2", u2)
		}
		return -1
	}
	return chatID
}

// CreateChat inserts a new chat row. For private chats name is stored as
// NULL. Returns the new chat id, or -1 on failure.
func (s *Store) CreateChat(isGroup bool, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createChatLocked(isGroup, name)
}

func (s *Store) createChatLocked(isGroup bool, name string) int64 {
	var chatName sql.NullString
	if isGroup && name != "" {
		chatName = sql.NullString{String: name, Valid: true}
	}
	var chatID int64
	err := s.db.QueryRow(
		`INSERT INTO chats (is_group, chat_name) VALUES ($1, $2) RETURNING chat_id`,
		isGroup, chatName,
	).Scan(&chatID)
	if err != nil {
		s.log.Error("create chat", err, "is_group", isGroup)
		return -1
	}
	return chatID
}

// CreatePrivateChat atomically checks for an existing private chat between
// u1 and u2 and creates one if absent, all under the store's single mutex
// so the uniqueness invariant holds under concurrent CREATE_CHAT 0 calls.
// Returns (chatID, created). created is false both when an existing chat
// was found and when creation itself failed (chatID is -1 in the latter
// case).
func (s *Store) CreatePrivateChat(u1, u2 int64) (chatID int64, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findPrivateChatLocked(u1, u2); existing != -1 {
		return existing, false
	}
	newID := s.createChatLocked(false, "")
	if newID == -1 {
		return -1, false
	}
	if !s.addUserToChatLocked(newID, u1) || !s.addUserToChatLocked(newID, u2) {
		return -1, false
	}
	return newID, true
}

// AddUserToChat inserts a membership row; idempotent under conflict.
func (s *Store) AddUserToChat(chatID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserToChatLocked(chatID, userID)
}

func (s *Store) addUserToChatLocked(chatID, userID int64) bool {
	_, err := s.db.Exec(
		`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (chat_id, user_id) DO NOTHING`,
		chatID, userID,
	)
	if err != nil {
		s.log.Error("add user to chat", err, "chat_id", chatID, "user_id", userID)
		return false
	}
	return true
}

// IsUserInChat reports whether userID is a current member of chatID.
func (s *Store) IsUserInChat(chatID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		s.log.Error("is user in chat", err, "chat_id", chatID, "user_id", userID)
		return false
	}
	return exists
}

// StoreMessage inserts a message row, server-assigning created_at. Returns
// the new msg_id, or -1 on failure.
func (s *Store) StoreMessage(chatID, senderID int64, content string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgID int64
	err := s.db.QueryRow(
		`INSERT INTO messages (chat_id, sender_id, content) VALUES ($1, $2, $3) RETURNING msg_id`,
		chatID, senderID, content,
	).Scan(&msgID)
	if err != nil {
		s.log.Error("store message", err, "chat_id", chatID, "sender_id", senderID)
		return -1
	}
	return msgID
}

// HistoryMessage is one visible message row for a chat, as seen by a
// specific user.
type HistoryMessage struct {
	MsgID      int64
	Timestamp  string
	SenderName string
	Content    string
}

// GetChatHistory returns every message visible to userID in chatID — not
// globally deleted, and with no per-user hide recorded for userID —
// ordered by created_at ascending.
func (s *Store) GetChatHistory(chatID, userID int64) ([]HistoryMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT m.msg_id, m.created_at, u.username, m.content
		FROM messages m
		JOIN users u ON u.user_id = m.sender_id
		LEFT JOIN user_deleted_messages d ON d.msg_id = m.msg_id AND d.user_id = $2
		WHERE m.chat_id = $1 AND m.deleted = FALSE AND d.msg_id IS NULL
		ORDER BY m.created_at ASC, m.msg_id ASC`,
		chatID, userID,
	)
	if err != nil {
		s.log.Error("get chat history", err, "chat_id", chatID, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var out []HistoryMessage
	for rows.Next() {
		var m HistoryMessage
		var ts time.Time
		if err := rows.Scan(&m.MsgID, &ts, &m.SenderName, &m.Content); err != nil {
			s.log.Error("scan chat history row", err)
			return nil, err
		}
		m.Timestamp = ts.UTC().Format(tsLayout)
		out = append(out, m)
	}
	return out, rows.Err()
}

// HistoryEvent is one chat_events row rendered for HISTORY merging.
type HistoryEvent struct {
	Timestamp string
	Username  string
	EventType string
}

// GetChatEvents returns every event for chatID ordered by event_ts
// ascending.
func (s *Store) GetChatEvents(chatID int64) ([]HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT e.event_ts, u.username, e.event_type
		FROM chat_events e
		JOIN users u ON u.user_id = e.user_id
		WHERE e.chat_id = $1
		ORDER BY e.event_ts ASC`,
		chatID,
	)
	if err != nil {
		s.log.Error("get chat events", err, "chat_id", chatID)
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEvent
	for rows.Next() {
		var e HistoryEvent
		var ts time.Time
		if err := rows.Scan(&ts, &e.Username, &e.EventType); err != nil {
			s.log.Error("scan chat event row", err)
			return nil, err
		}
		e.Timestamp = ts.UTC().Format(tsLayout)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteMessageForUser hides msgID from userID's own history. Idempotent:
// inserting twice is a no-op and still reports ok.
func (s *Store) DeleteMessageForUser(msgID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO user_deleted_messages (msg_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (msg_id, user_id) DO NOTHING`,
		msgID, userID,
	)
	if err != nil {
		s.log.Error("delete message for user", err, "msg_id", msgID, "user_id", userID)
		return false
	}
	return true
}

// DeleteMessageGlobal marks msgID deleted for every viewer.
func (s *Store) DeleteMessageGlobal(msgID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE messages SET deleted = TRUE WHERE msg_id = $1`, msgID)
	if err != nil {
		s.log.Error("delete message global", err, "msg_id", msgID)
		return false
	}
	return true
}

// GetMessageSender returns the author of msgID, or -1 if it doesn't exist.
func (s *Store) GetMessageSender(msgID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var senderID int64
	err := s.db.QueryRow(`SELECT sender_id FROM messages WHERE msg_id = $1`, msgID).Scan(&senderID)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Error("get message sender", err, "msg_id", msgID)
		}
		return -1
	}
	return senderID
}

// GetChatIDByMessage returns the chat msgID belongs to, or -1.
func (s *Store) GetChatIDByMessage(msgID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chatID int64
	err := s.db.QueryRow(`SELECT chat_id FROM messages WHERE msg_id = $1`, msgID).Scan(&chatID)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Error("get chat id by message", err, "msg_id", msgID)
		}
		return -1
	}
	return chatID
}

// RemoveUserFromChat deletes the membership row and appends a LEFT event in
// one serialised step, so both effects are observable together. Returns the
// server-assigned event timestamp alongside ok.
func (s *Store) RemoveUserFromChat(chatID, userID int64) (ok bool, eventTS string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error("remove user from chat: begin tx", err, "chat_id", chatID, "user_id", userID)
		return false, ""
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	); err != nil {
		s.log.Error("remove user from chat: delete member", err, "chat_id", chatID, "user_id", userID)
		return false, ""
	}

	var ts time.Time
	err = tx.QueryRow(
		`INSERT INTO chat_events (chat_id, user_id, event_type) VALUES ($1, $2, 'LEFT') RETURNING event_ts`,
		chatID, userID,
	).Scan(&ts)
	if err != nil {
		s.log.Error("remove user from chat: insert event", err, "chat_id", chatID, "user_id", userID)
		return false, ""
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("remove user from chat: commit", err, "chat_id", chatID, "user_id", userID)
		return false, ""
	}
	return true, ts.UTC().Format(tsLayout)
}

// ChatMembers returns the usernames of every member of chatID.
func (s *Store) ChatMembers(chatID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT u.username
		FROM chat_members cm
		JOIN users u ON u.user_id = cm.user_id
		WHERE cm.chat_id = $1
		ORDER BY u.user_id ASC`,
		chatID,
	)
	if err != nil {
		s.log.Error("chat members", err, "chat_id", chatID)
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		members = append(members, name)
	}
	return members, rows.Err()
}

// UserChat is one row of a user's chat list.
type UserChat struct {
	ChatID  int64
	IsGroup bool
	Name    string
}

// ListUserChats returns every chat userID belongs to, ordered by chat_id
// ascending for deterministic CHATS rendering.
func (s *Store) ListUserChats(userID int64) ([]UserChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT c.chat_id, c.is_group, COALESCE(c.chat_name, '')
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.chat_id
		WHERE cm.user_id = $1
		ORDER BY c.chat_id ASC`,
		userID,
	)
	if err != nil {
		s.log.Error("list user chats", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var out []UserChat
	for rows.Next() {
		var c UserChat
		if err := rows.Scan(&c.ChatID, &c.IsGroup, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetUserIDByName returns the id of the user named name, or -1.
func (s *Store) GetUserIDByName(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow(`SELECT user_id FROM users WHERE username = $1`, name).Scan(&id)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Error("get user id by name", err, "username", name)
		}
		return -1
	}
	return id
}

// GetUsername returns the username of userID, or "".
func (s *Store) GetUsername(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	err := s.db.QueryRow(`SELECT username FROM users WHERE user_id = $1`, userID).Scan(&name)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Error("get username", err, "user_id", userID)
		}
		return ""
	}
	return name
}

// DeleteEverything truncates all six tables. Used by the admin RESET
// command.
func (s *Store) DeleteEverything() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`TRUNCATE TABLE
		user_deleted_messages, chat_events, messages, chat_members, chats, users
		RESTART IDENTITY CASCADE`)
	if err != nil {
		s.log.Error("delete everything", err)
		return err
	}
	return nil
}
