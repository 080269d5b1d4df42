// Package history persists the ordered message log of every chat session.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/ziadkadry99/kisan-mitra/internal/db"
	"github.com/ziadkadry99/kisan-mitra/internal/memory"
)

// Role identifies who wrote a message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is one immutable entry in a session log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const storeName = "history store"

// Store is the append-only session log backed by the message_store table.
type Store struct {
	db *db.DB
}

// NewStore creates a Store on an opened, migrated database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Append durably adds one message to the end of the session's log.
func (s *Store) Append(ctx context.Context, sessionID string, role Role, content string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO message_store (session_id, role, content) VALUES (?, ?, ?)`),
		sessionID, string(role), content,
	)
	if err != nil {
		return &memory.StoreWriteError{Store: storeName, Err: fmt.Errorf("append to %s: %w", sessionID, err)}
	}
	return nil
}

// AppendExchange writes a human message and its reply in one transaction so
// a turn is never half recorded.
func (s *Store) AppendExchange(ctx context.Context, sessionID, input, reply string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &memory.StoreWriteError{Store: storeName, Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback()

	q := s.db.Rebind(`INSERT INTO message_store (session_id, role, content) VALUES (?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, sessionID, string(RoleHuman), input); err != nil {
		return &memory.StoreWriteError{Store: storeName, Err: fmt.Errorf("append human message to %s: %w", sessionID, err)}
	}
	if _, err := tx.ExecContext(ctx, q, sessionID, string(RoleAssistant), reply); err != nil {
		return &memory.StoreWriteError{Store: storeName, Err: fmt.Errorf("append assistant message to %s: %w", sessionID, err)}
	}
	if err := tx.Commit(); err != nil {
		return &memory.StoreWriteError{Store: storeName, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// ReadAll returns the session's log in append order. An unknown session
// yields an empty slice.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT role, content FROM message_store WHERE session_id = ? ORDER BY id`),
		sessionID,
	)
	if err != nil {
		return nil, &memory.StoreReadError{Store: storeName, Err: fmt.Errorf("read %s: %w", sessionID, err)}
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&role, &m.Content); err != nil {
			return nil, &memory.StoreReadError{Store: storeName, Err: fmt.Errorf("scan %s: %w", sessionID, err)}
		}
		m.Role = Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &memory.StoreReadError{Store: storeName, Err: fmt.Errorf("read %s: %w", sessionID, err)}
	}
	return msgs, nil
}

// ListSessionsForUser returns the ids of sessions named "{userID}_...", in
// order of first message. LIKE wildcards in userID are matched literally.
func (s *Store) ListSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	prefix := userID + "_"
	pattern := escapeLike(prefix) + "%"
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT session_id FROM message_store
			WHERE session_id LIKE ? ESCAPE '\'
			GROUP BY session_id
			ORDER BY MIN(id)`),
		pattern,
	)
	if err != nil {
		return nil, &memory.StoreReadError{Store: storeName, Err: fmt.Errorf("list sessions for %s: %w", userID, err)}
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &memory.StoreReadError{Store: storeName, Err: fmt.Errorf("scan session: %w", err)}
		}
		// SQLite's LIKE ignores ASCII case.
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &memory.StoreReadError{Store: storeName, Err: fmt.Errorf("list sessions for %s: %w", userID, err)}
	}
	return sessions, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
