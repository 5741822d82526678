package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// SessionStore implements store.SessionStore on SQLite.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Save(ctx context.Context, data store.SessionData) error {
	if data.History == nil {
		data.History = []store.Turn{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		data.Key, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", data.Key, err)
	}
	return nil
}

func (s *SessionStore) LoadAll(ctx context.Context) ([]store.SessionData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var out []store.SessionData
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var data store.SessionData
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		out = append(out, data)
	}
	return out, rows.Err()
}
