package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// DedupStore implements store.DedupStore on SQLite.
// Insertion order is kept by the autoincrement sequence column.
type DedupStore struct {
	db *sql.DB
}

func NewDedupStore(db *sql.DB) *DedupStore {
	return &DedupStore{db: db}
}

// SaveIDs replaces the stored window with ids in one transaction.
func (d *DedupStore) SaveIDs(ctx context.Context, ids []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_messages`); err != nil {
		return fmt.Errorf("clear processed messages: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO processed_messages (message_id) VALUES (?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("insert processed message: %w", err)
		}
	}
	return tx.Commit()
}

func (d *DedupStore) LoadIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT message_id FROM processed_messages ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load processed messages: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
