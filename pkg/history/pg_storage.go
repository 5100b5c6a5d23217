package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	queryInsertEntry = `INSERT INTO file_history (id, user_id, action, file_count, bytes, request_id, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

	querySelectEntries = `SELECT id, user_id, action, file_count, bytes, request_id, metadata, created_at
FROM file_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
)

// DefaultListLimit caps List when no positive limit is given.
const DefaultListLimit = 100

// PGStorage stores entries in the file_history table.
type PGStorage struct {
	db *sql.DB
}

func NewPGStorage(db *sql.DB) *PGStorage {
	return &PGStorage{db: db}
}

// StoreBatch inserts entries in one transaction.
func (s *PGStorage) StoreBatch(ctx context.Context, entries []Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(ErrFailedToStore, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, queryInsertEntry)
	if err != nil {
		return errors.Join(ErrFailedToStore, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, merr := encodeMetadata(e.Metadata)
		if merr != nil {
			return errors.Join(ErrFailedToStore, merr)
		}
		if _, err = stmt.ExecContext(ctx, e.ID, e.UserID, e.Action, e.FileCount, e.Bytes, e.RequestID, meta, e.CreatedAt); err != nil {
			return errors.Join(ErrFailedToStore, fmt.Errorf("insert entry %s: %w", e.ID, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Join(ErrFailedToStore, err)
	}
	return nil
}

// List returns the newest entries of userID first.
func (s *PGStorage) List(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, querySelectEntries, userID, limit)
	if err != nil {
		return nil, errors.Join(ErrFailedToList, err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.FileCount, &e.Bytes, &e.RequestID, &meta, &e.CreatedAt); err != nil {
			return nil, errors.Join(ErrFailedToList, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, errors.Join(ErrFailedToList, err)
			}
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToList, err)
	}
	return out, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
