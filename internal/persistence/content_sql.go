package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLContentStore keeps content in the message_content table, inside the
// caller's transaction.
type SQLContentStore struct{}

func NewSQLContentStore() *SQLContentStore {
	return &SQLContentStore{}
}

func (s *SQLContentStore) Transactional() bool { return true }

func (s *SQLContentStore) SaveContent(ctx context.Context, q Queryer, connectorMessageID string, content *StoredContent) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	query := `
		INSERT INTO message_content (connector_message_id, payload)
		VALUES ($1, $2)
		ON CONFLICT (connector_message_id) DO UPDATE SET payload = EXCLUDED.payload, stored_at = NOW()
	`
	if _, err := q.ExecContext(ctx, query, connectorMessageID, payload); err != nil {
		return fmt.Errorf("failed to save content: %w", err)
	}
	return nil
}

func (s *SQLContentStore) LoadContent(ctx context.Context, q Queryer, connectorMessageID string) (*StoredContent, error) {
	var payload []byte
	err := q.QueryRowContext(ctx, `SELECT payload FROM message_content WHERE connector_message_id = $1`, connectorMessageID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load content: %w", err)
	}

	var content StoredContent
	if err := json.Unmarshal(payload, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return &content, nil
}

func (s *SQLContentStore) DeleteContent(ctx context.Context, q Queryer, connectorMessageID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM message_content WHERE connector_message_id = $1`, connectorMessageID); err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}
