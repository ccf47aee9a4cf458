package persistence

import (
	"context"
	"database/sql"
	"time"

	"connector/pkg/models"
)

// Store persists business messages and the evidence attached to them.
// Reads return copies; callers never share state with the store.
type Store interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	// FindBusinessMessageByIDAndDirection matches id against the ebMS,
	// backend and connector message ids of messages sent in direction.
	FindBusinessMessageByIDAndDirection(ctx context.Context, id string, direction models.Direction) (*models.Message, error)
	FindMessageByConnectorID(ctx context.Context, connectorMessageID string) (*models.Message, error)
	// AttachConfirmation appends to the related confirmations of a message.
	// A second confirmation of the same type is a conflict.
	AttachConfirmation(ctx context.Context, connectorMessageID string, c models.Confirmation) error
	MarkConfirmed(ctx context.Context, connectorMessageID string, at time.Time) error
	MarkRejected(ctx context.Context, connectorMessageID string, at time.Time) error
	DeleteContentForMessage(ctx context.Context, connectorMessageID string) error
}

// Transactor runs fn as one atomic unit. Any error returned by fn rolls
// back every write made through the Store passed to it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type TxStore interface {
	Store
	Transactor
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// StoredContent is the part of a message that cleanup deletes.
type StoredContent struct {
	Content     *models.MessageContent `json:"content,omitempty"`
	Attachments []models.Attachment    `json:"attachments,omitempty"`
}

func contentOf(msg *models.Message) *StoredContent {
	if msg.Content == nil && len(msg.Attachments) == 0 {
		return nil
	}
	c := msg.Clone()
	return &StoredContent{Content: c.Content, Attachments: c.Attachments}
}

// ContentStore keeps message content apart from the message row. q is the
// running transaction; stores outside the database ignore it.
type ContentStore interface {
	SaveContent(ctx context.Context, q Queryer, connectorMessageID string, content *StoredContent) error
	// LoadContent returns nil, nil when no content is stored.
	LoadContent(ctx context.Context, q Queryer, connectorMessageID string) (*StoredContent, error)
	DeleteContent(ctx context.Context, q Queryer, connectorMessageID string) error
	// Transactional reports whether writes roll back with q.
	Transactional() bool
}
