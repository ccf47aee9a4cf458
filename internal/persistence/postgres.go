package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/errors"
	"connector/pkg/metrics"
	"connector/pkg/models"
)

const pqUniqueViolation = "23505"

type PostgresStore struct {
	db      *sql.DB
	q       Queryer
	content ContentStore
	logger  logger.Logger
	tx      *pgTxState
}

// pgTxState tracks writes to a non-transactional content store so they can
// be undone on rollback or applied only after commit.
type pgTxState struct {
	saved   []string
	deletes []string
}

func NewPostgresStore(db *sql.DB, content ContentStore, log logger.Logger) *PostgresStore {
	if content == nil {
		content = NewSQLContentStore()
	}
	return &PostgresStore{db: db, q: db, content: content, logger: log}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &PostgresStore{db: s.db, q: tx, content: s.content, logger: s.logger, tx: &pgTxState{}}

	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.ErrorwCtx(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		s.discardContent(ctx, txStore.tx.saved)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.discardContent(ctx, txStore.tx.saved)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, id := range txStore.tx.deletes {
		if err := s.content.DeleteContent(ctx, s.db, id); err != nil {
			s.logger.ErrorwCtx(ctx, "Failed to delete content after commit",
				"error", err,
				"connector_message_id", id,
			)
		}
	}
	return nil
}

func (s *PostgresStore) discardContent(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.content.DeleteContent(ctx, s.db, id); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to discard content of rolled back message",
				"error", err,
				"connector_message_id", id,
			)
		}
	}
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.IsNotFound(err) {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceNameConnector, "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceNameConnector, "postgres", operation, time.Since(start))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) (err error) {
	defer func(start time.Time) { observe("create_message", start, err) }(time.Now())

	details, err := json.Marshal(msg.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal message details: %w", err)
	}
	var procErrors []byte
	if len(msg.Errors) > 0 {
		if procErrors, err = json.Marshal(msg.Errors); err != nil {
			return fmt.Errorf("failed to marshal processing errors: %w", err)
		}
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (connector_message_id, direction, lane_id, ebms_message_id, backend_message_id,
			ref_to_message_id, details, errors, backend_link, gateway_link, confirmed_at, rejected_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.q.ExecContext(ctx, query,
		msg.ConnectorMessageID, string(msg.Direction), msg.LaneID,
		nullString(msg.Details.EbmsMessageID), nullString(msg.Details.BackendMessageID),
		nullString(msg.Details.RefToMessageID), details, procErrors,
		nullString(msg.BackendLink), nullString(msg.GatewayLink),
		nullTime(msg.Details.ConfirmedAt), nullTime(msg.Details.RejectedAt), createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrConflict.WithCause(err).WithMessage(fmt.Sprintf("message %s already exists", msg.ConnectorMessageID))
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	if content := contentOf(msg); content != nil {
		if err := s.content.SaveContent(ctx, s.q, msg.ConnectorMessageID, content); err != nil {
			return fmt.Errorf("failed to store message content: %w", err)
		}
		if s.tx != nil && !s.content.Transactional() {
			s.tx.saved = append(s.tx.saved, msg.ConnectorMessageID)
		}
	}

	for _, c := range msg.RelatedConfirmations {
		if err := s.insertConfirmation(ctx, msg.ConnectorMessageID, c); err != nil {
			return err
		}
	}

	return nil
}

const messageColumns = `connector_message_id, direction, lane_id, details, errors, backend_link, gateway_link,
	confirmed_at, rejected_at, created_at`

func (s *PostgresStore) scanMessage(row *sql.Row) (*models.Message, error) {
	var (
		msg                     models.Message
		direction               string
		details, procErrors     []byte
		backendLink, gatewayLnk sql.NullString
		confirmedAt, rejectedAt sql.NullTime
	)
	if err := row.Scan(
		&msg.ConnectorMessageID, &direction, &msg.LaneID, &details, &procErrors,
		&backendLink, &gatewayLnk, &confirmedAt, &rejectedAt, &msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(details, &msg.Details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message details: %w", err)
	}
	if len(procErrors) > 0 {
		if err := json.Unmarshal(procErrors, &msg.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processing errors: %w", err)
		}
	}

	msg.Direction = models.Direction(direction)
	msg.BackendLink = backendLink.String
	msg.GatewayLink = gatewayLnk.String
	msg.Details.ConfirmedAt = nil
	msg.Details.RejectedAt = nil
	if confirmedAt.Valid {
		t := confirmedAt.Time
		msg.Details.ConfirmedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		msg.Details.RejectedAt = &t
	}
	return &msg, nil
}

// load completes a message row with its confirmations and content.
func (s *PostgresStore) load(ctx context.Context, row *sql.Row, notFound string) (*models.Message, error) {
	msg, err := s.scanMessage(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound.WithMessage(notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	confirmations, err := s.confirmations(ctx, msg.ConnectorMessageID)
	if err != nil {
		return nil, err
	}
	msg.RelatedConfirmations = confirmations

	content, err := s.content.LoadContent(ctx, s.q, msg.ConnectorMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message content: %w", err)
	}
	if content != nil {
		msg.Content = content.Content
		msg.Attachments = content.Attachments
	}
	return msg, nil
}

func (s *PostgresStore) FindBusinessMessageByIDAndDirection(ctx context.Context, id string, direction models.Direction) (msg *models.Message, err error) {
	defer func(start time.Time) { observe("find_business_message", start, err) }(time.Now())

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE direction = $2
		  AND (ebms_message_id = $1 OR backend_message_id = $1 OR connector_message_id = $1)
		ORDER BY created_at ASC
		LIMIT 1
	`
	return s.load(ctx, s.q.QueryRowContext(ctx, query, id, string(direction)),
		fmt.Sprintf("no %s message with id %s", direction, id))
}

func (s *PostgresStore) FindMessageByConnectorID(ctx context.Context, connectorMessageID string) (msg *models.Message, err error) {
	defer func(start time.Time) { observe("find_message", start, err) }(time.Now())

	query := `SELECT ` + messageColumns + ` FROM messages WHERE connector_message_id = $1`
	return s.load(ctx, s.q.QueryRowContext(ctx, query, connectorMessageID),
		fmt.Sprintf("message %s not found", connectorMessageID))
}

func (s *PostgresStore) confirmations(ctx context.Context, connectorMessageID string) ([]models.Confirmation, error) {
	query := `
		SELECT evidence_type, evidence, rejection_reason, details, created_at
		FROM confirmations
		WHERE connector_message_id = $1
		ORDER BY id ASC
	`

	rows, err := s.q.QueryContext(ctx, query, connectorMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmations: %w", err)
	}
	defer rows.Close()

	var out []models.Confirmation
	for rows.Next() {
		var (
			c               models.Confirmation
			evidenceType    string
			reason, details sql.NullString
		)
		if err := rows.Scan(&evidenceType, &c.Evidence, &reason, &details, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		c.EvidenceType = models.EvidenceType(evidenceType)
		c.RejectionReason = models.RejectionReason(reason.String)
		c.Details = details.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) insertConfirmation(ctx context.Context, connectorMessageID string, c models.Confirmation) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO confirmations (connector_message_id, evidence_type, evidence, rejection_reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.q.ExecContext(ctx, query,
		connectorMessageID, string(c.EvidenceType), c.Evidence,
		nullString(string(c.RejectionReason)), nullString(c.Details), createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrConflict.WithCause(err).
				WithMessage(fmt.Sprintf("message %s already has %s evidence", connectorMessageID, c.EvidenceType))
		}
		return fmt.Errorf("failed to insert confirmation: %w", err)
	}
	return nil
}

// lock takes a row lock on the message for the rest of the transaction.
func (s *PostgresStore) lock(ctx context.Context, connectorMessageID string) error {
	query := `SELECT 1 FROM messages WHERE connector_message_id = $1 FOR UPDATE`
	var one int
	err := s.q.QueryRowContext(ctx, query, connectorMessageID).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.ErrNotFound.WithMessage(fmt.Sprintf("message %s not found", connectorMessageID))
	}
	if err != nil {
		return fmt.Errorf("failed to lock message: %w", err)
	}
	return nil
}

func (s *PostgresStore) AttachConfirmation(ctx context.Context, connectorMessageID string, c models.Confirmation) (err error) {
	defer func(start time.Time) { observe("attach_confirmation", start, err) }(time.Now())

	if err := s.lock(ctx, connectorMessageID); err != nil {
		return err
	}
	return s.insertConfirmation(ctx, connectorMessageID, c)
}

func (s *PostgresStore) markTerminal(ctx context.Context, column, connectorMessageID string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE messages SET %s = $2
		WHERE connector_message_id = $1 AND confirmed_at IS NULL AND rejected_at IS NULL
	`, column)

	res, err := s.q.ExecContext(ctx, query, connectorMessageID, at)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if err := s.lock(ctx, connectorMessageID); err != nil {
			return err
		}
		return errors.ErrConflict.WithMessage(fmt.Sprintf("message %s is already terminal", connectorMessageID))
	}
	return nil
}

func (s *PostgresStore) MarkConfirmed(ctx context.Context, connectorMessageID string, at time.Time) (err error) {
	defer func(start time.Time) { observe("mark_confirmed", start, err) }(time.Now())
	return s.markTerminal(ctx, "confirmed_at", connectorMessageID, at)
}

func (s *PostgresStore) MarkRejected(ctx context.Context, connectorMessageID string, at time.Time) (err error) {
	defer func(start time.Time) { observe("mark_rejected", start, err) }(time.Now())
	return s.markTerminal(ctx, "rejected_at", connectorMessageID, at)
}

func (s *PostgresStore) DeleteContentForMessage(ctx context.Context, connectorMessageID string) (err error) {
	defer func(start time.Time) { observe("delete_content", start, err) }(time.Now())

	if err := s.lock(ctx, connectorMessageID); err != nil {
		return err
	}
	if s.tx != nil && !s.content.Transactional() {
		s.tx.deletes = append(s.tx.deletes, connectorMessageID)
		return nil
	}
	return s.content.DeleteContent(ctx, s.q, connectorMessageID)
}
