package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error)
}

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (a *PostgresAuditRepository) CreateAuditLog(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	oldValue, err := marshalNullable(entry.OldValue)
	if err != nil {
		return fmt.Errorf("failed to marshal old value: %w", err)
	}
	newValue, err := marshalNullable(entry.NewValue)
	if err != nil {
		return fmt.Errorf("failed to marshal new value: %w", err)
	}

	query := `
		INSERT INTO rule_audit_logs (id, rule_id, rule_type, action, old_value, new_value, changed_by, change_reason, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = a.db.ExecContext(ctx, query,
		entry.ID, entry.RuleID, entry.RuleType, entry.Action,
		oldValue, newValue,
		entry.ChangedBy, entry.ChangeReason, entry.IPAddress, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}

	return nil
}

func (a *PostgresAuditRepository) GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, rule_id, rule_type, action, old_value, new_value, changed_by, change_reason, ip_address, timestamp
		FROM rule_audit_logs
		WHERE ($1::text IS NULL OR rule_id = $1) AND ($2 = '' OR rule_type = $2)
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := a.db.QueryContext(ctx, query, ruleID, ruleType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var (
			entry    AuditLog
			oldValue []byte
			newValue []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.RuleID, &entry.RuleType, &entry.Action,
			&oldValue, &newValue,
			&entry.ChangedBy, &entry.ChangeReason, &entry.IPAddress, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(oldValue) > 0 {
			_ = json.Unmarshal(oldValue, &entry.OldValue)
		}
		if len(newValue) > 0 {
			_ = json.Unmarshal(newValue, &entry.NewValue)
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return logs, nil
}

func marshalNullable(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
