package management

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "connector/pkg/errors"
)

type Repository interface {
	CreateRoutingRule(ctx context.Context, rule *RoutingRule) error
	ListRoutingRules(ctx context.Context, laneID string) ([]RoutingRule, error)
	GetRoutingRule(ctx context.Context, id string) (*RoutingRule, error)
	UpdateRoutingRule(ctx context.Context, rule *RoutingRule) error
	DeleteRoutingRule(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const routingRuleColumns = `id, lane_id, link_name, match_clause, priority, enabled, description, created_at, updated_at`

func (r *PostgresRepository) CreateRoutingRule(ctx context.Context, rule *RoutingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO routing_rules (` + routingRuleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.LaneID, rule.LinkName, rule.MatchClause,
		rule.Priority, rule.Enabled, rule.Description, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("routing rule '%s' already exists", rule.ID))
		}
		return fmt.Errorf("failed to create routing rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetRoutingRule(ctx context.Context, id string) (*RoutingRule, error) {
	query := `
		SELECT ` + routingRuleColumns + `
		FROM routing_rules
		WHERE id = $1 AND NOT deleted
	`

	rule, err := scanRoutingRule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get routing rule: %w", err)
	}

	return rule, nil
}

// ListRoutingRules returns the rules of laneID, or of every lane when laneID
// is empty, in evaluation order.
func (r *PostgresRepository) ListRoutingRules(ctx context.Context, laneID string) ([]RoutingRule, error) {
	query := `
		SELECT ` + routingRuleColumns + `
		FROM routing_rules
		WHERE NOT deleted AND ($1 = '' OR lane_id = $1)
		ORDER BY lane_id, priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, laneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules: %w", err)
	}
	defer rows.Close()

	rules := []RoutingRule{}
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		rule, err := scanRoutingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing rules: %w", err)
	}
	return rules, nil
}

func (r *PostgresRepository) UpdateRoutingRule(ctx context.Context, rule *RoutingRule) error {
	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE routing_rules
		SET link_name = $2, match_clause = $3, priority = $4, enabled = $5, description = $6, updated_at = $7
		WHERE id = $1 AND NOT deleted
	`

	result, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.LinkName, rule.MatchClause,
		rule.Priority, rule.Enabled, rule.Description, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update routing rule: %w", err)
	}
	return expectOneRow(result, rule.ID)
}

// DeleteRoutingRule marks the rule deleted; the row stays for the audit trail.
func (r *PostgresRepository) DeleteRoutingRule(ctx context.Context, id string) error {
	query := `UPDATE routing_rules SET deleted = TRUE, updated_at = $2 WHERE id = $1 AND NOT deleted`

	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete routing rule: %w", err)
	}
	return expectOneRow(result, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoutingRule(row rowScanner) (*RoutingRule, error) {
	var rule RoutingRule
	err := row.Scan(
		&rule.ID, &rule.LaneID, &rule.LinkName, &rule.MatchClause,
		&rule.Priority, &rule.Enabled, &rule.Description, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func expectOneRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
