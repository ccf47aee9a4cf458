package routing

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	GetActiveRules(ctx context.Context) ([]Rule, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetActiveRules(ctx context.Context) ([]Rule, error) {
	query := `
		SELECT id, lane_id, link_name, match_clause, priority, enabled, deleted,
		       COALESCE(description, ''), created_at, updated_at
		FROM routing_rules
		WHERE enabled = true AND deleted = false
		ORDER BY lane_id, priority DESC, created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.LaneID,
			&rule.LinkName,
			&rule.MatchClause,
			&rule.Priority,
			&rule.Enabled,
			&rule.Deleted,
			&rule.Description,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

// StaticRepository serves a fixed rule set. Used when no database is
// configured and in tests.
type StaticRepository struct {
	Rules []Rule
}

func (r *StaticRepository) GetActiveRules(ctx context.Context) ([]Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(r.Rules))
	for _, rule := range r.Rules {
		if rule.Enabled && !rule.Deleted {
			out = append(out, rule)
		}
	}
	return out, nil
}
