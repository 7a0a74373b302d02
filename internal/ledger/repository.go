package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles generations PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one entry. Redelivered events with a known EventID are
// ignored.
func (r *Repository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO generations (id, event_id, request_id, identity_digest, period, outcome, used, quota_limit, model, duration_ms, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (event_id) DO NOTHING`,
		e.ID, e.EventID, e.RequestID, e.IdentityDigest, e.Period, e.Outcome, e.Used, e.Limit, e.Model, e.DurationMillis, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("inserting generation: %w", err)
	}
	return nil
}

// ListByIdentity returns an identity's generations, newest first.
func (r *Repository) ListByIdentity(ctx context.Context, identityDigest string, params ListParams) ([]Entry, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	conditions := []string{"identity_digest = $1"}
	args := []any{identityDigest}

	if params.Period != "" {
		args = append(args, params.Period)
		conditions = append(conditions, fmt.Sprintf("period = $%d", len(args)))
	}
	if params.Outcome != "" {
		args = append(args, params.Outcome)
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", len(args)))
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	query := fmt.Sprintf(
		`SELECT id, event_id, request_id, identity_digest, period, outcome, used, quota_limit, model, duration_ms, occurred_at
		 FROM generations WHERE %s
		 ORDER BY occurred_at DESC
		 LIMIT $%d OFFSET $%d`, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying generations: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventID, &e.RequestID, &e.IdentityDigest, &e.Period, &e.Outcome,
			&e.Used, &e.Limit, &e.Model, &e.DurationMillis, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning generation: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating generations: %w", err)
	}

	return entries, nil
}
