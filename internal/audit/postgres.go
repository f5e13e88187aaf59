package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Sink = (*PostgresSink)(nil)

// PostgresSink appends entries to the 'audit_logs' table.
type PostgresSink struct {
	db *pgxpool.Pool
}

// NewPostgresSink creates a sink backed by the given pool.
func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	if db == nil {
		panic("audit: database pool cannot be nil")
	}
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	stamp(&e)

	before, err := marshalState(e.Before)
	if err != nil {
		return fmt.Errorf("failed to encode before state: %w", err)
	}
	after, err := marshalState(e.After)
	if err != nil {
		return fmt.Errorf("failed to encode after state: %w", err)
	}
	var metadata []byte
	if e.Metadata != nil {
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_id, before_state, after_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.Exec(ctx, query,
		e.ID,
		e.EntityType,
		e.EntityID,
		string(e.Action),
		e.ActorID,
		before,
		after,
		metadata,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// marshalState encodes a snapshot; nil stays SQL NULL.
func marshalState(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
