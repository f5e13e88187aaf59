package merchant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

var _ Directory = (*PostgresDirectory)(nil)

// PostgresDirectory reads merchants from the 'merchants' table.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory creates a directory backed by the given pool.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	if db == nil {
		panic("merchant: database pool cannot be nil")
	}
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (*Merchant, error) {
	var (
		m       = Merchant{ID: id}
		tier    *string
		country *string
	)

	err := d.db.QueryRow(ctx, `SELECT tier, country FROM merchants WHERE id = $1`, id).Scan(&tier, &country)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find merchant %q: %w", id, err)
	}

	if tier != nil {
		m.Tier = ruleengine.Tier(*tier)
	}
	if country != nil {
		m.Country = *country
	}
	return &m, nil
}

func (d *PostgresDirectory) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := d.db.QueryRow(ctx, `SELECT count(*) FROM merchants`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count merchants: %w", err)
	}
	return total, nil
}
