package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

// Compile-time check to verify that PostgresStore implements FlagRepository.
// If the interface changes and the struct doesn't, the build fails here.
var _ FlagRepository = (*PostgresStore)(nil)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const flagColumns = `
	id, flag_key, display_name, description, is_enabled, is_kill_switch,
	rollout_strategy, rollout_percentage::float8, target_merchant_ids, target_tiers,
	target_countries, overrides, COALESCE(last_changed_by_id, ''), version,
	created_at, updated_at, deleted_at`

// PostgresStore is the implementation of FlagRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// CreateFlag inserts a new flag into the database.
// It uses the RETURNING clause to get the server-generated ID, version and timestamps.
func (s *PostgresStore) CreateFlag(ctx context.Context, f *Flag) error {
	cols, err := encodeColumns(f)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO feature_flags (
			flag_key, display_name, description, is_enabled, is_kill_switch,
			rollout_strategy, rollout_percentage, target_merchant_ids, target_tiers,
			target_countries, overrides, last_changed_by_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		RETURNING id, version, created_at, updated_at
	`

	err = s.db.QueryRow(ctx, query,
		f.Key,
		f.DisplayName,
		f.Description,
		f.Enabled,
		f.KillSwitch,
		string(f.Strategy),
		cols.percentage,
		cols.merchantIDs,
		cols.tiers,
		cols.countries,
		cols.overrides,
		f.LastChangedByID,
	).Scan(&f.ID, &f.Version, &f.CreatedAt, &f.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, f.Key)
		}
		return fmt.Errorf("failed to insert flag: %w", err)
	}

	return nil
}

// GetFlag fetches a single live flag by key.
func (s *PostgresStore) GetFlag(ctx context.Context, key string) (*Flag, error) {
	query := `SELECT ` + flagColumns + `
		FROM feature_flags
		WHERE flag_key = $1 AND deleted_at IS NULL
	`

	f, err := scanFlag(s.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get flag %q: %w", key, err)
	}
	return f, nil
}

// UpdateFlag writes every mutable column guarded by the version check.
// The WHERE clause makes the compare-and-swap atomic in a single round trip.
func (s *PostgresStore) UpdateFlag(ctx context.Context, f *Flag) error {
	cols, err := encodeColumns(f)
	if err != nil {
		return err
	}

	query := `
		UPDATE feature_flags SET
			display_name = $3,
			description = $4,
			is_enabled = $5,
			is_kill_switch = $6,
			rollout_strategy = $7,
			rollout_percentage = $8,
			target_merchant_ids = $9,
			target_tiers = $10,
			target_countries = $11,
			overrides = $12,
			last_changed_by_id = NULLIF($13, ''),
			deleted_at = $14,
			version = version + 1,
			updated_at = now()
		WHERE flag_key = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, updated_at
	`

	var (
		newVersion int64
		updatedAt  time.Time
	)
	err = s.db.QueryRow(ctx, query,
		f.Key,
		f.Version,
		f.DisplayName,
		f.Description,
		f.Enabled,
		f.KillSwitch,
		string(f.Strategy),
		cols.percentage,
		cols.merchantIDs,
		cols.tiers,
		cols.countries,
		cols.overrides,
		f.LastChangedByID,
		f.DeletedAt,
	).Scan(&newVersion, &updatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Either the flag is gone or somebody else won the race. Tell them apart.
		var current int64
		probe := `SELECT version FROM feature_flags WHERE flag_key = $1 AND deleted_at IS NULL`
		if perr := s.db.QueryRow(ctx, probe, f.Key).Scan(&current); perr != nil {
			if errors.Is(perr, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to probe flag version: %w", perr)
		}
		return fmt.Errorf("%w: expected version %d, found %d", ErrVersionConflict, f.Version, current)
	}
	if err != nil {
		return fmt.Errorf("failed to update flag %q: %w", f.Key, err)
	}

	f.Version = newVersion
	f.UpdatedAt = updatedAt
	return nil
}

// ListFlags returns all live flags ordered by creation time descending.
func (s *PostgresStore) ListFlags(ctx context.Context) ([]*Flag, error) {
	query := `SELECT ` + flagColumns + `
		FROM feature_flags
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, flag_key ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	flags := make([]*Flag, 0)
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag row: %w", err)
		}
		flags = append(flags, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return flags, nil
}

// encodedColumns holds the JSONB and NUMERIC parameters of a flag row.
type encodedColumns struct {
	percentage  *float64
	merchantIDs []byte
	tiers       []byte
	countries   []byte
	overrides   []byte
}

func encodeColumns(f *Flag) (encodedColumns, error) {
	var (
		cols encodedColumns
		err  error
	)

	if f.Percentage != nil {
		v := f.Percentage.Float64()
		cols.percentage = &v
	}
	if cols.merchantIDs, err = marshalNullable(f.TargetMerchantIDs); err != nil {
		return cols, fmt.Errorf("failed to encode target merchant ids: %w", err)
	}
	if cols.tiers, err = marshalNullable(f.TargetTiers); err != nil {
		return cols, fmt.Errorf("failed to encode target tiers: %w", err)
	}
	if cols.countries, err = marshalNullable(f.TargetCountries); err != nil {
		return cols, fmt.Errorf("failed to encode target countries: %w", err)
	}
	if cols.overrides, err = json.Marshal(f.Overrides.Entries()); err != nil {
		return cols, fmt.Errorf("failed to encode overrides: %w", err)
	}
	return cols, nil
}

// marshalNullable keeps the distinction between "never set" (SQL NULL) and an empty list.
func marshalNullable[T any](values []T) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		f                                 Flag
		strategy                          string
		percentage                        *float64
		merchantIDs, tiers, countries, ov []byte
	)

	err := row.Scan(
		&f.ID,
		&f.Key,
		&f.DisplayName,
		&f.Description,
		&f.Enabled,
		&f.KillSwitch,
		&strategy,
		&percentage,
		&merchantIDs,
		&tiers,
		&countries,
		&ov,
		&f.LastChangedByID,
		&f.Version,
		&f.CreatedAt,
		&f.UpdatedAt,
		&f.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Strategy = ruleengine.Strategy(strategy)

	if percentage != nil {
		// NUMERIC(5,2) guarantees two decimals, so conversion cannot fail on stored data.
		p, err := ruleengine.NewPercentage(*percentage)
		if err != nil {
			return nil, fmt.Errorf("corrupt rollout_percentage %v: %w", *percentage, err)
		}
		f.Percentage = &p
	}

	if err := unmarshalNullable(merchantIDs, &f.TargetMerchantIDs); err != nil {
		return nil, fmt.Errorf("corrupt target_merchant_ids: %w", err)
	}
	if err := unmarshalNullable(tiers, &f.TargetTiers); err != nil {
		return nil, fmt.Errorf("corrupt target_tiers: %w", err)
	}
	if err := unmarshalNullable(countries, &f.TargetCountries); err != nil {
		return nil, fmt.Errorf("corrupt target_countries: %w", err)
	}

	var entries []ruleengine.OverrideEntry
	if err := unmarshalNullable(ov, &entries); err != nil {
		return nil, fmt.Errorf("corrupt overrides: %w", err)
	}
	f.Overrides = ruleengine.NewOverrides(entries...)

	return &f, nil
}

func unmarshalNullable[T any](raw []byte, dst *[]T) error {
	if raw == nil {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
