package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmarchetti/gridpay/internal/domain"
)

// PostgresRepository persists transaction records in a single `transactions`
// table keyed by id.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository opens a connection pool against connString and
// verifies it with a ping.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresRepository{db: pool}, nil
}

// NewPostgresRepositoryFromPool wraps an existing pool, for callers that
// manage pool lifetime themselves.
func NewPostgresRepositoryFromPool(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

func (r *PostgresRepository) Close() {
	r.db.Close()
}

const upsertSQL = `
INSERT INTO transactions (
	id, payer_id, payer_name, payee_id, payee_name, amount,
	type_code, type_label, is_subscription, subscription_id,
	object_id, object_name, object_description, category, local_id, sale_type,
	state, submitted, response_received, response_success, status, reason, payer_balance,
	created_at, enacted_at, finished_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16,
	$17, $18, $19, $20, $21, $22, $23,
	$24, $25, $26
)
ON CONFLICT (id) DO UPDATE SET
	state             = EXCLUDED.state,
	submitted         = EXCLUDED.submitted,
	response_received = EXCLUDED.response_received,
	response_success  = EXCLUDED.response_success,
	status            = EXCLUDED.status,
	reason            = EXCLUDED.reason,
	payer_balance     = EXCLUDED.payer_balance,
	enacted_at        = EXCLUDED.enacted_at,
	finished_at       = EXCLUDED.finished_at`

// Store upserts the full row for tx. The immutable columns only matter on
// first insert; later calls overwrite the mutable protocol columns.
func (r *PostgresRepository) Store(ctx context.Context, tx *domain.Transaction) error {
	var enactedAt, finishedAt *time.Time
	if !tx.EnactedAt.IsZero() {
		enactedAt = &tx.EnactedAt
	}
	if !tx.FinishedAt.IsZero() {
		finishedAt = &tx.FinishedAt
	}

	_, err := r.db.Exec(ctx, upsertSQL,
		tx.ID, tx.PayerID, tx.PayerName, tx.PayeeID, tx.PayeeName, tx.Amount,
		tx.TypeCode, tx.TypeLabel, tx.IsSubscription, tx.SubscriptionID,
		tx.Asset.ObjectID, tx.Asset.ObjectName, tx.Asset.Description,
		tx.Asset.Category, int64(tx.Asset.LocalID), tx.Asset.SaleType,
		tx.State.String(), tx.Submitted, tx.ResponseReceived, tx.ResponseSuccess,
		tx.Status, tx.Reason, tx.PayerBalance,
		tx.CreatedAt, enactedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("transaction upsert failed: %w", err)
	}
	return nil
}

const selectSQL = `
SELECT
	id, payer_id, payer_name, payee_id, payee_name, amount,
	type_code, type_label, is_subscription, subscription_id,
	object_id, object_name, object_description, category, local_id, sale_type,
	state, submitted, response_received, response_success, status, reason, payer_balance,
	created_at, enacted_at, finished_at
FROM transactions
WHERE id = $1`

// FindByID returns every row matching id. With the primary key in place that
// is zero or one row, but the slice shape lets the registry detect a corrupt
// table instead of silently picking a row.
func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, selectSQL, id)
	if err != nil {
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction scan failed: %w", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx         domain.Transaction
		localID    int64
		stateStr   string
		enactedAt  *time.Time
		finishedAt *time.Time
	)
	err := row.Scan(
		&tx.ID, &tx.PayerID, &tx.PayerName, &tx.PayeeID, &tx.PayeeName, &tx.Amount,
		&tx.TypeCode, &tx.TypeLabel, &tx.IsSubscription, &tx.SubscriptionID,
		&tx.Asset.ObjectID, &tx.Asset.ObjectName, &tx.Asset.Description,
		&tx.Asset.Category, &localID, &tx.Asset.SaleType,
		&stateStr, &tx.Submitted, &tx.ResponseReceived, &tx.ResponseSuccess,
		&tx.Status, &tx.Reason, &tx.PayerBalance,
		&tx.CreatedAt, &enactedAt, &finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction row scan failed: %w", err)
	}

	tx.Asset.LocalID = uint32(localID)
	state, err := domain.ParseState(stateStr)
	if err != nil {
		return nil, err
	}
	tx.State = state
	if enactedAt != nil {
		tx.EnactedAt = *enactedAt
	}
	if finishedAt != nil {
		tx.FinishedAt = *finishedAt
	}
	return &tx, nil
}
