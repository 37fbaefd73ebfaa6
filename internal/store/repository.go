package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tmarchetti/gridpay/internal/domain"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("transaction not found")

// Repository is the durable home of transaction records. It is a recovery
// source and audit log: rows are upserted, never deleted. FindByID returns
// every matching row so the caller can detect the should-be-impossible
// duplicate-identifier case and treat it as fatal.
type Repository interface {
	Store(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) ([]*domain.Transaction, error)
}
