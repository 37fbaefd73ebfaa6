// Package registry holds the process-wide view of live transactions: a
// known-transactions cache backed by the persistent store, and a pending
// fence that serializes phase processing per transaction identifier.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tmarchetti/gridpay/internal/domain"
	"github.com/tmarchetti/gridpay/internal/store"
)

var (
	// ErrAlreadyExists is returned by Create when a record with the same
	// identifier is already registered or stored. Callers must not proceed:
	// another process owns this transaction.
	ErrAlreadyExists = errors.New("transaction already exists")

	// ErrDuplicateRows signals more than one stored row for one identifier.
	// The creation-time uniqueness check makes this structurally impossible,
	// so observing it means the table is corrupt; it is not retryable.
	ErrDuplicateRows = errors.New("duplicate transaction rows")
)

// Registry owns both maps plus their locks. It is constructed explicitly and
// passed by handle so tests get isolated instances.
type Registry struct {
	repo store.Repository
	log  zerolog.Logger

	knownMu sync.Mutex
	known   map[uuid.UUID]*domain.Transaction

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*domain.Transaction
}

func New(repo store.Repository, log zerolog.Logger) *Registry {
	return &Registry{
		repo:    repo,
		log:     log,
		known:   make(map[uuid.UUID]*domain.Transaction),
		pending: make(map[uuid.UUID]*domain.Transaction),
	}
}

// Get returns the in-memory record for id if present, otherwise looks it up
// in the store and caches it. Zero rows yields store.ErrNotFound; more than
// one row yields ErrDuplicateRows. The store query runs outside the known
// lock so a slow lookup never blocks unrelated transactions.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.knownMu.Lock()
	if tx, ok := r.known[id]; ok {
		r.knownMu.Unlock()
		return tx, nil
	}
	r.knownMu.Unlock()

	rows, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
		// fall through to caching
	default:
		return nil, fmt.Errorf("%w: %d rows for %s", ErrDuplicateRows, len(rows), id)
	}

	r.knownMu.Lock()
	defer r.knownMu.Unlock()
	// Another goroutine may have cached it while we were at the store; their
	// copy wins so everyone mutates the same record.
	if tx, ok := r.known[id]; ok {
		return tx, nil
	}
	r.known[id] = rows[0]
	return rows[0], nil
}

// Create builds a record from the immutable field set, registers it, and
// persists it. A duplicate identifier at either the optimistic check or the
// under-lock re-check fails with ErrAlreadyExists and persists nothing.
func (r *Registry) Create(ctx context.Context, p domain.TransferParams) (*domain.Transaction, error) {
	if _, err := r.Get(ctx, p.ID); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tx := domain.New(p)

	r.knownMu.Lock()
	if _, ok := r.known[p.ID]; ok {
		r.knownMu.Unlock()
		return nil, ErrAlreadyExists
	}
	r.known[p.ID] = tx
	r.knownMu.Unlock()

	if err := r.repo.Store(ctx, tx); err != nil {
		// Undo the registration so a later retry of the same identifier can
		// succeed once the store recovers.
		r.knownMu.Lock()
		delete(r.known, p.ID)
		r.knownMu.Unlock()
		return nil, err
	}

	r.log.Debug().Stringer("txn", tx.ID).Int64("amount", tx.Amount).Msg("transaction registered")
	return tx, nil
}

// ClaimPending marks id as having a phase request in flight. It returns false
// if another request already holds the fence.
func (r *Registry) ClaimPending(tx *domain.Transaction) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if _, ok := r.pending[tx.ID]; ok {
		return false
	}
	r.pending[tx.ID] = tx
	return true
}

// ReleasePending drops the fence for id. Safe to call when not held.
func (r *Registry) ReleasePending(id uuid.UUID) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

// Evict removes id from the known cache once the record is terminal. The
// stored row is untouched: the store keeps history forever.
func (r *Registry) Evict(id uuid.UUID) {
	r.knownMu.Lock()
	delete(r.known, id)
	r.knownMu.Unlock()
}

// KnownCount reports the number of live cached records, for metrics.
func (r *Registry) KnownCount() int {
	r.knownMu.Lock()
	defer r.knownMu.Unlock()
	return len(r.known)
}
