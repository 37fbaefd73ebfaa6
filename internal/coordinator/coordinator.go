// Package coordinator implements the three-phase transaction protocol that
// ties local asset delivery to the remote currency ledger's settlement
// callbacks. The ledger POSTs enact/consume/cancel requests as a transfer
// moves through its pipeline; ProcessPhaseRequest is the single entry point
// that resolves the record, serializes processing per transaction, and
// dispatches to the matching phase handler.
package coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tmarchetti/gridpay/internal/domain"
	"github.com/tmarchetti/gridpay/internal/registry"
	"github.com/tmarchetti/gridpay/internal/store"
)

// Result messages returned to the remote ledger. These exact strings are a
// wire contract: the ledger retries on MsgPending and treats everything else
// as final, so do not reword them.
const (
	MsgPending      = "pending"
	MsgNoMatch      = "no matching transaction found"
	MsgUnrecognized = "Unrecognized state request"

	MsgAlreadyEnacted  = "already enacted"
	MsgAlreadyConsumed = "already consumed"
	MsgAlreadyCanceled = "already canceled"
	MsgNotYetEnacted   = "not yet enacted"
)

// AssetCallback is the capability that actually holds, delivers, or undoes
// the asset behind a transaction. Implementations are supplied by the caller
// per request and must tolerate a cancel of work that was never enacted.
// Their boolean verdict is trusted verbatim as the phase's outcome.
type AssetCallback interface {
	EnactHold(ctx context.Context, tx *domain.Transaction) (bool, string)
	ConsumeHold(ctx context.Context, tx *domain.Transaction) (bool, string)
	CancelHold(ctx context.Context, tx *domain.Transaction) (bool, string)
}

// Processor drives phase requests against the registry. One processor serves
// the whole process; per-transaction exclusion comes from the registry's
// pending fence, not from the processor itself.
type Processor struct {
	reg  *registry.Registry
	repo store.Repository
	log  zerolog.Logger
}

func NewProcessor(reg *registry.Registry, repo store.Repository, log zerolog.Logger) *Processor {
	return &Processor{reg: reg, repo: repo, log: log}
}

// ProcessPhaseRequest resolves id, claims the pending fence, and runs the
// handler for phase. The returned error is non-nil only for the
// duplicate-row data-integrity fault; every protocol-level outcome comes
// back as (ok, message) so the HTTP layer stays in control of retry
// semantics.
func (p *Processor) ProcessPhaseRequest(ctx context.Context, id uuid.UUID, phase string, cb AssetCallback) (bool, string, error) {
	tx, err := p.reg.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, MsgNoMatch, nil
		}
		return false, "transaction lookup failed", err
	}

	if !p.reg.ClaimPending(tx) {
		return false, MsgPending, nil
	}
	defer p.reg.ReleasePending(id)

	var (
		ok       bool
		msg      string
		terminal bool
	)
	switch phase {
	case domain.PhaseEnact:
		ok, msg = p.enact(ctx, tx, cb)
	case domain.PhaseConsume:
		ok, msg = p.consume(ctx, tx, cb)
		terminal = ok
	case domain.PhaseCancel:
		ok, msg = p.cancel(ctx, tx, cb)
		terminal = ok
	default:
		return false, MsgUnrecognized, nil
	}

	if terminal {
		p.reg.Evict(id)
	}

	p.log.Debug().Stringer("txn", id).Str("phase", phase).Bool("ok", ok).Str("msg", msg).
		Msg("phase request processed")
	return ok, msg, nil
}

// enact places the hold. Re-delivery after the transaction has moved on is
// answered with success so the ledger stops retrying; only a cancel makes a
// late enact fail, since it must not resurrect a released hold.
func (p *Processor) enact(ctx context.Context, tx *domain.Transaction, cb AssetCallback) (bool, string) {
	switch tx.State {
	case domain.StateCanceled:
		return false, MsgAlreadyCanceled
	case domain.StateConsumed:
		return true, MsgAlreadyConsumed
	case domain.StateEnacted:
		return true, MsgAlreadyEnacted
	}

	ok, msg := cb.EnactHold(ctx, tx)
	if ok {
		if err := tx.MarkEnacted(); err != nil {
			return false, err.Error()
		}
		p.persist(ctx, tx)
	}
	return ok, msg
}

// consume finalizes the hold. Valid only after enact; a consume after cancel
// is a protocol violation upstream and is never papered over.
func (p *Processor) consume(ctx context.Context, tx *domain.Transaction, cb AssetCallback) (bool, string) {
	switch tx.State {
	case domain.StateCanceled:
		return false, MsgAlreadyCanceled
	case domain.StateConsumed:
		return true, MsgAlreadyConsumed
	case domain.StateCreated:
		return false, MsgNotYetEnacted
	}

	ok, msg := cb.ConsumeHold(ctx, tx)
	if ok {
		if err := tx.MarkConsumed(); err != nil {
			return false, err.Error()
		}
		p.persist(ctx, tx)
	}
	return ok, msg
}

// cancel releases the hold. Unless the record is already terminal the
// callback is always invoked, even when the hold was never enacted: only the
// callback knows whether partial work needs undoing.
func (p *Processor) cancel(ctx context.Context, tx *domain.Transaction, cb AssetCallback) (bool, string) {
	switch tx.State {
	case domain.StateConsumed:
		return false, MsgAlreadyConsumed
	case domain.StateCanceled:
		return true, MsgAlreadyCanceled
	}

	ok, msg := cb.CancelHold(ctx, tx)
	if ok {
		if err := tx.MarkCanceled(); err != nil {
			return false, err.Error()
		}
		p.persist(ctx, tx)
	}
	return ok, msg
}

// persist writes the mutated record through to the store. A failure here is
// logged and not rolled back: the callback already mutated external state,
// so the in-memory record stays authoritative and the stored row catches up
// on the next write. See DESIGN.md for the durability-gap decision.
func (p *Processor) persist(ctx context.Context, tx *domain.Transaction) {
	if err := p.repo.Store(ctx, tx); err != nil {
		p.log.Error().Err(err).Stringer("txn", tx.ID).Str("state", tx.State.String()).
			Msg("failed to persist transaction state")
	}
}
