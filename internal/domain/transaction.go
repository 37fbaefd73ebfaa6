package domain

import (
	"time"

	"github.com/google/uuid"
)

// BalanceUnknown is the payer-balance sentinel used until the remote ledger
// reports the post-transfer balance.
const BalanceUnknown int64 = -1

// AssetContext carries everything the asset callback needs to know what to
// deliver (or undo) for a transaction. All fields are set at creation and
// never mutated.
type AssetContext struct {
	ObjectID    uuid.UUID `json:"object_id"`
	ObjectName  string    `json:"object_name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	LocalID     uint32    `json:"local_id,omitempty"`
	SaleType    int       `json:"sale_type"`
}

// Transaction is the record of one attempted currency transfer. The economic
// fields are immutable after New; the protocol fields (State, timestamps,
// response bookkeeping) are mutated only by the coordinator's phase handlers,
// which are serialized per transaction by the registry's pending fence.
type Transaction struct {
	ID uuid.UUID `json:"id"`

	PayerID   uuid.UUID `json:"payer_id"`
	PayerName string    `json:"payer_name"`
	PayeeID   uuid.UUID `json:"payee_id"`
	PayeeName string    `json:"payee_name"`
	Amount    int64     `json:"amount"`

	TypeCode  int    `json:"type_code"`
	TypeLabel string `json:"type_label"`

	IsSubscription bool      `json:"is_subscription"`
	SubscriptionID uuid.UUID `json:"subscription_id,omitempty"`

	Asset AssetContext `json:"asset"`

	State State `json:"state"`

	// Response bookkeeping for the remote ledger exchange.
	Submitted        bool   `json:"submitted"`
	ResponseReceived bool   `json:"response_received"`
	ResponseSuccess  bool   `json:"response_success"`
	Status           string `json:"status"`
	Reason           string `json:"reason"`
	PayerBalance     int64  `json:"payer_balance"`

	CreatedAt  time.Time `json:"created_at"`
	EnactedAt  time.Time `json:"enacted_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// TransferParams is the full immutable field set required to create a
// transaction record.
type TransferParams struct {
	ID             uuid.UUID
	PayerID        uuid.UUID
	PayerName      string
	PayeeID        uuid.UUID
	PayeeName      string
	Amount         int64
	TypeCode       int
	TypeLabel      string
	IsSubscription bool
	SubscriptionID uuid.UUID
	Asset          AssetContext
}

// New builds a transaction record in the Created state with all mutable
// fields at their initial values.
func New(p TransferParams) *Transaction {
	return &Transaction{
		ID:             p.ID,
		PayerID:        p.PayerID,
		PayerName:      p.PayerName,
		PayeeID:        p.PayeeID,
		PayeeName:      p.PayeeName,
		Amount:         p.Amount,
		TypeCode:       p.TypeCode,
		TypeLabel:      p.TypeLabel,
		IsSubscription: p.IsSubscription,
		SubscriptionID: p.SubscriptionID,
		Asset:          p.Asset,
		State:          StateCreated,
		PayerBalance:   BalanceUnknown,
		CreatedAt:      time.Now().UTC(),
	}
}

// MarkEnacted transitions the record to Enacted and stamps the enacted time.
// The timestamp is written only on the first transition.
func (t *Transaction) MarkEnacted() error {
	next, err := t.State.Transition(StateEnacted)
	if err != nil {
		return err
	}
	if t.EnactedAt.IsZero() {
		t.EnactedAt = time.Now().UTC()
	}
	t.State = next
	return nil
}

// MarkConsumed transitions the record to the Consumed terminal state and
// stamps the finished time exactly once.
func (t *Transaction) MarkConsumed() error {
	next, err := t.State.Transition(StateConsumed)
	if err != nil {
		return err
	}
	if t.FinishedAt.IsZero() {
		t.FinishedAt = time.Now().UTC()
	}
	t.State = next
	return nil
}

// MarkCanceled transitions the record to the Canceled terminal state and
// stamps the finished time exactly once. Valid from both Created and Enacted:
// cancelling an unenacted hold is a legitimate no-op path.
func (t *Transaction) MarkCanceled() error {
	next, err := t.State.Transition(StateCanceled)
	if err != nil {
		return err
	}
	if t.FinishedAt.IsZero() {
		t.FinishedAt = time.Now().UTC()
	}
	t.State = next
	return nil
}

// RecordResponse stores the remote ledger's verdict on the submitted transfer.
func (t *Transaction) RecordResponse(success bool, status, reason string, balance int64) {
	t.ResponseReceived = true
	t.ResponseSuccess = success
	t.Status = status
	t.Reason = reason
	t.PayerBalance = balance
}
