// Package ledgerclient is the HTTP client for the remote currency ledger.
// The ledger is authoritative for balances: this process submits a transfer
// together with the callback URIs it wants settled against, and the ledger
// answers asynchronously by POSTing phase requests to those URIs.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tmarchetti/gridpay/internal/domain"
)

// Client talks to one ledger endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient builds a client with a bounded request timeout. The ledger's
// synchronous acknowledgement is cheap; settlement itself arrives later via
// callbacks, so a short timeout here is safe.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitRequest is the payload for a new transfer submission.
type SubmitRequest struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	PayerID        uuid.UUID `json:"payer_id"`
	PayeeID        uuid.UUID `json:"payee_id"`
	Amount         int64     `json:"amount"`
	TypeCode       int       `json:"type_code"`
	Description    string    `json:"description"`
	IsSubscription bool      `json:"is_subscription"`
	SubscriptionID uuid.UUID `json:"subscription_id,omitempty"`

	EnactURI   string `json:"enact_uri"`
	ConsumeURI string `json:"consume_uri"`
	CancelURI  string `json:"cancel_uri"`
}

// SubmitResponse is the ledger's synchronous acknowledgement. Accepted means
// the ledger queued the transfer and will drive the callbacks; it is not a
// settlement guarantee.
type SubmitResponse struct {
	Accepted     bool   `json:"accepted"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	PayerBalance int64  `json:"payer_balance"`
}

// NewSubmitRequest assembles the submission payload for tx with callback
// URIs rooted at uris.
func NewSubmitRequest(tx *domain.Transaction, uris domain.CallbackURIs) SubmitRequest {
	return SubmitRequest{
		TransactionID:  tx.ID,
		PayerID:        tx.PayerID,
		PayeeID:        tx.PayeeID,
		Amount:         tx.Amount,
		TypeCode:       tx.TypeCode,
		Description:    tx.Asset.Description,
		IsSubscription: tx.IsSubscription,
		SubscriptionID: tx.SubscriptionID,
		EnactURI:       uris.Enact(tx.ID),
		ConsumeURI:     uris.Consume(tx.ID),
		CancelURI:      uris.Cancel(tx.ID),
	}
}

// SubmitTransfer posts the transfer to the ledger and decodes its
// acknowledgement.
func (c *Client) SubmitTransfer(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ledger rejected submission: status %d: %s", resp.StatusCode, b)
	}

	var out SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ledger response: %w", err)
	}
	return &out, nil
}
