package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// StatePath is the path segment, under the module's base URI, that the remote
// ledger POSTs phase callbacks to.
const StatePath = "/transactions/state"

// Phase names accepted on the state endpoint. These strings travel over the
// wire in callback URIs and must match what the coordinator dispatches on.
const (
	PhaseEnact   = "enact"
	PhaseConsume = "consume"
	PhaseCancel  = "cancel"
)

// CallbackURIs builds the three phase-callback URIs handed to the remote
// ledger when a transfer is submitted. The ledger POSTs to the matching URI
// as the transfer moves through its settlement pipeline.
type CallbackURIs struct {
	base string
}

// NewCallbackURIs takes the externally reachable base URI of this process,
// e.g. "https://sim.example.net:8008".
func NewCallbackURIs(base string) CallbackURIs {
	return CallbackURIs{base: strings.TrimRight(base, "/")}
}

func (c CallbackURIs) build(id uuid.UUID, phase string) string {
	q := url.Values{}
	q.Set("id", id.String())
	q.Set("state", phase)
	return fmt.Sprintf("%s%s?%s", c.base, StatePath, q.Encode())
}

// Enact returns the URI the ledger calls to place the hold.
func (c CallbackURIs) Enact(id uuid.UUID) string { return c.build(id, PhaseEnact) }

// Consume returns the URI the ledger calls to finalize the transfer.
func (c CallbackURIs) Consume(id uuid.UUID) string { return c.build(id, PhaseConsume) }

// Cancel returns the URI the ledger calls to release the hold.
func (c CallbackURIs) Cancel(id uuid.UUID) string { return c.build(id, PhaseCancel) }
