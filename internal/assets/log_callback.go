// Package assets provides AssetCallback implementations. The coordinator
// never owns asset delivery; a callback from this package (or from an
// embedding application) is injected per request.
package assets

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tmarchetti/gridpay/internal/domain"
)

// LogCallback acknowledges every phase and logs it. It stands in for a real
// delivery bridge in development and in deployments where the embedding
// application performs delivery itself and only needs the protocol.
type LogCallback struct {
	Log zerolog.Logger
}

func (c LogCallback) EnactHold(ctx context.Context, tx *domain.Transaction) (bool, string) {
	c.Log.Info().Stringer("txn", tx.ID).Str("object", tx.Asset.ObjectName).Msg("hold enacted")
	return true, "enacted"
}

func (c LogCallback) ConsumeHold(ctx context.Context, tx *domain.Transaction) (bool, string) {
	c.Log.Info().Stringer("txn", tx.ID).Str("object", tx.Asset.ObjectName).Msg("hold consumed")
	return true, "consumed"
}

func (c LogCallback) CancelHold(ctx context.Context, tx *domain.Transaction) (bool, string) {
	// Also reached for holds that were never enacted; releasing nothing is a
	// legitimate no-op.
	c.Log.Info().Stringer("txn", tx.ID).Str("object", tx.Asset.ObjectName).Msg("hold canceled")
	return true, "canceled"
}
